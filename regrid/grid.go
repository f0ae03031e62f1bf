/*
Copyright © 2021 the OceanVal authors.
This file is part of OceanVal.

OceanVal is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanVal is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanVal.  If not, see <http://www.gnu.org/licenses/>.
*/

package regrid

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// Grid describes a horizontal grid by its cell-center coordinates and,
// optionally, its cell-boundary coordinates. Rectilinear grids use
// 1-dimensional Lon [nx] and Lat [ny]; curvilinear grids use
// 2-dimensional coordinates with shape [ny, nx]. Boundary arrays have
// one more entry than centers along each axis and are required for the
// conservative methods.
type Grid struct {
	Lon, Lat   *sparse.DenseArray
	LonB, LatB *sparse.DenseArray
}

// NewGrid validates the coordinate arrays and returns a Grid.
func NewGrid(lon, lat, lonB, latB *sparse.DenseArray) (*Grid, error) {
	if lon == nil || lat == nil {
		return nil, fmt.Errorf("regrid: grid is missing center coordinates")
	}
	if len(lon.Shape) != len(lat.Shape) || len(lon.Shape) < 1 || len(lon.Shape) > 2 {
		return nil, fmt.Errorf("regrid: center coordinates must both be 1- or 2-dimensional; have shapes %v and %v",
			lon.Shape, lat.Shape)
	}
	g := &Grid{Lon: lon, Lat: lat, LonB: lonB, LatB: latB}
	ny, nx := g.Shape()
	if !g.Rectilinear() && (lat.Shape[0] != ny || lat.Shape[1] != nx) {
		return nil, fmt.Errorf("regrid: curvilinear coordinate shapes %v and %v do not match", lon.Shape, lat.Shape)
	}
	if (lonB == nil) != (latB == nil) {
		return nil, fmt.Errorf("regrid: grid has only one of the two boundary coordinate arrays")
	}
	if lonB != nil {
		if g.Rectilinear() {
			if len(lonB.Shape) != 1 || lonB.Shape[0] != nx+1 ||
				len(latB.Shape) != 1 || latB.Shape[0] != ny+1 {
				return nil, fmt.Errorf("regrid: boundary coordinate shapes %v and %v do not match grid (%d, %d)",
					lonB.Shape, latB.Shape, ny, nx)
			}
		} else {
			if len(lonB.Shape) != 2 || lonB.Shape[0] != ny+1 || lonB.Shape[1] != nx+1 ||
				len(latB.Shape) != 2 || latB.Shape[0] != ny+1 || latB.Shape[1] != nx+1 {
				return nil, fmt.Errorf("regrid: boundary coordinate shapes %v and %v do not match grid (%d, %d)",
					lonB.Shape, latB.Shape, ny, nx)
			}
		}
	}
	return g, nil
}

// Rectilinear reports whether the grid coordinates are 1-dimensional.
func (g *Grid) Rectilinear() bool {
	return len(g.Lon.Shape) == 1
}

// HasBounds reports whether the grid carries cell-boundary coordinates.
func (g *Grid) HasBounds() bool {
	return g.LonB != nil && g.LatB != nil
}

// Shape returns the number of cells along the y and x axes.
func (g *Grid) Shape() (ny, nx int) {
	if g.Rectilinear() {
		return g.Lat.Shape[0], g.Lon.Shape[0]
	}
	return g.Lon.Shape[0], g.Lon.Shape[1]
}

// LonAt and LatAt return the center coordinates of cell (j, i).

func (g *Grid) LonAt(j, i int) float64 {
	if g.Rectilinear() {
		return g.Lon.Get(i)
	}
	return g.Lon.Get(j, i)
}

func (g *Grid) LatAt(j, i int) float64 {
	if g.Rectilinear() {
		return g.Lat.Get(j)
	}
	return g.Lat.Get(j, i)
}

// Periodic reports whether the grid wraps around at the ±180° seam,
// which is the case exactly when the outward-rounded longitude span
// covers the full [-180, 180] extent.
func (g *Grid) Periodic() bool {
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range g.Lon.Elements {
		if math.IsNaN(v) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return math.Floor(min) == -180 && math.Ceil(max) == 180
}

// cellPolygon returns the boundary polygon of cell (j, i). The grid
// must have boundary coordinates.
func (g *Grid) cellPolygon(j, i int) geom.Polygon {
	if g.Rectilinear() {
		x0, x1 := g.LonB.Get(i), g.LonB.Get(i+1)
		y0, y1 := g.LatB.Get(j), g.LatB.Get(j+1)
		return geom.Polygon{{
			{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
		}}
	}
	return geom.Polygon{{
		{X: g.LonB.Get(j, i), Y: g.LatB.Get(j, i)},
		{X: g.LonB.Get(j, i+1), Y: g.LatB.Get(j, i+1)},
		{X: g.LonB.Get(j+1, i+1), Y: g.LatB.Get(j+1, i+1)},
		{X: g.LonB.Get(j+1, i), Y: g.LatB.Get(j+1, i)},
	}}
}

// CellPolygons returns the boundary polygon of every grid cell in
// row-major order. Grids without boundary coordinates get cell edges
// estimated from the midpoints of adjacent cell centers, with the
// outer edges extrapolated by half the neighboring spacing and
// latitudes clamped to ±90.
func (g *Grid) CellPolygons() []geom.Polygon {
	gb := g
	if !g.HasBounds() {
		lonB, latB := g.estimateBounds()
		gb = &Grid{Lon: g.Lon, Lat: g.Lat, LonB: lonB, LatB: latB}
	}
	ny, nx := g.Shape()
	polys := make([]geom.Polygon, 0, ny*nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			polys = append(polys, gb.cellPolygon(j, i))
		}
	}
	return polys
}

// estimateBounds derives boundary coordinates from the cell centers.
func (g *Grid) estimateBounds() (lonB, latB *sparse.DenseArray) {
	if g.Rectilinear() {
		return edgesOf(g.Lon.Elements, false), edgesOf(g.Lat.Elements, true)
	}
	ny, nx := g.Shape()
	lonB = sparse.ZerosDense(ny+1, nx+1)
	latB = sparse.ZerosDense(ny+1, nx+1)
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			k := lonB.Index1d(j, i)
			lonB.Elements[k] = cornerEstimate(g.Lon, j, i, ny, nx)
			latB.Elements[k] = cornerEstimate(g.Lat, j, i, ny, nx)
		}
	}
	extrapolateEdges(lonB, ny, nx)
	extrapolateEdges(latB, ny, nx)
	for k, v := range latB.Elements {
		latB.Elements[k] = clampLat(v)
	}
	return lonB, latB
}

// extrapolateEdges pushes the outermost corner estimates outward so
// that boundary cells keep their full extent. The estimates in the
// outer rows and columns of b start at the midpoints of the boundary
// centers themselves rather than at true cell corners.
func extrapolateEdges(b *sparse.DenseArray, ny, nx int) {
	if ny >= 2 {
		for i := 0; i <= nx; i++ {
			k0, k1, k2 := b.Index1d(0, i), b.Index1d(1, i), b.Index1d(ny, i)
			b.Elements[k0] = 2*b.Elements[k0] - b.Elements[k1]
			b.Elements[k2] = 2*b.Elements[k2] - b.Elements[b.Index1d(ny-1, i)]
		}
	}
	if nx >= 2 {
		for j := 0; j <= ny; j++ {
			k0, k1, k2 := b.Index1d(j, 0), b.Index1d(j, 1), b.Index1d(j, nx)
			b.Elements[k0] = 2*b.Elements[k0] - b.Elements[k1]
			b.Elements[k2] = 2*b.Elements[k2] - b.Elements[b.Index1d(j, nx-1)]
		}
	}
}

// edgesOf returns the n+1 edges at the midpoints of n centers, with
// the outer edges extrapolated by half the adjacent spacing.
func edgesOf(centers []float64, isLat bool) *sparse.DenseArray {
	n := len(centers)
	e := sparse.ZerosDense(n + 1)
	if n == 1 {
		e.Elements[0], e.Elements[1] = centers[0]-0.5, centers[0]+0.5
	} else {
		for i := 1; i < n; i++ {
			e.Elements[i] = (centers[i-1] + centers[i]) / 2
		}
		e.Elements[0] = centers[0] - (centers[1]-centers[0])/2
		e.Elements[n] = centers[n-1] + (centers[n-1]-centers[n-2])/2
	}
	if isLat {
		for i := range e.Elements {
			e.Elements[i] = clampLat(e.Elements[i])
		}
	}
	return e
}

// cornerEstimate averages the cell centers surrounding corner (j, i).
func cornerEstimate(c *sparse.DenseArray, j, i, ny, nx int) float64 {
	var sum float64
	var n int
	for _, jj := range [2]int{j - 1, j} {
		if jj < 0 || jj >= ny {
			continue
		}
		for _, ii := range [2]int{i - 1, i} {
			if ii < 0 || ii >= nx {
				continue
			}
			sum += c.Get(jj, ii)
			n++
		}
	}
	return sum / float64(n)
}

func clampLat(v float64) float64 {
	return math.Max(-90, math.Min(90, v))
}

// translateX returns a copy of p shifted along the x axis.
func translateX(p geom.Polygon, shift float64) geom.Polygon {
	if shift == 0 {
		return p
	}
	out := make(geom.Polygon, len(p))
	for k, path := range p {
		out[k] = make(geom.Path, len(path))
		for m, pt := range path {
			out[k][m] = geom.Point{X: pt.X + shift, Y: pt.Y}
		}
	}
	return out
}
