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
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"gonum.org/v1/gonum/floats"
)

// srcCell is a source cell polygon held in the spatial index.
type srcCell struct {
	geom.Polygonal
	idx int
}

// buildConservative computes first-order conservative weights from the
// area overlap of source and destination cell polygons. Each weight is
// the fraction of the destination cell covered by one source cell, so
// the weights of a fully covered destination cell sum to one.
func (r *Regridder) buildConservative() error {
	if !r.src.HasBounds() || !r.dst.HasBounds() {
		return fmt.Errorf("regrid: %s regridding requires cell boundary coordinates on both grids", r.method)
	}
	sy, sx := r.src.Shape()
	tree := rtree.NewTree(25, 50)
	shifts := []float64{0}
	if r.periodic {
		shifts = []float64{-360, 0, 360}
	}
	for j := 0; j < sy; j++ {
		for i := 0; i < sx; i++ {
			p := windowPolygon(r.src.cellPolygon(j, i))
			if p == nil {
				continue
			}
			for _, shift := range shifts {
				tree.Insert(&srcCell{Polygonal: translateX(p, shift), idx: j*sx + i})
			}
		}
	}
	dy, dx := r.dst.Shape()
	rows := make([][]weight, dy*dx)
	for c := range rows {
		dpoly := windowPolygon(r.dst.cellPolygon(c/dx, c%dx))
		if dpoly == nil {
			continue
		}
		dstArea := math.Abs(dpoly.Area())
		if dstArea == 0 {
			continue
		}
		frac := make(map[int]float64)
		for _, scI := range tree.SearchIntersect(dpoly.Bounds()) {
			sc := scI.(*srcCell)
			isect := sc.Polygonal.Intersection(dpoly)
			if isect == nil {
				continue
			}
			if a := math.Abs(isect.Area()); a > 0 {
				frac[sc.idx] += a / dstArea
			}
		}
		if len(frac) == 0 {
			continue
		}
		idxs := make([]int, 0, len(frac))
		for idx := range frac {
			idxs = append(idxs, idx)
		}
		sort.Ints(idxs)
		ws := make([]float64, len(idxs))
		for k, idx := range idxs {
			ws[k] = frac[idx]
		}
		if floats.Sum(ws) < 1e-12 {
			continue
		}
		row := make([]weight, len(idxs))
		for k, idx := range idxs {
			row[k] = weight{idx: idx, w: ws[k]}
		}
		rows[c] = row
	}
	r.rows = rows
	return nil
}

// windowPolygon brings the corner longitudes of p into a continuous
// window around its first corner, so cells straddling the ±180° seam
// form valid planar polygons. It returns nil when any corner is not
// finite.
func windowPolygon(p geom.Polygon) geom.Polygon {
	if len(p) == 0 || len(p[0]) == 0 {
		return nil
	}
	x0 := p[0][0].X
	if math.IsNaN(x0) {
		return nil
	}
	out := make(geom.Polygon, len(p))
	for k, path := range p {
		out[k] = make(geom.Path, len(path))
		for m, pt := range path {
			if math.IsNaN(pt.X) || math.IsNaN(pt.Y) {
				return nil
			}
			x := pt.X
			for x-x0 > 180 {
				x -= 360
			}
			for x0-x > 180 {
				x += 360
			}
			out[k][m] = geom.Point{X: x, Y: pt.Y}
		}
	}
	return out
}
