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
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// gridPoint is a cell center held in the spatial index.
type gridPoint struct {
	geom.Point
	idx int
}

// buildNearestS2D assigns each destination cell the value of the
// nearest source cell center.
func (r *Regridder) buildNearestS2D() error {
	sy, sx := r.src.Shape()
	tree := rtree.NewTree(25, 50)
	shifts := []float64{0}
	if r.periodic {
		shifts = []float64{-360, 0, 360}
	}
	n := 0
	for j := 0; j < sy; j++ {
		for i := 0; i < sx; i++ {
			x, y := r.src.LonAt(j, i), r.src.LatAt(j, i)
			if math.IsNaN(x) || math.IsNaN(y) {
				continue
			}
			for _, shift := range shifts {
				tree.Insert(&gridPoint{Point: geom.Point{X: x + shift, Y: y}, idx: j*sx + i})
			}
			n++
		}
	}
	dy, dx := r.dst.Shape()
	rows := make([][]weight, dy*dx)
	if n == 0 {
		r.rows = rows
		return nil
	}
	for c := range rows {
		j, i := c/dx, c%dx
		plon, plat := r.dst.LonAt(j, i), r.dst.LatAt(j, i)
		if math.IsNaN(plon) || math.IsNaN(plat) {
			continue
		}
		gp := tree.NearestNeighbor(geom.Point{X: plon, Y: plat}).(*gridPoint)
		rows[c] = []weight{{idx: gp.idx, w: 1}}
	}
	r.rows = rows
	return nil
}

// buildNearestD2S routes each source cell to the destination cell
// whose center is nearest, so a destination cell receiving several
// source cells sums their values.
func (r *Regridder) buildNearestD2S() error {
	dy, dx := r.dst.Shape()
	tree := rtree.NewTree(25, 50)
	n := 0
	for j := 0; j < dy; j++ {
		for i := 0; i < dx; i++ {
			x, y := r.dst.LonAt(j, i), r.dst.LatAt(j, i)
			if math.IsNaN(x) || math.IsNaN(y) {
				continue
			}
			tree.Insert(&gridPoint{Point: geom.Point{X: x, Y: y}, idx: j*dx + i})
			n++
		}
	}
	rows := make([][]weight, dy*dx)
	if n == 0 {
		r.rows = rows
		return nil
	}
	shifts := []float64{0}
	if r.periodic {
		shifts = []float64{-360, 0, 360}
	}
	sy, sx := r.src.Shape()
	for j := 0; j < sy; j++ {
		for i := 0; i < sx; i++ {
			x, y := r.src.LonAt(j, i), r.src.LatAt(j, i)
			if math.IsNaN(x) || math.IsNaN(y) {
				continue
			}
			best, bestDist := -1, math.Inf(1)
			for _, shift := range shifts {
				p := geom.Point{X: x + shift, Y: y}
				gp := tree.NearestNeighbor(p).(*gridPoint)
				if d := math.Hypot(gp.X-p.X, gp.Y-p.Y); d < bestDist {
					best, bestDist = gp.idx, d
				}
			}
			rows[best] = append(rows[best], weight{idx: j*sx + i, w: 1})
		}
	}
	r.rows = rows
	return nil
}
