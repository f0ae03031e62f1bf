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
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// buildBilinear computes bilinear interpolation weights. Destination
// points outside the source cell-center hull get no weights and so
// become NaN, except across the seam of a periodic source grid.
func (r *Regridder) buildBilinear() error {
	if r.src.Rectilinear() {
		return r.buildBilinearRect()
	}
	return r.buildBilinearCurv()
}

func (r *Regridder) buildBilinearRect() error {
	lons := r.src.Lon.Elements
	lats := r.src.Lat.Elements
	_, sx := r.src.Shape()
	dy, dx := r.dst.Shape()
	rows := make([][]weight, dy*dx)
	for c := range rows {
		j, i := c/dx, c%dx
		plon, plat := r.dst.LonAt(j, i), r.dst.LatAt(j, i)
		if math.IsNaN(plon) || math.IsNaN(plat) {
			continue
		}
		i0, i1, fx, ok := lonInterval(lons, plon, r.periodic)
		if !ok {
			continue
		}
		j0, j1, fy, ok := axisInterval(lats, plat)
		if !ok {
			continue
		}
		rows[c] = []weight{
			{j0*sx + i0, (1 - fx) * (1 - fy)},
			{j0*sx + i1, fx * (1 - fy)},
			{j1*sx + i0, (1 - fx) * fy},
			{j1*sx + i1, fx * fy},
		}
	}
	r.rows = rows
	return nil
}

// axisInterval finds the pair of adjacent cell centers bracketing p on
// an ascending or descending axis, and the fractional position of p
// between them.
func axisInterval(vals []float64, p float64) (i0, i1 int, frac float64, ok bool) {
	n := len(vals)
	if n == 0 {
		return 0, 0, 0, false
	}
	if n == 1 {
		if vals[0] == p {
			return 0, 0, 0, true
		}
		return 0, 0, 0, false
	}
	if vals[n-1] >= vals[0] { // ascending
		if p < vals[0] || p > vals[n-1] {
			return 0, 0, 0, false
		}
		k := sort.SearchFloat64s(vals, p)
		if k == 0 {
			return 0, 0, 0, true
		}
		i0, i1 = k-1, k
	} else { // descending
		if p > vals[0] || p < vals[n-1] {
			return 0, 0, 0, false
		}
		k := sort.Search(n, func(m int) bool { return vals[m] <= p })
		if k == 0 {
			return 0, 0, 0, true
		}
		i0, i1 = k-1, k
	}
	span := vals[i1] - vals[i0]
	if span == 0 {
		return i0, i1, 0, true
	}
	return i0, i1, (p - vals[i0]) / span, true
}

// lonInterval is axisInterval along longitude, additionally bracketing
// points inside the seam gap of a periodic grid between the last and
// first cell centers.
func lonInterval(lons []float64, p float64, periodic bool) (i0, i1 int, frac float64, ok bool) {
	i0, i1, frac, ok = axisInterval(lons, p)
	if ok || !periodic {
		return i0, i1, frac, ok
	}
	n := len(lons)
	if n < 2 || lons[n-1] < lons[0] {
		return 0, 0, 0, false
	}
	span := lons[0] + 360 - lons[n-1]
	if span <= 0 {
		return 0, 0, 0, false
	}
	pp := p
	if pp < lons[n-1] {
		pp += 360
	}
	if pp < lons[n-1] || pp > lons[0]+360 {
		return 0, 0, 0, false
	}
	return n - 1, 0, (pp - lons[n-1]) / span, true
}

// quadCell is the quadrilateral spanned by four adjacent cell centers
// of a curvilinear grid. j and i index its lower-left corner.
type quadCell struct {
	b    *geom.Bounds
	j, i int

	// i2 is the x index of the right-hand corners, which differs from
	// i+1 only for quads bridging the periodic seam.
	i2 int

	// Corner coordinates in the order (j,i), (j,i2), (j+1,i2), (j+1,i).
	x, y [4]float64
}

func (q *quadCell) Bounds() *geom.Bounds {
	return q.b
}

func (r *Regridder) buildBilinearCurv() error {
	sy, sx := r.src.Shape()
	tree := rtree.NewTree(25, 50)
	shifts := []float64{0}
	if r.periodic {
		shifts = []float64{-360, 0, 360}
	}
	insert := func(j, i, i2 int) {
		x := [4]float64{r.src.LonAt(j, i), r.src.LonAt(j, i2), r.src.LonAt(j+1, i2), r.src.LonAt(j+1, i)}
		y := [4]float64{r.src.LatAt(j, i), r.src.LatAt(j, i2), r.src.LatAt(j+1, i2), r.src.LatAt(j+1, i)}
		for k := 0; k < 4; k++ {
			if math.IsNaN(x[k]) || math.IsNaN(y[k]) {
				return
			}
		}
		// Bring all corners into a continuous longitude window.
		for k := 1; k < 4; k++ {
			for x[k]-x[0] > 180 {
				x[k] -= 360
			}
			for x[0]-x[k] > 180 {
				x[k] += 360
			}
		}
		for _, shift := range shifts {
			q := &quadCell{j: j, i: i, i2: i2}
			for k := 0; k < 4; k++ {
				q.x[k] = x[k] + shift
				q.y[k] = y[k]
			}
			b := geom.NewBounds()
			for k := 0; k < 4; k++ {
				b.Extend(&geom.Bounds{
					Min: geom.Point{X: q.x[k], Y: q.y[k]},
					Max: geom.Point{X: q.x[k], Y: q.y[k]},
				})
			}
			q.b = b
			tree.Insert(q)
		}
	}
	for j := 0; j < sy-1; j++ {
		for i := 0; i < sx-1; i++ {
			insert(j, i, i+1)
		}
		if r.periodic && sx > 2 {
			insert(j, sx-1, 0)
		}
	}
	dy, dx := r.dst.Shape()
	rows := make([][]weight, dy*dx)
	for c := range rows {
		j, i := c/dx, c%dx
		plon, plat := r.dst.LonAt(j, i), r.dst.LatAt(j, i)
		if math.IsNaN(plon) || math.IsNaN(plat) {
			continue
		}
		pb := &geom.Bounds{
			Min: geom.Point{X: plon, Y: plat},
			Max: geom.Point{X: plon, Y: plat},
		}
		for _, qI := range tree.SearchIntersect(pb) {
			q := qI.(*quadCell)
			s, t, ok := invBilinear(plon, plat, q.x, q.y)
			if !ok {
				continue
			}
			rows[c] = []weight{
				{q.j*sx + q.i, (1 - s) * (1 - t)},
				{q.j*sx + q.i2, s * (1 - t)},
				{(q.j+1)*sx + q.i2, s * t},
				{(q.j+1)*sx + q.i, (1 - s) * t},
			}
			break
		}
	}
	r.rows = rows
	return nil
}

// invBilinear inverts the bilinear map of the quadrilateral with
// corners (x[k], y[k]) to find the local coordinates (s, t) of point
// (px, py), using Newton iteration. ok is false when the point lies
// outside the quadrilateral or the iteration does not converge.
func invBilinear(px, py float64, x, y [4]float64) (s, t float64, ok bool) {
	ax, ay := x[0], y[0]
	bx, by := x[1]-x[0], y[1]-y[0]
	dx, dy := x[3]-x[0], y[3]-y[0]
	ex, ey := x[0]-x[1]+x[2]-x[3], y[0]-y[1]+y[2]-y[3]
	s, t = 0.5, 0.5
	converged := false
	for it := 0; it < 25; it++ {
		fx := ax + s*bx + t*dx + s*t*ex - px
		fy := ay + s*by + t*dy + s*t*ey - py
		j11 := bx + t*ex
		j12 := dx + s*ex
		j21 := by + t*ey
		j22 := dy + s*ey
		det := j11*j22 - j12*j21
		if det == 0 {
			return 0, 0, false
		}
		ds := (fx*j22 - fy*j12) / det
		dt := (fy*j11 - fx*j21) / det
		s -= ds
		t -= dt
		if math.Abs(ds) < 1e-12 && math.Abs(dt) < 1e-12 {
			converged = true
			break
		}
	}
	const eps = 1e-9
	if !converged || math.IsNaN(s) || math.IsNaN(t) ||
		s < -eps || s > 1+eps || t < -eps || t > 1+eps {
		return 0, 0, false
	}
	return math.Min(1, math.Max(0, s)), math.Min(1, math.Max(0, t)), true
}
