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
	"reflect"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

func different(a, b, tolerance float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return false
	}
	if a == b {
		return false
	}
	if math.Abs(a-b)/math.Abs(b) > tolerance || math.Abs(a-b)/math.Abs(a) > tolerance {
		return true
	}
	return false
}

func newDense(shape []int, vals []float64) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	copy(a.Elements, vals)
	return a
}

// edges returns cell edges at the midpoints between centers, with the
// end edges extrapolated by half the neighboring spacing.
func edges(centers []float64) []float64 {
	n := len(centers)
	e := make([]float64, n+1)
	if n == 1 {
		e[0], e[1] = centers[0]-0.5, centers[0]+0.5
		return e
	}
	for i := 1; i < n; i++ {
		e[i] = (centers[i-1] + centers[i]) / 2
	}
	e[0] = centers[0] - (centers[1]-centers[0])/2
	e[n] = centers[n-1] + (centers[n-1]-centers[n-2])/2
	return e
}

func rectGrid(t *testing.T, lons, lats []float64, withBounds bool) *Grid {
	var lonB, latB *sparse.DenseArray
	if withBounds {
		lonB = newDense([]int{len(lons) + 1}, edges(lons))
		latB = newDense([]int{len(lats) + 1}, edges(lats))
	}
	g, err := NewGrid(
		newDense([]int{len(lons)}, lons),
		newDense([]int{len(lats)}, lats),
		lonB, latB)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// planeField fills a [ny, nx] array with a + b·lon + c·lat, a field
// that bilinear interpolation reproduces exactly.
func planeField(g *Grid, a, b, c float64) *sparse.DenseArray {
	ny, nx := g.Shape()
	f := sparse.ZerosDense(ny, nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			f.Elements[f.Index1d(j, i)] = a + b*g.LonAt(j, i) + c*g.LatAt(j, i)
		}
	}
	return f
}

func TestParseMethod(t *testing.T) {
	for _, s := range []string{"bilinear", "conservative", "conservative_normed", "nearest_s2d", "nearest_d2s"} {
		m, err := ParseMethod(s)
		if err != nil {
			t.Errorf("%s: %v", s, err)
		}
		if string(m) != s {
			t.Errorf("%s: got %s", s, m)
		}
	}
	if _, err := ParseMethod("patch"); err == nil {
		t.Error("expected error for unsupported method")
	}
}

func TestPeriodic(t *testing.T) {
	global := rectGrid(t, []float64{-179.5, -90, 0, 90, 179.5}, []float64{-45, 0, 45}, false)
	if !global.Periodic() {
		t.Error("global grid should be periodic")
	}
	regional := rectGrid(t, []float64{-9.5, 0, 9.5}, []float64{-45, 0, 45}, false)
	if regional.Periodic() {
		t.Error("regional grid should not be periodic")
	}
}

func TestNewGridErrors(t *testing.T) {
	lon1 := newDense([]int{3}, []float64{0, 1, 2})
	lat1 := newDense([]int{2}, []float64{0, 1})
	if _, err := NewGrid(nil, lat1, nil, nil); err == nil {
		t.Error("expected error for missing longitude centers")
	}
	lon2 := sparse.ZerosDense(2, 3)
	if _, err := NewGrid(lon2, lat1, nil, nil); err == nil {
		t.Error("expected error for mixed coordinate dimensionality")
	}
	if _, err := NewGrid(lon1, lat1, newDense([]int{4}, []float64{-0.5, 0.5, 1.5, 2.5}), nil); err == nil {
		t.Error("expected error for one-sided boundary coordinates")
	}
	badB := newDense([]int{3}, []float64{-0.5, 0.5, 1.5})
	if _, err := NewGrid(lon1, lat1, badB, newDense([]int{3}, []float64{-0.5, 0.5, 1.5})); err == nil {
		t.Error("expected error for boundary length mismatch")
	}
}

func TestBilinearPlane(t *testing.T) {
	src := rectGrid(t, []float64{0, 1, 2, 3}, []float64{0, 1, 2}, false)
	dst := rectGrid(t, []float64{0.5, 1.5, 2.5}, []float64{0.25, 1.75}, false)
	r, err := New(src, dst, Bilinear)
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Apply(planeField(src, 2, 3, -0.5))
	if err != nil {
		t.Fatal(err)
	}
	for j := 0; j < 2; j++ {
		for i := 0; i < 3; i++ {
			want := 2 + 3*dst.LonAt(j, i) - 0.5*dst.LatAt(j, i)
			have := out.Get(j, i)
			if different(have, want, 1e-12) {
				t.Errorf("(%d, %d): have %g, want %g", j, i, have, want)
			}
		}
	}
}

func TestBilinearOutsideDomain(t *testing.T) {
	src := rectGrid(t, []float64{0, 1, 2}, []float64{0, 1, 2}, false)
	dst := rectGrid(t, []float64{1, 5}, []float64{1}, false)
	r, err := New(src, dst, Bilinear)
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Apply(planeField(src, 0, 1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if different(out.Get(0, 0), 1, 1e-12) {
		t.Errorf("inside point: have %g, want 1", out.Get(0, 0))
	}
	if !math.IsNaN(out.Get(0, 1)) {
		t.Errorf("point outside the source domain should be NaN; have %g", out.Get(0, 1))
	}
}

func TestBilinearPeriodicSeam(t *testing.T) {
	src := rectGrid(t, []float64{-179.5, -90, 0, 90, 179.5}, []float64{-10, 10}, false)
	dst := rectGrid(t, []float64{180, -180}, []float64{0}, false)
	r, err := New(src, dst, Bilinear)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Periodic() {
		t.Fatal("source grid should be periodic")
	}
	field := sparse.ZerosDense(2, 5)
	for i := range field.Elements {
		field.Elements[i] = 7
	}
	out, err := r.Apply(field)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if different(out.Get(0, i), 7, 1e-12) {
			t.Errorf("seam point %d: have %g, want 7", i, out.Get(0, i))
		}
	}
}

func TestBilinearCurvilinear(t *testing.T) {
	// A sheared grid: lon increases along x and drifts with y.
	lon := sparse.ZerosDense(3, 4)
	lat := sparse.ZerosDense(3, 4)
	for j := 0; j < 3; j++ {
		for i := 0; i < 4; i++ {
			lon.Elements[lon.Index1d(j, i)] = float64(i)*2 + float64(j)*0.3
			lat.Elements[lat.Index1d(j, i)] = float64(j)*2 + float64(i)*0.1
		}
	}
	src, err := NewGrid(lon, lat, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	dst := rectGrid(t, []float64{2.5, 4.1}, []float64{1.5, 2.5}, false)
	r, err := New(src, dst, Bilinear)
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Apply(planeField(src, 1, 2, 3))
	if err != nil {
		t.Fatal(err)
	}
	for j := 0; j < 2; j++ {
		for i := 0; i < 2; i++ {
			want := 1 + 2*dst.LonAt(j, i) + 3*dst.LatAt(j, i)
			have := out.Get(j, i)
			if different(have, want, 1e-9) {
				t.Errorf("(%d, %d): have %g, want %g", j, i, have, want)
			}
		}
	}
}

func TestConservative(t *testing.T) {
	src := rectGrid(t, []float64{-1, 1}, []float64{-1, 1}, true)
	dst := rectGrid(t, []float64{-1.5, -0.5, 0.5, 1.5}, []float64{-1.5, -0.5, 0.5, 1.5}, true)
	r, err := New(src, dst, Conservative)
	if err != nil {
		t.Fatal(err)
	}
	field := newDense([]int{2, 2}, []float64{1, 2, 3, 4})
	out, err := r.Apply(field)
	if err != nil {
		t.Fatal(err)
	}
	// Each refined cell lies inside exactly one source cell.
	want := []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}
	for c, w := range want {
		if different(out.Elements[c], w, 1e-9) {
			t.Errorf("cell %d: have %g, want %g", c, out.Elements[c], w)
		}
	}

	// Coarsening back recovers the equal-area mean of each quartet.
	back, err := New(dst, src, Conservative)
	if err != nil {
		t.Fatal(err)
	}
	coarse, err := back.Apply(out)
	if err != nil {
		t.Fatal(err)
	}
	for c, w := range []float64{1, 2, 3, 4} {
		if different(coarse.Elements[c], w, 1e-9) {
			t.Errorf("coarse cell %d: have %g, want %g", c, coarse.Elements[c], w)
		}
	}
}

func TestConservativeNormedNaN(t *testing.T) {
	src := rectGrid(t, []float64{-1, 1}, []float64{0}, true)
	dst := rectGrid(t, []float64{0}, []float64{0}, true)
	field := newDense([]int{1, 2}, []float64{math.NaN(), 4})

	r, err := New(src, dst, Conservative)
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Apply(field)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(out.Elements[0]) {
		t.Errorf("conservative should propagate NaN; have %g", out.Elements[0])
	}

	rn, err := New(src, dst, ConservativeNormed)
	if err != nil {
		t.Fatal(err)
	}
	outn, err := rn.Apply(field)
	if err != nil {
		t.Fatal(err)
	}
	if different(outn.Elements[0], 4, 1e-9) {
		t.Errorf("conservative_normed should renormalize around NaN; have %g, want 4", outn.Elements[0])
	}
}

func TestConservativeNoBounds(t *testing.T) {
	src := rectGrid(t, []float64{-1, 1}, []float64{0}, false)
	dst := rectGrid(t, []float64{0}, []float64{0}, true)
	if _, err := New(src, dst, Conservative); err == nil {
		t.Error("expected error for conservative regridding without boundary coordinates")
	}
}

func TestNearestS2D(t *testing.T) {
	src := rectGrid(t, []float64{0, 10}, []float64{0, 10}, false)
	dst := rectGrid(t, []float64{1, 9}, []float64{2}, false)
	r, err := New(src, dst, NearestS2D)
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Apply(newDense([]int{2, 2}, []float64{1, 2, 3, 4}))
	if err != nil {
		t.Fatal(err)
	}
	if out.Get(0, 0) != 1 || out.Get(0, 1) != 2 {
		t.Errorf("have %v, want [1 2]", out.Elements)
	}
}

func TestNearestD2S(t *testing.T) {
	src := rectGrid(t, []float64{0, 1, 9, 10}, []float64{0}, false)
	dst := rectGrid(t, []float64{0.5, 9.5}, []float64{0}, false)
	r, err := New(src, dst, NearestD2S)
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Apply(newDense([]int{1, 4}, []float64{1, 2, 3, 4}))
	if err != nil {
		t.Fatal(err)
	}
	// Each destination cell sums the source cells nearest to it.
	if different(out.Get(0, 0), 3, 1e-12) || different(out.Get(0, 1), 7, 1e-12) {
		t.Errorf("have %v, want [3 7]", out.Elements)
	}
}

func TestApplyLeadingAxes(t *testing.T) {
	src := rectGrid(t, []float64{0, 1}, []float64{0, 1}, false)
	dst := rectGrid(t, []float64{0.5}, []float64{0.5}, false)
	r, err := New(src, dst, Bilinear)
	if err != nil {
		t.Fatal(err)
	}
	data := newDense([]int{2, 2, 2}, []float64{
		1, 1, 1, 1,
		3, 3, 3, 3,
	})
	out, err := r.Apply(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Shape) != 3 || out.Shape[0] != 2 || out.Shape[1] != 1 || out.Shape[2] != 1 {
		t.Fatalf("output shape: have %v, want [2 1 1]", out.Shape)
	}
	if different(out.Get(0, 0, 0), 1, 1e-12) || different(out.Get(1, 0, 0), 3, 1e-12) {
		t.Errorf("have %v, want [1 3]", out.Elements)
	}

	if _, err := r.Apply(sparse.ZerosDense(3, 3)); err == nil {
		t.Error("expected error for field shape not matching the source grid")
	}
}

func checkQuad(p geom.Polygon, x0, y0, x1, y1 float64, name string, t *testing.T) {
	want := geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("%s: want %v but have %v", name, want, p)
	}
}

func TestCellPolygons(t *testing.T) {
	g := rectGrid(t, []float64{0, 10, 20}, []float64{40, 60, 85}, false)
	polys := g.CellPolygons()
	if len(polys) != 9 {
		t.Fatalf("want 9 polygons but have %d", len(polys))
	}
	checkQuad(polys[0], -5, 30, 5, 50, "southwest cell", t)
	// The estimated northern edge would be at 97.5 degrees latitude.
	checkQuad(polys[8], 15, 72.5, 25, 90, "northeast cell", t)

	g = rectGrid(t, []float64{0, 10, 20}, []float64{40, 60, 85}, true)
	checkQuad(g.CellPolygons()[8], 15, 72.5, 25, 97.5, "bounded northeast cell", t)

	g = rectGrid(t, []float64{5}, []float64{0}, false)
	polys = g.CellPolygons()
	if len(polys) != 1 {
		t.Fatalf("want 1 polygon but have %d", len(polys))
	}
	checkQuad(polys[0], 4.5, -0.5, 5.5, 0.5, "single cell", t)
}

func TestCellPolygonsCurvilinear(t *testing.T) {
	g, err := NewGrid(
		newDense([]int{2, 2}, []float64{0, 10, 0, 10}),
		newDense([]int{2, 2}, []float64{0, 0, 10, 10}),
		nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	polys := g.CellPolygons()
	if len(polys) != 4 {
		t.Fatalf("want 4 polygons but have %d", len(polys))
	}
	checkQuad(polys[0], -5, -5, 5, 5, "corner cell", t)
	checkQuad(polys[3], 5, 5, 15, 15, "opposite corner cell", t)
}
