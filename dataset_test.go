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

package oceanval

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

func different(a, b, tolerance float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return false
	}
	if a == b {
		return false
	}
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func newDense(shape []int, data []float64) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	copy(a.Elements, data)
	return a
}

func arrayCompare(have, want *sparse.DenseArray, tolerance float64, name string, t *testing.T) {
	if !reflect.DeepEqual(want.Shape, have.Shape) {
		t.Errorf("%s: want shape %v but have shape %v", name, want.Shape, have.Shape)
		return
	}
	for i, wantv := range want.Elements {
		if different(have.Elements[i], wantv, tolerance) {
			t.Errorf("%s, element %d: want %g but have %g", name, i, wantv, have.Elements[i])
		}
	}
}

func TestDatasetWriteRead(t *testing.T) {
	d := NewDataset()
	lons := []float64{-2, -1, 0, 1, 2}
	lats := []float64{-1, 0, 1}
	d.Lon = newDense([]int{5}, lons)
	d.Lat = newDense([]int{3}, lats)
	d.LonB = boundsFromCenters(lons)
	d.LatB = boundsFromCenters(lats)
	d.Mask = newDense([]int{3, 5}, []float64{
		1, 1, 0, 1, 1,
		1, 1, 1, 1, 1,
		0, 1, 1, 1, 0,
	})
	d.Time = []time.Time{
		time.Date(2000, 1, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 2, 15, 0, 0, 0, 0, time.UTC),
	}
	data := sparse.ZerosDense(2, 3, 5)
	for i := range data.Elements {
		data.Elements[i] = float64(i) * 0.25
	}
	data.Elements[7] = math.NaN()
	d.AddVariable("tos", []string{TimeDim, YDim, XDim},
		"sea surface temperature", "degC", data)
	d.Attrs["source"] = "unit test"
	d.Bounds = &SpatialBounds{Lon: [2]float64{-2.5, 2.5}, Lat: [2]float64{-1.5, 1.5}}

	fname := filepath.Join(t.TempDir(), "dataset.nc")
	if err := d.WriteFile(fname); err != nil {
		t.Fatal(err)
	}
	d2, err := ReadDatasetFile(fname)
	if err != nil {
		t.Fatal(err)
	}

	arrayCompare(d2.Lon, d.Lon, 1e-10, "lon", t)
	arrayCompare(d2.Lat, d.Lat, 1e-10, "lat", t)
	arrayCompare(d2.LonB, d.LonB, 1e-10, "lon_b", t)
	arrayCompare(d2.LatB, d.LatB, 1e-10, "lat_b", t)
	arrayCompare(d2.Mask, d.Mask, 0, "mask", t)
	if !reflect.DeepEqual(d2.Time, d.Time) {
		t.Errorf("want time %v but have %v", d.Time, d2.Time)
	}
	v, ok := d2.Vars["tos"]
	if !ok {
		t.Fatalf("want variable tos but have %v", d2.VarNames())
	}
	if !reflect.DeepEqual(v.Dims, []string{TimeDim, YDim, XDim}) {
		t.Errorf("want dims [time y x] but have %v", v.Dims)
	}
	if v.Description != "sea surface temperature" || v.Units != "degC" {
		t.Errorf("attributes not preserved: %q, %q", v.Description, v.Units)
	}
	arrayCompare(v.Data, data, 1e-6, "tos", t)
	if d2.Attrs["source"] != "unit test" {
		t.Errorf("want global attribute source=%q but have %q", "unit test", d2.Attrs["source"])
	}
	if d2.Attrs["data_version"] != DataVersion {
		t.Errorf("want data_version %q but have %q", DataVersion, d2.Attrs["data_version"])
	}
	if d2.Bounds == nil {
		t.Fatal("want bounds to survive a write-read cycle")
	}
	if d2.Bounds.Lon != d.Bounds.Lon || d2.Bounds.Lat != d.Bounds.Lat {
		t.Errorf("want bounds %v, %v but have %v, %v",
			d.Bounds.Lon, d.Bounds.Lat, d2.Bounds.Lon, d2.Bounds.Lat)
	}
}

func TestDatasetWriteReadSeasonal(t *testing.T) {
	d := NewDataset()
	d.Lon = newDense([]int{2}, []float64{0, 1})
	d.Lat = newDense([]int{2}, []float64{0, 1})
	d.Seasons = append([]string{}, seasonLabels...)
	data := sparse.ZerosDense(4, 2, 2)
	for i := range data.Elements {
		data.Elements[i] = float64(i)
	}
	d.AddVariable("sos", []string{SeasonDim, YDim, XDim}, "sea surface salinity", "1e-3", data)

	fname := filepath.Join(t.TempDir(), "seasonal.nc")
	if err := d.WriteFile(fname); err != nil {
		t.Fatal(err)
	}
	d2, err := ReadDatasetFile(fname)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d2.Seasons, []string{"DJF", "MAM", "JJA", "SON"}) {
		t.Errorf("want seasons [DJF MAM JJA SON] but have %v", d2.Seasons)
	}
	arrayCompare(d2.Vars["sos"].Data, data, 1e-6, "sos", t)
}

func TestDatasetWriteReadSeries(t *testing.T) {
	// A dataset holding only a time series, with no grid at all.
	d := NewDataset()
	d.Time = []time.Time{
		time.Date(2010, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2010, 2, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2010, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	d.AddVariable("siext", []string{TimeDim}, "sea ice extent", "1e6 km2",
		newDense([]int{3}, []float64{14.2, 14.8, 14.5}))

	fname := filepath.Join(t.TempDir(), "series.nc")
	if err := d.WriteFile(fname); err != nil {
		t.Fatal(err)
	}
	d2, err := ReadDatasetFile(fname)
	if err != nil {
		t.Fatal(err)
	}
	if d2.Lon != nil {
		t.Error("want no longitude coordinate")
	}
	arrayCompare(d2.Vars["siext"].Data, d.Vars["siext"].Data, 1e-6, "siext", t)
}

func TestDecodeTime(t *testing.T) {
	times, err := decodeTime([]float64{0, 36890.5}, "days since 1900-01-01")
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{
		time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2001, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	if !reflect.DeepEqual(times, want) {
		t.Errorf("want %v but have %v", want, times)
	}

	times, err = decodeTime([]float64{24}, "hours since 1950-01-01 00:00:00")
	if err != nil {
		t.Fatal(err)
	}
	if !times[0].Equal(time.Date(1950, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("want 1950-01-02 but have %v", times[0])
	}

	times, err = decodeTime([]float64{86400}, "seconds since 1970-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if !times[0].Equal(time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("want 1970-01-02 but have %v", times[0])
	}

	if _, err := decodeTime([]float64{0}, "fortnights since 1900-01-01"); err == nil {
		t.Error("want an error for an unsupported time unit")
	}
	if _, err := decodeTime([]float64{0}, "days after 1900-01-01"); err == nil {
		t.Error("want an error for malformed units")
	}
}

// TestReadPacked checks that scale/offset packed variables with fill
// values, as found in many observational archives, unpack on read.
func TestReadPacked(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "packed.nc")
	h := cdf.NewHeader([]string{"lat", "lon"}, []int{2, 2})
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddVariable("sst", []string{"lat", "lon"}, []int16{0})
	h.AddAttribute("sst", "scale_factor", []float64{0.01})
	h.AddAttribute("sst", "add_offset", []float64{10})
	h.AddAttribute("sst", "_FillValue", []int16{-999})
	h.Define()
	w, err := os.Create(fname)
	if err != nil {
		t.Fatal(err)
	}
	f, err := cdf.Create(w, h)
	if err != nil {
		t.Fatal(err)
	}
	for v, buf := range map[string]interface{}{
		"lat": []float64{0, 1},
		"lon": []float64{0, 1},
		"sst": []int16{100, 250, -999, 0},
	} {
		end := f.Header.Lengths(v)
		start := make([]int, len(end))
		if _, err := f.Writer(v, start, end).Write(buf); err != nil {
			t.Fatal(err)
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	d, err := ReadDatasetFile(fname)
	if err != nil {
		t.Fatal(err)
	}
	sst := d.Vars["sst"].Data
	want := newDense([]int{2, 2}, []float64{11, 12.5, math.NaN(), 10})
	arrayCompare(sst, want, 1e-10, "sst", t)
	if !reflect.DeepEqual(d.Vars["sst"].Dims, []string{YDim, XDim}) {
		t.Errorf("want canonical dims [y x] but have %v", d.Vars["sst"].Dims)
	}
}

func TestGridShape(t *testing.T) {
	d := rectDataset([]float64{0, 1, 2}, []float64{0, 1})
	ny, nx, err := d.GridShape()
	if err != nil {
		t.Fatal(err)
	}
	if ny != 2 || nx != 3 {
		t.Errorf("want shape (2, 3) but have (%d, %d)", ny, nx)
	}
	if _, _, err := NewDataset().GridShape(); err == nil {
		t.Error("want an error for a dataset with no coordinates")
	}
}
