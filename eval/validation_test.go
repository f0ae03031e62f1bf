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

// Package eval evaluates the complete validation workflow, from the
// command-line interface through observation loading, regridding, and
// statistics, against synthetic fields with known errors.
package eval

import (
	"bytes"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/tealeg/xlsx"

	"github.com/oceanmodel/oceanval"
	"github.com/oceanmodel/oceanval/oceanvalutil"
)

func axis(vals ...float64) *sparse.DenseArray {
	a := sparse.ZerosDense(len(vals))
	copy(a.Elements, vals)
	return a
}

func filled(v float64, shape ...int) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	for i := range a.Elements {
		a.Elements[i] = v
	}
	return a
}

var evalTimes = []time.Time{
	time.Date(2000, time.January, 15, 0, 0, 0, 0, time.UTC),
	time.Date(2000, time.February, 15, 0, 0, 0, 0, time.UTC),
	time.Date(2000, time.March, 15, 0, 0, 0, 0, time.UTC),
}

// evalModel builds a 4x4 model dataset with engineered errors: sea
// surface temperature runs one degree warm per row of latitude, and
// the sea ice concentration drops below the 15% extent threshold along
// the northernmost row in February.
func evalModel() *oceanval.Dataset {
	d := oceanval.NewDataset()
	d.Lon = axis(0, 10, 20, 30)
	d.Lat = axis(50, 60, 70, 80)
	d.Mask = filled(1, 4, 4)
	d.Time = append([]time.Time{}, evalTimes...)

	sst := sparse.ZerosDense(3, 4, 4)
	for i := range sst.Elements {
		y := i / 4 % 4
		sst.Elements[i] = 14 + float64(y)
	}
	d.AddVariable("tos_con", []string{oceanval.TimeDim, oceanval.YDim, oceanval.XDim},
		"sea surface conservative temperature", "degC", sst)

	sic := sparse.ZerosDense(3, 4, 4)
	for i := range sic.Elements {
		t, y := i/16, i/4%4
		switch {
		case t == 1 && y == 3:
			sic.Elements[i] = 0.1
		case t == 2:
			sic.Elements[i] = 0.7
		default:
			sic.Elements[i] = 0.9
		}
	}
	d.AddVariable("siconc", []string{oceanval.TimeDim, oceanval.YDim, oceanval.XDim},
		"sea ice area fraction", "1", sic)

	d.AddVariable("areacello", []string{oceanval.YDim, oceanval.XDim},
		"grid cell area", "m2", filled(1, 4, 4))
	return d
}

// oisstObject covers the full model grid with a constant 14 degree sea
// surface temperature.
func oisstObject() *oceanval.Dataset {
	d := oceanval.NewDataset()
	d.Lon = axis(0, 10, 20, 30)
	d.Lat = axis(50, 60, 70, 80)
	d.Time = append([]time.Time{}, evalTimes...)
	d.AddVariable("sst", []string{oceanval.TimeDim, oceanval.YDim, oceanval.XDim},
		"sea surface temperature", "degC", filled(14, 3, 4, 4))
	return d
}

// nsidcObject covers the three northernmost model rows with a constant
// 50% concentration and carries a stored total area series.
func nsidcObject() *oceanval.Dataset {
	d := oceanval.NewDataset()
	d.Lon = axis(0, 10, 20, 30)
	d.Lat = axis(60, 70, 80)
	d.Time = append([]time.Time{}, evalTimes...)
	d.AddVariable("siconc", []string{oceanval.TimeDim, oceanval.YDim, oceanval.XDim},
		"sea ice area fraction", "1", filled(0.5, 3, 3, 4))
	d.AddVariable("areacello", []string{oceanval.YDim, oceanval.XDim},
		"grid cell area", "m2", filled(1, 3, 4))
	d.AddVariable("siarea", []string{oceanval.TimeDim},
		"sea ice area", "m2", axis(10, 9, 11))
	return d
}

func writeArchive(t *testing.T, dir string) {
	t.Helper()
	objects := map[string]*oceanval.Dataset{
		filepath.Join("OISSTv2", "OISSTv2_sst_global_monthly_1981_2025.nc"):  oisstObject(),
		filepath.Join("NSIDC", "NSIDC_Sea_Ice_Index_v3_Arctic_1978_2025.nc"): nsidcObject(),
	}
	for path, d := range objects {
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), os.ModePerm); err != nil {
			t.Fatal(err)
		}
		if err := d.WriteFile(full); err != nil {
			t.Fatal(err)
		}
	}
}

func checkField(t *testing.T, file, name string, shape []int, want func(i int) float64) {
	t.Helper()
	d, err := oceanval.ReadDatasetFile(file)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := d.Vars[name]
	if !ok {
		t.Fatalf("%s: no variable %s (found %v)", file, name, d.VarNames())
	}
	if !reflect.DeepEqual(v.Data.Shape, shape) {
		t.Fatalf("%s %s: want shape %v but have %v", file, name, shape, v.Data.Shape)
	}
	for i, have := range v.Data.Elements {
		if w := want(i); math.Abs(have-w) > 1e-4 {
			t.Errorf("%s %s [%d]: want %g but have %g", file, name, i, w, have)
		}
	}
}

// TestValidationSuite runs the sea surface temperature, sea ice
// concentration, and sea ice area validations through the command-line
// interface and checks the resulting error fields, series, statistics,
// and served figures against the engineered errors.
func TestValidationSuite(t *testing.T) {
	if testing.Short() {
		return
	}

	dir := t.TempDir()
	writeArchive(t, dir)
	archive := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer archive.Close()

	modelFile := filepath.Join(dir, "model.nc")
	if err := evalModel().WriteFile(modelFile); err != nil {
		t.Fatal(err)
	}

	oceanvalutil.Cfg.Set("ModelData", modelFile)
	oceanvalutil.Cfg.Set("LogFile", filepath.Join(dir, "validation.log"))
	oceanvalutil.Cfg.Set("Obs.BaseURL", archive.URL)
	oceanvalutil.Cfg.Set("Obs.CacheDir", filepath.Join(dir, "downloads"))
	oceanvalutil.Cfg.Set("Validate.Stats", true)

	// The error fields live on different grids, so each validation
	// writes its own output file.
	passes := []struct {
		name    string
		outputs map[string]string
	}{
		{"sst", map[string]string{"sst_error": "tos_con_error"}},
		{"siconc", map[string]string{"siconc_error": "siconc_error"}},
		{"siarea", map[string]string{"siarea": "siarea", "siarea_obs": "siarea_nsidc"}},
	}
	for _, p := range passes {
		oceanvalutil.Cfg.Set("Validate.Variables", []string{p.name})
		oceanvalutil.Cfg.Set("OutputVariables", p.outputs)
		oceanvalutil.Cfg.Set("OutputFile", filepath.Join(dir, p.name+"_eval.nc"))
		oceanvalutil.Root.SetArgs([]string{"validate"})
		if err := oceanvalutil.Root.Execute(); err != nil {
			t.Fatalf("validating %s: %v", p.name, err)
		}
	}

	// The model runs one degree warm per row of latitude.
	checkField(t, filepath.Join(dir, "sst_eval.nc"), "sst_error", []int{1, 4, 4},
		func(i int) float64 { return float64(i / 4 % 4) })

	// The March concentration is 0.7 against 0.5 observed, compared on
	// the three rows the observations cover.
	checkField(t, filepath.Join(dir, "siconc_eval.nc"), "siconc_error", []int{1, 3, 4},
		func(int) float64 { return 0.2 })

	// With unit cell areas the modelled ice area is the count of cells
	// above 15% concentration in the observed region: 12, then 8 when
	// the northernmost row melts out, then 12 again.
	modelSeries := []float64{12, 8, 12}
	obsSeries := []float64{10, 9, 11}
	checkField(t, filepath.Join(dir, "siarea_eval.nc"), "siarea", []int{1, 3},
		func(i int) float64 { return modelSeries[i] })
	checkField(t, filepath.Join(dir, "siarea_eval.nc"), "siarea_obs", []int{3},
		func(i int) float64 { return obsSeries[i] })

	statsFile := filepath.Join(dir, "eval_stats.xlsx")
	oceanvalutil.Cfg.Set("Validate.Variables", []string{"sst", "siconc", "siarea"})
	oceanvalutil.Cfg.Set("Stats.OutputFile", statsFile)
	out := new(bytes.Buffer)
	oceanvalutil.Root.SetOut(out)
	defer oceanvalutil.Root.SetOut(nil)
	oceanvalutil.Root.SetArgs([]string{"stats"})
	if err := oceanvalutil.Root.Execute(); err != nil {
		t.Fatal(err)
	}

	f, err := xlsx.OpenFile(statsFile)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := f.Sheet["statistics"]
	if !ok {
		t.Fatal("no statistics sheet")
	}
	stats := make(map[string]float64)
	for i := 1; i < s.MaxRow; i++ {
		v, err := s.Cell(i, 2).Float()
		if err != nil {
			t.Fatal(err)
		}
		stats[s.Cell(i, 0).Value] = v
	}
	want := map[string]float64{
		"sst_mae":  1.5,
		"sst_mse":  3.5,
		"sst_rmse": math.Sqrt(3.5),

		"siconc_mae":  0.2,
		"siconc_mse":  0.04,
		"siconc_rmse": 0.2,

		"siarea_mae":       4.0 / 3,
		"siarea_mse":       2,
		"siarea_rmse":      math.Sqrt2,
		"siarea_pearson_r": math.Sqrt(3) / 2,
	}
	for name, w := range want {
		have, ok := stats[name]
		if !ok {
			t.Errorf("no %s statistic; have %v", name, stats)
			continue
		}
		if math.Abs(have-w) > 1e-4 {
			t.Errorf("%s: want %g but have %g", name, w, have)
		}
	}
}

// TestValidationFigures serves the same validations over HTTP and
// checks that the index and the rendered figures come back.
func TestValidationFigures(t *testing.T) {
	if testing.Short() {
		return
	}

	dir := t.TempDir()
	writeArchive(t, dir)
	archive := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer archive.Close()

	modelFile := filepath.Join(dir, "model.nc")
	if err := evalModel().WriteFile(modelFile); err != nil {
		t.Fatal(err)
	}

	h, err := oceanvalutil.NewResultsHandler(&oceanvalutil.ServerConfig{
		ModelData:   modelFile,
		Validations: []string{"sst", "siconc", "siarea"},
		Stats:       true,
		ObsBaseURL:  archive.URL,
		ObsCacheDir: filepath.Join(dir, "downloads"),
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index status: want %d but have %d", http.StatusOK, resp.StatusCode)
	}

	for _, path := range []string{
		"/legend/tos_con_error",
		"/legend/siconc_error",
		"/timeseries/siarea",
		"/scatter/siarea/siarea_nsidc",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		body := new(bytes.Buffer)
		if _, err := body.ReadFrom(resp.Body); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status: want %d but have %d: %s", path, http.StatusOK, resp.StatusCode, body)
		}
		if !bytes.HasPrefix(body.Bytes(), []byte("\x89PNG")) {
			t.Errorf("%s response is not a PNG", path)
		}
	}
}
