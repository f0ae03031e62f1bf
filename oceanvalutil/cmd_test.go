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

package oceanvalutil

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/tealeg/xlsx"

	"github.com/oceanmodel/oceanval"
)

func constDense(v float64, shape ...int) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	for i := range a.Elements {
		a.Elements[i] = v
	}
	return a
}

func axisDense(vals ...float64) *sparse.DenseArray {
	a := sparse.ZerosDense(len(vals))
	copy(a.Elements, vals)
	return a
}

// testDataset builds a 3x3 dataset holding the named constant field
// over two timesteps.
func testDataset(name string, value float64) *oceanval.Dataset {
	d := oceanval.NewDataset()
	d.Lon = axisDense(1, 2, 3)
	d.Lat = axisDense(1, 2, 3)
	d.Mask = constDense(1, 3, 3)
	d.Time = []time.Time{
		time.Date(2000, time.January, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2000, time.February, 15, 0, 0, 0, 0, time.UTC),
	}
	d.AddVariable(name, []string{oceanval.TimeDim, oceanval.YDim, oceanval.XDim},
		"sea surface temperature", "degC", constDense(value, 2, 3, 3))
	return d
}

// obsArchive serves an archive holding a constant sea surface
// temperature object in the layout of the public one. The object
// contents are the same for every test so that cached copies are
// interchangeable.
func obsArchive(t *testing.T) *httptest.Server {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "OISSTv2"), os.ModePerm); err != nil {
		t.Fatal(err)
	}
	obsData := testDataset("sst", 14)
	if err := obsData.WriteFile(filepath.Join(dir, "OISSTv2", "OISSTv2_sst_global_monthly_1981_2025.nc")); err != nil {
		t.Fatal(err)
	}
	return httptest.NewServer(http.FileServer(http.Dir(dir)))
}

func TestVersionCmd(t *testing.T) {
	buf := new(bytes.Buffer)
	Root.SetOut(buf)
	defer Root.SetOut(nil)
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("OceanVal v%s\n", oceanval.Version)
	if buf.String() != want {
		t.Errorf("have %q, want %q", buf.String(), want)
	}
}

func TestObsCmd(t *testing.T) {
	buf := new(bytes.Buffer)
	Root.SetOut(buf)
	defer Root.SetOut(nil)
	Root.SetArgs([]string{"obs"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{
		"OISSTv2: sst, siconc",
		"NSIDC: siconc, siext, siarea, areacello",
		"LOPS: mld",
	} {
		if !strings.Contains(buf.String(), line) {
			t.Errorf("missing %q in:\n%s", line, buf.String())
		}
	}
}

func TestValidateCmd(t *testing.T) {
	srv := obsArchive(t)
	defer srv.Close()
	dir := t.TempDir()
	model := filepath.Join(dir, "model.nc")
	if err := testDataset("tos_con", 15).WriteFile(model); err != nil {
		t.Fatal(err)
	}
	outputFile := filepath.Join(dir, "validation.nc")

	Cfg.Set("ModelData", model)
	Cfg.Set("OutputFile", outputFile)
	Cfg.Set("LogFile", "")
	Cfg.Set("Obs.BaseURL", srv.URL)
	Cfg.Set("Obs.CacheDir", filepath.Join(dir, "downloads"))
	Root.SetArgs([]string{"validate"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}

	d, err := oceanval.ReadDatasetFile(outputFile)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := d.Vars["sst_error"]
	if !ok {
		t.Fatalf("no sst_error in the output; have %v", d.VarNames())
	}
	if want := []int{1, 3, 3}; !reflect.DeepEqual(v.Data.Shape, want) {
		t.Fatalf("sst_error shape is %v, want %v", v.Data.Shape, want)
	}
	for i, val := range v.Data.Elements {
		if math.Abs(val-1) > 1.e-4 {
			t.Errorf("sst_error element %d is %g, want 1", i, val)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "validation.log")); err != nil {
		t.Error(err)
	}
}

func TestStatsCmd(t *testing.T) {
	srv := obsArchive(t)
	defer srv.Close()
	dir := t.TempDir()
	model := filepath.Join(dir, "model.nc")
	if err := testDataset("tos_con", 15).WriteFile(model); err != nil {
		t.Fatal(err)
	}
	statsFile := filepath.Join(dir, "stats.xlsx")

	buf := new(bytes.Buffer)
	Root.SetOut(buf)
	defer Root.SetOut(nil)
	Cfg.Set("ModelData", model)
	Cfg.Set("Obs.BaseURL", srv.URL)
	Cfg.Set("Obs.CacheDir", filepath.Join(dir, "downloads"))
	Cfg.Set("Stats.OutputFile", statsFile)
	Root.SetArgs([]string{"stats"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "sst_rmse") {
		t.Errorf("printed statistics missing sst_rmse:\n%s", buf.String())
	}

	f, err := xlsx.OpenFile(statsFile)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := f.Sheet["statistics"]
	if !ok {
		t.Fatal("the workbook has no statistics sheet")
	}
	rows := make(map[string]float64)
	for i := 1; i < s.MaxRow; i++ {
		v, err := s.Cell(i, 2).Float()
		if err != nil {
			t.Fatal(err)
		}
		rows[s.Cell(i, 0).Value] = v
	}
	for _, name := range []string{"sst_mae", "sst_mse", "sst_rmse"} {
		v, ok := rows[name]
		if !ok {
			t.Errorf("the workbook has no %s row; have %v", name, rows)
			continue
		}
		if math.Abs(v-1) > 1.e-4 {
			t.Errorf("%s = %g, want 1", name, v)
		}
	}
}
