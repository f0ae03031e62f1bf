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
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/tealeg/xlsx"

	"github.com/oceanmodel/oceanval"
)

func scalarEntry(name, units string, v float64) *oceanval.Entry {
	data := sparse.ZerosDense()
	data.Elements[0] = v
	return &oceanval.Entry{Name: name, Units: units, Data: data}
}

func TestPrintStats(t *testing.T) {
	rs := oceanval.NewResultSet()
	rs.Put(scalarEntry("sst_rmse", "degC", 1))
	rs.Put(scalarEntry("sst_mae", "degC", 0.5))
	buf := new(bytes.Buffer)
	printStats(buf, rs)
	want := "sst_mae\t0.5\tdegC\nsst_rmse\t1\tdegC\n"
	if buf.String() != want {
		t.Errorf("have %q, want %q", buf.String(), want)
	}
}

func TestWriteStatsXLSX(t *testing.T) {
	rs := oceanval.NewResultSet()
	rs.Put(scalarEntry("sst_rmse", "degC", 1))
	seasonal := sparse.ZerosDense(4)
	for i := range seasonal.Elements {
		seasonal.Elements[i] = float64(i)
	}
	rs.Put(&oceanval.Entry{
		Name:  "sst_mae",
		Dims:  []string{oceanval.SeasonDim},
		Units: "degC",
		Data:  seasonal,
	})

	file := filepath.Join(t.TempDir(), "stats.xlsx")
	if err := writeStatsXLSX(rs, file); err != nil {
		t.Fatal(err)
	}
	f, err := xlsx.OpenFile(file)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := f.Sheet["statistics"]
	if !ok {
		t.Fatal("the workbook has no statistics sheet")
	}
	if s.Cell(0, 0).Value != "statistic" {
		t.Errorf("header is %q, want statistic", s.Cell(0, 0).Value)
	}
	if s.Cell(1, 0).Value != "sst_mae" || s.Cell(1, 1).Value != "degC" {
		t.Errorf("first row is %q %q", s.Cell(1, 0).Value, s.Cell(1, 1).Value)
	}
	// A per-season statistic takes one value cell per season.
	for i := 0; i < 4; i++ {
		v, err := s.Cell(1, 2+i).Float()
		if err != nil {
			t.Fatal(err)
		}
		if v != float64(i) {
			t.Errorf("season %d = %g, want %d", i, v, i)
		}
	}
	v, err := s.Cell(2, 2).Float()
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Errorf("sst_rmse = %g, want 1", v)
	}
}

func TestRunStatsOutputExtension(t *testing.T) {
	vc := &ValidationConfig{Variables: []string{"sst"}}
	err := RunStats(statsCmd, "model.nc", vc, "stats.csv")
	if err == nil || !strings.Contains(err.Error(), "use .xlsx") {
		t.Errorf("want an extension error, have %v", err)
	}
}
