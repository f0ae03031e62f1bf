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
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lnashier/viper"

	"github.com/oceanmodel/oceanval"
	"github.com/oceanmodel/oceanval/regrid"
)

func TestParseTimeBounds(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		tb, err := ParseTimeBounds("", "", "")
		if err != nil {
			t.Fatal(err)
		}
		if !tb.IsZero() {
			t.Errorf("want a zero time selection, have %+v", tb)
		}
	})
	t.Run("label", func(t *testing.T) {
		tb, err := ParseTimeBounds("1991-2020", "", "")
		if err != nil {
			t.Fatal(err)
		}
		if tb.Label != "1991-2020" {
			t.Errorf("label is %q, want 1991-2020", tb.Label)
		}
	})
	t.Run("bad label", func(t *testing.T) {
		if _, err := ParseTimeBounds("1991", "", ""); err == nil {
			t.Error("want an error for a malformed period")
		}
	})
	t.Run("label and range", func(t *testing.T) {
		_, err := ParseTimeBounds("1991-2020", "1991-01-01", "2020-12-31")
		if err == nil || !strings.Contains(err.Error(), "both a climatology period") {
			t.Errorf("want a mutual exclusion error, have %v", err)
		}
	})
	t.Run("range", func(t *testing.T) {
		tb, err := ParseTimeBounds("", "1991-01-01", "2020-12-31")
		if err != nil {
			t.Fatal(err)
		}
		if want := time.Date(1991, time.January, 1, 0, 0, 0, 0, time.UTC); !tb.Start.Equal(want) {
			t.Errorf("start is %v, want %v", tb.Start, want)
		}
		if want := time.Date(2020, time.December, 31, 0, 0, 0, 0, time.UTC); !tb.End.Equal(want) {
			t.Errorf("end is %v, want %v", tb.End, want)
		}
	})
	t.Run("start only", func(t *testing.T) {
		_, err := ParseTimeBounds("", "1991-01-01", "")
		if err == nil || !strings.Contains(err.Error(), "must be set together") {
			t.Errorf("want a paired-variable error, have %v", err)
		}
	})
	t.Run("reversed range", func(t *testing.T) {
		if _, err := ParseTimeBounds("", "2020-12-31", "1991-01-01"); err == nil {
			t.Error("want an error for a reversed range")
		}
	})
}

func TestCheckOutputVars(t *testing.T) {
	if _, err := checkOutputVars(map[string]string{}); err == nil {
		t.Error("want an error for an empty output variable map")
	}

	os.Setenv("OCEANVAL_TEST_VAR", "tos_con_error")
	vars, err := checkOutputVars(map[string]string{
		"sst_error": "${OCEANVAL_TEST_VAR}\n+ 0",
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := "tos_con_error + 0"; vars["sst_error"] != want {
		t.Errorf("have %q, want %q", vars["sst_error"], want)
	}
}

func TestCheckOutputFile(t *testing.T) {
	if _, err := checkOutputFile(""); err == nil {
		t.Error("want an error for an empty output file")
	}
	if _, err := checkOutputFile("output.txt"); err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Errorf("want an extension error, have %v", err)
	}
	if _, err := checkOutputFile(filepath.Join(t.TempDir(), "missing", "output.nc")); err == nil {
		t.Error("want an error for a missing output directory")
	}
	f, err := checkOutputFile(filepath.Join(t.TempDir(), "output.nc"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(f) != "output.nc" {
		t.Errorf("have %q", f)
	}
}

func TestCheckLogFile(t *testing.T) {
	if f := checkLogFile("", "d/output.nc"); f != "d/output.log" {
		t.Errorf("have %q, want d/output.log", f)
	}
	if f := checkLogFile("my.log", "d/output.nc"); f != "my.log" {
		t.Errorf("have %q, want my.log", f)
	}
}

func TestValidationConfig(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := validationConfig(viper.New())
		if err == nil || !strings.Contains(err.Error(), "no validations specified") {
			t.Errorf("want a missing-validations error, have %v", err)
		}
	})
	t.Run("full", func(t *testing.T) {
		cfg := viper.New()
		cfg.Set("Validate.Variables", []string{"sst", "siconc"})
		cfg.Set("Validate.Obs", map[string]string{"sst": "CCIv3"})
		cfg.Set("Validate.Period", "1991-2020")
		cfg.Set("Validate.Freq", "seasonal")
		cfg.Set("Validate.RegridTo", "obs")
		cfg.Set("Validate.Method", "conservative")
		cfg.Set("Validate.Region", "antarctic")
		cfg.Set("Validate.Stats", true)
		c, err := validationConfig(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{"sst", "siconc"}; !reflect.DeepEqual(c.Variables, want) {
			t.Errorf("variables are %v, want %v", c.Variables, want)
		}
		if c.Obs["sst"] != "CCIv3" {
			t.Errorf("obs[sst] is %q, want CCIv3", c.Obs["sst"])
		}
		if c.TimeBounds.Label != "1991-2020" {
			t.Errorf("period is %q, want 1991-2020", c.TimeBounds.Label)
		}
		if c.Freq != oceanval.FreqSeasonal {
			t.Errorf("freq is %q, want %q", c.Freq, oceanval.FreqSeasonal)
		}
		if c.RegridTo != "obs" {
			t.Errorf("regridTo is %q, want obs", c.RegridTo)
		}
		if c.Method != regrid.Conservative {
			t.Errorf("method is %q, want %q", c.Method, regrid.Conservative)
		}
		if c.Region != "antarctic" {
			t.Errorf("region is %q, want antarctic", c.Region)
		}
		if !c.Stats {
			t.Error("stats should be set")
		}
	})
	t.Run("defaults", func(t *testing.T) {
		cfg := viper.New()
		cfg.Set("Validate.Variables", []string{"sst"})
		c, err := validationConfig(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if c.Freq != "" || c.Method != "" || c.RegridTo != "" {
			t.Errorf("zero fields should stay zero for the validation defaults; have %+v", c)
		}
	})
	t.Run("bad freq", func(t *testing.T) {
		cfg := viper.New()
		cfg.Set("Validate.Variables", []string{"sst"})
		cfg.Set("Validate.Freq", "hourly")
		_, err := validationConfig(cfg)
		if err == nil || !strings.Contains(err.Error(), "Validate.Freq") {
			t.Errorf("want a frequency error, have %v", err)
		}
	})
	t.Run("bad method", func(t *testing.T) {
		cfg := viper.New()
		cfg.Set("Validate.Variables", []string{"sst"})
		cfg.Set("Validate.Method", "cubic")
		_, err := validationConfig(cfg)
		if err == nil || !strings.Contains(err.Error(), "Validate.Method") {
			t.Errorf("want a method error, have %v", err)
		}
	})
	t.Run("bad regridTo", func(t *testing.T) {
		cfg := viper.New()
		cfg.Set("Validate.Variables", []string{"sst"})
		cfg.Set("Validate.RegridTo", "sideways")
		_, err := validationConfig(cfg)
		if err == nil || !strings.Contains(err.Error(), "Validate.RegridTo") {
			t.Errorf("want a regrid target error, have %v", err)
		}
	})
}

func TestGetStringMapString(t *testing.T) {
	cfg := viper.New()
	if m := GetStringMapString("unset", cfg); len(m) != 0 {
		t.Errorf("an unset variable should decode to an empty map; have %v", m)
	}
	cfg.Set("asMap", map[string]string{"a": "b"})
	if m := GetStringMapString("asMap", cfg); m["a"] != "b" {
		t.Errorf("have %v", m)
	}
	cfg.Set("asJSON", `{"a": "b"}`)
	if m := GetStringMapString("asJSON", cfg); m["a"] != "b" {
		t.Errorf("have %v", m)
	}
}
