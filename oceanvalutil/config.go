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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/spf13/cast"

	"github.com/oceanmodel/oceanval"
	"github.com/oceanmodel/oceanval/obs"
	"github.com/oceanmodel/oceanval/regrid"
)

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string) (map[string]string, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("there are no variables specified for output. Please fill in " +
			"the OutputVariables configuration and try again.")
	}
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		vars[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return vars, nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// checkOutputFile makes sure that the output file is specified, has an
// extension one of the writers understands, and that its directory
// exists, and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.nc")`)
	}
	f = os.ExpandEnv(f)
	if ext := filepath.Ext(f); ext != ".shp" && ext != ".nc" {
		return f, fmt.Errorf("oceanval: the OutputFile extension %q is not supported; use .shp or .nc", ext)
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("oceanval: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return logFile
}

// configureStore points the shared observation store at an alternate
// archive root, download directory, or cache size. Zero arguments
// leave the corresponding setting unchanged. It has no effect on
// objects the store has already fetched.
func configureStore(baseURL, cacheDir string, cacheSize int) {
	if baseURL != "" {
		obs.DefaultStore.BaseURL = os.ExpandEnv(baseURL)
	}
	if cacheDir != "" {
		obs.DefaultStore.CacheDir = os.ExpandEnv(cacheDir)
	}
	if cacheSize != 0 {
		obs.DefaultStore.CacheSize = cacheSize
	}
}

// ValidationConfig holds the settings shared by the standard
// validations that the validate, stats, and web commands run.
type ValidationConfig struct {
	// Variables lists the validations to run, in order. The available
	// validations are sst, sss, mld, siconc, siarea, and siext.
	Variables []string

	// Obs maps validation names to the observational dataset to
	// compare against, overriding each validation's default.
	Obs map[string]string

	// TimeBounds limits the period entering the comparisons.
	TimeBounds oceanval.TimeBounds

	// Freq is the climatology frequency for the gridded validations;
	// empty leaves each validation's default.
	Freq oceanval.Freq

	// RegridTo selects the common comparison grid, "model" or "obs";
	// empty means model.
	RegridTo string

	// Method is the interpolation method; empty means bilinear.
	Method regrid.Method

	// Region selects the polar region for the sea ice validations.
	Region string

	// Stats requests aggregate statistics for each validation.
	Stats bool
}

// validationConfig unmarshals a viper configuration for the standard
// validations.
func validationConfig(cfg *viper.Viper) (*ValidationConfig, error) {
	variables := expandStringSlice(cfg.GetStringSlice("Validate.Variables"))
	if len(variables) == 0 {
		return nil, fmt.Errorf("there are no validations specified. Please fill in " +
			"the Validate.Variables configuration and try again.")
	}
	tb, err := ParseTimeBounds(
		cfg.GetString("Validate.Period"),
		cfg.GetString("Validate.Start"),
		cfg.GetString("Validate.End"))
	if err != nil {
		return nil, err
	}
	c := ValidationConfig{
		Variables:  variables,
		Obs:        GetStringMapString("Validate.Obs", cfg),
		TimeBounds: tb,
		RegridTo:   cfg.GetString("Validate.RegridTo"),
		Region:     cfg.GetString("Validate.Region"),
		Stats:      cfg.GetBool("Validate.Stats"),
	}
	if s := cfg.GetString("Validate.Freq"); s != "" {
		if c.Freq, err = oceanval.ParseFreq(s); err != nil {
			return nil, fmt.Errorf("Validate.Freq: %v", err)
		}
	}
	if s := cfg.GetString("Validate.Method"); s != "" {
		if c.Method, err = regrid.ParseMethod(s); err != nil {
			return nil, fmt.Errorf("Validate.Method: %v", err)
		}
	}
	if r := c.RegridTo; r != "" && r != "model" && r != "obs" {
		return nil, fmt.Errorf(`Validate.RegridTo must be "model" or "obs", but is currently set to %q`, r)
	}
	return &c, nil
}

// dateLayout is the format of the Validate.Start and Validate.End
// configuration variables.
const dateLayout = "2006-01-02"

// ParseTimeBounds converts the period configuration variables to a
// time selection. period names a pre-computed climatology such as
// "1991-2020"; start and end give an explicit date range and must be
// set together. period and the explicit range are mutually exclusive.
func ParseTimeBounds(period, start, end string) (oceanval.TimeBounds, error) {
	var tb oceanval.TimeBounds
	if period != "" {
		if start != "" || end != "" {
			return tb, fmt.Errorf("oceanval: the configuration specifies both a climatology period %q and an explicit date range", period)
		}
		tb.Label = period
		if _, _, err := tb.Resolve(); err != nil {
			return tb, err
		}
		return tb, nil
	}
	if (start == "") != (end == "") {
		return tb, fmt.Errorf("oceanval: Validate.Start and Validate.End must be set together")
	}
	if start == "" {
		return tb, nil
	}
	var err error
	if tb.Start, err = time.Parse(dateLayout, start); err != nil {
		return tb, fmt.Errorf("oceanval: parsing Validate.Start: %v", err)
	}
	if tb.End, err = time.Parse(dateLayout, end); err != nil {
		return tb, fmt.Errorf("oceanval: parsing Validate.End: %v", err)
	}
	if _, _, err := tb.Resolve(); err != nil {
		return tb, err
	}
	return tb, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch i.(type) {
	case nil:
		return make(map[string]string)
	case map[string]string:
		return i.(map[string]string)
	case map[string]interface{}:
		return cast.ToStringMapString(i)
	case string:
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			panic(err)
		}
		return o
	default:
		panic(fmt.Errorf("invalid type for getStringMapString variable %s: %#v", varName, i))
	}
}
