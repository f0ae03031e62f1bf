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
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/oceanmodel/oceanval"
	"github.com/oceanmodel/oceanval/regrid"
)

// ServerConfig holds the file configuration for the oceanvalweb
// server.
type ServerConfig struct {
	// ModelData is the path to the model dataset to validate.
	ModelData string

	// Validations lists the validations to run, in order. The
	// available validations are sst, sss, mld, siconc, siarea, and
	// siext.
	Validations []string

	// Obs maps validation names to the observational dataset to
	// compare against, overriding each validation's default.
	Obs map[string]string

	// Period names a pre-computed climatology period such as
	// "1991-2020"; Start and End give an explicit date range instead
	// and must be set together.
	Period, Start, End string

	// Freq is the climatology frequency for the gridded validations;
	// empty leaves each validation's default.
	Freq string

	// RegridTo selects the common comparison grid, "model" or "obs";
	// empty means model.
	RegridTo string

	// Method is the interpolation method; empty means bilinear.
	Method string

	// Region selects the polar region for the sea ice validations.
	Region string

	// Stats requests aggregate statistics for each validation.
	Stats bool

	// ObsBaseURL is the location observational datasets are
	// downloaded from, overriding the default archive.
	ObsBaseURL string

	// ObsCacheDir is the directory downloaded observations are cached
	// in.
	ObsCacheDir string

	// ObsCacheSize is the number of observational datasets to hold in
	// memory.
	ObsCacheSize int

	// Address is the address to serve the results at. The default is
	// localhost:10000.
	Address string
}

// ValidationConfig converts c into the settings shared with the
// command-line validations.
func (c *ServerConfig) ValidationConfig() (*ValidationConfig, error) {
	if len(c.Validations) == 0 {
		return nil, fmt.Errorf("there are no validations specified. Please fill in " +
			"the Validations configuration and try again.")
	}
	tb, err := ParseTimeBounds(c.Period, c.Start, c.End)
	if err != nil {
		return nil, err
	}
	out := ValidationConfig{
		Variables:  c.Validations,
		Obs:        c.Obs,
		TimeBounds: tb,
		RegridTo:   c.RegridTo,
		Region:     c.Region,
		Stats:      c.Stats,
	}
	if c.Freq != "" {
		if out.Freq, err = oceanval.ParseFreq(c.Freq); err != nil {
			return nil, fmt.Errorf("Freq: %v", err)
		}
	}
	if c.Method != "" {
		if out.Method, err = regrid.ParseMethod(c.Method); err != nil {
			return nil, fmt.Errorf("Method: %v", err)
		}
	}
	if r := c.RegridTo; r != "" && r != "model" && r != "obs" {
		return nil, fmt.Errorf(`RegridTo must be "model" or "obs", but is currently set to %q`, r)
	}
	return &out, nil
}

// NewResultsHandler runs the validations specified by c and returns a
// handler serving the results.
func NewResultsHandler(c *ServerConfig) (http.Handler, error) {
	configureStore(c.ObsBaseURL, c.ObsCacheDir, c.ObsCacheSize)
	vc, err := c.ValidationConfig()
	if err != nil {
		return nil, err
	}
	v, err := LoadValidator(os.ExpandEnv(c.ModelData))
	if err != nil {
		return nil, err
	}
	if err := RunValidations(context.Background(), v, vc); err != nil {
		return nil, err
	}
	return v.WebHandler(), nil
}
