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
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/oceanmodel/oceanval"
)

// LoadValidator reads the model dataset at modelFile and wraps it in a
// validator.
func LoadValidator(modelFile string) (*oceanval.Validator, error) {
	if modelFile == "" {
		return nil, fmt.Errorf(`you need to specify the model dataset to validate (for example: ModelData="model.nc")`)
	}
	log.Println("Reading model data...")
	d, err := oceanval.ReadDatasetFile(modelFile)
	if err != nil {
		return nil, fmt.Errorf("oceanval: problem loading model data: %v", err)
	}
	return oceanval.NewValidator(d)
}

// Run validates the model dataset at modelFile as configured by vc and
// writes the output variables to outputFile.
//
// cmd is the cobra.Command instance where Run is called from. Log
// messages are written to its output and to logFile.
//
// outputFile is the path to the desired output file location; its
// extension selects the format.
//
// outputVariables specifies which stored entries should be included in
// the output file, as a map from output names to expressions over the
// names of stored entries.
func Run(cmd *cobra.Command, logFile, outputFile string, outputVariables map[string]string,
	modelFile string, vc *ValidationConfig) error {

	startTime := time.Now()

	logfile, err := os.Create(logFile)
	if err != nil {
		return fmt.Errorf("oceanval: problem creating log file: %v", err)
	}
	defer logfile.Close()
	mw := io.MultiWriter(cmd.OutOrStdout(), logfile)
	log.SetOutput(mw)

	log.Println("Parsing output variable expressions...")
	o, err := oceanval.NewOutputter(outputFile, outputVariables, nil)
	if err != nil {
		return err
	}

	v, err := LoadValidator(modelFile)
	if err != nil {
		return err
	}

	if err := RunValidations(context.Background(), v, vc); err != nil {
		return err
	}
	logStats(v)

	log.Println("Writing output...")
	if err := o.Output(gatherResults(v)); err != nil {
		return err
	}

	elapsedTime := time.Since(startTime)
	log.Printf("Elapsed time: %f seconds", elapsedTime.Seconds())

	return nil
}

// validationNames lists the validations the commands know how to run.
var validationNames = []string{"sst", "sss", "mld", "siconc", "siarea", "siext"}

// RunValidations runs the configured validations in order. When the
// configuration requests aggregate statistics, the validator's
// statistics container is replaced with the statistics of every
// validation, each named after its validation, for example sst_rmse.
func RunValidations(ctx context.Context, v *oceanval.Validator, c *ValidationConfig) error {
	all := oceanval.NewResultSet()
	for _, name := range c.Variables {
		log.Printf("Validating %s...", name)
		if err := runValidation(ctx, v, name, c); err != nil {
			return err
		}
		for _, sn := range v.Stats.Names() {
			e, ok := v.Stats.Get(sn)
			if !ok {
				continue
			}
			s := *e
			s.Name = name + "_" + sn
			all.Put(&s)
		}
	}
	if c.Stats {
		v.Stats = all
	}
	return nil
}

func runValidation(ctx context.Context, v *oceanval.Validator, name string, c *ValidationConfig) error {
	switch name {
	case "sst":
		return v.ComputeSSTError(ctx, errorSpec(name, c))
	case "sss":
		return v.ComputeSSSError(ctx, errorSpec(name, c))
	case "mld":
		return v.ComputeMLDError(ctx, errorSpec(name, c))
	case "siconc":
		spec := errorSpec(name, c)
		spec.Region = c.Region
		return v.ComputeSiconcError(ctx, spec)
	case "siarea":
		return v.ComputeSiareaSeries(ctx, iceSpec(name, c))
	case "siext":
		return v.ComputeSiextSeries(ctx, iceSpec(name, c))
	}
	return fmt.Errorf("oceanval: unknown validation %q; available validations are %s",
		name, strings.Join(validationNames, ", "))
}

// errorSpec assembles an ErrorSpec from the configuration, leaving zero
// fields for the validation's defaults.
func errorSpec(name string, c *ValidationConfig) *oceanval.ErrorSpec {
	return &oceanval.ErrorSpec{
		Obs:        c.Obs[name],
		TimeBounds: c.TimeBounds,
		Freq:       c.Freq,
		RegridTo:   c.RegridTo,
		Method:     c.Method,
		Stats:      c.Stats,
	}
}

// iceSpec assembles an IceSeriesSpec for a sea ice series validation.
func iceSpec(name string, c *ValidationConfig) *oceanval.IceSeriesSpec {
	return &oceanval.IceSeriesSpec{
		Obs:        c.Obs[name],
		Region:     c.Region,
		TimeBounds: c.TimeBounds,
		Stats:      c.Stats,
	}
}

// gatherResults collects the validator's stored results and
// observations into one container, with results shadowing
// observations of the same name.
func gatherResults(v *oceanval.Validator) *oceanval.ResultSet {
	out := oceanval.NewResultSet()
	for _, name := range v.Obs.Names() {
		if e, ok := v.Obs.Get(name); ok {
			out.Put(e)
		}
	}
	for _, name := range v.Results.Names() {
		if e, ok := v.Results.Get(name); ok {
			out.Put(e)
		}
	}
	return out
}

// logStats logs the aggregate statistics, if any were computed.
func logStats(v *oceanval.Validator) {
	if v.Stats.Len() == 0 {
		return
	}
	log.Println("Aggregate statistics:")
	for _, name := range v.Stats.Names() {
		e, ok := v.Stats.Get(name)
		if !ok {
			continue
		}
		vals := make([]string, len(e.Data.Elements))
		for i, val := range e.Data.Elements {
			vals[i] = fmt.Sprintf("%g", val)
		}
		log.Printf("  %s = %s %s", name, strings.Join(vals, ", "), e.Units)
	}
}
