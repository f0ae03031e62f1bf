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
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx"

	"github.com/oceanmodel/oceanval"
)

// RunStats validates the model dataset at modelFile as configured by
// vc, with aggregate statistics enabled, and prints one line per
// statistic. When outputFile is not empty the statistics are
// additionally written there as an xlsx workbook.
func RunStats(cmd *cobra.Command, modelFile string, vc *ValidationConfig, outputFile string) error {
	if outputFile != "" {
		outputFile = os.ExpandEnv(outputFile)
		if ext := filepath.Ext(outputFile); ext != ".xlsx" {
			return fmt.Errorf("oceanval: the Stats.OutputFile extension %q is not supported; use .xlsx", ext)
		}
	}
	v, err := LoadValidator(modelFile)
	if err != nil {
		return err
	}
	c := *vc
	c.Stats = true
	if err := RunValidations(context.Background(), v, &c); err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), v.Stats)
	if outputFile != "" {
		return writeStatsXLSX(v.Stats, outputFile)
	}
	return nil
}

// printStats writes one line per statistic: its name, its values, and
// its units.
func printStats(w io.Writer, rs *oceanval.ResultSet) {
	for _, name := range rs.Names() {
		e, ok := rs.Get(name)
		if !ok {
			continue
		}
		vals := make([]string, len(e.Data.Elements))
		for i, v := range e.Data.Elements {
			vals[i] = fmt.Sprintf("%g", v)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, strings.Join(vals, ", "), e.Units)
	}
}

// writeStatsXLSX writes the statistics to filename as an xlsx workbook
// holding one sheet named "statistics" with a header row and one row
// per statistic. Multi-valued statistics, for example per-season ones,
// take one value cell each.
func writeStatsXLSX(rs *oceanval.ResultSet, filename string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("statistics")
	if err != nil {
		return fmt.Errorf("oceanval: creating statistics workbook: %v", err)
	}
	header := sheet.AddRow()
	for _, h := range []string{"statistic", "units", "value"} {
		header.AddCell().Value = h
	}
	for _, name := range rs.Names() {
		e, ok := rs.Get(name)
		if !ok {
			continue
		}
		row := sheet.AddRow()
		row.AddCell().Value = name
		row.AddCell().Value = e.Units
		for _, v := range e.Data.Elements {
			row.AddCell().SetFloat(v)
		}
	}
	return f.Save(filename)
}
