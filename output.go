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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/sparse"
	goshp "github.com/jonas-p/go-shp"

	"github.com/oceanmodel/oceanval/regrid"
)

// Outputter converts stored validation results to output files. Output
// variables are defined by expressions over the names of stored
// entries, user-defined variables, and functions.
//
// sourceVariables is automatically generated based on the stored
// entries that are required to calculate the requested output
// variables.
type Outputter struct {
	fileName        string
	outputVariables map[string]string
	sourceVariables []string
	outputFunctions map[string]govaluate.ExpressionFunction
}

// NewOutputter initializes a new Outputter and adds a set of default
// output functions. Default functions include:
//
// 'abs(x)', 'sqrt(x)', and 'exp(x)', which apply elementwise.
//
// 'sum(x)' and 'mean(x)', which aggregate a stored entry over all of
// its elements, skipping NaNs; their argument must be the name of a
// stored entry.
//
// An expression may reference another output variable by name, or
// explicitly as '{name}'; the reference is replaced by the expression
// that defines it. The file name extension selects the output format:
// ".shp" for a polygon shapefile of grid cells or ".nc" for a classic
// NetCDF file.
func NewOutputter(fileName string, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	defaultOutputFuncs := map[string]govaluate.ExpressionFunction{
		"abs": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("oceanval: got %d arguments for function 'abs', but needs 1", len(arg))
			}
			return math.Abs(arg[0].(float64)), nil
		},
		"sqrt": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("oceanval: got %d arguments for function 'sqrt', but needs 1", len(arg))
			}
			return math.Sqrt(arg[0].(float64)), nil
		},
		"exp": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("oceanval: got %d arguments for function 'exp', but needs 1", len(arg))
			}
			return math.Exp(arg[0].(float64)), nil
		},
		"sum":  aggregatePlaceholder("sum"),
		"mean": aggregatePlaceholder("mean"),
	}
	for key, val := range outputFunctions {
		defaultOutputFuncs[key] = val
	}

	vars := make(map[string]string, len(outputVariables))
	for key, val := range outputVariables {
		vars[key] = val
	}
	o := &Outputter{
		fileName:        fileName,
		outputVariables: vars,
		outputFunctions: defaultOutputFuncs,
	}
	if err := o.checkForDerivatives(); err != nil {
		return nil, err
	}
	return o, nil
}

// aggregatePlaceholder keeps an aggregate function parseable. A call
// reaching it at evaluation time had an argument other than a bare
// stored-entry name, which the aggregates cannot work on.
func aggregatePlaceholder(name string) govaluate.ExpressionFunction {
	return func(arg ...interface{}) (interface{}, error) {
		return nil, fmt.Errorf("oceanval: function '%s' takes the name of a single stored entry", name)
	}
}

// removeDuplicates removes all duplicated strings from a slice,
// returning a slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]struct{})
	for _, val := range s {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = struct{}{}
		}
	}
	return result
}

func isWordByte(c byte) bool {
	return c == '_' || '0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

// checkForDerivatives rewrites the output expressions so that
// references to other output variables are replaced by the expressions
// that define them, and collects the stored entry names the rewritten
// expressions read.
func (o *Outputter) checkForDerivatives() error {
	for name, expr := range o.outputVariables {
		if strings.Count(expr, "{") != strings.Count(expr, "}") {
			return fmt.Errorf("oceanval: output variable '%s': unbalanced braces in %q", name, expr)
		}
		o.outputVariables[name] = strings.NewReplacer("{", "", "}", "").Replace(expr)
	}
	for rounds := 0; ; rounds++ {
		if rounds > len(o.outputVariables) {
			return fmt.Errorf("oceanval: output variables reference each other in a cycle")
		}
		if !o.substituteDerived() {
			break
		}
	}

	o.sourceVariables = o.sourceVariables[:0]
	for name, expr := range o.outputVariables {
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(expr, o.outputFunctions)
		if err != nil {
			return fmt.Errorf("oceanval: output variable '%s': %v", name, err)
		}
		o.sourceVariables = append(o.sourceVariables, expression.Vars()...)
	}
	o.sourceVariables = removeDuplicates(o.sourceVariables)
	sort.Strings(o.sourceVariables)
	return nil
}

// substituteDerived replaces one round of references to other output
// variables with their defining expressions, leaving references that
// are part of longer names alone. It reports whether anything changed.
func (o *Outputter) substituteDerived() bool {
	changed := false
	for name, expr := range o.outputVariables {
		for ref, refExpr := range o.outputVariables {
			if ref == name || refExpr == ref || !strings.Contains(expr, ref) {
				continue
			}
			split := strings.Split(expr, ref)
			out := split[0]
			replaced := false
			for i := 1; i < len(split); i++ {
				// 'sst' is not a standalone reference when it appears
				// inside a longer name such as 'sst_error'.
				if !wordEnd(out) && !wordStart(split[i]) {
					out += "(" + refExpr + ")"
					replaced = true
				} else {
					out += ref
				}
				out += split[i]
			}
			if replaced {
				o.outputVariables[name] = out
				expr = out
				changed = true
			}
		}
	}
	return changed
}

func wordEnd(s string) bool {
	return s != "" && isWordByte(s[len(s)-1])
}

func wordStart(s string) bool {
	return s != "" && isWordByte(s[0])
}

// checkOutputNames checks (1) if any output variable names exceed 10
// characters and (2) if any output variable names include characters
// that are unsupported in shapefile field names.
func checkOutputNames(o map[string]string) error {
	for key := range o {
		long := len(key) > 10
		ok, err := regexp.MatchString(`^[A-Za-z]\w*$`, key)
		if err != nil {
			panic(err)
		}
		if long && !ok {
			return fmt.Errorf("oceanval: output variable name '%s' exceeds 10 characters and includes unsupported character(s)", key)
		} else if long {
			return fmt.Errorf("oceanval: output variable name '%s' exceeds 10 characters", key)
		} else if !ok {
			return fmt.Errorf("oceanval: output variable name '%s' includes unsupported characters", key)
		}
	}
	return nil
}

// CheckOutputVars ensures that the stored entries the output
// expressions read are all present in rs and that the output variable
// names are usable.
func (o *Outputter) CheckOutputVars(rs *ResultSet) error {
	for _, name := range o.sourceVariables {
		if _, ok := rs.Get(name); !ok {
			return fmt.Errorf("oceanval: undefined variable name '%s'; stored entries are %v", name, rs.Names())
		}
	}
	return checkOutputNames(o.outputVariables)
}

var aggCallRE = regexp.MustCompile(`\b(sum|mean)\(\s*([A-Za-z_]\w*)\s*\)`)

// resolveAggregates replaces sum and mean calls over stored entries
// with their values, so the remaining expression can be evaluated
// element by element.
func resolveAggregates(rs *ResultSet, expr string) (string, error) {
	var resolveErr error
	out := aggCallRE.ReplaceAllStringFunc(expr, func(call string) string {
		m := aggCallRE.FindStringSubmatch(call)
		e, ok := rs.Get(m[2])
		if !ok {
			resolveErr = fmt.Errorf("oceanval: undefined variable name '%s'; stored entries are %v", m[2], rs.Names())
			return call
		}
		var sum float64
		var n int
		for _, v := range e.Data.Elements {
			if math.IsNaN(v) {
				continue
			}
			sum += v
			n++
		}
		v := sum
		if m[1] == "mean" {
			if n == 0 {
				v = math.NaN()
			} else {
				v = sum / float64(n)
			}
		}
		return formatConst(v)
	})
	return out, resolveErr
}

// formatConst renders v as an expression term that evaluates back to
// exactly v.
func formatConst(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "(0.0/0.0)"
	}
	return "(" + strconv.FormatFloat(v, 'g', -1, 64) + ")"
}

// outputField is one evaluated output variable together with the
// stored entry its shape and coordinates come from.
type outputField struct {
	vals []float64
	ref  *Entry
}

func (o *Outputter) results(rs *ResultSet) (map[string]*outputField, error) {
	out := make(map[string]*outputField, len(o.outputVariables))
	for name, expr := range o.outputVariables {
		text, err := resolveAggregates(rs, expr)
		if err != nil {
			return nil, err
		}
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(text, o.outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("oceanval: output variable '%s': %v", name, err)
		}
		vars := removeDuplicates(expression.Vars())

		f := &outputField{}
		n := -1
		arrays := make(map[string][]float64, len(vars))
		for _, vn := range vars {
			e, ok := rs.Get(vn)
			if !ok {
				return nil, fmt.Errorf("oceanval: undefined variable name '%s'; stored entries are %v", vn, rs.Names())
			}
			if f.ref == nil {
				f.ref = e
				n = len(e.Data.Elements)
			} else if len(e.Data.Elements) != n {
				return nil, fmt.Errorf("oceanval: output variable '%s': entries %s (%d values) and %s (%d values) do not line up",
					name, vars[0], n, vn, len(e.Data.Elements))
			}
			arrays[vn] = e.Data.Elements
		}
		if n < 0 {
			n = 1
		}

		f.vals = make([]float64, n)
		params := make(map[string]interface{}, len(vars))
		for i := 0; i < n; i++ {
			for vn, a := range arrays {
				params[vn] = a[i]
			}
			r, err := expression.Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("oceanval: output variable '%s': %v", name, err)
			}
			v, ok := r.(float64)
			if !ok {
				return nil, fmt.Errorf("oceanval: output variable '%s' does not evaluate to a number; have %T", name, r)
			}
			f.vals[i] = v
		}
		out[name] = f
	}
	return out, nil
}

// Results evaluates the output expressions over the entries of rs,
// returning one flattened array per output variable.
func (o *Outputter) Results(rs *ResultSet) (map[string][]float64, error) {
	fields, err := o.results(rs)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float64, len(fields))
	for name, f := range fields {
		out[name] = f.vals
	}
	return out, nil
}

// Output evaluates the output expressions over the entries of rs and
// writes the result to the configured file.
func (o *Outputter) Output(rs *ResultSet) error {
	if err := o.CheckOutputVars(rs); err != nil {
		return err
	}
	fields, err := o.results(rs)
	if err != nil {
		return err
	}
	switch ext := filepath.Ext(o.fileName); ext {
	case ".shp":
		return o.writeShapefile(fields)
	case ".nc":
		return o.writeNetCDF(fields)
	default:
		return fmt.Errorf("oceanval: unsupported output file extension %q; use .shp or .nc", ext)
	}
}

// wgs84WKT describes plain longitude-latitude coordinates for the
// shapefile .prj sidecar.
const wgs84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

func (o *Outputter) writeShapefile(fields map[string]*outputField) error {
	vars := make([]string, 0, len(fields))
	for v := range fields {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	var grid *regrid.Grid
	for _, v := range vars {
		ref := fields[v].ref
		if ref == nil || ref.Coords.Lon == nil || ref.Coords.Lat == nil {
			continue
		}
		g, err := regrid.NewGrid(ref.Coords.Lon, ref.Coords.Lat, nil, nil)
		if err != nil {
			return err
		}
		grid = g
		break
	}
	if grid == nil {
		return fmt.Errorf("oceanval: writing %s: no output variable is on a spatial grid", o.fileName)
	}
	cells := grid.CellPolygons()
	for _, v := range vars {
		if len(fields[v].vals) != len(cells) {
			return fmt.Errorf("oceanval: writing %s: output variable '%s' has %d values for %d grid cells",
				o.fileName, v, len(fields[v].vals), len(cells))
		}
	}

	shpFields := make([]goshp.Field, len(vars))
	for i, v := range vars {
		shpFields[i] = goshp.FloatField(v, 14, 8)
	}
	fileBase := strings.TrimSuffix(o.fileName, filepath.Ext(o.fileName))
	shape, err := shp.NewEncoderFromFields(fileBase+".shp", goshp.POLYGON, shpFields...)
	if err != nil {
		return fmt.Errorf("oceanval: creating output shapefile: %v", err)
	}
	for i, cell := range cells {
		outFields := make([]interface{}, len(vars))
		for j, v := range vars {
			outFields[j] = fields[v].vals[i]
		}
		if err := shape.EncodeFields(cell, outFields...); err != nil {
			shape.Close()
			return fmt.Errorf("oceanval: writing output shapefile: %v", err)
		}
	}
	shape.Close()

	f, err := os.Create(fileBase + ".prj")
	if err != nil {
		return fmt.Errorf("oceanval: creating output prj file: %v", err)
	}
	fmt.Fprint(f, wgs84WKT)
	return f.Close()
}

func (o *Outputter) writeNetCDF(fields map[string]*outputField) error {
	out := NewResultSet()
	for name, f := range fields {
		e := &Entry{Name: name}
		if f.ref != nil {
			e.Dims = append([]string(nil), f.ref.Dims...)
			e.Coords = CoordsOfEntry(f.ref)
			e.Data = sparse.ZerosDense(f.ref.Data.Shape...)
			// An output variable that simply copies a stored entry
			// keeps its metadata.
			if o.outputVariables[name] == f.ref.Name {
				e.Description = f.ref.Description
				e.Units = f.ref.Units
			}
		} else {
			e.Coords = new(Coords)
			e.Data = sparse.ZerosDense()
		}
		copy(e.Data.Elements, f.vals)
		out.Put(e)
	}
	d, err := out.Dataset()
	if err != nil {
		return err
	}
	return d.WriteFile(o.fileName)
}
