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
	"sort"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Canonical dimension names. Fields read from files with other dimension
// naming conventions are renamed to these on load.
const (
	TimeDim   = "time"
	DepthDim  = "depth"
	SeasonDim = "season"
	MonthDim  = "month"
	ObsDim    = "obs"
	YDim      = "y"
	XDim      = "x"
)

// DataVar is a single named variable in a Dataset.
type DataVar struct {
	Dims        []string           // dimension names
	Description string             // variable description
	Units       string             // variable units
	Data        *sparse.DenseArray // variable data
}

// Dataset is a collection of labeled variables sharing a horizontal grid
// and, optionally, time and depth axes. The horizontal coordinates are
// either rectilinear (1-dimensional Lon and Lat) or curvilinear
// (2-dimensional Lon and Lat with shape [y, x]).
type Dataset struct {
	// Vars holds the data variables, keyed by name.
	Vars map[string]*DataVar

	// Lon and Lat are the cell-center coordinates [degrees].
	Lon, Lat *sparse.DenseArray

	// LonB and LatB are cell-boundary coordinates with one more entry
	// than cell centers along each axis. They are only required for
	// conservative regridding.
	LonB, LatB *sparse.DenseArray

	// Mask distinguishes ocean (1) from land (0) cells. It may be nil.
	Mask *sparse.DenseArray

	// Time is the decoded time axis, or nil if the dataset has none.
	Time []time.Time

	// Depth gives the depth levels [m], or nil for surface-only data.
	Depth []float64

	// Seasons and Months label the season or month axis of a reduced
	// climatology. At most one of the two is non-nil.
	Seasons []string
	Months  []string

	// Obs labels the observation-source axis of error fields, or nil
	// for datasets without one.
	Obs []string

	// Attrs holds descriptive global attributes.
	Attrs map[string]string

	// Bounds gives the realized spatial extent after subsetting,
	// rounded outward to whole degrees. It is nil until a spatial
	// selection or a loader sets it.
	Bounds *SpatialBounds
}

// NewDataset returns an empty Dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Vars:  make(map[string]*DataVar),
		Attrs: make(map[string]string),
	}
}

// AddVariable adds a variable named name to the dataset.
func (d *Dataset) AddVariable(name string, dims []string, description, units string, data *sparse.DenseArray) {
	if d.Vars == nil {
		d.Vars = make(map[string]*DataVar)
	}
	d.Vars[name] = &DataVar{
		Dims:        dims,
		Description: description,
		Units:       units,
		Data:        data,
	}
}

// Copy returns a deep copy of d sharing no data with the original.
func (d *Dataset) Copy() *Dataset {
	cp := func(a *sparse.DenseArray) *sparse.DenseArray {
		if a == nil {
			return nil
		}
		return a.Copy()
	}
	out := NewDataset()
	out.Lon, out.Lat = cp(d.Lon), cp(d.Lat)
	out.LonB, out.LatB = cp(d.LonB), cp(d.LatB)
	out.Mask = cp(d.Mask)
	out.Time = append([]time.Time(nil), d.Time...)
	out.Depth = append([]float64(nil), d.Depth...)
	out.Seasons = append([]string(nil), d.Seasons...)
	out.Months = append([]string(nil), d.Months...)
	out.Obs = append([]string(nil), d.Obs...)
	for k, v := range d.Attrs {
		out.Attrs[k] = v
	}
	if d.Bounds != nil {
		b := *d.Bounds
		out.Bounds = &b
	}
	for name, v := range d.Vars {
		out.Vars[name] = &DataVar{
			Dims:        append([]string(nil), v.Dims...),
			Description: v.Description,
			Units:       v.Units,
			Data:        v.Data.Copy(),
		}
	}
	return out
}

// VarNames returns the sorted names of the variables in d.
func (d *Dataset) VarNames() []string {
	names := make([]string, 0, len(d.Vars))
	for n := range d.Vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Rectilinear reports whether the horizontal coordinates are
// 1-dimensional.
func (d *Dataset) Rectilinear() bool {
	return d.Lon != nil && len(d.Lon.Shape) == 1
}

// GridShape returns the number of cells along the y and x axes.
func (d *Dataset) GridShape() (ny, nx int, err error) {
	if d.Lon == nil || d.Lat == nil {
		return 0, 0, fmt.Errorf("oceanval: dataset has no horizontal coordinates")
	}
	if d.Rectilinear() {
		return d.Lat.Shape[0], d.Lon.Shape[0], nil
	}
	if len(d.Lon.Shape) != 2 {
		return 0, 0, fmt.Errorf("oceanval: longitude coordinate must have 1 or 2 dimensions but has %d", len(d.Lon.Shape))
	}
	return d.Lon.Shape[0], d.Lon.Shape[1], nil
}

// LonAt and LatAt return the coordinates of cell (j,i) regardless of
// whether the grid is rectilinear.

func (d *Dataset) LonAt(j, i int) float64 {
	if d.Rectilinear() {
		return d.Lon.Get(i)
	}
	return d.Lon.Get(j, i)
}

func (d *Dataset) LatAt(j, i int) float64 {
	if d.Rectilinear() {
		return d.Lat.Get(j)
	}
	return d.Lat.Get(j, i)
}

func dimIndex(dims []string, name string) int {
	for i, dim := range dims {
		if dim == name {
			return i
		}
	}
	return -1
}

// canonicalDims maps the dimension naming conventions found in model and
// observation files to the names used here.
var canonicalDims = map[string]string{
	"lon": XDim, "longitude": XDim, "x": XDim, "nlon": XDim, "ni": XDim,
	"lat": YDim, "latitude": YDim, "y": YDim, "nlat": YDim, "nj": YDim,
	"time": TimeDim, "time_counter": TimeDim, "t": TimeDim,
	"depth": DepthDim, "deptht": DepthDim, "lev": DepthDim, "z": DepthDim,
	"season": SeasonDim, "month": MonthDim, "obs": ObsDim,
}

func canonicalDim(name string) string {
	if c, ok := canonicalDims[strings.ToLower(name)]; ok {
		return c
	}
	return name
}

// Alternate names under which the coordinate variables may be stored.
var (
	lonNames   = []string{"lon", "longitude", "nav_lon", "glamt"}
	latNames   = []string{"lat", "latitude", "nav_lat", "gphit"}
	lonBNames  = []string{"lon_b", "lon_bnds", "bounds_lon"}
	latBNames  = []string{"lat_b", "lat_bnds", "bounds_lat"}
	timeNames  = []string{"time", "time_counter", "time_centered"}
	depthNames = []string{"depth", "deptht", "lev", "z"}
	maskNames  = []string{"mask", "tmask", "landmask", "lsm"}
)

func matchName(name string, candidates []string) bool {
	l := strings.ToLower(name)
	for _, c := range candidates {
		if l == c {
			return true
		}
	}
	return false
}

// attrString returns the string value of attribute a of variable v (or a
// global attribute if v is empty), or "" if the attribute is missing.
func attrString(f *cdf.File, v, a string) string {
	val := f.Header.GetAttribute(v, a)
	if val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// attrFloat returns the first numeric value of attribute a of variable v,
// or 0, false if the attribute is missing or non-numeric.
func attrFloat(f *cdf.File, v, a string) (float64, bool) {
	switch val := f.Header.GetAttribute(v, a).(type) {
	case []float64:
		if len(val) > 0 {
			return val[0], true
		}
	case []float32:
		if len(val) > 0 {
			return float64(val[0]), true
		}
	case []int32:
		if len(val) > 0 {
			return float64(val[0]), true
		}
	case []int16:
		if len(val) > 0 {
			return float64(val[0]), true
		}
	}
	return 0, false
}

// attrFloatPair returns the value of a two-element numeric attribute.
func attrFloatPair(f *cdf.File, v, a string) ([2]float64, bool) {
	if val, ok := f.Header.GetAttribute(v, a).([]float64); ok && len(val) == 2 {
		return [2]float64{val[0], val[1]}, true
	}
	return [2]float64{}, false
}

// readVar reads the full contents of variable v as a float64 array.
func readVar(f *cdf.File, v string) (*sparse.DenseArray, error) {
	dims := f.Header.Lengths(v)
	if len(dims) == 0 {
		return nil, fmt.Errorf("oceanval: reading netcdf: variable %v not in file", v)
	}
	n := 1
	for _, dim := range dims {
		n *= dim
	}
	r := f.Reader(v, nil, nil)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("oceanval: reading netcdf variable %s: %v", v, err)
	}
	data := sparse.ZerosDense(dims...)
	switch b := buf.(type) {
	case []float32:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []float64:
		copy(data.Elements, b)
	case []int32:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []int16:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []uint8:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("oceanval: reading netcdf variable %s: unsupported data type %T", v, buf)
	}
	return data, nil
}

// applyPacking replaces fill values with NaN and unpacks scale/offset
// encoded values, following the usual file conventions.
func applyPacking(f *cdf.File, v string, data *sparse.DenseArray) {
	fill, hasFill := attrFloat(f, v, "_FillValue")
	if !hasFill {
		fill, hasFill = attrFloat(f, v, "missing_value")
	}
	scale, hasScale := attrFloat(f, v, "scale_factor")
	offset, hasOffset := attrFloat(f, v, "add_offset")
	if !hasFill && !hasScale && !hasOffset {
		return
	}
	if !hasScale {
		scale = 1
	}
	for i, e := range data.Elements {
		if hasFill && e == fill {
			data.Elements[i] = math.NaN()
			continue
		}
		if hasScale || hasOffset {
			data.Elements[i] = e*scale + offset
		}
	}
}

// decodeTime converts the numeric values of a time variable to
// time.Time using the variable's units attribute, which must follow the
// "days|hours|minutes|seconds since YYYY-MM-DD[ hh:mm:ss]" convention.
func decodeTime(vals []float64, units string) ([]time.Time, error) {
	fields := strings.Fields(units)
	if len(fields) < 3 || strings.ToLower(fields[1]) != "since" {
		return nil, fmt.Errorf("oceanval: cannot parse time units %q", units)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSuffix(fields[0], "s")) + "s" {
	case "days":
		step = 24 * time.Hour
	case "hours":
		step = time.Hour
	case "minutes":
		step = time.Minute
	case "seconds":
		step = time.Second
	default:
		return nil, fmt.Errorf("oceanval: unsupported time unit %q", fields[0])
	}
	epochStr := fields[2]
	if len(fields) > 3 {
		epochStr += " " + fields[3]
	}
	var epoch time.Time
	var err error
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		epoch, err = time.ParseInLocation(layout, epochStr, time.UTC)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("oceanval: cannot parse time epoch %q: %v", epochStr, err)
	}
	out := make([]time.Time, len(vals))
	for i, v := range vals {
		out[i] = epoch.Add(time.Duration(v * float64(step)))
	}
	return out, nil
}

// timeEpoch is the reference date used when writing time axes.
var timeEpoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// ReadDataset reads a Dataset from NetCDF storage rw. Coordinate
// variables are recognized by conventional names; all other variables
// become data variables with canonicalized dimension names.
func ReadDataset(rw cdf.ReaderWriterAt) (*Dataset, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("oceanval.ReadDataset: %v", err)
	}
	d := NewDataset()
	for _, a := range f.Header.Attributes("") {
		if s := attrString(f, "", a); s != "" {
			d.Attrs[a] = s
		}
	}
	if lon, ok := attrFloatPair(f, "", "lon_bounds"); ok {
		if lat, ok := attrFloatPair(f, "", "lat_bounds"); ok {
			d.Bounds = &SpatialBounds{Lon: lon, Lat: lat}
		}
	}
	for _, v := range f.Header.Variables() {
		data, err := readVar(f, v)
		if err != nil {
			return nil, err
		}
		applyPacking(f, v, data)
		switch {
		case matchName(v, lonNames):
			d.Lon = data
		case matchName(v, latNames):
			d.Lat = data
		case matchName(v, lonBNames):
			d.LonB = data
		case matchName(v, latBNames):
			d.LatB = data
		case matchName(v, maskNames):
			d.Mask = data
		case matchName(v, depthNames):
			d.Depth = data.Elements
		case matchName(v, timeNames):
			d.Time, err = decodeTime(data.Elements, attrString(f, v, "units"))
			if err != nil {
				return nil, err
			}
		case strings.ToLower(v) == SeasonDim:
			d.Seasons = splitLabels(attrString(f, v, "labels"), len(data.Elements))
		case strings.ToLower(v) == MonthDim:
			d.Months = splitLabels(attrString(f, v, "labels"), len(data.Elements))
		case strings.ToLower(v) == ObsDim:
			d.Obs = splitLabels(attrString(f, v, "labels"), len(data.Elements))
		default:
			dims := f.Header.Dimensions(v)
			cdims := make([]string, len(dims))
			for i, dim := range dims {
				cdims[i] = canonicalDim(dim)
			}
			desc := attrString(f, v, "description")
			if desc == "" {
				desc = attrString(f, v, "long_name")
			}
			d.AddVariable(v, cdims, desc, attrString(f, v, "units"), data)
		}
	}
	if len(d.Vars) == 0 {
		return nil, fmt.Errorf("oceanval.ReadDataset: file contains no data variables")
	}
	return d, nil
}

// ReadDatasetFile reads a Dataset from the named NetCDF file.
func ReadDatasetFile(filename string) (*Dataset, error) {
	ff, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("oceanval.ReadDataset: %v", err)
	}
	defer ff.Close()
	return ReadDataset(ff)
}

func splitLabels(s string, n int) []string {
	if s == "" {
		return nil
	}
	labels := strings.Split(s, ",")
	if len(labels) != n {
		return nil
	}
	return labels
}

// dimLengths computes the lengths of the named dimensions from the
// dataset axes and grid shape.
func (d *Dataset) dimLengths() (names []string, lengths []int, err error) {
	var ny, nx int
	if d.Lon != nil {
		ny, nx, err = d.GridShape()
		if err != nil {
			return nil, nil, err
		}
	}
	add := func(n string, l int) {
		names = append(names, n)
		lengths = append(lengths, l)
	}
	if len(d.Time) > 0 {
		add(TimeDim, len(d.Time))
	}
	if len(d.Seasons) > 0 {
		add(SeasonDim, len(d.Seasons))
	}
	if len(d.Months) > 0 {
		add(MonthDim, len(d.Months))
	}
	if len(d.Depth) > 0 {
		add(DepthDim, len(d.Depth))
	}
	if d.Lon != nil {
		add(YDim, ny)
		add(XDim, nx)
	}
	if d.LonB != nil && d.LatB != nil {
		if d.Rectilinear() {
			add("y_b", d.LatB.Shape[0])
			add("x_b", d.LonB.Shape[0])
		} else {
			add("y_b", d.LonB.Shape[0])
			add("x_b", d.LonB.Shape[1])
		}
	}
	if len(d.Obs) > 0 {
		add(ObsDim, len(d.Obs))
	} else {
		for _, v := range d.Vars {
			if i := dimIndex(v.Dims, ObsDim); i >= 0 {
				add(ObsDim, v.Data.Shape[i])
				break
			}
		}
	}
	return names, lengths, nil
}

// Write writes d to NetCDF file w. Variables are written in sorted order
// so that the same dataset always produces the same file.
func (d *Dataset) Write(w *os.File) error {
	dimNames, dimLens, err := d.dimLengths()
	if err != nil {
		return fmt.Errorf("oceanval: writing dataset: %v", err)
	}
	h := cdf.NewHeader(dimNames, dimLens)
	h.AddAttribute("", "comment", "OceanVal ocean model validation data file")
	h.AddAttribute("", "data_version", DataVersion)
	for _, a := range sortedKeys(d.Attrs) {
		if a == "comment" || a == "data_version" {
			continue
		}
		h.AddAttribute("", a, d.Attrs[a])
	}
	if d.Bounds != nil {
		h.AddAttribute("", "lon_bounds", []float64{d.Bounds.Lon[0], d.Bounds.Lon[1]})
		h.AddAttribute("", "lat_bounds", []float64{d.Bounds.Lat[0], d.Bounds.Lat[1]})
	}

	gridDims := []string{YDim, XDim}
	if d.Lon != nil {
		if d.Rectilinear() {
			h.AddVariable("lon", []string{XDim}, []float64{0})
			h.AddVariable("lat", []string{YDim}, []float64{0})
		} else {
			h.AddVariable("lon", gridDims, []float64{0})
			h.AddVariable("lat", gridDims, []float64{0})
		}
		h.AddAttribute("lon", "units", "degrees_east")
		h.AddAttribute("lat", "units", "degrees_north")
	}
	if d.LonB != nil && d.LatB != nil {
		if d.Rectilinear() {
			h.AddVariable("lon_b", []string{"x_b"}, []float64{0})
			h.AddVariable("lat_b", []string{"y_b"}, []float64{0})
		} else {
			h.AddVariable("lon_b", []string{"y_b", "x_b"}, []float64{0})
			h.AddVariable("lat_b", []string{"y_b", "x_b"}, []float64{0})
		}
	}
	if d.Mask != nil && d.Lon != nil {
		h.AddVariable("mask", gridDims, []float32{0})
	}
	if len(d.Time) > 0 {
		h.AddVariable("time", []string{TimeDim}, []float64{0})
		h.AddAttribute("time", "units", "days since 1900-01-01")
	}
	if len(d.Depth) > 0 {
		h.AddVariable("depth", []string{DepthDim}, []float64{0})
		h.AddAttribute("depth", "units", "m")
	}
	if len(d.Seasons) > 0 {
		h.AddVariable("season", []string{SeasonDim}, []int32{0})
		h.AddAttribute("season", "labels", strings.Join(d.Seasons, ","))
	}
	if len(d.Months) > 0 {
		h.AddVariable("month", []string{MonthDim}, []int32{0})
		h.AddAttribute("month", "labels", strings.Join(d.Months, ","))
	}
	if len(d.Obs) > 0 {
		h.AddVariable("obs", []string{ObsDim}, []int32{0})
		h.AddAttribute("obs", "labels", strings.Join(d.Obs, ","))
	}

	names := d.VarNames()
	for _, name := range names {
		v := d.Vars[name]
		h.AddVariable(name, v.Dims, []float32{0})
		h.AddAttribute(name, "description", v.Description)
		h.AddAttribute(name, "units", v.Units)
	}
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("oceanval: writing dataset: %v", err)
	}
	if d.Lon != nil {
		if err := writeNCF64(f, "lon", d.Lon.Elements); err != nil {
			return err
		}
		if err := writeNCF64(f, "lat", d.Lat.Elements); err != nil {
			return err
		}
	}
	if d.LonB != nil && d.LatB != nil {
		if err := writeNCF64(f, "lon_b", d.LonB.Elements); err != nil {
			return err
		}
		if err := writeNCF64(f, "lat_b", d.LatB.Elements); err != nil {
			return err
		}
	}
	if d.Mask != nil && d.Lon != nil {
		if err := writeNCF(f, "mask", d.Mask); err != nil {
			return err
		}
	}
	if len(d.Time) > 0 {
		tvals := make([]float64, len(d.Time))
		for i, t := range d.Time {
			tvals[i] = t.Sub(timeEpoch).Hours() / 24
		}
		if err := writeNCF64(f, "time", tvals); err != nil {
			return err
		}
	}
	if len(d.Depth) > 0 {
		if err := writeNCF64(f, "depth", d.Depth); err != nil {
			return err
		}
	}
	if len(d.Seasons) > 0 {
		if err := writeNCFIndex(f, "season", len(d.Seasons)); err != nil {
			return err
		}
	}
	if len(d.Months) > 0 {
		if err := writeNCFIndex(f, "month", len(d.Months)); err != nil {
			return err
		}
	}
	if len(d.Obs) > 0 {
		if err := writeNCFIndex(f, "obs", len(d.Obs)); err != nil {
			return err
		}
	}
	for _, name := range names {
		if err := writeNCF(f, name, d.Vars[name].Data); err != nil {
			return fmt.Errorf("oceanval: writing variable %s to netcdf file: %v", name, err)
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		return fmt.Errorf("oceanval: writing dataset: %v", err)
	}
	return nil
}

// WriteFile writes d to the named NetCDF file.
func (d *Dataset) WriteFile(filename string) error {
	w, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("oceanval: writing dataset: %v", err)
	}
	if err := d.Write(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func writeNCF(f *cdf.File, Var string, data *sparse.DenseArray) error {
	// Check that data matches dimensions.
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}
	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths(Var)
	start := make([]int, len(end))
	w := f.Writer(Var, start, end)
	if _, err := w.Write(data32); err != nil {
		return err
	}
	return nil
}

func writeNCF64(f *cdf.File, Var string, data []float64) error {
	end := f.Header.Lengths(Var)
	start := make([]int, len(end))
	w := f.Writer(Var, start, end)
	if _, err := w.Write(data); err != nil {
		return err
	}
	return nil
}

func writeNCFIndex(f *cdf.File, Var string, n int) error {
	idx := make([]int32, n)
	for i := range idx {
		idx[i] = int32(i)
	}
	end := f.Header.Lengths(Var)
	start := make([]int, len(end))
	w := f.Writer(Var, start, end)
	if _, err := w.Write(idx); err != nil {
		return err
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
