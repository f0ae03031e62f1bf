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
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/ctessum/sparse"
	"github.com/oceanmodel/oceanval/regrid"
)

// Targets for ErrorSpec.RegridTo.
const (
	ToModel = "model"
	ToObs   = "obs"
)

// Validator compares ocean model output against observational
// datasets. Error fields and aggregated model diagnostics accumulate
// in Results, the observation fields they were compared against in
// Obs, and aggregate statistics in Stats.
type Validator struct {
	// Data is the model dataset under validation. It must have a time
	// axis, a land-sea mask, and cell-center coordinates.
	Data *Dataset

	// Loader, when non-nil, serves every observation request in place
	// of the registered dataset loaders.
	Loader ObsLoader

	// Results holds model-minus-observation error fields and
	// aggregated model diagnostics.
	Results *ResultSet
	// Obs holds the observation fields used in comparisons.
	Obs *ResultSet
	// Stats holds the aggregate statistics of the most recent
	// computation that requested them.
	Stats *ResultSet

	lonBounds, latBounds [2]float64
	depthBounds          *[2]float64
}

// NewValidator creates a Validator for the given model dataset. The
// dataset must carry a time axis, a mask, and cell-center coordinates
// within [-180, 180] longitude and [-90, 90] latitude; its outward-
// rounded spatial extent is passed to observation loaders as a crop
// hint.
func NewValidator(model *Dataset) (*Validator, error) {
	if model == nil {
		return nil, fmt.Errorf("oceanval: creating a validator: model dataset is nil")
	}
	if len(model.Time) == 0 {
		return nil, fmt.Errorf("oceanval: creating a validator: model dataset has no time axis")
	}
	if model.Mask == nil {
		return nil, fmt.Errorf("oceanval: creating a validator: model dataset has no mask variable")
	}
	if model.Lon == nil || model.Lat == nil {
		return nil, fmt.Errorf("oceanval: creating a validator: model dataset has no cell-center coordinates")
	}
	b, err := SpatialBoundsOf(model)
	if err != nil {
		return nil, err
	}
	if err := ValidateLonBounds(b.Lon); err != nil {
		return nil, err
	}
	if err := ValidateLatBounds(b.Lat); err != nil {
		return nil, err
	}
	v := &Validator{
		Data:      model,
		Results:   NewResultSet(),
		Obs:       NewResultSet(),
		Stats:     NewResultSet(),
		lonBounds: b.Lon,
		latBounds: b.Lat,
	}
	if len(model.Depth) > 0 {
		zmin, zmax := model.Depth[0], model.Depth[0]
		for _, z := range model.Depth {
			zmin = math.Min(zmin, z)
			zmax = math.Max(zmax, z)
		}
		v.depthBounds = &[2]float64{math.Floor(zmin), math.Ceil(zmax)}
	}
	return v, nil
}

// obsRequest builds an observation request carrying the model's
// spatial extent as a crop hint.
func (v *Validator) obsRequest(variable, region string, tb TimeBounds, freq Freq) *ObsRequest {
	lon, lat := v.lonBounds, v.latBounds
	return &ObsRequest{
		Variable:   variable,
		Region:     region,
		TimeBounds: tb,
		LonBounds:  &lon,
		LatBounds:  &lat,
		Freq:       freq,
	}
}

func (v *Validator) loadObs(ctx context.Context, name string, req *ObsRequest) (*Dataset, error) {
	loader := v.Loader
	if loader == nil {
		var err error
		if loader, err = LookupObs(name); err != nil {
			return nil, err
		}
	}
	return loader.Load(ctx, req)
}

// fieldDataset returns a dataset holding only the named model variable
// together with the model grid and axes.
func (v *Validator) fieldDataset(name string) *Dataset {
	d := shallowCopy(v.Data)
	d.Vars = map[string]*DataVar{name: v.Data.Vars[name]}
	return d
}

// ErrorSpec configures a model-observation error computation.
type ErrorSpec struct {
	// Variable names the model variable to validate.
	Variable string

	// Obs names the observational dataset and ObsVariable the
	// variable requested from it. An empty ObsVariable requests the
	// model variable's name.
	Obs         string
	ObsVariable string

	// Region restricts the comparison to a named region of the
	// observational dataset; empty compares the full overlap.
	Region string

	// TimeBounds limits the period entering both climatologies, by
	// explicit range or by a pre-computed climatology label.
	TimeBounds TimeBounds

	// Freq is the climatology frequency; empty means total.
	Freq Freq

	// RegridTo selects the common grid: "model" (the default)
	// interpolates the observations onto the model grid, "obs" the
	// model onto the observation grid.
	RegridTo string

	// Method is the interpolation method; empty means bilinear.
	Method regrid.Method

	// Stats replaces the statistics container with the aggregate
	// statistics of this comparison.
	Stats bool
}

// ComputeError2D computes the model-minus-observation error of a
// 2-dimensional field. The observation field is loaded and reduced by
// its loader, the model field is cropped to the observation's realized
// bounds when a region was requested, both are reduced to the same
// climatology, and one is interpolated onto the other's grid. The
// error, tagged with an observation-source axis, and the model field
// are stored in Results; the observation field in Obs. Errors against
// further datasets on the same grid extend the observation axis of the
// stored error; a change of grid replaces it. Nothing is stored if any
// step fails.
func (v *Validator) ComputeError2D(ctx context.Context, spec *ErrorSpec) error {
	freq := spec.Freq
	if freq == "" {
		freq = FreqTotal
	}
	regridTo := spec.RegridTo
	if regridTo == "" {
		regridTo = ToModel
	}
	method := spec.Method
	if method == "" {
		method = regrid.Bilinear
	}
	if _, ok := v.Data.Vars[spec.Variable]; !ok {
		return fmt.Errorf("oceanval: variable %q not found in the model dataset", spec.Variable)
	}
	if spec.Obs == "" {
		return fmt.Errorf("oceanval: computing an error field: no observational dataset named")
	}
	if regridTo != ToModel && regridTo != ToObs {
		return fmt.Errorf("oceanval: regrid target must be %q or %q; got %q", ToModel, ToObs, spec.RegridTo)
	}
	if _, err := ParseFreq(string(freq)); err != nil {
		return err
	}
	if _, err := regrid.ParseMethod(string(method)); err != nil {
		return err
	}
	obsVariable := spec.ObsVariable
	if obsVariable == "" {
		obsVariable = spec.Variable
	}

	obsData, err := v.loadObs(ctx, spec.Obs, v.obsRequest(obsVariable, spec.Region, spec.TimeBounds, freq))
	if err != nil {
		return err
	}
	obsVar, obsName, err := datasetVariable(obsData, obsVariable, spec.Obs)
	if err != nil {
		return err
	}

	mdl := v.fieldDataset(spec.Variable)
	if spec.Region != "" {
		if obsData.Bounds == nil {
			return fmt.Errorf("oceanval: %s did not report the extent of region %q", spec.Obs, spec.Region)
		}
		if mdl, err = SelectLonLat(mdl, obsData.Bounds.Lon, obsData.Bounds.Lat, false); err != nil {
			return err
		}
	}
	if !spec.TimeBounds.IsZero() {
		start, end, err := spec.TimeBounds.Resolve()
		if err != nil {
			return err
		}
		if mdl, err = SelectTime(mdl, start, end, false); err != nil {
			return err
		}
	}
	if mdl, err = Climatology(mdl, freq); err != nil {
		return err
	}
	mdlVar := mdl.Vars[spec.Variable]

	mdlGrid, err := regrid.NewGrid(mdl.Lon, mdl.Lat, mdl.LonB, mdl.LatB)
	if err != nil {
		return err
	}
	obsGrid, err := regrid.NewGrid(obsData.Lon, obsData.Lat, obsData.LonB, obsData.LatB)
	if err != nil {
		return err
	}

	// Interpolate one side onto the other. mdlSide and obsSide end up
	// on the common grid.
	mdlSide, obsSide := mdlVar, obsVar
	switch regridTo {
	case ToModel:
		rg, err := regrid.New(obsGrid, mdlGrid, method)
		if err != nil {
			return err
		}
		data, err := rg.Apply(obsVar.Data)
		if err != nil {
			return err
		}
		obsSide = &DataVar{Dims: obsVar.Dims, Description: obsVar.Description, Units: obsVar.Units, Data: data}
	case ToObs:
		rg, err := regrid.New(mdlGrid, obsGrid, method)
		if err != nil {
			return err
		}
		data, err := rg.Apply(mdlVar.Data)
		if err != nil {
			return err
		}
		mdlSide = &DataVar{Dims: mdlVar.Dims, Description: mdlVar.Description, Units: mdlVar.Units, Data: data}
	}
	if !reflect.DeepEqual(mdlSide.Dims, obsSide.Dims) || !reflect.DeepEqual(mdlSide.Data.Shape, obsSide.Data.Shape) {
		return fmt.Errorf("oceanval: model climatology %v %v does not line up with the %s %s climatology %v %v",
			mdlSide.Dims, mdlSide.Data.Shape, spec.Obs, obsName, obsSide.Dims, obsSide.Data.Shape)
	}

	// Coordinates of the common grid, in the model's reduced state.
	gridCoords := CoordsOf(mdl)
	if regridTo == ToObs {
		gridCoords.Lon = obsData.Lon.Copy()
		gridCoords.Lat = obsData.Lat.Copy()
	}
	desc := fmt.Sprintf("%s minus %s %s", spec.Variable, spec.Obs, obsName)

	var newStats *ResultSet
	if spec.Stats {
		s, err := AggregateStats(mdlSide.Data, obsSide.Data, mdlSide.Dims)
		if err != nil {
			return err
		}
		newStats = statsSet(s, mdlVar.Units, desc, gridCoords)
	}

	errCoords := cloneCoords(gridCoords)
	errCoords.Obs = []string{spec.Obs}
	errEntry := &Entry{
		Name:        spec.Variable + "_error",
		Dims:        append([]string{ObsDim}, mdlSide.Dims...),
		Description: desc,
		Units:       mdlVar.Units,
		Data:        prependObsAxis(subtract(mdlSide.Data, obsSide.Data)),
		Coords:      errCoords,
	}
	mdlEntry := &Entry{
		Name:        spec.Variable,
		Dims:        mdlSide.Dims,
		Description: mdlVar.Description,
		Units:       mdlVar.Units,
		Data:        mdlSide.Data,
		Coords:      cloneCoords(gridCoords),
	}
	obsEntryName := obsName
	if regridTo == ToModel {
		// On the model grid the observations stand in for the model
		// variable, so they take its name.
		obsEntryName = spec.Variable
	}
	obsEntry := &Entry{
		Name:        obsEntryName + "_" + strings.ToLower(spec.Obs),
		Dims:        obsSide.Dims,
		Description: obsVar.Description,
		Units:       obsVar.Units,
		Data:        obsSide.Data,
		Coords:      cloneCoords(gridCoords),
	}

	v.mergeResult(errEntry)
	v.Results.Put(mdlEntry)
	v.Obs.Put(obsEntry)
	if newStats != nil {
		v.Stats = newStats
	}
	return nil
}

// SeriesSpec configures a 1-dimensional diagnostic computation.
type SeriesSpec struct {
	// Variable names the model variable to aggregate.
	Variable string

	// Mask hides model cells before aggregation: cells where the mask
	// is zero or NaN do not contribute. Its trailing axes must match
	// the variable's.
	Mask *DataVar

	// Weights weight each contributing cell, e.g. with cell areas.
	// They must cover the model's horizontal grid.
	Weights *DataVar

	// Method is the spatial reduction; empty means sum.
	Method AggMethod

	// OutName names the stored series; empty means Variable.
	OutName string

	// Obs names the observational dataset providing the comparison
	// series and ObsVariable the variable requested from it. An empty
	// ObsVariable requests the model variable's name.
	Obs         string
	ObsVariable string

	// AggregateObs derives the comparison series from the dataset's
	// cell areas over the cells where the loaded observation field is
	// nonzero, the same integral the catalog uses for its stored ice
	// series, instead of expecting a stored 1-dimensional series.
	AggregateObs bool

	// Region restricts the diagnostic to a named region of the
	// observational dataset.
	Region string

	// TimeBounds limits the period entering both series.
	TimeBounds TimeBounds

	// Stats replaces the statistics container with the aggregate
	// statistics of the paired series over their shared timesteps.
	Stats bool
}

// ComputeTimeseries aggregates a model field over its horizontal grid
// into a time series and loads the matching observation series for
// comparison. The model series, tagged with an observation-source
// axis, is stored in Results and the observation series in Obs. Axes
// other than the horizontal pair pass through the reduction, so a
// depth-resolved field yields one series per level. Nothing is stored
// if any step fails.
func (v *Validator) ComputeTimeseries(ctx context.Context, spec *SeriesSpec) error {
	field, ok := v.Data.Vars[spec.Variable]
	if !ok {
		return fmt.Errorf("oceanval: variable %q not found in the model dataset", spec.Variable)
	}
	return v.computeSeries(ctx, field, spec)
}

func (v *Validator) computeSeries(ctx context.Context, field *DataVar, spec *SeriesSpec) error {
	method := spec.Method
	if method == "" {
		method = AggSum
	}
	if _, err := ParseAggMethod(string(method)); err != nil {
		return err
	}
	if spec.Obs == "" {
		return fmt.Errorf("oceanval: computing a diagnostic series: no observational dataset named")
	}
	obsVariable := spec.ObsVariable
	if obsVariable == "" {
		obsVariable = spec.Variable
	}
	outName := spec.OutName
	if outName == "" {
		outName = spec.Variable
	}

	obsData, err := v.loadObs(ctx, spec.Obs, v.obsRequest(obsVariable, spec.Region, spec.TimeBounds, ""))
	if err != nil {
		return err
	}
	obsVar, obsName, err := datasetVariable(obsData, obsVariable, spec.Obs)
	if err != nil {
		return err
	}
	if spec.AggregateObs {
		if obsVar, err = v.obsAreaSeries(ctx, obsVar, method, spec); err != nil {
			return err
		}
	}

	// The mask and weights ride along in the working dataset so that
	// regional and time subsetting keep them aligned with the field.
	work := shallowCopy(v.Data)
	work.Vars = map[string]*DataVar{spec.Variable: field}
	maskName := spec.Variable + "_mask"
	weightsName := spec.Variable + "_weights"
	if spec.Mask != nil {
		work.Vars[maskName] = spec.Mask
	}
	if spec.Weights != nil {
		work.Vars[weightsName] = spec.Weights
	}
	if spec.Region != "" {
		if obsData.Bounds == nil {
			return fmt.Errorf("oceanval: %s did not report the extent of region %q", spec.Obs, spec.Region)
		}
		if work, err = SelectLonLat(work, obsData.Bounds.Lon, obsData.Bounds.Lat, false); err != nil {
			return err
		}
	}
	if !spec.TimeBounds.IsZero() {
		start, end, err := spec.TimeBounds.Resolve()
		if err != nil {
			return err
		}
		if work, err = SelectTime(work, start, end, false); err != nil {
			return err
		}
	}

	f := work.Vars[spec.Variable]
	if m, ok := work.Vars[maskName]; ok {
		if f, err = ApplyMask(f, m); err != nil {
			return err
		}
	}
	var weights *sparse.DenseArray
	if w, ok := work.Vars[weightsName]; ok {
		weights = w.Data
	}
	series, err := Aggregate1D(f, method, nil, weights)
	if err != nil {
		return err
	}
	desc := fmt.Sprintf("%s minus %s %s", outName, spec.Obs, obsName)

	var newStats *ResultSet
	if spec.Stats {
		m, o, err := alignSeries(series, work.Time, obsVar, obsData.Time, spec.Obs)
		if err != nil {
			return err
		}
		s, err := AggregateStats(m, o, []string{TimeDim})
		if err != nil {
			return err
		}
		newStats = statsSet(s, series.Units, desc, nil)
	}

	coords := &Coords{Obs: []string{spec.Obs}}
	if dimIndex(series.Dims, TimeDim) >= 0 {
		coords.Time = append([]time.Time{}, work.Time...)
	}
	if dimIndex(series.Dims, DepthDim) >= 0 {
		coords.Depth = append([]float64{}, work.Depth...)
	}
	v.mergeResult(&Entry{
		Name:        outName,
		Dims:        append([]string{ObsDim}, series.Dims...),
		Description: series.Description,
		Units:       series.Units,
		Data:        prependObsAxis(series.Data),
		Coords:      coords,
	})
	obsCoords := CoordsOf(obsData)
	if spec.AggregateObs {
		obsCoords = &Coords{Time: append([]time.Time{}, obsData.Time...)}
	}
	v.Obs.Put(&Entry{
		Name:        obsName + "_" + strings.ToLower(spec.Obs),
		Dims:        obsVar.Dims,
		Description: obsVar.Description,
		Units:       obsVar.Units,
		Data:        obsVar.Data,
		Coords:      obsCoords,
	})
	if newStats != nil {
		v.Stats = newStats
	}
	return nil
}

// obsAreaSeries integrates the observational dataset's cell areas over
// the cells where field is nonzero, reproducing the catalog's own
// recipe for its stored ice series.
func (v *Validator) obsAreaSeries(ctx context.Context, field *DataVar, method AggMethod, spec *SeriesSpec) (*DataVar, error) {
	areaData, err := v.loadObs(ctx, spec.Obs, v.obsRequest("areacello", spec.Region, spec.TimeBounds, ""))
	if err != nil {
		return nil, err
	}
	area, _, err := datasetVariable(areaData, "areacello", spec.Obs)
	if err != nil {
		return nil, err
	}
	masked, err := ApplyMask(area, field)
	if err != nil {
		return nil, err
	}
	series, err := Aggregate1D(masked, method, nil, nil)
	if err != nil {
		return nil, err
	}
	series.Description = field.Description
	return series, nil
}

// LoadObs loads an observation field and stores it in Obs without
// computing an error. A nil request loads the dataset's full extent.
func (v *Validator) LoadObs(ctx context.Context, name string, req *ObsRequest) error {
	if req == nil {
		req = new(ObsRequest)
	}
	d, err := v.loadObs(ctx, name, req)
	if err != nil {
		return err
	}
	ov, canonical, err := datasetVariable(d, req.Variable, name)
	if err != nil {
		return err
	}
	v.Obs.Put(&Entry{
		Name:        canonical + "_" + strings.ToLower(name),
		Dims:        ov.Dims,
		Description: ov.Description,
		Units:       ov.Units,
		Data:        ov.Data,
		Coords:      CoordsOf(d),
	})
	return nil
}

// ComputeSSTError validates model sea surface temperature. Zero spec
// fields default to the tos_con model variable, the OISSTv2 dataset,
// and a total climatology on the model grid.
func (v *Validator) ComputeSSTError(ctx context.Context, spec *ErrorSpec) error {
	return v.ComputeError2D(ctx, fillErrorSpec(spec, &ErrorSpec{
		Variable: "tos_con", Obs: "OISSTv2", ObsVariable: "sst",
	}))
}

// ComputeSSSError validates model sea surface salinity. Zero spec
// fields default to the sos_abs model variable, the ARMOR3D dataset,
// and a total climatology on the model grid.
func (v *Validator) ComputeSSSError(ctx context.Context, spec *ErrorSpec) error {
	return v.ComputeError2D(ctx, fillErrorSpec(spec, &ErrorSpec{
		Variable: "sos_abs", Obs: "ARMOR3D", ObsVariable: "sss",
	}))
}

// ComputeMLDError validates model mixed layer depth. Zero spec fields
// default to the mld model variable, the ARMOR3D dataset, and a total
// climatology on the model grid; the LOPS dataset is the usual
// alternative.
func (v *Validator) ComputeMLDError(ctx context.Context, spec *ErrorSpec) error {
	return v.ComputeError2D(ctx, fillErrorSpec(spec, &ErrorSpec{
		Variable: "mld", Obs: "ARMOR3D", ObsVariable: "mld",
	}))
}

// ComputeSiconcError validates model sea ice concentration. Zero spec
// fields default to the siconc model variable, the NSIDC dataset, the
// arctic region, and a March climatology on the model grid.
func (v *Validator) ComputeSiconcError(ctx context.Context, spec *ErrorSpec) error {
	return v.ComputeError2D(ctx, fillErrorSpec(spec, &ErrorSpec{
		Variable: "siconc", Obs: "NSIDC", ObsVariable: "siconc",
		Region: "arctic", Freq: "mar",
	}))
}

// IceSeriesSpec configures the sea ice series presets.
type IceSeriesSpec struct {
	// Siconc names the model sea ice concentration variable; empty
	// means siconc.
	Siconc string

	// Area names the model cell-area variable; empty means areacello.
	// When the model dataset has no such variable, spherical cell
	// areas derived from the grid are used.
	Area string

	// Obs names the observational dataset; empty means NSIDC.
	Obs string

	// Region selects the polar region; empty means arctic.
	Region string

	// TimeBounds limits the period entering both series.
	TimeBounds TimeBounds

	// Stats replaces the statistics container with the aggregate
	// statistics of the paired series.
	Stats bool
}

// ComputeSiareaSeries computes the total area [m2] of model cells with
// sea ice concentration above 15% as a time series, compared against
// the dataset's stored sea ice area series.
func (v *Validator) ComputeSiareaSeries(ctx context.Context, spec *IceSeriesSpec) error {
	s := fillIceSpec(spec)
	area, areaName, mask, err := v.iceSeriesInputs(s)
	if err != nil {
		return err
	}
	return v.computeSeries(ctx, area, &SeriesSpec{
		Variable:    areaName,
		Mask:        mask,
		Method:      AggSum,
		OutName:     "siarea",
		Obs:         s.Obs,
		ObsVariable: "siarea",
		Region:      s.Region,
		TimeBounds:  s.TimeBounds,
		Stats:       s.Stats,
	})
}

// ComputeSiextSeries computes the model sea ice extent [m2], the total
// area of cells with concentration above 15%, as a time series. The
// comparison series is integrated from the dataset's gridded extent
// flags and cell areas.
func (v *Validator) ComputeSiextSeries(ctx context.Context, spec *IceSeriesSpec) error {
	s := fillIceSpec(spec)
	area, areaName, mask, err := v.iceSeriesInputs(s)
	if err != nil {
		return err
	}
	return v.computeSeries(ctx, area, &SeriesSpec{
		Variable:     areaName,
		Mask:         mask,
		Method:       AggSum,
		OutName:      "siext",
		Obs:          s.Obs,
		ObsVariable:  "siext",
		AggregateObs: true,
		Region:       s.Region,
		TimeBounds:   s.TimeBounds,
		Stats:        s.Stats,
	})
}

// iceSeriesInputs resolves the cell-area field and the above-15%
// concentration mask for the ice series presets.
func (v *Validator) iceSeriesInputs(s *IceSeriesSpec) (area *DataVar, areaName string, mask *DataVar, err error) {
	sic, ok := v.Data.Vars[s.Siconc]
	if !ok {
		return nil, "", nil, fmt.Errorf("oceanval: variable %q not found in the model dataset", s.Siconc)
	}
	if a, ok := v.Data.Vars[s.Area]; ok {
		area = a
	} else {
		areas, err := CellAreas(v.Data)
		if err != nil {
			return nil, "", nil, err
		}
		area = &DataVar{
			Dims:        []string{YDim, XDim},
			Description: "grid cell area",
			Units:       "m2",
			Data:        areas,
		}
	}
	mask = &DataVar{Dims: sic.Dims, Data: ThresholdMask(sic.Data, 0.15)}
	return area, s.Area, mask, nil
}

func fillErrorSpec(spec, def *ErrorSpec) *ErrorSpec {
	out := new(ErrorSpec)
	if spec != nil {
		*out = *spec
	}
	if out.Variable == "" {
		out.Variable = def.Variable
	}
	if out.Obs == "" {
		out.Obs = def.Obs
	}
	if out.ObsVariable == "" {
		out.ObsVariable = def.ObsVariable
	}
	if out.Region == "" {
		out.Region = def.Region
	}
	if out.Freq == "" {
		out.Freq = def.Freq
	}
	return out
}

func fillIceSpec(spec *IceSeriesSpec) *IceSeriesSpec {
	out := new(IceSeriesSpec)
	if spec != nil {
		*out = *spec
	}
	if out.Siconc == "" {
		out.Siconc = "siconc"
	}
	if out.Area == "" {
		out.Area = "areacello"
	}
	if out.Obs == "" {
		out.Obs = "NSIDC"
	}
	if out.Region == "" {
		out.Region = "arctic"
	}
	return out
}

// mergeResult extends the stored entry's observation axis when the
// grids line up, and replaces the entry otherwise.
func (v *Validator) mergeResult(e *Entry) {
	if err := v.Results.Merge(e); err != nil {
		v.Results.Put(e)
	}
}

// datasetVariable returns the named variable of d, falling back to the
// only variable present when the name is absent.
func datasetVariable(d *Dataset, name, dataset string) (*DataVar, string, error) {
	if v, ok := d.Vars[name]; ok {
		return v, name, nil
	}
	if len(d.Vars) == 1 {
		for n, v := range d.Vars {
			return v, n, nil
		}
	}
	return nil, "", fmt.Errorf("oceanval: %s returned no %q variable; available variables are %s",
		dataset, name, strings.Join(d.VarNames(), ", "))
}

// alignSeries pairs two time series over the timesteps their axes
// share.
func alignSeries(model *DataVar, modelTime []time.Time, obsv *DataVar, obsTime []time.Time, dataset string) (m, o *sparse.DenseArray, err error) {
	if len(model.Dims) != 1 || model.Dims[0] != TimeDim ||
		len(obsv.Dims) != 1 || obsv.Dims[0] != TimeDim {
		return nil, nil, fmt.Errorf("oceanval: computing series statistics: both series must have a single time axis; got %v and %v",
			model.Dims, obsv.Dims)
	}
	idx := make(map[int64]int, len(obsTime))
	for i, t := range obsTime {
		idx[t.Unix()] = i
	}
	var mv, ov []float64
	for i, t := range modelTime {
		if j, ok := idx[t.Unix()]; ok {
			mv = append(mv, model.Data.Elements[i])
			ov = append(ov, obsv.Data.Elements[j])
		}
	}
	if len(mv) == 0 {
		return nil, nil, fmt.Errorf("oceanval: computing series statistics: the model and %s time axes share no timesteps", dataset)
	}
	m = sparse.ZerosDense(len(mv))
	o = sparse.ZerosDense(len(ov))
	copy(m.Elements, mv)
	copy(o.Elements, ov)
	return m, o, nil
}

// statsSet assembles a statistics container from aggregate statistics.
func statsSet(s *Stats, units, desc string, c *Coords) *ResultSet {
	rs := NewResultSet()
	put := func(name, u string, data *sparse.DenseArray) {
		if data == nil {
			return
		}
		cc := new(Coords)
		if c != nil {
			cc.Seasons = append([]string{}, c.Seasons...)
			cc.Months = append([]string{}, c.Months...)
		}
		rs.Put(&Entry{
			Name:        name,
			Dims:        append([]string{}, s.Dims...),
			Description: desc,
			Units:       u,
			Data:        data,
			Coords:      cc,
		})
	}
	put(StatMAE, units, s.MAE)
	put(StatMSE, "", s.MSE)
	put(StatRMSE, units, s.RMSE)
	put(StatPearsonR, "1", s.PearsonR)
	return rs
}

func cloneCoords(c *Coords) *Coords {
	return CoordsOfEntry(&Entry{Coords: c})
}

func subtract(a, b *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(a.Shape...)
	for i, av := range a.Elements {
		out.Elements[i] = av - b.Elements[i]
	}
	return out
}

// prependObsAxis adds a leading observation-source axis of length one.
func prependObsAxis(data *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(append([]int{1}, data.Shape...)...)
	copy(out.Elements, data.Elements)
	return out
}
