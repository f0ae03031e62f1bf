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

// Package obs loads ocean observation datasets from cloud object
// storage or the local filesystem. Each supported dataset family
// implements oceanval.ObsLoader and registers itself when this package
// is imported, so callers select datasets by name rather than by
// constructing a concrete loader.
package obs

import (
	"context"
	"fmt"
	"strings"

	"github.com/ctessum/sparse"
	"github.com/oceanmodel/oceanval"
)

// fieldSpec tells the shared load pipeline how to extract one
// canonical variable from a stored object.
type fieldSpec struct {
	family    string // dataset name, recorded in the obs_name attribute
	path      string // object path, resolved against the store base
	srcVar    string // variable name inside the stored object
	canonical string // variable name in the returned dataset
	surface   bool   // keep only the shallowest depth level
	series    bool   // 1-dimensional series without a horizontal grid
	ready     bool   // object is already at the requested climatology
}

// inheritedAttrs are the object attributes carried over onto loaded
// fields.
var inheritedAttrs = []string{"long_name", "units", "source", "references"}

// loadField fetches the object named by spec and processes the
// requested variable: rename to the canonical name, inherit source
// attributes, normalize longitudes, and apply the requested spatial,
// time, depth, and climatology reductions in that order.
func loadField(ctx context.Context, st *Store, spec fieldSpec, req *oceanval.ObsRequest) (*oceanval.Dataset, error) {
	d, err := st.Dataset(ctx, spec.path)
	if err != nil {
		return nil, err
	}
	v, ok := d.Vars[spec.srcVar]
	if !ok {
		return nil, fmt.Errorf("obs: %s: object %s has no variable %q (found %s)",
			spec.family, spec.path, spec.srcVar, strings.Join(d.VarNames(), ", "))
	}

	out := oceanval.NewDataset()
	if !spec.series {
		out.Lon, out.Lat = d.Lon, d.Lat
		out.LonB, out.LatB = d.LonB, d.LatB
		out.Mask = d.Mask
	}
	out.Time, out.Depth = d.Time, d.Depth
	out.Seasons, out.Months = d.Seasons, d.Months
	out.Vars[spec.canonical] = v
	for _, k := range inheritedAttrs {
		if val, ok := d.Attrs[k]; ok {
			out.Attrs[k] = val
		}
	}
	out.Attrs["obs_name"] = spec.family

	if spec.surface {
		surfaceLevel(out)
	}
	if !spec.series && out.Lon != nil {
		oceanval.NormalizeLongitudes(out)
	}

	if !spec.series && (req.LonBounds != nil || req.LatBounds != nil) {
		lonB, latB := [2]float64{-180, 180}, [2]float64{-90, 90}
		if req.LonBounds != nil {
			lonB = *req.LonBounds
		}
		if req.LatBounds != nil {
			latB = *req.LatBounds
		}
		out, err = oceanval.SelectLonLat(out, lonB, latB, true)
		if err != nil {
			return nil, err
		}
	}

	if req.TimeBounds.Label == "" && !req.TimeBounds.IsZero() {
		start, end, err := req.TimeBounds.Resolve()
		if err != nil {
			return nil, err
		}
		out, err = oceanval.SelectTime(out, start, end, true)
		if err != nil {
			return nil, err
		}
	}

	if req.DepthBounds != nil && len(out.Depth) > 0 {
		out, err = oceanval.SelectDepth(out, *req.DepthBounds, true)
		if err != nil {
			return nil, err
		}
	}

	if req.Freq != "" && !spec.ready {
		if len(out.Time) == 0 {
			return nil, fmt.Errorf("obs: %s: object %s has no time axis to reduce to a %q climatology",
				spec.family, spec.path, req.Freq)
		}
		out, err = oceanval.Climatology(out, req.Freq)
		if err != nil {
			return nil, err
		}
	}

	if out.Bounds == nil {
		gridded := out
		if spec.series {
			// A stored series has no grid of its own; the extent of
			// the object's grid stands in for it.
			gridded = d
		}
		if gridded.Lon != nil {
			b, err := oceanval.SpatialBoundsOf(gridded)
			if err != nil {
				return nil, err
			}
			out.Bounds = b
		}
	}
	return out, nil
}

// surfaceLevel reduces depth-resolved variables in d to the shallowest
// depth level and removes the depth axis.
func surfaceLevel(d *oceanval.Dataset) {
	if len(d.Depth) == 0 {
		return
	}
	k := 0
	for i, v := range d.Depth {
		if v < d.Depth[k] {
			k = i
		}
	}
	for name, v := range d.Vars {
		ax := axisOf(v.Dims, oceanval.DepthDim)
		if ax < 0 {
			continue
		}
		data := sliceIndex(v.Data, ax, k)
		dims := append(append([]string{}, v.Dims[:ax]...), v.Dims[ax+1:]...)
		d.Vars[name] = &oceanval.DataVar{
			Dims:        dims,
			Description: v.Description,
			Units:       v.Units,
			Data:        data,
		}
	}
	d.Depth = nil
}

func axisOf(dims []string, name string) int {
	for i, dim := range dims {
		if dim == name {
			return i
		}
	}
	return -1
}

// sliceIndex takes index k along axis ax of a, dropping that axis.
func sliceIndex(a *sparse.DenseArray, ax, k int) *sparse.DenseArray {
	shape := append(append([]int{}, a.Shape[:ax]...), a.Shape[ax+1:]...)
	out := sparse.ZerosDense(shape...)
	for i := range out.Elements {
		idx := out.IndexNd(i)
		full := make([]int, 0, len(a.Shape))
		full = append(full, idx[:ax]...)
		full = append(full, k)
		full = append(full, idx[ax:]...)
		out.Elements[i] = a.Get(full...)
	}
	return out
}

// checkVariable returns a terminal error when the requested variable is
// not one the dataset provides.
func checkVariable(family string, req *oceanval.ObsRequest, variables []string) error {
	for _, v := range variables {
		if req.Variable == v {
			return nil
		}
	}
	return fmt.Errorf("obs: %s does not provide variable %q; available variables are %s",
		family, req.Variable, strings.Join(variables, ", "))
}

// checkLabel returns a terminal error when the requested climatology
// label is not one of the dataset's pre-computed periods.
func checkLabel(family string, req *oceanval.ObsRequest, labels ...string) error {
	if req.TimeBounds.Label == "" {
		return nil
	}
	for _, l := range labels {
		if req.TimeBounds.Label == l {
			return nil
		}
	}
	return fmt.Errorf("obs: %s has no pre-computed %q climatology; available climatologies are %s",
		family, req.TimeBounds.Label, strings.Join(labels, ", "))
}
