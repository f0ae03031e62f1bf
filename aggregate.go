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

	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
)

// AggMethod selects the spatial reduction used to collapse a field to
// a 1-dimensional diagnostic.
type AggMethod string

const (
	AggSum  AggMethod = "sum"
	AggMean AggMethod = "mean"
	AggStd  AggMethod = "std"
)

// ParseAggMethod converts s to an AggMethod.
func ParseAggMethod(s string) (AggMethod, error) {
	switch AggMethod(s) {
	case AggSum, AggMean, AggStd:
		return AggMethod(s), nil
	}
	return "", fmt.Errorf("oceanval: invalid aggregation method %q; valid values are sum, mean, and std", s)
}

// Aggregate1D collapses the horizontal axes of v to produce a variable
// over the remaining axes, typically a time series. NaN cells are
// skipped. When mask is non-nil only cells with a nonzero mask value
// contribute; when weights is non-nil each cell's value is weighted,
// so that, for example, summing concentration with cell-area weights
// gives an areal integral. An empty sum is 0; an empty mean or
// standard deviation is NaN.
func Aggregate1D(v *DataVar, method AggMethod, mask, weights *sparse.DenseArray) (*DataVar, error) {
	if _, err := ParseAggMethod(string(method)); err != nil {
		return nil, err
	}
	jax := dimIndex(v.Dims, YDim)
	iax := dimIndex(v.Dims, XDim)
	if jax < 0 || iax < 0 {
		return nil, fmt.Errorf("oceanval: aggregating a field: variable has no horizontal axes (dims %v)", v.Dims)
	}
	ny, nx := v.Data.Shape[jax], v.Data.Shape[iax]
	for _, w := range []*sparse.DenseArray{mask, weights} {
		if w != nil && (len(w.Shape) != 2 || w.Shape[0] != ny || w.Shape[1] != nx) {
			return nil, fmt.Errorf("oceanval: aggregating a field: mask or weight shape %v does not match grid (%d, %d)",
				w.Shape, ny, nx)
		}
	}
	var outDims []string
	var outShape []int
	for i, dim := range v.Dims {
		if i == jax || i == iax {
			continue
		}
		outDims = append(outDims, dim)
		outShape = append(outShape, v.Data.Shape[i])
	}
	wsum := sparse.ZerosDense(outShape...)
	wx := sparse.ZerosDense(outShape...)
	wx2 := sparse.ZerosDense(outShape...)
	outIdx := make([]int, 0, len(outShape))
	for flat, val := range v.Data.Elements {
		if math.IsNaN(val) {
			continue
		}
		nd := v.Data.IndexNd(flat)
		j, i := nd[jax], nd[iax]
		if mask != nil && mask.Get(j, i) == 0 {
			continue
		}
		w := 1.0
		if weights != nil {
			w = weights.Get(j, i)
			if math.IsNaN(w) {
				continue
			}
		}
		outIdx = outIdx[:0]
		for k, n := range nd {
			if k == jax || k == iax {
				continue
			}
			outIdx = append(outIdx, n)
		}
		g := wsum.Index1d(outIdx...)
		wsum.Elements[g] += w
		wx.Elements[g] += w * val
		wx2.Elements[g] += w * val * val
	}
	out := sparse.ZerosDense(outShape...)
	for g := range out.Elements {
		n := wsum.Elements[g]
		switch method {
		case AggSum:
			out.Elements[g] = wx.Elements[g]
		case AggMean:
			if n == 0 {
				out.Elements[g] = math.NaN()
			} else {
				out.Elements[g] = wx.Elements[g] / n
			}
		case AggStd:
			if n == 0 {
				out.Elements[g] = math.NaN()
			} else {
				mean := wx.Elements[g] / n
				out.Elements[g] = math.Sqrt(math.Max(0, wx2.Elements[g]/n-mean*mean))
			}
		}
	}
	return &DataVar{
		Dims:        outDims,
		Description: v.Description,
		Units:       v.Units,
		Data:        out,
	}, nil
}

// ApplyMask returns v with cells hidden (set to NaN) wherever mask is
// zero or NaN. The variable with fewer axes must match the trailing
// axes of the other, so a static mask applies to every step of a
// series, and a time-varying mask over a static field yields one
// masked field per step.
func ApplyMask(v, mask *DataVar) (*DataVar, error) {
	long, short := v, mask
	if len(mask.Dims) > len(v.Dims) {
		long, short = mask, v
	}
	offset := len(long.Dims) - len(short.Dims)
	for i, dim := range short.Dims {
		if long.Dims[offset+i] != dim || long.Data.Shape[offset+i] != short.Data.Shape[i] {
			return nil, fmt.Errorf("oceanval: applying a mask: axes %v and %v do not align",
				mask.Dims, v.Dims)
		}
	}
	block := len(short.Data.Elements)
	out := sparse.ZerosDense(long.Data.Shape...)
	for f := range out.Elements {
		fv, fm := f, f
		if long == mask {
			fv = f % block
		} else {
			fm = f % block
		}
		if mv := mask.Data.Elements[fm]; mv == 0 || math.IsNaN(mv) {
			out.Elements[f] = math.NaN()
		} else {
			out.Elements[f] = v.Data.Elements[fv]
		}
	}
	return &DataVar{
		Dims:        append([]string(nil), long.Dims...),
		Description: v.Description,
		Units:       v.Units,
		Data:        out,
	}, nil
}

// ThresholdMask returns a mask that is 1 where v exceeds threshold and
// 0 elsewhere, with NaN passing through.
func ThresholdMask(v *sparse.DenseArray, threshold float64) *sparse.DenseArray {
	out := sparse.ZerosDense(v.Shape...)
	for i, val := range v.Elements {
		switch {
		case math.IsNaN(val):
			out.Elements[i] = math.NaN()
		case val > threshold:
			out.Elements[i] = 1
		}
	}
	return out
}

// earthRadius is the mean Earth radius.
var earthRadius = unit.New(6.371e6, unit.Meter)

// CellAreas returns the spherical surface area of each grid cell [m2]
// with shape [y, x]. Rectilinear grids with boundary coordinates get
// exact cell extents; otherwise extents are estimated from adjacent
// cell-center spacing.
func CellAreas(d *Dataset) (*sparse.DenseArray, error) {
	ny, nx, err := d.GridShape()
	if err != nil {
		return nil, err
	}
	r2 := unit.Mul(earthRadius, earthRadius)
	areas := sparse.ZerosDense(ny, nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			dlon, lat0, lat1 := cellExtent(d, j, i, ny, nx)
			frac := dlon * math.Pi / 180 *
				math.Abs(math.Sin(lat1*math.Pi/180)-math.Sin(lat0*math.Pi/180))
			a := unit.Mul(r2, unit.New(frac, unit.Dimless))
			if !a.Dimensions().Matches(unit.Meter2) {
				return nil, fmt.Errorf("oceanval: computing cell areas: unexpected units %v", a.Dimensions())
			}
			areas.Elements[areas.Index1d(j, i)] = a.Value()
		}
	}
	return areas, nil
}

// cellExtent returns the longitude width [degrees] and the latitude
// edges [degrees] of cell (j, i).
func cellExtent(d *Dataset, j, i, ny, nx int) (dlon, lat0, lat1 float64) {
	if d.Rectilinear() && d.LonB != nil && d.LatB != nil &&
		len(d.LonB.Shape) == 1 && len(d.LatB.Shape) == 1 {
		dlon = math.Abs(d.LonB.Get(i+1) - d.LonB.Get(i))
		return dlon, d.LatB.Get(j), d.LatB.Get(j + 1)
	}
	dlon = centerSpacing(func(k int) float64 { return d.LonAt(j, k) }, i, nx)
	dlat := centerSpacing(func(k int) float64 { return d.LatAt(k, i) }, j, ny)
	lat := d.LatAt(j, i)
	return dlon, lat - dlat/2, lat + dlat/2
}

// centerSpacing estimates the width of cell k on an axis of length n
// from the spacing of adjacent cell centers.
func centerSpacing(at func(int) float64, k, n int) float64 {
	switch {
	case n < 2:
		return 1
	case k == 0:
		return math.Abs(at(1) - at(0))
	case k == n-1:
		return math.Abs(at(n-1) - at(n-2))
	default:
		return math.Abs(at(k+1)-at(k-1)) / 2
	}
}
