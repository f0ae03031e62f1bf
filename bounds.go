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
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/sparse"
)

// SpatialBounds describes the realized spatial extent of a dataset after
// subsetting, rounded outward to whole degrees. Clipped reports whether a
// requested selection was narrowed to the available domain.
type SpatialBounds struct {
	Lon, Lat [2]float64
	Clipped  bool
}

// TimeBounds selects a period of time, either by a named pre-computed
// climatology period such as "1991-2020" or by an explicit range.
// Label and the explicit range are mutually exclusive.
type TimeBounds struct {
	Label      string
	Start, End time.Time
}

// IsZero reports whether no time selection was requested.
func (tb TimeBounds) IsZero() bool {
	return tb.Label == "" && tb.Start.IsZero() && tb.End.IsZero()
}

// Resolve returns the concrete time range selected by tb. A label of the
// form "YYYY-YYYY" covers the named years in full.
func (tb TimeBounds) Resolve() (start, end time.Time, err error) {
	if tb.Label == "" {
		if tb.Start.After(tb.End) {
			return start, end, fmt.Errorf("oceanval: time bounds start %v is after end %v", tb.Start, tb.End)
		}
		return tb.Start, tb.End, nil
	}
	if !tb.Start.IsZero() || !tb.End.IsZero() {
		return start, end, fmt.Errorf("oceanval: time bounds specify both label %q and an explicit range", tb.Label)
	}
	parts := strings.Split(tb.Label, "-")
	if len(parts) != 2 {
		return start, end, fmt.Errorf("oceanval: cannot parse time bounds label %q", tb.Label)
	}
	y0, err0 := strconv.Atoi(parts[0])
	y1, err1 := strconv.Atoi(parts[1])
	if err0 != nil || err1 != nil || y0 > y1 {
		return start, end, fmt.Errorf("oceanval: cannot parse time bounds label %q", tb.Label)
	}
	start = time.Date(y0, time.January, 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(y1, time.December, 31, 23, 59, 59, 0, time.UTC)
	return start, end, nil
}

// ValidateLonBounds checks that b is an ascending pair within [-180, 180].
func ValidateLonBounds(b [2]float64) error {
	if b[0] > b[1] {
		return fmt.Errorf("oceanval: longitude bounds minimum %g is greater than maximum %g", b[0], b[1])
	}
	if b[0] < -180 || b[1] > 180 {
		return fmt.Errorf("oceanval: longitude bounds %v are outside [-180, 180]", b)
	}
	return nil
}

// ValidateLatBounds checks that b is an ascending pair within [-90, 90].
func ValidateLatBounds(b [2]float64) error {
	if b[0] > b[1] {
		return fmt.Errorf("oceanval: latitude bounds minimum %g is greater than maximum %g", b[0], b[1])
	}
	if b[0] < -90 || b[1] > 90 {
		return fmt.Errorf("oceanval: latitude bounds %v are outside [-90, 90]", b)
	}
	return nil
}

// wrapLon maps a longitude to [-180, 180).
func wrapLon(v float64) float64 {
	w := math.Mod(v+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}

// NormalizeLongitudes converts the longitude convention of d to
// [-180, 180]. For rectilinear grids the x axis is re-sorted to ascend,
// and every variable is reordered along x to match; the boundary
// coordinates, if any, are recomputed from the sorted cell centers.
// Curvilinear coordinates are wrapped in place. The operation is
// idempotent.
func NormalizeLongitudes(d *Dataset) {
	if d.Lon == nil {
		return
	}
	if !d.Rectilinear() {
		for i, v := range d.Lon.Elements {
			d.Lon.Elements[i] = wrapLon(v)
		}
		if d.LonB != nil {
			for i, v := range d.LonB.Elements {
				d.LonB.Elements[i] = wrapLon(v)
			}
		}
		return
	}
	n := d.Lon.Shape[0]
	wrapped := make([]float64, n)
	for i, v := range d.Lon.Elements {
		wrapped[i] = wrapLon(v)
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool { return wrapped[perm[a]] < wrapped[perm[b]] })
	inOrder := true
	for i, p := range perm {
		if p != i {
			inOrder = false
			break
		}
	}
	newLon := sparse.ZerosDense(n)
	for i, p := range perm {
		newLon.Elements[i] = wrapped[p]
	}
	d.Lon = newLon
	if d.LonB != nil {
		d.LonB = boundsFromCenters(newLon.Elements)
	}
	if inOrder {
		return
	}
	for name, v := range d.Vars {
		if ax := dimIndex(v.Dims, XDim); ax >= 0 {
			d.Vars[name].Data = reorderAxis(v.Data, ax, perm)
		}
	}
	if d.Mask != nil && len(d.Mask.Shape) == 2 {
		d.Mask = reorderAxis(d.Mask, 1, perm)
	}
}

// boundsFromCenters derives cell boundaries from cell centers using
// midpoints, extrapolating half a cell at each end.
func boundsFromCenters(centers []float64) *sparse.DenseArray {
	n := len(centers)
	b := sparse.ZerosDense(n + 1)
	for i := 1; i < n; i++ {
		b.Elements[i] = (centers[i-1] + centers[i]) / 2
	}
	if n > 1 {
		b.Elements[0] = centers[0] - (centers[1]-centers[0])/2
		b.Elements[n] = centers[n-1] + (centers[n-1]-centers[n-2])/2
	} else {
		b.Elements[0] = centers[0] - 0.5
		b.Elements[n] = centers[0] + 0.5
	}
	return b
}

// reorderAxis returns a copy of a with the given axis reordered so that
// output index i along the axis takes the value from input index perm[i].
func reorderAxis(a *sparse.DenseArray, axis int, perm []int) *sparse.DenseArray {
	out := sparse.ZerosDense(a.Shape...)
	idx := make([]int, len(a.Shape))
	for flat := range out.Elements {
		nd := out.IndexNd(flat)
		copy(idx, nd)
		idx[axis] = perm[nd[axis]]
		out.Elements[flat] = a.Elements[a.Index1d(idx...)]
	}
	return out
}

// sliceAxisRange returns the subset of a covering indices lo through hi
// (inclusive) along the given axis, keeping the number of dimensions.
func sliceAxisRange(a *sparse.DenseArray, axis, lo, hi int) *sparse.DenseArray {
	shape := make([]int, len(a.Shape))
	copy(shape, a.Shape)
	shape[axis] = hi - lo + 1
	out := sparse.ZerosDense(shape...)
	idx := make([]int, len(shape))
	for flat := range out.Elements {
		nd := out.IndexNd(flat)
		copy(idx, nd)
		idx[axis] += lo
		out.Elements[flat] = a.Elements[a.Index1d(idx...)]
	}
	return out
}

func domainName(isObs bool) string {
	if isObs {
		return "observation"
	}
	return "model"
}

// coordRange returns the finite minimum and maximum of a coordinate
// array.
func coordRange(a *sparse.DenseArray) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range a.Elements {
		if math.IsNaN(v) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// SpatialBoundsOf returns the spatial extent of d rounded outward to
// whole degrees.
func SpatialBoundsOf(d *Dataset) (*SpatialBounds, error) {
	if d.Lon == nil || d.Lat == nil {
		return nil, fmt.Errorf("oceanval: dataset has no horizontal coordinates")
	}
	lonMin, lonMax := coordRange(d.Lon)
	latMin, latMax := coordRange(d.Lat)
	return &SpatialBounds{
		Lon: [2]float64{math.Floor(lonMin), math.Ceil(lonMax)},
		Lat: [2]float64{math.Floor(latMin), math.Ceil(latMax)},
	}, nil
}

// SelectLonLat returns the subset of d inside the inclusive bounding box
// lonBounds × latBounds. Rectilinear grids are sliced along each axis;
// curvilinear grids keep the rectangular hull of the matching cells,
// with data values outside the box replaced by NaN. When the requested
// box extends beyond the available domain a warning is logged, the
// selection narrows to the intersection, and the returned dataset's
// Bounds are flagged as clipped.
func SelectLonLat(d *Dataset, lonBounds, latBounds [2]float64, isObs bool) (*Dataset, error) {
	if err := ValidateLonBounds(lonBounds); err != nil {
		return nil, err
	}
	if err := ValidateLatBounds(latBounds); err != nil {
		return nil, err
	}
	if d.Lon == nil || d.Lat == nil {
		return nil, fmt.Errorf("oceanval: selecting a region: dataset has no horizontal coordinates")
	}
	lonMin, lonMax := coordRange(d.Lon)
	latMin, latMax := coordRange(d.Lat)
	clipped := lonBounds[0] < lonMin || lonBounds[1] > lonMax ||
		latBounds[0] < latMin || latBounds[1] > latMax
	if clipped {
		log.Printf("oceanval: requested bounds lon %v lat %v extend beyond the "+
			"available %s domain lon [%g, %g] lat [%g, %g]; continuing with the available data",
			lonBounds, latBounds, domainName(isObs), lonMin, lonMax, latMin, latMax)
	}
	var out *Dataset
	var err error
	if d.Rectilinear() {
		out, err = selectLonLatRect(d, lonBounds, latBounds)
	} else {
		out, err = selectLonLatCurv(d, lonBounds, latBounds)
	}
	if err != nil {
		return nil, err
	}
	b, err := SpatialBoundsOf(out)
	if err != nil {
		return nil, err
	}
	b.Clipped = clipped
	out.Bounds = b
	return out, nil
}

func selectLonLatRect(d *Dataset, lonBounds, latBounds [2]float64) (*Dataset, error) {
	i0, i1, ok := indexRange(d.Lon.Elements, lonBounds)
	if !ok {
		return nil, fmt.Errorf("oceanval: no longitudes within bounds %v", lonBounds)
	}
	j0, j1, ok := indexRange(d.Lat.Elements, latBounds)
	if !ok {
		return nil, fmt.Errorf("oceanval: no latitudes within bounds %v", latBounds)
	}
	out := shallowCopy(d)
	out.Lon = sliceAxisRange(d.Lon, 0, i0, i1)
	out.Lat = sliceAxisRange(d.Lat, 0, j0, j1)
	if d.LonB != nil && len(d.LonB.Shape) == 1 {
		out.LonB = sliceAxisRange(d.LonB, 0, i0, i1+1)
	}
	if d.LatB != nil && len(d.LatB.Shape) == 1 {
		out.LatB = sliceAxisRange(d.LatB, 0, j0, j1+1)
	}
	if d.Mask != nil {
		out.Mask = sliceAxisRange(sliceAxisRange(d.Mask, 0, j0, j1), 1, i0, i1)
	}
	out.Vars = make(map[string]*DataVar)
	for name, v := range d.Vars {
		data := v.Data
		if ax := dimIndex(v.Dims, YDim); ax >= 0 {
			data = sliceAxisRange(data, ax, j0, j1)
		}
		if ax := dimIndex(v.Dims, XDim); ax >= 0 {
			data = sliceAxisRange(data, ax, i0, i1)
		}
		out.AddVariable(name, v.Dims, v.Description, v.Units, data)
	}
	return out, nil
}

func selectLonLatCurv(d *Dataset, lonBounds, latBounds [2]float64) (*Dataset, error) {
	ny, nx, err := d.GridShape()
	if err != nil {
		return nil, err
	}
	j0, i0 := ny, nx
	j1, i1 := -1, -1
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			if inBox(d.Lon.Get(j, i), d.Lat.Get(j, i), lonBounds, latBounds) {
				if j < j0 {
					j0 = j
				}
				if j > j1 {
					j1 = j
				}
				if i < i0 {
					i0 = i
				}
				if i > i1 {
					i1 = i
				}
			}
		}
	}
	if j1 < 0 {
		return nil, fmt.Errorf("oceanval: no cells within bounds lon %v lat %v", lonBounds, latBounds)
	}
	out := shallowCopy(d)
	out.Lon = sliceAxisRange(sliceAxisRange(d.Lon, 0, j0, j1), 1, i0, i1)
	out.Lat = sliceAxisRange(sliceAxisRange(d.Lat, 0, j0, j1), 1, i0, i1)
	if d.LonB != nil && len(d.LonB.Shape) == 2 {
		out.LonB = sliceAxisRange(sliceAxisRange(d.LonB, 0, j0, j1+1), 1, i0, i1+1)
		out.LatB = sliceAxisRange(sliceAxisRange(d.LatB, 0, j0, j1+1), 1, i0, i1+1)
	}
	if d.Mask != nil {
		out.Mask = sliceAxisRange(sliceAxisRange(d.Mask, 0, j0, j1), 1, i0, i1)
	}
	out.Vars = make(map[string]*DataVar)
	for name, v := range d.Vars {
		data := v.Data
		jax := dimIndex(v.Dims, YDim)
		iax := dimIndex(v.Dims, XDim)
		if jax >= 0 {
			data = sliceAxisRange(data, jax, j0, j1)
		}
		if iax >= 0 {
			data = sliceAxisRange(data, iax, i0, i1)
		}
		if jax >= 0 && iax >= 0 {
			maskOutsideBox(data, jax, iax, out.Lon, out.Lat, lonBounds, latBounds)
		}
		out.AddVariable(name, v.Dims, v.Description, v.Units, data)
	}
	return out, nil
}

func inBox(lon, lat float64, lonBounds, latBounds [2]float64) bool {
	return lon >= lonBounds[0] && lon <= lonBounds[1] &&
		lat >= latBounds[0] && lat <= latBounds[1]
}

// maskOutsideBox replaces data values whose cell centers fall outside
// the bounding box with NaN.
func maskOutsideBox(data *sparse.DenseArray, jax, iax int, lon, lat *sparse.DenseArray, lonBounds, latBounds [2]float64) {
	for flat := range data.Elements {
		nd := data.IndexNd(flat)
		j, i := nd[jax], nd[iax]
		if !inBox(lon.Get(j, i), lat.Get(j, i), lonBounds, latBounds) {
			data.Elements[flat] = math.NaN()
		}
	}
}

// indexRange returns the first and last indices of vals whose values lie
// within the inclusive bounds. The values may ascend or descend.
func indexRange(vals []float64, bounds [2]float64) (lo, hi int, ok bool) {
	lo, hi = len(vals), -1
	for i, v := range vals {
		if v >= bounds[0] && v <= bounds[1] {
			if i < lo {
				lo = i
			}
			if i > hi {
				hi = i
			}
		}
	}
	return lo, hi, hi >= 0
}

func shallowCopy(d *Dataset) *Dataset {
	out := NewDataset()
	out.Lon, out.Lat = d.Lon, d.Lat
	out.LonB, out.LatB = d.LonB, d.LatB
	out.Mask = d.Mask
	out.Time = d.Time
	out.Depth = d.Depth
	out.Seasons = d.Seasons
	out.Months = d.Months
	out.Obs = d.Obs
	out.Bounds = d.Bounds
	for k, v := range d.Attrs {
		out.Attrs[k] = v
	}
	for name, v := range d.Vars {
		out.Vars[name] = v
	}
	return out
}

// SelectTime returns the subset of d between start and end (inclusive).
// A request extending beyond the available time axis logs a warning and
// narrows to the intersection.
func SelectTime(d *Dataset, start, end time.Time, isObs bool) (*Dataset, error) {
	if len(d.Time) == 0 {
		return nil, fmt.Errorf("oceanval: selecting a time range: dataset has no time axis")
	}
	if start.After(end) {
		return nil, fmt.Errorf("oceanval: time bounds start %v is after end %v", start, end)
	}
	if start.Before(d.Time[0]) || end.After(d.Time[len(d.Time)-1]) {
		log.Printf("oceanval: requested time bounds [%v, %v] extend beyond the "+
			"available %s time axis [%v, %v]; continuing with the available data",
			start.Format("2006-01-02"), end.Format("2006-01-02"), domainName(isObs),
			d.Time[0].Format("2006-01-02"), d.Time[len(d.Time)-1].Format("2006-01-02"))
	}
	t0, t1 := len(d.Time), -1
	for i, t := range d.Time {
		if !t.Before(start) && !t.After(end) {
			if i < t0 {
				t0 = i
			}
			if i > t1 {
				t1 = i
			}
		}
	}
	if t1 < 0 {
		return nil, fmt.Errorf("oceanval: no timesteps between %v and %v",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	out := shallowCopy(d)
	out.Time = d.Time[t0 : t1+1]
	out.Vars = make(map[string]*DataVar)
	for name, v := range d.Vars {
		data := v.Data
		if ax := dimIndex(v.Dims, TimeDim); ax >= 0 {
			data = sliceAxisRange(data, ax, t0, t1)
		}
		out.AddVariable(name, v.Dims, v.Description, v.Units, data)
	}
	return out, nil
}

// SelectDepth returns the subset of d within the inclusive depth bounds.
// A degenerate pair (equal minimum and maximum) selects the single
// nearest depth level. A request extending beyond the available levels
// logs a warning and narrows to the intersection.
func SelectDepth(d *Dataset, bounds [2]float64, isObs bool) (*Dataset, error) {
	if len(d.Depth) == 0 {
		return nil, fmt.Errorf("oceanval: selecting a depth range: dataset has no depth axis")
	}
	if bounds[0] > bounds[1] {
		return nil, fmt.Errorf("oceanval: depth bounds minimum %g is greater than maximum %g", bounds[0], bounds[1])
	}
	var k0, k1 int
	if bounds[0] == bounds[1] {
		k0 = nearestIndex(d.Depth, bounds[0])
		k1 = k0
	} else {
		dmin, dmax := d.Depth[0], d.Depth[0]
		for _, v := range d.Depth {
			if v < dmin {
				dmin = v
			}
			if v > dmax {
				dmax = v
			}
		}
		if bounds[0] < dmin || bounds[1] > dmax {
			log.Printf("oceanval: requested depth bounds %v extend beyond the "+
				"available %s depth levels [%g, %g]; continuing with the available data",
				bounds, domainName(isObs), dmin, dmax)
		}
		k0, k1 = len(d.Depth), -1
		for i, v := range d.Depth {
			if v >= bounds[0] && v <= bounds[1] {
				if i < k0 {
					k0 = i
				}
				if i > k1 {
					k1 = i
				}
			}
		}
		if k1 < 0 {
			return nil, fmt.Errorf("oceanval: no depth levels within bounds %v", bounds)
		}
	}
	out := shallowCopy(d)
	out.Depth = d.Depth[k0 : k1+1]
	out.Vars = make(map[string]*DataVar)
	for name, v := range d.Vars {
		data := v.Data
		if ax := dimIndex(v.Dims, DepthDim); ax >= 0 {
			data = sliceAxisRange(data, ax, k0, k1)
		}
		out.AddVariable(name, v.Dims, v.Description, v.Units, data)
	}
	return out, nil
}

func nearestIndex(vals []float64, target float64) int {
	best := 0
	bestDist := math.Abs(vals[0] - target)
	for i, v := range vals {
		if d := math.Abs(v - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
