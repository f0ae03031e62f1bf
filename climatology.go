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
	"strings"
	"time"

	"github.com/ctessum/sparse"
)

// Freq selects how timesteps are grouped when computing a climatology.
// Beyond the three named groupings, a lower-case three-letter month
// abbreviation ("jan" through "dec") averages only that month's
// timesteps.
type Freq string

const (
	// FreqTotal averages over all timesteps.
	FreqTotal Freq = "total"
	// FreqSeasonal averages into the four meteorological seasons.
	FreqSeasonal Freq = "seasonal"
	// FreqMonthly averages into the twelve calendar months.
	FreqMonthly Freq = "monthly"
)

var monthLabels = []string{"jan", "feb", "mar", "apr", "may", "jun",
	"jul", "aug", "sep", "oct", "nov", "dec"}

var seasonLabels = []string{"DJF", "MAM", "JJA", "SON"}

// ParseFreq converts s to a Freq, accepting the named groupings and
// three-letter month abbreviations in any letter case.
func ParseFreq(s string) (Freq, error) {
	f := Freq(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FreqTotal, FreqSeasonal, FreqMonthly:
		return f, nil
	}
	if monthIndex(f) >= 0 {
		return f, nil
	}
	return "", fmt.Errorf("oceanval: invalid climatology frequency %q; "+
		"valid values are total, seasonal, monthly, or a month such as jan", s)
}

// monthIndex returns the zero-based month selected by f, or -1 when f
// is not a month abbreviation.
func monthIndex(f Freq) int {
	for i, m := range monthLabels {
		if string(f) == m {
			return i
		}
	}
	return -1
}

// seasonOfMonth maps a calendar month to its meteorological season
// index: DJF is 0, MAM 1, JJA 2, and SON 3.
func seasonOfMonth(m time.Month) int {
	switch m {
	case time.December, time.January, time.February:
		return 0
	case time.March, time.April, time.May:
		return 1
	case time.June, time.July, time.August:
		return 2
	default:
		return 3
	}
}

// Climatology averages every time-dependent variable of d into the
// groups selected by freq, skipping NaN values. Grouping by season or
// month replaces the time axis with a season or month axis; the other
// frequencies drop the time axis. Cells with no valid values in a group
// become NaN. Variables without a time axis pass through unchanged.
func Climatology(d *Dataset, freq Freq) (*Dataset, error) {
	if _, err := ParseFreq(string(freq)); err != nil {
		return nil, err
	}
	if len(d.Time) == 0 {
		return nil, fmt.Errorf("oceanval: computing a climatology: dataset has no time axis")
	}
	var member func(int) int
	var ngroups int
	var groupDim string
	switch {
	case freq == FreqTotal:
		member = func(int) int { return 0 }
		ngroups = 1
	case freq == FreqSeasonal:
		member = func(t int) int { return seasonOfMonth(d.Time[t].Month()) }
		ngroups = 4
		groupDim = SeasonDim
	case freq == FreqMonthly:
		member = func(t int) int { return int(d.Time[t].Month()) - 1 }
		ngroups = 12
		groupDim = MonthDim
	default:
		m := monthIndex(freq)
		found := false
		for _, tt := range d.Time {
			if int(tt.Month())-1 == m {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("oceanval: computing a climatology: no timesteps in month %q", freq)
		}
		member = func(t int) int {
			if int(d.Time[t].Month())-1 == m {
				return 0
			}
			return -1
		}
		ngroups = 1
	}
	out := shallowCopy(d)
	out.Time = nil
	switch groupDim {
	case SeasonDim:
		out.Seasons = append([]string{}, seasonLabels...)
	case MonthDim:
		out.Months = append([]string{}, monthLabels...)
	}
	out.Vars = make(map[string]*DataVar)
	for name, v := range d.Vars {
		ax := dimIndex(v.Dims, TimeDim)
		if ax < 0 {
			out.AddVariable(name, v.Dims, v.Description, v.Units, v.Data)
			continue
		}
		mean := groupMean(v.Data, ax, member, ngroups)
		dims := make([]string, 0, len(v.Dims))
		for i, dim := range v.Dims {
			if i == ax {
				if groupDim != "" {
					dims = append(dims, groupDim)
				}
				continue
			}
			dims = append(dims, dim)
		}
		out.AddVariable(name, dims, v.Description, v.Units, mean)
	}
	return out, nil
}

// groupMean averages data along axis ax into ngroups groups, skipping
// NaNs. member maps a position along the axis to its group, or to -1 to
// exclude it. When ngroups is 1 the axis is dropped from the result;
// otherwise its length becomes ngroups.
func groupMean(data *sparse.DenseArray, ax int, member func(int) int, ngroups int) *sparse.DenseArray {
	shape := make([]int, 0, len(data.Shape))
	for i, n := range data.Shape {
		if i == ax {
			if ngroups > 1 {
				shape = append(shape, ngroups)
			}
			continue
		}
		shape = append(shape, n)
	}
	sum := sparse.ZerosDense(shape...)
	cnt := sparse.ZerosDense(shape...)
	idx := make([]int, 0, len(shape))
	for flat, v := range data.Elements {
		nd := data.IndexNd(flat)
		g := member(nd[ax])
		if g < 0 || math.IsNaN(v) {
			continue
		}
		idx = idx[:0]
		for i, n := range nd {
			if i == ax {
				if ngroups > 1 {
					idx = append(idx, g)
				}
				continue
			}
			idx = append(idx, n)
		}
		j := sum.Index1d(idx...)
		sum.Elements[j] += v
		cnt.Elements[j]++
	}
	for i, n := range cnt.Elements {
		if n == 0 {
			sum.Elements[i] = math.NaN()
		} else {
			sum.Elements[i] /= n
		}
	}
	return sum
}
