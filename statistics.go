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
	"reflect"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/stat"
)

// Names of the aggregate statistics stored by the validator.
const (
	StatMAE      = "mae"
	StatMSE      = "mse"
	StatRMSE     = "rmse"
	StatPearsonR = "pearson_r"
)

// Stats holds aggregate error statistics for one model and observation
// pair. The arrays are scalar except when the inputs carry a season or
// month axis, in which case the statistics are per-group and Dims
// names the kept axes.
type Stats struct {
	Dims           []string
	MAE, MSE, RMSE *sparse.DenseArray

	// PearsonR is nil when no time axis was aggregated.
	PearsonR *sparse.DenseArray
}

// AggregateStats reduces paired model and observation fields to mean
// absolute error, mean square error, and root mean square error of
// model minus observation, skipping cells where either side is NaN.
// The reduction covers every axis except the season or month axis of a
// reduced climatology, so seasonal or monthly errors yield per-group
// statistics. When a time axis is among the reduced dimensions the
// Pearson correlation between the two fields is computed as well.
func AggregateStats(model, obs *sparse.DenseArray, dims []string) (*Stats, error) {
	if !reflect.DeepEqual(model.Shape, obs.Shape) {
		return nil, fmt.Errorf("oceanval: computing statistics: model shape %v does not match observation shape %v",
			model.Shape, obs.Shape)
	}
	if len(dims) != len(model.Shape) {
		return nil, fmt.Errorf("oceanval: computing statistics: %d dimension names for %d axes",
			len(dims), len(model.Shape))
	}
	var groupAxes []int
	var groupShape []int
	var groupDims []string
	hasTime := false
	for i, dim := range dims {
		switch dim {
		case SeasonDim, MonthDim:
			groupAxes = append(groupAxes, i)
			groupShape = append(groupShape, model.Shape[i])
			groupDims = append(groupDims, dim)
		case TimeDim:
			hasTime = true
		}
	}
	ngroups := 1
	for _, n := range groupShape {
		ngroups *= n
	}
	counts := make([]float64, ngroups)
	sumAbs := make([]float64, ngroups)
	sumSq := make([]float64, ngroups)
	var xs, ys [][]float64
	if hasTime {
		xs = make([][]float64, ngroups)
		ys = make([][]float64, ngroups)
	}
	for flat, mv := range model.Elements {
		ov := obs.Elements[flat]
		if math.IsNaN(mv) || math.IsNaN(ov) {
			continue
		}
		g := 0
		if len(groupAxes) > 0 {
			nd := model.IndexNd(flat)
			for k, ax := range groupAxes {
				g = g*groupShape[k] + nd[ax]
			}
		}
		e := mv - ov
		counts[g]++
		sumAbs[g] += math.Abs(e)
		sumSq[g] += e * e
		if hasTime {
			xs[g] = append(xs[g], mv)
			ys[g] = append(ys[g], ov)
		}
	}
	s := &Stats{
		Dims: groupDims,
		MAE:  sparse.ZerosDense(groupShape...),
		MSE:  sparse.ZerosDense(groupShape...),
		RMSE: sparse.ZerosDense(groupShape...),
	}
	if hasTime {
		s.PearsonR = sparse.ZerosDense(groupShape...)
	}
	for g := 0; g < ngroups; g++ {
		if counts[g] == 0 {
			s.MAE.Elements[g] = math.NaN()
			s.MSE.Elements[g] = math.NaN()
			s.RMSE.Elements[g] = math.NaN()
			if hasTime {
				s.PearsonR.Elements[g] = math.NaN()
			}
			continue
		}
		s.MAE.Elements[g] = sumAbs[g] / counts[g]
		s.MSE.Elements[g] = sumSq[g] / counts[g]
		s.RMSE.Elements[g] = math.Sqrt(s.MSE.Elements[g])
		if hasTime {
			s.PearsonR.Elements[g] = stat.Correlation(xs[g], ys[g], nil)
		}
	}
	return s, nil
}

// Regression holds a least-squares fit of collocated model values
// against observation values, with the bias metrics commonly reported
// alongside it.
type Regression struct {
	Slope     float64
	Intercept float64
	RSquared  float64

	// MeanBias and MeanError are the mean and mean absolute
	// model-minus-observation differences.
	MeanBias  float64
	MeanError float64

	// MeanFractionalBias and MeanFractionalError normalize each
	// difference by the mean of the pair.
	MeanFractionalBias  float64
	MeanFractionalError float64

	// N is the number of collocated values in the fit.
	N int
}

// RegressionStats fits model values (dependent) against observation
// values (independent) over all collocated cells where neither side is
// NaN.
func RegressionStats(model, obs *sparse.DenseArray) (*Regression, error) {
	if !reflect.DeepEqual(model.Shape, obs.Shape) {
		return nil, fmt.Errorf("oceanval: computing a regression: model shape %v does not match observation shape %v",
			model.Shape, obs.Shape)
	}
	var x, y []float64
	for i, mv := range model.Elements {
		ov := obs.Elements[i]
		if math.IsNaN(mv) || math.IsNaN(ov) {
			continue
		}
		x = append(x, ov)
		y = append(y, mv)
	}
	if len(x) < 2 {
		return nil, fmt.Errorf("oceanval: computing a regression: only %d collocated values", len(x))
	}
	r := &Regression{N: len(x)}
	r.Slope, r.Intercept, r.RSquared, _, _, _ = stats.LinearRegression(x, y)
	r.MeanBias = meanBias(x, y)
	r.MeanError = meanError(x, y)
	r.MeanFractionalBias = meanFractionalBias(x, y)
	r.MeanFractionalError = meanFractionalError(x, y)
	return r, nil
}

func meanFractionalBias(a, b []float64) float64 {
	r := 0.
	for i, v1 := range a {
		v2 := b[i]
		r += 2 * (v2 - v1) / (v1 + v2)
	}
	return r / float64(len(a))
}

func meanFractionalError(a, b []float64) float64 {
	r := 0.
	for i, v1 := range a {
		v2 := b[i]
		r += 2 * math.Abs(v2-v1) / math.Abs(v1+v2)
	}
	return r / float64(len(a))
}

func meanBias(a, b []float64) float64 {
	r := 0.
	for i, v1 := range a {
		r += b[i] - v1
	}
	return r / float64(len(a))
}

func meanError(a, b []float64) float64 {
	r := 0.
	for i, v1 := range a {
		r += math.Abs(b[i] - v1)
	}
	return r / float64(len(a))
}
