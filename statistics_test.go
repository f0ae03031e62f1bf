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
	"math"
	"reflect"
	"testing"
)

func TestAggregateStatsZeroError(t *testing.T) {
	model := newDense([]int{3, 2, 2}, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	})
	obs := model.Copy()
	s, err := AggregateStats(model, obs, []string{TimeDim, YDim, XDim})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Dims) != 0 {
		t.Errorf("want scalar statistics but have dims %v", s.Dims)
	}
	if v := s.MAE.Elements[0]; v != 0 {
		t.Errorf("want MAE 0 but have %g", v)
	}
	if v := s.MSE.Elements[0]; v != 0 {
		t.Errorf("want MSE 0 but have %g", v)
	}
	if v := s.RMSE.Elements[0]; v != 0 {
		t.Errorf("want RMSE 0 but have %g", v)
	}
	if s.PearsonR == nil {
		t.Fatal("want a Pearson correlation when a time axis is present")
	}
	if v := s.PearsonR.Elements[0]; different(v, 1, 1e-12) {
		t.Errorf("want Pearson correlation 1 but have %g", v)
	}
}

func TestAggregateStatsKnownValues(t *testing.T) {
	model := newDense([]int{2, 2}, []float64{1, -1, 3, -3})
	obs := newDense([]int{2, 2}, []float64{0, 0, 0, 0})
	s, err := AggregateStats(model, obs, []string{YDim, XDim})
	if err != nil {
		t.Fatal(err)
	}
	if v := s.MAE.Elements[0]; different(v, 2, 1e-12) {
		t.Errorf("want MAE 2 but have %g", v)
	}
	if v := s.MSE.Elements[0]; different(v, 5, 1e-12) {
		t.Errorf("want MSE 5 but have %g", v)
	}
	if v := s.RMSE.Elements[0]; different(v, math.Sqrt(5), 1e-12) {
		t.Errorf("want RMSE sqrt(5) but have %g", v)
	}
	if s.PearsonR != nil {
		t.Error("want no Pearson correlation without a time axis")
	}
}

func TestAggregateStatsSeasonal(t *testing.T) {
	obs := newDense([]int{4, 1, 2}, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	model := obs.Copy()
	for s := 0; s < 4; s++ {
		for i := 0; i < 2; i++ {
			// Error of s+1 in season s.
			model.Elements[model.Index1d(s, 0, i)] += float64(s + 1)
		}
	}
	s, err := AggregateStats(model, obs, []string{SeasonDim, YDim, XDim})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s.Dims, []string{SeasonDim}) {
		t.Fatalf("want per-season statistics but have dims %v", s.Dims)
	}
	if !reflect.DeepEqual(s.MAE.Shape, []int{4}) {
		t.Fatalf("want shape [4] but have %v", s.MAE.Shape)
	}
	for g := 0; g < 4; g++ {
		if v := s.MAE.Elements[g]; different(v, float64(g+1), 1e-12) {
			t.Errorf("season %d: want MAE %d but have %g", g, g+1, v)
		}
		if v := s.RMSE.Elements[g]; different(v, float64(g+1), 1e-12) {
			t.Errorf("season %d: want RMSE %d but have %g", g, g+1, v)
		}
	}
	if s.PearsonR != nil {
		t.Error("want no Pearson correlation for a seasonal climatology")
	}
}

func TestAggregateStatsSkipsNaN(t *testing.T) {
	model := newDense([]int{2, 2}, []float64{1, math.NaN(), 3, 5})
	obs := newDense([]int{2, 2}, []float64{0, 0, math.NaN(), 1})
	s, err := AggregateStats(model, obs, []string{YDim, XDim})
	if err != nil {
		t.Fatal(err)
	}
	// Only cells 0 and 3 are valid: errors 1 and 4.
	if v := s.MAE.Elements[0]; different(v, 2.5, 1e-12) {
		t.Errorf("want MAE 2.5 but have %g", v)
	}

	allNaN := newDense([]int{2}, []float64{math.NaN(), math.NaN()})
	s, err = AggregateStats(allNaN, newDense([]int{2}, []float64{1, 2}), []string{XDim})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(s.MAE.Elements[0]) {
		t.Errorf("want NaN statistics for all-NaN input but have %g", s.MAE.Elements[0])
	}
}

func TestAggregateStatsShapeMismatch(t *testing.T) {
	model := newDense([]int{2, 2}, make([]float64, 4))
	obs := newDense([]int{2, 3}, make([]float64, 6))
	if _, err := AggregateStats(model, obs, []string{YDim, XDim}); err == nil {
		t.Error("want an error for mismatched shapes")
	}
	if _, err := AggregateStats(model, model, []string{YDim}); err == nil {
		t.Error("want an error for wrong dimension count")
	}
}

func TestRegressionStats(t *testing.T) {
	obs := newDense([]int{4}, []float64{1, 2, 3, 4})
	model := newDense([]int{4}, []float64{3, 5, 7, 9})
	r, err := RegressionStats(model, obs)
	if err != nil {
		t.Fatal(err)
	}
	if different(r.Slope, 2, 1e-10) {
		t.Errorf("want slope 2 but have %g", r.Slope)
	}
	if different(r.Intercept, 1, 1e-10) {
		t.Errorf("want intercept 1 but have %g", r.Intercept)
	}
	if different(r.RSquared, 1, 1e-10) {
		t.Errorf("want r-squared 1 but have %g", r.RSquared)
	}
	if different(r.MeanBias, 3.5, 1e-12) {
		t.Errorf("want mean bias 3.5 but have %g", r.MeanBias)
	}
	if r.N != 4 {
		t.Errorf("want 4 collocated values but have %d", r.N)
	}

	if _, err := RegressionStats(newDense([]int{1}, []float64{1}), newDense([]int{1}, []float64{1})); err == nil {
		t.Error("want an error for too few values")
	}
}
