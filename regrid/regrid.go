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

// Package regrid interpolates gridded fields between horizontal grids.
//
// A Regridder is built once for a source and destination grid pair and
// can then be applied to any number of fields defined on the source
// grid. Five interpolation methods are available: bilinear,
// conservative, conservative_normed, nearest_s2d (each destination
// cell takes its nearest source value), and nearest_d2s (each source
// cell is assigned to its nearest destination cell, summing where
// several coincide). Grids wrapping around the ±180° seam are detected
// automatically from the source longitude span and interpolated across
// the seam.
package regrid

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"
)

// Method is an interpolation method.
type Method string

const (
	Bilinear           Method = "bilinear"
	Conservative       Method = "conservative"
	ConservativeNormed Method = "conservative_normed"
	NearestS2D         Method = "nearest_s2d"
	NearestD2S         Method = "nearest_d2s"
)

// ParseMethod converts s to a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case Bilinear, Conservative, ConservativeNormed, NearestS2D, NearestD2S:
		return Method(s), nil
	}
	return "", fmt.Errorf("regrid: invalid interpolation method %q; valid methods are "+
		"bilinear, conservative, conservative_normed, nearest_s2d, and nearest_d2s", s)
}

// weight is one source cell's contribution to a destination cell.
type weight struct {
	idx int
	w   float64
}

// Regridder maps fields from a source grid onto a destination grid.
type Regridder struct {
	src, dst *Grid
	method   Method
	periodic bool

	// rows holds, for each destination cell in row-major order, the
	// contributing source cells and their weights. An empty row
	// produces NaN.
	rows [][]weight
}

// New builds an interpolation operator mapping fields on src onto dst.
// The conservative methods require cell boundary coordinates on both
// grids.
func New(src, dst *Grid, method Method) (*Regridder, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	r := &Regridder{
		src:      src,
		dst:      dst,
		method:   method,
		periodic: src.Periodic(),
	}
	var err error
	switch method {
	case Bilinear:
		err = r.buildBilinear()
	case Conservative, ConservativeNormed:
		err = r.buildConservative()
	case NearestS2D:
		err = r.buildNearestS2D()
	case NearestD2S:
		err = r.buildNearestD2S()
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Method returns the interpolation method of r.
func (r *Regridder) Method() Method {
	return r.method
}

// Periodic reports whether the source grid was detected as wrapping
// around the ±180° seam.
func (r *Regridder) Periodic() bool {
	return r.periodic
}

// Apply interpolates data, whose two trailing axes must match the
// source grid shape, onto the destination grid. Leading axes (time,
// depth, season) pass through unchanged. Destination cells without
// source coverage become NaN. For all methods except
// conservative_normed, a NaN in any contributing source cell makes the
// destination cell NaN; conservative_normed skips NaN contributors and
// renormalizes over the remainder.
func (r *Regridder) Apply(data *sparse.DenseArray) (*sparse.DenseArray, error) {
	sy, sx := r.src.Shape()
	dy, dx := r.dst.Shape()
	nd := len(data.Shape)
	if nd < 2 || data.Shape[nd-2] != sy || data.Shape[nd-1] != sx {
		return nil, fmt.Errorf("regrid: field shape %v does not end in the source grid shape (%d, %d)",
			data.Shape, sy, sx)
	}
	lead := 1
	for _, n := range data.Shape[:nd-2] {
		lead *= n
	}
	outShape := append(append([]int{}, data.Shape[:nd-2]...), dy, dx)
	out := sparse.ZerosDense(outShape...)
	srcBlock, dstBlock := sy*sx, dy*dx
	for b := 0; b < lead; b++ {
		src := data.Elements[b*srcBlock : (b+1)*srcBlock]
		dst := out.Elements[b*dstBlock : (b+1)*dstBlock]
		for c, row := range r.rows {
			dst[c] = r.combine(row, src)
		}
	}
	return out, nil
}

func (r *Regridder) combine(row []weight, src []float64) float64 {
	if len(row) == 0 {
		return math.NaN()
	}
	if r.method == ConservativeNormed {
		var sum, wsum float64
		for _, e := range row {
			v := src[e.idx]
			if math.IsNaN(v) {
				continue
			}
			sum += e.w * v
			wsum += e.w
		}
		if wsum == 0 {
			return math.NaN()
		}
		return sum / wsum
	}
	var sum float64
	for _, e := range row {
		v := src[e.idx]
		if math.IsNaN(v) {
			return math.NaN()
		}
		sum += e.w * v
	}
	return sum
}
