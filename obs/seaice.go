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

package obs

import (
	"context"
	"fmt"

	"github.com/oceanmodel/oceanval"
)

// NSIDC loads the NSIDC Sea Ice Index v3, published as one object per
// polar region on the 25 km polar stereographic grid. The gridded sea
// ice concentration and extent fields and the grid cell areas are
// accompanied by a total sea ice area series integrated over cells
// exceeding 15% concentration.
type NSIDC struct {
	store *Store
}

// NewNSIDC creates an NSIDC loader backed by st, where nil selects
// DefaultStore.
func NewNSIDC(st *Store) *NSIDC {
	if st == nil {
		st = DefaultStore
	}
	return &NSIDC{store: st}
}

func (l *NSIDC) Name() string { return "NSIDC" }

func (l *NSIDC) Variables() []string { return []string{"siconc", "siext", "siarea", "areacello"} }

func (l *NSIDC) Load(ctx context.Context, req *oceanval.ObsRequest) (*oceanval.Dataset, error) {
	if err := checkVariable(l.Name(), req, l.Variables()); err != nil {
		return nil, err
	}
	if req.TimeBounds.Label != "" {
		return nil, fmt.Errorf("obs: %s has no pre-computed climatologies; request an explicit time range or the full series",
			l.Name())
	}
	var region string
	switch req.Region {
	case "", "arctic":
		region = "Arctic"
	case "antarctic":
		region = "Antarctic"
	default:
		return nil, fmt.Errorf("obs: %s region must be "+
			`"arctic" or "antarctic"; got %q`, l.Name(), req.Region)
	}
	spec := fieldSpec{
		family:    l.Name(),
		path:      fmt.Sprintf("NSIDC/NSIDC_Sea_Ice_Index_v3_%s_1978_2025", region),
		srcVar:    req.Variable,
		canonical: req.Variable,
		series:    req.Variable == "siarea",
	}
	return loadField(ctx, l.store, spec, req)
}
