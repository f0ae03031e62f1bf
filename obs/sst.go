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

// OISSTv2 loads the NOAA 0.25-degree Optimum Interpolation SST
// analysis, which also provides a sea ice concentration field. The
// archive holds the monthly series from 1981 onward along with a
// pre-computed 1991-2020 monthly climatology.
type OISSTv2 struct {
	store *Store
}

// NewOISSTv2 creates an OISSTv2 loader backed by st, where nil selects
// DefaultStore.
func NewOISSTv2(st *Store) *OISSTv2 {
	if st == nil {
		st = DefaultStore
	}
	return &OISSTv2{store: st}
}

func (l *OISSTv2) Name() string { return "OISSTv2" }

func (l *OISSTv2) Variables() []string { return []string{"sst", "siconc"} }

func (l *OISSTv2) Load(ctx context.Context, req *oceanval.ObsRequest) (*oceanval.Dataset, error) {
	if err := checkVariable(l.Name(), req, l.Variables()); err != nil {
		return nil, err
	}
	if err := checkLabel(l.Name(), req, "1991-2020"); err != nil {
		return nil, err
	}
	spec := fieldSpec{
		family:    l.Name(),
		srcVar:    req.Variable,
		canonical: req.Variable,
	}
	if req.TimeBounds.Label != "" {
		spec.path = fmt.Sprintf("OISSTv2/OISSTv2_%s_global_monthly_climatology_1991_2020", req.Variable)
	} else {
		spec.path = fmt.Sprintf("OISSTv2/OISSTv2_%s_global_monthly_1981_2025", req.Variable)
	}
	return loadField(ctx, l.store, spec, req)
}

// CCIv3 loads the ESA Climate Change Initiative v3.0 SST analysis,
// which also provides a sea ice fraction field. The archive holds
// pre-computed 1991-2020 climatologies only, one object per
// frequency.
type CCIv3 struct {
	store *Store
}

// NewCCIv3 creates a CCIv3 loader backed by st, where nil selects
// DefaultStore.
func NewCCIv3(st *Store) *CCIv3 {
	if st == nil {
		st = DefaultStore
	}
	return &CCIv3{store: st}
}

func (l *CCIv3) Name() string { return "CCIv3" }

func (l *CCIv3) Variables() []string { return []string{"sst", "siconc"} }

func (l *CCIv3) Load(ctx context.Context, req *oceanval.ObsRequest) (*oceanval.Dataset, error) {
	if err := checkVariable(l.Name(), req, l.Variables()); err != nil {
		return nil, err
	}
	if err := checkLabel(l.Name(), req, "1991-2020"); err != nil {
		return nil, err
	}
	if req.TimeBounds.Label == "" && !req.TimeBounds.IsZero() {
		return nil, fmt.Errorf("obs: %s provides pre-computed climatologies only and cannot load the explicit time range %v to %v",
			l.Name(), req.TimeBounds.Start, req.TimeBounds.End)
	}
	spec := fieldSpec{
		family:    l.Name(),
		canonical: req.Variable,
	}
	switch req.Variable {
	case "sst":
		spec.srcVar = "analysed_sst"
	case "siconc":
		spec.srcVar = "sea_ice_fraction"
	}
	switch req.Freq {
	case oceanval.FreqTotal:
		spec.path = "CCI/ESACCI-v3.0-SST_global_climatology_1991_2020"
		spec.ready = true
	case oceanval.FreqSeasonal:
		spec.path = "CCI/ESACCI-v3.0-SST_global_seasonal_climatology_1991_2020"
		spec.ready = true
	default:
		spec.path = "CCI/ESACCI-v3.0-SST_global_monthly_climatology_1991_2020"
	}
	return loadField(ctx, l.store, spec, req)
}

// HadISST loads the Met Office Hadley Centre sea ice and SST data set,
// a globally-complete monthly record on a 1-degree grid from 1870
// onward.
type HadISST struct {
	store *Store
}

// NewHadISST creates a HadISST loader backed by st, where nil selects
// DefaultStore.
func NewHadISST(st *Store) *HadISST {
	if st == nil {
		st = DefaultStore
	}
	return &HadISST{store: st}
}

func (l *HadISST) Name() string { return "HadISST" }

func (l *HadISST) Variables() []string { return []string{"sst", "siconc"} }

func (l *HadISST) Load(ctx context.Context, req *oceanval.ObsRequest) (*oceanval.Dataset, error) {
	if err := checkVariable(l.Name(), req, l.Variables()); err != nil {
		return nil, err
	}
	if req.TimeBounds.Label != "" {
		return nil, fmt.Errorf("obs: %s has no pre-computed climatologies; request an explicit time range or the full series",
			l.Name())
	}
	spec := fieldSpec{
		family:    l.Name(),
		path:      "HadISST/HadISST_global_monthly_1870_2024",
		srcVar:    req.Variable,
		canonical: req.Variable,
	}
	return loadField(ctx, l.store, spec, req)
}
