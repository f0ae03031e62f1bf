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
	"strings"

	"github.com/oceanmodel/oceanval"
)

// The depth-resolved datasets publish potential temperature and
// salinity under their native variable names. They are loaded under
// the canonical names temp and sal, while sst and sss load the same
// fields reduced to the shallowest depth level.

// ARMOR3D loads the CMEMS ARMOR3D reprocessed analysis of temperature,
// salinity, and mixed layer depth, a monthly 0.25-degree product
// combining satellite and in situ observations.
type ARMOR3D struct {
	store *Store
}

// NewARMOR3D creates an ARMOR3D loader backed by st, where nil selects
// DefaultStore.
func NewARMOR3D(st *Store) *ARMOR3D {
	if st == nil {
		st = DefaultStore
	}
	return &ARMOR3D{store: st}
}

var armor3dVars = map[string]string{
	"temp": "to",
	"sal":  "so",
	"sst":  "to",
	"sss":  "so",
	"mld":  "mlotst",
}

func (l *ARMOR3D) Name() string { return "ARMOR3D" }

func (l *ARMOR3D) Variables() []string { return []string{"temp", "sal", "sst", "sss", "mld"} }

func (l *ARMOR3D) Load(ctx context.Context, req *oceanval.ObsRequest) (*oceanval.Dataset, error) {
	if err := checkVariable(l.Name(), req, l.Variables()); err != nil {
		return nil, err
	}
	if req.TimeBounds.Label != "" {
		return nil, fmt.Errorf("obs: %s has no pre-computed climatologies; request an explicit time range or the full series",
			l.Name())
	}
	spec := fieldSpec{
		family:    l.Name(),
		path:      "ARMOR3D/ARMOR3D_RP_global_monthly_1993_2022",
		srcVar:    armor3dVars[req.Variable],
		canonical: req.Variable,
		surface:   req.Variable == "sst" || req.Variable == "sss",
	}
	return loadField(ctx, l.store, spec, req)
}

// EN4 loads the Met Office EN4.2.2 objective analyses of subsurface
// temperature and salinity profiles.
type EN4 struct {
	store *Store
}

// NewEN4 creates an EN4 loader backed by st, where nil selects
// DefaultStore.
func NewEN4(st *Store) *EN4 {
	if st == nil {
		st = DefaultStore
	}
	return &EN4{store: st}
}

var en4Vars = map[string]string{
	"temp": "temperature",
	"sal":  "salinity",
	"sst":  "temperature",
	"sss":  "salinity",
}

func (l *EN4) Name() string { return "EN4" }

func (l *EN4) Variables() []string { return []string{"temp", "sal", "sst", "sss"} }

func (l *EN4) Load(ctx context.Context, req *oceanval.ObsRequest) (*oceanval.Dataset, error) {
	if err := checkVariable(l.Name(), req, l.Variables()); err != nil {
		return nil, err
	}
	if req.TimeBounds.Label != "" {
		return nil, fmt.Errorf("obs: %s has no pre-computed climatologies; request an explicit time range or the full series",
			l.Name())
	}
	spec := fieldSpec{
		family:    l.Name(),
		path:      "EN4/EN4.2.2_global_monthly_1950_2024",
		srcVar:    en4Vars[req.Variable],
		canonical: req.Variable,
		surface:   req.Variable == "sst" || req.Variable == "sss",
	}
	return loadField(ctx, l.store, spec, req)
}

// WOA23 loads the World Ocean Atlas 2023 temperature and salinity
// climatologies. The archive holds three reference periods, each as
// annual, seasonal, and monthly objects; requests without a
// climatology label use the most recent period.
type WOA23 struct {
	store *Store
}

// NewWOA23 creates a WOA23 loader backed by st, where nil selects
// DefaultStore.
func NewWOA23(st *Store) *WOA23 {
	if st == nil {
		st = DefaultStore
	}
	return &WOA23{store: st}
}

var woa23Vars = map[string]string{
	"temp": "t_an",
	"sal":  "s_an",
	"sst":  "t_an",
	"sss":  "s_an",
}

func (l *WOA23) Name() string { return "WOA23" }

func (l *WOA23) Variables() []string { return []string{"temp", "sal", "sst", "sss"} }

func (l *WOA23) Load(ctx context.Context, req *oceanval.ObsRequest) (*oceanval.Dataset, error) {
	if err := checkVariable(l.Name(), req, l.Variables()); err != nil {
		return nil, err
	}
	if err := checkLabel(l.Name(), req, "1971-2000", "1981-2010", "1991-2020"); err != nil {
		return nil, err
	}
	if req.TimeBounds.Label == "" && !req.TimeBounds.IsZero() {
		return nil, fmt.Errorf("obs: %s provides pre-computed climatologies only and cannot load the explicit time range %v to %v",
			l.Name(), req.TimeBounds.Start, req.TimeBounds.End)
	}
	period := req.TimeBounds.Label
	if period == "" {
		period = "1991-2020"
	}
	period = strings.Replace(period, "-", "_", 1)
	spec := fieldSpec{
		family:    l.Name(),
		srcVar:    woa23Vars[req.Variable],
		canonical: req.Variable,
		surface:   req.Variable == "sst" || req.Variable == "sss",
	}
	switch req.Freq {
	case oceanval.FreqTotal:
		spec.path = fmt.Sprintf("WOA23/WOA23_%s_annual_climatology", period)
		spec.ready = true
	case oceanval.FreqSeasonal:
		spec.path = fmt.Sprintf("WOA23/WOA23_%s_seasonal_climatology", period)
		spec.ready = true
	default:
		spec.path = fmt.Sprintf("WOA23/WOA23_%s_monthly_climatology", period)
	}
	return loadField(ctx, l.store, spec, req)
}

// LOPS loads the LOPS-IFREMER monthly mixed layer depth climatology,
// computed from profile data with a 0.03 kg/m3 density threshold
// criterion referenced to 10 m.
type LOPS struct {
	store *Store
}

// NewLOPS creates a LOPS loader backed by st, where nil selects
// DefaultStore.
func NewLOPS(st *Store) *LOPS {
	if st == nil {
		st = DefaultStore
	}
	return &LOPS{store: st}
}

func (l *LOPS) Name() string { return "LOPS" }

func (l *LOPS) Variables() []string { return []string{"mld"} }

func (l *LOPS) Load(ctx context.Context, req *oceanval.ObsRequest) (*oceanval.Dataset, error) {
	if err := checkVariable(l.Name(), req, l.Variables()); err != nil {
		return nil, err
	}
	if req.TimeBounds.Label != "" {
		return nil, fmt.Errorf("obs: %s provides a single monthly climatology without named periods; leave the climatology label empty",
			l.Name())
	}
	if !req.TimeBounds.IsZero() {
		return nil, fmt.Errorf("obs: %s provides pre-computed climatologies only and cannot load the explicit time range %v to %v",
			l.Name(), req.TimeBounds.Start, req.TimeBounds.End)
	}
	spec := fieldSpec{
		family:    l.Name(),
		path:      "LOPS-MLD/LOPS-MLD_v2023_global_monthly_climatology",
		srcVar:    "mld",
		canonical: "mld",
	}
	return loadField(ctx, l.store, spec, req)
}
