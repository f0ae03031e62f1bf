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
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ObsRequest describes one observation field to load.
type ObsRequest struct {
	// Variable is the canonical name of the variable to load, for
	// example "sst" or "siconc". The variables each dataset provides
	// are listed by the loader's Variables method.
	Variable string

	// Region selects a regional subset for datasets that are published
	// per region ("arctic" or "antarctic"). Datasets without regional
	// subsets ignore it.
	Region string

	// TimeBounds either names a pre-computed climatology period (for
	// example "1991-2020") or gives an explicit range. The zero value
	// loads the full available series.
	TimeBounds TimeBounds

	// LonBounds and LatBounds crop the loaded field, typically to the
	// model domain. Nil keeps the full extent. Requests extending
	// beyond the available domain log a warning and narrow to the
	// intersection, recorded in the result's Bounds.Clipped.
	LonBounds, LatBounds *[2]float64

	// DepthBounds selects depth levels of depth-resolved variables.
	// Nil keeps all levels.
	DepthBounds *[2]float64

	// Freq reduces the loaded series to a climatology at the given
	// frequency. Empty means no reduction.
	Freq Freq
}

// ObsLoader loads observation fields from one dataset family.
// Implementations for the supported archives are in the obs package
// and register themselves here when that package is imported.
type ObsLoader interface {
	// Name returns the dataset name the loader is registered under.
	Name() string

	// Variables returns the canonical variable names the dataset
	// provides.
	Variables() []string

	// Load fetches the requested variable and returns it processed
	// into canonical form: longitudes in [-180, 180], requested bounds
	// applied, and the climatology reduced if requested.
	Load(ctx context.Context, req *ObsRequest) (*Dataset, error)
}

var (
	obsLoadersMu sync.RWMutex
	obsLoaders   = make(map[string]ObsLoader)
)

// RegisterObs adds l to the observation dataset registry, replacing
// any loader already registered under the same name.
func RegisterObs(l ObsLoader) {
	obsLoadersMu.Lock()
	defer obsLoadersMu.Unlock()
	obsLoaders[l.Name()] = l
}

// UnknownDatasetError is returned by LookupObs for a dataset name that
// is not in the registry.
type UnknownDatasetError struct {
	Name  string
	Known []string
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("oceanval: unknown observation dataset %q; available datasets are %s",
		e.Name, strings.Join(e.Known, ", "))
}

// LookupObs returns the loader registered under name, or an
// *UnknownDatasetError listing the available datasets.
func LookupObs(name string) (ObsLoader, error) {
	obsLoadersMu.RLock()
	defer obsLoadersMu.RUnlock()
	l, ok := obsLoaders[name]
	if !ok {
		return nil, &UnknownDatasetError{Name: name, Known: obsDatasetsLocked()}
	}
	return l, nil
}

// ObsDatasets returns the sorted names of the registered observation
// datasets.
func ObsDatasets() []string {
	obsLoadersMu.RLock()
	defer obsLoadersMu.RUnlock()
	return obsDatasetsLocked()
}

func obsDatasetsLocked() []string {
	names := make([]string, 0, len(obsLoaders))
	for n := range obsLoaders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
