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

package oceanvalutil

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/oceanmodel/oceanval"
)

// fetchRetries is the number of times a failed download is retried
// before moving on to the next object.
const fetchRetries = 4

// Fetch downloads the observation objects served by the named datasets
// into the local cache, so later validations can run without waiting
// on the network. Empty datasets fetches every registered dataset;
// empty variables fetches every variable of each dataset; region
// selects the subset for datasets that are published per polar region;
// period names a pre-computed climatology to fetch instead of the full
// series. Failed downloads are retried with exponential backoff and
// reported at the end without stopping the remaining fetches.
func Fetch(ctx context.Context, datasets, variables []string, region, period string) error {
	if region != "" && region != "arctic" && region != "antarctic" {
		return fmt.Errorf(`oceanval: fetch region must be "arctic" or "antarctic", but is currently set to %q`, region)
	}
	if period != "" {
		if _, _, err := (oceanval.TimeBounds{Label: period}).Resolve(); err != nil {
			return err
		}
	}
	if len(datasets) == 0 {
		datasets = oceanval.ObsDatasets()
	}

	matched := make(map[string]bool, len(variables))
	var failed, total int
	for _, name := range datasets {
		l, err := oceanval.LookupObs(name)
		if err != nil {
			return err
		}
		vars := variables
		if len(vars) == 0 {
			vars = l.Variables()
		}
		for _, variable := range vars {
			if !provides(l, variable) {
				continue
			}
			matched[variable] = true
			total++
			if err := fetchOne(ctx, l, variable, region, period); err != nil {
				log.Printf("fetching %s %s: %v", name, variable, err)
				failed++
			}
		}
	}
	for _, variable := range variables {
		if !matched[variable] {
			return fmt.Errorf("oceanval: no requested dataset provides variable %q", variable)
		}
	}
	if failed > 0 {
		return fmt.Errorf("oceanval: %d of %d objects failed to fetch", failed, total)
	}
	return nil
}

// fetchOne loads one observation field, retrying failures, so that the
// objects backing it land in the store's cache.
func fetchOne(ctx context.Context, l oceanval.ObsLoader, variable, region, period string) error {
	req := &oceanval.ObsRequest{
		Variable:   variable,
		Region:     region,
		TimeBounds: oceanval.TimeBounds{Label: period},
	}
	log.Printf("Fetching %s %s...", l.Name(), variable)
	return backoff.RetryNotify(
		func() error {
			_, err := l.Load(ctx, req)
			return err
		},
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchRetries),
		func(err error, d time.Duration) {
			log.Printf("%v: retrying in %v", err, d)
		},
	)
}

// provides reports whether the loader serves the named variable.
func provides(l oceanval.ObsLoader, variable string) bool {
	for _, v := range l.Variables() {
		if v == variable {
			return true
		}
	}
	return false
}
