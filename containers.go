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
	"reflect"
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// Coords holds the coordinate arrays belonging to a single stored
// entry. Every entry owns its coordinates outright, so removing one
// entry can never orphan or disturb the coordinates of another.
type Coords struct {
	Lon, Lat *sparse.DenseArray
	Time     []time.Time
	Depth    []float64
	Seasons  []string
	Months   []string

	// Obs labels the observation-source axis, when present.
	Obs []string
}

// CoordsOf returns an owned copy of the coordinates of d.
func CoordsOf(d *Dataset) *Coords {
	c := new(Coords)
	if d.Lon != nil {
		c.Lon = d.Lon.Copy()
	}
	if d.Lat != nil {
		c.Lat = d.Lat.Copy()
	}
	c.Time = append([]time.Time{}, d.Time...)
	c.Depth = append([]float64{}, d.Depth...)
	c.Seasons = append([]string{}, d.Seasons...)
	c.Months = append([]string{}, d.Months...)
	c.Obs = append([]string{}, d.Obs...)
	return c
}

func coordsEqual(a, b *Coords) bool {
	if (a.Lon == nil) != (b.Lon == nil) || (a.Lat == nil) != (b.Lat == nil) {
		return false
	}
	if a.Lon != nil && (!reflect.DeepEqual(a.Lon.Shape, b.Lon.Shape) ||
		!reflect.DeepEqual(a.Lon.Elements, b.Lon.Elements)) {
		return false
	}
	if a.Lat != nil && (!reflect.DeepEqual(a.Lat.Shape, b.Lat.Shape) ||
		!reflect.DeepEqual(a.Lat.Elements, b.Lat.Elements)) {
		return false
	}
	if len(a.Time) != len(b.Time) {
		return false
	}
	for i := range a.Time {
		if !a.Time[i].Equal(b.Time[i]) {
			return false
		}
	}
	return reflect.DeepEqual(a.Depth, b.Depth) &&
		reflect.DeepEqual(a.Seasons, b.Seasons) &&
		reflect.DeepEqual(a.Months, b.Months)
}

// Entry is one named array in a ResultSet together with its own
// coordinates.
type Entry struct {
	Name        string
	Dims        []string
	Description string
	Units       string
	Data        *sparse.DenseArray
	Coords      *Coords
}

// ResultSet accumulates named entries. It backs the validator's
// results, observations, and statistics collections.
type ResultSet struct {
	entries map[string]*Entry
}

// NewResultSet returns an empty ResultSet.
func NewResultSet() *ResultSet {
	return &ResultSet{entries: make(map[string]*Entry)}
}

// Put stores e, replacing any existing entry with the same name. The
// replaced entry's coordinates go with it.
func (rs *ResultSet) Put(e *Entry) {
	if e.Coords == nil {
		e.Coords = new(Coords)
	}
	rs.entries[e.Name] = e
}

// Get returns the named entry.
func (rs *ResultSet) Get(name string) (*Entry, bool) {
	e, ok := rs.entries[name]
	return e, ok
}

// Remove deletes the named entry and its coordinates.
func (rs *ResultSet) Remove(name string) {
	delete(rs.entries, name)
}

// Clear removes all entries.
func (rs *ResultSet) Clear() {
	rs.entries = make(map[string]*Entry)
}

// Len returns the number of stored entries.
func (rs *ResultSet) Len() int {
	return len(rs.entries)
}

// Names returns the sorted names of the stored entries.
func (rs *ResultSet) Names() []string {
	names := make([]string, 0, len(rs.entries))
	for n := range rs.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Merge inserts e. When an entry with the same name already exists and
// both carry a leading observation-source axis, the two are joined
// along that axis: labels unique to the existing entry are kept,
// labels shared with e take e's values, and labels unique to e are
// appended. Entries without an observation axis replace as Put does.
func (rs *ResultSet) Merge(e *Entry) error {
	old, ok := rs.entries[e.Name]
	if !ok || len(e.Dims) == 0 || e.Dims[0] != ObsDim ||
		len(old.Dims) == 0 || old.Dims[0] != ObsDim {
		rs.Put(e)
		return nil
	}
	if !reflect.DeepEqual(old.Dims, e.Dims) ||
		!reflect.DeepEqual(old.Data.Shape[1:], e.Data.Shape[1:]) {
		return fmt.Errorf("oceanval: merging entry %s: shape %v %v is incompatible with stored shape %v %v",
			e.Name, e.Dims, e.Data.Shape, old.Dims, old.Data.Shape)
	}
	if !coordsEqual(old.Coords, e.Coords) {
		return fmt.Errorf("oceanval: merging entry %s: coordinates do not match the stored entry", e.Name)
	}
	newIdx := make(map[string]int, len(e.Coords.Obs))
	for i, l := range e.Coords.Obs {
		newIdx[l] = i
	}
	slab := 1
	for _, n := range e.Data.Shape[1:] {
		slab *= n
	}
	var labels []string
	var rows [][]float64
	for i, l := range old.Coords.Obs {
		labels = append(labels, l)
		if j, ok := newIdx[l]; ok {
			rows = append(rows, e.Data.Elements[j*slab:(j+1)*slab])
		} else {
			rows = append(rows, old.Data.Elements[i*slab:(i+1)*slab])
		}
	}
	oldIdx := make(map[string]bool, len(old.Coords.Obs))
	for _, l := range old.Coords.Obs {
		oldIdx[l] = true
	}
	for i, l := range e.Coords.Obs {
		if !oldIdx[l] {
			labels = append(labels, l)
			rows = append(rows, e.Data.Elements[i*slab:(i+1)*slab])
		}
	}
	shape := append([]int{len(labels)}, e.Data.Shape[1:]...)
	data := sparse.ZerosDense(shape...)
	for i, row := range rows {
		copy(data.Elements[i*slab:(i+1)*slab], row)
	}
	coords := CoordsOfEntry(e)
	coords.Obs = labels
	rs.Put(&Entry{
		Name:        e.Name,
		Dims:        e.Dims,
		Description: e.Description,
		Units:       e.Units,
		Data:        data,
		Coords:      coords,
	})
	return nil
}

// CoordsOfEntry returns an owned copy of the coordinates of e.
func CoordsOfEntry(e *Entry) *Coords {
	c := new(Coords)
	if e.Coords == nil {
		return c
	}
	if e.Coords.Lon != nil {
		c.Lon = e.Coords.Lon.Copy()
	}
	if e.Coords.Lat != nil {
		c.Lat = e.Coords.Lat.Copy()
	}
	c.Time = append([]time.Time{}, e.Coords.Time...)
	c.Depth = append([]float64{}, e.Coords.Depth...)
	c.Seasons = append([]string{}, e.Coords.Seasons...)
	c.Months = append([]string{}, e.Coords.Months...)
	c.Obs = append([]string{}, e.Coords.Obs...)
	return c
}

// Dataset assembles the named entries (or all entries if names is
// empty) into a single Dataset for writing or plotting. All selected
// entries must share identical coordinates, except that entries
// without an observation axis may join ones that have one.
func (rs *ResultSet) Dataset(names ...string) (*Dataset, error) {
	if len(names) == 0 {
		names = rs.Names()
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("oceanval: assembling a dataset from an empty result set")
	}
	var ref *Entry
	for _, name := range names {
		e, ok := rs.entries[name]
		if !ok {
			return nil, fmt.Errorf("oceanval: no stored entry named %s; stored entries are %v", name, rs.Names())
		}
		if ref == nil || (len(ref.Coords.Obs) == 0 && len(e.Coords.Obs) > 0) {
			ref = e
		}
	}
	d := NewDataset()
	d.Lon = ref.Coords.Lon
	d.Lat = ref.Coords.Lat
	d.Time = ref.Coords.Time
	d.Depth = ref.Coords.Depth
	d.Seasons = ref.Coords.Seasons
	d.Months = ref.Coords.Months
	d.Obs = ref.Coords.Obs
	for _, name := range names {
		e := rs.entries[name]
		if !coordsEqual(ref.Coords, e.Coords) {
			return nil, fmt.Errorf("oceanval: assembling a dataset: entry %s has different coordinates than entry %s",
				e.Name, ref.Name)
		}
		if len(e.Coords.Obs) > 0 && !reflect.DeepEqual(e.Coords.Obs, d.Obs) {
			return nil, fmt.Errorf("oceanval: assembling a dataset: entry %s has different observation labels than entry %s",
				e.Name, ref.Name)
		}
		d.AddVariable(e.Name, e.Dims, e.Description, e.Units, e.Data)
	}
	return d, nil
}
