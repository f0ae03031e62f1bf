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
	"net/http"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/carto"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"github.com/golang/groupcache/lru"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/oceanmodel/oceanval/regrid"
)

const (
	lonlatProj = "+proj=longlat +datum=WGS84 +no_defs"

	// webMapProj is the spatial reference for web mapping.
	webMapProj = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"

	// webMercLatMax is the highest latitude the web mercator
	// projection can represent.
	webMercLatMax = 85.06
)

// webServer serves maps and plots of the results stored in a
// Validator. All map data is prepared by a single goroutine so the
// underlying containers are never read concurrently.
type webServer struct {
	v        *Validator
	trans    proj.Transformer
	requests chan *mapDataRequest
}

type mapDataRequest struct {
	name       string
	returnChan chan *mapDataRequest
	data       *carto.MapData
	err        error
}

func newWebMapTransform() proj.Transformer {
	lonlatSR, err := proj.Parse(lonlatProj)
	if err != nil {
		panic(fmt.Errorf("oceanval: while parsing lonlatProj: %v", err))
	}
	webMapSR, err := proj.Parse(webMapProj)
	if err != nil {
		panic(fmt.Errorf("oceanval: while parsing webMapProj: %v", err))
	}
	trans, err := lonlatSR.NewTransform(webMapSR)
	if err != nil {
		panic(fmt.Errorf("oceanval: while creating web map transform: %v", err))
	}
	return trans
}

// WebHandler returns an HTTP handler that serves an HTML index of the
// stored results at /, Google-style map tiles of gridded results at
// /map/name&zoom&x&y, legends at /legend/name, line plots of stored
// series at /timeseries/name, and model-observation comparisons with a
// regression line at /scatter/modelname/obsname.
func (v *Validator) WebHandler() http.Handler {
	s := &webServer{
		v:        v,
		trans:    newWebMapTransform(),
		requests: make(chan *mapDataRequest),
	}
	go s.mapDataServer()
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.indexHandler)
	mux.HandleFunc("/map/", s.mapHandler)
	mux.HandleFunc("/legend/", s.legendHandler)
	mux.HandleFunc("/timeseries/", s.timeseriesHandler)
	mux.HandleFunc("/scatter/", s.scatterHandler)
	return mux
}

// webEntry looks up a stored entry by name, searching the results
// first and the observations second.
func (v *Validator) webEntry(name string) (*Entry, bool) {
	if e, ok := v.Results.Get(name); ok {
		return e, true
	}
	return v.Obs.Get(name)
}

func (v *Validator) webNames() []string {
	names := v.Results.Names()
	for _, n := range v.Obs.Names() {
		if _, ok := v.Results.Get(n); !ok {
			names = append(names, n)
		}
	}
	return names
}

// mapDataServer prepares map data one request at a time, keeping the
// most recently used variables cached.
func (s *webServer) mapDataServer() {
	const maxEntries = 20
	cache := lru.New(maxEntries)
	for request := range s.requests {
		if d, ok := cache.Get(request.name); ok {
			request.data = d.(*carto.MapData)
			request.returnChan <- request
			continue
		}
		request.data, request.err = s.buildMapData(request.name)
		if request.err == nil {
			cache.Add(request.name, request.data)
		}
		request.returnChan <- request
	}
}

func (s *webServer) getMapData(name string) (*carto.MapData, error) {
	request := &mapDataRequest{name: name, returnChan: make(chan *mapDataRequest)}
	s.requests <- request
	result := <-request.returnChan
	return result.data, result.err
}

// buildMapData reprojects the grid cells of the named entry to web
// mercator and attaches a color map. Cells holding NaN are left off
// the map entirely.
func (s *webServer) buildMapData(name string) (*carto.MapData, error) {
	e, ok := s.v.webEntry(name)
	if !ok {
		return nil, fmt.Errorf("oceanval: no stored entry named %s; stored entries are %v", name, s.v.webNames())
	}
	if e.Coords.Lon == nil || e.Coords.Lat == nil {
		return nil, fmt.Errorf("oceanval: %s is not on a spatial grid", name)
	}
	g, err := regrid.NewGrid(e.Coords.Lon, e.Coords.Lat, nil, nil)
	if err != nil {
		return nil, err
	}
	ny, nx := g.Shape()
	if len(e.Data.Elements) != ny*nx {
		return nil, fmt.Errorf("oceanval: mapping %s: have %d values for %d grid cells", name, len(e.Data.Elements), ny*nx)
	}
	polys := g.CellPolygons()
	shapes := make([]geom.Geom, 0, len(polys))
	vals := make([]float64, 0, len(polys))
	for i, p := range polys {
		v := e.Data.Elements[i]
		if math.IsNaN(v) {
			continue
		}
		// Web mercator is undefined at the poles; polar cell corners
		// are moved to the projection's latitude limit.
		for _, path := range p {
			for k, pt := range path {
				if pt.Y > webMercLatMax {
					path[k].Y = webMercLatMax
				} else if pt.Y < -webMercLatMax {
					path[k].Y = -webMercLatMax
				}
			}
		}
		gg, err := p.Transform(s.trans)
		if err != nil {
			return nil, fmt.Errorf("oceanval: mapping %s: %v", name, err)
		}
		shapes = append(shapes, gg)
		vals = append(vals, v)
	}
	m := carto.NewMapData(len(vals), carto.LinCutoff)
	for i, v := range vals {
		m.Shapes[i] = shapes[i]
		m.Data[i] = v
	}
	m.Cmap.AddArray(m.Data)
	m.Cmap.Set()
	return m, nil
}

func parseMapRequest(base string, r *http.Request) (name string,
	zoom, x, y int, err error) {
	request := strings.Split(r.URL.Path[len(base):], "&")
	if len(request) != 4 {
		err = fmt.Errorf("oceanval: map request %s does not have the form name&zoom&x&y", r.URL.Path)
		return
	}
	name = request[0]
	zoom, err = s2i(request[1])
	if err != nil {
		return
	}
	x, err = s2i(request[2])
	if err != nil {
		return
	}
	y, err = s2i(request[3])
	return
}

func s2i(s string) (int, error) {
	i64, err := strconv.ParseInt(s, 10, 64)
	return int(i64), err
}

func (s *webServer) mapHandler(w http.ResponseWriter, r *http.Request) {
	name, zoom, x, y, err := parseMapRequest("/map/", r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m, err := s.getMapData(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := m.WriteGoogleMapTile(w, zoom, x, y); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *webServer) legendHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path[len("/legend/"):]
	m, err := s.getMapData(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	e, _ := s.v.webEntry(name)
	const LegendWidth = 6.2 * vg.Inch
	const LegendHeight = LegendWidth * 0.1067
	m.Cmap.LegendWidth = LegendWidth
	m.Cmap.LegendHeight = LegendHeight
	m.Cmap.LineWidth = 0.5
	m.Cmap.FontSize = 8

	c := vgimg.New(LegendWidth, LegendHeight)
	dc := draw.New(c)
	if err := m.Cmap.Legend(&dc, fmt.Sprintf("%v (%v)", name, e.Units)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// seriesRows returns the rows of a stored series entry together with
// their legend labels. A plain [time] entry has one row; an
// [obs, time] entry has one row per observation source.
func seriesRows(e *Entry) (rows [][]float64, labels []string, err error) {
	switch {
	case len(e.Dims) == 1 && e.Dims[0] == TimeDim:
		return [][]float64{e.Data.Elements}, []string{e.Name}, nil
	case len(e.Dims) == 2 && e.Dims[0] == ObsDim && e.Dims[1] == TimeDim:
		n := e.Data.Shape[1]
		for k := 0; k < e.Data.Shape[0]; k++ {
			rows = append(rows, e.Data.Elements[k*n:(k+1)*n])
			if k < len(e.Coords.Obs) {
				labels = append(labels, e.Coords.Obs[k])
			} else {
				labels = append(labels, fmt.Sprintf("%s %d", e.Name, k))
			}
		}
		return rows, labels, nil
	}
	return nil, nil, fmt.Errorf("oceanval: %s is not a time series; its axes are %v", e.Name, e.Dims)
}

// displayScale returns the multiplier and unit label for plotting.
// Grid-integrated areas are stored in m² but displayed in 10⁶ km².
func displayScale(units string) (float64, string) {
	if units == "m2" {
		return 1e-12, "10⁶ km²"
	}
	return 1, units
}

func (s *webServer) timeseriesHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path[len("/timeseries/"):]
	e, ok := s.v.webEntry(name)
	if !ok {
		http.Error(w, fmt.Sprintf("oceanval: no stored entry named %s; stored entries are %v", name, s.v.webNames()),
			http.StatusInternalServerError)
		return
	}
	rows, labels, err := seriesRows(e)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	scale, units := displayScale(e.Units)

	p, err := plot.New()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p.Title.Text = name
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}
	p.Y.Label.Text = units
	args := make([]interface{}, 0, 2*len(rows))
	for k, row := range rows {
		xy := make(plotter.XYs, 0, len(row))
		for i, v := range row {
			if math.IsNaN(v) || i >= len(e.Coords.Time) {
				continue
			}
			xy = append(xy, plotter.XY{X: float64(e.Coords.Time[i].Unix()), Y: v * scale})
		}
		args = append(args, labels[k], xy)
	}
	if err := plotutil.AddLinePoints(p, args...); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	wt, err := p.WriterTo(5*vg.Inch, 3*vg.Inch, "png")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseScatterRequest(base string, r *http.Request) (model, obs string, err error) {
	request := strings.Split(r.URL.Path[len(base):], "/")
	if len(request) != 2 || request[0] == "" || request[1] == "" {
		return "", "", fmt.Errorf("oceanval: scatter request %s does not have the form modelname/obsname", r.URL.Path)
	}
	return request[0], request[1], nil
}

func (s *webServer) scatterHandler(w http.ResponseWriter, r *http.Request) {
	mname, oname, err := parseScatterRequest("/scatter/", r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	me, ok := s.v.webEntry(mname)
	if !ok {
		http.Error(w, fmt.Sprintf("oceanval: no stored entry named %s; stored entries are %v", mname, s.v.webNames()),
			http.StatusInternalServerError)
		return
	}
	oe, ok := s.v.webEntry(oname)
	if !ok {
		http.Error(w, fmt.Sprintf("oceanval: no stored entry named %s; stored entries are %v", oname, s.v.webNames()),
			http.StatusInternalServerError)
		return
	}
	mRows, _, err := seriesRows(me)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	oRows, _, err := seriesRows(oe)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	scale, units := displayScale(me.Units)

	// Pair the first rows of the two series on shared timesteps.
	idx := make(map[int64]int, len(oe.Coords.Time))
	for i, t := range oe.Coords.Time {
		idx[t.Unix()] = i
	}
	var mv, ov []float64
	for i, t := range me.Coords.Time {
		j, ok := idx[t.Unix()]
		if !ok || i >= len(mRows[0]) || j >= len(oRows[0]) {
			continue
		}
		a, b := mRows[0][i]*scale, oRows[0][j]*scale
		if math.IsNaN(a) || math.IsNaN(b) {
			continue
		}
		mv = append(mv, a)
		ov = append(ov, b)
	}
	if len(mv) < 2 {
		http.Error(w, fmt.Sprintf("oceanval: %s and %s share only %d timesteps", mname, oname, len(mv)),
			http.StatusInternalServerError)
		return
	}
	mArr := sparse.ZerosDense(len(mv))
	copy(mArr.Elements, mv)
	oArr := sparse.ZerosDense(len(ov))
	copy(oArr.Elements, ov)
	reg, err := RegressionStats(mArr, oArr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	p, err := plot.New()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p.Title.Text = fmt.Sprintf("%s vs %s (r² = %.3f)", mname, oname, reg.RSquared)
	p.X.Label.Text = fmt.Sprintf("%s (%s)", oname, units)
	p.Y.Label.Text = fmt.Sprintf("%s (%s)", mname, units)

	xy := make(plotter.XYs, len(mv))
	min, max := math.Inf(1), math.Inf(-1)
	for i := range mv {
		xy[i].X = ov[i]
		xy[i].Y = mv[i]
		min = math.Min(min, math.Min(ov[i], mv[i]))
		max = math.Max(max, math.Max(ov[i], mv[i]))
	}
	sc, err := plotter.NewScatter(xy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sc.Shape = draw.CircleGlyph{}
	one, err := plotter.NewLine(plotter.XYs{{X: min, Y: min}, {X: max, Y: max}})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fit, err := plotter.NewLine(plotter.XYs{
		{X: min, Y: min*reg.Slope + reg.Intercept},
		{X: max, Y: max*reg.Slope + reg.Intercept},
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p.Add(sc, one, fit)
	p.Legend.Add("1:1", one)
	p.Legend.Add("fit", fit)
	p.X.Min, p.X.Max = min, max
	p.Y.Min, p.Y.Max = min, max

	wt, err := p.WriterTo(4*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// entryIsGrid reports whether the entry holds exactly one value per
// grid cell.
func entryIsGrid(e *Entry) bool {
	if e.Coords.Lon == nil || e.Coords.Lat == nil {
		return false
	}
	g, err := regrid.NewGrid(e.Coords.Lon, e.Coords.Lat, nil, nil)
	if err != nil {
		return false
	}
	ny, nx := g.Shape()
	return len(e.Data.Elements) == ny*nx
}

func entryIsSeries(e *Entry) bool {
	_, _, err := seriesRows(e)
	return err == nil
}

func (s *webServer) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><head><title>OceanVal</title></head><body>\n")
	fmt.Fprint(w, "<h1>OceanVal validation results</h1>\n")

	fmt.Fprint(w, "<h2>Maps</h2>\n")
	for _, name := range s.v.webNames() {
		e, _ := s.v.webEntry(name)
		if !entryIsGrid(e) {
			continue
		}
		fmt.Fprintf(w, "<h3>%s</h3>\n", name)
		fmt.Fprintf(w, "<p>tiles at /map/%s&zoom&x&y</p>\n", name)
		fmt.Fprintf(w, "<img src=\"/legend/%s\">\n", name)
	}

	fmt.Fprint(w, "<h2>Time series</h2>\n")
	for _, name := range s.v.webNames() {
		e, _ := s.v.webEntry(name)
		if !entryIsSeries(e) {
			continue
		}
		fmt.Fprintf(w, "<h3>%s</h3>\n", name)
		fmt.Fprintf(w, "<img src=\"/timeseries/%s\">\n", name)
		if _, ok := s.v.Results.Get(name); !ok {
			continue
		}
		for _, oname := range s.v.Obs.Names() {
			oEntry, _ := s.v.Obs.Get(oname)
			if strings.HasPrefix(oname, name+"_") && entryIsSeries(oEntry) {
				fmt.Fprintf(w, "<img src=\"/scatter/%s/%s\">\n", name, oname)
			}
		}
	}

	if s.v.Stats.Len() > 0 {
		fmt.Fprint(w, "<h2>Statistics</h2>\n<table border=\"1\">\n")
		fmt.Fprint(w, "<tr><th>name</th><th>value</th><th>units</th></tr>\n")
		for _, name := range s.v.Stats.Names() {
			e, _ := s.v.Stats.Get(name)
			vals := make([]string, len(e.Data.Elements))
			for i, v := range e.Data.Elements {
				vals[i] = fmt.Sprintf("%.4g", v)
			}
			fmt.Fprintf(w, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>\n",
				name, strings.Join(vals, ", "), e.Units)
		}
		fmt.Fprint(w, "</table>\n")
	}
	fmt.Fprint(w, "</body></html>\n")
}
