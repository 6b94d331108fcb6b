// Package query resolves spatial GeoJSON queries (point, polygon,
// multi-polygon) against a Zarr dataset, returning the physical values
// at the queried location(s) regardless of whether the backing data is
// tiled or untiled.
package query

import (
	"context"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/zarrview/zarrlayer/zarr"
	"github.com/zarrview/zarrlayer/zarrerr"
)

// Source resolves a single lon/lat point to a physical value, hiding
// whether the backing store is the tiled or untiled data path. sel
// fixes every non-spatial dimension to one concrete index.
type Source interface {
	ValueAt(ctx context.Context, lon, lat float64, sel map[string]int) (float64, error)
}

// Selector picks the non-spatial dimensions of a query: each dimension
// name maps to the indices requested along it. A single-element slice
// fixes the dimension; a multi-element slice requests a band set, one
// result nested per index under that dimension in the returned
// VariableResult.
type Selector map[string][]int

// Result is one sampled point's outcome; Err is non-nil when the point
// fell outside the array's valid coverage.
type Result struct {
	Lon, Lat float64
	Value    float64
	Err      error
}

// VariableResult nests sampled results by the selector's list-valued
// dimension index (0 if the selector has no list dimension), e.g.
// {0: [...samples for band index 0...], 2: [...band index 2...]}.
type VariableResult map[int][]Result

// listDimension returns the lexicographically smallest dimension name
// carrying more than one requested index, i.e. the query's band-set
// dimension, or ok=false if every dimension in sel is single-valued.
func listDimension(sel Selector) (name string, values []int, ok bool) {
	for k, v := range sel {
		if len(v) > 1 && (name == "" || k < name) {
			name, values = k, v
		}
	}
	return name, values, name != ""
}

// fixedSelectors expands sel into one map[string]int per requested
// index of its list dimension (or a single map if sel has none), ready
// to pass straight to Source.ValueAt.
func fixedSelectors(sel Selector) map[int]map[string]int {
	listDim, listVals, ok := listDimension(sel)
	out := make(map[int]map[string]int)
	if !ok {
		out[0] = collapseSelector(sel, "", 0)
		return out
	}
	for _, v := range listVals {
		out[v] = collapseSelector(sel, listDim, v)
	}
	return out
}

func collapseSelector(sel Selector, listDim string, listVal int) map[string]int {
	fixed := make(map[string]int, len(sel))
	for k, v := range sel {
		if k == listDim {
			fixed[k] = listVal
			continue
		}
		if len(v) > 0 {
			fixed[k] = v[0]
		}
	}
	return fixed
}

// sortedKeys returns the fixedSelectors map's keys in ascending order,
// so results are accumulated deterministically regardless of map
// iteration order.
func sortedKeys(m map[int]map[string]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Engine answers spatial queries against a Source.
type Engine struct {
	source Source
}

// NewEngine constructs a query engine over a tiled or untiled data
// source.
func NewEngine(source Source) *Engine {
	return &Engine{source: source}
}

// QueryPoint samples the value at a single GeoJSON Point geometry, once
// per index of sel's list dimension (or once overall if sel has none).
func (e *Engine) QueryPoint(ctx context.Context, geom *geojson.Geometry, sel Selector) (VariableResult, error) {
	pt, ok := geom.Coordinates.(orb.Point)
	if !ok {
		return nil, &zarrerr.QueryError{Reason: "expected Point geometry"}
	}
	out := make(VariableResult)
	fixed := fixedSelectors(sel)
	for _, key := range sortedKeys(fixed) {
		v, err := e.source.ValueAt(ctx, pt.X(), pt.Y(), fixed[key])
		out[key] = []Result{{Lon: pt.X(), Lat: pt.Y(), Value: v, Err: err}}
	}
	return out, nil
}

// QueryPolygon samples every point of a regular lon/lat sampling grid
// (spaced by stepDeg) that falls inside the polygon (honoring holes),
// once per index of sel's list dimension.
func (e *Engine) QueryPolygon(ctx context.Context, geom *geojson.Geometry, sel Selector, stepDeg float64) (VariableResult, error) {
	poly, ok := geom.Coordinates.(orb.Polygon)
	if !ok {
		return nil, &zarrerr.QueryError{Reason: "expected Polygon geometry"}
	}
	return e.sampleRings(ctx, []orb.Polygon{poly}, sel, stepDeg)
}

// QueryMultiPolygon is QueryPolygon over every member polygon of a
// MultiPolygon geometry.
func (e *Engine) QueryMultiPolygon(ctx context.Context, geom *geojson.Geometry, sel Selector, stepDeg float64) (VariableResult, error) {
	mp, ok := geom.Coordinates.(orb.MultiPolygon)
	if !ok {
		return nil, &zarrerr.QueryError{Reason: "expected MultiPolygon geometry"}
	}
	return e.sampleRings(ctx, mp, sel, stepDeg)
}

func (e *Engine) sampleRings(ctx context.Context, polys []orb.Polygon, sel Selector, stepDeg float64) (VariableResult, error) {
	if stepDeg <= 0 {
		return nil, &zarrerr.QueryError{Reason: "stepDeg must be positive"}
	}
	out := make(VariableResult)
	fixed := fixedSelectors(sel)
	for _, key := range sortedKeys(fixed) {
		f := fixed[key]
		var results []Result
		for _, poly := range polys {
			bound := poly.Bound()
			for lat := bound.Min.Y(); lat <= bound.Max.Y(); lat += stepDeg {
				for lon := bound.Min.X(); lon <= bound.Max.X(); lon += stepDeg {
					if !pointInPolygon(orb.Point{lon, lat}, poly) {
						continue
					}
					v, err := e.source.ValueAt(ctx, lon, lat, f)
					results = append(results, Result{Lon: lon, Lat: lat, Value: v, Err: err})
				}
			}
		}
		out[key] = results
	}
	return out, nil
}

// pointInPolygon reports whether pt lies inside poly's outer ring and
// outside every hole. orb does not ship a point-in-polygon predicate,
// so ring containment is a standard even-odd ray cast.
func pointInPolygon(pt orb.Point, poly orb.Polygon) bool {
	if len(poly) == 0 {
		return false
	}
	if !pointInRing(pt, poly[0]) {
		return false
	}
	for _, hole := range poly[1:] {
		if pointInRing(pt, hole) {
			return false
		}
	}
	return true
}

func pointInRing(pt orb.Point, ring orb.Ring) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi.Y() > pt.Y()) != (pj.Y() > pt.Y()) &&
			pt.X() < (pj.X()-pi.X())*(pt.Y()-pi.Y())/(pj.Y()-pi.Y())+pi.X() {
			inside = !inside
		}
	}
	return inside
}

// Clamp maps a raw value through the array's scale/fill convention,
// shared with zarr.ArrayMeta.ApplyScale so query results use the same
// physical-value semantics as tiled/untiled rendering.
func Clamp(meta *zarr.ArrayMeta, raw float64) float64 {
	return meta.ApplyScale(raw)
}
