package layer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"
	"github.com/zarrview/zarrlayer/maputil"
	"github.com/zarrview/zarrlayer/query"
	"github.com/zarrview/zarrlayer/tiledata"
)

// ValueAt implements query.Source by fetching (or reusing) the tile
// covering lon/lat at the pyramid's finest level and sampling the
// pixel nearest that point, satisfying sel's fixed dimension values.
func (l *Layer) ValueAt(ctx context.Context, lon, lat float64, sel map[string]int) (float64, error) {
	if l.pyramid == nil {
		return 0, fmt.Errorf("layer: query before OnAdd: no pyramid discovered")
	}
	level := l.pyramid.MaxLevel()
	id := maputil.LonLatToTile(lon, lat, level)

	fixed := make(map[string]tiledata.SelectorValue, len(sel))
	for k, v := range sel {
		fixed[k] = tiledata.Single(v)
	}
	td, err := l.tiles.EnsureTile(ctx, level, id, tiledata.Selector{Fixed: fixed})
	if err != nil {
		return 0, err
	}

	bounds := maputil.TileBounds(id)
	ux := (lon - bounds.West) / (bounds.East - bounds.West)
	uy := (bounds.North - lat) / (bounds.North - bounds.South)
	col := clampPixel(int(ux*float64(td.Width)), td.Width)
	row := clampPixel(int(uy*float64(td.Height)), td.Height)

	key := "0"
	if idx, ok := sel[l.bandDim()]; ok {
		key = strconv.Itoa(idx)
	}
	values := td.BandValues[key]
	if values == nil {
		values = td.BandValues["0"]
	}
	if values == nil {
		return 0, fmt.Errorf("layer: no data for selector %v at tile %+v", sel, id)
	}
	return values[row*td.Width+col], nil
}

func clampPixel(p, size int) int {
	if p < 0 {
		return 0
	}
	if p >= size {
		return size - 1
	}
	return p
}

// QueryEngine returns the layer's spatial query engine, sampling this
// layer's own data via ValueAt.
func (l *Layer) QueryEngine() *query.Engine { return l.queryEngine }

// querySelector builds a query.Selector from the layer's active fixed
// selector plus, when more than one band is configured, a band-set
// entry so a single query call returns results nested by band index.
func (l *Layer) querySelector() query.Selector {
	sel := make(query.Selector, len(l.selector.Fixed)+1)
	for k, v := range l.selector.Fixed {
		if len(v.List) > 0 {
			sel[k] = append([]int(nil), v.List...)
		}
	}
	if len(l.opts.Bands) > 0 {
		indices := make([]int, len(l.opts.Bands))
		for i, b := range l.opts.Bands {
			indices[i] = l.bandIndex(b)
		}
		sel[l.bandDim()] = indices
	}
	return sel
}

// QueryPoint samples the layer's value at a single GeoJSON Point,
// nested by band index when more than one band is configured.
func (l *Layer) QueryPoint(ctx context.Context, geom *geojson.Geometry) (query.VariableResult, error) {
	return l.queryEngine.QueryPoint(ctx, geom, l.querySelector())
}

// QueryPolygon samples a regular lon/lat grid (spaced by stepDeg)
// inside a GeoJSON Polygon.
func (l *Layer) QueryPolygon(ctx context.Context, geom *geojson.Geometry, stepDeg float64) (query.VariableResult, error) {
	return l.queryEngine.QueryPolygon(ctx, geom, l.querySelector(), stepDeg)
}

// QueryMultiPolygon is QueryPolygon over every member polygon of a
// GeoJSON MultiPolygon.
func (l *Layer) QueryMultiPolygon(ctx context.Context, geom *geojson.Geometry, stepDeg float64) (query.VariableResult, error) {
	return l.queryEngine.QueryMultiPolygon(ctx, geom, l.querySelector(), stepDeg)
}
