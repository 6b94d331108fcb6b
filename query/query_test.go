package query

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type fakeSource struct{}

func (fakeSource) ValueAt(_ context.Context, lon, lat float64, sel map[string]int) (float64, error) {
	return float64(sel["band"]), nil
}

func TestQueryPointNestsByListDimension(t *testing.T) {
	eng := NewEngine(fakeSource{})
	geom := geojson.NewGeometry(orb.Point{1, 2})
	got, err := eng.QueryPoint(context.Background(), geom, Selector{"band": {0, 2, 5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected one entry per band index, got %d", len(got))
	}
	if got[2][0].Value != 2 {
		t.Errorf("expected band index 2's sample to carry value 2, got %v", got[2][0].Value)
	}
}

func TestQueryPointSingleSelectorUsesZeroKey(t *testing.T) {
	eng := NewEngine(fakeSource{})
	geom := geojson.NewGeometry(orb.Point{1, 2})
	got, err := eng.QueryPoint(context.Background(), geom, Selector{"band": {3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0][0].Value != 3 {
		t.Errorf("expected single entry under key 0 with value 3, got %v", got)
	}
}

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
	}}
}

func TestPointInPolygonInsideOutside(t *testing.T) {
	poly := square(0, 0, 10, 10)
	if !pointInPolygon(orb.Point{5, 5}, poly) {
		t.Error("expected point inside square to report inside")
	}
	if pointInPolygon(orb.Point{20, 20}, poly) {
		t.Error("expected point outside square to report outside")
	}
}

func TestPointInPolygonHole(t *testing.T) {
	outer := square(0, 0, 10, 10)
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}
	poly := orb.Polygon{outer[0], hole}
	if pointInPolygon(orb.Point{5, 5}, poly) {
		t.Error("expected point inside hole to report outside")
	}
	if !pointInPolygon(orb.Point{1, 1}, poly) {
		t.Error("expected point outside hole but inside outer ring to report inside")
	}
}
