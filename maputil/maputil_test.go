package maputil

import "testing"

func approxEqual(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestMercatorRoundTrip(t *testing.T) {
	cases := []float64{-80, -45, 0, 10, 60, 84}
	for _, lat := range cases {
		y := LatToMercatorNorm(lat)
		got := MercatorNormToLat(y)
		if !approxEqual(got, lat, 1e-6) {
			t.Errorf("lat %v: round trip got %v", lat, got)
		}
	}
}

func TestLonLatToTileOrigin(t *testing.T) {
	tile := LonLatToTile(0, 0, 1)
	want := TileID{Z: 1, X: 1, Y: 1}
	if tile != want {
		t.Errorf("got %+v, want %+v", tile, want)
	}
}

func TestGetTilesAtZoomCount(t *testing.T) {
	tiles := GetTilesAtZoom(Bounds{West: -10, South: -10, East: 10, North: 10}, 3)
	if len(tiles) == 0 {
		t.Fatal("expected at least one tile")
	}
	for _, tl := range tiles {
		if tl.Z != 3 {
			t.Errorf("unexpected zoom %d", tl.Z)
		}
	}
}

func TestGetTilesAtZoomAntimeridian(t *testing.T) {
	tiles := GetTilesAtZoom(Bounds{West: 170, South: -5, East: -170, North: 5}, 4)
	if len(tiles) == 0 {
		t.Fatal("expected tiles across antimeridian")
	}
}

func TestParentChildRoundTrip(t *testing.T) {
	tile := TileID{Z: 5, X: 10, Y: 7}
	kids := Children(tile)
	for _, k := range kids {
		p, ok := Parent(k)
		if !ok || p != tile {
			t.Errorf("child %+v parent got %+v, want %+v", k, p, tile)
		}
	}
}

func TestZoomToLevelClamps(t *testing.T) {
	if ZoomToLevel(-2, 5) != 0 {
		t.Error("expected clamp to 0")
	}
	if ZoomToLevel(20, 5) != 5 {
		t.Error("expected clamp to maxLevel")
	}
}

func TestZoomToLevelFloors(t *testing.T) {
	if got := ZoomToLevel(3.9, 5); got != 3 {
		t.Errorf("expected floor(3.9)=3, got %d", got)
	}
	if got := ZoomToLevel(3.1, 5); got != 3 {
		t.Errorf("expected floor(3.1)=3, got %d", got)
	}
}

func TestMercatorNormRangeIsUnitInterval(t *testing.T) {
	if x := LonToMercatorNorm(-180); x < -1e-9 || x > 1+1e-9 {
		t.Errorf("LonToMercatorNorm(-180) = %v, want in [0,1]", x)
	}
	if x := LonToMercatorNorm(180); x < -1e-9 || x > 1+1e-9 {
		t.Errorf("LonToMercatorNorm(180) = %v, want in [0,1]", x)
	}
	if y := LatToMercatorNorm(0); y < 0.49 || y > 0.51 {
		t.Errorf("LatToMercatorNorm(0) = %v, want ~0.5", y)
	}
	if y := LatToMercatorNorm(maxMercatorLat); y < -1e-9 || y > 1e-6 {
		t.Errorf("LatToMercatorNorm(north limit) = %v, want ~0", y)
	}
}

func TestLonWrapsAntimeridian(t *testing.T) {
	a := LonToMercatorNorm(190)
	b := LonToMercatorNorm(-170)
	if !approxEqual(a, b, 1e-9) {
		t.Errorf("expected wrapped longitudes to match, got %v vs %v", a, b)
	}
}
