package layer

import (
	"testing"

	"github.com/zarrview/zarrlayer/tiledata"
)

func newTestLayer(t *testing.T, opts Options) *Layer {
	t.Helper()
	opts.URL = "http://example.invalid/ds"
	l, err := New(opts)
	if err != nil {
		t.Fatalf("unexpected error constructing layer: %v", err)
	}
	return l
}

func TestBandIndexDefaultsToZero(t *testing.T) {
	l := newTestLayer(t, Options{Bands: []string{"tavg"}})
	if got := l.bandIndex("tavg"); got != 0 {
		t.Errorf("expected default index 0, got %d", got)
	}
}

func TestBandIndexHonorsConfiguredMapping(t *testing.T) {
	l := newTestLayer(t, Options{
		Bands:     []string{"tavg", "prec"},
		BandIndex: map[string]int{"tavg": 0, "prec": 3},
	})
	if got := l.bandIndex("prec"); got != 3 {
		t.Errorf("expected configured index 3, got %d", got)
	}
}

func TestBandDimDefaultsAndOverrides(t *testing.T) {
	l := newTestLayer(t, Options{})
	if l.bandDim() != "band" {
		t.Errorf("expected default band dim, got %q", l.bandDim())
	}
	l2 := newTestLayer(t, Options{BandDim: "variable"})
	if l2.bandDim() != "variable" {
		t.Errorf("expected overridden band dim, got %q", l2.bandDim())
	}
}

func TestEffectiveSelectorAddsBandSetForMultipleBands(t *testing.T) {
	l := newTestLayer(t, Options{
		Bands:     []string{"tavg", "prec"},
		BandIndex: map[string]int{"tavg": 0, "prec": 2},
	})
	l.selector = tiledata.Selector{Fixed: map[string]tiledata.SelectorValue{"time": tiledata.Single(5)}}

	sel := l.effectiveSelector()
	band, ok := sel.Fixed["band"]
	if !ok {
		t.Fatal("expected a band-set entry for multiple configured bands")
	}
	if len(band.List) != 2 || band.List[0] != 0 || band.List[1] != 2 {
		t.Errorf("expected band list [0 2], got %v", band.List)
	}
	if sel.Fixed["time"].List[0] != 5 {
		t.Error("expected existing fixed dimensions preserved")
	}
}

func TestEffectiveSelectorUnchangedForSingleBand(t *testing.T) {
	l := newTestLayer(t, Options{Bands: []string{"tavg"}})
	l.selector = tiledata.Selector{Fixed: map[string]tiledata.SelectorValue{"time": tiledata.Single(1)}}
	sel := l.effectiveSelector()
	if _, ok := sel.Fixed["band"]; ok {
		t.Error("expected no band-set entry for a single configured band")
	}
}

func TestBuildColormapLUTSpansEndpoints(t *testing.T) {
	cm := Colormap{{R: 0, G: 0, B: 0}, {R: 1, G: 1, B: 1}}
	lut := buildColormapLUT(cm)
	if lut[0] != [4]float32{0, 0, 0, 1} {
		t.Errorf("expected first stop black, got %v", lut[0])
	}
	if lut[7] != [4]float32{1, 1, 1, 1} {
		t.Errorf("expected last stop white, got %v", lut[7])
	}
}

func TestQuerySelectorNestsBandIndices(t *testing.T) {
	l := newTestLayer(t, Options{
		Bands:     []string{"tavg", "prec"},
		BandIndex: map[string]int{"tavg": 0, "prec": 1},
	})
	sel := l.querySelector()
	band, ok := sel["band"]
	if !ok || len(band) != 2 {
		t.Fatalf("expected band-set query selector, got %v", sel)
	}
}
