package tiledata

import "testing"

func TestSelectorHashDiffersByValue(t *testing.T) {
	a := Selector{Fixed: map[string]SelectorValue{"time": Single(1)}}
	b := Selector{Fixed: map[string]SelectorValue{"time": Single(2)}}
	if a.Hash() == b.Hash() {
		t.Error("expected different hashes for different selector values")
	}
}

func TestSelectorHashOrderIndependent(t *testing.T) {
	a := Selector{Fixed: map[string]SelectorValue{"time": Single(1), "band": Single(2), "depth": Single(3)}}
	b := Selector{Fixed: map[string]SelectorValue{"depth": Single(3), "time": Single(1), "band": Single(2)}}
	if a.Hash() != b.Hash() {
		t.Errorf("expected hash to be independent of map build order, got %q vs %q", a.Hash(), b.Hash())
	}
}

func TestSelectorListDimension(t *testing.T) {
	sel := Selector{Fixed: map[string]SelectorValue{
		"time": Single(1),
		"band": Multi(0, 2, 5),
	}}
	name, vals, ok := sel.listDimension()
	if !ok || name != "band" {
		t.Fatalf("expected band as list dimension, got %q ok=%v", name, ok)
	}
	if len(vals) != 3 {
		t.Errorf("expected 3 band values, got %v", vals)
	}
	collapsed := sel.withSingle("band", 2)
	if len(collapsed.Fixed["band"].List) != 1 || collapsed.Fixed["band"].List[0] != 2 {
		t.Errorf("expected withSingle to collapse band to [2], got %v", collapsed.Fixed["band"].List)
	}
	if _, _, ok := collapsed.listDimension(); ok {
		t.Error("expected collapsed selector to have no list dimension")
	}
}

func TestCopyChunkIntoTileClips(t *testing.T) {
	tileSize := 4
	out := make([]float64, tileSize*tileSize)
	vals := []float64{1, 2, 3, 4}
	copyChunkIntoTile(out, tileSize, vals, 2, 2, -1, -1)
	// only the bottom-right value of the chunk should land in-bounds at (0,0)
	if out[0] != 4 {
		t.Errorf("got %v, want 4 at (0,0)", out[0])
	}
}
