package render

import (
	"testing"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/zarrview/zarrlayer/gputiles"
	"github.com/zarrview/zarrlayer/maputil"
)

func TestBandKeysDistinctPerIndex(t *testing.T) {
	if bandMinKey(0) == bandMinKey(1) {
		t.Error("expected distinct band min keys")
	}
	if bandMinKey(3) != "BandMin3" {
		t.Errorf("got %q", bandMinKey(3))
	}
}

func TestTranslatedVerticesAppliesOffset(t *testing.T) {
	src := []ebiten.Vertex{{DstX: 1}, {DstX: 2}}
	out := translatedVertices(src, 10)
	if out[0].DstX != 11 || out[1].DstX != 12 {
		t.Errorf("got %+v", out)
	}
	if translatedVertices(src, 0)[0].DstX != 1 {
		t.Error("zero offset should leave vertices unchanged")
	}
}

func TestFlattenColormapLength(t *testing.T) {
	var lut [8][4]float32
	lut[3] = [4]float32{0.1, 0.2, 0.3, 1}
	got := flattenColormap(lut)
	if len(got) != 32 {
		t.Fatalf("expected 32 floats, got %d", len(got))
	}
	if got[3*4] != 0.1 || got[3*4+3] != 1 {
		t.Errorf("expected stop 3 preserved at its offset, got %v", got[12:16])
	}
}

func TestResolveChildFallbackFindsResidentDescendant(t *testing.T) {
	cache := gputiles.NewCache(16)
	parent := maputil.TileID{Z: 2, X: 1, Y: 1}
	kids := maputil.Children(parent)
	cache.Upsert(kids[2], &gputiles.Entry{})

	sources := ResolveChildFallback(cache, parent, 2)
	if len(sources) != 1 {
		t.Fatalf("expected exactly one resident descendant, got %d", len(sources))
	}
	want := [2]float32{0, 0.5}
	if sources[0].TexOffset != want {
		t.Errorf("expected quadrant offset %v, got %v", want, sources[0].TexOffset)
	}
}

func TestResolveChildFallbackEmptyWhenNoneResident(t *testing.T) {
	cache := gputiles.NewCache(16)
	parent := maputil.TileID{Z: 2, X: 1, Y: 1}
	if sources := ResolveChildFallback(cache, parent, 3); len(sources) != 0 {
		t.Errorf("expected no fallback sources, got %d", len(sources))
	}
}
