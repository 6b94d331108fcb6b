package gputiles

import (
	"strconv"
	"testing"

	"github.com/zarrview/zarrlayer/maputil"
)

func TestItoaRoundTrip(t *testing.T) {
	cases := []int{0, 5, 42, -7, 12345}
	for _, n := range cases {
		s := itoa(n)
		if got, err := strconv.Atoi(s); err != nil || got != n {
			t.Errorf("itoa(%d) = %q", n, s)
		}
	}
}

func TestKeyDistinguishesTiles(t *testing.T) {
	a := key(maputil.TileID{Z: 1, X: 2, Y: 3})
	b := key(maputil.TileID{Z: 1, X: 2, Y: 4})
	if a == b {
		t.Error("expected distinct keys for distinct tiles")
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(2)
	c.Upsert(maputil.TileID{Z: 0, X: 0, Y: 0}, &Entry{})
	c.Upsert(maputil.TileID{Z: 0, X: 1, Y: 0}, &Entry{})
	c.Upsert(maputil.TileID{Z: 0, X: 2, Y: 0}, &Entry{})
	if c.Len() != 2 {
		t.Fatalf("expected cache bounded to 2, got %d", c.Len())
	}
	if _, ok := c.Get(maputil.TileID{Z: 0, X: 0, Y: 0}); ok {
		t.Error("expected oldest tile to have been evicted")
	}
}

func TestGeometryDirtyFlag(t *testing.T) {
	e := &Entry{}
	if e.GeometryDirty() {
		t.Error("expected clean initial state")
	}
	e.MarkGeometryDirty()
	if !e.GeometryDirty() {
		t.Error("expected dirty after mark")
	}
	e.ClearGeometryDirty()
	if e.GeometryDirty() {
		t.Error("expected clean after clear")
	}
}
