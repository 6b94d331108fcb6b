package untiled

import (
	"testing"

	"github.com/zarrview/zarrlayer/zarr"
	"golang.org/x/sync/errgroup"
)

func TestResampleToMercatorPreservesRowCount(t *testing.T) {
	src := make([]float64, 4*4)
	for i := range src {
		src[i] = float64(i)
	}
	out := resampleToMercator(src, 4, 4, 4, 4)
	if len(out) != 16 {
		t.Fatalf("expected 16 output values, got %d", len(out))
	}
}

func TestResampleToMercatorEquatorRowUnchanged(t *testing.T) {
	// A uniform grid resampled onto itself should leave the equatorial
	// row's values recognizable (same source row index, approximately).
	h := 180
	w := 360
	src := make([]float64, w*h)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			src[row*w+col] = float64(row)
		}
	}
	out := resampleToMercator(src, w, h, w, h)
	midRow := h / 2
	v := out[midRow*w]
	if v < float64(h)/2-5 || v > float64(h)/2+5 {
		t.Errorf("expected equatorial row to resample near source row %d, got %v", h/2, v)
	}
}

func TestClampRowAndWrapCol(t *testing.T) {
	if clampRow(-1, 10) != 0 {
		t.Error("expected negative row clamped to 0")
	}
	if clampRow(10, 10) != 9 {
		t.Error("expected overflowing row clamped to h-1")
	}
	if wrapCol(-1, 10) != 9 {
		t.Error("expected negative column to wrap to w-1")
	}
	if wrapCol(10, 10) != 0 {
		t.Error("expected overflowing column to wrap to 0")
	}
}

func TestLoadBandsIndexIsolatedWrites(t *testing.T) {
	// Exercises the same fan-out/fan-in shape LoadBands uses, without a
	// live zarr.Store: every goroutine writes its own slice index, and
	// the shared map is built only after every goroutine has returned.
	names := []string{"b0", "b1", "b2", "b3", "b4", "b5", "b6", "b7"}
	textures := make([]int, len(names))
	var g errgroup.Group
	for i := range names {
		i := i
		g.Go(func() error {
			textures[i] = i * i
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := make(map[string]int, len(names))
	for i, name := range names {
		out[name] = textures[i]
	}
	for i, name := range names {
		if out[name] != i*i {
			t.Errorf("band %s: got %d, want %d", name, out[name], i*i)
		}
	}
}

func TestNewManagerUsesDimensionHints(t *testing.T) {
	meta := &zarr.ArrayMeta{Dims: []string{"time", "row", "col"}, Shape: []int{1, 2, 2}, ChunkShape: []int{1, 2, 2}}
	hints := map[string]string{"y": "row", "x": "col"}
	m := NewManager(nil, meta, "EPSG:4326", hints, "", nil)
	yi, xi, err := m.meta.SpatialDims(m.dimensionHints, m.latHint)
	if err != nil {
		t.Fatalf("unexpected error resolving hinted dims: %v", err)
	}
	if meta.Dims[yi] != "row" || meta.Dims[xi] != "col" {
		t.Errorf("expected hinted row/col dims, got yi=%d xi=%d", yi, xi)
	}
}
