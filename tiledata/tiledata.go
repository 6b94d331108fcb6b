// Package tiledata manages the working set of map-tile-shaped slices of
// a Zarr pyramid: given a viewport and a zoom level it decides which
// tiles are needed, fetches and slices the backing chunks, and caches
// the sliced tile data per (tile, selector). Raw chunk bytes are not
// cached, so a selector whose tile data is not already cached fetches
// its chunks again.
package tiledata

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zarrview/zarrlayer/maputil"
	"github.com/zarrview/zarrlayer/zarr"
	"golang.org/x/sync/singleflight"
)

var nanVal = math.NaN()

// defaultBandKey is the BandValues key used when a selector has no
// list-valued ("band set") dimension at all.
const defaultBandKey = "0"

// TileData holds the sliced, selector-scoped values for one tile,
// keyed additionally by a hash of the selector that produced it so a
// cache hit can be distinguished from a stale slice awaiting refresh.
// BandValues holds one []float64 slice per requested band: a single
// entry under defaultBandKey for a plain fixed selector, or one entry
// per list value (keyed by its stringified index) for a selector with
// a list-valued dimension ("band set").
type TileData struct {
	ID            maputil.TileID
	Width, Height int
	BandValues    map[string][]float64
	SelectorHash  string
	LastUsed      time.Time
}

// SelectorValue is the value fixed (or list of values requested) along
// one dimension of a Selector. A single-element List fixes the
// dimension; a multi-element List requests a "band set" — every value
// fetched and returned as its own entry in TileData.BandValues.
type SelectorValue struct {
	List []int
}

// Single returns a SelectorValue that fixes a dimension to one index.
func Single(i int) SelectorValue { return SelectorValue{List: []int{i}} }

// Multi returns a SelectorValue that requests a band set: every index
// in indices, fetched and sliced independently.
func Multi(indices ...int) SelectorValue { return SelectorValue{List: indices} }

// Selector picks a slice (or band set of slices) out of a possibly
// higher-dimensional array. Keys are dimension names; at most one
// dimension is expected to carry a multi-value (band-set) selection.
type Selector struct {
	Fixed map[string]SelectorValue
}

// Hash returns a stable string key for the selector, suitable for
// detecting whether cached tile data still matches the active
// selection. Dimension names are sorted before hashing so the result
// never depends on Go's randomized map iteration order.
func (s Selector) Hash() string {
	keys := make([]string, 0, len(s.Fixed))
	for k := range s.Fixed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		for i, v := range s.Fixed[k].List {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d", v)
		}
		b.WriteByte(';')
	}
	return b.String()
}

// listDimension returns the lexicographically smallest dimension name
// with more than one value in its SelectorValue (the band-set
// dimension), or ok=false if every dimension is a single fixed value.
func (s Selector) listDimension() (name string, values []int, ok bool) {
	for k, v := range s.Fixed {
		if len(v.List) > 1 && (name == "" || k < name) {
			name, values = k, v.List
		}
	}
	return name, values, name != ""
}

// withSingle returns a copy of s with dim fixed to a single value,
// used to collapse a band-set selector down to one concrete fetch per
// band.
func (s Selector) withSingle(dim string, v int) Selector {
	out := Selector{Fixed: make(map[string]SelectorValue, len(s.Fixed))}
	for k, val := range s.Fixed {
		out.Fixed[k] = val
	}
	out.Fixed[dim] = Single(v)
	return out
}

// Manager owns the tile-shaped cache for one Zarr pyramid and
// deduplicates in-flight fetches per (tile, selector).
type Manager struct {
	store   *zarr.Store
	pyramid *zarr.Pyramid
	log     *slog.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, *TileData]

	group singleflight.Group
}

// NewManager constructs a tile data manager over an already-discovered
// pyramid, with an LRU cache bounded to maxTiles entries (spec default
// 64).
func NewManager(store *zarr.Store, pyramid *zarr.Pyramid, maxTiles int, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if maxTiles <= 0 {
		maxTiles = 64
	}
	cache, _ := lru.New[string, *TileData](maxTiles)
	return &Manager{store: store, pyramid: pyramid, log: log, cache: cache}
}

func cacheKey(id maputil.TileID, selHash string) string {
	return fmt.Sprintf("%d/%d/%d#%s", id.Z, id.X, id.Y, selHash)
}

// Get returns cached tile data for (id, sel) if present and still
// matching the selector hash, without triggering a fetch.
func (m *Manager) Get(id maputil.TileID, sel Selector) (*TileData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	td, ok := m.cache.Get(cacheKey(id, sel.Hash()))
	if ok {
		td.LastUsed = time.Now()
	}
	return td, ok
}

// EnsureTile returns cached data if present, else fetches and slices
// it, deduplicating concurrent requests for the same (tile, selector)
// via singleflight so a viewport pan that re-requests a tile already
// loading never issues a second chunk fetch.
func (m *Manager) EnsureTile(ctx context.Context, level int, id maputil.TileID, sel Selector) (*TileData, error) {
	if td, ok := m.Get(id, sel); ok {
		return td, nil
	}
	key := cacheKey(id, sel.Hash())
	v, err, _ := m.group.Do(key, func() (any, error) {
		return m.fetchAndSlice(ctx, level, id, sel)
	})
	if err != nil {
		return nil, err
	}
	td := v.(*TileData)
	m.mu.Lock()
	m.cache.Add(key, td)
	m.mu.Unlock()
	return td, nil
}

func (m *Manager) fetchAndSlice(ctx context.Context, level int, id maputil.TileID, sel Selector) (*TileData, error) {
	lvl := &m.pyramid.Levels[level]
	meta := &lvl.Meta
	yi, xi, err := meta.SpatialDims(m.store.DimensionHints(), m.store.LatHint())
	if err != nil {
		return nil, fmt.Errorf("tiledata: %w", err)
	}
	tileSize := m.pyramid.TileSize
	chunkW, chunkH := meta.ChunkShape[xi], meta.ChunkShape[yi]

	bandValues := make(map[string][]float64)
	if listDim, listVals, ok := sel.listDimension(); ok {
		for _, v := range listVals {
			vals, err := m.sliceOne(ctx, lvl, meta, sel.withSingle(listDim, v), xi, yi, chunkW, chunkH, tileSize, id)
			if err != nil {
				return nil, err
			}
			bandValues[strconv.Itoa(v)] = vals
		}
	} else {
		vals, err := m.sliceOne(ctx, lvl, meta, sel, xi, yi, chunkW, chunkH, tileSize, id)
		if err != nil {
			return nil, err
		}
		bandValues[defaultBandKey] = vals
	}

	return &TileData{
		ID:           id,
		Width:        tileSize,
		Height:       tileSize,
		BandValues:   bandValues,
		SelectorHash: sel.Hash(),
		LastUsed:     time.Now(),
	}, nil
}

// sliceOne fetches and copies every chunk intersecting one tile's
// pixel window for a selector whose every dimension is already a
// single fixed value.
func (m *Manager) sliceOne(ctx context.Context, lvl *zarr.LevelMeta, meta *zarr.ArrayMeta, sel Selector, xi, yi, chunkW, chunkH, tileSize int, id maputil.TileID) ([]float64, error) {
	out := make([]float64, tileSize*tileSize)
	for i := range out {
		out[i] = nanVal
	}

	// Tile (id.X, id.Y) at this level maps onto a pixel window of the
	// full array; determine which chunks intersect that window and
	// copy their values into the output buffer.
	pxX0, pxY0 := id.X*tileSize, id.Y*tileSize
	startChunkX, startChunkY := pxX0/chunkW, pxY0/chunkH
	endChunkX, endChunkY := (pxX0+tileSize-1)/chunkW, (pxY0+tileSize-1)/chunkH

	for cy := startChunkY; cy <= endChunkY; cy++ {
		for cx := startChunkX; cx <= endChunkX; cx++ {
			indices := chunkIndices(meta, sel, xi, yi, cx, cy)
			vals, err := m.store.GetChunk(ctx, lvl, indices)
			if err != nil {
				return nil, err
			}
			copyChunkIntoTile(out, tileSize, vals, chunkW, chunkH, cx*chunkW-pxX0, cy*chunkH-pxY0)
		}
	}
	return out, nil
}

func chunkIndices(meta *zarr.ArrayMeta, sel Selector, xi, yi, cx, cy int) []int {
	indices := make([]int, len(meta.Dims))
	for i, d := range meta.Dims {
		switch i {
		case xi:
			indices[i] = cx
		case yi:
			indices[i] = cy
		default:
			if v, ok := sel.Fixed[d]; ok && len(v.List) > 0 {
				indices[i] = v.List[0]
			}
		}
	}
	return indices
}

func copyChunkIntoTile(out []float64, tileSize int, vals []float64, chunkW, chunkH, offX, offY int) {
	for row := 0; row < chunkH; row++ {
		ty := offY + row
		if ty < 0 || ty >= tileSize {
			continue
		}
		for col := 0; col < chunkW; col++ {
			tx := offX + col
			if tx < 0 || tx >= tileSize {
				continue
			}
			out[ty*tileSize+tx] = vals[row*chunkW+col]
		}
	}
}

// Evict removes a tile's cached data for the one selector whose hash is
// selHash; entries cached for the same tile under other selectors stay.
func (m *Manager) Evict(id maputil.TileID, selHash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(cacheKey(id, selHash))
}

// Len reports the number of tiles currently resident in the cache.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}
