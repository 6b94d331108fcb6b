// Package gputiles owns every GPU-resident texture created for tile
// and region rendering: the single-band or multi-band ebiten.Image
// uploads, and the fixed vertex/index geometry each tile draws with.
// It is the only subsystem allowed to allocate or Deallocate these
// textures, so the bound LRU eviction callback is the sole place a
// texture's GPU memory is freed.
package gputiles

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zarrview/zarrlayer/maputil"
)

// Entry is the GPU-resident form of one tile: one texture per band
// plus the quad geometry it draws with. The entry only records a
// geometry-dirty flag (MarkGeometryDirty); nothing in this package or
// the render core rebuilds Vertices/Indices from it.
type Entry struct {
	TileID maputil.TileID

	BandTextures map[string]*ebiten.Image

	Vertices []ebiten.Vertex
	Indices  []uint16

	geometryDirty bool
}

// Cache is a bounded LRU of GPU tile entries. Eviction deallocates
// every band texture belonging to the evicted entry immediately,
// mirroring the teacher's own cache-texture disposal on
// SetCacheAsTexture(false) and the render texture pool's bucketed
// reuse-or-free discipline.
type Cache struct {
	lru *lru.Cache[string, *Entry]
}

// NewCache builds a GPU tile cache bounded to maxEntries (spec default
// 64).
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	c := &Cache{}
	c.lru, _ = lru.NewWithEvict[string, *Entry](maxEntries, func(_ string, e *Entry) {
		for _, tex := range e.BandTextures {
			tex.Deallocate()
		}
	})
	return c
}

func key(id maputil.TileID) string {
	return itoa(id.Z) + "/" + itoa(id.X) + "/" + itoa(id.Y)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Get returns the cached entry for a tile, if resident.
func (c *Cache) Get(id maputil.TileID) (*Entry, bool) {
	return c.lru.Get(key(id))
}

// Upsert installs or replaces the GPU entry for a tile.
func (c *Cache) Upsert(id maputil.TileID, e *Entry) {
	e.TileID = id
	c.lru.Add(key(id), e)
}

// EncodeMin/EncodeMax are the fixed physical-value range a band texture's
// red channel is quantized against, independent of the display colormap
// domain (BandMin/BandMax in the shader). Keeping the texture encoding
// range fixed means a user adjusting the colormap's clim never requires
// a re-upload — only the shader uniforms change.
const (
	EncodeMin = -10000.0
	EncodeMax = 10000.0
)

// EnsureBandTexture uploads raw float64 tile values as a new band
// texture only if one doesn't already exist for bandName, avoiding a
// redundant GPU upload when a selector change reuses an already-resident
// band. Values are quantized into the red channel against the fixed
// EncodeMin/EncodeMax range; a NaN value (no data, e.g. a masked fill
// value) is left as the pixel buffer's zero value, which carries alpha
// 0 and renders fully transparent.
func (e *Entry) EnsureBandTexture(bandName string, values []float64, w, h int) *ebiten.Image {
	if e.BandTextures == nil {
		e.BandTextures = make(map[string]*ebiten.Image)
	}
	if tex, ok := e.BandTextures[bandName]; ok {
		return tex
	}
	tex := ebiten.NewImageWithOptions(image.Rect(0, 0, w, h), &ebiten.NewImageOptions{Unmanaged: true})
	pix := make([]byte, w*h*4)
	for i, v := range values {
		if v != v { // NaN: leave pixel zeroed (transparent, no data)
			continue
		}
		g := valueToByte(v)
		pix[i*4], pix[i*4+1], pix[i*4+2], pix[i*4+3] = g, g, g, 255
	}
	tex.WritePixels(pix)
	e.BandTextures[bandName] = tex
	return tex
}

// valueToByte quantizes a physical value into [0,255] against the fixed
// EncodeMin/EncodeMax range.
func valueToByte(v float64) byte {
	t := (v - EncodeMin) / (EncodeMax - EncodeMin)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return byte(t * 255)
}

// MarkGeometryDirty flags that Vertices/Indices must be rebuilt before
// the next draw, e.g. after a viewport zoom change alters the tile's
// screen-space quad.
func (e *Entry) MarkGeometryDirty() { e.geometryDirty = true }

// GeometryDirty reports whether the entry's geometry needs rebuilding.
func (e *Entry) GeometryDirty() bool { return e.geometryDirty }

// ClearGeometryDirty resets the flag set by MarkGeometryDirty.
func (e *Entry) ClearGeometryDirty() { e.geometryDirty = false }

// Clear evicts every entry, deallocating all GPU textures. Used when a
// layer is removed from its host map.
func (c *Cache) Clear() {
	c.lru.Purge()
}

// Len reports the number of resident tile entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
