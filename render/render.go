// Package render is the draw-dispatch core: given a GPU tile or region
// entry and a composed shader, it applies the uniform set (texScale/
// texOffset, band min/max, reprojection constants), binds vertex and
// index buffers, and issues the DrawTrianglesShader calls — including
// the antimeridian-wrapping world-offset loop and the parent/child
// texture fallback substitution for tiles without data yet.
package render

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/zarrview/zarrlayer/gputiles"
	"github.com/zarrview/zarrlayer/maputil"
	"github.com/zarrview/zarrlayer/shader"
)

// BandRange is the colormap domain for one band, used to normalize
// raw values into [0,1] before the colormap LUT is sampled.
type BandRange struct{ Min, Max float64 }

// TileDraw is everything the render core needs to issue one tile's
// draw call.
type TileDraw struct {
	Entry      *gputiles.Entry
	Bands      []string
	Ranges     []BandRange
	Projection shader.ProjectionMode
	Custom     string

	// ColormapLUT is the active colormap sampled at 8 evenly spaced
	// stops, forwarded to the shader's ColormapLUT uniform when Bands
	// is non-empty.
	ColormapLUT [8][4]float32
	// CustomUniforms carries the layer's configured values for any
	// uniform declared in Custom, keyed by uniform name.
	CustomUniforms map[string]float32

	// TexScale/TexOffset remap a fallback ancestor/descendant
	// texture's UV space onto the requested tile's footprint, per
	// spec's parent/child substitution: drawing a coarser ancestor
	// tile at the correct sub-rectangle, or a finer descendant
	// cropped to the requested tile.
	TexScale, TexOffset [2]float32
}

// Core issues draw calls against a destination image using a shared
// shader composer.
type Core struct {
	composer *shader.Composer
}

// NewCore constructs a render core bound to a shader composer (shared
// across every layer using the same Ebitengine context).
func NewCore(composer *shader.Composer) *Core {
	return &Core{composer: composer}
}

// DrawTile renders one tile's geometry with its bound band textures,
// looping over every antimeridian-wrapped world copy the viewport
// spans so a pan across the dateline draws seamlessly.
func (c *Core) DrawTile(dst *ebiten.Image, d TileDraw, worldOffsetsPx []float32) error {
	v := shader.Variant{Bands: len(d.Bands), Projection: d.Projection, CustomFragment: d.Custom}
	prog, err := c.composer.Compose(v)
	if err != nil {
		return err
	}

	uniforms := map[string]any{
		"TexScale":  d.TexScale,
		"TexOffset": d.TexOffset,
	}
	for i, r := range d.Ranges {
		uniforms[bandMinKey(i)] = float32(r.Min)
		uniforms[bandMaxKey(i)] = float32(r.Max)
	}
	if len(d.Bands) > 0 {
		uniforms["ColormapLUT"] = flattenColormap(d.ColormapLUT)
	}
	for name, val := range d.CustomUniforms {
		uniforms[name] = val
	}

	images := make(map[int]*ebiten.Image, len(d.Bands))
	for i, band := range d.Bands {
		tex, ok := d.Entry.BandTextures[band]
		if !ok {
			continue
		}
		images[i] = tex
	}

	for _, offset := range worldOffsetsPx {
		verts := translatedVertices(d.Entry.Vertices, offset)
		opts := &ebiten.DrawTrianglesShaderOptions{Uniforms: uniforms, Images: toImageArray(images)}
		dst.DrawTrianglesShader(verts, d.Entry.Indices, prog, opts)
	}
	return nil
}

func bandMinKey(i int) string { return "BandMin" + itoa(i) }
func bandMaxKey(i int) string { return "BandMax" + itoa(i) }

// flattenColormap lays out the 8 RGBA stops as a flat []float32,
// ebiten's expected encoding for a [8]vec4 array uniform.
func flattenColormap(lut [8][4]float32) []float32 {
	out := make([]float32, 0, 32)
	for _, stop := range lut {
		out = append(out, stop[0], stop[1], stop[2], stop[3])
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func translatedVertices(src []ebiten.Vertex, offsetX float32) []ebiten.Vertex {
	if offsetX == 0 {
		return src
	}
	out := make([]ebiten.Vertex, len(src))
	copy(out, src)
	for i := range out {
		out[i].DstX += offsetX
	}
	return out
}

func toImageArray(images map[int]*ebiten.Image) [4]*ebiten.Image {
	var arr [4]*ebiten.Image
	for i, img := range images {
		if i < 4 {
			arr[i] = img
		}
	}
	return arr
}

// FallbackSource describes an ancestor or descendant tile substituted
// for one without data resident yet.
type FallbackSource struct {
	Entry     *gputiles.Entry
	TexScale  [2]float32
	TexOffset [2]float32
}

// ResolveFallback walks up from a requested tile toward the root,
// returning the nearest ancestor entry present in cache along with the
// texScale/texOffset needed to crop that ancestor's texture down to
// the requested tile's footprint; ok is false if no ancestor (all the
// way to level 0) is resident.
func ResolveFallback(cache *gputiles.Cache, id maputil.TileID) (FallbackSource, bool) {
	cur := id
	scaleX, scaleY := float32(1), float32(1)
	offX, offY := float32(0), float32(0)
	for {
		parent, ok := maputil.Parent(cur)
		if !ok {
			return FallbackSource{}, false
		}
		// Each step up halves scale and offsets into the correct
		// quadrant of the parent's texture.
		scaleX /= 2
		scaleY /= 2
		offX /= 2
		offY /= 2
		if cur.X%2 == 1 {
			offX += 0.5
		}
		if cur.Y%2 == 1 {
			offY += 0.5
		}
		if e, ok := cache.Get(parent); ok {
			return FallbackSource{Entry: e, TexScale: [2]float32{scaleX, scaleY}, TexOffset: [2]float32{offX, offY}}, true
		}
		cur = parent
	}
}

// ResolveChildFallback looks downward from a requested tile without
// data yet, returning one FallbackSource per resident descendant found
// within maxDepth levels, each scaled/offset to draw into its quadrant
// of the requested tile's footprint. Used when no ancestor is resident
// either (e.g. a brand new layer still loading from its finest level
// down), so a coarse composite of whatever finer tiles have already
// arrived is better than leaving the tile blank.
func ResolveChildFallback(cache *gputiles.Cache, id maputil.TileID, maxDepth int) []FallbackSource {
	var out []FallbackSource
	walkChildren(cache, id, 0, 0, 1, 1, maxDepth, &out)
	return out
}

func walkChildren(cache *gputiles.Cache, id maputil.TileID, offX, offY, scaleX, scaleY float32, depthLeft int, out *[]FallbackSource) {
	if depthLeft <= 0 {
		return
	}
	kids := maputil.Children(id)
	quadrants := [4][2]float32{{0, 0}, {0.5, 0}, {0, 0.5}, {0.5, 0.5}}
	childScaleX, childScaleY := scaleX/2, scaleY/2
	for i, kid := range kids {
		kidOffX := offX + quadrants[i][0]*scaleX
		kidOffY := offY + quadrants[i][1]*scaleY
		if e, ok := cache.Get(kid); ok {
			*out = append(*out, FallbackSource{
				Entry:     e,
				TexScale:  [2]float32{childScaleX, childScaleY},
				TexOffset: [2]float32{kidOffX, kidOffY},
			})
			continue
		}
		walkChildren(cache, kid, kidOffX, kidOffY, childScaleX, childScaleY, depthLeft-1, out)
	}
}
