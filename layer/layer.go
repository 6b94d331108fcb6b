// Package layer is the public facade: it owns a layer's lifecycle
// (construction, host add/remove, per-frame prerender/render), holds
// the active selector and throttles selector changes, and wires the
// tiled/untiled data managers through the GPU tile cache and shader
// composer to the render core.
package layer

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
	"github.com/zarrview/zarrlayer/gputiles"
	"github.com/zarrview/zarrlayer/maputil"
	"github.com/zarrview/zarrlayer/query"
	"github.com/zarrview/zarrlayer/render"
	"github.com/zarrview/zarrlayer/shader"
	"github.com/zarrview/zarrlayer/tiledata"
	"github.com/zarrview/zarrlayer/zarr"
	"github.com/zarrview/zarrlayer/zarrerr"
)

// LoadingState reports whether any tile the current viewport needs is
// still in flight.
type LoadingState int

const (
	Idle LoadingState = iota
	Loading
)

// defaultMaxFallbackDepth bounds how many zoom levels ResolveChildFallback
// descends looking for a resident finer tile before giving up.
const defaultMaxFallbackDepth = 3

// defaultBandDim is the dimension name treated as the band axis when a
// layer requests more than one band and Options.BandDim is unset.
const defaultBandDim = "band"

// Options configures a Layer at construction. Unlike a host map
// library's JS object literal, every field is named and typed; there
// is no config file, CLI flag, or environment variable path — all of
// a layer's behavior comes from this struct and subsequent mutator
// calls.
type Options struct {
	URL              string
	TransformRequest zarr.TransformRequest
	Bands            []string
	BandRanges       map[string][2]float64
	// BandIndex maps a configured band name to its index along BandDim
	// in the backing array; a band absent from this map defaults to
	// index 0 (the common single-band case).
	BandIndex map[string]int
	// BandDim names the dimension a multi-band selector's list value
	// is attached to; defaults to "band".
	BandDim        string
	Colormap       any // accepted by ParseColormap
	CustomFragment string
	// CustomUniforms supplies concrete values for every uniform
	// CustomFragment declares, keyed by uniform name.
	CustomUniforms map[string]float32
	ThrottleMs     int
	CrossfadeMs    float32
	MaxCachedTiles int
	MaxGPUTiles    int
	// MaxFallbackDepth bounds descendant-tile fallback search depth;
	// defaults to defaultMaxFallbackDepth.
	MaxFallbackDepth int

	// VersionHint, Variable, DimensionHints, CoordinateKeys, LatHint
	// pass through to zarr.Open's matching options, for datasets whose
	// metadata layout or dimension names the default v3-then-v2 probe
	// and y/lat/latitude, x/lon/longitude/lng alias table can't resolve
	// on their own.
	VersionHint    string
	Variable       string
	DimensionHints map[string]string
	CoordinateKeys []string
	LatHint        string

	Logger         *slog.Logger
	OnLoadingState func(LoadingState)
}

// Viewport is the minimal information the render loop needs from the
// host map: the visible geographic bounds and the zoom level to
// sample the pyramid at.
type Viewport struct {
	Bounds   maputil.Bounds
	Zoom     float64
	TileSize int
}

// Layer is one Zarr dataset bound to a host map surface.
type Layer struct {
	opts Options
	log  *slog.Logger

	store   *zarr.Store
	pyramid *zarr.Pyramid

	tiles    *tiledata.Manager
	gpu      *gputiles.Cache
	composer *shader.Composer
	core     *render.Core

	colormap    Colormap
	colormapLUT [8][4]float32

	queryEngine *query.Engine

	selector       tiledata.Selector
	pendingSel     *tiledata.Selector
	throttleTween  *gween.Tween
	crossfadeTween *gween.Tween
	crossfadeFrom  tiledata.Selector

	loading LoadingState
	err     error
}

// New constructs a Layer. Metadata discovery happens in OnAdd, which
// must be called before Prerender or Render.
func New(opts Options) (*Layer, error) {
	if opts.URL == "" {
		return nil, &zarrerr.ConfigurationError{Field: "URL", Reason: "must not be empty"}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	cm, err := parseColormapOrDefault(opts.Colormap)
	if err != nil {
		return nil, &zarrerr.ConfigurationError{Field: "Colormap", Reason: err.Error()}
	}
	l := &Layer{
		opts:        opts,
		log:         log,
		composer:    shader.NewComposer(),
		gpu:         gputiles.NewCache(opts.MaxGPUTiles),
		colormap:    cm,
		colormapLUT: buildColormapLUT(cm),
	}
	l.core = render.NewCore(l.composer)
	l.queryEngine = query.NewEngine(l)
	return l, nil
}

func parseColormapOrDefault(v any) (Colormap, error) {
	if v == nil {
		return Colormap{{R: 0, G: 0, B: 0}, {R: 1, G: 1, B: 1}}, nil
	}
	return ParseColormap(v)
}

// buildColormapLUT precomputes 8 evenly spaced colormap samples for
// the shader's ColormapLUT uniform, so the fragment stage never needs
// to re-evaluate the colormap's stop list per pixel.
func buildColormapLUT(cm Colormap) [8][4]float32 {
	var lut [8][4]float32
	for i := 0; i < 8; i++ {
		t := float64(i) / 7
		c := cm.Sample(t)
		lut[i] = [4]float32{float32(c.R), float32(c.G), float32(c.B), 1}
	}
	return lut
}

// OnAdd is called once when the layer is attached to a host map
// surface. It performs metadata discovery; a failure here marks the
// layer permanently inert, matching spec's MetadataError handling.
func (l *Layer) OnAdd(ctx context.Context, httpClient *http.Client) error {
	opts := []zarr.Option{}
	if httpClient != nil {
		opts = append(opts, zarr.WithHTTPClient(httpClient))
	}
	if l.opts.TransformRequest != nil {
		opts = append(opts, zarr.WithTransformRequest(l.opts.TransformRequest))
	}
	opts = append(opts, zarr.WithLogger(l.log))
	if l.opts.VersionHint != "" {
		opts = append(opts, zarr.WithVersionHint(l.opts.VersionHint))
	}
	if l.opts.Variable != "" {
		opts = append(opts, zarr.WithVariable(l.opts.Variable))
	}
	if l.opts.DimensionHints != nil {
		opts = append(opts, zarr.WithDimensionHints(l.opts.DimensionHints))
	}
	if l.opts.CoordinateKeys != nil {
		opts = append(opts, zarr.WithCoordinateKeys(l.opts.CoordinateKeys))
	}
	if l.opts.LatHint != "" {
		opts = append(opts, zarr.WithLatHint(l.opts.LatHint))
	}

	l.store = zarr.Open(l.opts.URL, opts...)
	pyr, err := l.store.DiscoverPyramid(ctx)
	if err != nil {
		l.err = err
		return err
	}
	l.pyramid = pyr
	maxTiles := l.opts.MaxCachedTiles
	l.tiles = tiledata.NewManager(l.store, pyr, maxTiles, l.log)
	return nil
}

// OnRemove releases every GPU resource the layer owns.
func (l *Layer) OnRemove() {
	l.gpu.Clear()
}

// SetSelector requests a selector change. If ThrottleMs is zero, the
// new selector takes effect on the very next Prerender ("last write
// wins" with no coalescing delay); otherwise the change is held
// pending until the throttle tween completes, coalescing rapid
// scrubber drags into a single re-fetch wave. Each applied change also
// starts a crossfade tween (when CrossfadeMs > 0) whose weight
// crossfadeAlpha reports; Render does not blend by that weight, so the
// switch between selectors is drawn without a transition.
func (l *Layer) SetSelector(sel tiledata.Selector) {
	if l.opts.ThrottleMs <= 0 {
		l.crossfadeFrom = l.selector
		l.selector = sel
		l.startCrossfade()
		return
	}
	l.pendingSel = &sel
	durationSec := float32(l.opts.ThrottleMs) / 1000
	l.throttleTween = gween.New(0, 1, durationSec, ease.Linear)
}

func (l *Layer) startCrossfade() {
	if l.opts.CrossfadeMs <= 0 {
		l.crossfadeTween = nil
		return
	}
	l.crossfadeTween = gween.New(0, 1, l.opts.CrossfadeMs/1000, ease.Linear)
}

// crossfadeAlpha returns the current blend weight of the newly active
// selector's tiles over the previous selector's, 1 meaning fully
// switched over.
func (l *Layer) crossfadeAlpha() float32 {
	if l.crossfadeTween == nil {
		return 1
	}
	v, done := l.crossfadeTween.Update(0) // advanced explicitly in Prerender
	if done {
		l.crossfadeTween = nil
		return 1
	}
	return v
}

// bandDim returns the dimension name a multi-band selector's list
// value is attached to.
func (l *Layer) bandDim() string {
	if l.opts.BandDim != "" {
		return l.opts.BandDim
	}
	return defaultBandDim
}

// bandIndex returns the backing array index of a configured band name,
// defaulting to 0 when Options.BandIndex doesn't name it.
func (l *Layer) bandIndex(band string) int {
	if l.opts.BandIndex != nil {
		if i, ok := l.opts.BandIndex[band]; ok {
			return i
		}
	}
	return 0
}

// maxFallbackDepth bounds descendant-tile fallback search depth.
func (l *Layer) maxFallbackDepth() int {
	if l.opts.MaxFallbackDepth > 0 {
		return l.opts.MaxFallbackDepth
	}
	return defaultMaxFallbackDepth
}

// effectiveSelector augments the active selector with a band-set
// (list-valued) entry along bandDim() when more than one band is
// configured, so a single tile fetch returns every requested band's
// slice via tiledata.TileData.BandValues.
func (l *Layer) effectiveSelector() tiledata.Selector {
	if len(l.opts.Bands) <= 1 {
		return l.selector
	}
	fixed := make(map[string]tiledata.SelectorValue, len(l.selector.Fixed)+1)
	for k, v := range l.selector.Fixed {
		fixed[k] = v
	}
	indices := make([]int, len(l.opts.Bands))
	for i, b := range l.opts.Bands {
		indices[i] = l.bandIndex(b)
	}
	fixed[l.bandDim()] = tiledata.Multi(indices...)
	return tiledata.Selector{Fixed: fixed}
}

// Prerender advances tweens and ensures every tile the viewport needs
// is fetched (or already cached), without drawing anything. The host
// calls this once per frame before Render.
func (l *Layer) Prerender(ctx context.Context, vp Viewport, dt float32) error {
	if l.err != nil {
		return l.err
	}
	if l.throttleTween != nil {
		_, done := l.throttleTween.Update(dt)
		if done {
			l.crossfadeFrom = l.selector
			l.selector = *l.pendingSel
			l.pendingSel = nil
			l.throttleTween = nil
			l.startCrossfade()
		}
	}
	if l.crossfadeTween != nil {
		l.crossfadeTween.Update(dt)
	}

	level := maputil.ZoomToLevel(vp.Zoom, l.pyramid.MaxLevel())
	tiles := maputil.GetTilesAtZoom(vp.Bounds, level)
	sel := l.effectiveSelector()

	anyLoading := false
	for _, id := range tiles {
		if _, ok := l.tiles.Get(id, sel); ok {
			continue
		}
		anyLoading = true
		go func(id maputil.TileID) {
			if _, err := l.tiles.EnsureTile(ctx, level, id, sel); err != nil {
				l.log.Warn("layer: tile fetch failed", "tile", id, "err", err)
			}
		}(id)
	}
	l.setLoading(anyLoading)
	return nil
}

func (l *Layer) setLoading(loading bool) {
	newState := Idle
	if loading {
		newState = Loading
	}
	if newState != l.loading {
		l.loading = newState
		if l.opts.OnLoadingState != nil {
			l.opts.OnLoadingState(newState)
		}
	}
}

// Render draws every tile the viewport needs, using cached data if
// present, the nearest resident ancestor if not, and failing that a
// composite of whatever finer descendant tiles have already arrived —
// covering both directions of spec's tile-fallback substitution.
func (l *Layer) Render(dst *ebiten.Image, vp Viewport) error {
	if l.err != nil {
		return nil
	}
	level := maputil.ZoomToLevel(vp.Zoom, l.pyramid.MaxLevel())
	tiles := maputil.GetTilesAtZoom(vp.Bounds, level)
	sel := l.effectiveSelector()

	n := maputil.TileToScale(maputil.TileID{Z: level}, vp.TileSize)
	worldWidthPx := float32(1) / n
	offsets := []float32{0, -worldWidthPx, worldWidthPx}

	for _, id := range tiles {
		if entry, ok := l.gpu.Get(id); ok {
			if err := l.drawEntry(dst, entry, [2]float32{1, 1}, [2]float32{0, 0}, offsets); err != nil {
				return err
			}
			continue
		}
		if td, ok := l.tiles.Get(id, sel); ok {
			entry := l.uploadTile(td)
			if err := l.drawEntry(dst, entry, [2]float32{1, 1}, [2]float32{0, 0}, offsets); err != nil {
				return err
			}
			continue
		}
		if fb, ok := render.ResolveFallback(l.gpu, id); ok {
			if err := l.drawEntry(dst, fb.Entry, fb.TexScale, fb.TexOffset, offsets); err != nil {
				return err
			}
			continue
		}
		for _, fb := range render.ResolveChildFallback(l.gpu, id, l.maxFallbackDepth()) {
			if err := l.drawEntry(dst, fb.Entry, fb.TexScale, fb.TexOffset, offsets); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Layer) drawEntry(dst *ebiten.Image, entry *gputiles.Entry, texScale, texOffset [2]float32, offsets []float32) error {
	draw := render.TileDraw{
		Entry:          entry,
		Bands:          l.opts.Bands,
		Ranges:         l.bandRanges(),
		Projection:     shader.ProjectionPassthrough,
		Custom:         l.opts.CustomFragment,
		ColormapLUT:    l.colormapLUT,
		CustomUniforms: l.opts.CustomUniforms,
		TexScale:       texScale,
		TexOffset:      texOffset,
	}
	return l.core.DrawTile(dst, draw, offsets)
}

func (l *Layer) uploadTile(td *tiledata.TileData) *gputiles.Entry {
	entry := &gputiles.Entry{}
	for _, band := range l.opts.Bands {
		key := strconv.Itoa(l.bandIndex(band))
		values := td.BandValues[key]
		if values == nil {
			values = td.BandValues["0"]
		}
		entry.EnsureBandTexture(band, values, td.Width, td.Height)
	}
	l.gpu.Upsert(td.ID, entry)
	return entry
}

func (l *Layer) bandRanges() []render.BandRange {
	out := make([]render.BandRange, len(l.opts.Bands))
	for i, b := range l.opts.Bands {
		r := l.opts.BandRanges[b]
		out[i] = render.BandRange{Min: r[0], Max: r[1]}
	}
	return out
}

// LoadingState reports the layer's current loading status.
func (l *Layer) LoadingState() LoadingState { return l.loading }
