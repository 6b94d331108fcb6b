// Package untiled manages non-pyramided ("untiled") Zarr datasets: a
// single source array, not chunked into a slippy-map pyramid, that
// must be resampled onto the host map's projection directly. EPSG:4326
// datasets are resampled to Web Mercator on the CPU with a
// nearest-neighbor pass, EPSG:3857 datasets are uploaded as-is, and
// datasets in an arbitrary source CRS are
// instead projected onto an adaptive triangle mesh so the GPU can warp
// the source texture into Web Mercator at draw time.
package untiled

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/twpayne/go-proj/v10"
	"github.com/zarrview/zarrlayer/maputil"
	"github.com/zarrview/zarrlayer/zarr"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMeshMaxErrorDeg = 0.05
	MinSubdivisions        = 2
	MaxSubdivisions        = 8
)

// RegionData is the resampled (or mesh-projected) render-ready form of
// one untiled source array window.
type RegionData struct {
	Bounds maputil.Bounds

	// For already-Mercator/WGS84 sources: a plain resampled texture.
	Texture *ebiten.Image

	// For arbitrary-CRS sources: the source texture plus the mesh
	// that warps it into WGS84-space triangles; Render core draws
	// this mesh instead of a quad.
	Mesh *AdaptiveMesh

	BandTextures map[string]*ebiten.Image
}

// Manager loads untiled regions for a set of named array variables
// that all share one source grid and CRS.
type Manager struct {
	store          *zarr.Store
	meta           *zarr.ArrayMeta
	crs            string // "EPSG:4326", "EPSG:3857", or a proj4 string
	dimensionHints map[string]string
	latHint        string
	log            *slog.Logger
}

// NewManager constructs an untiled region manager for a single
// non-pyramided array. dimensionHints/latHint resolve the array's
// spatial axes the same way tiledata does, falling back to the
// y/lat/latitude and x/lon/longitude/lng alias table when unset.
func NewManager(store *zarr.Store, meta *zarr.ArrayMeta, crs string, dimensionHints map[string]string, latHint string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, meta: meta, crs: crs, dimensionHints: dimensionHints, latHint: latHint, log: log}
}

// IsNativeProjection reports whether the source CRS can be resampled
// directly without a reprojection mesh.
func (m *Manager) IsNativeProjection() bool {
	return m.crs == "EPSG:4326" || m.crs == "EPSG:3857" || m.crs == ""
}

// LoadRegion fetches the full backing array (or its cropped window,
// when the caller narrows via level) and produces render-ready
// RegionData, choosing the CPU-resample or mesh-reprojection path
// based on the source CRS.
func (m *Manager) LoadRegion(ctx context.Context, level *zarr.LevelMeta, sel map[string]int) (*RegionData, error) {
	yi, xi, err := m.meta.SpatialDims(m.dimensionHints, m.latHint)
	if err != nil {
		return nil, fmt.Errorf("untiled: %w", err)
	}
	w, h := m.meta.Shape[xi], m.meta.Shape[yi]

	indices := make([]int, len(m.meta.Dims))
	for i, d := range m.meta.Dims {
		if i == xi || i == yi {
			continue
		}
		indices[i] = sel[d]
	}
	values, err := m.store.GetChunk(ctx, level, indices)
	if err != nil {
		return nil, err
	}

	switch m.crs {
	case "EPSG:4326":
		resampled := resampleToMercator(values, w, h, w, h)
		tex := rasterToTexture(resampled, w, h, false)
		return &RegionData{Texture: tex}, nil
	case "EPSG:3857", "":
		tex := rasterToTexture(values, w, h, false)
		return &RegionData{Texture: tex}, nil
	}

	projector, err := proj.NewCRSToCRS(m.crs, "EPSG:4326")
	if err != nil {
		return nil, fmt.Errorf("untiled: proj init: %w", err)
	}
	project := func(px, py float64) (lon, lat float64) {
		c := proj.NewCoord(px, py, 0, 0)
		out, err := projector.Forward(c)
		if err != nil {
			return 0, 0
		}
		return out.X(), out.Y()
	}

	mesh := BuildAdaptiveMesh(float64(w), float64(h), project, MinSubdivisions, MaxSubdivisions, DefaultMeshMaxErrorDeg)
	tex := rasterToTexture(values, w, h, false)
	return &RegionData{Texture: tex, Mesh: mesh}, nil
}

// LoadBands loads several named band variables concurrently (e.g. RGB
// channels of a multi-band untiled dataset). Each goroutine writes its
// result into its own index of a pre-sized slice — Go maps are not
// safe for concurrent writes even to distinct keys, so the shared
// map[string]*ebiten.Image is only assembled sequentially after every
// fetch has completed.
func (m *Manager) LoadBands(ctx context.Context, level *zarr.LevelMeta, bandDims map[string]map[string]int) (map[string]*ebiten.Image, error) {
	names := make([]string, 0, len(bandDims))
	for name := range bandDims {
		names = append(names, name)
	}
	sort.Strings(names)

	textures := make([]*ebiten.Image, len(names))
	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		sel := bandDims[name]
		g.Go(func() error {
			rd, err := m.LoadRegion(ctx, level, sel)
			if err != nil {
				return fmt.Errorf("untiled: band %s: %w", name, err)
			}
			textures[i] = rd.Texture
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*ebiten.Image, len(names))
	for i, name := range names {
		out[name] = textures[i]
	}
	return out, nil
}

// resampleToMercator nearest-neighbor resamples an EPSG:4326 grid
// (equirectangular, srcH rows evenly spaced in latitude from 90 N to
// 90 S) onto a Web Mercator grid of the same pixel dimensions, with
// edge-aligned pixel centers and an antimeridian-safe column wrap.
// Output rows beyond +-MERCATOR_LAT_LIMIT fall outside
// maputil.MercatorNormToLat's domain by construction, so no separate
// fill-out step is needed: every output row maps to a valid source
// row.
func resampleToMercator(values []float64, srcW, srcH, outW, outH int) []float64 {
	out := make([]float64, outW*outH)
	for oy := 0; oy < outH; oy++ {
		v := (float64(oy) + 0.5) / float64(outH)
		lat := maputil.MercatorNormToLat(v)
		srcRow := clampRow(int((90.0-lat)/180.0*float64(srcH)), srcH)
		for ox := 0; ox < outW; ox++ {
			u := (float64(ox) + 0.5) / float64(outW)
			lon := maputil.MercatorNormToLon(u)
			srcCol := wrapCol(int((lon+180.0)/360.0*float64(srcW)), srcW)
			out[oy*outW+ox] = values[srcRow*srcW+srcCol]
		}
	}
	return out
}

func clampRow(row, h int) int {
	if row < 0 {
		return 0
	}
	if row >= h {
		return h - 1
	}
	return row
}

func wrapCol(col, w int) int {
	col %= w
	if col < 0 {
		col += w
	}
	return col
}

func rasterToTexture(values []float64, w, h int, flipY bool) *ebiten.Image {
	img := ebiten.NewImage(w, h)
	pix := make([]byte, w*h*4)
	for row := 0; row < h; row++ {
		srcRow := row
		if flipY {
			srcRow = h - 1 - row
		}
		for col := 0; col < w; col++ {
			v := values[srcRow*w+col]
			if v != v { // NaN: leave fully transparent
				continue
			}
			g := valueToGray(v)
			i := (row*w + col) * 4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = g, g, g, 255
		}
	}
	img.WritePixels(pix)
	return img
}

func valueToGray(v float64) byte {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
