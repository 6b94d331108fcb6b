// Package globe adapts tile and region rendering to a 3D-globe host
// map. For each host-supplied "globe tile" it derives a screen-space
// matrix, decides whether the covered area is served by the tiled or
// untiled data path, and computes the texScale/texOffset needed to
// crop a possibly-coarser source tile down to the globe tile's
// footprint, returning a hint telling the host whether a finer level
// is needed once it arrives.
package globe

import (
	"math"

	"github.com/zarrview/zarrlayer/maputil"
)

// Projector supplies the minimal per-tile transform a globe host
// needs. A real host (Cesium/MapLibre-GL-equivalent) supplies its own
// camera matrix; this reference implementation computes the same
// perspective-divide-free orthographic approximation used for a
// Mercator-projected globe tile, so the adapter logic below is fully
// exercised independent of any specific host.
type Projector struct {
	RadiusPx float64
}

// TileMatrix returns a [6]float64 affine matrix placing a unit quad
// (UV space [0,1]x[0,1]) at tile t's position on the globe, viewed
// from directly above the sub-camera point (camLon, camLat) — i.e. the
// orthographic projection of a Mercator tile onto the visible
// hemisphere.
func (p *Projector) TileMatrix(t maputil.TileID, camLon, camLat float64) [6]float64 {
	b := maputil.TileBounds(t)
	centerLon := (b.West + b.East) / 2
	centerLat := (b.North + b.South) / 2

	dLon := angularDelta(centerLon, camLon)
	dLat := centerLat - camLat

	// Orthographic projection scale shrinks with angular distance from
	// the sub-camera point; tiles on the limb are foreshortened.
	angDeg := math.Hypot(dLon, dLat)
	foreshorten := math.Cos(angDeg * math.Pi / 180)
	if foreshorten < 0 {
		foreshorten = 0
	}

	scale := p.RadiusPx * (b.East - b.West) * math.Pi / 180 * foreshorten
	x := p.RadiusPx * dLon * math.Pi / 180 * foreshorten
	y := p.RadiusPx * dLat * math.Pi / 180

	return [6]float64{scale, 0, 0, scale, x, y}
}

func angularDelta(a, b float64) float64 {
	d := a - b
	for d > 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return d
}

// DataPath identifies which data subsystem serves a globe tile.
type DataPath int

const (
	PathUntiled DataPath = iota
	PathTiledMercator
	PathTiledWGS84
)

// Dispatch decides which data path serves a globe tile, given whether
// the layer's backing dataset is pyramided and its native CRS.
func Dispatch(isPyramided bool, sourceCRS string) DataPath {
	if !isPyramided {
		return PathUntiled
	}
	if sourceCRS == "EPSG:4326" {
		return PathTiledWGS84
	}
	return PathTiledMercator
}

// Overlap computes the texScale/texOffset needed to crop a source
// tile at sourceZ down to the footprint of a requested globe tile at
// a deeper zoom, returning ok=false if source is not an ancestor of
// requested.
func Overlap(requested, source maputil.TileID) (texScale, texOffset [2]float32, ok bool) {
	if source.Z > requested.Z {
		return texScale, texOffset, false
	}
	levels := requested.Z - source.Z
	n := 1 << uint(levels)
	ancestorX, ancestorY := requested.X>>uint(levels), requested.Y>>uint(levels)
	if ancestorX != source.X || ancestorY != source.Y {
		return texScale, texOffset, false
	}
	scale := float32(1) / float32(n)
	offX := float32(requested.X-ancestorX*n) * scale
	offY := float32(requested.Y-ancestorY*n) * scale
	return [2]float32{scale, scale}, [2]float32{offX, offY}, true
}

// NeedsFinerLevel reports whether a fallback draw at sourceZ should be
// considered provisional: the host should re-request once data at
// requested.Z becomes available, matching spec's "return value hints
// whether a finer level should be requested".
func NeedsFinerLevel(requested, source maputil.TileID) bool {
	return source.Z < requested.Z
}
