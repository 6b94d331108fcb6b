package untiled

import (
	"github.com/hajimehoshi/ebiten/v2"
)

// Vec2 is a plain 2D point, used both for source-grid rest positions
// and projected WGS84 positions.
type Vec2 struct{ X, Y float64 }

// ProjectFunc converts a source-CRS coordinate to WGS84 lon/lat
// degrees. It is supplied by a proj4 inverse transform.
type ProjectFunc func(x, y float64) (lon, lat float64)

// AdaptiveMesh is a rectangular grid of vertices, each carrying both
// its rest position in source-array pixel space and its projected
// WGS84 position, refined by recursive subdivision wherever linear
// interpolation between two vertices would mispredict the true
// projected midpoint by more than MaxErrorDeg.
//
// The vertex/index buffer shape mirirors a fixed-topology distortion
// grid: vertices displace from a rest position, the index buffer never
// changes shape once built. What differs is that the displacement here
// is not a user callback evaluated live each frame but the proj4
// inverse evaluated once at mesh-build time, so the buffers are built
// once per (source bounds, CRS) pair and reused across frames.
type AdaptiveMesh struct {
	Vertices []ebiten.Vertex
	Indices  []uint16

	MinSubdivisions int
	MaxSubdivisions int
	MaxErrorDeg     float64
}

type meshVertex struct {
	srcX, srcY float64 // source array pixel coordinates (UV basis)
	lon, lat   float64 // projected WGS84 position
}

// BuildAdaptiveMesh constructs a mesh covering a srcW x srcH source
// raster window, recursively subdividing quads whose linear
// interpolation of the four corners' projected lon/lat diverges from
// the true midpoint projection by more than maxErrorDeg.
func BuildAdaptiveMesh(srcW, srcH float64, project ProjectFunc, minSub, maxSub int, maxErrorDeg float64) *AdaptiveMesh {
	if minSub < 1 {
		minSub = 1
	}
	if maxSub < minSub {
		maxSub = minSub
	}

	corner := func(u, v float64) meshVertex {
		x, y := u*srcW, v*srcH
		lon, lat := project(x, y)
		return meshVertex{srcX: x, srcY: y, lon: lon, lat: lat}
	}

	b := &meshBuilder{project: project, maxErrorDeg: maxErrorDeg, maxDepth: maxSub - minSub}
	// Start from a minSub x minSub coarse grid, then subdivide each
	// cell independently (quad-tree style) up to maxDepth further
	// levels, matching the MIN_SUBDIVISIONS/MAX_SUBDIVISIONS bounds.
	for row := 0; row < minSub; row++ {
		v0, v1 := float64(row)/float64(minSub), float64(row+1)/float64(minSub)
		for col := 0; col < minSub; col++ {
			u0, u1 := float64(col)/float64(minSub), float64(col+1)/float64(minSub)
			tl, tr := corner(u0, v0), corner(u1, v0)
			bl, br := corner(u0, v1), corner(u1, v1)
			b.subdivide(tl, tr, bl, br, 0)
		}
	}

	return b.finish()
}

type meshBuilder struct {
	project     ProjectFunc
	maxErrorDeg float64
	maxDepth    int

	verts []ebiten.Vertex
	inds  []uint16
}

func (b *meshBuilder) subdivide(tl, tr, bl, br meshVertex, depth int) {
	if depth >= b.maxDepth || !b.needsSplit(tl, tr, bl, br) {
		b.emitQuad(tl, tr, bl, br)
		return
	}

	midU := (tl.srcX + tr.srcX) / 2
	midTop := b.reproject(midU, (tl.srcY+tr.srcY)/2)
	midBottom := b.reproject((bl.srcX+br.srcX)/2, (bl.srcY+br.srcY)/2)
	midLeft := b.reproject((tl.srcX+bl.srcX)/2, (tl.srcY+bl.srcY)/2)
	midRight := b.reproject((tr.srcX+br.srcX)/2, (tr.srcY+br.srcY)/2)
	center := b.reproject((tl.srcX+br.srcX)/2, (tl.srcY+br.srcY)/2)

	b.subdivide(tl, midTop, midLeft, center, depth+1)
	b.subdivide(midTop, tr, center, midRight, depth+1)
	b.subdivide(midLeft, center, bl, midBottom, depth+1)
	b.subdivide(center, midRight, midBottom, br, depth+1)
}

func (b *meshBuilder) reproject(x, y float64) meshVertex {
	lon, lat := b.project(x, y)
	return meshVertex{srcX: x, srcY: y, lon: lon, lat: lat}
}

// needsSplit estimates interpolation error by comparing the true
// projected center against the bilinear average of the four corners.
func (b *meshBuilder) needsSplit(tl, tr, bl, br meshVertex) bool {
	trueCenter := b.reproject((tl.srcX+br.srcX)/2, (tl.srcY+br.srcY)/2)
	lerpLon := (tl.lon + tr.lon + bl.lon + br.lon) / 4
	lerpLat := (tl.lat + tr.lat + bl.lat + br.lat) / 4
	dLon := trueCenter.lon - lerpLon
	dLat := trueCenter.lat - lerpLat
	errDeg := absF(dLon) + absF(dLat)
	return errDeg > b.maxErrorDeg
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (b *meshBuilder) emitQuad(tl, tr, bl, br meshVertex) {
	base := uint16(len(b.verts))
	b.verts = append(b.verts,
		toVertex(tl), toVertex(tr), toVertex(bl), toVertex(br),
	)
	b.inds = append(b.inds,
		base+0, base+2, base+1,
		base+1, base+2, base+3,
	)
}

func toVertex(v meshVertex) ebiten.Vertex {
	return ebiten.Vertex{
		DstX: float32(v.lon), DstY: float32(v.lat),
		SrcX: float32(v.srcX), SrcY: float32(v.srcY),
		ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1,
	}
}

func (b *meshBuilder) finish() *AdaptiveMesh {
	return &AdaptiveMesh{Vertices: b.verts, Indices: b.inds}
}
