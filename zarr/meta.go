package zarr

import (
	"fmt"
	"math"
	"strings"
)

// Codec identifies a chunk compression codec declared in array metadata.
type Codec string

const (
	CodecRaw   Codec = "raw"
	CodecGzip  Codec = "gzip"
	CodecZstd  Codec = "zstd"
	CodecBlosc Codec = "blosc"
	CodecShard Codec = "sharding_indexed"
)

// DType is the subset of Zarr dtype strings this package understands.
type DType string

const (
	Float32 DType = "<f4"
	Float64 DType = "<f8"
	Int16   DType = "<i2"
	Int32   DType = "<i4"
	Uint8   DType = "|u1"
	Uint16  DType = "<u2"
)

// Size returns the dtype's element width in bytes.
func (d DType) Size() int {
	switch d {
	case Float64:
		return 8
	case Int32, Float32:
		return 4
	case Int16, Uint16:
		return 2
	case Uint8:
		return 1
	default:
		return 0
	}
}

// ArrayMeta describes a single Zarr array: its shape, chunk grid,
// dimension names, and the value-mapping metadata (fill value,
// scale/offset) needed to turn raw chunk bytes into physical values.
type ArrayMeta struct {
	Shape      []int
	ChunkShape []int
	Dims       []string
	DType      DType
	FillValue  float64
	HasFill    bool
	ScaleFactor float64
	AddOffset   float64
	Codecs      []Codec
	ShardShape  []int // non-nil when Codecs contains CodecShard
	Coordinates map[string][]float64
}

// DimIndex returns the position of a named dimension, or -1.
func (m *ArrayMeta) DimIndex(name string) int {
	for i, d := range m.Dims {
		if d == name {
			return i
		}
	}
	return -1
}

// yDimAliases/xDimAliases are the CF-ish dimension names tried, in
// order, when no explicit hint resolves a spatial axis.
var (
	yDimAliases = []string{"y", "lat", "latitude"}
	xDimAliases = []string{"x", "lon", "longitude", "lng"}
)

// SpatialDims resolves the y (row) and x (column) dimension indices for
// this array. hints, keyed by role ("y" or "x"), names an explicit
// dimension to use and always wins; latHint is a narrower override for
// just the y role (kept distinct from hints because a caller may know
// the latitude dimension's name without knowing the x one). Dimensions
// not resolved by either take the first matching alias from
// yDimAliases/xDimAliases.
func (m *ArrayMeta) SpatialDims(hints map[string]string, latHint string) (yi, xi int, err error) {
	if name, ok := hints["y"]; ok && name != "" {
		yi = m.DimIndex(name)
	} else if latHint != "" {
		yi = m.DimIndex(latHint)
	} else {
		yi = m.firstMatchingDim(yDimAliases)
	}
	if name, ok := hints["x"]; ok && name != "" {
		xi = m.DimIndex(name)
	} else {
		xi = m.firstMatchingDim(xDimAliases)
	}
	if yi < 0 || xi < 0 {
		return -1, -1, fmt.Errorf("zarr: could not resolve spatial dimensions among %v (hints=%v latHint=%q)", m.Dims, hints, latHint)
	}
	return yi, xi, nil
}

func (m *ArrayMeta) firstMatchingDim(aliases []string) int {
	for _, want := range aliases {
		for i, d := range m.Dims {
			if strings.EqualFold(d, want) {
				return i
			}
		}
	}
	return -1
}

// ApplyScale converts a raw stored value to its physical value using
// the array's scale_factor/add_offset CF-style convention, respecting
// fill values (returned as NaN).
func (m *ArrayMeta) ApplyScale(raw float64) float64 {
	if m.HasFill && raw == m.FillValue {
		return math.NaN()
	}
	scale := m.ScaleFactor
	if scale == 0 {
		scale = 1
	}
	return raw*scale + m.AddOffset
}

// LevelMeta describes one level of a multiscale pyramid: the path to
// its array group and the resolution factor relative to level 0.
type LevelMeta struct {
	Path           string
	Meta           ArrayMeta
	ResolutionMult float64
}

// Pyramid is the ordered set of resolution levels backing a Zarr
// multiscale dataset, coarsest first: level i is drawn as slippy-map
// zoom i, and the last level is the finest (native) resolution.
type Pyramid struct {
	Levels []LevelMeta
	TileSize int
	CRS      string // EPSG code or proj4 string of the source array's grid
}

// MaxLevel returns the finest level index.
func (p *Pyramid) MaxLevel() int {
	return len(p.Levels) - 1
}

// NativeLevelForSelector returns the lowest-index (coarsest) level whose
// array metadata has every dimension implied by the selector; for a
// multiscale dataset every level shares dimension names, so this is
// level 0 unless a caller has pruned levels that lack a requested
// non-spatial coordinate.
func (p *Pyramid) NativeLevelForSelector(requiredDims []string) (int, error) {
	for i, lvl := range p.Levels {
		ok := true
		for _, d := range requiredDims {
			if lvl.Meta.DimIndex(d) < 0 {
				ok = false
				break
			}
		}
		if ok {
			return i, nil
		}
	}
	return 0, fmt.Errorf("zarr: no pyramid level has dimensions %v", requiredDims)
}
