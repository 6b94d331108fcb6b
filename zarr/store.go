// Package zarr discovers Zarr v2/v3 array and multiscale-pyramid
// metadata over HTTP(S) and fetches/decodes individual chunks on
// demand. It knows nothing about tiles, screens, or rendering — it is
// the single source of physical array values for the rest of the
// engine.
package zarr

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/zarrview/zarrlayer/zarrerr"
	"golang.org/x/sync/singleflight"
)

// TransformRequest mutates an outgoing metadata/chunk request before it
// is sent, e.g. to attach object-store authentication headers.
type TransformRequest func(*http.Request) (*http.Request, error)

// Store resolves a Zarr dataset's metadata and chunk bytes over HTTP.
// It is safe for concurrent use: chunk fetches are deduplicated via
// singleflight, and it holds no other mutable shared state.
type Store struct {
	baseURL   string
	client    *http.Client
	transform TransformRequest
	log       *slog.Logger

	// versionHint, when "v2" or "v3", skips the v3-then-v2 metadata
	// probe entirely and fetches that version's metadata file
	// directly. variable narrows discovery to a single named array or
	// group member instead of following the group's multiscales
	// attribute. dimensionHints/latHint/coordinateKeys resolve the
	// spatial and coordinate dimensions of datasets whose dimension
	// names don't match the y/lat/latitude, x/lon/longitude/lng alias
	// table tiledata and untiled fall back to.
	versionHint    string
	variable       string
	dimensionHints map[string]string
	coordinateKeys []string
	latHint        string

	group singleflight.Group
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// WithTransformRequest installs a request-mutation hook, e.g. for
// signed object-store URLs.
func WithTransformRequest(fn TransformRequest) Option {
	return func(s *Store) { s.transform = fn }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithVersionHint pins discovery to "v2" or "v3", skipping the
// zarr.json-then-.zattrs probe. An unrecognized value is ignored and
// the probe runs as usual.
func WithVersionHint(v string) Option {
	return func(s *Store) { s.versionHint = v }
}

// WithVariable narrows discovery to a single array or group member
// path, overriding whatever paths the group's multiscales attribute
// would otherwise list.
func WithVariable(name string) Option {
	return func(s *Store) { s.variable = name }
}

// WithDimensionHints supplies explicit dimension names for the "y" and
// "x" roles, overriding the alias table tiledata/untiled otherwise use
// to resolve a dataset's spatial axes.
func WithDimensionHints(hints map[string]string) Option {
	return func(s *Store) { s.dimensionHints = hints }
}

// WithCoordinateKeys names the attribute keys holding this dataset's
// coordinate arrays (e.g. non-standard names for lon/lat/time
// coordinate variables), for callers that need to load them alongside
// the data array's own metadata.
func WithCoordinateKeys(keys []string) Option {
	return func(s *Store) { s.coordinateKeys = keys }
}

// WithLatHint names the latitude dimension explicitly, taking
// precedence over the alias table but not over an explicit "y" entry
// in WithDimensionHints.
func WithLatHint(name string) Option {
	return func(s *Store) { s.latHint = name }
}

// Open constructs a Store rooted at baseURL (the URL of the Zarr
// group, without a trailing slash).
func Open(baseURL string, opts ...Option) *Store {
	s := &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DimensionHints returns the explicit y/x dimension-name overrides
// configured via WithDimensionHints, for consumers (tiledata, untiled)
// that must resolve a dataset's spatial axes themselves.
func (s *Store) DimensionHints() map[string]string { return s.dimensionHints }

// LatHint returns the explicit latitude dimension name configured via
// WithLatHint, or "" if none was set.
func (s *Store) LatHint() string { return s.latHint }

// CoordinateKeys returns the coordinate attribute keys configured via
// WithCoordinateKeys.
func (s *Store) CoordinateKeys() []string { return s.coordinateKeys }

// DiscoverPyramid fetches and parses the store's multiscale metadata,
// falling back to a single-level pyramid if no multiscales attribute
// is present. A configured version hint skips the v3-then-v2 probe and
// goes straight to that version's metadata file.
func (s *Store) DiscoverPyramid(ctx context.Context) (*Pyramid, error) {
	switch s.versionHint {
	case "v3":
		raw, err := s.fetchBytes(ctx, s.baseURL+"/zarr.json")
		if err != nil {
			return nil, &zarrerr.MetadataError{Source: s.baseURL, Err: err}
		}
		return s.discoverV3(ctx, raw)
	case "v2":
		raw, err := s.fetchBytes(ctx, s.baseURL+"/.zattrs")
		if err != nil {
			return nil, &zarrerr.MetadataError{Source: s.baseURL, Err: err}
		}
		return s.discoverV2(ctx, raw)
	default:
		raw, err := s.fetchBytes(ctx, s.baseURL+"/zarr.json")
		if err != nil {
			raw, err = s.fetchBytes(ctx, s.baseURL+"/.zattrs")
			if err != nil {
				return nil, &zarrerr.MetadataError{Source: s.baseURL, Err: err}
			}
			return s.discoverV2(ctx, raw)
		}
		return s.discoverV3(ctx, raw)
	}
}

// GetArray fetches and parses a single array's metadata directly,
// without going through the group's multiscales attribute — e.g. for a
// caller that already knows the exact array path (levelPath may be ""
// for the store's own root). Honors the store's version hint the same
// way DiscoverPyramid does.
func (s *Store) GetArray(ctx context.Context, levelPath string) (*ArrayMeta, error) {
	arrURL := s.baseURL
	if levelPath != "" {
		arrURL = s.baseURL + "/" + levelPath
	}
	if s.versionHint != "v2" {
		raw, err := s.fetchBytes(ctx, arrURL+"/zarr.json")
		if err == nil {
			return parseArrayMetaV3(raw)
		}
		if s.versionHint == "v3" {
			return nil, &zarrerr.MetadataError{Source: arrURL, Err: err}
		}
	}
	raw, err := s.fetchBytes(ctx, arrURL+"/.zarray")
	if err != nil {
		return nil, &zarrerr.MetadataError{Source: arrURL, Err: err}
	}
	meta, err := parseArrayMetaV2(raw)
	if err != nil {
		return nil, err
	}
	if zattrs, err := s.fetchBytes(ctx, arrURL+"/.zattrs"); err == nil {
		applyV2Attrs(meta, zattrs)
	}
	return meta, nil
}

type v3GroupMeta struct {
	Attributes struct {
		Multiscales []struct {
			Datasets []struct {
				Path  string    `json:"path"`
				Scale []float64 `json:"coordinateTransformations"`
			} `json:"datasets"`
		} `json:"multiscales"`
	} `json:"attributes"`
}

func (s *Store) discoverV3(ctx context.Context, groupRaw []byte) (*Pyramid, error) {
	var gm v3GroupMeta
	if err := json.Unmarshal(groupRaw, &gm); err != nil {
		return nil, &zarrerr.MetadataError{Source: "zarr.json", Err: err}
	}
	p := &Pyramid{TileSize: 256}
	paths := []string{""}
	if len(gm.Attributes.Multiscales) > 0 {
		paths = paths[:0]
		for _, ds := range gm.Attributes.Multiscales[0].Datasets {
			paths = append(paths, ds.Path)
		}
	}
	if s.variable != "" {
		paths = []string{s.variable}
	}
	for i, rel := range paths {
		arrURL := s.baseURL
		if rel != "" {
			arrURL = s.baseURL + "/" + rel
		}
		raw, err := s.fetchBytes(ctx, arrURL+"/zarr.json")
		if err != nil {
			return nil, &zarrerr.MetadataError{Source: arrURL, Err: err}
		}
		meta, err := parseArrayMetaV3(raw)
		if err != nil {
			return nil, &zarrerr.MetadataError{Source: arrURL, Err: err}
		}
		mult := math.Pow(2, float64(i))
		p.Levels = append(p.Levels, LevelMeta{Path: rel, Meta: *meta, ResolutionMult: mult})
	}
	return p, nil
}

func (s *Store) discoverV2(ctx context.Context, attrsRaw []byte) (*Pyramid, error) {
	var attrs struct {
		Multiscales []struct {
			Datasets []struct {
				Path string `json:"path"`
			} `json:"datasets"`
		} `json:"multiscales"`
	}
	_ = json.Unmarshal(attrsRaw, &attrs)
	p := &Pyramid{TileSize: 256}
	paths := []string{""}
	if len(attrs.Multiscales) > 0 {
		paths = paths[:0]
		for _, ds := range attrs.Multiscales[0].Datasets {
			paths = append(paths, ds.Path)
		}
	}
	if s.variable != "" {
		paths = []string{s.variable}
	}
	for i, rel := range paths {
		arrURL := s.baseURL
		if rel != "" {
			arrURL = s.baseURL + "/" + rel
		}
		raw, err := s.fetchBytes(ctx, arrURL+"/.zarray")
		if err != nil {
			return nil, &zarrerr.MetadataError{Source: arrURL, Err: err}
		}
		meta, err := parseArrayMetaV2(raw)
		if err != nil {
			return nil, &zarrerr.MetadataError{Source: arrURL, Err: err}
		}
		if zattrs, err := s.fetchBytes(ctx, arrURL+"/.zattrs"); err == nil {
			applyV2Attrs(meta, zattrs)
		}
		mult := math.Pow(2, float64(i))
		p.Levels = append(p.Levels, LevelMeta{Path: rel, Meta: *meta, ResolutionMult: mult})
	}
	return p, nil
}

type v2ArrayMeta struct {
	Shape   []int    `json:"shape"`
	Chunks  []int    `json:"chunks"`
	DType   string   `json:"dtype"`
	Fill    *float64 `json:"fill_value"`
	Compressor *struct {
		ID string `json:"id"`
	} `json:"compressor"`
}

func parseArrayMetaV2(raw []byte) (*ArrayMeta, error) {
	var v v2ArrayMeta
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	m := &ArrayMeta{
		Shape:      v.Shape,
		ChunkShape: v.Chunks,
		DType:      DType(v.DType),
	}
	if v.Fill != nil {
		m.FillValue = *v.Fill
		m.HasFill = true
	}
	if v.Compressor != nil {
		switch v.Compressor.ID {
		case "gzip":
			m.Codecs = []Codec{CodecGzip}
		case "zstd":
			m.Codecs = []Codec{CodecZstd}
		case "blosc":
			m.Codecs = []Codec{CodecBlosc}
		default:
			m.Codecs = []Codec{CodecRaw}
		}
	} else {
		m.Codecs = []Codec{CodecRaw}
	}
	return m, nil
}

func applyV2Attrs(m *ArrayMeta, raw []byte) {
	var attrs struct {
		Dims        []string `json:"_ARRAY_DIMENSIONS"`
		ScaleFactor *float64 `json:"scale_factor"`
		AddOffset   *float64 `json:"add_offset"`
	}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return
	}
	m.Dims = attrs.Dims
	if attrs.ScaleFactor != nil {
		m.ScaleFactor = *attrs.ScaleFactor
	}
	if attrs.AddOffset != nil {
		m.AddOffset = *attrs.AddOffset
	}
}

type v3ArrayMeta struct {
	Shape         []int    `json:"shape"`
	ChunkGrid     struct {
		Configuration struct {
			ChunkShape []int `json:"chunk_shape"`
		} `json:"configuration"`
	} `json:"chunk_grid"`
	DataType      string `json:"data_type"`
	FillValue     any    `json:"fill_value"`
	Codecs        []struct {
		Name          string `json:"name"`
		Configuration struct {
			ChunkShape []int `json:"chunk_shape"`
		} `json:"configuration"`
	} `json:"codecs"`
	DimensionNames []string `json:"dimension_names"`
	Attributes     struct {
		ScaleFactor *float64 `json:"scale_factor"`
		AddOffset   *float64 `json:"add_offset"`
	} `json:"attributes"`
}

func parseArrayMetaV3(raw []byte) (*ArrayMeta, error) {
	var v v3ArrayMeta
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	m := &ArrayMeta{
		Shape:      v.Shape,
		ChunkShape: v.ChunkGrid.Configuration.ChunkShape,
		Dims:       v.DimensionNames,
		DType:      dtypeFromV3(v.DataType),
	}
	if f, ok := v.FillValue.(float64); ok {
		m.FillValue = f
		m.HasFill = true
	}
	for _, c := range v.Codecs {
		switch c.Name {
		case "gzip":
			m.Codecs = append(m.Codecs, CodecGzip)
		case "zstd":
			m.Codecs = append(m.Codecs, CodecZstd)
		case "blosc":
			m.Codecs = append(m.Codecs, CodecBlosc)
		case "sharding_indexed":
			m.Codecs = append(m.Codecs, CodecShard)
			m.ShardShape = c.Configuration.ChunkShape
		case "bytes":
			// endian marker codec; no-op for decode purposes
		default:
			m.Codecs = append(m.Codecs, CodecRaw)
		}
	}
	if len(m.Codecs) == 0 {
		m.Codecs = []Codec{CodecRaw}
	}
	if v.Attributes.ScaleFactor != nil {
		m.ScaleFactor = *v.Attributes.ScaleFactor
	}
	if v.Attributes.AddOffset != nil {
		m.AddOffset = *v.Attributes.AddOffset
	}
	return m, nil
}

func dtypeFromV3(s string) DType {
	switch s {
	case "float64":
		return Float64
	case "float32":
		return Float32
	case "int16":
		return Int16
	case "int32":
		return Int32
	case "uint16":
		return Uint16
	case "uint8":
		return Uint8
	default:
		return Float32
	}
}

// GetChunk fetches, decompresses, and decodes a single chunk identified
// by its grid indices (one per dimension, in Dims order) at the given
// pyramid level, returning physical (scaled, fill-mapped) float64
// values in row-major order.
func (s *Store) GetChunk(ctx context.Context, level *LevelMeta, indices []int) ([]float64, error) {
	key := chunkKey(level.Path, indices)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.fetchAndDecodeChunk(ctx, level, indices)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float64), nil
}

func chunkKey(path string, indices []int) string {
	var b strings.Builder
	b.WriteString(path)
	for _, i := range indices {
		fmt.Fprintf(&b, "/%d", i)
	}
	return b.String()
}

func (s *Store) fetchAndDecodeChunk(ctx context.Context, level *LevelMeta, indices []int) ([]float64, error) {
	url := s.chunkURL(level.Path, indices)
	raw, err := s.fetchBytes(ctx, url)
	if err != nil {
		s.log.Warn("zarr: chunk fetch failed", "url", url, "err", err)
		return nil, &zarrerr.FetchError{URL: url, Err: err}
	}
	meta := &level.Meta
	decoded, err := decodeChunk(raw, meta)
	if err != nil {
		return nil, err
	}
	return decodeValues(decoded, meta)
}

func (s *Store) chunkURL(path string, indices []int) string {
	parts := make([]string, len(indices))
	for i, v := range indices {
		parts[i] = fmt.Sprintf("%d", v)
	}
	base := s.baseURL
	if path != "" {
		base = base + "/" + path
	}
	return base + "/c/" + strings.Join(parts, "/")
}

func decodeValues(buf []byte, meta *ArrayMeta) ([]float64, error) {
	width := meta.DType.Size()
	if width == 0 {
		return nil, fmt.Errorf("zarr: unsupported dtype %q", meta.DType)
	}
	n := len(buf) / width
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		raw := readScalar(buf[i*width:], meta.DType)
		out[i] = meta.ApplyScale(raw)
	}
	return out, nil
}

func readScalar(b []byte, dt DType) float64 {
	switch dt {
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case Uint8:
		return float64(b[0])
	default:
		return 0
	}
}

func (s *Store) fetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if s.transform != nil {
		req, err = s.transform(req)
		if err != nil {
			return nil, fmt.Errorf("zarr: transformRequest: %w", err)
		}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("zarr: %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
