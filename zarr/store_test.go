package zarr

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDecodeValuesFloat32WithScale(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(1))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(2))
	meta := &ArrayMeta{DType: Float32, ScaleFactor: 0.5, AddOffset: 10}
	vals, err := decodeValues(buf, meta)
	if err != nil {
		t.Fatal(err)
	}
	if vals[0] != 10.5 || vals[1] != 11 {
		t.Errorf("got %v", vals)
	}
}

func TestDecodeValuesFillValue(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(-9999))
	meta := &ArrayMeta{DType: Float32, FillValue: -9999, HasFill: true}
	vals, err := decodeValues(buf, meta)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(vals[0]) {
		t.Errorf("expected NaN for fill value, got %v", vals[0])
	}
}

func TestDecodeChunkGzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, math.Float32bits(3.5))
	gw.Write(raw)
	gw.Close()

	meta := &ArrayMeta{DType: Float32, Codecs: []Codec{CodecGzip}}
	decoded, err := decodeChunk(buf.Bytes(), meta)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(decoded))
	}
}

func TestDecodeChunkBloscUnsupported(t *testing.T) {
	meta := &ArrayMeta{Codecs: []Codec{CodecBlosc}}
	if _, err := decodeChunk([]byte{1, 2, 3}, meta); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestDiscoverPyramidV3SingleLevel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/zarr.json":
			w.Write([]byte(`{"attributes":{}}`))
		default:
			w.Write([]byte(`{"shape":[4,4],"chunk_grid":{"configuration":{"chunk_shape":[2,2]}},"data_type":"float32","dimension_names":["y","x"],"codecs":[{"name":"bytes"}]}`))
		}
	}))
	defer srv.Close()

	s := Open(srv.URL, WithVariable("data"))
	p, err := s.DiscoverPyramid(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Levels) != 1 {
		t.Fatalf("expected 1 level, got %d", len(p.Levels))
	}
	if p.Levels[0].Meta.DimIndex("x") != 1 {
		t.Errorf("expected dim x at index 1")
	}
}
