// Package zarrerr defines the typed error taxonomy shared by every
// zarrlayer subpackage.
//
// Each type wraps an underlying cause (where one exists) so callers can
// still reach it with [errors.Is] / [errors.As], while the concrete type
// tells a host which recovery path applies: configuration and metadata
// errors are fatal to a layer, fetch errors are transient and retried on
// the next frame, shader/GL errors mark a layer inert until removed.
package zarrerr

import "fmt"

// ConfigurationError reports an invalid or self-contradictory set of
// [layer.Options] discovered at construction time.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("zarrlayer: configuration error: %s: %s", e.Field, e.Reason)
}

// MetadataError reports a failure to discover or parse a Zarr array's
// metadata (zarr.json, .zmetadata, .zarray/.zattrs).
type MetadataError struct {
	Source string
	Err    error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("zarrlayer: metadata error (%s): %v", e.Source, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// FetchError reports a failed chunk or tile fetch. Fetch errors are
// transient: a layer logs and retries on the next Prerender rather than
// going inert.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("zarrlayer: fetch error: %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GLContextError reports a failure to allocate or operate on a GPU
// resource (render target, texture) via Ebitengine.
type GLContextError struct {
	Op  string
	Err error
}

func (e *GLContextError) Error() string {
	return fmt.Sprintf("zarrlayer: GPU context error during %s: %v", e.Op, e.Err)
}

func (e *GLContextError) Unwrap() error { return e.Err }

// ShaderCompileError reports a failure to compile a composed Kage
// program.
type ShaderCompileError struct {
	Variant string
	Err     error
}

func (e *ShaderCompileError) Error() string {
	return fmt.Sprintf("zarrlayer: shader compile error (%s): %v", e.Variant, e.Err)
}

func (e *ShaderCompileError) Unwrap() error { return e.Err }

// QueryError reports an invalid spatial query (malformed GeoJSON
// geometry, selector referencing an unknown dimension, coordinates
// outside the array's valid range).
type QueryError struct {
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("zarrlayer: query error: %s", e.Reason)
}

// UnsupportedFormat reports a recognized-but-unimplemented wire format,
// such as a blosc-compressed chunk.
type UnsupportedFormat struct {
	What string
}

func (e *UnsupportedFormat) Error() string {
	return fmt.Sprintf("zarrlayer: unsupported format: %s", e.What)
}
