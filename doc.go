// Package zarrlayer renders multi-dimensional Zarr raster arrays as a
// slippy-map overlay: on-the-fly dimension slicing, colormapping, and
// reprojection from arbitrary source CRSs to Web Mercator, driven once
// per frame by a host map surface.
//
// A dataset is opened and discovered by [zarr.Store], windowed into
// tile-shaped slices by [tiledata.Manager] (pyramided datasets) or
// [untiled.Manager] (single-array datasets resampled or mesh-warped
// directly), uploaded to the GPU and cached by [gputiles.Cache], drawn
// through a runtime-composed Kage program from [shader.Composer] and
// [render.Core], and exposed to a host as one [layer.Layer].
//
// # Quick start
//
//	l, err := layer.New(layer.Options{
//		URL:   "https://example.com/data.zarr",
//		Bands: []string{"temperature"},
//		BandRanges: map[string][2]float64{"temperature": {-10, 40}},
//	})
//	if err != nil { ... }
//	if err := l.OnAdd(ctx, http.DefaultClient); err != nil { ... }
//	// once per frame:
//	l.Prerender(ctx, vp, dt)
//	l.Render(screen, vp)
//
// # Package layout
//
// Packages split along the same seam twice present in Ebitengine-based
// game codebases: a GPU-dependent half ([gputiles], [shader], [render],
// [globe]) and a data-access half with no GPU dependency and no
// rendering concerns ([zarr], [tiledata], [untiled], [query],
// [maputil]), glued together by [layer].
//
// A 3D-globe host is served by [globe], which derives the same
// per-tile matrix and overlap/fallback logic a flat Mercator host gets
// from [render] and [maputil], without requiring any specific globe
// camera implementation.
//
// Point, polygon, and multi-polygon spatial queries — independent of
// whether the queried coordinates are currently on screen — are served
// by [query].
package zarrlayer
