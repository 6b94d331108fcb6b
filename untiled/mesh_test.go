package untiled

import "testing"

func TestBuildAdaptiveMeshLinearProjectionStaysCoarse(t *testing.T) {
	// A perfectly linear "projection" should never trigger subdivision
	// beyond the minimum grid, since bilinear interpolation is exact.
	linear := func(x, y float64) (lon, lat float64) {
		return x * 0.01, y * 0.01
	}
	mesh := BuildAdaptiveMesh(100, 100, linear, MinSubdivisions, MaxSubdivisions, DefaultMeshMaxErrorDeg)
	wantQuads := MinSubdivisions * MinSubdivisions
	gotQuads := len(mesh.Indices) / 6
	if gotQuads != wantQuads {
		t.Errorf("got %d quads, want %d", gotQuads, wantQuads)
	}
}

func TestBuildAdaptiveMeshNonlinearSubdivides(t *testing.T) {
	nonlinear := func(x, y float64) (lon, lat float64) {
		return x*x*0.0001, y*y*0.0001
	}
	mesh := BuildAdaptiveMesh(100, 100, nonlinear, MinSubdivisions, MaxSubdivisions, 1e-6)
	wantQuads := MinSubdivisions * MinSubdivisions
	gotQuads := len(mesh.Indices) / 6
	if gotQuads <= wantQuads {
		t.Errorf("expected subdivision beyond coarse grid, got %d quads (coarse=%d)", gotQuads, wantQuads)
	}
}

func TestBuildAdaptiveMeshRespectsMaxSubdivisions(t *testing.T) {
	nonlinear := func(x, y float64) (lon, lat float64) {
		return x*x*x*0.000001, y*y*y*0.000001
	}
	mesh := BuildAdaptiveMesh(100, 100, nonlinear, MinSubdivisions, MinSubdivisions+1, 1e-12)
	maxQuadsPerCoarseCell := 1 << (2 * 1) // one extra depth level = 4 sub-quads
	maxQuads := MinSubdivisions * MinSubdivisions * maxQuadsPerCoarseCell
	gotQuads := len(mesh.Indices) / 6
	if gotQuads > maxQuads {
		t.Errorf("got %d quads, exceeds cap of %d", gotQuads, maxQuads)
	}
}
