package shader

import "testing"

func TestExtractUniforms(t *testing.T) {
	src := `
var Strength float
var Palette [16]vec4
`
	got := ExtractUniforms(src)
	if got["Strength"] != "float" {
		t.Errorf("got %v", got)
	}
	if got["Palette"] != "[16]vec4" {
		t.Errorf("got %v", got)
	}
}

func TestVariantKeyDistinguishesProjection(t *testing.T) {
	a := Variant{Bands: 1, Projection: ProjectionPassthrough}
	b := Variant{Bands: 1, Projection: ProjectionReprojectWGS84}
	if a.key() == b.key() {
		t.Error("expected distinct keys for distinct projection modes")
	}
}

func TestBuildSourceIncludesBandUniforms(t *testing.T) {
	src := buildSource(Variant{Bands: 2})
	if !contains(src, "BandMin0") || !contains(src, "BandMax1") {
		t.Errorf("expected per-band uniforms in source:\n%s", src)
	}
}

func TestBuildSourceDiscardsTransparentSource(t *testing.T) {
	src := buildSource(Variant{Bands: 1})
	if !contains(src, "if c.a == 0") {
		t.Errorf("expected NaN/no-data discard check in source:\n%s", src)
	}
}

func TestBuildSourceSplicesCustomFragmentWithoutUndefinedCall(t *testing.T) {
	src := buildSource(Variant{Bands: 1, CustomFragment: "var Strength float\nmapped.rgb *= Strength"})
	if contains(src, "applyCustomFragment") {
		t.Errorf("expected no call to an undefined applyCustomFragment function:\n%s", src)
	}
	if !contains(src, "var Strength float") {
		t.Errorf("expected custom uniform hoisted to package scope:\n%s", src)
	}
	if !contains(src, "mapped.rgb *= Strength") {
		t.Errorf("expected custom fragment statement spliced into Fragment body:\n%s", src)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
