// Package shader composes the runtime Kage program used to draw one
// map tile or region: a texture-coordinate mapping (plain pass-through
// or EPSG:4326-to-Mercator reprojection, both done in the fragment
// stage; no custom vertex stage is emitted), a fragment stage built from the
// band count and active colormap, and an optional user-supplied
// fragment snippet whose uniforms are merged in. Composed programs are
// compiled once per distinct variant and cached for the life of the
// layer.
//
// All shaders use //kage:unit pixels, as Ebitengine requires, and
// follow its premultiplied-alpha convention: un-premultiply before
// processing, re-premultiply before returning.
package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/zarrview/zarrlayer/gputiles"
	"github.com/zarrview/zarrlayer/zarrerr"
)

// ProjectionMode selects how the fragment stage maps a pixel to texture
// coordinates.
type ProjectionMode int

const (
	// ProjectionPassthrough leaves dst positions as supplied (the
	// tiled Web Mercator path: geometry is already in screen space).
	ProjectionPassthrough ProjectionMode = iota
	// ProjectionReprojectWGS84 treats vertex dst positions as
	// lon/lat degrees and reprojects them to normalized Web Mercator
	// in the fragment stage, for untiled EPSG:4326 sources drawn
	// without a CPU resample.
	ProjectionReprojectWGS84
)

// Variant identifies one composed program: band count, projection
// mode, and whether a custom fragment snippet is attached.
type Variant struct {
	Bands          int
	Projection     ProjectionMode
	CustomFragment string
}

func (v Variant) key() string {
	return fmt.Sprintf("b%d-p%d-%x", v.Bands, v.Projection, hashString(v.CustomFragment))
}

func hashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// Composer compiles and caches shader programs by Variant. Cache
// cardinality is small and bounded by the number of distinct
// (bandCount, projection, customFragment) combinations a layer
// actually uses, so a plain map suffices — unlike the tile/texture
// caches, this never needs eviction.
type Composer struct {
	mu    sync.Mutex
	cache map[string]*ebiten.Shader
}

// NewComposer constructs an empty shader composer.
func NewComposer() *Composer {
	return &Composer{cache: make(map[string]*ebiten.Shader)}
}

// Compose returns the compiled program for v, compiling and caching it
// on first use.
func (c *Composer) Compose(v Variant) (*ebiten.Shader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.cache[v.key()]; ok {
		return s, nil
	}
	src := buildSource(v)
	s, err := ebiten.NewShader([]byte(src))
	if err != nil {
		return nil, &zarrerr.ShaderCompileError{Variant: v.key(), Err: err}
	}
	c.cache[v.key()] = s
	return s, nil
}

// ExtractUniforms finds every `var Name Type` declaration in a
// user-supplied Kage fragment snippet, mapping uniform name to type;
// buildSource uses it to hoist those declarations to package scope.
func ExtractUniforms(fragmentSnippet string) map[string]string {
	out := map[string]string{}
	for _, m := range uniformDeclRe.FindAllStringSubmatch(fragmentSnippet, -1) {
		out[m[1]] = m[2]
	}
	return out
}

var uniformDeclRe = regexp.MustCompile(`(?m)^\s*var\s+(\w+)\s+([\w\[\]]+)\s*$`)

// stripUniformDecls removes every `var Name Type` line from a custom
// fragment snippet, leaving only the statements that operate on the
// snippet's local variables; the declarations themselves are hoisted
// to the top of the generated program by buildSource instead, since
// Kage requires uniform vars declared at package scope.
func stripUniformDecls(src string) string {
	return uniformDeclRe.ReplaceAllString(src, "")
}

// reservedUniforms are the names buildSource always declares itself; a
// custom fragment snippet redeclaring one of these is silently skipped
// rather than emitted twice.
var reservedUniforms = map[string]bool{
	"TexScale": true, "TexOffset": true, "ColormapLUT": true,
}

func buildSource(v Variant) string {
	var b strings.Builder
	b.WriteString("//kage:unit pixels\npackage main\n\n")

	b.WriteString("var TexScale vec2\nvar TexOffset vec2\n")
	for i := 0; i < v.Bands; i++ {
		fmt.Fprintf(&b, "var BandMin%d float\nvar BandMax%d float\n", i, i)
		reservedUniforms[bandMinKey(i)] = true
		reservedUniforms[bandMaxKey(i)] = true
	}
	if v.Bands > 0 {
		b.WriteString("var ColormapLUT [8]vec4\n")
	}

	custom := ExtractUniforms(v.CustomFragment)
	names := make([]string, 0, len(custom))
	for name := range custom {
		if !reservedUniforms[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "var %s %s\n", name, custom[name])
	}

	if v.Projection == ProjectionReprojectWGS84 {
		b.WriteString(mercatorReprojectFragmentHelper)
	}
	if v.Bands > 0 {
		b.WriteString(colormapSampleHelper)
	}

	b.WriteString("\nfunc Fragment(dst vec4, src vec2, color vec4) vec4 {\n")
	if v.Projection == ProjectionReprojectWGS84 {
		b.WriteString("\tuv := reprojectWGS84ToMercator(src)*TexScale + TexOffset\n")
	} else {
		b.WriteString("\tuv := src*TexScale + TexOffset\n")
	}
	b.WriteString("\tc := imageSrc0At(uv)\n")
	b.WriteString("\tif c.a == 0 {\n\t\treturn vec4(0)\n\t}\n")
	b.WriteString("\tc.rgb /= c.a\n")

	switch {
	case v.Bands == 1:
		fmt.Fprintf(&b, "\traw0 := c.r*(%g-(%g)) + (%g)\n", gputiles.EncodeMax, gputiles.EncodeMin, gputiles.EncodeMin)
		b.WriteString("\tt0 := clamp((raw0-BandMin0)/(BandMax0-BandMin0), 0.0, 1.0)\n")
		b.WriteString("\tmapped := vec4(sampleColormap(t0), c.a)\n")
	case v.Bands > 1:
		for i := 0; i < v.Bands && i < 3; i++ {
			fmt.Fprintf(&b, "\tband%d := imageSrc%dAt(uv)\n", i, i)
			fmt.Fprintf(&b, "\traw%d := band%d.r*(%g-(%g)) + (%g)\n", i, i, gputiles.EncodeMax, gputiles.EncodeMin, gputiles.EncodeMin)
			fmt.Fprintf(&b, "\tt%d := clamp((raw%d-BandMin%d)/(BandMax%d-BandMin%d), 0.0, 1.0)\n", i, i, i, i, i)
		}
		rgb := [3]string{"0", "0", "0"}
		for i := 0; i < v.Bands && i < 3; i++ {
			rgb[i] = fmt.Sprintf("t%d", i)
		}
		fmt.Fprintf(&b, "\tmapped := vec4(%s, %s, %s, c.a)\n", rgb[0], rgb[1], rgb[2])
	default:
		b.WriteString("\tmapped := c\n")
	}

	if stripped := strings.TrimSpace(stripUniformDecls(v.CustomFragment)); stripped != "" {
		b.WriteString("\t")
		b.WriteString(strings.ReplaceAll(stripped, "\n", "\n\t"))
		b.WriteString("\n")
	}

	b.WriteString("\tmapped.rgb = clamp(mapped.rgb, 0, 1)\n")
	b.WriteString("\ta := clamp(mapped.a, 0, 1)\n")
	b.WriteString("\treturn vec4(mapped.rgb*a, a)\n}\n")

	return b.String()
}

func bandMinKey(i int) string { return fmt.Sprintf("BandMin%d", i) }
func bandMaxKey(i int) string { return fmt.Sprintf("BandMax%d", i) }

const mercatorReprojectFragmentHelper = `
func reprojectWGS84ToMercator(lonlatDeg vec2) vec2 {
	lonNorm := lonlatDeg.x / 180.0
	latRad := lonlatDeg.y * 3.14159265 / 180.0
	yNorm := log(tan(3.14159265/4.0 + latRad/2.0)) / 3.14159265
	return vec2((lonNorm+1.0)/2.0, (1.0-yNorm)/2.0)
}
`

// colormapSampleHelper samples the 8-stop ColormapLUT uniform via a
// hand-unrolled if/else chain over constant indices, since dynamic
// indexing into a uniform array is not guaranteed portable across Kage
// compiler versions.
const colormapSampleHelper = `
func sampleColormap(t float) vec3 {
	pos := t * 7.0
	f := fract(pos)
	if pos < 1.0 {
		return mix(ColormapLUT[0].rgb, ColormapLUT[1].rgb, f)
	}
	if pos < 2.0 {
		return mix(ColormapLUT[1].rgb, ColormapLUT[2].rgb, f)
	}
	if pos < 3.0 {
		return mix(ColormapLUT[2].rgb, ColormapLUT[3].rgb, f)
	}
	if pos < 4.0 {
		return mix(ColormapLUT[3].rgb, ColormapLUT[4].rgb, f)
	}
	if pos < 5.0 {
		return mix(ColormapLUT[4].rgb, ColormapLUT[5].rgb, f)
	}
	if pos < 6.0 {
		return mix(ColormapLUT[5].rgb, ColormapLUT[6].rgb, f)
	}
	return mix(ColormapLUT[6].rgb, ColormapLUT[7].rgb, f)
}
`
