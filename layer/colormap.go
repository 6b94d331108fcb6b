package layer

import (
	"fmt"
	"strconv"
	"strings"
)

// RGB is a colormap stop's color in [0,1] components.
type RGB struct{ R, G, B float64 }

// Colormap is an ordered list of stops sampled uniformly across a
// band's [min, max] domain.
type Colormap []RGB

// ParseColormap accepts either a list of [3]float64 RGB triples
// already in [0,1], or a list of "#rrggbb" hex strings, matching the
// two forms spec's colormap option allows.
func ParseColormap(v any) (Colormap, error) {
	switch t := v.(type) {
	case [][3]float64:
		out := make(Colormap, len(t))
		for i, c := range t {
			out[i] = RGB{c[0], c[1], c[2]}
		}
		return out, nil
	case []string:
		out := make(Colormap, len(t))
		for i, hex := range t {
			rgb, err := parseHex(hex)
			if err != nil {
				return nil, fmt.Errorf("layer: colormap stop %d: %w", i, err)
			}
			out[i] = rgb
		}
		return out, nil
	default:
		return nil, fmt.Errorf("layer: colormap must be [][3]float64 or []string, got %T", v)
	}
}

func parseHex(hex string) (RGB, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return RGB{}, fmt.Errorf("invalid hex color %q", hex)
	}
	r, err := strconv.ParseUint(hex[0:2], 16, 8)
	if err != nil {
		return RGB{}, err
	}
	g, err := strconv.ParseUint(hex[2:4], 16, 8)
	if err != nil {
		return RGB{}, err
	}
	b, err := strconv.ParseUint(hex[4:6], 16, 8)
	if err != nil {
		return RGB{}, err
	}
	return RGB{float64(r) / 255, float64(g) / 255, float64(b) / 255}, nil
}

// Sample linearly interpolates the colormap at t in [0,1].
func (c Colormap) Sample(t float64) RGB {
	if len(c) == 0 {
		return RGB{}
	}
	if len(c) == 1 || t <= 0 {
		return c[0]
	}
	if t >= 1 {
		return c[len(c)-1]
	}
	pos := t * float64(len(c)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := c[i], c[i+1]
	return RGB{
		lerp(a.R, b.R, frac),
		lerp(a.G, b.G, frac),
		lerp(a.B, b.B, frac),
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
