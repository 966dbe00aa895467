// Package palette maps normalized field values to colors. The engine treats
// it as a black box: clamp the input, look up the gradient, full opacity out.
package palette

import (
	"image/color"
	"log/slog"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// DefaultID is the palette used when an unknown id is requested.
const DefaultID = "viridis"

// stop is one anchor of a gradient, positioned in [0, 1].
type stop struct {
	pos float64
	col colorful.Color
}

// gradient is a piecewise blend through its stops in Luv space, which keeps
// the perceived lightness ramp even.
type gradient []stop

var palettes = map[string]gradient{
	"viridis": {
		{0.0, colorful.Color{R: 0.267, G: 0.005, B: 0.329}},
		{0.25, colorful.Color{R: 0.229, G: 0.322, B: 0.546}},
		{0.5, colorful.Color{R: 0.128, G: 0.567, B: 0.551}},
		{0.75, colorful.Color{R: 0.369, G: 0.789, B: 0.383}},
		{1.0, colorful.Color{R: 0.993, G: 0.906, B: 0.144}},
	},
	"magma": {
		{0.0, colorful.Color{R: 0.001, G: 0.000, B: 0.014}},
		{0.25, colorful.Color{R: 0.281, G: 0.060, B: 0.503}},
		{0.5, colorful.Color{R: 0.716, G: 0.215, B: 0.475}},
		{0.75, colorful.Color{R: 0.987, G: 0.535, B: 0.382}},
		{1.0, colorful.Color{R: 0.987, G: 0.991, B: 0.750}},
	},
	"gray": {
		{0.0, colorful.Color{R: 0, G: 0, B: 0}},
		{1.0, colorful.Color{R: 1, G: 1, B: 1}},
	},
}

// IDs returns the known palette identifiers, sorted.
func IDs() []string {
	ids := make([]string, 0, len(palettes))
	for id := range palettes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ColorOf maps a scalar in [0, 1] to an opaque RGBA color. Out-of-range
// inputs clamp. An unknown palette id falls back to the default palette and
// logs the substitution rather than silently changing output.
func ColorOf(value float64, paletteID string) color.RGBA {
	g, ok := palettes[paletteID]
	if !ok {
		slog.Warn("unknown palette, using default", "requested", paletteID, "fallback", DefaultID)
		g = palettes[DefaultID]
	}

	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}

	c := g.at(value)
	r, gg, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: gg, B: b, A: 255}
}

func (g gradient) at(t float64) colorful.Color {
	for i := 0; i < len(g)-1; i++ {
		a, b := g[i], g[i+1]
		if t >= a.pos && t <= b.pos {
			span := b.pos - a.pos
			if span <= 0 {
				return a.col
			}
			return a.col.BlendLuv(b.col, (t-a.pos)/span)
		}
	}
	return g[len(g)-1].col
}
