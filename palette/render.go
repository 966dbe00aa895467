package palette

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/pthm-cable/prism/field"
)

// RenderImage maps a grid through a palette into an RGBA image. Values are
// normalized by the grid maximum; an all-zero grid renders as the palette's
// low end.
func RenderImage(g *field.Grid, paletteID string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.W, g.H))
	maxVal := g.Max()
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			v := 0.0
			if maxVal > 0 {
				v = g.At(x, y) / maxVal
			}
			img.SetRGBA(x, y, ColorOf(v, paletteID))
		}
	}
	return img
}

// EncodePNG writes a grid as a PNG through the given palette.
func EncodePNG(w io.Writer, g *field.Grid, paletteID string) error {
	if err := png.Encode(w, RenderImage(g, paletteID)); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}
