package field

import "math"

// RenderState selects which parameter tuple a render reads.
type RenderState int

const (
	StateCurrent RenderState = iota
	StateOriginal
)

// RenderOptions controls the display transform of RenderToGrid. The zero
// value renders the raw accumulated field.
type RenderOptions struct {
	Exponent float64     // <= 0 or 1 means no exponent
	Compress bool        // apply log(1+x) after the exponent
	Noise    *NoiseLayer // optional background texture, added before the transform
}

// sigmaCutoff bounds Gaussian evaluation to the region where the blob
// contributes meaningfully.
const sigmaCutoff = 3.0

// RenderToGrid renders the full mixture. The optional exponent is applied
// per pixel, then log(1+x) compression when requested; the compression step
// runs the same way whatever the exponent.
func (m *Mixture) RenderToGrid(state RenderState, opts RenderOptions) *Grid {
	g := m.renderLinear(state, nil)
	if opts.Noise != nil {
		opts.Noise.AddTo(g)
	}
	if opts.Exponent > 0 && opts.Exponent != 1 {
		for i, v := range g.Data {
			g.Data[i] = math.Pow(v, opts.Exponent)
		}
	}
	if opts.Compress {
		for i, v := range g.Data {
			g.Data[i] = math.Log1p(v)
		}
	}
	return g
}

// RenderLinear renders the raw accumulated field with no display transform.
// The gating and search pipelines use this form so band renders compose
// additively into the total.
func (m *Mixture) RenderLinear(state RenderState) *Grid {
	return m.renderLinear(state, nil)
}

// RenderBandField renders only the components currently classified into one
// band, in either the live or the original parameter state.
func (m *Mixture) RenderBandField(band Band, state RenderState) *Grid {
	return m.renderLinear(state, &band)
}

func (m *Mixture) renderLinear(state RenderState, only *Band) *Grid {
	g := NewGrid(m.W, m.H)
	for i := range m.comps {
		c := &m.comps[i]
		p := c.Params
		if state == StateOriginal {
			p = c.Original
		}
		if only != nil && m.Bands.Classify(p.MaxScale()) != *only {
			continue
		}
		accumulate(g, p)
	}
	return g
}

// accumulate adds one blob into the grid, evaluating only inside its
// 3-sigma bounding box.
func accumulate(g *Grid, p Params) {
	x0, x1, y0, y1 := gridBounds(p, g.W, g.H)
	for y := y0; y <= y1; y++ {
		row := y * g.W
		for x := x0; x <= x1; x++ {
			g.Data[row+x] += p.Eval(float64(x), float64(y))
		}
	}
}

// gridBounds clips a 3-sigma bounding box to pixel coordinates inside a
// w-by-h grid.
func gridBounds(b Bounded, w, h int) (x0, x1, y0, y1 int) {
	box := b.BoundingBox(sigmaCutoff)
	x0 = clampInt(int(math.Floor(box.MinX)), 0, w-1)
	x1 = clampInt(int(math.Ceil(box.MaxX)), 0, w-1)
	y0 = clampInt(int(math.Floor(box.MinY)), 0, h-1)
	y1 = clampInt(int(math.Ceil(box.MaxY)), 0, h-1)
	return x0, x1, y0, y1
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
