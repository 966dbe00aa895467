package gating

import (
	"math"

	"github.com/pthm-cable/prism/field"
)

// gaussianKernel builds a normalized 1-D kernel with support ±3 sigma.
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	k := make([]float64, 2*radius+1)
	var sum float64
	inv := 1 / (2 * sigma * sigma)
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) * inv)
		k[i+radius] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// Blur applies a separable Gaussian blur and returns a new grid. Edges
// renormalize over the in-bounds part of the kernel so borders keep their
// energy instead of darkening.
func Blur(g *field.Grid, sigma float64) *field.Grid {
	if sigma <= 0 {
		return g.Clone()
	}
	k := gaussianKernel(sigma)
	radius := len(k) / 2

	tmp := field.NewGrid(g.W, g.H)
	out := field.NewGrid(g.W, g.H)

	// Horizontal pass
	for y := 0; y < g.H; y++ {
		row := y * g.W
		for x := 0; x < g.W; x++ {
			var acc, wsum float64
			for i := -radius; i <= radius; i++ {
				xx := x + i
				if xx < 0 || xx >= g.W {
					continue
				}
				w := k[i+radius]
				acc += w * g.Data[row+xx]
				wsum += w
			}
			tmp.Data[row+x] = acc / wsum
		}
	}

	// Vertical pass
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			var acc, wsum float64
			for i := -radius; i <= radius; i++ {
				yy := y + i
				if yy < 0 || yy >= g.H {
					continue
				}
				w := k[i+radius]
				acc += w * tmp.Data[yy*g.W+x]
				wsum += w
			}
			out.Data[y*g.W+x] = acc / wsum
		}
	}

	return out
}
