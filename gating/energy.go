package gating

import "github.com/pthm-cable/prism/field"

// GradientEnergy computes the squared gradient magnitude of a grid using
// central differences, falling back to one-sided differences at the edges.
func GradientEnergy(g *field.Grid) *field.Grid {
	out := field.NewGrid(g.W, g.H)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			var gx, gy float64

			switch {
			case g.W == 1:
				gx = 0
			case x == 0:
				gx = g.At(1, y) - g.At(0, y)
			case x == g.W-1:
				gx = g.At(g.W-1, y) - g.At(g.W-2, y)
			default:
				gx = (g.At(x+1, y) - g.At(x-1, y)) / 2
			}

			switch {
			case g.H == 1:
				gy = 0
			case y == 0:
				gy = g.At(x, 1) - g.At(x, 0)
			case y == g.H-1:
				gy = g.At(x, g.H-1) - g.At(x, g.H-2)
			default:
				gy = (g.At(x, y+1) - g.At(x, y-1)) / 2
			}

			out.Data[y*g.W+x] = gx*gx + gy*gy
		}
	}
	return out
}
