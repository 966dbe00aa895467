package field

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/prism/config"
)

// layoutPoint is a relaxing or already-placed blob center with its
// interaction radius.
type layoutPoint struct {
	x, y   float64
	radius float64
}

// relaxLayout places count points inside the padded canvas using
// force-directed relaxation. Each new point repels its peers and the
// obstacle points from earlier bands; force is linear in penetration depth
// of the desired separation. The result is a non-overlapping layout that is
// good enough visually without a packing solver.
func relaxLayout(rng *rand.Rand, count int, radius float64, w, h float64, obstacles []layoutPoint, gen config.GeneratorConfig) []layoutPoint {
	pad := gen.PaddingFactor * radius
	spanX := w - 2*pad
	spanY := h - 2*pad
	if spanX < 0 {
		spanX = 0
	}
	if spanY < 0 {
		spanY = 0
	}

	pts := make([]layoutPoint, count)
	vels := make([][2]float64, count)
	for i := range pts {
		pts[i] = layoutPoint{
			x:      pad + rng.Float64()*spanX,
			y:      pad + rng.Float64()*spanY,
			radius: radius,
		}
	}

	for iter := 0; iter < gen.RelaxIterations; iter++ {
		for i := range pts {
			var fx, fy float64

			// Peer repulsion
			for j := range pts {
				if j == i {
					continue
				}
				px, py := repulsionForce(pts[i], pts[j], gen)
				fx += px
				fy += py
			}

			// Obstacle repulsion from earlier bands, weighted stronger
			for _, ob := range obstacles {
				px, py := repulsionForce(pts[i], ob, gen)
				fx += px * gen.ObstacleWeight
				fy += py * gen.ObstacleWeight
			}

			vels[i][0] = (vels[i][0] + fx) * gen.RelaxDamping
			vels[i][1] = (vels[i][1] + fy) * gen.RelaxDamping
			pts[i].x = clamp(pts[i].x+vels[i][0], pad, w-pad)
			pts[i].y = clamp(pts[i].y+vels[i][1], pad, h-pad)
		}
	}

	return pts
}

// repulsionForce returns the force pushing p away from q. Zero outside the
// desired separation; linear in penetration depth inside it.
func repulsionForce(p, q layoutPoint, gen config.GeneratorConfig) (float64, float64) {
	dx := p.x - q.x
	dy := p.y - q.y
	dist := math.Hypot(dx, dy)
	desired := gen.SeparationFactor * (p.radius + q.radius)
	if dist >= desired {
		return 0, 0
	}
	if dist < 1e-9 {
		// Coincident points: push in an arbitrary fixed direction.
		return gen.Repulsion * desired, 0
	}
	depth := desired - dist
	f := gen.Repulsion * depth / dist
	return dx * f, dy * f
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
