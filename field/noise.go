package field

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/prism/config"
)

// NoiseLayer is a deterministic simplex background texture mixed under the
// Gaussian mixture. Amplitude zero produces no layer.
type NoiseLayer struct {
	noise     opensimplex.Noise
	amplitude float64
	frequency float64
}

// NewNoiseLayer builds the layer from config, or returns nil when disabled.
func NewNoiseLayer(nc config.NoiseConfig) *NoiseLayer {
	if nc.Amplitude <= 0 {
		return nil
	}
	return &NoiseLayer{
		noise:     opensimplex.NewNormalized(nc.Seed),
		amplitude: nc.Amplitude,
		frequency: nc.Frequency,
	}
}

// AddTo accumulates the texture into a grid.
func (n *NoiseLayer) AddTo(g *Grid) {
	if n == nil {
		return
	}
	for y := 0; y < g.H; y++ {
		row := y * g.W
		fy := float64(y) * n.frequency
		for x := 0; x < g.W; x++ {
			g.Data[row+x] += n.amplitude * n.noise.Eval2(float64(x)*n.frequency, fy)
		}
	}
}
