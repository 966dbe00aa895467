// Package perturb implements the perturbation delta engine: it draws random
// magnitude-independent change directions for a subset of mixture components
// and replays them at any magnitude relative to each component's original
// snapshot.
package perturb

import (
	"errors"
	"math"
	"math/rand"

	"github.com/pthm-cable/prism/field"
)

// Attribute identifies one perturbable parameter group.
type Attribute int

const (
	AttrPosition Attribute = iota
	AttrRotation
	AttrStretch
	AttrAmplitude
)

// Coefficients weight each attribute type in [0, 1]. A zero coefficient
// disables the attribute.
type Coefficients struct {
	Position  float64 `json:"position"`
	Rotation  float64 `json:"rotation"`
	Amplitude float64 `json:"amplitude"`
	Stretch   float64 `json:"stretch"`
}

// Enabled reports whether any attribute carries weight.
func (c Coefficients) Enabled() bool {
	return c.Position > 0 || c.Rotation > 0 || c.Amplitude > 0 || c.Stretch > 0
}

// Per-attribute base rates converting one magnitude unit into parameter
// units. Position moves in pixels; rotation shifts the correlation
// coefficient; stretch and amplitude scale through log-ratios so magnitude
// zero is an exact identity.
const (
	positionRate  = 1.0
	rotationRate  = 0.02
	stretchRate   = 0.03
	amplitudeRate = 0.03
)

// correlationLimit keeps perturbed correlations inside the open (-1, 1)
// interval the evaluator requires.
const correlationLimit = 0.95

// Delta is one component's randomly drawn change direction. All members are
// unit-scale: the engine multiplies them by magnitude and the attribute
// coefficients at apply time.
type Delta struct {
	ComponentID     int     `json:"componentId"`
	PositionOffsetX float64 `json:"positionOffsetX"` // unit vector component
	PositionOffsetY float64 `json:"positionOffsetY"`
	RotationDelta   float64 `json:"rotationDelta"` // in [-1, 1]
	ScaleRatio      float64 `json:"scaleRatio"`    // log-ratio in [-1, 1]
	AmplitudeRatio  float64 `json:"amplitudeRatio"`
}

// Options selects which components a delta set targets.
type Options struct {
	Bands  []field.Band // target bands, at least one
	Ratio  float64      // fraction of matching components to perturb, in (0, 1]
	Coeffs Coefficients
	Local  bool // cluster selection around a random seed component
}

// Engine owns one delta set over one mixture. It is single-goroutine state;
// concurrent searches each build their own engine from their own mixture.
type Engine struct {
	mix    *field.Mixture
	rng    *rand.Rand
	coeffs Coefficients
	deltas []Delta
}

// ErrNoSelection is returned when options match zero components.
var ErrNoSelection = errors.New("perturb: no components match the selection")

// NewEngine creates an engine over a mixture with its own random stream.
func NewEngine(mix *field.Mixture, rng *rand.Rand) *Engine {
	return &Engine{mix: mix, rng: rng}
}

// Deltas returns the current delta set.
func (e *Engine) Deltas() []Delta {
	return e.deltas
}

// GeneratePerturbationDeltas discards any previous delta set and draws a
// fresh one: it selects round(ratio * matching) components, then one
// unit-scale delta per component. Directions only; magnitude comes later.
func (e *Engine) GeneratePerturbationDeltas(opts Options) error {
	matching := e.matchingComponents(opts.Bands)
	if len(matching) == 0 {
		return ErrNoSelection
	}

	n := int(math.Round(opts.Ratio * float64(len(matching))))
	if n < 1 {
		n = 1
	}
	if n > len(matching) {
		n = len(matching)
	}

	var selected []*field.Component
	if opts.Local {
		selected = e.selectLocalCluster(matching, n)
	} else {
		e.rng.Shuffle(len(matching), func(i, j int) {
			matching[i], matching[j] = matching[j], matching[i]
		})
		selected = matching[:n]
	}

	e.coeffs = opts.Coeffs
	e.deltas = e.deltas[:0]
	for _, c := range selected {
		theta := e.rng.Float64() * 2 * math.Pi
		e.deltas = append(e.deltas, Delta{
			ComponentID:     c.ID,
			PositionOffsetX: math.Cos(theta),
			PositionOffsetY: math.Sin(theta),
			RotationDelta:   2*e.rng.Float64() - 1,
			ScaleRatio:      2*e.rng.Float64() - 1,
			AmplitudeRatio:  2*e.rng.Float64() - 1,
		})
	}
	return nil
}

// ApplyStoredPerturbation replays the delta set at the given magnitude.
// Every parameter is computed from the component's original snapshot, never
// from its current state, so calls at different magnitudes are
// order-independent and side-effect free relative to each other.
func (e *Engine) ApplyStoredPerturbation(magnitude float64) {
	for _, d := range e.deltas {
		c := e.mix.Component(d.ComponentID)
		if c == nil {
			continue
		}
		orig := c.Original

		p := orig
		if e.coeffs.Position > 0 {
			step := magnitude * e.coeffs.Position * positionRate
			p.CenterX = orig.CenterX + step*d.PositionOffsetX
			p.CenterY = orig.CenterY + step*d.PositionOffsetY
		}
		if e.coeffs.Rotation > 0 {
			corr := orig.Correlation + magnitude*e.coeffs.Rotation*rotationRate*d.RotationDelta
			p.Correlation = clamp(corr, -correlationLimit, correlationLimit)
		}
		if e.coeffs.Stretch > 0 {
			// Area-preserving stretch: one axis grows by the ratio the
			// other shrinks by.
			r := math.Exp(magnitude * e.coeffs.Stretch * stretchRate * d.ScaleRatio)
			p.ScaleX = orig.ScaleX * r
			p.ScaleY = orig.ScaleY / r
		}
		if e.coeffs.Amplitude > 0 {
			p.Amplitude = orig.Amplitude * math.Exp(magnitude*e.coeffs.Amplitude*amplitudeRate*d.AmplitudeRatio)
		}

		c.Params = p
		c.IsPerturbed = magnitude != 0
	}
}

// ResetToOriginal restores every component of the mixture.
func (e *Engine) ResetToOriginal() {
	e.mix.ResetToOriginal()
}

// matchingComponents returns pointers to components whose current
// classification falls in any target band.
func (e *Engine) matchingComponents(bands []field.Band) []*field.Component {
	want := make(map[field.Band]bool, len(bands))
	for _, b := range bands {
		want[b] = true
	}
	comps := e.mix.Components()
	var out []*field.Component
	for i := range comps {
		if want[e.mix.Bands.Classify(comps[i].MaxScale())] {
			out = append(out, &comps[i])
		}
	}
	return out
}

// selectLocalCluster picks a random seed component and the n-1 matching
// components nearest to it, a cheap stand-in for spatial clustering.
func (e *Engine) selectLocalCluster(matching []*field.Component, n int) []*field.Component {
	seed := matching[e.rng.Intn(len(matching))]

	type distComp struct {
		d float64
		c *field.Component
	}
	ranked := make([]distComp, 0, len(matching))
	for _, c := range matching {
		dx := c.CenterX - seed.CenterX
		dy := c.CenterY - seed.CenterY
		ranked = append(ranked, distComp{d: dx*dx + dy*dy, c: c})
	}
	// Selection sort of the n nearest; component counts are tiny.
	for i := 0; i < n; i++ {
		min := i
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].d < ranked[min].d {
				min = j
			}
		}
		ranked[i], ranked[min] = ranked[min], ranked[i]
	}
	out := make([]*field.Component, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].c
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
