package field

import (
	"math/rand"

	"github.com/pthm-cable/prism/config"
)

// Mixture owns an ordered collection of components over a render grid.
// Insertion order is irrelevant to evaluation; it only keeps iteration and
// export stable.
type Mixture struct {
	W, H   int
	Bands  BandSet
	comps  []Component
	nextID int
}

// NewMixture creates an empty mixture.
func NewMixture(w, h int, bands BandSet) *Mixture {
	return &Mixture{W: w, H: h, Bands: bands}
}

// Components returns the live component slice. Callers mutate entries in
// place (the delta engine does); the slice header itself must not be kept
// across a GenerateAll.
func (m *Mixture) Components() []Component {
	return m.comps
}

// Component returns a pointer to the component with the given id, or nil.
func (m *Mixture) Component(id int) *Component {
	for i := range m.comps {
		if m.comps[i].ID == id {
			return &m.comps[i]
		}
	}
	return nil
}

// GenerateAll clears the mixture and populates every band, fine to coarse.
// Earlier bands become obstacles for later ones during relaxation.
func (m *Mixture) GenerateAll(gen config.GeneratorConfig, rng *rand.Rand) {
	m.comps = m.comps[:0]
	m.nextID = 0

	var placed []layoutPoint
	for _, band := range AllBands {
		bc := m.Bands.Get(band)
		if bc.Count <= 0 {
			continue
		}
		pts := relaxLayout(rng, bc.Count, bc.NominalScale, float64(m.W), float64(m.H), placed, gen)
		for _, pt := range pts {
			m.comps = append(m.comps, m.sampleComponent(pt, bc, gen, rng))
		}
		placed = append(placed, pts...)
	}
}

// sampleComponent draws shape and amplitude for one relaxed point.
// Amplitude is volume-normalized: a target integrated volume is drawn and
// divided by the blob area so per-pixel brightness stays roughly
// band-invariant despite the large scale spread between bands.
func (m *Mixture) sampleComponent(pt layoutPoint, bc BandConfig, gen config.GeneratorConfig, rng *rand.Rand) Component {
	jitter := func(j float64) float64 { return 1 - j + 2*j*rng.Float64() }

	sx := bc.NominalScale * jitter(gen.ScaleJitter)
	sy := bc.NominalScale * jitter(gen.ScaleJitter)
	corr := (2*rng.Float64() - 1) * gen.CorrelationMax

	volume := gen.TargetVolume * jitter(gen.VolumeJitter)
	amp := clamp(volume/(sx*sy), gen.AmplitudeMin, gen.AmplitudeMax)

	p := Params{
		CenterX:     pt.x,
		CenterY:     pt.y,
		ScaleX:      sx,
		ScaleY:      sy,
		Correlation: corr,
		Amplitude:   amp,
	}

	c := Component{
		ID:       m.nextID,
		Params:   p,
		Band:     m.Bands.Classify(p.MaxScale()),
		Original: p,
	}
	m.nextID++
	return c
}

// ResetToOriginal restores every component from its original snapshot and
// clears the perturbed flags.
func (m *Mixture) ResetToOriginal() {
	for i := range m.comps {
		m.comps[i].Reset()
	}
}
