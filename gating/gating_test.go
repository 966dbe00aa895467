package gating

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/prism/config"
	"github.com/pthm-cable/prism/field"
)

func testBandSet() field.BandSet {
	return field.BandSet{
		Fine:   field.BandConfig{NominalScale: 15, Count: 2},
		Medium: field.BandConfig{NominalScale: 25, Count: 3},
		Coarse: field.BandConfig{NominalScale: 50, Count: 4},
	}
}

func testGatingConfig() config.GatingConfig {
	return config.GatingConfig{
		BlurSigmaFactor: 0.25,
		BlurSigmaMin:    1.0,
		MaskEdgeLow:     0.3,
		MaskEdgeHigh:    0.7,
	}
}

func generateMixture(t *testing.T, seed int64) *field.Mixture {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading default config: %v", err)
	}
	m := field.NewMixture(200, 200, testBandSet())
	m.GenerateAll(cfg.Generator, rand.New(rand.NewSource(seed)))
	return m
}

func renderBands(m *field.Mixture, state field.RenderState) BandGrids {
	return BandGrids{
		Fine:   m.RenderBandField(field.BandFine, state),
		Medium: m.RenderBandField(field.BandMedium, state),
		Coarse: m.RenderBandField(field.BandCoarse, state),
	}
}

// ---------- Attribution weights ----------

func TestAttributionWeights_SumToOne(t *testing.T) {
	m := generateMixture(t, 1)
	weights := AttributionWeights(renderBands(m, field.StateOriginal), m.Bands, testGatingConfig())

	for i := range weights.Fine.Data {
		sum := weights.Fine.Data[i] + weights.Medium.Data[i] + weights.Coarse.Data[i]
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("weights at index %d sum to %f", i, sum)
		}
	}
}

func TestAttributionWeights_EmptyFieldSplitsEqually(t *testing.T) {
	empty := BandGrids{
		Fine:   field.NewGrid(20, 20),
		Medium: field.NewGrid(20, 20),
		Coarse: field.NewGrid(20, 20),
	}
	weights := AttributionWeights(empty, testBandSet(), testGatingConfig())

	for i := range weights.Fine.Data {
		for _, v := range []float64{weights.Fine.Data[i], weights.Medium.Data[i], weights.Coarse.Data[i]} {
			if math.Abs(v-1.0/3) > 1e-12 {
				t.Fatalf("expected equal attribution on empty field, got %f", v)
			}
		}
	}
}

func TestAttributionWeights_IsolatedBandDominates(t *testing.T) {
	// Only the coarse band has content: its weight should win near the blob.
	p := field.Params{CenterX: 100, CenterY: 100, ScaleX: 50, ScaleY: 50, Amplitude: 1}
	snap := &field.Snapshot{
		Width: 200, Height: 200, BandConfigs: testBandSet(),
		Components: []field.Component{{ID: 0, Params: p, Band: field.BandCoarse, Original: p}},
	}
	m, err := field.FromSnapshot(snap)
	if err != nil {
		t.Fatal(err)
	}

	weights := AttributionWeights(renderBands(m, field.StateOriginal), m.Bands, testGatingConfig())

	// Sample on the blob's flank where the gradient is strong.
	i := 100*200 + 60
	if weights.Coarse.Data[i] < 0.9 {
		t.Errorf("coarse weight %f on isolated coarse blob, expected near 1", weights.Coarse.Data[i])
	}
}

// ---------- Masks ----------

func TestComputeMasks_InUnitRange(t *testing.T) {
	m := generateMixture(t, 2)
	masks := ComputeMasks(renderBands(m, field.StateOriginal), m.Bands, testGatingConfig())

	for _, band := range field.AllBands {
		g := masks.Get(band)
		for i, v := range g.Data {
			if v < 0 || v > 1 {
				t.Fatalf("band %s mask value %f at index %d outside [0, 1]", band, v, i)
			}
		}
	}
}

func TestComputeMasks_SharpensWeights(t *testing.T) {
	// With smoothstep edges 0.3/0.7, the equal-attribution weight of 1/3
	// maps to a small but nonzero mask value.
	empty := BandGrids{
		Fine:   field.NewGrid(10, 10),
		Medium: field.NewGrid(10, 10),
		Coarse: field.NewGrid(10, 10),
	}
	masks := ComputeMasks(empty, testBandSet(), testGatingConfig())

	want := smoothstep(0.3, 0.7, 1.0/3)
	for i, v := range masks.Fine.Data {
		if math.Abs(v-want) > 1e-12 {
			t.Fatalf("mask value %f at index %d, expected %f", v, i, want)
		}
	}
}

// ---------- Smoothstep ----------

func TestSmoothstep_Edges(t *testing.T) {
	if v := smoothstep(0.3, 0.7, 0.0); v != 0 {
		t.Errorf("below low edge: got %f", v)
	}
	if v := smoothstep(0.3, 0.7, 0.3); v != 0 {
		t.Errorf("at low edge: got %f", v)
	}
	if v := smoothstep(0.3, 0.7, 0.7); v != 1 {
		t.Errorf("at high edge: got %f", v)
	}
	if v := smoothstep(0.3, 0.7, 1.0); v != 1 {
		t.Errorf("above high edge: got %f", v)
	}
	if v := smoothstep(0.3, 0.7, 0.5); math.Abs(v-0.5) > 1e-12 {
		t.Errorf("midpoint: got %f, expected 0.5", v)
	}
}

func TestSmoothstep_Monotone(t *testing.T) {
	prev := -1.0
	for v := 0.0; v <= 1.0; v += 0.01 {
		s := smoothstep(0.3, 0.7, v)
		if s < prev {
			t.Fatalf("smoothstep not monotone at %f", v)
		}
		prev = s
	}
}

// ---------- Gated composition ----------

func TestApplyGatedPerturbation_IdentityWhenUnperturbed(t *testing.T) {
	m := generateMixture(t, 3)
	cache := BuildCache(m, testGatingConfig())

	// Current equals original: the gated result must be the original total.
	out := ApplyGatedPerturbation(cache.OriginalTotal, cache.OriginalBands,
		renderBands(m, field.StateCurrent), cache.Masks)

	for i := range out.Data {
		if math.Abs(out.Data[i]-cache.OriginalTotal.Data[i]) > 1e-12 {
			t.Fatalf("gated identity violated at index %d", i)
		}
	}
}

func TestApplyGatedPerturbation_FullMasksPassEverything(t *testing.T) {
	m := generateMixture(t, 4)
	cache := BuildCache(m, testGatingConfig())

	// Perturb one coarse component directly.
	for i := range m.Components() {
		c := &m.Components()[i]
		if c.Band == field.BandCoarse {
			c.CenterX += 20
			break
		}
	}
	perturbed := renderBands(m, field.StateCurrent)

	ones := field.NewGrid(200, 200)
	for i := range ones.Data {
		ones.Data[i] = 1
	}
	fullMasks := BandGrids{Fine: ones, Medium: ones, Coarse: ones}

	out := ApplyGatedPerturbation(cache.OriginalTotal, cache.OriginalBands, perturbed, fullMasks)
	want := m.RenderLinear(field.StateCurrent)

	// With every mask fully open the gated result is exactly the perturbed
	// total, because the band fields partition the linear render.
	for i := range out.Data {
		if math.Abs(out.Data[i]-want.Data[i]) > 1e-9 {
			t.Fatalf("full-mask composition diverges at index %d: %f vs %f", i, out.Data[i], want.Data[i])
		}
	}
}

func TestApplyGatedPerturbation_ZeroMasksBlockEverything(t *testing.T) {
	m := generateMixture(t, 5)
	cache := BuildCache(m, testGatingConfig())

	m.Components()[0].Amplitude *= 2
	perturbed := renderBands(m, field.StateCurrent)

	zero := field.NewGrid(200, 200)
	zeroMasks := BandGrids{Fine: zero, Medium: zero, Coarse: zero}

	out := ApplyGatedPerturbation(cache.OriginalTotal, cache.OriginalBands, perturbed, zeroMasks)
	for i := range out.Data {
		if out.Data[i] != cache.OriginalTotal.Data[i] {
			t.Fatalf("zero masks leaked perturbation at index %d", i)
		}
	}
}

func TestPerformGatedPerturbation_MatchesCachedPath(t *testing.T) {
	m := generateMixture(t, 6)
	m.Components()[0].CenterX += 5

	oneShot := PerformGatedPerturbation(m, testGatingConfig())

	// The one-shot path builds its cache from the same original tuples, so
	// it must agree with an explicit cache composition.
	cache := BuildCache(m, testGatingConfig())
	explicit := ApplyGatedPerturbation(cache.OriginalTotal, cache.OriginalBands,
		renderBands(m, field.StateCurrent), cache.Masks)

	for i := range oneShot.Data {
		if oneShot.Data[i] != explicit.Data[i] {
			t.Fatalf("one-shot path diverges from cached path at index %d", i)
		}
	}
}
