// Package gating implements soft attribution gating: per-band gradient
// energy, per-pixel attribution weights, and sharpened gating masks that
// confine a band's perturbation to the pixels that band dominates.
package gating

import (
	"github.com/pthm-cable/prism/config"
	"github.com/pthm-cable/prism/field"
)

// BandGrids holds one grid per frequency band.
type BandGrids struct {
	Fine   *field.Grid
	Medium *field.Grid
	Coarse *field.Grid
}

// Get returns the grid for a band.
func (b *BandGrids) Get(band field.Band) *field.Grid {
	switch band {
	case field.BandFine:
		return b.Fine
	case field.BandMedium:
		return b.Medium
	default:
		return b.Coarse
	}
}

// Cache holds every quantity that depends only on the unperturbed mixture:
// the original total, the per-band originals, and the gating masks. It is
// built once per search invocation and read-only afterward; regenerating
// the mixture invalidates it.
type Cache struct {
	OriginalTotal *field.Grid
	OriginalBands BandGrids
	Masks         BandGrids
}

// BuildCache renders the original band fields and derives the gating masks.
func BuildCache(mix *field.Mixture, gc config.GatingConfig) *Cache {
	bands := BandGrids{
		Fine:   mix.RenderBandField(field.BandFine, field.StateOriginal),
		Medium: mix.RenderBandField(field.BandMedium, field.StateOriginal),
		Coarse: mix.RenderBandField(field.BandCoarse, field.StateOriginal),
	}
	return &Cache{
		OriginalTotal: mix.RenderLinear(field.StateOriginal),
		OriginalBands: bands,
		Masks:         ComputeMasks(bands, mix.Bands, gc),
	}
}

// ComputeMasks blurs each band field, takes gradient energy, normalizes the
// three energies into per-pixel attribution weights summing to one, and
// sharpens them through a smoothstep threshold.
func ComputeMasks(bands BandGrids, bs field.BandSet, gc config.GatingConfig) BandGrids {
	energy := BandGrids{
		Fine:   GradientEnergy(Blur(bands.Fine, blurSigma(bs.Fine.NominalScale, gc))),
		Medium: GradientEnergy(Blur(bands.Medium, blurSigma(bs.Medium.NominalScale, gc))),
		Coarse: GradientEnergy(Blur(bands.Coarse, blurSigma(bs.Coarse.NominalScale, gc))),
	}

	w, h := bands.Fine.W, bands.Fine.H
	masks := BandGrids{
		Fine:   field.NewGrid(w, h),
		Medium: field.NewGrid(w, h),
		Coarse: field.NewGrid(w, h),
	}

	for i := range energy.Fine.Data {
		ef := energy.Fine.Data[i]
		em := energy.Medium.Data[i]
		ec := energy.Coarse.Data[i]
		sum := ef + em + ec

		var wf, wm, wc float64
		if sum > 0 {
			wf, wm, wc = ef/sum, em/sum, ec/sum
		} else {
			// No gradient energy anywhere: attribute equally.
			wf, wm, wc = 1.0/3, 1.0/3, 1.0/3
		}

		masks.Fine.Data[i] = smoothstep(gc.MaskEdgeLow, gc.MaskEdgeHigh, wf)
		masks.Medium.Data[i] = smoothstep(gc.MaskEdgeLow, gc.MaskEdgeHigh, wm)
		masks.Coarse.Data[i] = smoothstep(gc.MaskEdgeLow, gc.MaskEdgeHigh, wc)
	}

	return masks
}

// AttributionWeights exposes the normalized (unsharpened) per-pixel weights.
// Diagnostic; the engine itself composes through the smoothstepped masks.
func AttributionWeights(bands BandGrids, bs field.BandSet, gc config.GatingConfig) BandGrids {
	energy := BandGrids{
		Fine:   GradientEnergy(Blur(bands.Fine, blurSigma(bs.Fine.NominalScale, gc))),
		Medium: GradientEnergy(Blur(bands.Medium, blurSigma(bs.Medium.NominalScale, gc))),
		Coarse: GradientEnergy(Blur(bands.Coarse, blurSigma(bs.Coarse.NominalScale, gc))),
	}
	for i := range energy.Fine.Data {
		sum := energy.Fine.Data[i] + energy.Medium.Data[i] + energy.Coarse.Data[i]
		if sum > 0 {
			energy.Fine.Data[i] /= sum
			energy.Medium.Data[i] /= sum
			energy.Coarse.Data[i] /= sum
		} else {
			energy.Fine.Data[i] = 1.0 / 3
			energy.Medium.Data[i] = 1.0 / 3
			energy.Coarse.Data[i] = 1.0 / 3
		}
	}
	return energy
}

// ApplyGatedPerturbation composes the gated total: the original plus each
// band's delta attenuated by that band's mask. A band's perturbation only
// shows through on pixels attributed to it.
func ApplyGatedPerturbation(originalTotal *field.Grid, originalBands, perturbedBands, masks BandGrids) *field.Grid {
	out := originalTotal.Clone()
	for _, band := range field.AllBands {
		orig := originalBands.Get(band)
		pert := perturbedBands.Get(band)
		mask := masks.Get(band)
		for i := range out.Data {
			out.Data[i] += mask.Data[i] * (pert.Data[i] - orig.Data[i])
		}
	}
	return out
}

// PerformGatedPerturbation is the one-shot entry point: it recomputes the
// bands, energies, and masks from scratch, then composes the gated total
// from the mixture's current (perturbed) state. Searches that evaluate many
// magnitudes against one original should build a Cache instead.
func PerformGatedPerturbation(mix *field.Mixture, gc config.GatingConfig) *field.Grid {
	cache := BuildCache(mix, gc)
	perturbed := BandGrids{
		Fine:   mix.RenderBandField(field.BandFine, field.StateCurrent),
		Medium: mix.RenderBandField(field.BandMedium, field.StateCurrent),
		Coarse: mix.RenderBandField(field.BandCoarse, field.StateCurrent),
	}
	return ApplyGatedPerturbation(cache.OriginalTotal, cache.OriginalBands, perturbed, cache.Masks)
}

// blurSigma derives the per-band blur width from the band's nominal scale.
func blurSigma(nominalScale float64, gc config.GatingConfig) float64 {
	sigma := gc.BlurSigmaFactor * nominalScale
	if sigma < gc.BlurSigmaMin {
		sigma = gc.BlurSigmaMin
	}
	return sigma
}

// smoothstep is the cubic Hermite threshold between the two edges.
func smoothstep(lo, hi, v float64) float64 {
	if hi <= lo {
		if v < lo {
			return 0
		}
		return 1
	}
	t := (v - lo) / (hi - lo)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return t * t * (3 - 2*t)
}
