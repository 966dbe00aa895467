package field

import (
	"fmt"

	"github.com/pthm-cable/prism/config"
)

// Band identifies one of the three frequency bands of a mixture.
type Band string

const (
	BandFine   Band = "fine"
	BandMedium Band = "medium"
	BandCoarse Band = "coarse"
)

// AllBands lists the bands in fine-to-coarse order. Generation places fine
// components first so coarser blobs relax around them as obstacles.
var AllBands = [3]Band{BandFine, BandMedium, BandCoarse}

// ParseBand validates a band name from the wire.
func ParseBand(s string) (Band, error) {
	switch Band(s) {
	case BandFine, BandMedium, BandCoarse:
		return Band(s), nil
	}
	return "", fmt.Errorf("unknown band %q", s)
}

// BandConfig describes one band's generation parameters.
type BandConfig struct {
	NominalScale float64 `json:"nominalScale"`
	Count        int     `json:"count"`
	ColorTag     string  `json:"colorTag"`
}

// BandSet holds the configuration of all three bands.
type BandSet struct {
	Fine   BandConfig `json:"fine"`
	Medium BandConfig `json:"medium"`
	Coarse BandConfig `json:"coarse"`
}

// BandSetFromConfig converts the YAML band configuration to a BandSet.
func BandSetFromConfig(bc config.BandsConfig) BandSet {
	conv := func(b config.BandConfig) BandConfig {
		return BandConfig{NominalScale: b.NominalScale, Count: b.Count, ColorTag: b.ColorTag}
	}
	return BandSet{Fine: conv(bc.Fine), Medium: conv(bc.Medium), Coarse: conv(bc.Coarse)}
}

// Get returns the configuration for a band.
func (bs BandSet) Get(b Band) BandConfig {
	switch b {
	case BandFine:
		return bs.Fine
	case BandMedium:
		return bs.Medium
	default:
		return bs.Coarse
	}
}

// Classify assigns a band by nearest nominal scale. Membership is always
// re-derived from the current max(scaleX, scaleY) rather than read from a
// stored label, so a component whose scale drifted across a band boundary
// under perturbation reclassifies automatically.
func (bs BandSet) Classify(maxScale float64) Band {
	best := BandFine
	bestDist := abs(maxScale - bs.Fine.NominalScale)
	if d := abs(maxScale - bs.Medium.NominalScale); d < bestDist {
		best, bestDist = BandMedium, d
	}
	if d := abs(maxScale - bs.Coarse.NominalScale); d < bestDist {
		best = BandCoarse
	}
	return best
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
