package search

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/prism/config"
	"github.com/pthm-cable/prism/field"
	"github.com/pthm-cable/prism/perturb"
)

// ErrInvalidConfiguration is returned before any search work begins when a
// request cannot be satisfied as stated.
var ErrInvalidConfiguration = errors.New("search: invalid configuration")

// Request is the wire contract for one magnitude search. It carries
// everything the search reads; no request shares state with another.
//
// Zero values for Ratio, Tolerance, MaxRetries, MaxIterPerTry, Width, and
// Height mean "absent from the JSON body" and are filled from defaults
// before validation: Ratio becomes 1 (perturb the whole band), the rest
// come from the server config. A negative Ratio or one above 1 is rejected.
type Request struct {
	TargetMetric      float64              `json:"targetMetric"`
	Band              string               `json:"band"`
	MixtureSnapshot   *field.Snapshot      `json:"mixtureSnapshot"`
	Width             int                  `json:"width"`
	Height            int                  `json:"height"`
	BandConfigs       field.BandSet        `json:"bandConfigs"`
	Coefficients      perturb.Coefficients `json:"coefficients"`
	Ratio             float64              `json:"ratio"`
	Local             bool                 `json:"local"`
	IsEngagementCheck bool                 `json:"isEngagementCheck"`
	Tolerance         float64              `json:"tolerance"`
	MaxRetries        int                  `json:"maxRetries"`
	MaxIterPerTry     int                  `json:"maxIterPerTry"`
	Seed              int64                `json:"seed"`
}

// Response is the wire result: the gated field plus the magnitude and
// metric actually achieved.
type Response struct {
	Data           []float64 `json:"data"`
	Magnitude      float64   `json:"magnitude"`
	AchievedMetric float64   `json:"achievedMetric"`
}

// Result is the in-process form of a finished search. AchievedDiff tells
// the caller whether the target was hit within tolerance or the result is
// best-effort.
type Result struct {
	FinalField     *field.Grid
	Magnitude      float64
	AchievedMetric float64
	AchievedDiff   float64
	Retries        int
	Iterations     int
}

// Response converts a result to the wire form.
func (r *Result) Response() *Response {
	return &Response{
		Data:           r.FinalField.Data,
		Magnitude:      r.Magnitude,
		AchievedMetric: r.AchievedMetric,
	}
}

// normalize fills request defaults from config and validates the result.
func (r *Request) normalize(cfg *config.Config) (field.Band, error) {
	band, err := field.ParseBand(r.Band)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if r.MixtureSnapshot == nil {
		return "", fmt.Errorf("%w: missing mixture snapshot", ErrInvalidConfiguration)
	}
	if !r.Coefficients.Enabled() {
		return "", fmt.Errorf("%w: no perturbation attribute enabled", ErrInvalidConfiguration)
	}
	if r.TargetMetric < 0 || r.TargetMetric > 1 {
		return "", fmt.Errorf("%w: target metric %v outside [0, 1]", ErrInvalidConfiguration, r.TargetMetric)
	}
	if r.Ratio == 0 {
		r.Ratio = 1
	}
	if r.Ratio < 0 || r.Ratio > 1 {
		return "", fmt.Errorf("%w: ratio %v outside (0, 1]", ErrInvalidConfiguration, r.Ratio)
	}
	if r.Tolerance <= 0 {
		r.Tolerance = cfg.Search.Tolerance
	}
	if r.MaxRetries <= 0 {
		r.MaxRetries = cfg.Search.MaxRetries
	}
	if r.MaxIterPerTry <= 0 {
		r.MaxIterPerTry = cfg.Search.MaxIterPerTry
	}
	if r.Width == 0 {
		r.Width = r.MixtureSnapshot.Width
	}
	if r.Height == 0 {
		r.Height = r.MixtureSnapshot.Height
	}
	if r.Width != r.MixtureSnapshot.Width || r.Height != r.MixtureSnapshot.Height {
		return "", fmt.Errorf("%w: request dimensions %dx%d do not match snapshot %dx%d",
			ErrInvalidConfiguration, r.Width, r.Height, r.MixtureSnapshot.Width, r.MixtureSnapshot.Height)
	}
	return band, nil
}

// maxMagnitude returns the band-dependent bisection ceiling. The coarse
// band gets a larger ceiling: coarser perturbations need proportionally
// more magnitude for the same similarity drop.
func maxMagnitude(band field.Band, cfg *config.Config) (float64, error) {
	var m float64
	switch band {
	case field.BandFine:
		m = cfg.Search.MaxMagnitude.Fine
	case field.BandMedium:
		m = cfg.Search.MaxMagnitude.Medium
	case field.BandCoarse:
		m = cfg.Search.MaxMagnitude.Coarse
	}
	if m <= 0 {
		return 0, fmt.Errorf("%w: non-positive magnitude ceiling for band %s", ErrInvalidConfiguration, band)
	}
	return m, nil
}
