package telemetry

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SummaryStats aggregates a set of trial outcomes for one condition
// (band x target metric).
type SummaryStats struct {
	Band          string  `csv:"band"`
	TargetMetric  float64 `csv:"target_metric"`
	Trials        int     `csv:"trials"`
	Converged     int     `csv:"converged"`
	ConvergedRate float64 `csv:"converged_rate"`

	DiffMean float64 `csv:"diff_mean"`
	DiffP50  float64 `csv:"diff_p50"`
	DiffP90  float64 `csv:"diff_p90"`

	MagnitudeMean float64 `csv:"magnitude_mean"`
	MagnitudeP50  float64 `csv:"magnitude_p50"`

	IterationsMean float64 `csv:"iterations_mean"`
}

// Summarize aggregates trials grouped by (band, target). Grouping keys are
// emitted in deterministic order.
func Summarize(trials []TrialRecord) []SummaryStats {
	type key struct {
		band   string
		target float64
	}
	groups := make(map[key][]TrialRecord)
	for _, t := range trials {
		k := key{t.Band, t.TargetMetric}
		groups[k] = append(groups[k], t)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].band != keys[j].band {
			return keys[i].band < keys[j].band
		}
		return keys[i].target < keys[j].target
	})

	out := make([]SummaryStats, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		diffs := make([]float64, len(g))
		mags := make([]float64, len(g))
		iters := make([]float64, len(g))
		converged := 0
		for i, t := range g {
			diffs[i] = t.AchievedDiff
			mags[i] = t.Magnitude
			iters[i] = float64(t.Iterations)
			if t.Converged {
				converged++
			}
		}
		sort.Float64s(diffs)
		sort.Float64s(mags)

		out = append(out, SummaryStats{
			Band:           k.band,
			TargetMetric:   k.target,
			Trials:         len(g),
			Converged:      converged,
			ConvergedRate:  float64(converged) / float64(len(g)),
			DiffMean:       stat.Mean(diffs, nil),
			DiffP50:        stat.Quantile(0.5, stat.Empirical, diffs, nil),
			DiffP90:        stat.Quantile(0.9, stat.Empirical, diffs, nil),
			MagnitudeMean:  stat.Mean(mags, nil),
			MagnitudeP50:   stat.Quantile(0.5, stat.Empirical, mags, nil),
			IterationsMean: stat.Mean(iters, nil),
		})
	}
	return out
}
