package telemetry

import (
	"math"
	"testing"
)

func trial(band string, target, diff, mag float64, iters int, converged bool) TrialRecord {
	return TrialRecord{
		Band:         band,
		TargetMetric: target,
		AchievedDiff: diff,
		Magnitude:    mag,
		Iterations:   iters,
		Converged:    converged,
	}
}

func TestSummarize_Empty(t *testing.T) {
	if out := Summarize(nil); len(out) != 0 {
		t.Errorf("expected no summaries for no trials, got %d", len(out))
	}
}

func TestSummarize_GroupsByBandAndTarget(t *testing.T) {
	trials := []TrialRecord{
		trial("fine", 0.9, 1e-5, 4, 12, true),
		trial("fine", 0.9, 2e-5, 6, 15, true),
		trial("fine", 0.8, 1e-3, 9, 80, false),
		trial("coarse", 0.9, 5e-5, 20, 30, true),
	}

	out := Summarize(trials)
	if len(out) != 3 {
		t.Fatalf("expected 3 condition groups, got %d", len(out))
	}

	// Deterministic order: band ascending, then target ascending.
	if out[0].Band != "coarse" || out[0].TargetMetric != 0.9 {
		t.Errorf("group 0 = %s/%f", out[0].Band, out[0].TargetMetric)
	}
	if out[1].Band != "fine" || out[1].TargetMetric != 0.8 {
		t.Errorf("group 1 = %s/%f", out[1].Band, out[1].TargetMetric)
	}
	if out[2].Band != "fine" || out[2].TargetMetric != 0.9 {
		t.Errorf("group 2 = %s/%f", out[2].Band, out[2].TargetMetric)
	}

	fine09 := out[2]
	if fine09.Trials != 2 || fine09.Converged != 2 {
		t.Errorf("fine/0.9 counts wrong: %+v", fine09)
	}
	if math.Abs(fine09.ConvergedRate-1) > 1e-12 {
		t.Errorf("fine/0.9 converged rate %f", fine09.ConvergedRate)
	}
	if math.Abs(fine09.MagnitudeMean-5) > 1e-12 {
		t.Errorf("fine/0.9 magnitude mean %f, expected 5", fine09.MagnitudeMean)
	}
	if math.Abs(fine09.DiffMean-1.5e-5) > 1e-18 {
		t.Errorf("fine/0.9 diff mean %g, expected 1.5e-5", fine09.DiffMean)
	}
	if math.Abs(fine09.IterationsMean-13.5) > 1e-12 {
		t.Errorf("fine/0.9 iterations mean %f, expected 13.5", fine09.IterationsMean)
	}

	fine08 := out[1]
	if fine08.Trials != 1 || fine08.Converged != 0 || fine08.ConvergedRate != 0 {
		t.Errorf("fine/0.8 counts wrong: %+v", fine08)
	}
}

func TestSummarize_Deterministic(t *testing.T) {
	trials := []TrialRecord{
		trial("medium", 0.95, 1e-4, 3, 10, true),
		trial("fine", 0.95, 1e-4, 3, 10, true),
		trial("coarse", 0.85, 1e-4, 3, 10, true),
		trial("coarse", 0.95, 1e-4, 3, 10, true),
	}

	first := Summarize(trials)
	for run := 0; run < 10; run++ {
		again := Summarize(trials)
		for i := range first {
			if again[i].Band != first[i].Band || again[i].TargetMetric != first[i].TargetMetric {
				t.Fatalf("group order changed across runs at index %d", i)
			}
		}
	}
}
