// Package main runs batch magnitude-search experiments: it sweeps target
// similarities across bands, runs the trials over a worker pool, and writes
// per-trial and per-condition CSV results.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/prism/config"
	"github.com/pthm-cable/prism/field"
	"github.com/pthm-cable/prism/perturb"
	"github.com/pthm-cable/prism/search"
	"github.com/pthm-cable/prism/telemetry"
)

// formatDuration formats a duration as compact h/m/s.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	targetsFlag := flag.String("targets", "0.85,0.90,0.95", "Comma-separated target similarities")
	bandsFlag := flag.String("bands", "fine,medium,coarse", "Comma-separated bands to sweep")
	trials := flag.Int("trials", 20, "Trials per (band, target) condition")
	workers := flag.Int("workers", 0, "Parallel workers (0 = GOMAXPROCS)")
	outputDir := flag.String("output", "", "Output directory for results")
	seed := flag.Int64("seed", 42, "Base RNG seed")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Cfg()

	targets, err := parseFloats(*targetsFlag)
	if err != nil {
		log.Fatalf("invalid --targets: %v", err)
	}
	bands, err := parseBands(*bandsFlag)
	if err != nil {
		log.Fatalf("invalid --bands: %v", err)
	}

	output, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		log.Fatalf("failed to create output manager: %v", err)
	}
	defer output.Close()

	if err := output.WriteConfig(cfg); err != nil {
		log.Printf("failed to write config snapshot: %v", err)
	}

	// Build one request per trial, each with its own freshly generated
	// mixture so conditions do not share layouts.
	bandSet := field.BandSetFromConfig(cfg.Bands)

	rng := rand.New(rand.NewSource(*seed))
	var reqs []search.Request
	for _, band := range bands {
		for _, target := range targets {
			for t := 0; t < *trials; t++ {
				mix := field.NewMixture(cfg.Grid.Width, cfg.Grid.Height, bandSet)
				mix.GenerateAll(cfg.Generator, rng)

				reqs = append(reqs, search.Request{
					TargetMetric:    target,
					Band:            string(band),
					MixtureSnapshot: mix.Snapshot(),
					Width:           cfg.Grid.Width,
					Height:          cfg.Grid.Height,
					BandConfigs:     bandSet,
					Coefficients:    perturb.Coefficients{Position: 1, Rotation: 1, Amplitude: 1, Stretch: 1},
					Ratio:           1,
					Seed:            rng.Int63(),
				})
			}
		}
	}

	fmt.Printf("Running %d trials (%d bands x %d targets x %d) on %d workers\n",
		len(reqs), len(bands), len(targets), *trials, *workers)

	start := time.Now()
	results := search.RunBatch(reqs, cfg, *workers)
	elapsed := time.Since(start)

	var records []telemetry.TrialRecord
	failures := 0
	for i, br := range results {
		if br.Err != nil {
			failures++
			log.Printf("trial %d failed: %v", i, br.Err)
			continue
		}
		req := reqs[i]
		tolerance := req.Tolerance
		if tolerance <= 0 {
			tolerance = cfg.Search.Tolerance
		}
		rec := telemetry.TrialRecord{
			TrialID:        uuid.NewString(),
			Band:           req.Band,
			TargetMetric:   req.TargetMetric,
			AchievedMetric: br.Result.AchievedMetric,
			AchievedDiff:   br.Result.AchievedDiff,
			Magnitude:      br.Result.Magnitude,
			Retries:        br.Result.Retries,
			Iterations:     br.Result.Iterations,
			Converged:      br.Result.AchievedDiff < tolerance,
		}
		records = append(records, rec)
		if err := output.WriteTrial(rec); err != nil {
			log.Printf("failed to write trial: %v", err)
		}
	}

	summary := telemetry.Summarize(records)
	if err := output.WriteSummary(summary); err != nil {
		log.Printf("failed to write summary: %v", err)
	}

	fmt.Printf("\nCompleted %d trials in %s (%d failures)\n", len(records), formatDuration(elapsed), failures)
	for _, s := range summary {
		fmt.Printf("  %-7s target=%.3f  converged %d/%d (%.0f%%)  diff p50=%.2e p90=%.2e  mag p50=%.2f\n",
			s.Band, s.TargetMetric, s.Converged, s.Trials, 100*s.ConvergedRate,
			s.DiffP50, s.DiffP90, s.MagnitudeP50)
	}
	fmt.Printf("\nResults written to: %s\n", output.Dir())
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", part, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no values")
	}
	return out, nil
}

func parseBands(s string) ([]field.Band, error) {
	var out []field.Band
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b, err := field.ParseBand(part)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no bands")
	}
	return out, nil
}
