// Package telemetry records magnitude-search trials and aggregates
// experiment statistics as CSV output.
package telemetry

import "log/slog"

// TrialRecord is one magnitude-search outcome, written as a CSV row.
type TrialRecord struct {
	TrialID        string  `csv:"trial_id"`
	ParticipantID  string  `csv:"participant_id"`
	Band           string  `csv:"band"`
	TargetMetric   float64 `csv:"target_metric"`
	AchievedMetric float64 `csv:"achieved_metric"`
	AchievedDiff   float64 `csv:"achieved_diff"`
	Magnitude      float64 `csv:"magnitude"`
	Retries        int     `csv:"retries"`
	Iterations     int     `csv:"iterations"`
	Converged      bool    `csv:"converged"`
	ElapsedMs      float64 `csv:"elapsed_ms"`
	EngagementChk  bool    `csv:"engagement_check"`
}

// LogValue implements slog.LogValuer for structured logging.
func (t TrialRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("trial_id", t.TrialID),
		slog.String("band", t.Band),
		slog.Float64("target", t.TargetMetric),
		slog.Float64("achieved", t.AchievedMetric),
		slog.Float64("diff", t.AchievedDiff),
		slog.Float64("magnitude", t.Magnitude),
		slog.Int("retries", t.Retries),
		slog.Int("iterations", t.Iterations),
		slog.Bool("converged", t.Converged),
		slog.Float64("elapsed_ms", t.ElapsedMs),
	)
}
