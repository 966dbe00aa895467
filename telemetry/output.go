package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/prism/config"
)

// OutputManager handles structured experiment output with CSV logging.
type OutputManager struct {
	dir       string
	trialFile *os.File

	trialHeaderWritten bool
}

// NewOutputManager creates a new output manager and initializes the output
// directory. Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	trialPath := filepath.Join(dir, "trials.csv")
	f, err := os.Create(trialPath)
	if err != nil {
		return nil, fmt.Errorf("creating trials.csv: %w", err)
	}
	om.trialFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	configPath := filepath.Join(om.dir, "config.yaml")
	return cfg.WriteYAML(configPath)
}

// WriteTrial appends one trial record to trials.csv.
func (om *OutputManager) WriteTrial(t TrialRecord) error {
	if om == nil {
		return nil
	}

	records := []TrialRecord{t}

	if !om.trialHeaderWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, om.trialFile); err != nil {
			return fmt.Errorf("writing trial: %w", err)
		}
		om.trialHeaderWritten = true
	} else {
		// Subsequent writes skip headers
		if err := gocsv.MarshalWithoutHeaders(records, om.trialFile); err != nil {
			return fmt.Errorf("writing trial: %w", err)
		}
	}

	return nil
}

// WriteSummary writes the aggregated condition summaries to summary.csv.
func (om *OutputManager) WriteSummary(stats []SummaryStats) error {
	if om == nil {
		return nil
	}

	path := filepath.Join(om.dir, "summary.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating summary.csv: %w", err)
	}
	defer f.Close()

	if err := gocsv.Marshal(&stats, f); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil || om.trialFile == nil {
		return nil
	}
	return om.trialFile.Close()
}
