// Package config provides configuration loading and access for the perturbation engine.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all engine configuration parameters.
type Config struct {
	Grid      GridConfig      `yaml:"grid"`
	Bands     BandsConfig     `yaml:"bands"`
	Generator GeneratorConfig `yaml:"generator"`
	Gating    GatingConfig    `yaml:"gating"`
	Search    SearchConfig    `yaml:"search"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// GridConfig holds the render grid dimensions.
type GridConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// BandConfig describes one frequency band of the mixture.
type BandConfig struct {
	NominalScale float64 `yaml:"nominal_scale"`
	Count        int     `yaml:"count"`
	ColorTag     string  `yaml:"color_tag"`
}

// BandsConfig holds the three frequency bands.
type BandsConfig struct {
	Fine   BandConfig `yaml:"fine"`
	Medium BandConfig `yaml:"medium"`
	Coarse BandConfig `yaml:"coarse"`
}

// GeneratorConfig holds mixture generation parameters.
type GeneratorConfig struct {
	TargetVolume     float64     `yaml:"target_volume"`     // Integrated blob volume before jitter
	VolumeJitter     float64     `yaml:"volume_jitter"`     // Volume drawn from target * U[1-j, 1+j]
	ScaleJitter      float64     `yaml:"scale_jitter"`      // Scales drawn from nominal * U[1-j, 1+j]
	CorrelationMax   float64     `yaml:"correlation_max"`   // Correlation drawn from U[-1,1] * this
	AmplitudeMin     float64     `yaml:"amplitude_min"`
	AmplitudeMax     float64     `yaml:"amplitude_max"`
	PaddingFactor    float64     `yaml:"padding_factor"`    // Canvas margin = factor * nominal scale
	SeparationFactor float64     `yaml:"separation_factor"` // Desired separation = factor * (rA + rB)
	ObstacleWeight   float64     `yaml:"obstacle_weight"`   // Earlier-band repulsion multiplier
	Repulsion        float64     `yaml:"repulsion"`         // Force per unit penetration depth
	RelaxIterations  int         `yaml:"relax_iterations"`
	RelaxDamping     float64     `yaml:"relax_damping"`
	Exponent         float64     `yaml:"exponent"` // Display exponent applied before compression
	Noise            NoiseConfig `yaml:"noise"`
}

// NoiseConfig holds the optional simplex background texture parameters.
// Amplitude zero disables the layer entirely.
type NoiseConfig struct {
	Amplitude float64 `yaml:"amplitude"`
	Frequency float64 `yaml:"frequency"`
	Seed      int64   `yaml:"seed"`
}

// GatingConfig holds attribution gating parameters.
type GatingConfig struct {
	BlurSigmaFactor float64 `yaml:"blur_sigma_factor"` // Blur sigma = factor * band nominal scale
	BlurSigmaMin    float64 `yaml:"blur_sigma_min"`
	MaskEdgeLow     float64 `yaml:"mask_edge_low"`  // Smoothstep lower edge
	MaskEdgeHigh    float64 `yaml:"mask_edge_high"` // Smoothstep upper edge
}

// SearchConfig holds magnitude search budgets and ceilings.
type SearchConfig struct {
	Tolerance     float64            `yaml:"tolerance"`
	MaxRetries    int                `yaml:"max_retries"`
	MaxIterPerTry int                `yaml:"max_iter_per_try"`
	MaxMagnitude  MaxMagnitudeConfig `yaml:"max_magnitude"`
}

// MaxMagnitudeConfig holds per-band magnitude ceilings.
// Coarse perturbations need a larger ceiling to reach the same similarity drop.
type MaxMagnitudeConfig struct {
	Fine   float64 `yaml:"fine"`
	Medium float64 `yaml:"medium"`
	Coarse float64 `yaml:"coarse"`
}

// ServerConfig holds experiment server settings.
type ServerConfig struct {
	Addr              string `yaml:"addr"`
	DataDir           string `yaml:"data_dir"`
	Groups            int    `yaml:"groups"`
	AssignTimeoutMins int    `yaml:"assign_timeout_mins"`
}

// TelemetryConfig holds experiment output settings.
type TelemetryConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return cfg, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
