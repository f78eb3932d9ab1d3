// Package config provides configuration loading and validation for boldpost.
// The configuration is parsed once per invocation, validated before any
// matrix computation begins, and then passed as an immutable value into every
// pipeline component; no component reads ambient or global state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// AutoValue is the sentinel accepted by fields that support automatic
// estimation (head radius, dummy scans).
const AutoValue = "auto"

// Nuisance regressor strategies accepted by Denoise.Strategy.
const (
	Strategy24P      = "24P"
	Strategy27P      = "27P"
	Strategy36P      = "36P"
	StrategyACompCor = "acompcor"
	StrategyAROMA    = "aroma"
	StrategyCustom   = "custom"
	StrategyNone     = "none"
)

// ConfigError reports an invalid configuration value. It is raised during
// validation, before any run's matrices are touched, and is fatal for the
// invocation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Config represents the pipeline configuration loaded from YAML.
type Config struct {
	// Censoring parameters
	Censor struct {
		// FDThreshold is the framewise displacement threshold in mm.
		// 0 disables outlier marking, censoring and interpolation.
		FDThreshold float64 `yaml:"fdThreshold"`

		// HeadRadius is the effective head radius in mm used to convert
		// rotational motion to displacement, or "auto" to estimate it from
		// the brain mask volume.
		HeadRadius string `yaml:"headRadius"`

		// DummyScans is the number of leading non-steady-state frames to
		// remove, or "auto" to derive it from the preprocessing pipeline's
		// own detection.
		DummyScans string `yaml:"dummyScans"`

		// MinValidFrames is the minimum number of low-motion frames a run
		// must retain after censoring; below it the run stops early.
		MinValidFrames int `yaml:"minValidFrames"`
	} `yaml:"censor"`

	// Motion parameter filter
	MotionFilter struct {
		// Type is one of "none", "notch" or "lp".
		Type string `yaml:"type"`

		// BandStopMin and BandStopMax bound the stop band in breaths per
		// minute. For "lp", BandStopMin is the low-pass cutoff.
		BandStopMin float64 `yaml:"bandStopMin"`
		BandStopMax float64 `yaml:"bandStopMax"`

		// Order is the filter order.
		Order int `yaml:"order"`
	} `yaml:"motionFilter"`

	// Temporal filtering of BOLD and confounds
	Bandpass struct {
		// Disable turns bandpass filtering off entirely. ALFF is undefined
		// when it is set.
		Disable bool `yaml:"disable"`

		// LowPass and HighPass are cutoffs in Hz; 0 disables that side.
		LowPass  float64 `yaml:"lowPass"`
		HighPass float64 `yaml:"highPass"`

		// Order is the Butterworth filter order.
		Order int `yaml:"order"`
	} `yaml:"bandpass"`

	// Nuisance regression
	Denoise struct {
		// Strategy names the confound set: 24P, 27P, 36P, acompcor,
		// aroma, custom or none.
		Strategy string `yaml:"strategy"`
	} `yaml:"denoise"`

	// Output and execution parameters
	Output struct {
		// CombineRuns enables concatenation of same-task runs.
		CombineRuns bool `yaml:"combineRuns"`

		// SkipQCInterpolated gates writing of the denoised-interpolated
		// variant; when true only the censored output is produced.
		SkipQCInterpolated bool `yaml:"skipQcInterpolated"`

		// RandomSeed is passed through to downstream exact-time subsampling.
		RandomSeed int64 `yaml:"randomSeed"`

		// Workers bounds how many runs are processed concurrently.
		Workers int `yaml:"workers"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Censor.FDThreshold = 0.3
	cfg.Censor.HeadRadius = "50"
	cfg.Censor.DummyScans = "0"
	cfg.Censor.MinValidFrames = 10

	cfg.MotionFilter.Type = "none"
	cfg.MotionFilter.Order = 4

	cfg.Bandpass.LowPass = 0.1
	cfg.Bandpass.HighPass = 0.01
	cfg.Bandpass.Order = 2

	cfg.Denoise.Strategy = Strategy36P

	cfg.Output.Workers = runtime.NumCPU()

	return cfg
}

// LoadConfig loads configuration from a YAML file and validates it against
// the run's repetition time. If the file doesn't exist, it returns the
// default configuration.
func LoadConfig(configPath string, tr float64) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.Validate(tr); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(tr); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration against the run's sampling interval.
// Filter cutoffs at or above the Nyquist frequency are configuration errors:
// the run fails up front rather than proceeding with an unfiltered or
// misfiltered signal.
func (c *Config) Validate(tr float64) error {
	if tr <= 0 {
		return &ConfigError{Field: "tr", Reason: fmt.Sprintf("repetition time must be positive, got %g", tr)}
	}
	nyquist := 1.0 / (2.0 * tr)

	if c.Censor.FDThreshold < 0 {
		return &ConfigError{Field: "censor.fdThreshold", Reason: "must be non-negative"}
	}
	if c.Censor.MinValidFrames < 0 {
		return &ConfigError{Field: "censor.minValidFrames", Reason: "must be non-negative"}
	}
	if _, err := parseAutoFloat(c.Censor.HeadRadius); err != nil {
		return &ConfigError{Field: "censor.headRadius", Reason: err.Error()}
	}
	if _, err := parseAutoInt(c.Censor.DummyScans); err != nil {
		return &ConfigError{Field: "censor.dummyScans", Reason: err.Error()}
	}

	switch c.MotionFilter.Type {
	case "none":
	case "lp":
		if c.MotionFilter.BandStopMin <= 0 {
			return &ConfigError{Field: "motionFilter.bandStopMin", Reason: "low-pass cutoff must be positive"}
		}
		if cutoff := c.MotionFilter.BandStopMin / 60.0; cutoff >= nyquist {
			return &ConfigError{
				Field:  "motionFilter.bandStopMin",
				Reason: fmt.Sprintf("cutoff %g Hz is at or above Nyquist frequency %g Hz", cutoff, nyquist),
			}
		}
	case "notch":
		if c.MotionFilter.BandStopMin <= 0 || c.MotionFilter.BandStopMax <= 0 {
			return &ConfigError{Field: "motionFilter.bandStop", Reason: "both band-stop edges must be positive"}
		}
		if c.MotionFilter.BandStopMin >= c.MotionFilter.BandStopMax {
			return &ConfigError{Field: "motionFilter.bandStop", Reason: "bandStopMin must be below bandStopMax"}
		}
		if cutoff := c.MotionFilter.BandStopMax / 60.0; cutoff >= nyquist {
			return &ConfigError{
				Field:  "motionFilter.bandStopMax",
				Reason: fmt.Sprintf("cutoff %g Hz is at or above Nyquist frequency %g Hz", cutoff, nyquist),
			}
		}
	default:
		return &ConfigError{
			Field:  "motionFilter.type",
			Reason: fmt.Sprintf("unknown filter type %q (want none, notch or lp)", c.MotionFilter.Type),
		}
	}
	if c.MotionFilter.Type != "none" && c.MotionFilter.Order <= 0 {
		return &ConfigError{Field: "motionFilter.order", Reason: "must be positive"}
	}

	if !c.Bandpass.Disable {
		if c.Bandpass.LowPass < 0 || c.Bandpass.HighPass < 0 {
			return &ConfigError{Field: "bandpass", Reason: "cutoffs must be non-negative"}
		}
		if c.Bandpass.LowPass > 0 && c.Bandpass.LowPass >= nyquist {
			return &ConfigError{
				Field:  "bandpass.lowPass",
				Reason: fmt.Sprintf("cutoff %g Hz is at or above Nyquist frequency %g Hz", c.Bandpass.LowPass, nyquist),
			}
		}
		if c.Bandpass.HighPass > 0 && c.Bandpass.HighPass >= nyquist {
			return &ConfigError{
				Field:  "bandpass.highPass",
				Reason: fmt.Sprintf("cutoff %g Hz is at or above Nyquist frequency %g Hz", c.Bandpass.HighPass, nyquist),
			}
		}
		if c.Bandpass.LowPass > 0 && c.Bandpass.HighPass > 0 && c.Bandpass.HighPass >= c.Bandpass.LowPass {
			return &ConfigError{Field: "bandpass", Reason: "highPass cutoff must be below lowPass cutoff"}
		}
		if c.Bandpass.Order <= 0 {
			return &ConfigError{Field: "bandpass.order", Reason: "must be positive"}
		}
	}

	switch c.Denoise.Strategy {
	case Strategy24P, Strategy27P, Strategy36P, StrategyACompCor, StrategyAROMA, StrategyCustom, StrategyNone:
	default:
		return &ConfigError{
			Field:  "denoise.strategy",
			Reason: fmt.Sprintf("unknown nuisance-regressor strategy %q", c.Denoise.Strategy),
		}
	}

	if c.Output.Workers <= 0 {
		return &ConfigError{Field: "output.workers", Reason: "must be positive"}
	}

	return nil
}

// BandpassEnabled reports whether any temporal filtering will occur.
func (c *Config) BandpassEnabled() bool {
	return !c.Bandpass.Disable && (c.Bandpass.LowPass > 0 || c.Bandpass.HighPass > 0)
}

// HeadRadiusValue returns the configured head radius in mm and whether it
// should instead be estimated from the brain mask.
func (c *Config) HeadRadiusValue() (radius float64, auto bool) {
	v, _ := parseAutoFloat(c.Censor.HeadRadius)
	if v < 0 {
		return 0, true
	}
	return v, false
}

// DummyScansValue returns the configured dummy scan count and whether it
// should instead be derived from the confound matrix.
func (c *Config) DummyScansValue() (n int, auto bool) {
	v, _ := parseAutoInt(c.Censor.DummyScans)
	if v < 0 {
		return 0, true
	}
	return v, false
}

// parseAutoFloat parses a float field that also accepts "auto".
// Auto is reported as -1.
func parseAutoFloat(s string) (float64, error) {
	if s == AutoValue {
		return -1, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("want a number or %q, got %q", AutoValue, s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be positive, got %g", v)
	}
	return v, nil
}

// parseAutoInt parses an integer field that also accepts "auto".
// Auto is reported as -1.
func parseAutoInt(s string) (int, error) {
	if s == AutoValue {
		return -1, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("want an integer or %q, got %q", AutoValue, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("must be non-negative, got %d", v)
	}
	return v, nil
}
