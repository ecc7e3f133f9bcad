package testsupport

import (
	"path/filepath"
	"testing"

	"veridoc/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithWeights overrides the stage confidence weights on the test config.
func WithWeights(weights map[string]float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Scoring.Weights = weights
	}
}

// WithTemperature overrides the calibration temperature on the test config.
func WithTemperature(temperature float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Scoring.Temperature = temperature
	}
}

// WithThresholds overrides the routing thresholds on the test config.
func WithThresholds(autoAccept, lightReview, fullReview float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Scoring.Thresholds = config.Thresholds{
			AutoAccept:  autoAccept,
			LightReview: lightReview,
			FullReview:  fullReview,
		}
	}
}
