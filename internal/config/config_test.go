package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"veridoc/internal/config"
	"veridoc/internal/services"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateRejectsBadWeightSum(t *testing.T) {
	cfg := config.Default()
	cfg.Scoring.Weights = map[string]float64{"ocr": 0.5, "lingua": 0.3}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected weight sum error")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidateAcceptsWeightSumWithinTolerance(t *testing.T) {
	cfg := config.Default()
	cfg.Scoring.Weights = map[string]float64{"ocr": 0.4, "lingua": 0.35, "comply": 0.25 + 5e-7}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sum within 1e-6 tolerance must pass: %v", err)
	}
}

func TestValidateRejectsUnorderedThresholds(t *testing.T) {
	cfg := config.Default()
	cfg.Scoring.Thresholds = config.Thresholds{AutoAccept: 0.70, LightReview: 0.80, FullReview: 0.90}
	if err := cfg.Validate(); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for unordered thresholds, got %v", err)
	}
}

func TestValidateRejectsNonPositiveTemperature(t *testing.T) {
	cfg := config.Default()
	cfg.Scoring.Temperature = 0
	if err := cfg.Validate(); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for zero temperature, got %v", err)
	}
}

func TestValidateRejectsHeartbeatTimeoutBelowInterval(t *testing.T) {
	cfg := config.Default()
	cfg.Workflow.HeartbeatTimeout = cfg.Workflow.HeartbeatInterval
	if err := cfg.Validate(); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadParsesFileAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[scoring.weights]
ocr = 0.5
lingua = 0.5

[scoring.thresholds]
auto_accept = 0.92
light_review = 0.81
full_review = 0.65
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config resolved at %s, got %s (exists=%v)", path, resolved, exists)
	}
	if cfg.Scoring.Weights["ocr"] != 0.5 {
		t.Fatalf("expected overridden weight, got %v", cfg.Scoring.Weights)
	}
	if cfg.Scoring.Thresholds.AutoAccept != 0.92 {
		t.Fatalf("expected overridden threshold, got %v", cfg.Scoring.Thresholds)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("expected absolute data dir, got %s", cfg.Paths.DataDir)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[scoring.weights]
ocr = 0.9
lingua = 0.9
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config must load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config must validate: %v", err)
	}
}
