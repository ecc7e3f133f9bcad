package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Aggregation modes for combining stage confidences.
const (
	AggregationWeightedMean     = "weighted_mean"
	AggregationVarianceWeighted = "variance_weighted"
)

// Scoring contains the confidence aggregation and calibration settings.
type Scoring struct {
	// Weights maps stage names (ocr, lingua, comply, layout, ...) to their
	// share of the raw score. They must sum to 1.
	Weights map[string]float64 `toml:"weights"`
	// Temperature scales logits during calibration. 1.0 leaves scores unchanged.
	Temperature float64 `toml:"temperature"`
	// Aggregation selects "weighted_mean" or "variance_weighted".
	Aggregation string `toml:"aggregation"`
	// VariancePenalty is subtracted per unit of stage disagreement when
	// aggregation is variance_weighted.
	VariancePenalty float64            `toml:"variance_penalty"`
	Thresholds      Thresholds         `toml:"thresholds"`
	DomainOverrides map[string]Overlay `toml:"domain_overrides"`
}

// Thresholds holds the lower bounds of the review tiers. Each bound is
// inclusive; scores below full_review route to manual correction.
type Thresholds struct {
	AutoAccept  float64 `toml:"auto_accept"`
	LightReview float64 `toml:"light_review"`
	FullReview  float64 `toml:"full_review"`
}

// Overlay adjusts tier bounds for a specific document domain.
type Overlay struct {
	AutoAccept  float64 `toml:"auto_accept"`
	LightReview float64 `toml:"light_review"`
}

// Pipeline contains stage execution settings.
type Pipeline struct {
	StageTimeoutSeconds int `toml:"stage_timeout_seconds"`
	RetryAttempts       int `toml:"retry_attempts"`
	RetryBackoffMillis  int `toml:"retry_backoff_millis"`
}

// Workflow contains daemon timing and worker pool settings.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for veridoc.
//
// Sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Scoring: confidence weights, calibration temperature, review tiers
//   - Pipeline: per-stage timeout and retry policy
//   - Workflow: worker pool sizing and heartbeat intervals
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Scoring  Scoring  `toml:"scoring"`
	Pipeline Pipeline `toml:"pipeline"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/veridoc/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. Validation failures are
// fatal at load time; weights are never silently normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("veridoc.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Scoring.Aggregation = strings.ToLower(strings.TrimSpace(c.Scoring.Aggregation))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath resolves ~ prefixes and returns an absolute, cleaned path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
