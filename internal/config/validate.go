package config

import (
	"fmt"
	"math"

	"veridoc/internal/services"
)

const weightSumTolerance = 1e-6

// Validate ensures the configuration is usable. Invalid scoring settings are
// rejected here rather than normalized, so a bad deployment fails at startup
// instead of routing regions with skewed scores.
func (c *Config) Validate() error {
	if err := c.validateScoring(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScoring() error {
	if len(c.Scoring.Weights) == 0 {
		return services.Wrap(services.ErrConfiguration, "config", "scoring", "scoring.weights must not be empty", nil)
	}
	sum := 0.0
	for name, weight := range c.Scoring.Weights {
		if weight < 0 || weight > 1 {
			return services.Wrap(services.ErrConfiguration, "config", "scoring",
				fmt.Sprintf("scoring.weights.%s must be between 0 and 1", name), nil)
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return services.Wrap(services.ErrConfiguration, "config", "scoring",
			fmt.Sprintf("scoring.weights must sum to 1, got %.6f", sum), nil)
	}
	if c.Scoring.Temperature <= 0 {
		return services.Wrap(services.ErrConfiguration, "config", "scoring", "scoring.temperature must be positive", nil)
	}
	switch c.Scoring.Aggregation {
	case AggregationWeightedMean, AggregationVarianceWeighted:
	default:
		return services.Wrap(services.ErrConfiguration, "config", "scoring",
			fmt.Sprintf("scoring.aggregation must be weighted_mean or variance_weighted, got %q", c.Scoring.Aggregation), nil)
	}
	if c.Scoring.VariancePenalty < 0 {
		return services.Wrap(services.ErrConfiguration, "config", "scoring", "scoring.variance_penalty must be >= 0", nil)
	}
	if err := validateThresholds("scoring.thresholds", c.Scoring.Thresholds.AutoAccept, c.Scoring.Thresholds.LightReview, c.Scoring.Thresholds.FullReview); err != nil {
		return err
	}
	for domain, overlay := range c.Scoring.DomainOverrides {
		full := c.Scoring.Thresholds.FullReview
		if err := validateThresholds("scoring.domain_overrides."+domain, overlay.AutoAccept, overlay.LightReview, full); err != nil {
			return err
		}
	}
	return nil
}

func validateThresholds(section string, autoAccept, lightReview, fullReview float64) error {
	bounds := map[string]float64{
		"auto_accept":  autoAccept,
		"light_review": lightReview,
		"full_review":  fullReview,
	}
	for name, value := range bounds {
		if value < 0 || value > 1 {
			return services.Wrap(services.ErrConfiguration, "config", "thresholds",
				fmt.Sprintf("%s.%s must be between 0 and 1", section, name), nil)
		}
	}
	if !(autoAccept > lightReview && lightReview > fullReview) {
		return services.Wrap(services.ErrConfiguration, "config", "thresholds",
			fmt.Sprintf("%s must be strictly ordered: auto_accept > light_review > full_review", section), nil)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.StageTimeoutSeconds <= 0 {
		return services.Wrap(services.ErrConfiguration, "config", "pipeline", "pipeline.stage_timeout_seconds must be positive", nil)
	}
	if c.Pipeline.RetryAttempts < 0 {
		return services.Wrap(services.ErrConfiguration, "config", "pipeline", "pipeline.retry_attempts must be >= 0", nil)
	}
	if c.Pipeline.RetryBackoffMillis <= 0 {
		return services.Wrap(services.ErrConfiguration, "config", "pipeline", "pipeline.retry_backoff_millis must be positive", nil)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers <= 0 {
		return services.Wrap(services.ErrConfiguration, "config", "workflow", "workflow.workers must be positive", nil)
	}
	if c.Workflow.QueuePollInterval <= 0 {
		return services.Wrap(services.ErrConfiguration, "config", "workflow", "workflow.queue_poll_interval must be positive", nil)
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return services.Wrap(services.ErrConfiguration, "config", "workflow", "workflow.error_retry_interval must be positive", nil)
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return services.Wrap(services.ErrConfiguration, "config", "workflow", "workflow.heartbeat_interval must be positive", nil)
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return services.Wrap(services.ErrConfiguration, "config", "workflow", "workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval", nil)
	}
	return nil
}
