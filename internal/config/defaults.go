package config

const (
	defaultDataDir             = "~/.local/share/veridoc/data"
	defaultLogDir              = "~/.local/share/veridoc/logs"
	defaultAPIBind             = "127.0.0.1:7519"
	defaultLogFormat           = "text"
	defaultLogLevel            = "info"
	defaultStageTimeoutSeconds = 60
	defaultRetryAttempts       = 3
	defaultRetryBackoffMillis  = 250
	defaultWorkers             = 2
	defaultQueuePollInterval   = 5
	defaultErrorRetryInterval  = 10
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Scoring: Scoring{
			Weights: map[string]float64{
				"ocr":    0.40,
				"lingua": 0.35,
				"comply": 0.25,
			},
			Temperature:     1.0,
			Aggregation:     AggregationWeightedMean,
			VariancePenalty: 0.15,
			Thresholds: Thresholds{
				AutoAccept:  0.90,
				LightReview: 0.80,
				FullReview:  0.70,
			},
			DomainOverrides: map[string]Overlay{
				"medical":   {AutoAccept: 0.95, LightReview: 0.85},
				"logistics": {AutoAccept: 0.85, LightReview: 0.75},
			},
		},
		Pipeline: Pipeline{
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
			RetryAttempts:       defaultRetryAttempts,
			RetryBackoffMillis:  defaultRetryBackoffMillis,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
