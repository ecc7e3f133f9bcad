// Package scoring turns per-stage confidences into one calibrated trust score
// and a review-tier routing decision.
package scoring

import (
	"fmt"
	"math"

	"veridoc/internal/config"
	"veridoc/internal/jobs"
	"veridoc/internal/services"
)

const (
	weightSumTolerance = 1e-6
	logitClamp         = 1e-7
)

// Engine holds the validated scoring configuration. Weights are fixed at
// construction; a weight sum off unity is a configuration error, never
// silently renormalized.
type Engine struct {
	weights         map[string]float64
	temperature     float64
	aggregation     string
	variancePenalty float64
	thresholds      config.Thresholds
	overrides       map[string]config.Overlay
}

// Result is the scoring outcome for one region. Epistemic and Aleatoric are
// diagnostic only and never influence routing.
type Result struct {
	RawScore   float64
	TrustScore float64
	Action     jobs.ReviewAction
	Epistemic  float64
	Aleatoric  float64
}

// NewEngine validates and captures the scoring section of the configuration.
func NewEngine(cfg config.Scoring) (*Engine, error) {
	if len(cfg.Weights) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "scoring", "new", "no confidence weights configured", nil)
	}
	sum := 0.0
	for name, weight := range cfg.Weights {
		if weight < 0 || weight > 1 {
			return nil, services.Wrap(services.ErrConfiguration, "scoring", "new",
				fmt.Sprintf("weight %q out of range: %g", name, weight), nil)
		}
		sum += weight
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return nil, services.Wrap(services.ErrConfiguration, "scoring", "new",
			fmt.Sprintf("weights sum to %g, expected 1", sum), nil)
	}
	if cfg.Temperature <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "scoring", "new",
			fmt.Sprintf("temperature must be positive, got %g", cfg.Temperature), nil)
	}

	weights := make(map[string]float64, len(cfg.Weights))
	for name, weight := range cfg.Weights {
		weights[name] = weight
	}
	overrides := make(map[string]config.Overlay, len(cfg.DomainOverrides))
	for domain, overlay := range cfg.DomainOverrides {
		overrides[domain] = overlay
	}
	return &Engine{
		weights:         weights,
		temperature:     cfg.Temperature,
		aggregation:     cfg.Aggregation,
		variancePenalty: cfg.VariancePenalty,
		thresholds:      cfg.Thresholds,
		overrides:       overrides,
	}, nil
}

// Score aggregates, calibrates, and routes one region's stage confidences.
// Any hard stage failure forces MANUAL_CORRECTION regardless of score.
func (e *Engine) Score(confidences map[string]float64, domain string, stageFailed bool) Result {
	raw := e.Aggregate(confidences)
	trust := e.Calibrate(raw)
	epistemic, aleatoric := e.decompose(confidences)

	action := e.Route(trust, domain)
	if stageFailed {
		action = jobs.ActionManualCorrection
	}
	return Result{
		RawScore:   raw,
		TrustScore: trust,
		Action:     action,
		Epistemic:  epistemic,
		Aleatoric:  aleatoric,
	}
}

// Aggregate combines stage confidences into a raw ensemble score. A stage
// with a configured weight but no reported confidence contributes zero.
func (e *Engine) Aggregate(confidences map[string]float64) float64 {
	mean := 0.0
	for name, weight := range e.weights {
		mean += weight * confidences[name]
	}
	if e.aggregation == config.AggregationVarianceWeighted {
		mean -= e.variancePenalty * e.weightedStddev(confidences, mean)
	}
	return clampUnit(mean)
}

// Calibrate applies temperature scaling: sigmoid(logit(raw)/T). A temperature
// of 1 is the identity up to floating point.
func (e *Engine) Calibrate(raw float64) float64 {
	if e.temperature == 1 {
		return clampUnit(raw)
	}
	clamped := math.Min(math.Max(raw, logitClamp), 1-logitClamp)
	logit := math.Log(clamped / (1 - clamped))
	return 1 / (1 + math.Exp(-logit/e.temperature))
}

// Route maps a calibrated score onto the four review tiers. Boundaries are
// inclusive lower bounds: exactly 0.90 is AUTO_ACCEPT under the defaults.
// Domain overrides tighten or loosen the top two boundaries.
func (e *Engine) Route(trust float64, domain string) jobs.ReviewAction {
	autoAccept := e.thresholds.AutoAccept
	lightReview := e.thresholds.LightReview
	if overlay, ok := e.overrides[domain]; ok {
		autoAccept = overlay.AutoAccept
		lightReview = overlay.LightReview
	}
	switch {
	case trust >= autoAccept:
		return jobs.ActionAutoAccept
	case trust >= lightReview:
		return jobs.ActionLightReview
	case trust >= e.thresholds.FullReview:
		return jobs.ActionFullReview
	default:
		return jobs.ActionManualCorrection
	}
}

// decompose splits uncertainty into a weighted-variance term (disagreement
// between stages) and a raw spread term (max minus min confidence).
func (e *Engine) decompose(confidences map[string]float64) (epistemic, aleatoric float64) {
	if len(e.weights) == 0 {
		return 0, 0
	}
	mean := 0.0
	for name, weight := range e.weights {
		mean += weight * confidences[name]
	}
	epistemic = e.weightedStddev(confidences, mean)
	epistemic *= epistemic

	first := true
	min, max := 0.0, 0.0
	for name := range e.weights {
		value := confidences[name]
		if first {
			min, max = value, value
			first = false
			continue
		}
		if value < min {
			min = value
		}
		if value > max {
			max = value
		}
	}
	return epistemic, max - min
}

func (e *Engine) weightedStddev(confidences map[string]float64, mean float64) float64 {
	variance := 0.0
	for name, weight := range e.weights {
		diff := confidences[name] - mean
		variance += weight * diff * diff
	}
	return math.Sqrt(variance)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
