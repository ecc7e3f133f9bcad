package scoring

import (
	"errors"
	"math"
	"testing"

	"veridoc/internal/config"
	"veridoc/internal/jobs"
	"veridoc/internal/services"
)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(config.Default().Scoring)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func TestNewEngineRejectsBadWeightSum(t *testing.T) {
	cfg := config.Default().Scoring
	cfg.Weights = map[string]float64{"ocr": 0.5, "lingua": 0.6}

	if _, err := NewEngine(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewEngineAcceptsSumWithinTolerance(t *testing.T) {
	cfg := config.Default().Scoring
	cfg.Weights = map[string]float64{"ocr": 0.5, "lingua": 0.5 + 5e-7}

	if _, err := NewEngine(cfg); err != nil {
		t.Fatalf("expected tolerance to absorb rounding, got %v", err)
	}
}

func TestNewEngineRejectsNonPositiveTemperature(t *testing.T) {
	cfg := config.Default().Scoring
	cfg.Temperature = 0

	if _, err := NewEngine(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAggregateWeightedMean(t *testing.T) {
	engine := defaultEngine(t)
	raw := engine.Aggregate(map[string]float64{"ocr": 0.9, "lingua": 0.9, "comply": 0.95})

	if math.Abs(raw-0.9025) > 1e-9 {
		t.Fatalf("expected 0.9025, got %f", raw)
	}
}

func TestAggregateMissingStageContributesZero(t *testing.T) {
	engine := defaultEngine(t)
	raw := engine.Aggregate(map[string]float64{"ocr": 1.0})

	if math.Abs(raw-0.40) > 1e-9 {
		t.Fatalf("expected 0.40, got %f", raw)
	}
}

func TestAggregateVariancePenalty(t *testing.T) {
	cfg := config.Default().Scoring
	cfg.Aggregation = config.AggregationVarianceWeighted
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	uniform := engine.Aggregate(map[string]float64{"ocr": 0.9, "lingua": 0.9, "comply": 0.9})
	if math.Abs(uniform-0.9) > 1e-9 {
		t.Fatalf("agreeing stages should pay no penalty, got %f", uniform)
	}

	mean := defaultEngine(t).Aggregate(map[string]float64{"ocr": 0.95, "lingua": 0.6, "comply": 0.9})
	spread := engine.Aggregate(map[string]float64{"ocr": 0.95, "lingua": 0.6, "comply": 0.9})
	if spread >= mean {
		t.Fatalf("disagreeing stages should score below the plain mean: %f >= %f", spread, mean)
	}
}

func TestCalibrateIdentityAtUnitTemperature(t *testing.T) {
	engine := defaultEngine(t)
	for _, raw := range []float64{0, 0.25, 0.5, 0.9025, 1} {
		if got := engine.Calibrate(raw); math.Abs(got-raw) > 1e-9 {
			t.Fatalf("Calibrate(%f) = %f, expected identity at T=1", raw, got)
		}
	}
}

func TestCalibrateTemperatureSoftensScores(t *testing.T) {
	cfg := config.Default().Scoring
	cfg.Temperature = 2.0
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	high := engine.Calibrate(0.95)
	if high >= 0.95 || high <= 0.5 {
		t.Fatalf("expected softened high score in (0.5, 0.95), got %f", high)
	}
	low := engine.Calibrate(0.05)
	if low <= 0.05 || low >= 0.5 {
		t.Fatalf("expected softened low score in (0.05, 0.5), got %f", low)
	}
	if mid := engine.Calibrate(0.5); math.Abs(mid-0.5) > 1e-9 {
		t.Fatalf("midpoint must be a fixed point, got %f", mid)
	}
}

func TestCalibrateExtremesStayInRange(t *testing.T) {
	cfg := config.Default().Scoring
	cfg.Temperature = 0.5
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	for _, raw := range []float64{0, 1} {
		got := engine.Calibrate(raw)
		if got < 0 || got > 1 {
			t.Fatalf("Calibrate(%f) = %f out of range", raw, got)
		}
	}
}

func TestRouteBoundaries(t *testing.T) {
	engine := defaultEngine(t)
	cases := []struct {
		trust float64
		want  jobs.ReviewAction
	}{
		{0.95, jobs.ActionAutoAccept},
		{0.90, jobs.ActionAutoAccept},
		{0.8999, jobs.ActionLightReview},
		{0.80, jobs.ActionLightReview},
		{0.7999, jobs.ActionFullReview},
		{0.70, jobs.ActionFullReview},
		{0.6999, jobs.ActionManualCorrection},
		{0, jobs.ActionManualCorrection},
	}
	for _, tc := range cases {
		if got := engine.Route(tc.trust, "general"); got != tc.want {
			t.Errorf("Route(%f) = %s, want %s", tc.trust, got, tc.want)
		}
	}
}

func TestRouteDomainOverrides(t *testing.T) {
	engine := defaultEngine(t)

	if got := engine.Route(0.92, "medical"); got != jobs.ActionLightReview {
		t.Fatalf("medical domain should tighten auto-accept, got %s", got)
	}
	if got := engine.Route(0.86, "logistics"); got != jobs.ActionAutoAccept {
		t.Fatalf("logistics domain should loosen auto-accept, got %s", got)
	}
	if got := engine.Route(0.92, "unknown-domain"); got != jobs.ActionAutoAccept {
		t.Fatalf("unknown domain should use base thresholds, got %s", got)
	}
}

func TestScoreForceRoutesStageFailure(t *testing.T) {
	engine := defaultEngine(t)
	result := engine.Score(map[string]float64{"ocr": 0.99, "lingua": 0.99, "comply": 0.99}, "general", true)

	if result.Action != jobs.ActionManualCorrection {
		t.Fatalf("stage failure must force manual correction, got %s", result.Action)
	}
	if result.TrustScore < 0.9 {
		t.Fatalf("score itself stays honest, got %f", result.TrustScore)
	}
}

func TestScoreUncertaintyDiagnostics(t *testing.T) {
	engine := defaultEngine(t)

	agree := engine.Score(map[string]float64{"ocr": 0.9, "lingua": 0.9, "comply": 0.9}, "general", false)
	if agree.Epistemic > 1e-9 || agree.Aleatoric > 1e-9 {
		t.Fatalf("agreeing stages should report zero uncertainty, got %+v", agree)
	}

	disagree := engine.Score(map[string]float64{"ocr": 0.99, "lingua": 0.5, "comply": 0.9}, "general", false)
	if disagree.Epistemic <= 0 {
		t.Fatalf("expected positive epistemic term, got %f", disagree.Epistemic)
	}
	if math.Abs(disagree.Aleatoric-0.49) > 1e-9 {
		t.Fatalf("expected spread 0.49, got %f", disagree.Aleatoric)
	}
}

func TestSummarize(t *testing.T) {
	regions := []*jobs.Region{
		{TrustScore: 0.95, ReviewAction: jobs.ActionAutoAccept},
		{TrustScore: 0.85, ReviewAction: jobs.ActionLightReview},
		{TrustScore: 0.45, ReviewAction: jobs.ActionManualCorrection},
	}
	dist := Summarize(regions)

	if dist.Count != 3 {
		t.Fatalf("expected count 3, got %d", dist.Count)
	}
	if math.Abs(dist.Mean-0.75) > 1e-9 {
		t.Fatalf("expected mean 0.75, got %f", dist.Mean)
	}
	if dist.Min != 0.45 || dist.Max != 0.95 {
		t.Fatalf("unexpected min/max: %+v", dist)
	}
	if dist.Tiers[jobs.ActionAutoAccept] != 1 || dist.Tiers[jobs.ActionManualCorrection] != 1 {
		t.Fatalf("unexpected tier histogram: %+v", dist.Tiers)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	dist := Summarize(nil)
	if dist.Count != 0 || dist.Mean != 0 {
		t.Fatalf("unexpected empty distribution: %+v", dist)
	}
}
