// Package pipeline runs a job's regions through the stage adapters and scores
// the results. It is shared by the synchronous CLI path and the daemon's
// worker pool; it never touches the store.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"veridoc/internal/config"
	"veridoc/internal/jobs"
	"veridoc/internal/language"
	"veridoc/internal/logging"
	"veridoc/internal/scoring"
	"veridoc/internal/services"
	"veridoc/internal/stage"
)

// Output is the materialized result of one pipeline run, ready for
// jobs.Store.Complete.
type Output struct {
	Pages   []jobs.Page
	Regions []jobs.Region
}

// Orchestrator sequences ingest, OCR, lingua, and PII per region, degrading
// individual regions on persistent stage failure instead of aborting the job.
type Orchestrator struct {
	adapters stage.Adapters
	engine   *scoring.Engine
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// New builds an orchestrator from validated configuration.
func New(cfg *config.Config, adapters stage.Adapters, logger *slog.Logger) (*Orchestrator, error) {
	engine, err := scoring.NewEngine(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		adapters: adapters,
		engine:   engine,
		timeout:  time.Duration(cfg.Pipeline.StageTimeoutSeconds) * time.Second,
		attempts: cfg.Pipeline.RetryAttempts,
		backoff:  time.Duration(cfg.Pipeline.RetryBackoffMillis) * time.Millisecond,
		logger:   logger,
	}, nil
}

// Run executes the full pipeline for one job. Ingest failures and empty
// documents are job-fatal; all later stage failures degrade only the affected
// region, which is then force-routed to manual correction.
func (o *Orchestrator) Run(ctx context.Context, job *jobs.Job) (Output, error) {
	ctx = services.WithJobID(ctx, job.ID)
	log := logging.WithContext(ctx, o.logger)

	var layouts []stage.PageLayout
	err := o.runStage(ctx, stage.NameIngest, func(stageCtx context.Context) error {
		var ingestErr error
		layouts, ingestErr = o.adapters.Ingester.Ingest(stageCtx, job.FileRef)
		return ingestErr
	})
	if err != nil {
		return Output{}, services.Wrap(services.ErrIngest, stage.NameIngest, "run", "ingest failed", err)
	}
	if len(layouts) == 0 {
		return Output{}, services.Wrap(services.ErrIngest, stage.NameIngest, "run", "document produced no pages", nil)
	}

	var out Output
	for _, layout := range layouts {
		page := jobs.Page{
			ID:         uuid.NewString(),
			JobID:      job.ID,
			PageNumber: layout.PageNumber,
			SourceRef:  layout.SourceRef,
		}
		out.Pages = append(out.Pages, page)
		for _, regionLayout := range layout.Regions {
			region := o.processRegion(ctx, log, job, page, regionLayout)
			out.Regions = append(out.Regions, region)
		}
	}
	log.Info("pipeline run finished",
		logging.Int("pages", len(out.Pages)),
		logging.Int("regions", len(out.Regions)))
	return out, nil
}

func (o *Orchestrator) processRegion(ctx context.Context, log *slog.Logger, job *jobs.Job, page jobs.Page, layout stage.RegionLayout) jobs.Region {
	region := jobs.Region{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		PageID:     page.ID,
		PageNumber: page.PageNumber,
		BBox:       layout.BBox,
		Label:      layout.Label,
		LayoutConf: layout.LayoutConf,
	}
	ctx = services.WithRegionID(ctx, region.ID)

	var ocrResult stage.OCRResult
	if err := o.runStage(ctx, stage.NameOCR, func(stageCtx context.Context) error {
		var ocrErr error
		ocrResult, ocrErr = o.adapters.OCR.Recognize(stageCtx, stage.OCRRequest{
			FileRef:    job.FileRef,
			PageNumber: page.PageNumber,
			BBox:       region.BBox,
			Label:      region.Label,
		})
		return ocrErr
	}); err != nil {
		o.degrade(log, &region, stage.NameOCR, err)
	} else {
		region.RawText = ocrResult.RawText
		region.OCRConf = ocrResult.Confidence
		region.Track = ocrResult.Track
	}

	var linguaResult stage.LinguaResult
	if err := o.runStage(ctx, stage.NameLingua, func(stageCtx context.Context) error {
		var linguaErr error
		linguaResult, linguaErr = o.adapters.Lingua.Normalize(stageCtx, stage.LinguaRequest{
			RawText:    region.RawText,
			DomainHint: job.Domain,
		})
		return linguaErr
	}); err != nil {
		o.degrade(log, &region, stage.NameLingua, err)
		region.NormalizedText = region.RawText
	} else {
		region.NormalizedText = linguaResult.NormalizedText
		region.LinguaConf = linguaResult.Confidence
		if canonical := language.Canonical(linguaResult.Language); canonical != "" {
			region.Language = canonical
		} else {
			region.Language = linguaResult.Language
		}
	}

	var piiResult stage.PIIResult
	if err := o.runStage(ctx, stage.NamePII, func(stageCtx context.Context) error {
		var piiErr error
		piiResult, piiErr = o.adapters.PII.Detect(stageCtx, region.NormalizedText)
		return piiErr
	}); err != nil {
		o.degrade(log, &region, stage.NamePII, err)
	} else {
		region.PIISpans = piiResult.Spans
		region.PIIConf = piiResult.Confidence
	}

	result := o.engine.Score(map[string]float64{
		"layout":         region.LayoutConf,
		stage.NameOCR:    region.OCRConf,
		stage.NameLingua: region.LinguaConf,
		stage.NamePII:    region.PIIConf,
	}, job.Domain, region.StageFailed)
	region.RawScore = result.RawScore
	region.TrustScore = result.TrustScore
	region.Epistemic = result.Epistemic
	region.Aleatoric = result.Aleatoric
	region.ReviewAction = result.Action
	return region
}

// degrade records a persistent stage failure on the region: confidence zero
// for the stage, stage_failed set, processing continues.
func (o *Orchestrator) degrade(log *slog.Logger, region *jobs.Region, stageName string, err error) {
	region.StageFailed = true
	log.Warn("stage degraded",
		logging.String(logging.FieldStage, stageName),
		logging.String(logging.FieldRegionID, region.ID),
		logging.Error(err))
}

// runStage executes one stage call with a per-attempt timeout and bounded
// exponential backoff. Validation and configuration failures never retry.
func (o *Orchestrator) runStage(ctx context.Context, name string, op func(context.Context) error) error {
	ctx = services.WithStage(ctx, name)
	backoff := o.backoff
	var lastErr error
	for attempt := 0; attempt <= o.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stageCtx := ctx
		cancel := context.CancelFunc(func() {})
		if o.timeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, o.timeout)
		}
		lastErr = op(stageCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.DeadlineExceeded) && ctx.Err() == nil {
			lastErr = services.Wrap(services.ErrTimeout, name, "execute", "stage timed out", lastErr)
		}
		if !services.Retryable(lastErr) || attempt == o.attempts {
			return lastErr
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return lastErr
}
