package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"veridoc/internal/jobs"
	"veridoc/internal/pipeline"
	"veridoc/internal/services"
	"veridoc/internal/stage"
	"veridoc/internal/testsupport"
)

func newJob() *jobs.Job {
	return &jobs.Job{ID: "job-1", FileRef: "/tmp/doc.pdf", Domain: "general", Status: jobs.StatusProcessing}
}

func TestRunProducesScoredRegions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	adapters, _, _, _, _ := testsupport.StubAdapters()
	orch, err := pipeline.New(cfg, adapters, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := orch.Run(context.Background(), newJob())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Pages) != 1 || len(out.Regions) != 1 {
		t.Fatalf("expected 1 page and 1 region, got %d/%d", len(out.Pages), len(out.Regions))
	}

	region := out.Regions[0]
	if region.RawText != "hello world" {
		t.Fatalf("unexpected raw text: %q", region.RawText)
	}
	if region.TrustScore <= 0 || region.TrustScore > 1 {
		t.Fatalf("trust score out of range: %f", region.TrustScore)
	}
	if region.ReviewAction == "" {
		t.Fatal("expected review action to be assigned")
	}
	if region.PageID != out.Pages[0].ID {
		t.Fatal("region not linked to its page")
	}
	if region.StageFailed {
		t.Fatal("unexpected stage failure")
	}
}

func TestRunEmptyDocumentIsJobFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.RetryAttempts = 0
	adapters, ingester, _, _, _ := testsupport.StubAdapters()
	ingester.Pages = nil
	orch, err := pipeline.New(cfg, adapters, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = orch.Run(context.Background(), newJob())
	if !errors.Is(err, services.ErrIngest) {
		t.Fatalf("expected ingest error, got %v", err)
	}
	if !services.JobFatal(err) {
		t.Fatalf("empty document must be job-fatal, got %v", err)
	}
}

func TestRunIngestErrorIsJobFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.RetryAttempts = 0
	adapters, ingester, _, _, _ := testsupport.StubAdapters()
	ingester.Err = services.Wrap(services.ErrIngest, "ingest", "open", "corrupt file", nil)
	orch, err := pipeline.New(cfg, adapters, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := orch.Run(context.Background(), newJob()); !services.JobFatal(err) {
		t.Fatalf("expected job-fatal error, got %v", err)
	}
}

func TestRunRetriesTransientStageFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.RetryAttempts = 2
	cfg.Pipeline.RetryBackoffMillis = 1
	adapters, _, ocr, _, _ := testsupport.StubAdapters()
	ocr.Errs = []error{
		services.Wrap(services.ErrModelUnavailable, "ocr", "recognize", "backend down", nil),
	}
	orch, err := pipeline.New(cfg, adapters, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := orch.Run(context.Background(), newJob())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ocr.Calls != 2 {
		t.Fatalf("expected one retry, got %d calls", ocr.Calls)
	}
	if out.Regions[0].StageFailed {
		t.Fatal("recovered stage must not mark the region failed")
	}
}

func TestRunDegradesRegionOnPersistentFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.RetryAttempts = 1
	cfg.Pipeline.RetryBackoffMillis = 1
	adapters, _, ocr, _, _ := testsupport.StubAdapters()
	down := services.Wrap(services.ErrModelUnavailable, "ocr", "recognize", "backend down", nil)
	ocr.Errs = []error{down, down}
	orch, err := pipeline.New(cfg, adapters, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := orch.Run(context.Background(), newJob())
	if err != nil {
		t.Fatalf("degraded region must not fail the job: %v", err)
	}

	region := out.Regions[0]
	if !region.StageFailed {
		t.Fatal("expected stage_failed flag")
	}
	if region.OCRConf != 0 {
		t.Fatalf("failed stage confidence must be zero, got %f", region.OCRConf)
	}
	if region.ReviewAction != jobs.ActionManualCorrection {
		t.Fatalf("degraded region must route to manual correction, got %s", region.ReviewAction)
	}
}

func TestRunValidationErrorDoesNotRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.RetryAttempts = 3
	cfg.Pipeline.RetryBackoffMillis = 1
	adapters, _, ocr, _, _ := testsupport.StubAdapters()
	bad := services.Wrap(services.ErrValidation, "ocr", "recognize", "region outside source", nil)
	ocr.Errs = []error{bad}
	orch, err := pipeline.New(cfg, adapters, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := orch.Run(context.Background(), newJob()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ocr.Calls != 1 {
		t.Fatalf("validation errors must not retry, got %d calls", ocr.Calls)
	}
}

func TestRunStageTimeoutDegradesRegion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.StageTimeoutSeconds = 1
	cfg.Pipeline.RetryAttempts = 0
	adapters, _, _, _, _ := testsupport.StubAdapters()
	adapters.OCR = blockingOCR{}
	orch, err := pipeline.New(cfg, adapters, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := orch.Run(context.Background(), newJob())
	if err != nil {
		t.Fatalf("stage timeout must not abort the job: %v", err)
	}
	if !out.Regions[0].StageFailed {
		t.Fatal("expected timeout to degrade the region")
	}
}

func TestRunCanonicalizesLanguage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	adapters, _, _, lingua, _ := testsupport.StubAdapters()
	lingua.Language = "eng"
	orch, err := pipeline.New(cfg, adapters, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := orch.Run(context.Background(), newJob())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Regions[0].Language != "en" {
		t.Fatalf("expected canonical language en, got %q", out.Regions[0].Language)
	}
}

type blockingOCR struct{}

func (blockingOCR) Recognize(ctx context.Context, req stage.OCRRequest) (stage.OCRResult, error) {
	select {
	case <-ctx.Done():
		return stage.OCRResult{}, ctx.Err()
	case <-time.After(30 * time.Second):
		return stage.OCRResult{}, nil
	}
}
