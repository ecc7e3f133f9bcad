package review_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"veridoc/internal/audit"
	"veridoc/internal/jobs"
	"veridoc/internal/review"
	"veridoc/internal/services"
	"veridoc/internal/testsupport"
)

type fixture struct {
	store   *jobs.Store
	ledger  *audit.Ledger
	service *review.Service
}

func newFixture(t *testing.T) *fixture {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ledger := audit.NewLedger(store, nil)
	return &fixture{
		store:   store,
		ledger:  ledger,
		service: review.NewService(store, ledger, nil),
	}
}

func (f *fixture) pendingRegion(t *testing.T, action jobs.ReviewAction) *jobs.Region {
	t.Helper()
	ctx := context.Background()

	job := testsupport.NewJob(t, f.store, "/tmp/doc.pdf", "")
	if _, err := f.store.StartProcessing(ctx, job.ID); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	pageID := uuid.NewString()
	regionID := uuid.NewString()
	pages := []jobs.Page{{ID: pageID, JobID: job.ID, PageNumber: 1}}
	regions := []jobs.Region{{
		ID: regionID, PageID: pageID, PageNumber: 1,
		NormalizedText: "Jan Doe", TrustScore: 0.72, ReviewAction: action,
	}}
	if _, err := f.store.Complete(ctx, job.ID, pages, regions); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	region, err := f.store.GetRegion(ctx, regionID)
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	return region
}

func TestApproveFinalizesWithExtractedValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	region := f.pendingRegion(t, jobs.ActionFullReview)

	approved, err := f.service.Approve(ctx, region.ID, "reviewer-a")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !approved.HumanVerified || approved.VerifiedValue != "Jan Doe" {
		t.Fatalf("unexpected approved region: %+v", approved)
	}

	entries, err := f.ledger.Query(ctx, jobs.AuditFilter{RegionID: region.ID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != review.TransitionApprove {
		t.Fatalf("expected one approve entry, got %+v", entries)
	}
	if entries[0].Actor != "reviewer-a" {
		t.Fatalf("unexpected actor: %q", entries[0].Actor)
	}
}

func TestCorrectRecordsPrevAndNewValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	region := f.pendingRegion(t, jobs.ActionFullReview)

	corrected, err := f.service.Correct(ctx, region.ID, "reviewer-a", "Jane Doe")
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if corrected.VerifiedValue != "Jane Doe" {
		t.Fatalf("unexpected corrected value: %q", corrected.VerifiedValue)
	}
	if corrected.FinalValue() != "Jane Doe" {
		t.Fatalf("corrected value must win, got %q", corrected.FinalValue())
	}

	entries, err := f.ledger.Query(ctx, jobs.AuditFilter{RegionID: region.ID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].PrevValue != "Jan Doe" || entries[0].NewValue != "Jane Doe" {
		t.Fatalf("expected prev/new values, got %+v", entries[0])
	}
}

func TestCorrectRejectsEmptyValue(t *testing.T) {
	f := newFixture(t)
	region := f.pendingRegion(t, jobs.ActionFullReview)

	_, err := f.service.Correct(context.Background(), region.ID, "reviewer-a", "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	current, getErr := f.store.GetRegion(context.Background(), region.ID)
	if getErr != nil {
		t.Fatalf("GetRegion: %v", getErr)
	}
	if current.HumanVerified {
		t.Fatal("rejected correction must not mutate the region")
	}
}

func TestConcurrentReviewersConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	region := f.pendingRegion(t, jobs.ActionLightReview)

	if _, err := f.service.Approve(ctx, region.ID, "reviewer-a"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := f.service.Correct(ctx, region.ID, "reviewer-b", "other"); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for second reviewer, got %v", err)
	}

	entries, err := f.ledger.Query(ctx, jobs.AuditFilter{RegionID: region.ID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("loser must not write audit entries, got %d", len(entries))
	}
}

func TestSkipLeavesRegionPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	region := f.pendingRegion(t, jobs.ActionFullReview)

	if err := f.service.Skip(ctx, region.ID, "reviewer-a"); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	current, err := f.store.GetRegion(ctx, region.ID)
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	if current.HumanVerified {
		t.Fatal("skip must not finalize the region")
	}

	queue, err := f.service.Queue(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if len(queue) != 1 || queue[0].RegionID != region.ID {
		t.Fatalf("skipped region must stay in the queue, got %+v", queue)
	}

	entries, err := f.ledger.Query(ctx, jobs.AuditFilter{RegionID: region.ID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != review.TransitionSkip {
		t.Fatalf("expected skip audit entry, got %+v", entries)
	}
}

func TestReviewRejectsAutoAcceptedRegion(t *testing.T) {
	f := newFixture(t)
	region := f.pendingRegion(t, jobs.ActionAutoAccept)

	_, err := f.service.Approve(context.Background(), region.ID, "reviewer-a")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for auto-accepted region, got %v", err)
	}
}

func TestReviewUnknownRegion(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Approve(context.Background(), uuid.NewString(), "reviewer-a")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatsCountsVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	region := f.pendingRegion(t, jobs.ActionFullReview)
	f.pendingRegion(t, jobs.ActionLightReview)

	if _, err := f.service.Approve(ctx, region.ID, "reviewer-a"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	stats, err := f.service.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalRegions != 2 || stats.VerifiedRegions != 1 || stats.PendingReview != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.VerificationRate != 50 {
		t.Fatalf("expected 50%% verification rate, got %f", stats.VerificationRate)
	}
	if stats.Actions[jobs.ActionFullReview] != 1 || stats.Actions[jobs.ActionLightReview] != 1 {
		t.Fatalf("unexpected action breakdown: %+v", stats.Actions)
	}
}
