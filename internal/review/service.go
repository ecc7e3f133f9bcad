// Package review applies human decisions to pending regions. Each region
// admits exactly one finalizing transition; concurrent reviewers are resolved
// by the store's compare-and-set, and every decision lands in the audit log.
package review

import (
	"context"
	"log/slog"

	"veridoc/internal/audit"
	"veridoc/internal/jobs"
	"veridoc/internal/logging"
	"veridoc/internal/services"
)

// Reviewer transition names as recorded in the audit log.
const (
	TransitionApprove = "approve"
	TransitionCorrect = "correct"
	TransitionSkip    = "skip"
)

// Service is the review workflow manager.
type Service struct {
	store  *jobs.Store
	ledger *audit.Ledger
	logger *slog.Logger
}

// NewService builds the review workflow over the shared store and ledger.
func NewService(store *jobs.Store, ledger *audit.Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: store, ledger: ledger, logger: logger}
}

// Queue lists pending regions lowest-confidence-first.
func (s *Service) Queue(ctx context.Context, limit, offset int) ([]jobs.ReviewQueueItem, error) {
	return s.store.ReviewQueue(ctx, limit, offset)
}

// Stats reports verification progress.
func (s *Service) Stats(ctx context.Context) (jobs.ReviewStats, error) {
	return s.store.ReviewStatistics(ctx)
}

// Approve accepts the extracted value as-is. Valid only while the region is
// pending review.
func (s *Service) Approve(ctx context.Context, regionID, actor string) (*jobs.Region, error) {
	if actor == "" {
		return nil, services.Wrap(services.ErrValidation, "review", TransitionApprove, "actor is required", nil)
	}
	region, err := s.pendingRegion(ctx, regionID, TransitionApprove)
	if err != nil {
		return nil, err
	}

	finalized, err := s.store.FinalizeReview(ctx, regionID, actor, region.NormalizedText)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Append(ctx, jobs.AuditEntry{
		JobID:     finalized.JobID,
		RegionID:  finalized.ID,
		Actor:     actor,
		Action:    TransitionApprove,
		PrevValue: region.NormalizedText,
		NewValue:  finalized.VerifiedValue,
	}); err != nil {
		return nil, err
	}
	s.logDecision(ctx, finalized, actor, TransitionApprove)
	return finalized, nil
}

// Correct replaces the extracted value with the reviewer's input. The new
// value must be non-empty; a corrected empty field is a skip, not a fix.
func (s *Service) Correct(ctx context.Context, regionID, actor, newValue string) (*jobs.Region, error) {
	if actor == "" {
		return nil, services.Wrap(services.ErrValidation, "review", TransitionCorrect, "actor is required", nil)
	}
	if newValue == "" {
		return nil, services.Wrap(services.ErrValidation, "review", TransitionCorrect, "corrected value must not be empty", nil)
	}
	region, err := s.pendingRegion(ctx, regionID, TransitionCorrect)
	if err != nil {
		return nil, err
	}

	finalized, err := s.store.FinalizeReview(ctx, regionID, actor, newValue)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Append(ctx, jobs.AuditEntry{
		JobID:     finalized.JobID,
		RegionID:  finalized.ID,
		Actor:     actor,
		Action:    TransitionCorrect,
		PrevValue: region.NormalizedText,
		NewValue:  newValue,
	}); err != nil {
		return nil, err
	}
	s.logDecision(ctx, finalized, actor, TransitionCorrect)
	return finalized, nil
}

// Skip records that the reviewer passed over the region without finalizing
// it. The region stays pending and reappears in later queue listings.
func (s *Service) Skip(ctx context.Context, regionID, actor string) error {
	if actor == "" {
		return services.Wrap(services.ErrValidation, "review", TransitionSkip, "actor is required", nil)
	}
	region, err := s.pendingRegion(ctx, regionID, TransitionSkip)
	if err != nil {
		return err
	}

	if _, err := s.ledger.Append(ctx, jobs.AuditEntry{
		JobID:    region.JobID,
		RegionID: region.ID,
		Actor:    actor,
		Action:   TransitionSkip,
	}); err != nil {
		return err
	}
	s.logDecision(ctx, region, actor, TransitionSkip)
	return nil
}

func (s *Service) pendingRegion(ctx context.Context, regionID, operation string) (*jobs.Region, error) {
	region, err := s.store.GetRegion(ctx, regionID)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return nil, services.Wrap(services.ErrValidation, "review", operation, "region not found", nil)
	}
	if region.HumanVerified {
		return nil, services.Wrap(services.ErrConflict, "review", operation, "region already verified", nil)
	}
	if !region.ReviewAction.NeedsReview() {
		return nil, services.Wrap(services.ErrValidation, "review", operation, "region is not reviewable", nil)
	}
	return region, nil
}

func (s *Service) logDecision(ctx context.Context, region *jobs.Region, actor, transition string) {
	logging.WithContext(ctx, s.logger).Info("review decision",
		logging.String(logging.FieldRegionID, region.ID),
		logging.String(logging.FieldJobID, region.JobID),
		logging.String(logging.FieldActor, actor),
		logging.String("transition", transition))
}
