// Package audit exposes the append-only audit ledger. Entries record every
// automated and human mutation; nothing here can update or delete one.
package audit

import (
	"context"
	"log/slog"

	"veridoc/internal/jobs"
	"veridoc/internal/logging"
)

// Actions recorded by the system itself. Reviewer actions use the review
// package's transition names.
const (
	ActionJobCreated   = "job_created"
	ActionJobCompleted = "job_completed"
	ActionJobFailed    = "job_failed"
	ActionRedacted     = "redacted"
)

// SystemActor marks entries written by the pipeline rather than a person.
const SystemActor = "system"

// Ledger wraps the persisted audit log.
type Ledger struct {
	store  *jobs.Store
	logger *slog.Logger
}

// NewLedger builds a ledger over the shared store.
func NewLedger(store *jobs.Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ledger{store: store, logger: logger}
}

// Append writes one entry. Storage failure is the only error path.
func (l *Ledger) Append(ctx context.Context, entry jobs.AuditEntry) (*jobs.AuditEntry, error) {
	written, err := l.store.AppendAudit(ctx, entry)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("audit entry appended",
		logging.String(logging.FieldJobID, written.JobID),
		logging.String(logging.FieldRegionID, written.RegionID),
		logging.String(logging.FieldActor, written.Actor),
		logging.String("action", written.Action))
	return written, nil
}

// Query returns entries matching the filter in chronological order.
func (l *Ledger) Query(ctx context.Context, filter jobs.AuditFilter) ([]jobs.AuditEntry, error) {
	return l.store.QueryAudit(ctx, filter)
}
