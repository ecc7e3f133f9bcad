package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"veridoc/internal/services"
)

// AuditEntry is one append-only record of a state change. Entries are never
// updated or deleted.
type AuditEntry struct {
	ID        string
	JobID     string
	RegionID  string
	Actor     string
	Action    string
	PrevValue string
	NewValue  string
	CreatedAt time.Time
}

// AuditFilter narrows an audit query. Zero-valued fields are ignored.
type AuditFilter struct {
	JobID    string
	RegionID string
	Actor    string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// AppendAudit writes one audit entry. The store assigns identity and
// timestamp so callers cannot backdate history.
func (s *Store) AppendAudit(ctx context.Context, entry AuditEntry) (*AuditEntry, error) {
	if entry.JobID == "" {
		return nil, services.Wrap(services.ErrValidation, "audit", "append", "job id is required", nil)
	}
	if entry.Actor == "" {
		return nil, services.Wrap(services.ErrValidation, "audit", "append", "actor is required", nil)
	}
	if entry.Action == "" {
		return nil, services.Wrap(services.ErrValidation, "audit", "append", "action is required", nil)
	}
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO audit_log (id, job_id, region_id, actor, action, prev_value, new_value, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.JobID, entry.RegionID, entry.Actor, entry.Action,
		entry.PrevValue, entry.NewValue, timestamp(entry.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	return &entry, nil
}

// QueryAudit returns matching audit entries in chronological order.
func (s *Store) QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.JobID != "" {
		conditions = append(conditions, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if filter.RegionID != "" {
		conditions = append(conditions, "region_id = ?")
		args = append(args, filter.RegionID)
	}
	if filter.Actor != "" {
		conditions = append(conditions, "actor = ?")
		args = append(args, filter.Actor)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, timestamp(filter.Since))
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, timestamp(filter.Until))
	}

	query := `SELECT id, job_id, region_id, actor, action, prev_value, new_value, created_at FROM audit_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry     AuditEntry
			createdAt string
		)
		if err := rows.Scan(
			&entry.ID, &entry.JobID, &entry.RegionID, &entry.Actor, &entry.Action,
			&entry.PrevValue, &entry.NewValue, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.CreatedAt = parseTimestamp(createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
