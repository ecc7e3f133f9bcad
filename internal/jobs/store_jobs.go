package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"veridoc/internal/services"
)

const jobColumns = `id, file_ref, domain, status, avg_trust_score, error_message,
    redacted_ref, span_digest, created_at, updated_at, last_heartbeat`

// CreateJob inserts a new job in the queued state. Identity and file
// reference are immutable afterwards.
func (s *Store) CreateJob(ctx context.Context, fileRef, domain string) (*Job, error) {
	if fileRef == "" {
		return nil, services.Wrap(services.ErrValidation, "jobs", "create", "file reference is required", nil)
	}
	if domain == "" {
		domain = "general"
	}
	now := time.Now().UTC()
	id := uuid.NewString()

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (id, file_ref, domain, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id, fileRef, domain, StatusQueued, timestamp(now), timestamp(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. Returns nil when no job exists.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs ordered by creation time, newest first.
func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// StartProcessing transitions a job from queued to processing with a single
// atomic compare-and-set, guaranteeing at most one concurrent pipeline run per
// job. Any job not currently queued yields a conflict.
func (s *Store) StartProcessing(ctx context.Context, id string) (*Job, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = '', last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusProcessing, timestamp(now), timestamp(now), id, StatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("start processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("start processing rows: %w", err)
	}
	if affected == 0 {
		current, getErr := s.GetJob(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current == nil {
			return nil, services.Wrap(services.ErrValidation, "jobs", "start", "job not found", nil)
		}
		return nil, services.Wrap(services.ErrConflict, "jobs", "start",
			fmt.Sprintf("job is %s, not %s", current.Status, StatusQueued), nil)
	}
	return s.GetJob(ctx, id)
}

// Complete persists the pipeline output and transitions the job from
// processing to done. Every region must carry a review action; regions still
// needing human review stay pending in the review queue after completion.
func (s *Store) Complete(ctx context.Context, id string, pages []Page, regions []Region) (*Job, error) {
	for _, region := range regions {
		if _, ok := ParseReviewAction(string(region.ReviewAction)); !ok {
			return nil, services.Wrap(services.ErrValidation, "jobs", "complete",
				fmt.Sprintf("region %s has no review action", region.ID), nil)
		}
	}

	avg := 0.0
	for _, region := range regions {
		avg += region.TrustScore
	}
	if len(regions) > 0 {
		avg /= float64(len(regions))
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, page := range pages {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO pages (id, job_id, page_number, source_ref) VALUES (?, ?, ?, ?)`,
			page.ID, id, page.PageNumber, page.SourceRef,
		); err != nil {
			return nil, fmt.Errorf("insert page %d: %w", page.PageNumber, err)
		}
	}
	for _, region := range regions {
		if err := insertRegion(ctx, tx, id, region, now); err != nil {
			return nil, err
		}
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, avg_trust_score = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusDone, avg, timestamp(now), id, StatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("complete rows: %w", err)
	}
	if affected == 0 {
		return nil, services.Wrap(services.ErrConflict, "jobs", "complete", "job is not processing", nil)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit complete tx: %w", err)
	}
	return s.GetJob(ctx, id)
}

// Fail transitions a job from processing to failed with a human-readable
// reason. Failed is terminal; a new job record is required to reprocess.
func (s *Store) Fail(ctx context.Context, id, reason string) (*Job, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed, reason, timestamp(now), id, StatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("fail job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("fail rows: %w", err)
	}
	if affected == 0 {
		return nil, services.Wrap(services.ErrConflict, "jobs", "fail", "job is not processing", nil)
	}
	return s.GetJob(ctx, id)
}

// NextQueued returns the oldest queued job, or nil when the queue is empty.
// Claiming the job still requires StartProcessing.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		StatusQueued,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued: %w", err)
	}
	return job, nil
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC()
	if err := retryOnBusy(ensureContext(ctx), func() error {
		_, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
			timestamp(now), timestamp(now), id, StatusProcessing,
		)
		return err
	}); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing forces jobs whose worker heartbeat expired into the
// failed state. A job never silently reverts to queued: retrying after a
// crash is an explicit operator decision via a new job record.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusFailed, "worker heartbeat expired", timestamp(now),
		StatusProcessing, timestamp(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// SetRedaction records the redaction artifact for a done job exactly once.
// The second writer loses the compare-and-set and must read the stored
// reference instead of regenerating.
func (s *Store) SetRedaction(ctx context.Context, id, artifactRef, spanDigest string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET redacted_ref = ?, span_digest = ?, updated_at = ?
         WHERE id = ? AND status = ? AND redacted_ref = ''`,
		artifactRef, spanDigest, timestamp(now), id, StatusDone,
	)
	if err != nil {
		return false, fmt.Errorf("set redaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set redaction rows: %w", err)
	}
	return affected > 0, nil
}

// Stats summarizes job counts per lifecycle state.
func (s *Store) Stats(ctx context.Context) (StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return StatusCounts{}, fmt.Errorf("scan stats: %w", err)
		}
		counts.Total += count
		switch status {
		case StatusQueued:
			counts.Queued = count
		case StatusProcessing:
			counts.Processing = count
		case StatusDone:
			counts.Done = count
		case StatusFailed:
			counts.Failed = count
		}
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job       Job
		createdAt string
		updatedAt string
		heartbeat sql.NullString
	)
	if err := row.Scan(
		&job.ID, &job.FileRef, &job.Domain, &job.Status, &job.AvgTrustScore,
		&job.ErrorMessage, &job.RedactedRef, &job.SpanDigest,
		&createdAt, &updatedAt, &heartbeat,
	); err != nil {
		return nil, err
	}
	job.CreatedAt = parseTimestamp(createdAt)
	job.UpdatedAt = parseTimestamp(updatedAt)
	job.LastHeartbeat = scanNullableTimestamp(heartbeat)
	return &job, nil
}
