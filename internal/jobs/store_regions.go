package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"veridoc/internal/services"
)

const regionColumns = `id, job_id, page_id, page_number, bbox_json, label, track,
    raw_text, normalized_text, language, layout_conf, ocr_conf, lingua_conf, pii_conf,
    raw_score, trust_score, epistemic, aleatoric, review_action, stage_failed, pii_json,
    human_verified, verified_value, reviewed_by, reviewed_at, created_at, updated_at`

func insertRegion(ctx context.Context, tx *sql.Tx, jobID string, region Region, now time.Time) error {
	bboxJSON, err := json.Marshal(region.BBox)
	if err != nil {
		return fmt.Errorf("marshal bbox: %w", err)
	}
	spans := region.PIISpans
	if spans == nil {
		spans = []PIISpan{}
	}
	piiJSON, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("marshal pii spans: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO regions (
            id, job_id, page_id, page_number, bbox_json, label, track,
            raw_text, normalized_text, language, layout_conf, ocr_conf, lingua_conf, pii_conf,
            raw_score, trust_score, epistemic, aleatoric, review_action, stage_failed, pii_json,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		region.ID, jobID, region.PageID, region.PageNumber, string(bboxJSON), region.Label, region.Track,
		region.RawText, region.NormalizedText, region.Language,
		region.LayoutConf, region.OCRConf, region.LinguaConf, region.PIIConf,
		region.RawScore, region.TrustScore, region.Epistemic, region.Aleatoric,
		region.ReviewAction, boolToInt(region.StageFailed), string(piiJSON),
		timestamp(now), timestamp(now),
	); err != nil {
		return fmt.Errorf("insert region %s: %w", region.ID, err)
	}
	return nil
}

// GetRegion fetches a region by identifier. Returns nil when no region exists.
func (s *Store) GetRegion(ctx context.Context, id string) (*Region, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+regionColumns+` FROM regions WHERE id = ?`, id)
	region, err := scanRegion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get region: %w", err)
	}
	return region, nil
}

// RegionsForJob returns all regions of a job in page then creation order.
func (s *Store) RegionsForJob(ctx context.Context, jobID string) ([]*Region, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+regionColumns+` FROM regions WHERE job_id = ? ORDER BY page_number, created_at, id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("regions for job: %w", err)
	}
	defer rows.Close()

	var result []*Region
	for rows.Next() {
		region, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		result = append(result, region)
	}
	return result, rows.Err()
}

// PagesForJob returns the ordered page sequence of a job.
func (s *Store) PagesForJob(ctx context.Context, jobID string) ([]*Page, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_id, page_number, source_ref FROM pages WHERE job_id = ? ORDER BY page_number`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("pages for job: %w", err)
	}
	defer rows.Close()

	var result []*Page
	for rows.Next() {
		var page Page
		if err := rows.Scan(&page.ID, &page.JobID, &page.PageNumber, &page.SourceRef); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		result = append(result, &page)
	}
	return result, rows.Err()
}

// ReviewQueue lists pending regions lowest-confidence-first: trust score
// ascending, then creation time ascending. The view is derived from region
// state and restartable via limit/offset.
func (s *Store) ReviewQueue(ctx context.Context, limit, offset int) ([]ReviewQueueItem, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT r.id, r.job_id, j.file_ref, r.page_number, r.bbox_json, r.label,
                r.raw_text, r.normalized_text, r.trust_score, r.review_action,
                r.stage_failed, r.created_at
         FROM regions r JOIN jobs j ON j.id = r.job_id
         WHERE r.human_verified = 0 AND r.review_action != ?
         ORDER BY r.trust_score, r.created_at, r.id
         LIMIT ? OFFSET ?`,
		ActionAutoAccept, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("review queue: %w", err)
	}
	defer rows.Close()

	var items []ReviewQueueItem
	for rows.Next() {
		var (
			item        ReviewQueueItem
			bboxJSON    string
			stageFailed int
			createdAt   string
		)
		if err := rows.Scan(
			&item.RegionID, &item.JobID, &item.JobFileRef, &item.PageNumber, &bboxJSON,
			&item.Label, &item.RawText, &item.NormalizedText, &item.TrustScore,
			&item.ReviewAction, &stageFailed, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		if err := json.Unmarshal([]byte(bboxJSON), &item.BBox); err != nil {
			return nil, fmt.Errorf("unmarshal bbox: %w", err)
		}
		item.StageFailed = stageFailed != 0
		item.CreatedAt = parseTimestamp(createdAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

// FinalizeReview marks a pending region as human verified with a single
// compare-and-set on human_verified. When two reviewers race, exactly one
// update lands; the loser observes a conflict and must re-fetch.
func (s *Store) FinalizeReview(ctx context.Context, regionID, actor, verifiedValue string) (*Region, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE regions SET human_verified = 1, verified_value = ?, reviewed_by = ?,
                reviewed_at = ?, updated_at = ?
         WHERE id = ? AND human_verified = 0`,
		verifiedValue, actor, timestamp(now), timestamp(now), regionID,
	)
	if err != nil {
		return nil, fmt.Errorf("finalize review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("finalize review rows: %w", err)
	}
	if affected == 0 {
		current, getErr := s.GetRegion(ctx, regionID)
		if getErr != nil {
			return nil, getErr
		}
		if current == nil {
			return nil, services.Wrap(services.ErrValidation, "review", "finalize", "region not found", nil)
		}
		return nil, services.Wrap(services.ErrConflict, "review", "finalize", "region already verified", nil)
	}
	return s.GetRegion(ctx, regionID)
}

// ReviewStats aggregates verification progress across all regions.
type ReviewStats struct {
	TotalRegions     int
	VerifiedRegions  int
	PendingReview    int
	VerificationRate float64
	Actions          map[ReviewAction]int
}

// ReviewStatistics reports verification totals for dashboards and reports.
func (s *Store) ReviewStatistics(ctx context.Context) (ReviewStats, error) {
	var stats ReviewStats
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*),
                COALESCE(SUM(human_verified), 0),
                COALESCE(SUM(CASE WHEN human_verified = 0 AND review_action != ? THEN 1 ELSE 0 END), 0)
         FROM regions`,
		ActionAutoAccept,
	)
	if err := row.Scan(&stats.TotalRegions, &stats.VerifiedRegions, &stats.PendingReview); err != nil {
		return ReviewStats{}, fmt.Errorf("review statistics: %w", err)
	}
	if stats.TotalRegions > 0 {
		stats.VerificationRate = float64(stats.VerifiedRegions) / float64(stats.TotalRegions) * 100
	}

	stats.Actions = make(map[ReviewAction]int, 4)
	rows, err := s.db.QueryContext(ctx, `SELECT review_action, COUNT(*) FROM regions GROUP BY review_action`)
	if err != nil {
		return ReviewStats{}, fmt.Errorf("review action counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var action ReviewAction
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return ReviewStats{}, fmt.Errorf("scan action count: %w", err)
		}
		stats.Actions[action] = count
	}
	return stats, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func scanRegion(row rowScanner) (*Region, error) {
	var (
		region      Region
		bboxJSON    string
		piiJSON     string
		stageFailed int
		verified    int
		reviewedAt  sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(
		&region.ID, &region.JobID, &region.PageID, &region.PageNumber, &bboxJSON,
		&region.Label, &region.Track, &region.RawText, &region.NormalizedText, &region.Language,
		&region.LayoutConf, &region.OCRConf, &region.LinguaConf, &region.PIIConf,
		&region.RawScore, &region.TrustScore, &region.Epistemic, &region.Aleatoric,
		&region.ReviewAction, &stageFailed, &piiJSON,
		&verified, &region.VerifiedValue, &region.ReviewedBy, &reviewedAt,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(bboxJSON), &region.BBox); err != nil {
		return nil, fmt.Errorf("unmarshal bbox: %w", err)
	}
	if err := json.Unmarshal([]byte(piiJSON), &region.PIISpans); err != nil {
		return nil, fmt.Errorf("unmarshal pii spans: %w", err)
	}
	region.StageFailed = stageFailed != 0
	region.HumanVerified = verified != 0
	region.ReviewedAt = scanNullableTimestamp(reviewedAt)
	region.CreatedAt = parseTimestamp(createdAt)
	region.UpdatedAt = parseTimestamp(updatedAt)
	return &region, nil
}
