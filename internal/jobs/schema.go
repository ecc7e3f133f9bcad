package jobs

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
        id TEXT PRIMARY KEY,
        file_ref TEXT NOT NULL,
        domain TEXT NOT NULL DEFAULT 'general',
        status TEXT NOT NULL,
        avg_trust_score REAL NOT NULL DEFAULT 0,
        error_message TEXT NOT NULL DEFAULT '',
        redacted_ref TEXT NOT NULL DEFAULT '',
        span_digest TEXT NOT NULL DEFAULT '',
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        last_heartbeat TEXT
    )`,
	`CREATE TABLE IF NOT EXISTS pages (
        id TEXT PRIMARY KEY,
        job_id TEXT NOT NULL REFERENCES jobs(id),
        page_number INTEGER NOT NULL,
        source_ref TEXT NOT NULL DEFAULT '',
        UNIQUE (job_id, page_number)
    )`,
	`CREATE TABLE IF NOT EXISTS regions (
        id TEXT PRIMARY KEY,
        job_id TEXT NOT NULL REFERENCES jobs(id),
        page_id TEXT NOT NULL REFERENCES pages(id),
        page_number INTEGER NOT NULL,
        bbox_json TEXT NOT NULL,
        label TEXT NOT NULL DEFAULT '',
        track TEXT NOT NULL DEFAULT '',
        raw_text TEXT NOT NULL DEFAULT '',
        normalized_text TEXT NOT NULL DEFAULT '',
        language TEXT NOT NULL DEFAULT '',
        layout_conf REAL NOT NULL DEFAULT 0,
        ocr_conf REAL NOT NULL DEFAULT 0,
        lingua_conf REAL NOT NULL DEFAULT 0,
        pii_conf REAL NOT NULL DEFAULT 0,
        raw_score REAL NOT NULL DEFAULT 0,
        trust_score REAL NOT NULL DEFAULT 0,
        epistemic REAL NOT NULL DEFAULT 0,
        aleatoric REAL NOT NULL DEFAULT 0,
        review_action TEXT NOT NULL DEFAULT '',
        stage_failed INTEGER NOT NULL DEFAULT 0,
        pii_json TEXT NOT NULL DEFAULT '[]',
        human_verified INTEGER NOT NULL DEFAULT 0,
        verified_value TEXT NOT NULL DEFAULT '',
        reviewed_by TEXT NOT NULL DEFAULT '',
        reviewed_at TEXT,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_regions_review_queue
        ON regions (human_verified, review_action, trust_score, created_at)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
        id TEXT PRIMARY KEY,
        job_id TEXT NOT NULL,
        region_id TEXT NOT NULL DEFAULT '',
        actor TEXT NOT NULL,
        action TEXT NOT NULL,
        prev_value TEXT NOT NULL DEFAULT '',
        new_value TEXT NOT NULL DEFAULT '',
        created_at TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_audit_region ON audit_log (region_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_job ON audit_log (job_id, created_at)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
