package main

import (
	"veridoc/internal/audit"
	"veridoc/internal/export"
	"veridoc/internal/jobs"
	"veridoc/internal/logging"
	"veridoc/internal/review"
)

func newExportService(ctx *commandContext, store *jobs.Store) (*export.Service, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return export.NewService(cfg, store, logging.NewNop())
}

func newReviewService(store *jobs.Store) *review.Service {
	ledger := audit.NewLedger(store, logging.NewNop())
	return review.NewService(store, ledger, logging.NewNop())
}
