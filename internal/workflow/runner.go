// Package workflow drives job processing. A Runner executes exactly one job
// end to end; the Manager dispatches Runners across a worker pool for the
// daemon, while the CLI calls a Runner inline for synchronous processing.
package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"veridoc/internal/audit"
	"veridoc/internal/config"
	"veridoc/internal/jobs"
	"veridoc/internal/logging"
	"veridoc/internal/pipeline"
	"veridoc/internal/services"
	"veridoc/internal/stage"
)

// Runner claims a job, runs the pipeline, and records the outcome. Both
// execution modes share it, so sync and async processing cannot diverge.
type Runner struct {
	store     *jobs.Store
	orch      *pipeline.Orchestrator
	ledger    *audit.Ledger
	heartbeat *HeartbeatMonitor
	logger    *slog.Logger
}

// NewRunner wires the pipeline against the store.
func NewRunner(cfg *config.Config, store *jobs.Store, adapters stage.Adapters, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	orch, err := pipeline.New(cfg, adapters, logger)
	if err != nil {
		return nil, err
	}
	return &Runner{
		store:  store,
		orch:   orch,
		ledger: audit.NewLedger(store, logger),
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		logger: logger,
	}, nil
}

// Submit creates a new queued job and its creation audit entry.
func (r *Runner) Submit(ctx context.Context, fileRef, domain string) (*jobs.Job, error) {
	job, err := r.store.CreateJob(ctx, fileRef, domain)
	if err != nil {
		return nil, err
	}
	if _, err := r.ledger.Append(ctx, jobs.AuditEntry{
		JobID:    job.ID,
		Actor:    audit.SystemActor,
		Action:   audit.ActionJobCreated,
		NewValue: fileRef,
	}); err != nil {
		return nil, err
	}
	return job, nil
}

// Process claims the job and runs it to a terminal status. The claim is a
// compare-and-set, so two concurrent calls for the same job cannot both run;
// the loser returns the conflict to its caller.
func (r *Runner) Process(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := r.store.StartProcessing(ctx, jobID)
	if err != nil {
		return nil, err
	}
	ctx = services.WithJobID(ctx, job.ID)
	log := logging.WithContext(ctx, r.logger)

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go r.heartbeat.StartLoop(heartbeatCtx, &wg, job.ID)

	out, runErr := r.orch.Run(ctx, job)
	stopHeartbeat()
	wg.Wait()

	if runErr != nil {
		return r.fail(ctx, log, job.ID, runErr)
	}

	done, err := r.store.Complete(ctx, job.ID, out.Pages, out.Regions)
	if err != nil {
		return nil, err
	}
	if _, err := r.ledger.Append(ctx, jobs.AuditEntry{
		JobID:  job.ID,
		Actor:  audit.SystemActor,
		Action: audit.ActionJobCompleted,
	}); err != nil {
		return nil, err
	}
	log.Info("job completed",
		logging.Int("regions", len(out.Regions)),
		logging.Float64("avg_trust_score", done.AvgTrustScore))
	return done, nil
}

func (r *Runner) fail(ctx context.Context, log *slog.Logger, jobID string, runErr error) (*jobs.Job, error) {
	failed, err := r.store.Fail(ctx, jobID, runErr.Error())
	if err != nil {
		return nil, err
	}
	if _, err := r.ledger.Append(ctx, jobs.AuditEntry{
		JobID:    jobID,
		Actor:    audit.SystemActor,
		Action:   audit.ActionJobFailed,
		NewValue: failed.ErrorMessage,
	}); err != nil {
		return nil, err
	}
	log.Error("job failed", logging.Error(runErr))
	return failed, nil
}
