package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"veridoc/internal/config"
	"veridoc/internal/jobs"
	"veridoc/internal/logging"
	"veridoc/internal/services"
	"veridoc/internal/stage"
)

// Manager runs the asynchronous execution mode: a pool of workers pulls
// queued jobs from the store and hands each to the shared Runner. Distinct
// jobs run concurrently; the claim guard keeps any single job on one worker.
type Manager struct {
	cfg    *config.Config
	store  *jobs.Store
	runner *Runner
	logger *slog.Logger

	pollInterval       time.Duration
	errorRetryInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a manager with its own Runner.
func NewManager(cfg *config.Config, store *jobs.Store, adapters stage.Adapters, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	runner, err := NewRunner(cfg, store, adapters, logger)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:                cfg,
		store:              store,
		runner:             runner,
		logger:             logger,
		pollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
	}, nil
}

// Runner exposes the shared runner for synchronous submission paths.
func (m *Manager) Runner() *Runner {
	return m.runner
}

// Start launches the worker pool and the stale-job reclaimer.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	m.wg.Add(workers + 1)
	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i)
	}
	go m.runReclaimer(runCtx)
	return nil
}

// Stop terminates background processing and waits for workers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, index int) {
	defer m.wg.Done()
	logger := m.logger.With(
		logging.String(logging.FieldComponent, "workflow-worker"),
		logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.NextQueued(ctx)
		if err != nil {
			logger.Error("failed to fetch next queued job", logging.Error(err))
			m.sleep(ctx, m.errorRetryInterval)
			continue
		}
		if job == nil {
			m.sleep(ctx, m.pollInterval)
			continue
		}

		if _, err := m.runner.Process(ctx, job.ID); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// Another worker winning the claim is routine, everything else is not.
			if errors.Is(err, services.ErrConflict) {
				continue
			}
			logger.Error("job processing failed",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
			m.sleep(ctx, m.errorRetryInterval)
		}
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldComponent, "workflow-reclaimer"))

	interval := m.runner.heartbeat.interval
	if interval <= 0 {
		interval = m.pollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.runner.heartbeat.ReclaimStale(ctx, logger); err != nil {
				logger.Warn("reclaim stale jobs failed", logging.Error(err))
			}
		}
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
