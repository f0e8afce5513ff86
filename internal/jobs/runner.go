package jobs

import (
	"context"
	"log/slog"
	"time"

	"codedox/internal/config"
	"codedox/internal/model"
	"codedox/internal/store"
)

// CrawlExecutor runs the Crawl Pipeline for one job to completion. It is
// responsible for transitioning the job out of "running" itself
// (Complete/Fail) once the crawl finishes or errors unrecoverably.
type CrawlExecutor interface {
	RunCrawl(ctx context.Context, job *model.CrawlJob)
}

// Runner polls the jobs table for pending crawl jobs and dispatches them
// to the Crawl Pipeline, bounded by max_concurrent_sessions.
type Runner struct {
	cfg      *config.Config
	manager  *Manager
	store    *store.Store
	executor CrawlExecutor
	log      *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(cfg *config.Config, mgr *Manager, st *store.Store, executor CrawlExecutor, log *slog.Logger) *Runner {
	return &Runner{cfg: cfg, manager: mgr, store: st, executor: executor, log: log}
}

// Start launches the poll loop. Call in its own goroutine; it returns
// when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	pollInterval := time.Duration(r.cfg.Crawl.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	maxSessions := r.cfg.Crawl.MaxConcurrentSessions
	if maxSessions <= 0 {
		maxSessions = 20
	}

	sem := make(chan struct{}, maxSessions)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastCleanup time.Time
	cleanupInterval := time.Duration(r.cfg.Retention.CleanupIntervalMinutes) * time.Minute
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r.cfg.Retention.Enabled {
			now := time.Now().UTC()
			if lastCleanup.IsZero() || now.Sub(lastCleanup) >= cleanupInterval {
				CleanupExpiredData(ctx, r.cfg, r.store, r.log)
				lastCleanup = now
			}
		}

		capacity := maxSessions - len(sem)
		if capacity <= 0 {
			continue
		}

		pending, err := r.store.ListPendingJobs(ctx, capacity)
		if err != nil {
			if r.log != nil {
				r.log.Warn("runner: list pending jobs failed", "error", err)
			}
			continue
		}

		for _, job := range pending {
			job := job
			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				r.runOne(ctx, job)
			}()
		}
	}
}

func (r *Runner) runOne(ctx context.Context, job *model.CrawlJob) {
	if err := r.manager.Start(ctx, job); err != nil {
		if r.log != nil {
			r.log.Warn("runner: failed to start job", "job_id", job.ID, "error", err)
		}
		return
	}
	r.executor.RunCrawl(ctx, job)
}
