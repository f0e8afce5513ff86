// Package jobs is the Job Manager: the single writer of CrawlJob state,
// owning creation, lifecycle transitions, counters, heartbeats, and
// resume semantics (spec.md §4.1).
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"codedox/internal/apperr"
	"codedox/internal/globmatch"
	"codedox/internal/model"
	"codedox/internal/store"
)

// Manager is the single writer of job state.
type Manager struct {
	store          *store.Store
	stallThreshold time.Duration
}

// NewManager constructs a Manager. stallThreshold is the
// heartbeat-staleness window after which a running job is reported
// "stalled" (default 60s per spec.md §5).
func NewManager(st *store.Store, stallThreshold time.Duration) *Manager {
	if stallThreshold <= 0 {
		stallThreshold = 60 * time.Second
	}
	return &Manager{store: st, stallThreshold: stallThreshold}
}

// CreateParams collects the validated inputs for a new crawl job.
type CreateParams struct {
	Name                string
	StartURLs           []string
	MaxDepth            int
	DomainFilter        string
	IncludePatterns     []string
	ExcludePatterns     []string
	MaxConcurrentCrawls int
	MaxPages            int
	Metadata            map[string]string
}

// CreateJob validates inputs and persists a new job in "pending" state.
// The crawl itself runs asynchronously; this returns immediately.
func (m *Manager) CreateJob(ctx context.Context, p CreateParams) (*model.CrawlJob, error) {
	if len(p.StartURLs) == 0 {
		return nil, apperr.Validation("at least one start URL is required", nil)
	}
	if p.MaxDepth < 0 || p.MaxDepth > 3 {
		return nil, apperr.Validation("max_depth must be within [0,3]", nil)
	}
	if p.MaxConcurrentCrawls == 0 {
		p.MaxConcurrentCrawls = 5
	}
	if p.MaxConcurrentCrawls < 1 || p.MaxConcurrentCrawls > 100 {
		return nil, apperr.Validation("max_concurrent_crawls must be within [1,100]", nil)
	}
	for _, pat := range append(append([]string{}, p.IncludePatterns...), p.ExcludePatterns...) {
		if _, err := globmatch.Compile(pat); err != nil {
			return nil, apperr.Validation("invalid glob pattern: "+pat, err)
		}
	}

	job := &model.CrawlJob{
		Name:                p.Name,
		StartURLs:           p.StartURLs,
		MaxDepth:            p.MaxDepth,
		DomainFilter:        p.DomainFilter,
		IncludePatterns:     p.IncludePatterns,
		ExcludePatterns:     p.ExcludePatterns,
		MaxConcurrentCrawls: p.MaxConcurrentCrawls,
		MaxPages:            p.MaxPages,
		Metadata:            p.Metadata,
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get returns a job with its effective (possibly derived "stalled")
// status applied.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*model.CrawlJob, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Status = job.EffectiveStatus(time.Now().UTC(), m.stallThreshold)
	return job, nil
}

// List returns jobs matching filter, with effective status applied.
func (m *Manager) List(ctx context.Context, filter store.JobListFilter) ([]*model.CrawlJob, error) {
	jobs, err := m.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, j := range jobs {
		j.Status = j.EffectiveStatus(now, m.stallThreshold)
	}
	return jobs, nil
}

// Start transitions a pending job to running. Called by the Runner
// immediately before handing the job to the Crawl Pipeline.
func (m *Manager) Start(ctx context.Context, job *model.CrawlJob) error {
	ok, err := m.store.TransitionJob(ctx, job.ID, job.Version, model.JobStatusRunning, "")
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("job was concurrently modified", nil)
	}
	job.Status = model.JobStatusRunning
	job.Version++
	return nil
}

// Complete marks a job completed.
func (m *Manager) Complete(ctx context.Context, id uuid.UUID, version int64) error {
	ok, err := m.store.TransitionJob(ctx, id, version, model.JobStatusCompleted, "")
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("job was concurrently modified", nil)
	}
	return nil
}

// Fail marks a job failed with the given error message. Per spec.md
// §4.1, a job fails only when it cannot make progress at all; transient
// per-page failures are recorded in FailedPage instead.
func (m *Manager) Fail(ctx context.Context, id uuid.UUID, version int64, reason string) error {
	ok, err := m.store.TransitionJob(ctx, id, version, model.JobStatusFailed, reason)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("job was concurrently modified", nil)
	}
	return nil
}

// Cancel transitions a job to cancelled from any non-terminal state.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if job.Status.IsTerminal() {
		return false, nil
	}
	ok, err := m.store.TransitionJob(ctx, id, job.Version, model.JobStatusCancelled, "")
	return ok, err
}

// BulkCancel cancels many jobs, continuing past individual failures and
// returning the count actually cancelled.
func (m *Manager) BulkCancel(ctx context.Context, ids []uuid.UUID) (int, error) {
	n := 0
	for _, id := range ids {
		ok, err := m.Cancel(ctx, id)
		if err != nil {
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Resume bumps the retry generation, computes the unfinished-URL set
// (start URLs with no stored Document plus the URLs recorded as
// FailedPage in the previous generation; discovered links are not
// tracked and are not part of the set), and moves the job back to
// "pending" so the Runner starts it again. Returns the job and that
// URL set.
func (m *Manager) Resume(ctx context.Context, id uuid.UUID) (*model.CrawlJob, []string, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != model.JobStatusFailed &&
		job.EffectiveStatus(time.Now().UTC(), m.stallThreshold) != model.JobStatusStalled {
		return nil, nil, apperr.Conflict("job is not resumable from its current state", nil)
	}

	gen, err := m.store.BumpRetryGeneration(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	failed, err := m.store.ListFailedPages(ctx, id, gen-1)
	if err != nil {
		return nil, nil, err
	}
	retried := make(map[string]bool, len(failed))
	for _, fp := range failed {
		retried[fp.URL] = true
	}

	var resumeURLs []string
	for _, u := range job.StartURLs {
		if job.SourceID != nil {
			if _, err := m.store.GetDocumentBySourceURL(ctx, *job.SourceID, u); err == nil {
				continue
			}
		}
		resumeURLs = append(resumeURLs, u)
	}
	for u := range retried {
		resumeURLs = append(resumeURLs, u)
	}

	// Re-enter "pending" rather than "running" directly: the Runner's
	// poll loop is the only thing allowed to hand a job to the Crawl
	// Pipeline, so resumed jobs go through the same Start() path as new
	// ones. The pipeline itself doesn't need resumeURLs explicitly — it
	// re-walks job.StartURLs and the content-hash skip naturally passes
	// over pages already ingested unchanged, while previously failed
	// URLs are retried because each run starts with an empty visited
	// set. resumeURLs is returned for caller visibility only.
	ok, err := m.store.TransitionJob(ctx, id, job.Version, model.JobStatusPending, "")
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, apperr.Conflict("job was concurrently modified", nil)
	}
	job.Status = model.JobStatusPending
	job.RetryGeneration = gen
	return job, resumeURLs, nil
}

// UpdateCounters applies an accumulated delta to a job's progress
// counters. snippets_extracted remains the single source of truth: when
// a page is skipped as unchanged, the caller folds the document's
// existing snippet count into the delta rather than passing zero.
func (m *Manager) UpdateCounters(ctx context.Context, id uuid.UUID, delta model.JobCounters) error {
	return m.store.UpdateCounters(ctx, id, delta)
}

// Heartbeat records liveness for a running job.
func (m *Manager) Heartbeat(ctx context.Context, id uuid.UUID) error {
	return m.store.Heartbeat(ctx, id)
}

// Transition performs an arbitrary exclusive state transition (used by
// the Crawl Pipeline for phase bookkeeping that isn't Start/Complete/Fail).
func (m *Manager) Transition(ctx context.Context, id uuid.UUID, version int64, status model.JobStatus, errMsg string) (bool, error) {
	return m.store.TransitionJob(ctx, id, version, status, errMsg)
}
