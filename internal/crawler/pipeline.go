package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/google/uuid"

	"codedox/internal/annotate"
	"codedox/internal/config"
	"codedox/internal/extract"
	"codedox/internal/jobs"
	"codedox/internal/metrics"
	"codedox/internal/model"
	"codedox/internal/progress"
	"codedox/internal/store"
)

// Pipeline is the Crawl Pipeline: a bounded worker pool that drains a
// FIFO queue of URLs for one job, fetching, extracting, and persisting
// each page (spec.md §4.2).
type Pipeline struct {
	cfg     *config.Config
	store   *store.Store
	manager *jobs.Manager
	fetcher PageFetcher
	pool    *annotate.Pool
	broker  *progress.Broker
	log     *slog.Logger
}

// NewPipeline constructs a Pipeline. pool may be nil when the annotator
// is disabled, in which case snippets are stored with extractor-derived
// metadata only. broker may be nil, in which case progress events are
// silently skipped (e.g. a test harness with no Progress Tracker wired
// up).
func NewPipeline(cfg *config.Config, st *store.Store, mgr *jobs.Manager, fetcher PageFetcher, pool *annotate.Pool, broker *progress.Broker, log *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, manager: mgr, fetcher: fetcher, pool: pool, broker: broker, log: log}
}

// publish emits a progress event on the job's topic (spec.md §4.7:
// publish(job_id | source_id, event)). A nil broker is a no-op so
// Pipeline keeps working when the Progress Tracker isn't wired in.
func (p *Pipeline) publish(jobID uuid.UUID, eventType string, payload interface{}) {
	if p.broker == nil {
		return
	}
	p.broker.Publish(jobID.String(), eventType, payload)
}

type queueItem struct {
	url   string
	depth int
}

// runState is the mutable, mutex-guarded bookkeeping shared by every
// worker goroutine processing one job's queue.
type runState struct {
	mu            sync.Mutex
	visited       map[string]bool
	queued        map[string]bool
	pagesEnqueued int
	maxPages      int
	queue         chan queueItem
	closed        bool
}

func newRunState(maxPages int) *runState {
	return &runState{
		visited:  make(map[string]bool),
		queued:   make(map[string]bool),
		maxPages: maxPages,
		queue:    make(chan queueItem, 4096),
	}
}

func (rs *runState) enqueue(u string, depth int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return
	}
	n := normalizeURL(u)
	if rs.visited[n] || rs.queued[n] {
		return
	}
	if rs.maxPages > 0 && rs.pagesEnqueued >= rs.maxPages {
		return
	}
	rs.queued[n] = true
	rs.pagesEnqueued++
	select {
	case rs.queue <- queueItem{url: u, depth: depth}:
	default:
		// Queue saturated; the URL stays "queued" but unsent, and will
		// be picked up again on a future resume of this job.
	}
}

// closeQueue closes the work queue exactly once, guarded against a
// concurrent enqueue racing the close.
func (rs *runState) closeQueue() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return
	}
	rs.closed = true
	close(rs.queue)
}

func (rs *runState) markVisited(u string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.visited[normalizeURL(u)] = true
}

func (rs *runState) isDrained() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.pagesEnqueued > 0 && len(rs.visited) >= rs.pagesEnqueued
}

// RunCrawl implements jobs.CrawlExecutor. It owns the job's terminal
// transition: by the time it returns, the job is completed, cancelled,
// or failed.
func (p *Pipeline) RunCrawl(ctx context.Context, job *model.CrawlJob) {
	sourceID, err := p.ensureSource(ctx, job)
	if err != nil {
		p.fail(ctx, job, "resolve source: "+err.Error())
		return
	}

	filters, err := NewFilters(job.DomainFilter, job.IncludePatterns, job.ExcludePatterns, p.cfg.Crawl.RespectRobotsTxt, p.cfg.Crawl.UserAgent)
	if err != nil {
		p.fail(ctx, job, "compile filters: "+err.Error())
		return
	}
	if len(job.StartURLs) == 0 {
		p.fail(ctx, job, "no start urls")
		return
	}
	filters.LoadRobots(ctx, job.StartURLs[0])
	seedHost := hostOf(job.StartURLs[0])

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	concurrency := job.MaxConcurrentCrawls
	if concurrency <= 0 {
		concurrency = p.cfg.Crawl.MaxConcurrentCrawls
	}

	rs := newRunState(job.MaxPages)
	for _, u := range job.StartURLs {
		rs.enqueue(u, 0)
	}

	heartbeatStop := make(chan struct{})
	go p.heartbeatLoop(runCtx, job.ID, heartbeatStop)

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(runCtx, job, sourceID, filters, seedHost, rs)
		}()
	}

	// Closer: once every enqueued URL has been visited and stays that
	// way across one settle tick, close the queue so idle workers exit.
	closeOnce := make(chan struct{})
	go func() {
		defer close(closeOnce)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if rs.isDrained() {
					time.Sleep(200 * time.Millisecond)
					if rs.isDrained() {
						rs.closeQueue()
						return
					}
				}
			}
		}
	}()

	wg.Wait()
	close(heartbeatStop)
	<-closeOnce

	if ctx.Err() != nil {
		p.finishCancelled(ctx, job)
		return
	}
	p.finishCompleted(ctx, job)
}

func (p *Pipeline) worker(ctx context.Context, job *model.CrawlJob, sourceID uuid.UUID, filters *Filters, seedHost string, rs *runState) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-rs.queue:
			if !ok {
				return
			}
			p.processOne(ctx, job, sourceID, item, filters, seedHost, rs)
		}
	}
}

func (p *Pipeline) ensureSource(ctx context.Context, job *model.CrawlJob) (uuid.UUID, error) {
	if job.SourceID != nil {
		return *job.SourceID, nil
	}
	name := job.Name
	if name == "" && len(job.StartURLs) > 0 {
		name = hostOf(job.StartURLs[0])
	}
	src, err := p.store.GetOrCreateSource(ctx, name, nil, job.StartURLs[0], model.SourceKindCrawl)
	if err != nil {
		return uuid.Nil, err
	}
	if err := p.store.SetJobSource(ctx, job.ID, src.ID); err != nil {
		return uuid.Nil, err
	}
	return src.ID, nil
}

func (p *Pipeline) processOne(ctx context.Context, job *model.CrawlJob, sourceID uuid.UUID, item queueItem, filters *Filters, seedHost string, rs *runState) {
	defer rs.markVisited(item.url)

	result, fetchErr := p.fetcher.Fetch(ctx, item.url)
	if fetchErr != nil {
		p.recordFailure(ctx, job, item.url, fetchErr)
		return
	}

	hash := contentHash(result.HTML)
	markdown := htmlToMarkdown(result.FinalURL, result.HTML)
	docID, changed, err := p.store.UpsertDocument(ctx, sourceID, result.FinalURL, "", hash, markdown, item.depth)
	if err != nil {
		p.recordFailure(ctx, job, item.url, err)
		return
	}

	if !changed {
		metrics.RecordCrawlPage("skipped")
		if existing, err := p.store.GetSnippetCountForDocument(ctx, docID); err == nil {
			_ = p.manager.UpdateCounters(ctx, job.ID, model.JobCounters{
				PagesCrawled:          1,
				PagesSkippedUnchanged: 1,
				SnippetsExtracted:     existing,
			})
		}
		p.publish(job.ID, "page", map[string]interface{}{"url": item.url, "status": "skipped"})
		p.discoverLinks(result, item, filters, seedHost, job.MaxDepth, rs)
		return
	}

	extractor := extract.ForExtension(result.FinalURL, p.cfg.Code.MinCodeLines)
	blocks, err := extractor.Extract(result.HTML)
	if err != nil {
		p.recordFailure(ctx, job, item.url, err)
		return
	}

	snippets := make([]model.CodeSnippet, 0, len(blocks))
	for _, b := range blocks {
		if len(b.Code) > p.cfg.Code.MaxCodeBlockSize {
			continue
		}
		snippets = append(snippets, model.CodeSnippet{
			Language:    b.Language,
			Code:        b.Code,
			Title:       b.Context.Title,
			Description: b.Context.Description,
			Filename:    b.Filename,
			Hierarchy:   b.Context.Hierarchy,
			LineStart:   b.LineStart,
			LineEnd:     b.LineEnd,
		})
	}

	if p.pool != nil && len(snippets) > 0 {
		p.annotate(ctx, job.ID, snippets)
	}

	if err := p.store.ReplaceSnippets(ctx, docID, snippets); err != nil {
		p.recordFailure(ctx, job, item.url, err)
		return
	}

	metrics.RecordCrawlPage("fetched")
	metrics.RecordSnippetsExtracted(len(snippets))
	_ = p.manager.UpdateCounters(ctx, job.ID, model.JobCounters{PagesCrawled: 1, SnippetsExtracted: int64(len(snippets))})
	p.publish(job.ID, "page", map[string]interface{}{"url": item.url, "status": "fetched", "snippets": len(snippets)})
	p.discoverLinks(result, item, filters, seedHost, job.MaxDepth, rs)
}

func (p *Pipeline) annotate(ctx context.Context, jobID uuid.UUID, snippets []model.CodeSnippet) {
	reqs := make([]annotate.Request, len(snippets))
	for i, s := range snippets {
		reqs[i] = annotate.Request{
			SnippetID:   fmt.Sprintf("%d", i),
			Code:        s.Code,
			Language:    s.Language,
			Title:       s.Title,
			Description: s.Description,
		}
	}
	results := p.pool.Run(ctx, reqs, func(done, total int) {
		p.publish(jobID, "annotate_progress", map[string]interface{}{"done": done, "total": total})
	})
	byIdx := make(map[string]annotate.Result, len(results))
	for _, r := range results {
		byIdx[r.SnippetID] = r
	}
	for i := range snippets {
		r, ok := byIdx[fmt.Sprintf("%d", i)]
		if !ok || r.Err != nil {
			continue
		}
		if r.Language != "" {
			snippets[i].Language = r.Language
		}
		if r.Title != "" {
			snippets[i].Title = r.Title
		}
		if r.Description != "" {
			snippets[i].Description = r.Description
		}
	}
}

func (p *Pipeline) discoverLinks(result *FetchResult, item queueItem, filters *Filters, seedHost string, maxDepth int, rs *runState) {
	if item.depth >= maxDepth {
		return
	}
	for _, link := range result.Links {
		if filters.Admit(seedHost, link) {
			rs.enqueue(link, item.depth+1)
		}
	}
}

func (p *Pipeline) recordFailure(ctx context.Context, job *model.CrawlJob, u string, err error) {
	metrics.RecordCrawlPage("failed")
	_ = p.store.InsertFailedPage(ctx, model.FailedPage{
		JobID:           job.ID,
		URL:             u,
		ErrorMessage:    err.Error(),
		FailedAt:        time.Now().UTC(),
		RetryGeneration: job.RetryGeneration,
	})
	_ = p.manager.UpdateCounters(ctx, job.ID, model.JobCounters{FailedPages: 1})
	p.publish(job.ID, "error", map[string]interface{}{"url": u, "error": err.Error()})
	if p.log != nil {
		p.log.Warn("crawl: page failed", "job_id", job.ID, "url", u, "error", err)
	}
}

func (p *Pipeline) heartbeatLoop(ctx context.Context, jobID uuid.UUID, stop chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			_ = p.manager.Heartbeat(ctx, jobID)
		}
	}
}

func (p *Pipeline) finishCompleted(ctx context.Context, job *model.CrawlJob) {
	fresh, err := p.store.GetJob(ctx, job.ID)
	if err != nil {
		return
	}
	_ = p.manager.Complete(ctx, job.ID, fresh.Version)
	p.publish(job.ID, "completion", map[string]interface{}{"status": "completed"})
}

func (p *Pipeline) finishCancelled(ctx context.Context, job *model.CrawlJob) {
	fresh, err := p.store.GetJob(ctx, job.ID)
	if err != nil {
		return
	}
	if fresh.Status == model.JobStatusCancelled {
		return
	}
	_, _ = p.manager.Transition(ctx, job.ID, fresh.Version, model.JobStatusCancelled, "crawl cancelled")
	p.publish(job.ID, "completion", map[string]interface{}{"status": "cancelled"})
}

func (p *Pipeline) fail(ctx context.Context, job *model.CrawlJob, reason string) {
	fresh, err := p.store.GetJob(ctx, job.ID)
	version := job.Version
	if err == nil {
		version = fresh.Version
	}
	_ = p.manager.Fail(ctx, job.ID, version, reason)
	p.publish(job.ID, "completion", map[string]interface{}{"status": "failed", "reason": reason})
}

// htmlToMarkdown renders a fetched page's HTML into the Markdown form
// stored on Document.Markdown and served by get_page_markdown. A
// conversion failure is non-fatal: the page is still ingested and
// extracted for code snippets, just without a rendered preview.
func htmlToMarkdown(pageURL, html string) string {
	host := hostOf(pageURL)
	converter := htmlmd.NewConverter(host, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return ""
	}
	return markdown
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
