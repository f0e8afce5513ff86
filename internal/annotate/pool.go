package annotate

import (
	"context"
	"sync"
	"time"

	"codedox/internal/metrics"
)

// Pool dispatches annotation requests across bounded parallel workers in
// fixed-size batches, retrying a failed batch with backoff before giving
// up on it (spec.md §4.4, §5: num_parallel default 5, batch size 5).
type Pool struct {
	Client      Client
	NumParallel int
	BatchSize   int
	MaxRetries  int
	RetryDelay  time.Duration
}

// NewPool constructs a Pool, filling in spec defaults for zero fields.
func NewPool(client Client, numParallel, batchSize, maxRetries int) *Pool {
	if numParallel <= 0 {
		numParallel = 5
	}
	if batchSize <= 0 {
		batchSize = 5
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Pool{
		Client:      client,
		NumParallel: numParallel,
		BatchSize:   batchSize,
		MaxRetries:  maxRetries,
		RetryDelay:  2 * time.Second,
	}
}

// ProgressFunc is invoked after every batch completes (success or
// exhausted retries) with the cumulative count processed so far.
type ProgressFunc func(done, total int)

// Run annotates every request, returning one Result per input Request in
// input order regardless of batch boundaries.
func (p *Pool) Run(ctx context.Context, reqs []Request, onProgress ProgressFunc) []Result {
	if len(reqs) == 0 {
		return nil
	}

	batches := chunk(reqs, p.BatchSize)
	results := make([][]Result, len(batches))

	sem := make(chan struct{}, p.NumParallel)
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for i, b := range batches {
		i, b := i, b
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.runBatchWithRetry(ctx, b)
			mu.Lock()
			done += len(b)
			if onProgress != nil {
				onProgress(done, len(reqs))
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	out := make([]Result, 0, len(reqs))
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (p *Pool) runBatchWithRetry(ctx context.Context, batch []Request) []Result {
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				metrics.RecordAnnotateBatch(false, time.Since(start).Milliseconds())
				return failAll(batch, ctx.Err())
			case <-time.After(p.RetryDelay * time.Duration(1<<(attempt-1))):
			}
		}
		res, err := p.Client.Annotate(ctx, batch)
		if err == nil {
			metrics.RecordAnnotateBatch(true, time.Since(start).Milliseconds())
			return res
		}
		lastErr = err
	}
	metrics.RecordAnnotateBatch(false, time.Since(start).Milliseconds())
	return failAll(batch, lastErr)
}

func failAll(batch []Request, err error) []Result {
	out := make([]Result, len(batch))
	for i, r := range batch {
		out[i] = Result{SnippetID: r.SnippetID, Err: err}
	}
	return out
}

func chunk(reqs []Request, size int) [][]Request {
	var out [][]Request
	for i := 0; i < len(reqs); i += size {
		end := i + size
		if end > len(reqs) {
			end = len(reqs)
		}
		out = append(out, reqs[i:end])
	}
	return out
}
