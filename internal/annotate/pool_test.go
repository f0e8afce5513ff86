package annotate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	calls     int32
	failUntil int32 // Annotate fails until this many calls have been made
	err       error
	result    func(batch []Request) []Result
}

func (f *fakeClient) Annotate(ctx context.Context, batch []Request) ([]Result, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failUntil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result(batch), nil
	}
	out := make([]Result, len(batch))
	for i, r := range batch {
		out[i] = Result{SnippetID: r.SnippetID, Language: "go"}
	}
	return out, nil
}

func reqs(n int) []Request {
	out := make([]Request, n)
	for i := range out {
		out[i] = Request{SnippetID: string(rune('a' + i))}
	}
	return out
}

func TestNewPoolFillsDefaults(t *testing.T) {
	p := NewPool(&fakeClient{}, 0, 0, 0)
	assert.Equal(t, 5, p.NumParallel)
	assert.Equal(t, 5, p.BatchSize)
	assert.Equal(t, 3, p.MaxRetries)
}

func TestRunReturnsEmptyForNoRequests(t *testing.T) {
	p := NewPool(&fakeClient{}, 2, 2, 1)
	out := p.Run(context.Background(), nil, nil)
	assert.Nil(t, out)
}

func TestRunPreservesInputOrderAcrossBatches(t *testing.T) {
	client := &fakeClient{}
	p := NewPool(client, 2, 2, 1)

	results := p.Run(context.Background(), reqs(5), nil)
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, string(rune('a'+i)), r.SnippetID)
	}
}

func TestRunRetriesFailedBatchUntilSuccess(t *testing.T) {
	client := &fakeClient{failUntil: 1, err: errors.New("rate limited")}
	p := NewPool(client, 1, 2, 3)
	p.RetryDelay = time.Millisecond

	results := p.Run(context.Background(), reqs(2), nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.GreaterOrEqual(t, client.calls, int32(2))
}

func TestRunGivesUpAfterMaxRetries(t *testing.T) {
	client := &fakeClient{failUntil: 100, err: errors.New("down")}
	p := NewPool(client, 1, 2, 2)
	p.RetryDelay = time.Millisecond

	results := p.Run(context.Background(), reqs(2), nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorContains(t, r.Err, "down")
	}
	assert.Equal(t, int32(3), client.calls) // initial attempt + 2 retries
}

func TestRunInvokesProgressCallback(t *testing.T) {
	client := &fakeClient{}
	p := NewPool(client, 1, 2, 1)

	var total int32
	p.Run(context.Background(), reqs(4), func(done, total2 int) {
		atomic.StoreInt32(&total, int32(total2))
	})
	assert.Equal(t, int32(4), total)
}

func TestChunkSplitsIntoFixedSizeGroups(t *testing.T) {
	got := chunk(reqs(5), 2)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 2)
	assert.Len(t, got[1], 2)
	assert.Len(t, got[2], 1)
}

func TestRunStopsRetryingWhenContextCancelled(t *testing.T) {
	client := &fakeClient{failUntil: 100, err: errors.New("down")}
	p := NewPool(client, 1, 2, 5)
	p.RetryDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	results := p.Run(ctx, reqs(2), nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}
