package jobs

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codedox/internal/apperr"
	"codedox/internal/model"
	"codedox/internal/store"
)

func TestCreateJobRejectsEmptyStartURLs(t *testing.T) {
	m := NewManager(nil, 0)
	_, err := m.CreateJob(context.Background(), CreateParams{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateJobRejectsOutOfRangeMaxDepth(t *testing.T) {
	m := NewManager(nil, 0)
	_, err := m.CreateJob(context.Background(), CreateParams{StartURLs: []string{"https://example.com"}, MaxDepth: 4})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateJobRejectsOutOfRangeConcurrency(t *testing.T) {
	m := NewManager(nil, 0)
	_, err := m.CreateJob(context.Background(), CreateParams{StartURLs: []string{"https://example.com"}, MaxConcurrentCrawls: 200})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateJobDefaultsConcurrencyWhenZero(t *testing.T) {
	s, mock := newMockStore(t)
	m := NewManager(s, 0)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO crawl_jobs`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "heartbeat_at"}).AddRow(time.Now(), time.Now()))

	job, err := m.CreateJob(context.Background(), CreateParams{StartURLs: []string{"https://example.com"}})
	require.NoError(t, err)
	assert.Equal(t, 5, job.MaxConcurrentCrawls)
	assert.Equal(t, model.JobStatusPending, job.Status)
}

func TestCreateJobRejectsInvalidGlobPattern(t *testing.T) {
	m := NewManager(nil, 0)
	_, err := m.CreateJob(context.Background(), CreateParams{
		StartURLs:       []string{"https://example.com"},
		IncludePatterns: []string{"["},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(db), mock
}

const jobColumnNames = "id, source_id, name, start_urls, max_depth, include_patterns, exclude_patterns, domain_filter, " +
	"max_concurrent_crawls, max_pages, status, phase, " +
	"pages_crawled, pages_skipped_unchanged, snippets_extracted, failed_pages_count, " +
	"base_snippet_count, retry_generation, heartbeat_at, error_message, version, " +
	"created_at, started_at, ended_at, metadata"

func jobRow(id uuid.UUID, status model.JobStatus, version int64, heartbeat time.Time) *sqlmock.Rows {
	cols := []string{
		"id", "source_id", "name", "start_urls", "max_depth", "include_patterns", "exclude_patterns", "domain_filter",
		"max_concurrent_crawls", "max_pages", "status", "phase",
		"pages_crawled", "pages_skipped_unchanged", "snippets_extracted", "failed_pages_count",
		"base_snippet_count", "retry_generation", "heartbeat_at", "error_message", "version",
		"created_at", "started_at", "ended_at", "metadata",
	}
	return sqlmock.NewRows(cols).AddRow(
		id, nil, "docs", []byte(`["https://example.com"]`), 1, []byte(`[]`), []byte(`[]`), "",
		5, 0, string(status), "",
		0, 0, 0, 0,
		0, 0, heartbeat, "", version,
		time.Now(), nil, nil, []byte(`{}`),
	)
}

func TestCancelReturnsFalseForTerminalJob(t *testing.T) {
	s, mock := newMockStore(t)
	m := NewManager(s, 0)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + jobColumnNames + ` FROM crawl_jobs WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(jobRow(id, model.JobStatusCompleted, 1, time.Now()))

	ok, err := m.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelTransitionsNonTerminalJob(t *testing.T) {
	s, mock := newMockStore(t)
	m := NewManager(s, 0)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + jobColumnNames + ` FROM crawl_jobs WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(jobRow(id, model.JobStatusRunning, 1, time.Now()))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE crawl_jobs`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := m.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetAppliesStalledEffectiveStatus(t *testing.T) {
	s, mock := newMockStore(t)
	m := NewManager(s, time.Minute)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + jobColumnNames + ` FROM crawl_jobs WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(jobRow(id, model.JobStatusRunning, 1, time.Now().Add(-time.Hour)))

	job, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusStalled, job.Status)
}

func TestBulkCancelCountsOnlyActuallyCancelled(t *testing.T) {
	s, mock := newMockStore(t)
	m := NewManager(s, 0)
	idA, idB := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + jobColumnNames + ` FROM crawl_jobs WHERE id = $1`)).
		WithArgs(idA).
		WillReturnRows(jobRow(idA, model.JobStatusRunning, 1, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE crawl_jobs`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + jobColumnNames + ` FROM crawl_jobs WHERE id = $1`)).
		WithArgs(idB).
		WillReturnRows(jobRow(idB, model.JobStatusCompleted, 1, time.Now()))

	n, err := m.BulkCancel(context.Background(), []uuid.UUID{idA, idB})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
