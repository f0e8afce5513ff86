// Package model defines the CodeDox data model: Source, CrawlJob,
// Document, CodeSnippet, FailedPage and the in-flight ExtractedCodeBlock.
package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind tags how a Source's documents arrived.
type SourceKind string

const (
	SourceKindCrawl  SourceKind = "crawl"
	SourceKindUpload SourceKind = "upload"
	SourceKindRepo   SourceKind = "repo"
)

// Source is a logical documentation collection. (name, version) is unique;
// version may be null, treated as a distinct key.
type Source struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Version   *string    `json:"version,omitempty"`
	BaseURL   string     `json:"baseUrl,omitempty"`
	Kind      SourceKind `json:"kind"`
	CreatedAt time.Time  `json:"createdAt"`
}

// JobStatus is the persisted state of a CrawlJob. "stalled" is never
// persisted; it is derived at read time from the heartbeat.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusStalled   JobStatus = "stalled"
)

// JobPhase narrates what a running job is currently doing.
type JobPhase string

const (
	PhaseCrawling   JobPhase = "crawling"
	PhaseExtracting JobPhase = "extracting"
	PhaseFinalizing JobPhase = "finalizing"
)

// JobCounters holds the monotonic progress counters for a CrawlJob.
// SnippetsExtracted is the single source of truth for the snippet count
// shown to users: base_snippet_count + accumulated deltas.
type JobCounters struct {
	PagesCrawled          int64 `json:"pagesCrawled"`
	PagesSkippedUnchanged int64 `json:"pagesSkippedUnchanged"`
	SnippetsExtracted     int64 `json:"snippetsExtracted"`
	FailedPages           int64 `json:"failedPages"`
}

// CrawlJob is the lifecycle record for one ingest run.
type CrawlJob struct {
	ID                 uuid.UUID   `json:"id"`
	SourceID            *uuid.UUID  `json:"sourceId,omitempty"`
	Name                string      `json:"name"`
	StartURLs           []string    `json:"startUrls"`
	MaxDepth            int         `json:"maxDepth"`
	IncludePatterns     []string    `json:"includePatterns,omitempty"`
	ExcludePatterns     []string    `json:"excludePatterns,omitempty"`
	DomainFilter        string      `json:"domainFilter,omitempty"`
	MaxConcurrentCrawls int         `json:"maxConcurrentCrawls"`
	MaxPages            int         `json:"maxPages"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	Status              JobStatus   `json:"status"`
	Phase               JobPhase    `json:"phase,omitempty"`
	Counters            JobCounters `json:"counters"`
	BaseSnippetCount    int64       `json:"baseSnippetCount"`
	RetryGeneration     int         `json:"retryGeneration"`
	HeartbeatAt         time.Time   `json:"heartbeatAt"`
	ErrorMessage        string      `json:"errorMessage,omitempty"`
	Version             int64       `json:"-"`
	CreatedAt           time.Time   `json:"createdAt"`
	StartedAt           *time.Time  `json:"startedAt,omitempty"`
	EndedAt             *time.Time  `json:"endedAt,omitempty"`
}

// EffectiveStatus derives the "stalled" presentation state from the
// heartbeat without ever persisting it as a terminal state.
func (j *CrawlJob) EffectiveStatus(now time.Time, stallThreshold time.Duration) JobStatus {
	if j.Status == JobStatusRunning && !j.HeartbeatAt.IsZero() && now.Sub(j.HeartbeatAt) > stallThreshold {
		return JobStatusStalled
	}
	return j.Status
}

// IsTerminal reports whether the job status is a persisted terminal state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Document is one ingested page or file.
type Document struct {
	ID          uuid.UUID `json:"id"`
	SourceID    uuid.UUID `json:"sourceId"`
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Depth       int       `json:"depth"`
	ContentHash string    `json:"contentHash"`
	Markdown    string    `json:"markdown,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CodeSnippet is one extracted, persisted code block.
type CodeSnippet struct {
	ID          uuid.UUID `json:"id"`
	DocumentID  uuid.UUID `json:"documentId"`
	Language    string    `json:"language,omitempty"`
	Code        string    `json:"code"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	Hierarchy   []string  `json:"hierarchy,omitempty"`
	LineStart   int       `json:"lineStart"`
	LineEnd     int       `json:"lineEnd"`
	CodeHash    string    `json:"codeHash"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FailedPage records a URL that was attempted but not ingested.
type FailedPage struct {
	JobID           uuid.UUID `json:"jobId"`
	URL             string    `json:"url"`
	ErrorMessage    string    `json:"errorMessage"`
	FailedAt        time.Time `json:"failedAt"`
	RetryGeneration int       `json:"retryGeneration"`
}

// ExtractedContext is the semantic context assembled for one code block:
// the nearest preceding heading, the text between that heading and the
// block, and the full ancestor/sibling heading hierarchy.
type ExtractedContext struct {
	Title       string
	Description string
	Hierarchy   []string
	RawLines    []string
}

// ExtractedCodeBlock is the in-flight (not persisted) result of running
// an extractor over one document. Extractors are pure functions of their
// input bytes: identical input must yield an identical, ordered list of
// ExtractedCodeBlocks.
type ExtractedCodeBlock struct {
	Language     string
	Code         string
	Context      ExtractedContext
	LineStart    int
	LineEnd      int
	SourceOffset int
	Filename     string
}
