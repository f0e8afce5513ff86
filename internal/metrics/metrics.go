// Package metrics exposes Prometheus counters and histograms for the
// crawl pipeline, annotator, search surface, and HTTP API, grounded on
// the prometheus/client_golang types netobserv-netobserv-agent's
// pkg/flow/tracer_map.go passes around (prometheus.Counter,
// prometheus.Histogram). A private Registry (rather than the package
// default) keeps Export's output limited to CodeDox's own series and
// free of the Go-runtime collectors client_golang registers by default.
package metrics

import (
	"bytes"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var registry = prometheus.NewRegistry()

var factory = promauto.With(registry)

var (
	requestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "codedox_http_requests_total",
		Help: "Total HTTP requests handled by the API surface.",
	}, []string{"method", "path", "status"})

	requestDurationMs = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codedox_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	}, []string{"method", "path"})

	crawlPagesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "codedox_crawl_pages_total",
		Help: "Total pages processed by the crawl pipeline, by outcome.",
	}, []string{"outcome"})

	snippetsExtractedTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "codedox_snippets_extracted_total",
		Help: "Total code snippets extracted.",
	})

	annotateBatchesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "codedox_annotate_batches_total",
		Help: "Total annotator batch calls, by outcome.",
	}, []string{"outcome"})

	annotateLatencyMs = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "codedox_annotate_latency_ms",
		Help:    "Annotator batch call latency in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(50, 2, 10),
	})

	searchRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "codedox_search_requests_total",
		Help: "Total search-surface lookups, by kind.",
	}, []string{"kind"})

	retentionJobsDeletedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "codedox_retention_jobs_deleted_total",
		Help: "Total jobs deleted by TTL retention sweeps, by job type.",
	}, []string{"job_type"})

	retentionDocumentsDeletedTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "codedox_retention_documents_deleted_total",
		Help: "Total documents deleted by TTL retention sweeps.",
	})
)

// RecordRequest increments the request counter and records latency for
// the httpapi surface.
func RecordRequest(method, path string, status int, latencyMs int64) {
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	requestsTotal.With(labels).Inc()
	requestDurationMs.With(prometheus.Labels{"method": method, "path": path}).Observe(float64(latencyMs))
}

// RecordCrawlPage increments the Crawl Pipeline's per-page outcome
// counter (spec.md §4.2: a page is fetched fresh, skipped by the
// content-hash check, or recorded as a FailedPage).
func RecordCrawlPage(outcome string) {
	crawlPagesTotal.WithLabelValues(outcome).Inc()
}

// RecordSnippetsExtracted adds n to the running total of code snippets
// the Extractor Set has produced.
func RecordSnippetsExtracted(n int) {
	if n <= 0 {
		return
	}
	snippetsExtractedTotal.Add(float64(n))
}

// RecordAnnotateBatch records one Annotator Client batch call's outcome
// and latency.
func RecordAnnotateBatch(success bool, latencyMs int64) {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	annotateBatchesTotal.WithLabelValues(outcome).Inc()
	annotateLatencyMs.Observe(float64(latencyMs))
}

// RecordSearchRequest increments the search-surface counter for a given
// kind of lookup (libraries, content, or page).
func RecordSearchRequest(kind string) {
	searchRequestsTotal.WithLabelValues(kind).Inc()
}

// RecordRetentionJobs increments the counter of jobs deleted by TTL
// cleanup.
func RecordRetentionJobs(jobType string, deleted int64) {
	if deleted <= 0 {
		return
	}
	retentionJobsDeletedTotal.WithLabelValues(jobType).Add(float64(deleted))
}

// RecordRetentionDocuments increments the counter of documents deleted
// by TTL cleanup.
func RecordRetentionDocuments(deleted int64) {
	if deleted <= 0 {
		return
	}
	retentionDocumentsDeletedTotal.Add(float64(deleted))
}

// Export renders every registered series in Prometheus text exposition
// format, for the httpapi /metrics route.
func Export() string {
	families, err := registry.Gather()
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}
