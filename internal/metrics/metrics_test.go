package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	RecordRequest("GET", "/api/search/libraries", 200, 42)

	out := Export()
	if !strings.Contains(out, `codedox_http_requests_total{method="GET",path="/api/search/libraries",status="200"}`) {
		t.Fatalf("expected HTTP request metric in export, got:\n%s", out)
	}
	if !strings.Contains(out, "codedox_http_request_duration_ms_sum") || !strings.Contains(out, "codedox_http_request_duration_ms_count") {
		t.Fatalf("expected latency metric headers in export, got:\n%s", out)
	}
}

func TestRecordCrawlPage(t *testing.T) {
	RecordCrawlPage("fetched")
	RecordCrawlPage("skipped")
	RecordCrawlPage("failed")

	out := Export()
	for _, outcome := range []string{"fetched", "skipped", "failed"} {
		want := `codedox_crawl_pages_total{outcome="` + outcome + `"}`
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in export, got:\n%s", want, out)
		}
	}
}

func TestRecordSnippetsExtracted(t *testing.T) {
	RecordSnippetsExtracted(7)
	RecordSnippetsExtracted(3)

	out := Export()
	if !strings.Contains(out, "codedox_snippets_extracted_total") {
		t.Fatalf("expected snippets_extracted_total in export, got:\n%s", out)
	}
}

func TestRecordAnnotateBatch(t *testing.T) {
	RecordAnnotateBatch(true, 120)
	RecordAnnotateBatch(false, 80)

	out := Export()
	if !strings.Contains(out, `codedox_annotate_batches_total{outcome="success"}`) {
		t.Fatalf("expected success outcome in export, got:\n%s", out)
	}
	if !strings.Contains(out, `codedox_annotate_batches_total{outcome="failed"}`) {
		t.Fatalf("expected failed outcome in export, got:\n%s", out)
	}
	if !strings.Contains(out, "codedox_annotate_latency_ms_sum") || !strings.Contains(out, "codedox_annotate_latency_ms_count") {
		t.Fatalf("expected annotate latency metrics in export, got:\n%s", out)
	}
}

func TestRecordSearchRequest(t *testing.T) {
	RecordSearchRequest("libraries")
	RecordSearchRequest("content")
	RecordSearchRequest("page")

	out := Export()
	for _, kind := range []string{"libraries", "content", "page"} {
		want := `codedox_search_requests_total{kind="` + kind + `"}`
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in export, got:\n%s", want, out)
		}
	}
}

func TestRecordRetention(t *testing.T) {
	RecordRetentionJobs("crawl", 4)
	RecordRetentionDocuments(9)

	out := Export()
	if !strings.Contains(out, `codedox_retention_jobs_deleted_total{job_type="crawl"}`) {
		t.Fatalf("expected retention_jobs_deleted_total in export, got:\n%s", out)
	}
	if !strings.Contains(out, "codedox_retention_documents_deleted_total") {
		t.Fatalf("expected retention_documents_deleted_total in export, got:\n%s", out)
	}
}
