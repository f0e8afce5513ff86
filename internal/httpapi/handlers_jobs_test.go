package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"codedox/internal/jobs"
)

func newJobsTestApp() *fiber.App {
	app := fiber.New()
	mgr := jobs.NewManager(nil, 0)
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("manager", mgr)
		return c.Next()
	})
	registerJobRoutes(app.Group("/api"))
	return app
}

func TestCreateCrawlHandlerRejectsEmptyStartURLs(t *testing.T) {
	app := newJobsTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/crawl", bytes.NewBufferString(`{"name":"docs"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateCrawlHandlerRejectsMalformedBody(t *testing.T) {
	app := newJobsTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/crawl", bytes.NewBufferString(`not json`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetJobHandlerRejectsInvalidID(t *testing.T) {
	app := newJobsTestApp()

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCancelJobHandlerRejectsInvalidID(t *testing.T) {
	app := newJobsTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/not-a-uuid/cancel", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestResumeJobHandlerRejectsInvalidID(t *testing.T) {
	app := newJobsTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/not-a-uuid/resume", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestBulkCancelJobsHandlerRejectsInvalidID(t *testing.T) {
	app := newJobsTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/bulk-cancel", bytes.NewBufferString(`{"ids":["not-a-uuid"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
