package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"codedox/internal/store"
)

func newSourcesTestApp() *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("store", (*store.Store)(nil))
		return c.Next()
	})
	registerSourceRoutes(app.Group("/api"))
	return app
}

func TestGetSourceHandlerRejectsInvalidID(t *testing.T) {
	app := newSourcesTestApp()

	req := httptest.NewRequest(http.MethodGet, "/api/sources/not-a-uuid", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDeleteSourceHandlerRejectsInvalidID(t *testing.T) {
	app := newSourcesTestApp()

	req := httptest.NewRequest(http.MethodDelete, "/api/sources/not-a-uuid", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestBulkDeleteSourcesHandlerRejectsInvalidID(t *testing.T) {
	app := newSourcesTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/sources/bulk-delete", bytes.NewBufferString(`{"ids":["not-a-uuid"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRenameSourceHandlerRejectsMalformedBody(t *testing.T) {
	app := newSourcesTestApp()

	req := httptest.NewRequest(http.MethodPatch, "/api/sources/"+validSourceID, bytes.NewBufferString(`not json`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

const validSourceID = "11111111-1111-1111-1111-111111111111"
