package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"codedox/internal/config"
	"codedox/internal/store"
)

func newUploadTestApp() *fiber.App {
	app := fiber.New()
	cfg := config.Default()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("store", (*store.Store)(nil))
		return c.Next()
	})
	registerUploadRoutes(app.Group("/api"))
	return app
}

func TestUploadDocumentHandlerRejectsMissingFields(t *testing.T) {
	app := newUploadTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewBufferString(`{"sourceName":"docs"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUploadDocumentHandlerRejectsMalformedBody(t *testing.T) {
	app := newUploadTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewBufferString(`not json`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestIsHTMLContentType(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"text/html; charset=utf-8", true},
		{"TEXT/HTML", true},
		{"text/markdown", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isHTMLContentType(tc.in); got != tc.want {
			t.Fatalf("isHTMLContentType(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
