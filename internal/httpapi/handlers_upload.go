package httpapi

import (
	"context"
	"io"
	"mime/multipart"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"codedox/internal/apperr"
	"codedox/internal/config"
	"codedox/internal/extract"
	"codedox/internal/model"
	"codedox/internal/store"
)

// registerUploadRoutes adds the manual-ingestion surface, gated behind
// UPLOAD_ENABLED: a way to hand CodeDox a document's content directly
// (e.g. a local file or a page rendered outside the crawler) without
// running it through the Crawl Pipeline.
func registerUploadRoutes(g fiber.Router) {
	g.Post("/upload", uploadDocumentHandler)
	g.Post("/upload/file", uploadFileHandler)
	g.Post("/upload/files", uploadFilesHandler)
	g.Post("/upload/markdown", uploadMarkdownHandler)
}

type uploadRequest struct {
	SourceName  string  `json:"sourceName"`
	URL         string  `json:"url"`
	Content     string  `json:"content"`
	ContentType string  `json:"contentType"`
	Version     *string `json:"version"`
}

type uploadResult struct {
	DocumentID     uuid.UUID `json:"documentId"`
	SourceID       uuid.UUID `json:"sourceId"`
	SnippetsStored int       `json:"snippetsStored"`
}

// ingestDocument is the shared path behind every /upload* route:
// resolve (or create) the source, upsert the document, extract code
// snippets, and replace the document's stored snippet set.
func ingestDocument(ctx context.Context, st *store.Store, cfg *config.Config, sourceName string, version *string, url, content, contentType string) (uploadResult, error) {
	src, err := st.GetOrCreateSource(ctx, sourceName, version, url, model.SourceKindUpload)
	if err != nil {
		return uploadResult{}, err
	}

	hash := store.HashContent(content)
	markdown := content
	if isHTMLContentType(contentType) {
		if converted, convErr := htmlmd.NewConverter(url, true, nil).ConvertString(content); convErr == nil {
			markdown = converted
		}
	}
	docID, _, err := st.UpsertDocument(ctx, src.ID, url, "", hash, markdown, 0)
	if err != nil {
		return uploadResult{}, err
	}

	extractor := extract.ForContentType(contentType, url, cfg.Code.MinCodeLines)
	blocks, err := extractor.Extract(content)
	if err != nil {
		return uploadResult{}, apperr.Extract("extract uploaded document", err)
	}

	snippets := make([]model.CodeSnippet, 0, len(blocks))
	for _, b := range blocks {
		if len(b.Code) > cfg.Code.MaxCodeBlockSize {
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

	if err := st.ReplaceSnippets(ctx, docID, snippets); err != nil {
		return uploadResult{}, err
	}

	return uploadResult{DocumentID: docID, SourceID: src.ID, SnippetsStored: len(snippets)}, nil
}

func uploadDocumentHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	cfg := c.Locals("config").(*config.Config)

	var req uploadRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.Validation("invalid request body", err))
	}
	if req.SourceName == "" || req.URL == "" || req.Content == "" {
		return writeError(c, apperr.Validation("sourceName, url, and content are required", nil))
	}

	result, err := ingestDocument(c.Context(), st, cfg, req.SourceName, req.Version, req.URL, req.Content, req.ContentType)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// uploadFileHandler ingests a single multipart file, deriving the
// document URL from sourceName/filename so repeated uploads of the
// same file update the same document instead of creating duplicates.
func uploadFileHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	cfg := c.Locals("config").(*config.Config)

	sourceName := c.FormValue("sourceName")
	if sourceName == "" {
		return writeError(c, apperr.Validation("sourceName is required", nil))
	}
	var version *string
	if v := c.FormValue("version"); v != "" {
		version = &v
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, apperr.Validation("file is required", err))
	}
	content, contentType, err := readUploadedFile(fh)
	if err != nil {
		return writeError(c, apperr.Validation("read uploaded file", err))
	}

	docURL := "file://" + sourceName + "/" + fh.Filename
	result, err := ingestDocument(c.Context(), st, cfg, sourceName, version, docURL, content, contentType)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// uploadFilesHandler ingests a batch of multipart files under one
// source in a single request, returning per-file results so a partial
// failure doesn't hide the files that did succeed.
func uploadFilesHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	cfg := c.Locals("config").(*config.Config)

	sourceName := c.FormValue("sourceName")
	if sourceName == "" {
		return writeError(c, apperr.Validation("sourceName is required", nil))
	}
	var version *string
	if v := c.FormValue("version"); v != "" {
		version = &v
	}

	form, err := c.MultipartForm()
	if err != nil {
		return writeError(c, apperr.Validation("invalid multipart form", err))
	}
	files := form.File["files"]
	if len(files) == 0 {
		return writeError(c, apperr.Validation("at least one file is required", nil))
	}

	type fileOutcome struct {
		Filename string `json:"filename"`
		Result   *uploadResult `json:"result,omitempty"`
		Error    string `json:"error,omitempty"`
	}
	outcomes := make([]fileOutcome, 0, len(files))
	for _, fh := range files {
		content, contentType, err := readUploadedFile(fh)
		if err != nil {
			outcomes = append(outcomes, fileOutcome{Filename: fh.Filename, Error: err.Error()})
			continue
		}
		docURL := "file://" + sourceName + "/" + fh.Filename
		result, err := ingestDocument(c.Context(), st, cfg, sourceName, version, docURL, content, contentType)
		if err != nil {
			outcomes = append(outcomes, fileOutcome{Filename: fh.Filename, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, fileOutcome{Filename: fh.Filename, Result: &result})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"files": outcomes})
}

type uploadMarkdownRequest struct {
	SourceName string  `json:"sourceName"`
	URL        string  `json:"url"`
	Markdown   string  `json:"markdown"`
	Version    *string `json:"version"`
}

// uploadMarkdownHandler ingests raw Markdown directly, skipping the
// HTML-to-Markdown conversion step since the content is already in its
// final stored form.
func uploadMarkdownHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	cfg := c.Locals("config").(*config.Config)

	var req uploadMarkdownRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.Validation("invalid request body", err))
	}
	if req.SourceName == "" || req.URL == "" || req.Markdown == "" {
		return writeError(c, apperr.Validation("sourceName, url, and markdown are required", nil))
	}

	result, err := ingestDocument(c.Context(), st, cfg, req.SourceName, req.Version, req.URL, req.Markdown, "text/markdown")
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// readUploadedFile reads a multipart file's contents. The returned
// content-type may be empty, in which case ingestDocument's call to
// extract.ForContentType falls back to the file's extension.
func readUploadedFile(fh *multipart.FileHeader) (string, string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", "", err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", "", err
	}
	return string(data), fh.Header.Get("Content-Type"), nil
}

func isHTMLContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}
