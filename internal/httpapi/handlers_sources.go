package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"codedox/internal/annotate"
	"codedox/internal/apperr"
	"codedox/internal/jobs"
	"codedox/internal/progress"
	"codedox/internal/store"
)

func registerSourceRoutes(g fiber.Router) {
	g.Get("/sources", listSourcesHandler)
	g.Get("/sources/:id", getSourceHandler)
	g.Patch("/sources/:id", renameSourceHandler)
	g.Delete("/sources/:id", deleteSourceHandler)
	g.Post("/sources/bulk-delete", bulkDeleteSourcesHandler)
	g.Get("/sources/:id/documents", listSourceDocumentsHandler)
	g.Get("/sources/:id/snippets", listSourceSnippetsHandler)
	g.Post("/sources/:id/recrawl", recrawlSourceHandler)
	g.Post("/sources/:id/regenerate", regenerateSourceHandler)
}

func listSourcesHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	sources, err := st.ListSources(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"sources": sources})
}

func getSourceHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid source id", err))
	}
	src, err := st.GetSource(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(src)
}

func renameSourceHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid source id", err))
	}

	var req struct {
		Name    string  `json:"name"`
		Version *string `json:"version"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.Validation("invalid request body", err))
	}

	if err := st.RenameSource(c.Context(), id, req.Name, req.Version); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func deleteSourceHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid source id", err))
	}
	if err := st.DeleteSource(c.Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func bulkDeleteSourcesHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.Validation("invalid request body", err))
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, s := range req.IDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return writeError(c, apperr.Validation("invalid source id: "+s, err))
		}
		ids = append(ids, id)
	}

	n, err := st.BulkDeleteSources(c.Context(), ids)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": n})
}

func listSourceDocumentsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid source id", err))
	}

	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	docs, total, err := st.ListDocumentsBySource(c.Context(), id, limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"documents": docs, "total": total, "limit": limit, "offset": offset})
}

func listSourceSnippetsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid source id", err))
	}

	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	snippets, total, err := st.ListSnippetsBySource(c.Context(), id, limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"snippets": snippets, "total": total, "limit": limit, "offset": offset})
}

// recrawlSourceHandler starts a fresh crawl job against a source's
// original base URL, reusing the name so the Crawl Pipeline's
// ensureSource resolves back to the same source row instead of
// creating a duplicate.
func recrawlSourceHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	mgr := c.Locals("manager").(*jobs.Manager)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid source id", err))
	}
	src, err := st.GetSource(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if src.BaseURL == "" {
		return writeError(c, apperr.Validation("source has no base url to recrawl", nil))
	}

	var req struct {
		MaxDepth int `json:"maxDepth"`
	}
	_ = c.BodyParser(&req)
	if req.MaxDepth == 0 {
		req.MaxDepth = 2
	}

	job, err := mgr.CreateJob(c.Context(), jobs.CreateParams{
		Name:      src.Name,
		StartURLs: []string{src.BaseURL},
		MaxDepth:  req.MaxDepth,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(job)
}

// regenerateSourceHandler re-runs annotation for every snippet in a
// source, streaming progress over the Progress Tracker topic keyed by
// the source id (spec.md §4.7, §6: POST /sources/{id}/regenerate).
func regenerateSourceHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	broker, _ := c.Locals("broker").(*progress.Broker)
	pool, _ := c.Locals("pool").(*annotate.Pool)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid source id", err))
	}
	if _, err := st.GetSource(c.Context(), id); err != nil {
		return writeError(c, err)
	}
	if pool == nil {
		return writeError(c, apperr.Validation("annotator is disabled", nil))
	}

	onProgress := func(done, total int) {
		if broker == nil {
			return
		}
		broker.Publish(id.String(), "processed", map[string]interface{}{"done": done, "total": total})
	}

	total, err := annotate.Regenerate(c.Context(), pool, st, id, onProgress)
	if err != nil {
		if broker != nil {
			broker.Publish(id.String(), "failed", map[string]interface{}{"error": err.Error()})
		}
		return writeError(c, err)
	}
	if broker != nil {
		broker.Publish(id.String(), "changed", map[string]interface{}{"regenerated": total})
	}
	return c.JSON(fiber.Map{"regenerated": total})
}
