package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"codedox/internal/apperr"
	"codedox/internal/config"
	"codedox/internal/metrics"
	"codedox/internal/search"
	"codedox/internal/store"
)

func registerSearchRoutes(g fiber.Router) {
	g.Get("/search", searchSnippetsHandler)
	g.Get("/search/libraries", searchLibrariesHandler)
	g.Get("/libraries/:id/content", getContentHandler)
	g.Get("/pages", getPageMarkdownHandler)
}

// searchSnippetsHandler is the cross-library snippet search named in
// spec.md §6 (GET /search?q=...&source=...&language=...&limit=...&offset=...),
// unlike getContentHandler which is scoped to one already-resolved
// library id.
func searchSnippetsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	cfg := c.Locals("config").(*config.Config)

	query := c.Query("q")
	if query == "" {
		return writeError(c, apperr.Validation("q is required", nil))
	}
	limit := clampLimit(c.QueryInt("limit", cfg.Search.DefaultMaxResults), cfg.Search.MaxResults)
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	filter := store.SearchFilter{SourceName: c.Query("source"), Language: c.Query("language")}

	metrics.RecordSearchRequest("search")
	snippets, total, err := st.SearchSnippets(c.Context(), query, filter, limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"results": snippets, "total": total, "limit": limit, "offset": offset})
}

func searchLibrariesHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	cfg := c.Locals("config").(*config.Config)

	query := c.Query("q")
	if query == "" {
		return writeError(c, apperr.Validation("q is required", nil))
	}
	page := c.QueryInt("page", 1)
	limit := clampLimit(c.QueryInt("limit", cfg.Search.DefaultMaxResults), cfg.Search.MaxResults)

	metrics.RecordSearchRequest("libraries")
	sources, total, err := st.SearchSources(c.Context(), query, limit, search.Offset(page, limit))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(search.Paginate(sources, page, limit, total, cfg.Search.MaxResults))
}

func getContentHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	cfg := c.Locals("config").(*config.Config)

	src, err := st.ResolveLibraryID(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}

	page := c.QueryInt("page", 1)
	limit := clampLimit(c.QueryInt("limit", cfg.Search.DefaultMaxResults), cfg.Search.MaxResults)
	version := ""
	if src.Version != nil {
		version = *src.Version
	}
	filter := store.SearchFilter{SourceName: src.Name, SourceVersion: version, Language: c.Query("language")}

	metrics.RecordSearchRequest("content")
	snippets, total, err := st.SearchSnippets(c.Context(), c.Query("q"), filter, limit, search.Offset(page, limit))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(search.Paginate(snippets, page, limit, total, cfg.Search.MaxResults))
}

func getPageMarkdownHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	cfg := c.Locals("config").(*config.Config)

	url := c.Query("url")
	if url == "" {
		return writeError(c, apperr.Validation("url is required", nil))
	}

	metrics.RecordSearchRequest("page")
	doc, src, err := st.GetDocumentByURL(c.Context(), url)
	if err != nil {
		return writeError(c, err)
	}

	chunks := search.ChunkMarkdown(doc.Markdown, 2000, cfg.Search.CharsPerToken, cfg.Search.ChunkOverlapFraction)
	idx := c.QueryInt("chunk", 0)
	if idx < 0 || idx >= len(chunks) {
		idx = 0
	}

	text := ""
	if len(chunks) > 0 {
		text = chunks[idx].Text
	}
	if q := c.Query("highlight"); q != "" {
		text = search.HighlightTerms(text, splitTerms(q))
	}

	return c.JSON(fiber.Map{
		"url":         url,
		"source":      src.Name,
		"chunkIndex":  idx,
		"chunkCount":  len(chunks),
		"text":        text,
		"documentId":  doc.ID,
	})
}

func clampLimit(limit, max int) int {
	if limit < 1 {
		return 1
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func splitTerms(s string) []string {
	var terms []string
	cur := ""
	for _, r := range s {
		if r == ' ' || r == ',' {
			if cur != "" {
				terms = append(terms, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		terms = append(terms, cur)
	}
	return terms
}
