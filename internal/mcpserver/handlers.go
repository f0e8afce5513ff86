package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"codedox/internal/config"
	"codedox/internal/jobs"
	"codedox/internal/model"
	"codedox/internal/search"
	"codedox/internal/store"
)

func errResult(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf(format, args...))},
	}, nil
}

func textResult(text string) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}, nil
}

func handleInitCrawl(mgr *jobs.Manager, log *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		startURLs := req.GetStringSlice("start_urls", nil)
		if len(startURLs) == 0 {
			return errResult("Error: start_urls is required")
		}

		name := req.GetString("name", "")
		maxDepth := req.GetInt("max_depth", 2)
		domainFilter := req.GetString("domain_filter", "")
		maxConcurrentCrawls := req.GetInt("max_concurrent_crawls", 0)
		maxPages := req.GetInt("max_pages", 0)
		includePatterns := req.GetStringSlice("url_patterns", nil)
		excludePatterns := req.GetStringSlice("exclude_patterns", nil)
		metadata := stringMapArg(req.GetArguments(), "metadata")

		job, err := mgr.CreateJob(ctx, jobs.CreateParams{
			Name:                name,
			StartURLs:           startURLs,
			MaxDepth:            maxDepth,
			DomainFilter:        domainFilter,
			MaxConcurrentCrawls: maxConcurrentCrawls,
			MaxPages:            maxPages,
			IncludePatterns:     includePatterns,
			ExcludePatterns:     excludePatterns,
			Metadata:            metadata,
		})
		if err != nil {
			if log != nil {
				log.Warn("mcp: init_crawl failed", "error", err)
			}
			return errResult("Error starting crawl: %v", err)
		}

		return textResult(fmt.Sprintf("Crawl job started.\n\nid: %s\nstatus: %s\nstart_urls: %s\n\nPoll job status via the HTTP API (GET /api/jobs/%s) or re-query once the job completes.", job.ID, job.Status, strings.Join(startURLs, ", "), job.ID))
	}
}

// stringMapArg pulls an object-typed tool argument out of the raw
// arguments map and coerces its values to strings, skipping anything
// that isn't itself a string (mcp-go decodes JSON objects as
// map[string]interface{}).
func stringMapArg(args map[string]interface{}, key string) map[string]string {
	raw, ok := args[key].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func handleSearchLibraries(st *store.Store, cfg *config.Config) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || query == "" {
			return errResult("Error: query is required")
		}

		page := req.GetInt("page", 1)
		limit := req.GetInt("limit", cfg.Search.DefaultMaxResults)

		sources, total, err := st.SearchSources(ctx, query, limit, search.Offset(page, limit))
		if err != nil {
			return errResult("Search failed: %v", err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Found %d libraries matching %q (page %d):\n\n", total, query, page)
		for _, s := range sources {
			version := ""
			if s.Version != nil {
				version = *s.Version
			}
			fmt.Fprintf(&b, "- %s (id: %s", s.Name, s.ID)
			if version != "" {
				fmt.Fprintf(&b, ", version: %s", version)
			}
			b.WriteString(")\n")
		}
		if len(sources) == 0 {
			b.WriteString("(no matches)\n")
		}
		return textResult(b.String())
	}
}

func handleGetContent(st *store.Store, cfg *config.Config) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		libraryID, err := req.RequireString("library_id")
		if err != nil || libraryID == "" {
			return errResult("Error: library_id is required")
		}

		src, err := st.ResolveLibraryID(ctx, libraryID)
		if err != nil {
			return errResult("Library not found: %v", err)
		}

		query := req.GetString("query", "")
		language := req.GetString("language", "")
		page := req.GetInt("page", 1)
		limit := req.GetInt("limit", cfg.Search.DefaultMaxResults)

		version := ""
		if src.Version != nil {
			version = *src.Version
		}
		filter := store.SearchFilter{SourceName: src.Name, SourceVersion: version, Language: language}

		offset := search.Offset(page, limit)
		var snippets []*model.CodeSnippet
		var total int64
		if query == "" {
			snippets, total, err = st.ListSnippetsBySource(ctx, src.ID, limit, offset)
		} else {
			snippets, total, err = st.SearchSnippets(ctx, query, filter, limit, offset)
		}
		if err != nil {
			return errResult("Search failed: %v", err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d snippets in %s (page %d):\n\n", total, src.Name, page)
		for _, s := range snippets {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(&b, "### %s", title)
			if s.Language != "" {
				fmt.Fprintf(&b, " [%s]", s.Language)
			}
			b.WriteString("\n\n")
			if s.Description != "" {
				fmt.Fprintf(&b, "%s\n\n", search.Preview(s.Description, cfg.Search.SnippetPreviewLength))
			}
			fmt.Fprintf(&b, "```%s\n%s\n```\n\n", s.Language, s.Code)
		}
		if len(snippets) == 0 {
			b.WriteString("(no matching snippets)\n")
		}
		return textResult(b.String())
	}
}

func handleGetPageMarkdown(st *store.Store, cfg *config.Config) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil || url == "" {
			return errResult("Error: url is required")
		}
		chunkIndex := req.GetInt("chunk_index", 0)
		highlight := req.GetString("highlight_query", "")

		doc, src, err := st.GetDocumentByURL(ctx, url)
		if err != nil {
			return errResult("Page not found: %v", err)
		}

		chunks := search.ChunkMarkdown(doc.Markdown, 2000, cfg.Search.CharsPerToken, cfg.Search.ChunkOverlapFraction)
		if len(chunks) == 0 {
			return textResult("(page has no content)")
		}
		if chunkIndex < 0 || chunkIndex >= len(chunks) {
			chunkIndex = 0
		}

		text := chunks[chunkIndex].Text
		if highlight != "" {
			text = search.HighlightTerms(text, strings.Fields(highlight))
		}

		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\nsource: %s\nchunk %d of %d\n\n%s\n", url, src.Name, chunkIndex+1, len(chunks), text)
		return textResult(b.String())
	}
}
