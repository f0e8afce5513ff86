// Package mcpserver exposes the four MCP tools (init_crawl,
// search_libraries, get_content, get_page_markdown) that make a
// CodeDox instance usable from an LLM tool-calling client (spec.md
// §4.6).
package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func createInitCrawlTool() mcp.Tool {
	return mcp.NewTool("init_crawl",
		mcp.WithDescription("Start a new documentation crawl job and return its job id immediately; the crawl runs in the background"),
		mcp.WithArray("start_urls",
			mcp.Required(),
			mcp.WithStringItems(),
			mcp.Description("Seed URLs to begin crawling from"),
		),
		mcp.WithString("name",
			mcp.Description("Human-readable name for the resulting library/source (defaults to the first start URL's host)"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum link-following depth from the start URLs (0-3, default 2)"),
		),
		mcp.WithString("domain_filter",
			mcp.Description("Restrict crawling to this host (defaults to the first start URL's host)"),
		),
		mcp.WithArray("url_patterns",
			mcp.WithStringItems(),
			mcp.Description(`Glob patterns ("*" wildcard) a URL must match at least one of to be crawled`),
		),
		mcp.WithNumber("max_concurrent_crawls",
			mcp.Description("Number of pages fetched in parallel (1-100, default 5)"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Maximum number of pages to ingest (0 = unlimited)"),
		),
		mcp.WithArray("exclude_patterns",
			mcp.WithStringItems(),
			mcp.Description(`Glob patterns a URL must not match to be crawled`),
		),
		mcp.WithObject("metadata",
			mcp.Description("Arbitrary string key/value tags stored alongside the job"),
		),
	)
}

func createSearchLibrariesTool() mcp.Tool {
	return mcp.NewTool("search_libraries",
		mcp.WithDescription("Search for ingested documentation libraries (sources) by name"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Library name or partial name to search for"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number, 1-indexed (default 1)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Results per page (default 10)"),
		),
	)
}

func createGetContentTool() mcp.Tool {
	return mcp.NewTool("get_content",
		mcp.WithDescription("Search code snippets within a specific library by id, name, or unambiguous name prefix"),
		mcp.WithString("library_id",
			mcp.Required(),
			mcp.Description("Source id (UUID), exact name, or unique name prefix, as returned by search_libraries"),
		),
		mcp.WithString("query",
			mcp.Description("Full-text query over snippet code/title/description (empty returns most recent snippets)"),
		),
		mcp.WithString("language",
			mcp.Description("Filter by programming language (applied only when query is non-empty)"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number, 1-indexed (default 1)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Results per page (default 10)"),
		),
	)
}

func createGetPageMarkdownTool() mcp.Tool {
	return mcp.NewTool("get_page_markdown",
		mcp.WithDescription("Fetch the full markdown of a single ingested page by URL, chunked to fit a token budget"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Exact URL of a previously ingested page"),
		),
		mcp.WithNumber("chunk_index",
			mcp.Description("Which chunk to return when the page exceeds the token budget (default 0)"),
		),
		mcp.WithString("highlight_query",
			mcp.Description("Optional query terms to bold-highlight in the returned markdown"),
		),
	)
}
