package mcpserver

import "testing"

func TestToolNamesMatchMCPContract(t *testing.T) {
	if got := createInitCrawlTool().Name; got != "init_crawl" {
		t.Fatalf("expected init_crawl, got %s", got)
	}
	if got := createSearchLibrariesTool().Name; got != "search_libraries" {
		t.Fatalf("expected search_libraries, got %s", got)
	}
	if got := createGetContentTool().Name; got != "get_content" {
		t.Fatalf("expected get_content, got %s", got)
	}
	if got := createGetPageMarkdownTool().Name; got != "get_page_markdown" {
		t.Fatalf("expected get_page_markdown, got %s", got)
	}
}
