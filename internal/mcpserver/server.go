package mcpserver

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"codedox/internal/config"
	"codedox/internal/jobs"
	"codedox/internal/store"
)

// New builds an MCP server exposing the four CodeDox tools, ready to be
// served over stdio or streamable HTTP.
func New(cfg *config.Config, st *store.Store, mgr *jobs.Manager, log *slog.Logger, version string) *server.MCPServer {
	s := server.NewMCPServer("codedox", version, server.WithToolCapabilities(true))

	s.AddTool(createInitCrawlTool(), handleInitCrawl(mgr, log))
	s.AddTool(createSearchLibrariesTool(), handleSearchLibraries(st, cfg))
	s.AddTool(createGetContentTool(), handleGetContent(st, cfg))
	s.AddTool(createGetPageMarkdownTool(), handleGetPageMarkdown(st, cfg))

	return s
}
