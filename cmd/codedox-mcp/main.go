// Command codedox-mcp serves the CodeDox tool surface over stdio for
// MCP clients, using the same store and job manager as the HTTP API
// but none of its transport.
package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mark3labs/mcp-go/server"

	"codedox/internal/config"
	"codedox/internal/jobs"
	"codedox/internal/mcpserver"
	"codedox/internal/store"
)

func main() {
	configPath := os.Getenv("CODEDOX_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg := config.Load(configPath)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Minimal logging to avoid cluttering MCP stdio.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)
	mgr := jobs.NewManager(st, time.Duration(cfg.Crawl.HeartbeatStallThreshold)*time.Second)

	mcpServer := mcpserver.New(cfg, st, mgr, logger, "1.0.0")

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Error("mcp server failed", "error", err)
		os.Exit(1)
	}
}
