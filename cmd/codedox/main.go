// Command codedox runs the CodeDox server and exposes operator
// subcommands (init, crawl, upload, search) against the same storage
// layer the server uses.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	mcpserverlib "github.com/mark3labs/mcp-go/server"

	"codedox/internal/annotate"
	"codedox/internal/config"
	"codedox/internal/crawler"
	"codedox/internal/extract"
	"codedox/internal/httpapi"
	"codedox/internal/jobs"
	"codedox/internal/mcpserver"
	"codedox/internal/migrate"
	"codedox/internal/model"
	"codedox/internal/progress"
	"codedox/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "init":
		cmdInit(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "crawl":
		cmdCrawl(os.Args[2:])
	case "upload":
		cmdUpload(os.Args[2:])
	case "search":
		cmdSearch(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `codedox: documentation crawler and code-snippet search

Usage:
  codedox init [--drop] [--force] [--config path]
  codedox serve [--config path] [--mcp]
  codedox crawl start --url URL [--name NAME] [--max-depth N] [--max-pages N]
  codedox crawl status ID
  codedox crawl list [--status STATUS]
  codedox crawl cancel ID
  codedox crawl resume ID
  codedox upload --source NAME --url URL --file PATH [--content-type TYPE]
  codedox search libraries QUERY...
  codedox search content LIBRARY_ID QUERY...`)
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "config/config.yaml", "path to config file")
}

func loadConfig(path string) *config.Config {
	cfg := config.Load(path)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return cfg
}

func openStore(cfg *config.Config) *store.Store {
	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return store.New(db)
}

func openRedis(cfg *config.Config) *redis.Client {
	if cfg.Redis.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	return redis.NewClient(opts)
}

func newManager(cfg *config.Config, st *store.Store) *jobs.Manager {
	return jobs.NewManager(st, time.Duration(cfg.Crawl.HeartbeatStallThreshold)*time.Second)
}

func newLogger(cfg *config.Config) *slog.Logger {
	out := os.Stdout
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			out = f
		}
	}
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// --- init ---

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := configFlag(fs)
	drop := fs.Bool("drop", false, "drop and recreate the schema before migrating")
	force := fs.Bool("force", false, "skip a failing migration instead of halting")
	fs.Parse(args)

	cfg := config.Load(*configPath)
	if err := migrate.Run(cfg.Database.DSN(), migrate.Options{Drop: *drop, Force: *force}); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	fmt.Println("schema up to date")
}

// --- serve ---

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := configFlag(fs)
	mcpOverStdio := fs.Bool("mcp", false, "serve the MCP tool surface over stdio instead of the HTTP API")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	if err := migrate.Run(cfg.Database.DSN(), migrate.Options{}); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	st := openStore(cfg)
	rdb := openRedis(cfg)
	logger := newLogger(cfg)
	mgr := newManager(cfg, st)

	if *mcpOverStdio {
		srv := mcpserver.New(cfg, st, mgr, logger, "1.0.0")
		if err := mcpserverlib.ServeStdio(srv); err != nil {
			log.Fatalf("mcp server failed: %v", err)
		}
		return
	}

	var fetcher crawler.PageFetcher
	if cfg.Crawl.UseHeadlessBrowser {
		fetcher = crawler.NewRodFetcher(
			time.Duration(cfg.Crawl.FetchTimeoutSeconds)*time.Second,
			cfg.Crawl.UserAgent,
			200*time.Millisecond,
		)
	} else {
		fetcher = crawler.NewHTTPFetcher(time.Duration(cfg.Crawl.FetchTimeoutSeconds)*time.Second, cfg.Crawl.UserAgent)
	}

	var pool *annotate.Pool
	if cfg.Annotator.Enabled {
		client := annotate.NewOpenAIClient(
			cfg.Annotator.BaseURL, cfg.Annotator.APIKey, cfg.Annotator.ExtractionModel,
			time.Duration(cfg.Annotator.TimeoutSeconds)*time.Second,
		)
		pool = annotate.NewPool(client, cfg.Annotator.NumParallel, cfg.Annotator.BatchSize, cfg.Annotator.MaxRetries)
	}

	broker := progress.NewBroker(0, rdb)

	pipeline := crawler.NewPipeline(cfg, st, mgr, fetcher, pool, broker, logger)
	runner := jobs.NewRunner(cfg, mgr, st, pipeline, logger)

	rootCtx := context.Background()
	go runner.Start(rootCtx)

	s := httpapi.NewServer(cfg, st, mgr, broker, pool, rdb, logger)
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// --- crawl ---

func cmdCrawl(args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("crawl "+sub, flag.ExitOnError)
	configPath := configFlag(fs)

	switch sub {
	case "start":
		url := fs.String("url", "", "start URL to crawl")
		name := fs.String("name", "", "human-readable job name")
		maxDepth := fs.Int("max-depth", 2, "maximum link-following depth")
		maxPages := fs.Int("max-pages", 0, "maximum pages to crawl (0 = unbounded)")
		domainFilter := fs.String("domain", "", "restrict discovered links to this domain/subdomain")
		fs.Parse(rest)
		if *url == "" {
			fmt.Fprintln(os.Stderr, "crawl start: --url is required")
			os.Exit(2)
		}

		cfg := loadConfig(*configPath)
		st := openStore(cfg)
		mgr := newManager(cfg, st)
		job, err := mgr.CreateJob(context.Background(), jobs.CreateParams{
			Name: *name, StartURLs: []string{*url}, MaxDepth: *maxDepth,
			DomainFilter: *domainFilter, MaxPages: *maxPages,
		})
		exitOnErr(err)
		printJSON(job)

	case "status":
		fs.Parse(rest)
		id := requireID(fs, "crawl status")
		cfg := loadConfig(*configPath)
		st := openStore(cfg)
		mgr := newManager(cfg, st)
		job, err := mgr.Get(context.Background(), id)
		exitOnErr(err)
		printJSON(job)

	case "list":
		status := fs.String("status", "", "filter by job status")
		fs.Parse(rest)
		cfg := loadConfig(*configPath)
		st := openStore(cfg)
		mgr := newManager(cfg, st)
		list, err := mgr.List(context.Background(), store.JobListFilter{Status: *status, Limit: 100})
		exitOnErr(err)
		printJSON(list)

	case "cancel":
		fs.Parse(rest)
		id := requireID(fs, "crawl cancel")
		cfg := loadConfig(*configPath)
		st := openStore(cfg)
		mgr := newManager(cfg, st)
		ok, err := mgr.Cancel(context.Background(), id)
		exitOnErr(err)
		printJSON(map[string]bool{"cancelled": ok})

	case "resume":
		fs.Parse(rest)
		id := requireID(fs, "crawl resume")
		cfg := loadConfig(*configPath)
		st := openStore(cfg)
		mgr := newManager(cfg, st)
		job, resumeURLs, err := mgr.Resume(context.Background(), id)
		exitOnErr(err)
		printJSON(map[string]interface{}{"job": job, "resumeUrls": resumeURLs})

	default:
		fmt.Fprintf(os.Stderr, "unknown crawl subcommand: %s\n", sub)
		os.Exit(2)
	}
}

// --- upload ---

func cmdUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := configFlag(fs)
	source := fs.String("source", "", "source/library name")
	url := fs.String("url", "", "canonical URL for this document")
	file := fs.String("file", "", "path to the file to ingest")
	contentType := fs.String("content-type", "", "content type hint (text/html, text/markdown, text/x-rst)")
	fs.Parse(args)

	if *source == "" || *url == "" || *file == "" {
		fmt.Fprintln(os.Stderr, "upload: --source, --url, and --file are required")
		os.Exit(2)
	}

	content, err := os.ReadFile(*file)
	exitOnErr(err)

	cfg := loadConfig(*configPath)
	st := openStore(cfg)

	extractor := extract.ForContentType(*contentType, *url, cfg.Code.MinCodeLines)
	blocks, err := extractor.Extract(string(content))
	exitOnErr(err)

	src, err := st.GetOrCreateSource(context.Background(), *source, nil, *url, model.SourceKindUpload)
	exitOnErr(err)

	markdown := string(content)
	if strings.Contains(strings.ToLower(*contentType), "html") {
		if converted, convErr := htmlmd.NewConverter(*url, true, nil).ConvertString(string(content)); convErr == nil {
			markdown = converted
		}
	}

	hash := store.HashContent(string(content))
	docID, _, err := st.UpsertDocument(context.Background(), src.ID, *url, "", hash, markdown, 0)
	exitOnErr(err)

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
	exitOnErr(st.ReplaceSnippets(context.Background(), docID, snippets))

	printJSON(map[string]interface{}{"documentId": docID, "sourceId": src.ID, "snippetsStored": len(snippets)})
}

// --- search ---

func cmdSearch(args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("search "+sub, flag.ExitOnError)
	configPath := configFlag(fs)

	switch sub {
	case "libraries":
		fs.Parse(rest)
		if fs.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "search libraries: query is required")
			os.Exit(2)
		}
		query := strings.Join(fs.Args(), " ")
		cfg := loadConfig(*configPath)
		st := openStore(cfg)
		sources, total, err := st.SearchSources(context.Background(), query, cfg.Search.DefaultMaxResults, 0)
		exitOnErr(err)
		printJSON(map[string]interface{}{"results": sources, "total": total})

	case "content":
		fs.Parse(rest)
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "search content: LIBRARY_ID and query are required")
			os.Exit(2)
		}
		libraryID := fs.Arg(0)
		query := strings.Join(fs.Args()[1:], " ")
		cfg := loadConfig(*configPath)
		st := openStore(cfg)
		src, err := st.ResolveLibraryID(context.Background(), libraryID)
		exitOnErr(err)
		version := ""
		if src.Version != nil {
			version = *src.Version
		}
		snippets, total, err := st.SearchSnippets(context.Background(), query,
			store.SearchFilter{SourceName: src.Name, SourceVersion: version}, cfg.Search.DefaultMaxResults, 0)
		exitOnErr(err)
		printJSON(map[string]interface{}{"results": snippets, "total": total})

	default:
		fmt.Fprintf(os.Stderr, "unknown search subcommand: %s\n", sub)
		os.Exit(2)
	}
}

func requireID(fs *flag.FlagSet, cmdName string) uuid.UUID {
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "%s: job id is required\n", cmdName)
		os.Exit(2)
	}
	id, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid job id: %v\n", cmdName, err)
		os.Exit(2)
	}
	return id
}

func exitOnErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
