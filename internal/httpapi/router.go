// Package httpapi mirrors the MCP tool surface over plain HTTP, adding
// job management, library administration, a websocket progress feed,
// and the usual health/metrics endpoints (spec.md §6).
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"codedox/internal/annotate"
	"codedox/internal/config"
	"codedox/internal/jobs"
	"codedox/internal/metrics"
	"codedox/internal/progress"
	"codedox/internal/store"
)

// Server wraps the fiber app with the collaborators its handlers need.
type Server struct {
	app     *fiber.App
	cfg     *config.Config
	store   *store.Store
	manager *jobs.Manager
	broker  *progress.Broker
	pool    *annotate.Pool
	rdb     *redis.Client
	logger  *slog.Logger
}

// NewServer wires the full CodeDox HTTP surface. rdb may be nil when
// REDIS_URL is unset, in which case rate limiting is skipped (spec.md
// has no hard requirement on it and the bearer-token auth gate alone
// is sufficient for a single-tenant deployment). pool may be nil when
// the annotator is disabled, in which case POST /sources/{id}/regenerate
// returns an error instead of running.
func NewServer(cfg *config.Config, st *store.Store, mgr *jobs.Manager, broker *progress.Broker, pool *annotate.Pool, rdb *redis.Client, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Server.MaxRequestBytes,
	})

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("store", st)
		c.Locals("manager", mgr)
		c.Locals("broker", broker)
		c.Locals("pool", pool)
		return c.Next()
	})

	app.Use(requestLogMiddleware(logger))

	if len(cfg.Server.CORSOrigins) > 0 {
		app.Use(corsMiddleware(cfg.Server.CORSOrigins))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := st.DB.PingContext(ctx); err != nil {
			dbStatus = "error"
		}
		annotatorStatus := "disabled"
		if cfg.Annotator.Enabled {
			annotatorStatus = "enabled"
		}

		redisStatus := "disabled"
		if rdb != nil {
			redisStatus = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			}
		}

		status := "ok"
		if dbStatus != "ok" || redisStatus == "error" {
			status = "error"
		}
		return c.JSON(fiber.Map{"status": status, "db": dbStatus, "redis": redisStatus, "annotator": annotatorStatus})
	})

	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	authMw := bearerAuthMiddleware(cfg)

	api := app.Group("/api", authMw, rateLimitMiddleware(cfg, rdb))
	registerJobRoutes(api)
	registerSearchRoutes(api)
	registerSourceRoutes(api)
	if cfg.Upload.Enabled {
		registerUploadRoutes(api)
	}

	app.Get("/ws/:client_id", websocketUpgrade, registerWebsocketRoute(broker))

	return &Server{app: app, cfg: cfg, store: st, manager: mgr, broker: broker, pool: pool, rdb: rdb, logger: logger}
}

// Listen starts the HTTP server, blocking until it exits.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	return s.app.Listen(addr)
}

func requestLogMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		metrics.RecordRequest(c.Method(), c.Path(), status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", c.Method(),
				"path", c.Path(),
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
		return err
	}
}

func corsMiddleware(origins []string) fiber.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			c.Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		}
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
