package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"codedox/internal/apperr"
	"codedox/internal/config"
)

// bearerAuthMiddleware enforces a flat bearer-token allowlist (no
// tenant/session concept, per MCP_AUTH_ENABLED/MCP_AUTH_TOKEN(S)).
func bearerAuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Auth.Enabled {
			return c.Next()
		}

		header := c.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			return writeError(c, apperr.Auth("missing bearer token", nil))
		}

		for _, t := range cfg.Auth.AllTokens() {
			if t == token {
				return c.Next()
			}
		}
		return writeError(c, apperr.Auth("invalid bearer token", nil))
	}
}

// rateLimitMiddleware enforces a fixed-window-per-minute request cap per
// bearer token, backed by Redis (a no-op when rdb is nil, i.e. REDIS_URL
// unset, or when RateLimit.DefaultPerMinute is non-positive).
func rateLimitMiddleware(cfg *config.Config, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rdb == nil || cfg.RateLimit.DefaultPerMinute <= 0 {
			return c.Next()
		}

		token := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		if token == "" {
			token = c.IP()
		}

		window := time.Now().UTC().Format("200601021504")
		key := fmt.Sprintf("codedox:rl:%s:%s", token, window)

		ctx := c.Context()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			// Redis unavailable mid-run: fail open rather than blocking
			// every request on a dependency spec.md never requires.
			return c.Next()
		}
		if count == 1 {
			_ = rdb.Expire(ctx, key, time.Minute)
		}
		if count > int64(cfg.RateLimit.DefaultPerMinute) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fiber.Map{
					"kind":    "RateLimitError",
					"message": "rate limit exceeded, try again later",
				},
			})
		}
		return c.Next()
	}
}

// writeError maps an apperr.Error (or any error) to the appropriate
// HTTP status and a uniform JSON error body.
func writeError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"kind":    string(kind),
			"message": err.Error(),
		},
	})
}
