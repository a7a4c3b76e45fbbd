package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Adds sensible defaults if not already set by the handler.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		// Only set on GET requests
		if c.Method() != "GET" {
			return err
		}

		// Don't override if already set
		if existing := c.GetRespHeader("Cache-Control"); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		// Default cache times by endpoint pattern
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10" // Very short for system checks

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case path == "/graphql":
			ttl = "private, max-age=0" // GraphQL varies wildly

		case path == "/v1/grid/cell-id":
			ttl = "public, max-age=86400" // Pure geometry, never changes

		case path == "/v1/grid/stats":
			ttl = "public, max-age=60"

		case path == "/v1/map":
			ttl = "public, max-age=10" // Live board, keep it fresh

		case strings.Contains(path, "/history"):
			ttl = "public, max-age=60" // Append-only ledger reads

		case strings.HasPrefix(path, "/v1/cells/"):
			ttl = "private, max-age=5" // Ownership view is requester-relative

		case strings.HasPrefix(path, "/v1/players/"):
			ttl = "private, max-age=30"

		case strings.HasPrefix(path, "/v1/"):
			ttl = "public, max-age=5" // Short default; the board moves
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}
