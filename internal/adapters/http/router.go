package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/turfgrid/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 300 requests per minute per player (per IP when anonymous).
	// Claim spam is the thing being limited; map reads ride the same bucket.
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if pid := c.Get("X-Player-ID"); pid != "" {
				return pid
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// Deprecated endpoints get RFC 8594 headers
	app.Use(DeprecationMiddleware([]DeprecatedRoute{
		{
			Path:        "/v1/grid/cell-id",
			SunsetDate:  time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
			Alternative: "/v1/cells/{id}",
		},
	}))

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout — fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1 — 15s per-request timeout
	v1 := app.Group("/v1")
	v1.Post("/claims", timeout.NewWithContext(ClaimHandler(deps), 15*time.Second))
	v1.Post("/positions", timeout.NewWithContext(IngestPositionHandler(deps), 15*time.Second))
	v1.Get("/map", timeout.NewWithContext(MapHandler(deps), 15*time.Second))
	v1.Get("/cells/:id", timeout.NewWithContext(CellInfoHandler(deps), 15*time.Second))
	v1.Get("/cells/:id/neighbors", timeout.NewWithContext(CellNeighborsHandler(deps), 15*time.Second))
	v1.Get("/cells/:id/history", timeout.NewWithContext(CellHistoryHandler(deps), 15*time.Second))
	v1.Post("/cells/:id/attack", timeout.NewWithContext(AttackHandler(deps), 15*time.Second))
	v1.Get("/players/:id/territory", timeout.NewWithContext(PlayerTerritoryHandler(deps), 15*time.Second))
	v1.Get("/players/:id/stats", timeout.NewWithContext(PlayerStatsHandler(deps), 15*time.Second))
	v1.Get("/grid/stats", timeout.NewWithContext(GridStatsHandler(deps), 15*time.Second))

	// Legacy coordinate lookup, kept until sunset
	v1.Get("/grid/cell-id", timeout.NewWithContext(CellIDHandler(deps), 15*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
