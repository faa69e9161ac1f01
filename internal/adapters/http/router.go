package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/avelarde/leadmap/internal/pkg/metrics"
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

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
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

	// Legacy lead-centric aliases still served, flagged for removal.
	app.Use(DeprecationMiddleware([]DeprecatedRoute{
		{Path: "/v1/leads", SunsetDate: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), Alternative: "/v1/deals"},
		{Path: "/v1/leads/counts", SunsetDate: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), Alternative: "/v1/deals/counts"},
	}))

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout — fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1 — 15s per-request timeout, except capture which waits on
	// imagery rendering.
	v1 := app.Group("/v1")
	v1.Get("/deals", timeout.NewWithContext(ListDealsHandler(deps), 15*time.Second))
	v1.Get("/deals/map", timeout.NewWithContext(MapDealsHandler(deps), 15*time.Second))
	v1.Get("/deals/counts", timeout.NewWithContext(DealCountsHandler(deps), 15*time.Second))
	v1.Get("/deals/:id", timeout.NewWithContext(GetDealHandler(deps), 15*time.Second))
	v1.Get("/parcel", timeout.NewWithContext(ParcelLookupHandler(deps), 30*time.Second))
	v1.Post("/capture", timeout.NewWithContext(CaptureHandler(deps), 90*time.Second))

	// Bulk area discovery
	v1.Post("/discovery", timeout.NewWithContext(StartDiscoveryHandler(deps), 30*time.Second))
	v1.Get("/discovery/progress", DiscoveryProgressHandler(deps))
	v1.Delete("/discovery/progress", ClearDiscoveryProgressHandler(deps))
	v1.Post("/discovery/cancel", CancelDiscoveryHandler(deps))

	// Usage reporting
	v1.Get("/usage/summary", timeout.NewWithContext(UsageSummaryHandler(deps), 15*time.Second))
	v1.Get("/usage/daily", timeout.NewWithContext(UsageDailyHandler(deps), 15*time.Second))

	// Deprecated aliases
	v1.Get("/leads", timeout.NewWithContext(ListDealsHandler(deps), 15*time.Second))
	v1.Get("/leads/counts", timeout.NewWithContext(DealCountsHandler(deps), 15*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket dashboard session
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(DashboardSocketHandler(deps)))
}
