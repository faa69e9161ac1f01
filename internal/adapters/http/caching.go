package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Adds sensible defaults if not already set by the handler. Deal collections
// get very short TTLs: they invalidate server-side on capture, and a stale
// browser cache would defeat that.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != "GET" {
			return err
		}

		// Don't override if already set
		if existing := c.Get("Cache-Control"); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10"

		case path == "/metrics":
			ttl = "no-cache"

		case path == "/graphql":
			ttl = "private, max-age=0"

		case strings.HasPrefix(path, "/v1/deals"):
			ttl = "private, max-age=5" // invalidated server-side; keep the browser honest

		case strings.HasPrefix(path, "/v1/parcel"):
			ttl = "private, max-age=0" // billable lookups, never replay from cache

		case strings.HasPrefix(path, "/v1/usage"):
			ttl = "private, max-age=60"

		case strings.HasPrefix(path, "/v1/discovery"):
			ttl = "no-store" // live progress

		case strings.HasPrefix(path, "/v1/"):
			ttl = "private, max-age=30"
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}
