package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func RateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        100,
		Expiration: 30 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return Fail(c, fiber.StatusTooManyRequests, "Rate limit exceeded", nil)
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/healthz"
		},
	})
}
