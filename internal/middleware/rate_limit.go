package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// RateLimit limits requests per caller and per route id, so autosave bursts on
// one attempt do not starve another. Anonymous callers are keyed by IP.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}
	retryAfter := strconv.Itoa(int(window.Round(time.Second).Seconds()))

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			caller := c.IP()
			if id, ok := c.Locals("user_id").(uint); ok && id > 0 {
				caller = "user:" + strconv.FormatUint(uint64(id), 10)
			}
			return fmt.Sprintf("%s:%s:%s", identifier, caller, c.Params("id"))
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return utils.Fail(c, fiber.StatusTooManyRequests, "too many requests", nil)
		},
	})
}
