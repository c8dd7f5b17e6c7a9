package middleware

import (
	"context"
	"math"
	"strconv"
	"time"

	"crm_server/pkg/apperr"
	"crm_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// Limiter decides whether a keyed request may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration)
}

// RateLimit throttles requests per client IP under scope. Rejected requests
// get a Retry-After header and a RATE_LIMITED error body.
func RateLimit(limiter Limiter, scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}

		key := scope + ":" + c.IP()
		allowed, wait := limiter.Allow(c.UserContext(), key)
		if allowed {
			return c.Next()
		}

		retryAfter := int(math.Ceil(wait.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))

		logger.WithFields(map[string]any{
			"request_id": c.Locals("request_id"),
			"scope":      scope,
			"ip":         c.IP(),
		}).Warn("Rate limit exceeded")

		return apperr.RateLimited(retryAfter)
	}
}
