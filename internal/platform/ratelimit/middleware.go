package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Middleware rejects requests over the limit for the given action category.
// The key identity is the resolving function's output, typically the
// authenticated user id, falling back to the client IP.
func Middleware(l *Limiter, category string, limit Limit, identity func(echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := l.Check(Key(category, identity(c)), limit)

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit.MaxAttempts))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

			if !res.Allowed {
				retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			return next(c)
		}
	}
}

// ByIP keys a rate limit on the client's real IP.
func ByIP(c echo.Context) string {
	return c.RealIP()
}
