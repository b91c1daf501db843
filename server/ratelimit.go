package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/nephrolytics/practice-api/auth"
)

// RateLimitExpiry is how long an idle caller's limiter is kept.
const RateLimitExpiry = 3 * time.Minute

// RateLimit limits requests per second for each authenticated principal,
// falling back to the client IP before authentication. A limit of zero or
// less disables limiting; a burst of zero defaults to twice the limit.
func RateLimit(requestsPerSecond, burst int) echo.MiddlewareFunc {
	if requestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}
	if burst <= 0 {
		burst = requestsPerSecond * 2
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(requestsPerSecond),
				Burst:     burst,
				ExpiresIn: RateLimitExpiry,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if p, ok := auth.PrincipalFromContext(c.Request().Context()); ok {
				return "principal:" + strconv.FormatInt(p.ID, 10), nil
			}
			return "ip:" + c.RealIP(), nil
		},
		ErrorHandler: func(echo.Context, error) error {
			return NewTooManyRequestsError("")
		},
		DenyHandler: func(echo.Context, string, error) error {
			return NewTooManyRequestsError("Too many requests")
		},
	})
}
