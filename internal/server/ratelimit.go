package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// VoteLimiter is the cross-instance vote budget check consulted before a
// vote is accepted. Keys are client IPs.
type VoteLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// newRateLimiter builds the per-instance, in-memory request limiter applied
// to the whole API group. It is the cheap first line; the vote endpoint
// additionally runs the shared VoteLimiter.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, apiResponse{
				Status:  "error",
				Message: "rate limit exceeded",
			})
		},
	})
}

// newVoteRateLimit enforces the shared per-IP vote budget. A limiter backend
// failure fails open: if the backend is truly down the vote itself will
// surface the accurate error, while a 429 here would mislead.
func newVoteRateLimit(limiter VoteLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			allowed, err := limiter.Allow(c.Request().Context(), ip)
			if err != nil {
				slog.WarnContext(c.Request().Context(), "Vote rate limit check failed, allowing request",
					"remote_ip", ip, "error", err)
				return next(c)
			}

			if !allowed {
				return c.JSON(http.StatusTooManyRequests, apiResponse{
					Status:  "error",
					Message: "vote rate limit exceeded",
				})
			}

			return next(c)
		}
	}
}
