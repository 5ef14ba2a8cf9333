package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/cliniva/access-core/internal/ratelimit"
)

// RateLimit applies the per-principal fixed-window limiter. It must run
// after Authenticate: requests without a resolved identity bypass it (a
// coarser IP limiter is an edge concern, not ours). Counter-store errors
// fail open with a logged warning so a limiter outage never takes down
// authenticated traffic.
func RateLimit(limiter *ratelimit.Limiter, log *logrus.Logger) echo.MiddlewareFunc {
	if limiter == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return next(c)
			}

			decision, err := limiter.Admit(c.Request().Context(), id.PrincipalID, id.Role)
			if err != nil {
				log.WithError(err).Warn("ratelimit: counter store error, admitting")
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

			if !decision.Allowed {
				rateLimitRejections.Inc()
				c.Response().Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": decision.RetryAfterSeconds,
				})
			}
			return next(c)
		}
	}
}
