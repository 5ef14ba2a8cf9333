package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cliniva/access-core/internal/audit"
	"github.com/cliniva/access-core/internal/auth"
	"github.com/cliniva/access-core/internal/model"
	"github.com/cliniva/access-core/internal/repository"
)

// PrincipalReader is the liveness check Authenticate performs after a token
// verifies: the store, not the token, is the source of truth for is_active.
type PrincipalReader interface {
	GetByID(ctx context.Context, id string) (model.Principal, error)
}

// Authenticate returns the bearer-token gate for protected routes. It
// verifies the access token, re-loads the principal and requires it to be
// active, then attaches the resolved Identity to the request context.
// Signature and expiry failures share one uniform message.
func Authenticate(codec *auth.Codec, store PrincipalReader, audits *audit.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims, err := codec.VerifyAccess(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			p, err := store.GetByID(c.Request().Context(), claims.Subject)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
			}
			if err != nil || !p.IsActive {
				accessDenials.WithLabelValues("inactive_principal").Inc()
				audits.Record(c.Request().Context(), audit.Entry{
					ActorEmail: claims.Email, ActorRole: claims.Role,
					ActorIP: c.RealIP(), ActorUserAgent: c.Request().UserAgent(),
					Action: model.ActionAccessDenied, Entity: model.EntityAuth,
					Result:       model.ResultFailure,
					ErrorMessage: c.Request().Method + " " + c.Path(),
				})
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}

			SetIdentity(c, NewIdentity(p))
			return next(c)
		}
	}
}
