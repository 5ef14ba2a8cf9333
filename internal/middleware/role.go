package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cliniva/access-core/internal/audit"
	"github.com/cliniva/access-core/internal/model"
)

// maxScopeBodyBytes bounds how much of a request body the company-scope
// guard will inspect.
const maxScopeBodyBytes = 1 << 20

// RequireRole enforces that the authenticated identity holds one of the
// given roles. Admin passes unconditionally. Each denial records exactly one
// ACCESS_DENIED event capturing the requested endpoint and method.
func RequireRole(audits *audit.Recorder, roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok || !id.HasRole(roles...) {
				accessDenials.WithLabelValues("role").Inc()
				audits.Record(c.Request().Context(), audit.Entry{
					ActorID: actorIDOrNil(id, ok), ActorEmail: id.Email, ActorRole: id.Role.String(),
					ActorIP: c.RealIP(), ActorUserAgent: c.Request().UserAgent(),
					Action: model.ActionAccessDenied, Entity: model.EntityAuth,
					Result:       model.ResultFailure,
					ErrorMessage: c.Request().Method + " " + c.Path(),
				})
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// RequirePermission enforces membership in the identity's permission set.
// Admin passes unconditionally. Permission denials are lower sensitivity
// than role denials and are not audited.
func RequirePermission(name string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok || !id.Can(name) {
				accessDenials.WithLabelValues("permission").Inc()
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// RequireCompanyScope confines COMPANY_HR principals to their own company.
// Internal clinic roles bypass scoping entirely. The requested company id is
// taken from the path parameter, then the JSON body, then the query string;
// an absent id is allowed, a mismatched one is not.
func RequireCompanyScope(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			if id.Role.Internal() {
				return next(c)
			}
			if id.Role != model.RoleCompanyHR || id.CompanyID == nil {
				accessDenials.WithLabelValues("company_scope").Inc()
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}

			requested, err := requestedCompanyID(c, param)
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
			}
			if requested != "" && requested != *id.CompanyID {
				accessDenials.WithLabelValues("company_scope").Inc()
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// requestedCompanyID resolves the company id a request targets, in the
// precedence order path param, JSON body field, query param. The body is
// restored so handlers can still bind it.
func requestedCompanyID(c echo.Context, param string) (string, error) {
	if v := c.Param(param); v != "" {
		return v, nil
	}
	if v, err := bodyField(c, param); err != nil {
		return "", err
	} else if v != "" {
		return v, nil
	}
	return c.QueryParam(param), nil
}

func bodyField(c echo.Context, field string) (string, error) {
	req := c.Request()
	if req.Body == nil || req.ContentLength == 0 {
		return "", nil
	}
	raw, err := io.ReadAll(io.LimitReader(req.Body, maxScopeBodyBytes))
	if err != nil {
		return "", err
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		// Not JSON; scope resolution falls through to the query string.
		return "", nil
	}
	v, ok := body[field]
	if !ok || v == nil {
		return "", nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

func actorIDOrNil(id Identity, ok bool) *string {
	if !ok || id.PrincipalID == "" {
		return nil
	}
	return &id.PrincipalID
}
