// Package router wires endpoints to handlers and guards. Unauthenticated
// session entry points live under /v1/auth; everything else under /v1 sits
// behind the authenticate gate and the per-principal rate limiter.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cliniva/access-core/internal/audit"
	"github.com/cliniva/access-core/internal/auth"
	"github.com/cliniva/access-core/internal/handler"
	"github.com/cliniva/access-core/internal/middleware"
	"github.com/cliniva/access-core/internal/model"
	"github.com/cliniva/access-core/internal/ratelimit"
)

// Deps collects everything route registration needs.
type Deps struct {
	Auth       *handler.AuthHandler
	Codec      *auth.Codec
	Principals middleware.PrincipalReader
	Audits     *audit.Recorder
	Limiter    *ratelimit.Limiter
	Log        *logrus.Logger
}

// Register wires all routes on the given Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Session entry points: unauthenticated or credential-authenticated.
	pub := e.Group("/v1/auth")
	pub.POST("/login", d.Auth.Login)
	pub.POST("/refresh", d.Auth.Refresh)
	pub.POST("/forgot-password", d.Auth.ForgotPassword)
	pub.POST("/reset-password", d.Auth.ResetPassword)

	// Everything below requires a live access token; admitted traffic is
	// then counted against the caller's role quota.
	protected := e.Group("/v1")
	protected.Use(middleware.Authenticate(d.Codec, d.Principals, d.Audits))
	protected.Use(middleware.RateLimit(d.Limiter, d.Log))

	protected.POST("/auth/logout", d.Auth.Logout)
	protected.POST("/auth/change-password", d.Auth.ChangePassword)
	protected.GET("/me", d.Auth.Me)

	// Principal management is reserved for Admin.
	admin := protected.Group("/principals")
	admin.Use(middleware.RequireRole(d.Audits, model.RoleAdmin))
	admin.POST("", d.Auth.Register)
	admin.PUT("/:id/permissions", d.Auth.SetPermissions)
}
