package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cliniva/access-core/internal/middleware"
	"github.com/cliniva/access-core/internal/model"
	"github.com/cliniva/access-core/internal/repository"
	"github.com/cliniva/access-core/internal/service"
)

// dbTimeout bounds each request's store work.
const dbTimeout = 5 * time.Second

// AuthHandler exposes the authentication service over HTTP.
type AuthHandler struct {
	Svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler { return &AuthHandler{Svc: svc} }

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
type forgotPasswordReq struct {
	Email string `json:"email"`
}
type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}
type registerReq struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Role      string  `json:"role"`
	CompanyID *string `json:"company_id"`
}
type permissionsReq struct {
	Permissions []string `json:"permissions"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type authResp struct {
	AccessToken  tokenPart             `json:"access_token"`
	RefreshToken tokenPart             `json:"refresh_token"`
	Principal    model.PublicPrincipal `json:"principal"`
}

func reqContext(c echo.Context) service.RequestContext {
	return service.RequestContext{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

func actorFrom(id middleware.Identity) service.Actor {
	return service.Actor{ID: id.PrincipalID, Email: id.Email, Role: id.Role}
}

// Login verifies credentials and returns a fresh token pair. The failure
// body is identical for unknown email and wrong password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	res, err := h.Svc.Login(ctx, req.Email, req.Password, reqContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Invalid credentials"})
		case errors.Is(err, service.ErrAccountDisabled):
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Account is disabled"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	return c.JSON(http.StatusOK, authResp{
		AccessToken:  tokenPart{Token: res.Pair.Access.Value, Expires: res.Pair.Access.ExpiresAt},
		RefreshToken: tokenPart{Token: res.Pair.Refresh.Value, Expires: res.Pair.Refresh.ExpiresAt},
		Principal:    res.Principal,
	})
}

// Refresh rotates a refresh token for a new pair. Forged, expired and stale
// tokens all produce the same response.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	pair, err := h.Svc.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Invalid refresh token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  tokenPart{Token: pair.Access.Value, Expires: pair.Access.ExpiresAt},
		"refresh_token": tokenPart{Token: pair.Refresh.Value, Expires: pair.Refresh.ExpiresAt},
	})
}

// Logout revokes the caller's active refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Svc.Logout(ctx, actorFrom(id), reqContext(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ChangePassword replaces the caller's password after verifying the current
// one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current_password/new_password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Svc.ChangePassword(ctx, actorFrom(id), req.CurrentPassword, req.NewPassword, reqContext(c)); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "change password failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ForgotPassword opens a reset window. The response is the same whether or
// not the email is registered.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Svc.ForgotPassword(ctx, strings.ToLower(strings.TrimSpace(req.Email)), reqContext(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "request failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "If that email is registered, a reset link has been sent",
	})
}

// ResetPassword closes a reset window with the token from the delivery
// channel.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil || req.Token == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token/new_password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Svc.ResetPassword(ctx, req.Token, req.NewPassword, reqContext(c)); err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredToken) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Invalid or expired token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Register creates a principal. Restricted to Admin by the router.
func (h *AuthHandler) Register(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	role := model.Role(strings.ToUpper(strings.TrimSpace(req.Role)))
	if req.Email == "" || req.Password == "" || !role.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password/role required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	pid, err := h.Svc.Register(ctx, actorFrom(id), req.Email, req.Password, role, req.CompanyID, reqContext(c))
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": pid})
}

// SetPermissions replaces a principal's permission set. Restricted to Admin
// by the router.
func (h *AuthHandler) SetPermissions(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	principalID := c.Param("id")
	var req permissionsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Svc.SetPermissions(ctx, actorFrom(id), principalID, req.Permissions, reqContext(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Me returns the caller's identity as attached by the authenticate gate.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"principal_id": id.PrincipalID,
		"email":        id.Email,
		"role":         id.Role,
		"company_id":   id.CompanyID,
		"permissions":  id.Permissions,
	})
}
