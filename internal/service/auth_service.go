// Package service implements the authentication flows: login, token
// refresh, logout and the password lifecycle. It owns every write to the
// principal store; all other components only read from it.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cliniva/access-core/internal/auth"
	"github.com/cliniva/access-core/internal/audit"
	"github.com/cliniva/access-core/internal/model"
	"github.com/cliniva/access-core/internal/notify"
	"github.com/cliniva/access-core/internal/repository"
)

// resetTokenBytes sizes the opaque reset token (hex doubles it on the wire).
const resetTokenBytes = 32

// PrincipalStore is the persistence the service writes through. Implemented
// by repository.PrincipalRepo.
type PrincipalStore interface {
	Create(ctx context.Context, email, passwordHash string, role model.Role, companyID *string) (string, error)
	GetByEmail(ctx context.Context, email string) (model.Principal, error)
	GetByID(ctx context.Context, id string) (model.Principal, error)
	GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (model.Principal, error)
	SetLoginState(ctx context.Context, id, refreshToken string, at time.Time) error
	RotateRefreshToken(ctx context.Context, id, old, new string) error
	ClearRefreshToken(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	CompleteReset(ctx context.Context, id, passwordHash string) error
	SetPermissions(ctx context.Context, id string, perms []string) error
}

// AuditSink records security events. Implemented by audit.Recorder; failures
// never surface here.
type AuditSink interface {
	Record(ctx context.Context, entry audit.Entry)
}

// RequestContext carries best-effort request metadata into audit events.
type RequestContext struct {
	IP        string
	UserAgent string
}

// Actor identifies the authenticated caller of an operation, as attached to
// the request by the authorization middleware.
type Actor struct {
	ID    string
	Email string
	Role  model.Role
}

// LoginResult is the successful login payload: a token pair plus the
// sanitized principal.
type LoginResult struct {
	Pair      auth.Pair
	Principal model.PublicPrincipal
}

// AuthService orchestrates the session state machine per principal:
// LoggedOut -> Authenticated -> (access expired, refresh valid) ->
// Authenticated (rotated) -> LoggedOut.
type AuthService struct {
	store      PrincipalStore
	codec      *auth.Codec
	audits     AuditSink
	delivery   notify.ResetDelivery
	log        *logrus.Logger
	bcryptCost int
	resetTTL   time.Duration
	now        func() time.Time
}

func NewAuthService(store PrincipalStore, codec *auth.Codec, audits AuditSink, delivery notify.ResetDelivery, log *logrus.Logger, bcryptCost int, resetTTL time.Duration) *AuthService {
	return &AuthService{
		store:      store,
		codec:      codec,
		audits:     audits,
		delivery:   delivery,
		log:        log,
		bcryptCost: bcryptCost,
		resetTTL:   resetTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Used by tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Login verifies credentials and starts a session. Unknown email and wrong
// password are externally identical (ErrInvalidCredentials); a disabled
// account is only reported as such after the password matched, so account
// status is never disclosed to a caller who could not log in anyway.
func (s *AuthService) Login(ctx context.Context, email, password string, rc RequestContext) (LoginResult, error) {
	p, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.auditLoginFailed(ctx, nil, email, "", rc, "unknown email")
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("login: load principal: %w", err)
	}
	if !auth.VerifyPassword(p.PasswordHash, password) {
		s.auditLoginFailed(ctx, &p.ID, p.Email, p.Role.String(), rc, "wrong password")
		return LoginResult{}, ErrInvalidCredentials
	}
	if !p.IsActive {
		s.auditLoginFailed(ctx, &p.ID, p.Email, p.Role.String(), rc, "account disabled")
		return LoginResult{}, ErrAccountDisabled
	}

	pair, err := s.codec.IssuePair(p)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: issue tokens: %w", err)
	}
	if err := s.store.SetLoginState(ctx, p.ID, pair.Refresh.Value, s.now()); err != nil {
		return LoginResult{}, fmt.Errorf("login: persist session: %w", err)
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID: &p.ID, ActorEmail: p.Email, ActorRole: p.Role.String(),
		ActorIP: rc.IP, ActorUserAgent: rc.UserAgent,
		Action: model.ActionLogin, Entity: model.EntityAuth,
		Result: model.ResultSuccess,
	})
	return LoginResult{Pair: pair, Principal: p.Sanitized()}, nil
}

// Refresh exchanges a valid refresh token for a new pair. Claims are re-read
// from the store, not copied from the old token, so a mid-session role or
// permission change takes effect at the next rotation. The swap itself is a
// compare-and-swap: presenting the same token twice fails the second time.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (auth.Pair, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return auth.Pair{}, ErrInvalidRefreshToken
	}
	p, err := s.store.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return auth.Pair{}, ErrInvalidRefreshToken
		}
		return auth.Pair{}, fmt.Errorf("refresh: load principal: %w", err)
	}
	if !p.IsActive || p.ActiveRefreshToken == nil || *p.ActiveRefreshToken != refreshToken {
		return auth.Pair{}, ErrInvalidRefreshToken
	}

	pair, err := s.codec.IssuePair(p)
	if err != nil {
		return auth.Pair{}, fmt.Errorf("refresh: issue tokens: %w", err)
	}
	if err := s.store.RotateRefreshToken(ctx, p.ID, refreshToken, pair.Refresh.Value); err != nil {
		if errors.Is(err, repository.ErrStaleRefreshToken) {
			return auth.Pair{}, ErrInvalidRefreshToken
		}
		return auth.Pair{}, fmt.Errorf("refresh: rotate token: %w", err)
	}
	return pair, nil
}

// Logout revokes the active refresh token. The column goes to NULL so no
// value an attacker could present will ever match it again.
func (s *AuthService) Logout(ctx context.Context, actor Actor, rc RequestContext) error {
	if err := s.store.ClearRefreshToken(ctx, actor.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("logout: %w", err)
	}
	s.audits.Record(ctx, audit.Entry{
		ActorID: &actor.ID, ActorEmail: actor.Email, ActorRole: actor.Role.String(),
		ActorIP: rc.IP, ActorUserAgent: rc.UserAgent,
		Action: model.ActionLogout, Entity: model.EntityAuth,
		Result: model.ResultSuccess,
	})
	return nil
}

// ChangePassword replaces the password after verifying the current one. The
// active refresh token is deliberately left untouched: existing sessions on
// other devices stay valid.
func (s *AuthService) ChangePassword(ctx context.Context, actor Actor, current, newPassword string, rc RequestContext) error {
	p, err := s.store.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("change password: load principal: %w", err)
	}
	if !auth.VerifyPassword(p.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("change password: hash: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, p.ID, hash); err != nil {
		return fmt.Errorf("change password: persist: %w", err)
	}
	s.audits.Record(ctx, audit.Entry{
		ActorID: &p.ID, ActorEmail: p.Email, ActorRole: p.Role.String(),
		ActorIP: rc.IP, ActorUserAgent: rc.UserAgent,
		Action: model.ActionPasswordChange, Entity: model.EntityPrincipal, EntityID: &p.ID,
		Result: model.ResultSuccess,
	})
	return nil
}

// ForgotPassword opens a reset window. The response shape is identical
// whether or not the email exists, to resist account enumeration. Only the
// token's hash is stored; the plaintext goes to the delivery channel and a
// delivery failure does not change the outcome.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, rc RequestContext) error {
	p, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("forgot password: load principal: %w", err)
	}

	token, err := auth.RandomToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("forgot password: token: %w", err)
	}
	expires := s.now().Add(s.resetTTL)
	if err := s.store.SetResetToken(ctx, p.ID, auth.HashToken(token), expires); err != nil {
		return fmt.Errorf("forgot password: persist: %w", err)
	}

	if err := s.delivery.DeliverResetToken(ctx, notify.PasswordResetMessage{
		Email: p.Email, Token: token, ExpiresAt: expires,
	}); err != nil {
		s.log.WithError(err).WithField("principal", p.ID).Warn("reset token delivery failed")
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID: &p.ID, ActorEmail: p.Email, ActorRole: p.Role.String(),
		ActorIP: rc.IP, ActorUserAgent: rc.UserAgent,
		Action: model.ActionPasswordReset, Entity: model.EntityPrincipal, EntityID: &p.ID,
		Result: model.ResultSuccess, ErrorMessage: "reset requested",
	})
	return nil
}

// ResetPassword closes a reset window: the supplied token is hashed and must
// match an unexpired stored hash.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string, rc RequestContext) error {
	p, err := s.store.GetByResetTokenHash(ctx, auth.HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("reset password: lookup: %w", err)
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("reset password: hash: %w", err)
	}
	if err := s.store.CompleteReset(ctx, p.ID, hash); err != nil {
		return fmt.Errorf("reset password: persist: %w", err)
	}
	s.audits.Record(ctx, audit.Entry{
		ActorID: &p.ID, ActorEmail: p.Email, ActorRole: p.Role.String(),
		ActorIP: rc.IP, ActorUserAgent: rc.UserAgent,
		Action: model.ActionPasswordReset, Entity: model.EntityPrincipal, EntityID: &p.ID,
		Result: model.ResultSuccess, ErrorMessage: "reset completed",
	})
	return nil
}

// Register creates a principal. CompanyID is required for COMPANY_HR and
// rejected for every other role.
func (s *AuthService) Register(ctx context.Context, actor Actor, email, password string, role model.Role, companyID *string, rc RequestContext) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("register: invalid role %q", role)
	}
	if (role == model.RoleCompanyHR) != (companyID != nil) {
		return "", fmt.Errorf("register: company id required iff role is %s", model.RoleCompanyHR)
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("register: hash: %w", err)
	}
	id, err := s.store.Create(ctx, email, hash, role, companyID)
	if err != nil {
		return "", err
	}
	s.audits.Record(ctx, audit.Entry{
		ActorID: &actor.ID, ActorEmail: actor.Email, ActorRole: actor.Role.String(),
		ActorIP: rc.IP, ActorUserAgent: rc.UserAgent,
		Action: model.ActionCreate, Entity: model.EntityPrincipal, EntityID: &id,
		Result: model.ResultSuccess,
	})
	return id, nil
}

// SetPermissions replaces a principal's additive permission set and records
// the (high-risk) PERMISSION_CHANGE event.
func (s *AuthService) SetPermissions(ctx context.Context, actor Actor, principalID string, perms []string, rc RequestContext) error {
	if err := s.store.SetPermissions(ctx, principalID, perms); err != nil {
		return err
	}
	s.audits.Record(ctx, audit.Entry{
		ActorID: &actor.ID, ActorEmail: actor.Email, ActorRole: actor.Role.String(),
		ActorIP: rc.IP, ActorUserAgent: rc.UserAgent,
		Action: model.ActionPermissionChange, Entity: model.EntityPrincipal, EntityID: &principalID,
		Result: model.ResultSuccess,
	})
	return nil
}

func (s *AuthService) auditLoginFailed(ctx context.Context, actorID *string, email, role string, rc RequestContext, reason string) {
	s.audits.Record(ctx, audit.Entry{
		ActorID: actorID, ActorEmail: email, ActorRole: role,
		ActorIP: rc.IP, ActorUserAgent: rc.UserAgent,
		Action: model.ActionLoginFailed, Entity: model.EntityAuth,
		Result: model.ResultFailure, ErrorMessage: reason,
	})
}
