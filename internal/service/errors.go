package service

import "errors"

var (
	// ErrInvalidCredentials is returned for both unknown email and wrong
	// password. Callers must not distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned when credentials verify but the
	// account is deactivated.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidRefreshToken covers forged, expired, rotated and revoked
	// refresh tokens alike; a stale token is indistinguishable from a
	// forged one to the caller.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrInvalidOrExpiredToken is returned for password-reset tokens that
	// match no open reset window.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
)
