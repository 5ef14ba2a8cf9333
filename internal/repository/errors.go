// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// authentication service to distinguish failure scenarios without parsing
// driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a principal insert collides with an
// existing email.
var ErrEmailExists = errors.New("email already exists")

// ErrStaleRefreshToken is returned when a compare-and-swap rotation finds
// the stored refresh token no longer equals the presented one. Of two
// concurrent refreshes presenting the same token, only the first may win;
// the second receives this error.
var ErrStaleRefreshToken = errors.New("stale refresh token")
