package middleware

// identity.go defines the request-context decoration attached after a
// successful Authenticate. Downstream guards and handlers read it via
// IdentityFrom instead of re-parsing the token.

import (
	"github.com/labstack/echo/v4"

	"github.com/cliniva/access-core/internal/model"
)

const identityKey = "identity"

// Identity is the authenticated caller as resolved once per request. Role
// authority is folded in at construction: an Admin identity answers true to
// every Can and HasRole call, so no individual guard needs to special-case
// the role again.
type Identity struct {
	PrincipalID string
	Email       string
	Role        model.Role
	CompanyID   *string
	Permissions []string
	allowAll    bool
}

// NewIdentity resolves a principal's effective authority.
func NewIdentity(p model.Principal) Identity {
	return Identity{
		PrincipalID: p.ID,
		Email:       p.Email,
		Role:        p.Role,
		CompanyID:   p.CompanyID,
		Permissions: p.Permissions,
		allowAll:    p.Role == model.RoleAdmin,
	}
}

// HasRole reports whether the identity's role is one of roles. Admin always
// passes.
func (id Identity) HasRole(roles ...model.Role) bool {
	if id.allowAll {
		return true
	}
	for _, r := range roles {
		if id.Role == r {
			return true
		}
	}
	return false
}

// Can reports whether the identity holds the named permission. Admin always
// passes.
func (id Identity) Can(permission string) bool {
	if id.allowAll {
		return true
	}
	for _, p := range id.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// SetIdentity attaches the identity to the request context.
func SetIdentity(c echo.Context, id Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the identity attached by Authenticate, if any.
func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}
