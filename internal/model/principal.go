package model

import "time"

// Principal mirrors the `principals` table: one row per account. The
// repository layer is the only writer; sensitive columns never leave the
// service boundary except through Sanitized.
//
// ActiveRefreshToken holds the literal value of the one refresh token that
// is currently valid for the account, or nil when logged out. ResetTokenHash
// and ResetTokenExpiresAt are populated only while a password-reset window
// is open; the plaintext reset token is never stored.
type Principal struct {
	ID                 string     // principals.id (uuid)
	Email              string     // principals.email, stored lowercase
	PasswordHash       string     // principals.password_hash (bcrypt)
	Role               Role       // principals.role
	CompanyID          *string    // principals.company_id, set iff Role == COMPANY_HR
	Permissions        []string   // principals.permissions (JSON array column)
	ActiveRefreshToken *string    // principals.active_refresh_token (nullable)
	ResetTokenHash     *string    // principals.reset_token_hash (nullable)
	ResetTokenExpires  *time.Time // principals.reset_token_expires_at (nullable)
	IsActive           bool       // principals.is_active
	LastLoginAt        *time.Time // principals.last_login_at (nullable)
	CreatedAt          time.Time  // principals.created_at
	UpdatedAt          time.Time  // principals.updated_at
}

// PublicPrincipal is the projection of a Principal that may be returned to
// clients. Credential material and session state are stripped.
type PublicPrincipal struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Role        Role     `json:"role"`
	CompanyID   *string  `json:"company_id,omitempty"`
	Permissions []string `json:"permissions"`
}

// Sanitized strips password hash, refresh token and reset fields.
func (p Principal) Sanitized() PublicPrincipal {
	perms := p.Permissions
	if perms == nil {
		perms = []string{}
	}
	return PublicPrincipal{
		ID:          p.ID,
		Email:       p.Email,
		Role:        p.Role,
		CompanyID:   p.CompanyID,
		Permissions: perms,
	}
}

// HasPermission reports whether name is in the principal's additive
// permission set. Role-implied authority is resolved by the middleware, not
// here.
func (p Principal) HasPermission(name string) bool {
	for _, perm := range p.Permissions {
		if perm == name {
			return true
		}
	}
	return false
}
