package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cliniva/access-core/internal/model"
)

const principalColumns = "id,email,password_hash,role,company_id,permissions," +
	"active_refresh_token,reset_token_hash,reset_token_expires_at,is_active," +
	"last_login_at,created_at,updated_at"

// PrincipalRepo is the single source of truth for account state: credentials,
// role, permissions, the active refresh token and the reset window. Only the
// authentication service writes through it.
type PrincipalRepo struct{ DB *sql.DB }

func NewPrincipalRepo(db *sql.DB) *PrincipalRepo { return &PrincipalRepo{DB: db} }

// Create inserts a principal and returns its generated id.
func (r *PrincipalRepo) Create(ctx context.Context, email, passwordHash string, role model.Role, companyID *string) (string, error) {
	id := uuid.NewString()
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO principals (id, email, password_hash, role, company_id, permissions) VALUES (?,?,?,?,?,?)",
		id, email, passwordHash, role.String(), companyID, "[]")
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return "", ErrEmailExists
		}
		return "", err
	}
	return id, nil
}

// GetByEmail fetches a principal by normalized email.
func (r *PrincipalRepo) GetByEmail(ctx context.Context, email string) (model.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+principalColumns+" FROM principals WHERE email=? LIMIT 1", email))
}

// GetByID fetches a principal by id.
func (r *PrincipalRepo) GetByID(ctx context.Context, id string) (model.Principal, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+principalColumns+" FROM principals WHERE id=? LIMIT 1", id))
}

// GetByResetTokenHash fetches the principal whose open reset window matches
// the hashed token and has not expired yet.
func (r *PrincipalRepo) GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (model.Principal, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+principalColumns+" FROM principals WHERE reset_token_hash=? AND reset_token_expires_at>? LIMIT 1",
		tokenHash, now))
}

// SetLoginState overwrites the active refresh token and records the login
// time. Login always replaces whatever session existed before.
func (r *PrincipalRepo) SetLoginState(ctx context.Context, id, refreshToken string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET active_refresh_token=?, last_login_at=? WHERE id=?",
		refreshToken, at, id)
	return oneRow(res, err)
}

// RotateRefreshToken atomically swaps the active refresh token in a single
// conditional UPDATE. If the stored value no longer equals old (a concurrent
// refresh or logout got there first) it returns ErrStaleRefreshToken. A
// separate read-then-write here would let two concurrent refreshes both
// succeed and orphan one caller's token.
func (r *PrincipalRepo) RotateRefreshToken(ctx context.Context, id, old, new string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET active_refresh_token=? WHERE id=? AND active_refresh_token=?",
		new, id, old)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleRefreshToken
	}
	return nil
}

// ClearRefreshToken removes the active refresh token. The column goes to
// NULL, not empty string, so no presentable value can ever match it.
func (r *PrincipalRepo) ClearRefreshToken(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET active_refresh_token=NULL WHERE id=?", id)
	return oneRow(res, err)
}

// UpdatePassword stores a new password hash.
func (r *PrincipalRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET password_hash=? WHERE id=?", passwordHash, id)
	return oneRow(res, err)
}

// SetResetToken opens a password-reset window: only the token hash and its
// expiry are persisted.
func (r *PrincipalRepo) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET reset_token_hash=?, reset_token_expires_at=? WHERE id=?",
		tokenHash, expires, id)
	return oneRow(res, err)
}

// CompleteReset stores the new password hash and closes the reset window in
// one statement.
func (r *PrincipalRepo) CompleteReset(ctx context.Context, id, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET password_hash=?, reset_token_hash=NULL, reset_token_expires_at=NULL WHERE id=?",
		passwordHash, id)
	return oneRow(res, err)
}

// SetPermissions replaces the additive permission set.
func (r *PrincipalRepo) SetPermissions(ctx context.Context, id string, perms []string) error {
	if perms == nil {
		perms = []string{}
	}
	encoded, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET permissions=? WHERE id=?", string(encoded), id)
	return oneRow(res, err)
}

func (r *PrincipalRepo) scanOne(row *sql.Row) (model.Principal, error) {
	var (
		p           model.Principal
		companyID   sql.NullString
		permsJSON   []byte
		refresh     sql.NullString
		resetHash   sql.NullString
		resetExpiry sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.Role, &companyID, &permsJSON,
		&refresh, &resetHash, &resetExpiry, &p.IsActive, &lastLogin, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Principal{}, ErrNotFound
		}
		return model.Principal{}, err
	}
	if companyID.Valid {
		p.CompanyID = &companyID.String
	}
	if refresh.Valid {
		p.ActiveRefreshToken = &refresh.String
	}
	if resetHash.Valid {
		p.ResetTokenHash = &resetHash.String
	}
	if resetExpiry.Valid {
		p.ResetTokenExpires = &resetExpiry.Time
	}
	if lastLogin.Valid {
		p.LastLoginAt = &lastLogin.Time
	}
	if len(permsJSON) > 0 {
		if err := json.Unmarshal(permsJSON, &p.Permissions); err != nil {
			return model.Principal{}, err
		}
	}
	return p, nil
}

// oneRow converts "no row matched" updates into ErrNotFound.
func oneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
