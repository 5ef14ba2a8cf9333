package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cliniva/access-core/internal/model"
)

var (
	// ErrTokenExpired is returned when a token's signature verifies but its
	// expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other verification failure: bad
	// signature, wrong signing method, malformed input, missing claims.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is the signed claim set carried by both access and refresh tokens.
// A pair issued together shares one snapshot of these fields.
type Claims struct {
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	CompanyID   *string  `json:"company_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Token is a signed JWT plus its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Pair bundles the access and refresh tokens issued from one claim snapshot.
type Pair struct {
	Access  Token
	Refresh Token
}

// Codec signs and verifies HS256 bearer tokens. Access and refresh tokens
// use distinct secrets so one can never be replayed as the other.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewCodec builds a Codec. The two secrets must differ; config enforces that
// at startup.
func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the codec's clock. Used by tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// IssuePair signs an access and a refresh token from a single claim snapshot
// of the principal, so the two can never diverge. The shared jti makes every
// pair unique even when two are issued within the same second, which the
// rotation compare-and-swap relies on.
func (c *Codec) IssuePair(p model.Principal) (Pair, error) {
	issued := c.now()
	snapshot := Claims{
		Email:       p.Email,
		Role:        p.Role.String(),
		CompanyID:   p.CompanyID,
		Permissions: p.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  p.ID,
			IssuedAt: jwt.NewNumericDate(issued),
		},
	}

	access, err := c.sign(snapshot, c.accessSecret, issued.Add(c.accessTTL))
	if err != nil {
		return Pair{}, err
	}
	refresh, err := c.sign(snapshot, c.refreshSecret, issued.Add(c.refreshTTL))
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

func (c *Codec) sign(claims Claims, secret []byte, exp time.Time) (Token, error) {
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// VerifyAccess verifies a token against the access secret.
func (c *Codec) VerifyAccess(token string) (*Claims, error) {
	return c.verify(token, c.accessSecret)
}

// VerifyRefresh verifies a token against the refresh secret.
func (c *Codec) VerifyRefresh(token string) (*Claims, error) {
	return c.verify(token, c.refreshSecret)
}

func (c *Codec) verify(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
