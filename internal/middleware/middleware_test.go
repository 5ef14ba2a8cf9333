package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliniva/access-core/internal/audit"
	"github.com/cliniva/access-core/internal/auth"
	"github.com/cliniva/access-core/internal/model"
	"github.com/cliniva/access-core/internal/ratelimit"
	"github.com/cliniva/access-core/internal/repository"
)

type captureStore struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (s *captureStore) Insert(_ context.Context, e model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureStore) denied() []model.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AuditEvent
	for _, e := range s.events {
		if e.Action == model.ActionAccessDenied {
			out = append(out, e)
		}
	}
	return out
}

type readerFunc func(ctx context.Context, id string) (model.Principal, error)

func (f readerFunc) GetByID(ctx context.Context, id string) (model.Principal, error) {
	return f(ctx, id)
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newRecorder(store *captureStore) *audit.Recorder {
	return audit.NewRecorder(store, quietLog())
}

// run invokes a middleware with a terminal handler and reports whether the
// handler was reached.
func run(mw echo.MiddlewareFunc, c echo.Context) (bool, error) {
	called := false
	err := mw(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})(c)
	return called, err
}

func newCtx(method, target string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func testPrincipal(role model.Role) model.Principal {
	return model.Principal{
		ID:       "p1",
		Email:    "dr@clinic.example",
		Role:     role,
		IsActive: true,
	}
}

func TestAuthenticateMissingAndMalformedHeader(t *testing.T) {
	codec := auth.NewCodec("a", "b", time.Hour, 2*time.Hour)
	mw := Authenticate(codec, readerFunc(nil), newRecorder(&captureStore{}))

	c, rec := newCtx(http.MethodGet, "/v1/me", nil)
	called, err := run(mw, c)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newCtx(http.MethodGet, "/v1/me", nil)
	c.Request().Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	called, err = run(mw, c)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateRejectsInvalidAndExpiredUniformly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := auth.NewCodec("a", "b", time.Hour, 2*time.Hour).WithClock(func() time.Time { return now })
	p := testPrincipal(model.RolePhysician)
	pair, err := codec.IssuePair(p)
	require.NoError(t, err)

	mw := Authenticate(codec, readerFunc(func(context.Context, string) (model.Principal, error) {
		return p, nil
	}), newRecorder(&captureStore{}))

	c, rec := newCtx(http.MethodGet, "/v1/me", nil)
	c.Request().Header.Set("Authorization", "Bearer not.a.jwt")
	_, err = run(mw, c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	garbage := rec.Body.String()

	now = now.Add(2 * time.Hour)
	c, rec = newCtx(http.MethodGet, "/v1/me", nil)
	c.Request().Header.Set("Authorization", "Bearer "+pair.Access.Value)
	_, err = run(mw, c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, garbage, rec.Body.String(), "expired and garbage tokens share one response")
}

func TestAuthenticateRejectsRefreshTokenOnAccessRoute(t *testing.T) {
	codec := auth.NewCodec("a", "b", time.Hour, 2*time.Hour)
	pair, err := codec.IssuePair(testPrincipal(model.RolePhysician))
	require.NoError(t, err)

	mw := Authenticate(codec, readerFunc(nil), newRecorder(&captureStore{}))
	c, rec := newCtx(http.MethodGet, "/v1/me", nil)
	c.Request().Header.Set("Authorization", "Bearer "+pair.Refresh.Value)
	called, err := run(mw, c)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateInactivePrincipalAudited(t *testing.T) {
	codec := auth.NewCodec("a", "b", time.Hour, 2*time.Hour)
	p := testPrincipal(model.RolePhysician)
	pair, err := codec.IssuePair(p)
	require.NoError(t, err)

	p.IsActive = false
	store := &captureStore{}
	mw := Authenticate(codec, readerFunc(func(context.Context, string) (model.Principal, error) {
		return p, nil
	}), newRecorder(store))

	c, rec := newCtx(http.MethodGet, "/v1/me", nil)
	c.SetPath("/v1/me")
	c.Request().Header.Set("Authorization", "Bearer "+pair.Access.Value)
	called, err := run(mw, c)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	denied := store.denied()
	require.Len(t, denied, 1)
	assert.Equal(t, "GET /v1/me", denied[0].ErrorMessage)
	assert.Equal(t, model.ResultFailure, denied[0].Result)
}

func TestAuthenticateDeletedPrincipalRejected(t *testing.T) {
	codec := auth.NewCodec("a", "b", time.Hour, 2*time.Hour)
	pair, err := codec.IssuePair(testPrincipal(model.RolePhysician))
	require.NoError(t, err)

	store := &captureStore{}
	mw := Authenticate(codec, readerFunc(func(context.Context, string) (model.Principal, error) {
		return model.Principal{}, repository.ErrNotFound
	}), newRecorder(store))

	c, rec := newCtx(http.MethodGet, "/v1/me", nil)
	c.Request().Header.Set("Authorization", "Bearer "+pair.Access.Value)
	called, err := run(mw, c)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, store.denied(), 1)
}

func TestAuthenticateAttachesIdentity(t *testing.T) {
	codec := auth.NewCodec("a", "b", time.Hour, 2*time.Hour)
	p := testPrincipal(model.RolePhysician)
	p.Permissions = []string{"records:read"}
	pair, err := codec.IssuePair(p)
	require.NoError(t, err)

	mw := Authenticate(codec, readerFunc(func(context.Context, string) (model.Principal, error) {
		return p, nil
	}), newRecorder(&captureStore{}))

	c, _ := newCtx(http.MethodGet, "/v1/me", nil)
	c.Request().Header.Set("Authorization", "Bearer "+pair.Access.Value)

	var got Identity
	err = mw(func(c echo.Context) error {
		id, ok := IdentityFrom(c)
		require.True(t, ok)
		got = id
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PrincipalID)
	assert.Equal(t, model.RolePhysician, got.Role)
	assert.True(t, got.Can("records:read"))
	assert.False(t, got.Can("records:delete"))
}

func TestRequireRole(t *testing.T) {
	store := &captureStore{}
	mw := RequireRole(newRecorder(store), model.RolePhysician, model.RoleLaboratory)

	// Listed role passes.
	c, _ := newCtx(http.MethodGet, "/v1/samples", nil)
	SetIdentity(c, NewIdentity(testPrincipal(model.RoleLaboratory)))
	called, err := run(mw, c)
	require.NoError(t, err)
	assert.True(t, called)

	// Admin passes without being listed.
	c, _ = newCtx(http.MethodGet, "/v1/samples", nil)
	SetIdentity(c, NewIdentity(testPrincipal(model.RoleAdmin)))
	called, err = run(mw, c)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, store.denied())

	// Unlisted role is denied with exactly one audit event.
	c, rec := newCtx(http.MethodGet, "/v1/samples", nil)
	c.SetPath("/v1/samples")
	SetIdentity(c, NewIdentity(testPrincipal(model.RoleFrontDesk)))
	called, err = run(mw, c)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	denied := store.denied()
	require.Len(t, denied, 1)
	assert.Equal(t, "GET /v1/samples", denied[0].ErrorMessage)
	assert.Equal(t, model.RoleFrontDesk.String(), denied[0].ActorRole)
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	store := &captureStore{}
	c, rec := newCtx(http.MethodGet, "/v1/samples", nil)
	called, err := run(RequireRole(newRecorder(store), model.RolePhysician), c)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.Len(t, store.denied(), 1)
	assert.Nil(t, store.denied()[0].ActorID)
}

func TestRequirePermission(t *testing.T) {
	mw := RequirePermission("invoices:export")

	p := testPrincipal(model.RoleBilling)
	p.Permissions = []string{"invoices:export"}
	c, _ := newCtx(http.MethodPost, "/v1/invoices/export", nil)
	SetIdentity(c, NewIdentity(p))
	called, err := run(mw, c)
	require.NoError(t, err)
	assert.True(t, called)

	c, rec := newCtx(http.MethodPost, "/v1/invoices/export", nil)
	SetIdentity(c, NewIdentity(testPrincipal(model.RoleBilling)))
	called, err = run(mw, c)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin needs no explicit grant.
	c, _ = newCtx(http.MethodPost, "/v1/invoices/export", nil)
	SetIdentity(c, NewIdentity(testPrincipal(model.RoleAdmin)))
	called, err = run(mw, c)
	require.NoError(t, err)
	assert.True(t, called)
}

func hrIdentity(company string) Identity {
	p := testPrincipal(model.RoleCompanyHR)
	p.CompanyID = &company
	return NewIdentity(p)
}

func TestRequireCompanyScope(t *testing.T) {
	mw := RequireCompanyScope("company_id")

	t.Run("internal role bypasses scoping", func(t *testing.T) {
		c, _ := newCtx(http.MethodGet, "/v1/companies/C2/employees", nil)
		c.SetParamNames("company_id")
		c.SetParamValues("C2")
		SetIdentity(c, NewIdentity(testPrincipal(model.RoleFrontDesk)))
		called, err := run(mw, c)
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("own company via path param", func(t *testing.T) {
		c, _ := newCtx(http.MethodGet, "/v1/companies/C1/employees", nil)
		c.SetParamNames("company_id")
		c.SetParamValues("C1")
		SetIdentity(c, hrIdentity("C1"))
		called, err := run(mw, c)
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("foreign company via path param", func(t *testing.T) {
		c, rec := newCtx(http.MethodGet, "/v1/companies/C2/employees", nil)
		c.SetParamNames("company_id")
		c.SetParamValues("C2")
		SetIdentity(c, hrIdentity("C1"))
		called, err := run(mw, c)
		require.NoError(t, err)
		assert.False(t, called)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("absent company id is allowed", func(t *testing.T) {
		c, _ := newCtx(http.MethodGet, "/v1/employees", nil)
		SetIdentity(c, hrIdentity("C1"))
		called, err := run(mw, c)
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("foreign company via JSON body", func(t *testing.T) {
		body := strings.NewReader(`{"company_id":"C2","name":"x"}`)
		c, rec := newCtx(http.MethodPost, "/v1/employees", body)
		SetIdentity(c, hrIdentity("C1"))
		called, err := run(mw, c)
		require.NoError(t, err)
		assert.False(t, called)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("body wins over query", func(t *testing.T) {
		body := strings.NewReader(`{"company_id":"C1"}`)
		c, _ := newCtx(http.MethodPost, "/v1/employees?company_id=C2", body)
		SetIdentity(c, hrIdentity("C1"))
		called, err := run(mw, c)
		require.NoError(t, err)
		assert.True(t, called, "body field takes precedence over the query string")
	})

	t.Run("body is restored for the handler", func(t *testing.T) {
		body := strings.NewReader(`{"company_id":"C1","name":"x"}`)
		c, _ := newCtx(http.MethodPost, "/v1/employees", body)
		SetIdentity(c, hrIdentity("C1"))
		err := mw(func(c echo.Context) error {
			raw, err := io.ReadAll(c.Request().Body)
			require.NoError(t, err)
			assert.JSONEq(t, `{"company_id":"C1","name":"x"}`, string(raw))
			return c.NoContent(http.StatusOK)
		})(c)
		require.NoError(t, err)
	})

	t.Run("non-JSON body falls through to query", func(t *testing.T) {
		body := strings.NewReader("plain text payload")
		c, rec := newCtx(http.MethodPost, "/v1/employees?company_id=C2", body)
		SetIdentity(c, hrIdentity("C1"))
		called, err := run(mw, c)
		require.NoError(t, err)
		assert.False(t, called)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("HR without company id is denied", func(t *testing.T) {
		c, rec := newCtx(http.MethodGet, "/v1/employees", nil)
		SetIdentity(c, NewIdentity(testPrincipal(model.RoleCompanyHR)))
		called, err := run(mw, c)
		require.NoError(t, err)
		assert.False(t, called)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

type failingCounter struct{}

func (failingCounter) Incr(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("store down")
}

func TestRateLimitNilLimiterPassesThrough(t *testing.T) {
	c, rec := newCtx(http.MethodGet, "/v1/me", nil)
	SetIdentity(c, NewIdentity(testPrincipal(model.RolePatient)))
	called, err := run(RateLimit(nil, quietLog()), c)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitBypassesAnonymousRequests(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), nil, 0)
	c, rec := newCtx(http.MethodPost, "/v1/auth/login", nil)
	called, err := run(RateLimit(limiter, quietLog()), c)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitEnforcesQuota(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), map[model.Role]int{model.RolePatient: 2}, 0)
	mw := RateLimit(limiter, quietLog())
	id := NewIdentity(testPrincipal(model.RolePatient))

	for i := 0; i < 2; i++ {
		c, rec := newCtx(http.MethodGet, "/v1/me", nil)
		SetIdentity(c, id)
		called, err := run(mw, c)
		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	c, rec := newCtx(http.MethodGet, "/v1/me", nil)
	SetIdentity(c, id)
	called, err := run(mw, c)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too_many_requests")
}

func TestRateLimitFailsOpenOnStoreError(t *testing.T) {
	limiter := ratelimit.NewLimiter(failingCounter{}, nil, 0)
	c, _ := newCtx(http.MethodGet, "/v1/me", nil)
	SetIdentity(c, NewIdentity(testPrincipal(model.RolePatient)))
	called, err := run(RateLimit(limiter, quietLog()), c)
	require.NoError(t, err)
	assert.True(t, called)
}
