// Package ratelimit admits or rejects authenticated requests with a
// per-principal fixed-window counter. Windows reset at discrete boundaries;
// bursts straddling a boundary are deliberately not smoothed.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/cliniva/access-core/internal/model"
)

// DefaultWindow is the fixed counting window.
const DefaultWindow = 15 * time.Minute

// DefaultQuota applies to unrecognized roles.
const DefaultQuota = 50

// DefaultQuotas is the per-role request budget per window.
var DefaultQuotas = map[model.Role]int{
	model.RoleAdmin:      1000,
	model.RoleManagement: 500,
	model.RolePhysician:  300,
	model.RoleFrontDesk:  300,
	model.RoleLaboratory: 300,
	model.RoleBilling:    300,
	model.RoleCompanyHR:  100,
	model.RolePatient:    50,
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed           bool
	Limit             int
	Remaining         int64
	RetryAfterSeconds int
}

// Limiter counts requests per principal over a fixed window against a
// per-role quota. The counter store is injected so deployments can choose
// between process-local and shared counters.
type Limiter struct {
	store  CounterStore
	quotas map[model.Role]int
	window time.Duration
	now    func() time.Time
}

func NewLimiter(store CounterStore, quotas map[model.Role]int, window time.Duration) *Limiter {
	if quotas == nil {
		quotas = DefaultQuotas
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		store:  store,
		quotas: quotas,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the limiter's clock. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Admit counts the request and admits it iff the post-increment count is
// within the role's quota. On rejection RetryAfterSeconds is the rounded-up
// time until the window resets, always positive.
func (l *Limiter) Admit(ctx context.Context, principalID string, role model.Role) (Decision, error) {
	quota, ok := l.quotas[role]
	if !ok {
		quota = DefaultQuota
	}

	count, resetAt, err := l.store.Incr(ctx, "ratelimit:principal:"+principalID, l.window)
	if err != nil {
		return Decision{}, err
	}

	remaining := int64(quota) - count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{Allowed: count <= int64(quota), Limit: quota, Remaining: remaining}
	if !d.Allowed {
		secs := int(math.Ceil(resetAt.Sub(l.now()).Seconds()))
		if secs < 1 {
			secs = 1
		}
		d.RetryAfterSeconds = secs
	}
	return d, nil
}
