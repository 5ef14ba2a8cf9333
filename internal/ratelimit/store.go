package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore is the injected fixed-window counter. A single-process
// deployment uses MemoryStore; multi-instance deployments share counts
// through RedisStore. Incr starts a fresh window at count 1 when none exists
// or the previous one has elapsed, and otherwise increments.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryStore keeps windows in a mutex-guarded map. Counts are local to one
// running instance, which is only correct for single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*memoryWindow),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the store's clock. Used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{count: 1, resetAt: now.Add(window)}
		s.windows[key] = w
		return 1, w.resetAt, nil
	}
	w.count++
	return w.count, w.resetAt, nil
}

// incrScript increments the window counter, attaching the window TTL on
// first hit so the count and its expiry move atomically.
var incrScript = redis.NewScript(`
    local count = redis.call('INCR', KEYS[1])
    if count == 1 then
        redis.call('PEXPIRE', KEYS[1], ARGV[1])
    end
    local ttl = redis.call('PTTL', KEYS[1])
    return { count, ttl }
`)

// RedisStore shares fixed-window counters across instances via INCR with a
// window TTL.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	vals, err := incrScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(vals) != 2 {
		return 0, time.Time{}, redis.Nil
	}
	now := s.now()
	count, ttlMs := vals[0], vals[1]
	resetAt := now.Add(window)
	if ttlMs > 0 {
		resetAt = now.Add(time.Duration(ttlMs) * time.Millisecond)
	}
	return count, resetAt, nil
}
