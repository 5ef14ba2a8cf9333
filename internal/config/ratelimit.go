package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cliniva/access-core/internal/model"
	"github.com/cliniva/access-core/internal/ratelimit"
)

// RateLimitConfig tunes the per-principal fixed-window limiter. Quotas are
// per role per window; unknown roles fall back to the default quota.
type RateLimitConfig struct {
	Enabled bool
	Window  time.Duration
	Quotas  map[model.Role]int
}

// LoadRateLimitConfig reads the limiter settings. Every role quota can be
// overridden individually via RATE_LIMIT_QUOTA_<ROLE>, e.g.
// RATE_LIMIT_QUOTA_COMPANY_HR=200.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		Window:  envDur("RATE_LIMIT_WINDOW", ratelimit.DefaultWindow),
		Quotas:  make(map[model.Role]int, len(ratelimit.DefaultQuotas)),
	}
	if cfg.Window <= 0 {
		cfg.Window = ratelimit.DefaultWindow
	}
	for role, quota := range ratelimit.DefaultQuotas {
		key := "RATE_LIMIT_QUOTA_" + strings.ReplaceAll(role.String(), "-", "_")
		cfg.Quotas[role] = envIntMin(key, quota, 1)
	}
	return cfg
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envIntMin(k string, d, min int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n >= min {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
