package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Access and refresh tokens are signed with
// distinct secrets so one can never be replayed as the other; Load refuses
// to start when they are equal.
type Config struct {
	Env            string        // application environment (e.g. "dev", "prod")
	Port           string        // HTTP port to listen on
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	DBHost         string        // database host address
	DBPort         string        // database port number
	DBName         string        // database name
	AccessSecret   string        // secret signing access tokens
	RefreshSecret  string        // secret signing refresh tokens
	AccessTTL      time.Duration // access token time-to-live (default 24h)
	RefreshTTL     time.Duration // refresh token time-to-live (default 7d)
	BcryptCost     int           // bcrypt cost for password hashing
	ResetTokenTTL  time.Duration // password-reset window (default 1h)
	AMQPURL        string        // reset-delivery broker, empty disables publishing
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:           must("APP_ENV"),
		Port:          must("APP_PORT"),
		DBUser:        must("DB_USER"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        must("DB_HOST"),
		DBPort:        must("DB_PORT"),
		DBName:        must("DB_NAME"),
		AccessSecret:  must("ACCESS_TOKEN_SECRET"),
		RefreshSecret: must("REFRESH_TOKEN_SECRET"),
		AccessTTL:     time.Duration(envInt("ACCESS_TOKEN_TTL_HOURS", 24)) * time.Hour,
		RefreshTTL:    time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,
		BcryptCost:    mustInt("BCRYPT_COST"),
		ResetTokenTTL: time.Duration(envInt("RESET_TOKEN_TTL_MIN", 60)) * time.Minute,
		AMQPURL:       firstEnv("RABBITMQ_URL", "AMQP_URL"),
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		log.Fatal("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
