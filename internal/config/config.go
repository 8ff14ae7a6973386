// Package config loads runtime settings from SESSIONS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrInvalid = errors.New("config: invalid value")

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Peak cache
	StoreDriver   string // sqlite, badger or memory
	StorePath     string
	CacheCapacity int
	CacheKey      string // suffix or hash

	// Extraction worker
	Workers     int
	WorkerQueue int

	// Fetching
	FetchTimeout     time.Duration
	FetchMaxAttempts int
	FetchBackoff     time.Duration
	FetchMaxBytes    int64

	// Optional OAuth2 client credentials for private buckets
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string

	LogLevel string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		StoreDriver:   envStr("SESSIONS_STORE_DRIVER", "sqlite"),
		StorePath:     envStr("SESSIONS_STORE_PATH", "peaks.db"),
		CacheCapacity: envInt("SESSIONS_CACHE_CAPACITY", 50),
		CacheKey:      envStr("SESSIONS_CACHE_KEY", "suffix"),

		Workers:     envInt("SESSIONS_WORKERS", 1),
		WorkerQueue: envInt("SESSIONS_WORKER_QUEUE", 16),

		FetchTimeout:     envDuration("SESSIONS_FETCH_TIMEOUT", 30*time.Second),
		FetchMaxAttempts: envInt("SESSIONS_FETCH_MAX_ATTEMPTS", 1),
		FetchBackoff:     envDuration("SESSIONS_FETCH_BACKOFF", 500*time.Millisecond),
		FetchMaxBytes:    int64(envInt("SESSIONS_FETCH_MAX_BYTES", 64<<20)),

		OAuthTokenURL:     envStr("SESSIONS_OAUTH_TOKEN_URL", ""),
		OAuthClientID:     envStr("SESSIONS_OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: envStr("SESSIONS_OAUTH_CLIENT_SECRET", ""),

		LogLevel: envStr("SESSIONS_LOG_LEVEL", "info"),
	}
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	switch strings.ToLower(c.StoreDriver) {
	case "sqlite", "badger":
		if c.StorePath == "" {
			return fmt.Errorf("%w: store path required for %s", ErrInvalid, c.StoreDriver)
		}
	case "memory":
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.StoreDriver)
	}
	switch strings.ToLower(c.CacheKey) {
	case "suffix", "hash":
	default:
		return fmt.Errorf("%w: unknown cache key strategy %q", ErrInvalid, c.CacheKey)
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("%w: cache capacity %d", ErrInvalid, c.CacheCapacity)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d", ErrInvalid, c.Workers)
	}
	if c.FetchMaxAttempts < 1 {
		return fmt.Errorf("%w: fetch attempts %d", ErrInvalid, c.FetchMaxAttempts)
	}
	if c.OAuthTokenURL != "" && c.OAuthClientID == "" {
		return fmt.Errorf("%w: oauth client id required with token url", ErrInvalid)
	}
	return nil
}

// OAuthEnabled reports whether fetches should carry client-credential tokens.
func (c Config) OAuthEnabled() bool {
	return c.OAuthTokenURL != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envDuration accepts Go durations ("750ms") or bare seconds ("30").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
