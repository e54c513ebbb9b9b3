package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are sourced from environment variables, with defaults where
// appropriate. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	DatabaseURL string

	ListenAddr string

	// SessionHashKey signs the session cookie; SessionBlockKey, when set,
	// also encrypts it.
	SessionHashKey  string
	SessionBlockKey string

	// RetentionDays is how long raw metrics and hourly buckets are kept.
	RetentionDays int

	// CacheTTL bounds how stale the ingestion path's view of an origin's
	// API key and route configuration may be.
	CacheTTL time.Duration

	LogMode string
	LogFile string

	// InternalAPIKey is the ingestion key of an origin this instance reports
	// its own traffic to. If empty, self-reporting is disabled.
	InternalAPIKey string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		AdminUser:       getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:   getenv("APP_ADMIN_PASSWORD", "changeme"),
		DatabaseURL:     strings.TrimSpace(os.Getenv("APP_DATABASE_URL")),
		ListenAddr:      getenv("APP_LISTEN_ADDR", ":8080"),
		SessionHashKey:  os.Getenv("APP_SESSION_HASH_KEY"),
		SessionBlockKey: os.Getenv("APP_SESSION_BLOCK_KEY"),
		RetentionDays:   365,
		CacheTTL:        30 * time.Second,
		LogMode:         getenv("APP_LOG_MODE", "development"),
		LogFile:         os.Getenv("APP_LOG_FILE"),
		InternalAPIKey:  getenv("APP_INTERNAL_API_KEY", ""),
	}

	if v := os.Getenv("APP_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.RetentionDays = days
		}
	}
	if v := os.Getenv("APP_CACHE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			cfg.CacheTTL = time.Duration(secs) * time.Second
		}
	}

	return cfg
}

// Validate reports configuration that would keep the service from starting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("APP_DATABASE_URL is required (PostgreSQL URL)")
	}
	if !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return errors.New("APP_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}
	if len(c.SessionHashKey) < 32 {
		return errors.New("APP_SESSION_HASH_KEY must be at least 32 bytes")
	}
	switch len(c.SessionBlockKey) {
	case 0, 16, 24, 32:
	default:
		return errors.New("APP_SESSION_BLOCK_KEY must be 16, 24 or 32 bytes")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
