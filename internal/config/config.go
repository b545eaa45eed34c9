// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the risk engine.
type Config struct {
	// Upstream API
	OdinAPIURL  string
	OdinAPIKey  string
	HTTPTimeout time.Duration
	MaxRetries  int

	// Polling
	PollInterval time.Duration
	TokenLimit   int

	// Cache
	CacheTTL time.Duration
	RedisURL string

	// Database
	DBPath           string
	HistoryRetention time.Duration

	// Workers
	WorkerCount int

	// HTTP API
	HTTPPort int

	// Risk allowlists
	TrustedTokens     []string
	TrustedDevelopers []string

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		// Upstream
		OdinAPIURL:  getEnv("ODIN_API_URL", "https://api.odin.fun/v1"),
		OdinAPIKey:  getEnv("ODIN_API_KEY", ""),
		HTTPTimeout: time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 10)) * time.Second,
		MaxRetries:  getEnvInt("MAX_RETRIES", 3),

		// Polling
		PollInterval: time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 15)) * time.Second,
		TokenLimit:   getEnvInt("TOKEN_LIMIT", 50),

		// Cache
		CacheTTL: time.Duration(getEnvInt("CACHE_TTL_SECONDS", 60)) * time.Second,
		RedisURL: getEnv("REDIS_URL", ""),

		// Database
		DBPath:           getEnv("DB_PATH", "./data/history.db"),
		HistoryRetention: time.Duration(getEnvInt("HISTORY_RETENTION_DAYS", 7)) * 24 * time.Hour,

		// Workers
		WorkerCount: getEnvInt("WORKER_COUNT", 5),

		// HTTP API
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		// Allowlists extend the built-in entries
		TrustedTokens:     getEnvList("TRUSTED_TOKENS"),
		TrustedDevelopers: getEnvList("TRUSTED_DEVELOPERS"),

		// UI
		EnableTUI:     getEnvBool("ENABLE_TUI", true),
		UIRefreshRate: time.Duration(getEnvInt("UI_REFRESH_MS", 500)) * time.Millisecond,

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.OdinAPIURL == "" {
		return fmt.Errorf("ODIN_API_URL is required")
	}

	if u, err := url.Parse(c.OdinAPIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ODIN_API_URL must be an absolute URL")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}

	if c.TokenLimit < 1 {
		return fmt.Errorf("TOKEN_LIMIT must be at least 1")
	}

	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative")
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must not be negative")
	}

	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 0 and 65535")
	}

	return nil
}

// MaskedAPIKey returns the API key with most characters hidden for logging.
func (c *Config) MaskedAPIKey() string {
	return maskSecret(c.OdinAPIKey)
}

// MaskedRedisURL returns the Redis URL with its password hidden for logging.
func (c *Config) MaskedRedisURL() string {
	if c.RedisURL == "" {
		return "(not set)"
	}
	u, err := url.Parse(c.RedisURL)
	if err != nil {
		return maskSecret(c.RedisURL)
	}
	return u.Redacted()
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
