// Package config loads process-level configuration for the gateway binary.
//
// This is distinct from internal/config, which parses the GraphQL SDL
// configuration that the Blueprint compiler consumes; this package only
// covers the process bootstrap knobs (bind address, default upstream
// pool sizing, log level).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds process bootstrap configuration loaded from the environment.
type Config struct {
	// Server
	Host string
	Port string

	// Upstream defaults, overridable per-@upstream in the SDL config.
	HTTPPoolSize    int
	HTTPIdleTimeout time.Duration

	// Features
	EnablePlayground bool
	LogLevel         string

	// ConfigPath points at the GraphQL SDL configuration file compiled
	// into a Blueprint at startup.
	ConfigPath string

	// RedisURL, when set, backs the TTL cache's cross-process tier
	// (internal/cache.RedisStore) instead of the in-memory-only LRU.
	RedisURL string
	// LocalCacheSize bounds the in-process LRU tier, which is the cache
	// only when RedisURL is unset; there is no local layer in front of
	// Redis.
	LocalCacheSize int
}

// Load reads configuration from environment variables, falling back
// to sane defaults for anything unset.
func Load() *Config {
	return &Config{
		Host:             getEnv("GQLFORGE_HOST", "0.0.0.0"),
		Port:             getEnv("GQLFORGE_PORT", "8080"),
		HTTPPoolSize:     getEnvInt("GQLFORGE_HTTP_POOL_SIZE", 100),
		HTTPIdleTimeout:  time.Duration(getEnvInt("GQLFORGE_HTTP_IDLE_TIMEOUT_SECONDS", 90)) * time.Second,
		EnablePlayground: getEnvBool("GQLFORGE_ENABLE_PLAYGROUND", true),
		LogLevel:         getEnv("GQLFORGE_LOG_LEVEL", "info"),
		ConfigPath:       getEnv("GQLFORGE_CONFIG", "./gqlforge.graphql"),
		RedisURL:         getEnv("GQLFORGE_REDIS_URL", ""),
		LocalCacheSize:   getEnvInt("GQLFORGE_CACHE_SIZE", 4096),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
