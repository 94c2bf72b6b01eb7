package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend names accepted in MARGIN_STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	ListenAddr      string        // ex: ":8080"
	ShutdownTimeout time.Duration // how long to wait for in-flight work on shutdown

	LogLevel string // "debug" | "info" | "warn" | "error"

	StoreBackend string // "memory" | "postgres" | "redis"
	DatabaseURL  string // required when StoreBackend is "postgres"
	RedisAddr    string // required when StoreBackend is "redis"
	RedisDB      int

	RateLimitPerMinute int  // requests allowed per client per minute, 0 disables limiting
	MediaFetchEnabled  bool // scrape page titles/favicons in the background
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      getenv("MARGIN_LISTEN_ADDR", ":8080"),
		ShutdownTimeout: mustDuration("MARGIN_SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel: getenv("MARGIN_LOG_LEVEL", "info"),

		StoreBackend: getenv("MARGIN_STORE_BACKEND", BackendMemory),
		DatabaseURL:  getenv("DATABASE_URL", ""),
		RedisAddr:    getenv("MARGIN_REDIS_ADDR", "localhost:6379"),
		RedisDB:      getenvInt("MARGIN_REDIS_DB", 0),

		RateLimitPerMinute: getenvInt("MARGIN_RATE_LIMIT_PER_MINUTE", 120),
		MediaFetchEnabled:  mustBool("MARGIN_MEDIA_FETCH", true),
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when MARGIN_STORE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown MARGIN_STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
