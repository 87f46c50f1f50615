// Package config loads the stepflow command's configuration from the
// environment and builds its logger.
package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	defaultListenAddr = ":8080"
	defaultStore      = StoreMemory
	defaultSQLitePath = "stepflow.db"
	defaultRedisAddr  = "localhost:6379"
	defaultRedisTTL   = 24 * time.Hour

	envListenAddr = "STEPFLOW_LISTEN_ADDR"
	envLogLevel   = "STEPFLOW_LOG_LEVEL"
	envLogFormat  = "STEPFLOW_LOG_FORMAT"
	envStore      = "STEPFLOW_STORE"
	envSQLitePath = "STEPFLOW_SQLITE_PATH"
	envRedisAddr  = "STEPFLOW_REDIS_ADDR"
	envRedisTTL   = "STEPFLOW_REDIS_TTL"
)

// Monitor store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	LogLevel   slog.Level
	LogFormat  string
	Store      string
	SQLitePath string
	RedisAddr  string
	RedisTTL   time.Duration
}

// Load reads configuration from environment variables with defaults.
// Unrecognized values fall back to the default.
func Load() Config {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		LogLevel:   slog.LevelInfo,
		LogFormat:  "json",
		Store:      defaultStore,
		SQLitePath: defaultSQLitePath,
		RedisAddr:  defaultRedisAddr,
		RedisTTL:   defaultRedisTTL,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}
	if v := strings.ToLower(os.Getenv(envLogFormat)); v == "text" || v == "json" {
		cfg.LogFormat = v
	}
	if v := strings.ToLower(os.Getenv(envStore)); ValidStore(v) {
		cfg.Store = v
	}
	if v := os.Getenv(envSQLitePath); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv(envRedisAddr); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv(envRedisTTL); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.RedisTTL = d
		}
	}

	return cfg
}

// ValidStore reports whether name is a known store backend.
func ValidStore(name string) bool {
	switch name {
	case StoreMemory, StoreSQLite, StoreRedis:
		return true
	}
	return false
}

// ParseLogLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger writing to w at level. format is
// "text" or "json"; anything else means JSON.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
