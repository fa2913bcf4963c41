// Package config loads and sanitizes the server configuration from the
// environment, with optional .env support for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime tunable of the server.
type Config struct {
	Addr                string
	DataDir             string
	AllowedOrigins      []string
	MaxMessageSize      int64
	SweepInterval       time.Duration
	RateBurst           int
	RateRefillInterval  time.Duration
	SelfDestructHorizon time.Duration
	ShutdownTimeout     time.Duration
}

func defaults() *Config {
	return &Config{
		Addr:                ":8080",
		DataDir:             "data",
		AllowedOrigins:      []string{"http://localhost:8080"},
		MaxMessageSize:      1 << 20,
		SweepInterval:       30 * time.Second,
		RateBurst:           20,
		RateRefillInterval:  time.Second,
		SelfDestructHorizon: 30 * 24 * time.Hour,
		ShutdownTimeout:     10 * time.Second,
	}
}

// Load builds the configuration from environment variables, falling back to
// defaults for anything unset or unparseable. A .env file in the working
// directory is read first when present; its absence is not an error.
func Load() *Config {
	_ = godotenv.Load()

	cfg := defaults()

	if addr := os.Getenv("PARLEY_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if dir := os.Getenv("PARLEY_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if origins := os.Getenv("PARLEY_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}
	if size := os.Getenv("PARLEY_MAX_MESSAGE_SIZE"); size != "" {
		cfg.MaxMessageSize = parseInt64(size, cfg.MaxMessageSize)
	}
	if interval := os.Getenv("PARLEY_SWEEP_INTERVAL"); interval != "" {
		cfg.SweepInterval = parseSeconds(interval, cfg.SweepInterval)
	}
	if burst := os.Getenv("PARLEY_RATE_BURST"); burst != "" {
		cfg.RateBurst = parseInt(burst, cfg.RateBurst)
	}
	if interval := os.Getenv("PARLEY_RATE_REFILL_INTERVAL"); interval != "" {
		cfg.RateRefillInterval = parseSeconds(interval, cfg.RateRefillInterval)
	}
	if horizon := os.Getenv("PARLEY_SELF_DESTRUCT_DAYS"); horizon != "" {
		if days := parseInt(horizon, 0); days > 0 {
			cfg.SelfDestructHorizon = time.Duration(days) * 24 * time.Hour
		}
	}

	return sanitize(cfg)
}

func sanitize(cfg *Config) *Config {
	def := defaults()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if !strings.Contains(cfg.Addr, ":") {
		cfg.Addr = ":" + cfg.Addr
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	if cfg.RateRefillInterval <= 0 {
		cfg.RateRefillInterval = def.RateRefillInterval
	}
	if cfg.SelfDestructHorizon <= 0 {
		cfg.SelfDestructHorizon = def.SelfDestructHorizon
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	return cfg
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseInt(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseInt64(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
