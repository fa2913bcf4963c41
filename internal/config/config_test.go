package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parleychat/parley/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1<<20), cfg.MaxMessageSize)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 30*24*time.Hour, cfg.SelfDestructHorizon)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PARLEY_ADDR", "9090")
	t.Setenv("PARLEY_DATA_DIR", "/tmp/parley")
	t.Setenv("PARLEY_ALLOWED_ORIGINS", "https://chat.example.com, https://www.example.com")
	t.Setenv("PARLEY_MAX_MESSAGE_SIZE", "2048")
	t.Setenv("PARLEY_SWEEP_INTERVAL", "10")
	t.Setenv("PARLEY_RATE_BURST", "7")
	t.Setenv("PARLEY_SELF_DESTRUCT_DAYS", "7")

	cfg := config.Load()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "/tmp/parley", cfg.DataDir)
	assert.Equal(t, []string{"https://chat.example.com", "https://www.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(2048), cfg.MaxMessageSize)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, 7, cfg.RateBurst)
	assert.Equal(t, 7*24*time.Hour, cfg.SelfDestructHorizon)
}

func TestLoadIgnoresGarbageValues(t *testing.T) {
	t.Setenv("PARLEY_MAX_MESSAGE_SIZE", "not a number")
	t.Setenv("PARLEY_SWEEP_INTERVAL", "-3")
	t.Setenv("PARLEY_RATE_BURST", "0")

	cfg := config.Load()

	assert.Equal(t, int64(1<<20), cfg.MaxMessageSize)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 20, cfg.RateBurst)
}
