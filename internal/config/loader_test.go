package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "worker"
log_level = "debug"

[scheduler]
max_attempts = 5
base_delay = "250ms"

[[venues]]
id = "X"
base_price = 42.0
fee = 0.001
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "worker", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.BaseDelay.Duration)

	// The venue table replaces the defaults entirely.
	require.Len(t, cfg.Venues, 1)
	assert.Equal(t, "X", cfg.Venues[0].ID)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 10, cfg.Scheduler.Concurrency)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfig(t, `
[redis]
addr = "from-file:6379"
`)

	t.Setenv("SWAPD_REDIS_ADDR", "from-env:6379")
	t.Setenv("SWAPD_SCHEDULER_MAX_ATTEMPTS", "7")
	t.Setenv("SWAPD_SCHEDULER_BASE_DELAY", "2s")
	t.Setenv("SWAPD_SERVER_ENABLED", "false")
	t.Setenv("SWAPD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env:6379", cfg.Redis.Addr)
	assert.Equal(t, 7, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.BaseDelay.Duration)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestEnvOverridesIgnoreMalformedValues(t *testing.T) {
	path := writeConfig(t, "")

	t.Setenv("SWAPD_SCHEDULER_MAX_ATTEMPTS", "many")
	t.Setenv("SWAPD_SCHEDULER_BASE_DELAY", "soon")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Malformed values are skipped, not zeroed.
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Scheduler.BaseDelay.Duration)
}
