package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.True(t, cfg.LiteMode())
	assert.Equal(t, "Asia/Kolkata", cfg.DBTimezone)
	assert.True(t, cfg.DBAutoCreate)
	assert.Equal(t, 8*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 30*time.Second, cfg.ProcessingDelay)
	assert.Equal(t, 120*time.Second, cfg.StaleTimeout)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://app@db:5432/txn?sslmode=disable")
	t.Setenv("DB_OPERATION_TIMEOUT_SECONDS", "2.5")
	t.Setenv("PROCESSING_DELAY_SECONDS", "0")
	t.Setenv("RATE_LIMIT_RPS", "50")
	t.Setenv("RATE_LIMIT_BURST", "100")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.False(t, cfg.LiteMode())
	assert.Equal(t, 2500*time.Millisecond, cfg.OperationTimeout)
	assert.Equal(t, time.Duration(0), cfg.ProcessingDelay)
	assert.Equal(t, 50.0, cfg.RateLimitRPS)
	assert.Equal(t, 100, cfg.RateLimitBurst)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadProfileThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
database:
  timezone: UTC
  operation_timeout_seconds: 4
processing:
  stale_timeout_seconds: 60
telemetry:
  enabled: true
`), 0o644))

	t.Setenv("WEBHOOKD_CONFIG", path)
	t.Setenv("PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Port, "env beats profile")
	assert.Equal(t, "UTC", cfg.DBTimezone)
	assert.Equal(t, 4*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 60*time.Second, cfg.StaleTimeout)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoadMissingProfileFails(t *testing.T) {
	t.Setenv("WEBHOOKD_CONFIG", "/nonexistent/profile.yaml")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.OperationTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.StaleTimeout = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Port = "not-a-port"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ProcessingDelay = 0
	assert.NoError(t, cfg.Validate(), "zero delay is legal for tests")
}

func TestSlogLevelUnknownDefaultsToInfo(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "chatty"
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}
