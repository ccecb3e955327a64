package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("TRACKLEDGER_HMAC_KEY", "unit-test-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, int64(100), cfg.Checkpoint.Interval)
	assert.True(t, cfg.Checkpoint.OnVerificationPassed)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout.Std())
	assert.Equal(t, "unit-test-key", cfg.HMACKey)
	assert.False(t, cfg.Cache.Enabled)
	assert.InDelta(t, 0.8, cfg.Ladder.MinSurvivalRate, 1e-9)
}

func TestLoad_YAMLOverlaysDefaults(t *testing.T) {
	t.Setenv("TRACKLEDGER_HMAC_KEY", "unit-test-key")
	path := writeConfig(t, `
http:
  port: 9100
  read_timeout: 30s
database:
  max_open_conns: 25
checkpoint:
  interval: 50
ladder:
  min_live_trades: 40
cache:
  enabled: true
  addr: redis:6379
  ttl: 2m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout.Std())
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, int64(50), cfg.Checkpoint.Interval)
	assert.Equal(t, int64(40), cfg.Ladder.MinLiveTrades)
	// Untouched ladder fields keep their defaults.
	assert.Equal(t, int64(90), cfg.Ladder.MinProvenDays)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL.Std())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TRACKLEDGER_HMAC_KEY", "env-key")
	t.Setenv("TRACKLEDGER_DSN", "postgres://env@db:5432/ledger")
	t.Setenv("TRACKLEDGER_HTTP_PORT", "9999")
	path := writeConfig(t, `
http:
  port: 8081
hmac_key: file-key
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.HMACKey)
	assert.Equal(t, "postgres://env@db:5432/ledger", cfg.Database.DSN)
	assert.Equal(t, 9999, cfg.HTTP.Port)
}

func TestLoad_RejectsMissingHMACKey(t *testing.T) {
	t.Setenv("TRACKLEDGER_HMAC_KEY", "")

	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hmac key")
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("TRACKLEDGER_HMAC_KEY", "k")

	_, err := Load(writeConfig(t, "http:\n  port: 70000\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "checkpoint:\n  interval: -1\n"))
	assert.Error(t, err)

	t.Setenv("TRACKLEDGER_HTTP_PORT", "not-a-port")
	_, err = Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	t.Setenv("TRACKLEDGER_HMAC_KEY", "k")

	_, err := Load(writeConfig(t, "http:\n  read_timeout: banana\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse duration")
}
