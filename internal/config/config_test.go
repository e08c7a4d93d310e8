package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "terralens.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://services.sentinel-hub.com/oauth/token", cfg.Sentinel.TokenURL)
	assert.Equal(t, "https://services.sentinel-hub.com/api/v1/statistics", cfg.Sentinel.StatsURL)
	assert.InDelta(t, 5, cfg.Sentinel.RatePerSecond, 0.001)
	assert.Equal(t, 10, cfg.Sentinel.RateBurst)
	assert.Equal(t, "simulate", cfg.Ledger.Mode)
	assert.Equal(t, 30, cfg.Audit.LookbackDays)
	assert.Equal(t, 120, cfg.Audit.TimeoutSecs)
	assert.Equal(t, 4, cfg.Audit.MaxConcurrency)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Notice.Model)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, 3, cfg.Monitoring.CriticalCountThreshold)
	assert.InDelta(t, 0.75, cfg.Monitoring.ViolationRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/terralens
log:
  level: debug
  format: console
server:
  port: 9090
ledger:
  mode: http
  base_url: https://anchors.example.com
audit:
  max_concurrency: 8
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/terralens", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http", cfg.Ledger.Mode)
	assert.Equal(t, "https://anchors.example.com", cfg.Ledger.BaseURL)
	assert.Equal(t, 8, cfg.Audit.MaxConcurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Audit.LookbackDays)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtemp(t)

	yaml := `
server:
  port: 9090
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TERRALENS_SERVER_PORT", "7070")
	t.Setenv("TERRALENS_SENTINEL_CLIENT_ID", "env-client")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-client", cfg.Sentinel.ClientID)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "json"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "console"}))

	err := InitLogger(LogConfig{Level: "not-a-level"})
	assert.Error(t, err)
}
