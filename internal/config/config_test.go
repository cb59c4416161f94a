package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnl_engine/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
system:
  log_level: DEBUG
telemetry:
  metrics_port: 9191
  enable_metrics: true
analytics:
  use_ticks: true
  use_order_book: true
  use_candles: false
  position_mode: by_trade
server:
  listen_addr: ":9000"
  snapshots_per_second: 5
store:
  type: sqlite
  path: /tmp/pnl.db
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.System.LogLevel)
	assert.Equal(t, 9191, cfg.Telemetry.MetricsPort)
	assert.True(t, cfg.Analytics.UseOrderBook)
	assert.False(t, cfg.Analytics.UseCandles)
	assert.Equal(t, core.PositionByTrade, cfg.Analytics.PositionMode)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, "sqlite", cfg.Store.Type)

	// Defaults survive for omitted fields.
	assert.Equal(t, 4, cfg.Server.BroadcastPoolSize)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.System.LogLevel = "LOUD"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "system.log_level")
}

func TestValidateRejectsBadPositionMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analytics.PositionMode = "fifo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analytics.position_mode")
}

func TestValidateRejectsSqliteWithoutPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Type = "sqlite"
	cfg.Store.Path = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.path")
}

func TestValidateRejectsBadMetricsPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.MetricsPort = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry.metrics_port")
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("PNL_STORE_PATH", "/tmp/expanded.db")

	path := writeConfig(t, `
system:
  log_level: INFO
store:
  type: sqlite
  path: ${PNL_STORE_PATH}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/expanded.db", cfg.Store.Path)
}
