package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/pgmon/internal/config"
	"codeberg.org/mutker/pgmon/internal/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "pgmon.toml")
	err := os.WriteFile(configPath, []byte(content), 0o600)
	require.NoError(t, err)

	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfigFile(t, `
host = "db.internal"
port = 5433
database = "orders"
user = "monitor"
latency_threshold = 250
bloat_threshold = 35.0
history_db = "/tmp/pgmon-test/history.db"
retention_days = 30
trend = "7d"
output = "json"
log_level = "debug"
`)

	t.Setenv("PGMON_CONFIG", configPath)

	cfg, err := config.Load(config.WithArgs(nil))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Host, "Expected Host db.internal")
	assert.Equal(t, 5433, cfg.Port, "Expected Port 5433")
	assert.Equal(t, "orders", cfg.Database, "Expected Database orders")
	assert.Equal(t, "monitor", cfg.User, "Expected User monitor")
	assert.Equal(t, 250, cfg.LatencyThreshold, "Expected LatencyThreshold 250")
	assert.InDelta(t, 35.0, cfg.BloatThreshold, 0.001, "Expected BloatThreshold 35")
	assert.Equal(t, "/tmp/pgmon-test/history.db", cfg.HistoryDB, "Expected HistoryDB from file")
	assert.Equal(t, 30, cfg.RetentionDays, "Expected RetentionDays 30")
	assert.Equal(t, "7d", cfg.TrendWindow, "Expected TrendWindow 7d")
	assert.Equal(t, config.OutputJSON, cfg.Output, "Expected Output json")
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PGMON_CONFIG", "")

	cfg, err := config.Load(config.WithArgs(nil))
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, "localhost", cfg.Host, "Expected default Host localhost")
	assert.Equal(t, 5432, cfg.Port, "Expected default Port 5432")
	assert.Equal(t, "postgres", cfg.Database, "Expected default Database postgres")
	assert.Equal(t, "postgres", cfg.User, "Expected default User postgres")
	assert.Equal(t, "disable", cfg.SSLMode, "Expected default SSLMode disable")
	assert.Equal(t, 100, cfg.LatencyThreshold, "Expected default LatencyThreshold 100")
	assert.InDelta(t, 30.0, cfg.BloatThreshold, 0.001, "Expected default BloatThreshold 30")
	assert.Equal(t, 90, cfg.RetentionDays, "Expected default RetentionDays 90")
	assert.Equal(t, "24h", cfg.TrendWindow, "Expected default TrendWindow 24h")
	assert.Equal(t, config.OutputTable, cfg.Output, "Expected default Output table")
	assert.Equal(t, 0, cfg.Watch, "Expected default Watch 0")
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
	assert.False(t, cfg.NoHistory, "Expected history enabled by default")
	assert.False(t, cfg.AnyCheckSelected(), "Expected no checks selected by default")
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("PGMON_CONFIG", "")
	t.Setenv("PGMON_PASSWORD", "s3cret")
	t.Setenv("PGMON_HOST", "replica.internal")

	cfg, err := config.Load(config.WithArgs(nil))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Password, "Expected Password from environment")
	assert.Equal(t, "replica.internal", cfg.Host, "Expected Host from environment")
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	configPath := writeConfigFile(t, `
host = "db.internal"
output = "json"
`)

	t.Setenv("PGMON_CONFIG", configPath)

	cfg, err := config.Load(config.WithArgs([]string{
		"--host", "other.internal",
		"--output", "table",
		"--all",
	}))
	require.NoError(t, err)

	assert.Equal(t, "other.internal", cfg.Host, "Expected flag to override file Host")
	assert.Equal(t, config.OutputTable, cfg.Output, "Expected flag to override file Output")
	assert.True(t, cfg.All, "Expected All set by flag")
	assert.True(t, cfg.AnyCheckSelected(), "Expected check selection via --all")
}

func TestCheckSelectionFlags(t *testing.T) {
	t.Setenv("PGMON_CONFIG", "")

	cfg, err := config.Load(config.WithArgs([]string{"--checkpoints", "--wal-growth"}))
	require.NoError(t, err)

	assert.True(t, cfg.Checkpoints, "Expected Checkpoints set by flag")
	assert.True(t, cfg.WALGrowth, "Expected WALGrowth set by flag")
	assert.False(t, cfg.Cache, "Expected unselected checks to stay off")
	assert.True(t, cfg.AnyCheckSelected(), "Expected check selection via --checkpoints")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfigFile(t, `
This is not a valid TOML file
`)

	t.Setenv("PGMON_CONFIG", configPath)

	_, err := config.Load(config.WithArgs(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfigFile(t, `
log_level = "chatty"
`)

	t.Setenv("PGMON_CONFIG", configPath)

	_, err := config.Load(config.WithArgs(nil))
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidLogLevel, errors.CodeOf(err), "Expected invalid log level code")
}

func TestInvalidOutputFormat(t *testing.T) {
	t.Setenv("PGMON_CONFIG", "")

	_, err := config.Load(config.WithArgs([]string{"--output", "xml"}))
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidConfig, errors.CodeOf(err), "Expected invalid config code")
}

func TestInvalidTrendWindow(t *testing.T) {
	t.Setenv("PGMON_CONFIG", "")

	_, err := config.Load(config.WithArgs([]string{"--trend", "90d"}))
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidConfig, errors.CodeOf(err), "Expected invalid config code")
}

func TestLogLevelFlag(t *testing.T) {
	t.Setenv("PGMON_CONFIG", "")

	cfg, err := config.Load(config.WithArgs([]string{"--log-level", "debug"}))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}

func TestTrendLookback(t *testing.T) {
	t.Setenv("PGMON_CONFIG", "")

	cfg, err := config.Load(config.WithArgs([]string{"--trend", "30d"}))
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, cfg.TrendLookback(), "Expected 30d lookback")
}
