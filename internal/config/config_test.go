package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigContent = `
[development]
host = "localhost"
port = 8080
log_level = "trace"
log_to_stdout = true
data_dir = "./data"
oauth_redirect_url = "http://localhost:8080/auth/callback"

[production]
host = "0.0.0.0"
port = 9000
log_level = "debug"
logs_path = "/var/log/gymsheets/service.log"
sentry_enabled = true
data_dir = "/var/lib/gymsheets"
store_quota_bytes = 10485760
oauth_redirect_url = "https://gymsheets.example.com/auth/callback"
prometheus_metrics_host = "localhost"
prometheus_metrics_port = "9091"
redis_host = "localhost"
redis_port = "6379"
creds_rate_limit_allowed_per_min = 10
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigContent), 0o600))
	return path
}

func TestLoad_Development(t *testing.T) {
	cfg, err := Load("development", writeTestConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "trace", cfg.LogLevel)
	assert.True(t, cfg.LogToStdout)
	assert.False(t, cfg.SentryEnabled)

	// defaults kick in for values not set in the file
	assert.Equal(t, int64(5<<20), cfg.StoreQuotaBytes)
	assert.Equal(t, "Workout Tracker Data", cfg.SpreadsheetTitle)
	assert.Equal(t, 10, cfg.AuthRateLimitAllowedPerMin)
	assert.Equal(t, 30, cfg.CredsRateLimitAllowedPerMin)
}

func TestLoad_Production(t *testing.T) {
	cfg, err := Load("prod", writeTestConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.SentryEnabled)
	assert.Equal(t, int64(10485760), cfg.StoreQuotaBytes)
	assert.Equal(t, "/var/lib/gymsheets", cfg.DataDir)
	assert.Equal(t, 10, cfg.CredsRateLimitAllowedPerMin)
}

func TestLoad_UnknownEnv(t *testing.T) {
	_, err := Load("staging", writeTestConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown env")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("development", "/invalid/path/config.toml")
	require.Error(t, err)
}
