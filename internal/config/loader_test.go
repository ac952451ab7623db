package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "US", cfg.Region)
	require.Equal(t, 3000, cfg.Server.Port)
	require.Equal(t, 25, cfg.Client.RateLimitMax)
	require.Equal(t, time.Minute, cfg.Client.RateLimitWindow)
	require.Equal(t, 3, cfg.Client.MaxRetries)
	require.Equal(t, 120*time.Second, cfg.Client.Timeout)
	require.Equal(t, 50, cfg.Client.BatchSize)
	require.Equal(t, 100*time.Millisecond, cfg.Client.BatchWindow)
	require.Equal(t, 5, cfg.Client.MaxReconnects)
	require.True(t, cfg.Cache.Enabled)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nrguardian.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: file-key
account_id: 987
region: EU
server:
  port: 4100
client:
  rate_limit_max: 10
  rate_limit_window: 30s
cache:
  result_ttl: 90s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "file-key", cfg.APIKey)
	require.Equal(t, 987, cfg.AccountID)
	require.Equal(t, "EU", cfg.Region)
	require.Equal(t, 4100, cfg.Server.Port)
	require.Equal(t, 10, cfg.Client.RateLimitMax)
	require.Equal(t, 30*time.Second, cfg.Client.RateLimitWindow)
	require.Equal(t, 90*time.Second, cfg.Cache.ResultTTL)
}

func TestLoadWellKnownEnvOverrides(t *testing.T) {
	t.Setenv("NEW_RELIC_API_KEY", "env-key")
	t.Setenv("NEW_RELIC_ACCOUNT_ID", "321")
	t.Setenv("NEW_RELIC_REGION", "EU")
	t.Setenv("DASHBOARD_API_PORT", "5005")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "env-key", cfg.APIKey)
	require.Equal(t, 321, cfg.AccountID)
	require.Equal(t, "EU", cfg.Region)
	require.Equal(t, 5005, cfg.Server.Port)
}

func TestLoadPrefixedEnvBeatsWellKnown(t *testing.T) {
	t.Setenv("NEW_RELIC_API_KEY", "well-known")
	t.Setenv("NR_GUARDIAN_API_KEY", "prefixed")
	t.Setenv("NR_GUARDIAN_CLIENT_RATE_LIMIT_MAX", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "prefixed", cfg.APIKey)
	require.Equal(t, 7, cfg.Client.RateLimitMax)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Region: "US"}
	require.Error(t, cfg.Validate())

	cfg.APIKey = "key"
	require.NoError(t, cfg.Validate())

	cfg.Region = "MARS"
	require.Error(t, cfg.Validate())

	require.Error(t, cfg.RequireAccount())
	cfg.AccountID = 1
	require.NoError(t, cfg.RequireAccount())
}
