// Package config provides centralized configuration management for
// nrguardian. Settings layer in the usual order: built-in defaults, an
// optional YAML config file, then environment variables (NR_GUARDIAN_*
// tuning knobs plus the well-known NEW_RELIC_* credentials).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "NR_GUARDIAN"

// Load reads configuration from the optional file at cfgFile (discovered
// under $XDG_CONFIG_HOME/nrguardian and ./config when empty) plus the
// environment, and decodes it into a Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "nrguardian"))
		}
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("nrguardian")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindWellKnownEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No config file is fine, defaults and environment cover it.
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

// bindWellKnownEnv maps the externally documented variable names onto
// config keys. These take precedence over file values but lose to the
// prefixed NR_GUARDIAN_* variants when both are set.
func bindWellKnownEnv(v *viper.Viper) {
	aliases := map[string]string{
		"api_key":     "NEW_RELIC_API_KEY",
		"account_id":  "NEW_RELIC_ACCOUNT_ID",
		"region":      "NEW_RELIC_REGION",
		"server.port": "DASHBOARD_API_PORT",
	}
	for key, env := range aliases {
		_ = v.BindEnv(key, strings.ToUpper(envPrefix+"_"+strings.ReplaceAll(key, ".", "_")), env)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("region", "US")

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.production", false)

	// Client defaults
	v.SetDefault("client.timeout", "120s")
	v.SetDefault("client.max_retries", 3)
	v.SetDefault("client.retry_base_delay", "1s")
	v.SetDefault("client.retry_max_delay", "10s")
	v.SetDefault("client.rate_limit_max", 25)
	v.SetDefault("client.rate_limit_window", "1m")
	v.SetDefault("client.batch_size", 50)
	v.SetDefault("client.batch_window", "100ms")
	v.SetDefault("client.max_reconnects", 5)

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.result_ttl", "5m")
	v.SetDefault("cache.schema_ttl", "1h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
}

// DefaultStorePath returns the default location of the local cache
// database.
func DefaultStorePath() string {
	if cacheDir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cacheDir, "nrguardian", "cache.db")
	}
	return filepath.Join(".", "nrguardian-cache.db")
}

// Validate checks the fields every network operation depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api key is required (set NEW_RELIC_API_KEY)")
	}
	switch strings.ToUpper(strings.TrimSpace(c.Region)) {
	case "", "US", "EU":
	default:
		return fmt.Errorf("unknown region %q (expected US or EU)", c.Region)
	}
	return nil
}

// RequireAccount validates that an account ID is configured for
// operations scoped to one account.
func (c *Config) RequireAccount() error {
	if c.AccountID <= 0 {
		return fmt.Errorf("account id is required (set NEW_RELIC_ACCOUNT_ID)")
	}
	return nil
}
