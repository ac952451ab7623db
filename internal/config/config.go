package config

import "time"

// Config is the complete application configuration. It is loaded once and
// passed explicitly to service constructors; there is no lazily
// initialized global instance.
type Config struct {
	APIKey    string `mapstructure:"api_key"`
	AccountID int    `mapstructure:"account_id"`
	Region    string `mapstructure:"region"`

	Server  ServerConfig  `mapstructure:"server"`
	Client  ClientConfig  `mapstructure:"client"`
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig contains the REST API server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Production      bool          `mapstructure:"production"`
}

// ClientConfig tunes the NerdGraph client.
type ClientConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay"`
	RateLimitMax     int           `mapstructure:"rate_limit_max"`
	RateLimitWindow  time.Duration `mapstructure:"rate_limit_window"`
	BatchSize        int           `mapstructure:"batch_size"`
	BatchWindow      time.Duration `mapstructure:"batch_window"`
	SubscriptionURL  string        `mapstructure:"subscription_url"`
	MaxReconnects    int           `mapstructure:"max_reconnects"`
	EndpointOverride string        `mapstructure:"endpoint_override"`
}

// StoreConfig contains the local libsql cache database settings.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// CacheConfig contains result cache TTLs.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	ResultTTL time.Duration `mapstructure:"result_ttl"`
	SchemaTTL time.Duration `mapstructure:"schema_ttl"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level controls the minimum log level.
	// Valid values: debug, info, warn, error
	Level string `mapstructure:"level"`
}
