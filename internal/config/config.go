package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// prometheus metrics server
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// local store (the offline fallback for all tracker data)
	DataDir         string `toml:"data_dir"`
	StoreQuotaBytes int64  `toml:"store_quota_bytes"`

	// google oauth + sheets
	OAuthRedirectURL string `toml:"oauth_redirect_url"`
	SpreadsheetTitle string `toml:"spreadsheet_title"`

	// redis, used for request rate limiting
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	AuthRateLimitAllowedPerMin  int `toml:"auth_rate_limit_allowed_per_min"`
	CredsRateLimitAllowedPerMin int `toml:"creds_rate_limit_allowed_per_min"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.DecodeFile(path, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	cfg, err := tomlConfig.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no config section for env: %s", env)
	}

	cfg.Environment = env
	cfg.setDefaults()

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "trace"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.StoreQuotaBytes == 0 {
		// roughly the localStorage allowance of a browser profile
		c.StoreQuotaBytes = 5 << 20
	}
	if c.SpreadsheetTitle == "" {
		c.SpreadsheetTitle = "Workout Tracker Data"
	}
	if c.AuthRateLimitAllowedPerMin == 0 {
		c.AuthRateLimitAllowedPerMin = 10
	}
	if c.CredsRateLimitAllowedPerMin == 0 {
		c.CredsRateLimitAllowedPerMin = 30
	}
}
