package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Sentinel   SentinelConfig   `yaml:"sentinel" mapstructure:"sentinel"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Notice     NoticeConfig     `yaml:"notice" mapstructure:"notice"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional Postgres pool tuning.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// SentinelConfig holds Sentinel Hub credentials and endpoints.
type SentinelConfig struct {
	ClientID      string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret  string  `yaml:"client_secret" mapstructure:"client_secret"`
	TokenURL      string  `yaml:"token_url" mapstructure:"token_url"`
	StatsURL      string  `yaml:"stats_url" mapstructure:"stats_url"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LedgerConfig configures evidence anchoring.
type LedgerConfig struct {
	// Mode "simulate" runs the in-process ledger; "http" posts to BaseURL.
	Mode    string `yaml:"mode" mapstructure:"mode"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// CatalogConfig configures the protected-zone catalog source.
type CatalogConfig struct {
	// Source is a shapefile path or URL; empty uses the embedded catalog.
	Source  string `yaml:"source" mapstructure:"source"`
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// RulesConfig configures the jurisdiction rule set.
type RulesConfig struct {
	// Path to a YAML rule file; empty uses the embedded rules.
	Path string `yaml:"path" mapstructure:"path"`
}

// AuditConfig configures the audit orchestrator.
type AuditConfig struct {
	LookbackDays   int `yaml:"lookback_days" mapstructure:"lookback_days"`
	TimeoutSecs    int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// NoticeConfig configures legal notice drafting.
type NoticeConfig struct {
	AnthropicKey string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	Model        string `yaml:"model" mapstructure:"model"`
}

// MonitoringConfig configures periodic health checks and alerting.
type MonitoringConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CriticalCountThreshold int     `yaml:"critical_count_threshold" mapstructure:"critical_count_threshold"`
	ViolationRateThreshold float64 `yaml:"violation_rate_threshold" mapstructure:"violation_rate_threshold"`
}

// ServerConfig configures the audit server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TERRALENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "terralens.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("sentinel.token_url", "https://services.sentinel-hub.com/oauth/token")
	v.SetDefault("sentinel.stats_url", "https://services.sentinel-hub.com/api/v1/statistics")
	v.SetDefault("sentinel.rate_per_second", 5)
	v.SetDefault("sentinel.rate_burst", 10)
	v.SetDefault("ledger.mode", "simulate")
	v.SetDefault("catalog.temp_dir", "/tmp/terralens")
	v.SetDefault("audit.lookback_days", 30)
	v.SetDefault("audit.timeout_secs", 120)
	v.SetDefault("audit.max_concurrency", 4)
	v.SetDefault("notice.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.critical_count_threshold", 3)
	v.SetDefault("monitoring.violation_rate_threshold", 0.75)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
