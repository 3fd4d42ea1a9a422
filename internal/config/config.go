package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the results/cache database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// QueueConfig configures the Redis Streams work queue.
type QueueConfig struct {
	Addr           string `yaml:"addr" mapstructure:"addr"`
	Password       string `yaml:"password" mapstructure:"password"`
	DB             int    `yaml:"db" mapstructure:"db"`
	Stream         string `yaml:"stream" mapstructure:"stream"`
	Group          string `yaml:"group" mapstructure:"group"`
	PollSecs       int    `yaml:"poll_secs" mapstructure:"poll_secs"`
	VisibilityMins int    `yaml:"visibility_mins" mapstructure:"visibility_mins"`
}

// FetchConfig configures content acquisition. TimeoutSecs and BackoffSecs
// are parallel per-attempt schedules: attempt n uses TimeoutSecs[n] and, if
// it fails retryably, sleeps BackoffSecs[n] before the next attempt. The
// attempt budget is len(TimeoutSecs).
type FetchConfig struct {
	TimeoutSecs   []int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BackoffSecs   []int `yaml:"backoff_secs" mapstructure:"backoff_secs"`
	CacheTTLHours int   `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// CacheTTL returns the content cache TTL as a duration.
func (c FetchConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	Model           string `yaml:"model" mapstructure:"model"`
	MaxTokens       int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestTimeoutS int    `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// SalesforceConfig holds Salesforce JWT auth settings plus the commit flag
// that gates external writes for a run.
type SalesforceConfig struct {
	ClientID string  `yaml:"client_id" mapstructure:"client_id"`
	Username string  `yaml:"username" mapstructure:"username"`
	KeyPath  string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string  `yaml:"login_url" mapstructure:"login_url"`
	Commit   bool    `yaml:"commit" mapstructure:"commit"`
	RateRPS  float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
}

// WorkerConfig configures the worker loop lifecycle.
type WorkerConfig struct {
	AutoShutdown    bool   `yaml:"auto_shutdown" mapstructure:"auto_shutdown"`
	IdleTimeoutMins int    `yaml:"idle_timeout_mins" mapstructure:"idle_timeout_mins"`
	ConsumerID      string `yaml:"consumer_id" mapstructure:"consumer_id"`
}

// EnrichConfig configures extraction and reconciliation behavior.
type EnrichConfig struct {
	// MinConfidence gates CRM writes; 0 disables gating. Results are
	// always persisted with the verbatim confidence regardless.
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
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
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("queue.addr", "localhost:6379")
	v.SetDefault("queue.stream", "enrichment:leads")
	v.SetDefault("queue.group", "enrichment-workers")
	v.SetDefault("queue.poll_secs", 20)
	v.SetDefault("queue.visibility_mins", 5)
	v.SetDefault("fetch.timeout_secs", []int{20, 30, 40})
	v.SetDefault("fetch.backoff_secs", []int{1, 2, 4})
	v.SetDefault("fetch.cache_ttl_hours", 24)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.request_timeout_secs", 60)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_rps", 5)
	v.SetDefault("worker.auto_shutdown", true)
	v.SetDefault("worker.idle_timeout_mins", 5)
	v.SetDefault("enrich.min_confidence", 0.0)

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
