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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
}

// StoreConfig configures the database backend. For the sqlite driver
// DatabaseURL is a file path.
type StoreConfig struct {
	Driver             string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL        string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns           int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns           int32  `yaml:"min_conns" mapstructure:"min_conns"`
	AllowCloudTruncate bool   `yaml:"allow_cloud_truncate" mapstructure:"allow_cloud_truncate"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AnthropicConfig holds the remote reviewer settings. An empty Key selects
// the offline reviewer.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ScorerConfig holds anomaly scoring thresholds.
type ScorerConfig struct {
	MinScore         float64 `yaml:"min_score" mapstructure:"min_score"`
	Limit            int     `yaml:"limit" mapstructure:"limit"`
	ImplausibleTotal float64 `yaml:"implausible_total" mapstructure:"implausible_total"`
	ZScoreHigh       float64 `yaml:"zscore_high" mapstructure:"zscore_high"`
	ZScoreModerate   float64 `yaml:"zscore_moderate" mapstructure:"zscore_moderate"`
}

// NormalizeConfig configures the normalization run.
type NormalizeConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
	// Year is the reporting year stamped on rows when the export has none.
	Year int `yaml:"year" mapstructure:"year"`
}

// RetryConfig configures retries of network-facing calls.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
}

// FetchConfig configures source downloads.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INDEMNIZATII")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.allow_cloud_truncate", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("anthropic.requests_per_second", 2.0)
	v.SetDefault("scorer.min_score", 3.0)
	v.SetDefault("scorer.limit", 500)
	v.SetDefault("scorer.implausible_total", 2_000_000)
	v.SetDefault("scorer.zscore_high", 4.0)
	v.SetDefault("scorer.zscore_moderate", 3.0)
	v.SetDefault("normalize.workers", 4)
	v.SetDefault("normalize.year", 0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 10000)
	v.SetDefault("fetch.user_agent", "indemnizatii/1.0")
	v.SetDefault("fetch.timeout_secs", 60)

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

// Redacted returns a copy of c with secrets masked, for display.
func (c Config) Redacted() Config {
	if c.Anthropic.Key != "" {
		c.Anthropic.Key = "****"
	}
	if c.Store.DatabaseURL != "" && strings.Contains(c.Store.DatabaseURL, "@") {
		c.Store.DatabaseURL = redactURL(c.Store.DatabaseURL)
	}
	return c
}

// redactURL masks the userinfo of a connection string.
func redactURL(u string) string {
	scheme := strings.Index(u, "://")
	at := strings.LastIndex(u, "@")
	if scheme < 0 || at < scheme {
		return u
	}
	return u[:scheme+3] + "****" + u[at:]
}
