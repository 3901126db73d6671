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
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Budget    BudgetConfig    `yaml:"budget" mapstructure:"budget"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Resolver  ResolverConfig  `yaml:"resolver" mapstructure:"resolver"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// BudgetConfig caps provider spend per run. Zero means unlimited.
type BudgetConfig struct {
	MaxTokens  int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxCostUSD float64 `yaml:"max_cost_usd" mapstructure:"max_cost_usd"`
}

// RetryConfig configures provider retry behavior.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
}

// BreakerConfig configures the provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// SearchConfig configures the Elasticsearch sync target.
type SearchConfig struct {
	Addresses    []string `yaml:"addresses" mapstructure:"addresses"`
	Index        string   `yaml:"index" mapstructure:"index"`
	APIKey       string   `yaml:"api_key" mapstructure:"api_key"`
	BatchSize    int      `yaml:"batch_size" mapstructure:"batch_size"`
	SettingsPath string   `yaml:"settings_path" mapstructure:"settings_path"`
}

// EnrichConfig configures the enrichment pipeline.
type EnrichConfig struct {
	Version       string   `yaml:"version" mapstructure:"version"`
	MaxConcurrent int      `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	SampleLimit   int      `yaml:"sample_limit" mapstructure:"sample_limit"`
	SkipKeywords  []string `yaml:"skip_keywords" mapstructure:"skip_keywords"`
}

// ResolverConfig configures vendor asset resolution.
type ResolverConfig struct {
	VendorDomains []string `yaml:"vendor_domains" mapstructure:"vendor_domains"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the read-only API server.
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
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "catalog.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("anthropic.requests_per_second", 2)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 8000)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.cooldown_secs", 300)
	v.SetDefault("search.addresses", []string{"http://localhost:9200"})
	v.SetDefault("search.index", "catalog_products")
	v.SetDefault("search.batch_size", 500)
	v.SetDefault("enrich.version", "v1")
	v.SetDefault("enrich.max_concurrent", 4)
	v.SetDefault("enrich.sample_limit", 25)
	v.SetDefault("enrich.skip_keywords", []string{"localization", "base unit"})
	v.SetDefault("resolver.timeout_secs", 5)

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

// Validate checks the configuration required for the given command mode.
// Modes: "enrich", "sync", "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "enrich":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Enrich.MaxConcurrent < 1 || c.Enrich.MaxConcurrent > 32 {
			problems = append(problems, "enrich.max_concurrent must be between 1 and 32")
		}
		if c.Budget.MaxTokens < 0 || c.Budget.MaxCostUSD < 0 {
			problems = append(problems, "budget limits must be >= 0")
		}
	case "sync":
		if len(c.Search.Addresses) == 0 {
			problems = append(problems, "search.addresses is required")
		}
		if c.Search.BatchSize < 1 {
			problems = append(problems, "search.batch_size must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
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
