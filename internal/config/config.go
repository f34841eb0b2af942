package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MASanner/findbottomlessmimosas-com/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	SearchLimit int    `yaml:"search_limit" mapstructure:"search_limit"`
}

// AnthropicConfig holds Anthropic API settings for the LLM extractor.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ExtractConfig chooses the extraction backends, tried in order.
type ExtractConfig struct {
	Backends []string `yaml:"backends" mapstructure:"backends"`
	// LLM structures text-only results with Claude when an Anthropic key is set.
	LLM bool `yaml:"llm" mapstructure:"llm"`
}

// PipelineConfig configures run behavior.
type PipelineConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	RunTimeout     time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"`
	AddressMode    string        `yaml:"address_mode" mapstructure:"address_mode"`
	TargetsFile    string        `yaml:"targets_file" mapstructure:"targets_file"`
}

// ResilienceConfig tunes retries, circuit breaking and rate limiting of
// extraction calls.
type ResilienceConfig struct {
	Retry   resilience.RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker resilience.BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
	// RateLimit is requests per second across all URLs. Zero disables it.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// ServerConfig configures the run trigger server.
type ServerConfig struct {
	Port       int    `yaml:"port" mapstructure:"port"`
	CronSecret string `yaml:"cron_secret" mapstructure:"cron_secret"`
	// AdminToken enables /api/admin/scrape for bearer callers holding it.
	AdminToken     string   `yaml:"admin_token" mapstructure:"admin_token"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("MIMOSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a real default still need registering so env vars reach
	// Unmarshal.
	for _, key := range []string{
		"store.database_url", "firecrawl.key", "anthropic.key",
		"pipeline.targets_file", "server.cron_secret", "server.admin_token",
	} {
		v.SetDefault(key, "")
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "mimosas.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("firecrawl.search_limit", 5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("extract.backends", []string{"firecrawl"})
	v.SetDefault("extract.llm", false)
	v.SetDefault("pipeline.max_concurrency", 4)
	v.SetDefault("pipeline.run_timeout", "5m")
	v.SetDefault("pipeline.address_mode", "lenient")
	v.SetDefault("resilience.retry.max_attempts", 3)
	v.SetDefault("resilience.retry.initial_backoff", "500ms")
	v.SetDefault("resilience.retry.max_backoff", "10s")
	v.SetDefault("resilience.retry.multiplier", 2.0)
	v.SetDefault("resilience.retry.jitter_fraction", 0.25)
	v.SetDefault("resilience.breaker.failure_threshold", 5)
	v.SetDefault("resilience.breaker.reset_timeout", "30s")
	v.SetDefault("resilience.rate_limit", 2.0)
	v.SetDefault("resilience.rate_burst", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the keys the given command needs. Modes are scrape,
// replay, serve, migrate and read (runs, catalog).
func (c *Config) Validate(mode string) error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch c.Store.Driver {
	case "postgres":
		require(c.Store.DatabaseURL != "", "store.database_url is required for the postgres driver")
	case "sqlite":
		require(c.Store.SQLitePath != "", "store.sqlite_path is required for the sqlite driver")
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	switch mode {
	case "scrape":
		c.validateExtract(require)
		require(c.Pipeline.MaxConcurrency > 0, "pipeline.max_concurrency must be positive")
	case "replay":
		require(c.Pipeline.MaxConcurrency > 0, "pipeline.max_concurrency must be positive")
	case "serve":
		c.validateExtract(require)
		require(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be between 1 and 65535")
		require(c.Server.CronSecret != "", "server.cron_secret is required")
	case "migrate", "read":
	default:
		problems = append(problems, "unknown validation mode "+mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateExtract(require func(bool, string)) {
	require(len(c.Extract.Backends) > 0, "extract.backends is required")
	for _, b := range c.Extract.Backends {
		switch b {
		case "firecrawl":
			require(c.Firecrawl.Key != "", "firecrawl.key is required")
		case "html":
		default:
			require(false, "extract.backends: unknown backend "+b)
		}
	}
	if c.Extract.LLM {
		require(c.Anthropic.Key != "", "anthropic.key is required when extract.llm is set")
	}
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
