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
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Portal    PortalConfig    `yaml:"portal" mapstructure:"portal"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Parse     ParseConfig     `yaml:"parse" mapstructure:"parse"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// StorageConfig configures the filing document tree on disk.
type StorageConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PortalConfig holds SERFF Filing Access portal settings.
type PortalConfig struct {
	BaseURL             string `yaml:"base_url" mapstructure:"base_url"`
	NavTimeoutSecs      int    `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	SocksProxy          string `yaml:"socks_proxy" mapstructure:"socks_proxy"`
	ChromePath          string `yaml:"chrome_path" mapstructure:"chrome_path"`
	CaptchaCooldownSecs int    `yaml:"captcha_cooldown_secs" mapstructure:"captcha_cooldown_secs"`
}

// ScrapeConfig configures the scrape orchestrator.
type ScrapeConfig struct {
	DelaySecs          int `yaml:"delay_secs" mapstructure:"delay_secs"`
	MaxRetries         int `yaml:"max_retries" mapstructure:"max_retries"`
	SessionTimeoutSecs int `yaml:"session_timeout_secs" mapstructure:"session_timeout_secs"`
	Parallelism        int `yaml:"parallelism" mapstructure:"parallelism"`
	RestartEvery       int `yaml:"restart_every" mapstructure:"restart_every"`
	MaxListingPages    int `yaml:"max_listing_pages" mapstructure:"max_listing_pages"`
	ErrorThreshold     int `yaml:"error_threshold" mapstructure:"error_threshold"`
	FlushEvery         int `yaml:"flush_every" mapstructure:"flush_every"`
}

// ParseConfig configures the extraction pipeline.
type ParseConfig struct {
	PdfToTextPath      string  `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	ReviewThreshold    float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	HighPriorityCutoff float64 `yaml:"high_priority_cutoff" mapstructure:"high_priority_cutoff"`
	ClaimBatchSize     int     `yaml:"claim_batch_size" mapstructure:"claim_batch_size"`
}

// PricingConfig configures the pricing engines.
type PricingConfig struct {
	// SinglePremiumMultiplier converts an annual PMI rate into a single
	// premium. The 3.0 default matches the filed rate manuals currently in
	// use; no published derivation exists, so it stays configurable.
	SinglePremiumMultiplier float64 `yaml:"single_premium_multiplier" mapstructure:"single_premium_multiplier"`
}

// ServerConfig configures the task trigger server.
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
	v.SetEnvPrefix("HERMES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("storage.root", "./filings")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("portal.base_url", "https://filingaccess.serff.com/sfa")
	v.SetDefault("portal.nav_timeout_secs", 30)
	v.SetDefault("portal.captcha_cooldown_secs", 180)
	v.SetDefault("scrape.delay_secs", 3)
	v.SetDefault("scrape.max_retries", 3)
	v.SetDefault("scrape.session_timeout_secs", 900)
	v.SetDefault("scrape.parallelism", 2)
	v.SetDefault("scrape.restart_every", 200)
	v.SetDefault("scrape.max_listing_pages", 100)
	v.SetDefault("scrape.error_threshold", 18)
	v.SetDefault("scrape.flush_every", 20)
	v.SetDefault("parse.pdftotext_path", "pdftotext")
	v.SetDefault("parse.review_threshold", 0.70)
	v.SetDefault("parse.high_priority_cutoff", 0.50)
	v.SetDefault("parse.claim_batch_size", 100)
	v.SetDefault("pricing.single_premium_multiplier", 3.0)

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
