// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DB        DBConfig        `mapstructure:"db"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// StoreConfig selects backing store providers. "memory" keeps everything
// in-process for local development; "redis"/"postgres" are the production
// fast and durable stores.
type StoreConfig struct {
	Fast    string `mapstructure:"fast"`    // redis | memory
	Durable string `mapstructure:"durable"` // postgres | memory
}

// RedisConfig locates the shared fast store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DBConfig controls access to the durable Postgres store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// AuthConfig configures bearer-token verification against an external
// identity provider's JWKS endpoint.
type AuthConfig struct {
	JWKSURL string `mapstructure:"jwks_url"`
}

// RateLimitConfig governs the per-key fixed-window limiter.
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	GraceSeconds  int `mapstructure:"grace_seconds"`
	DefaultLimit  int `mapstructure:"default_limit"`
}

// JobsConfig bounds the fast-store job projection.
type JobsConfig struct {
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

// WorkerConfig sizes the worker pool.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ScraperConfig controls the static fetcher.
type ScraperConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures browser-rendered fetches.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// LLMConfig locates the model endpoint for smart-mode extraction.
type LLMConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// WebhookConfig bounds outbound callback delivery.
type WebhookConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("store.fast", "memory")
	v.SetDefault("store.durable", "memory")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("ratelimit.window_seconds", 60)
	v.SetDefault("ratelimit.grace_seconds", 10)
	v.SetDefault("ratelimit.default_limit", 60)
	v.SetDefault("jobs.cache_ttl_seconds", 3600)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("scraper.user_agent", "ScrapeFlow/1.0")
	v.SetDefault("scraper.timeout_seconds", 15)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("webhook.timeout_seconds", 10)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Store.Fast != "redis" && c.Store.Fast != "memory" {
		return fmt.Errorf("store.fast must be redis or memory, got %q", c.Store.Fast)
	}
	if c.Store.Durable != "postgres" && c.Store.Durable != "memory" {
		return fmt.Errorf("store.durable must be postgres or memory, got %q", c.Store.Durable)
	}
	if c.Store.Durable == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when store.durable is postgres")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("ratelimit.window_seconds must be > 0")
	}
	if c.RateLimit.GraceSeconds < 10 {
		return fmt.Errorf("ratelimit.grace_seconds must be >= 10")
	}
	if c.Jobs.CacheTTLSeconds <= 0 {
		return fmt.Errorf("jobs.cache_ttl_seconds must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	return nil
}

// CacheTTL returns the fast-store job TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Jobs.CacheTTLSeconds) * time.Second
}

// RateWindow returns the limiter window as a duration.
func (c Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

// RateGrace returns the limiter expiry grace as a duration.
func (c Config) RateGrace() time.Duration {
	return time.Duration(c.RateLimit.GraceSeconds) * time.Second
}
