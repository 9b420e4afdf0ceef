// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/synapse-search/internal/crawler"
	collyfetcher "github.com/JakeFAU/synapse-search/internal/fetcher/colly"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Search    LimitConfig     `mapstructure:"search"`
	Feed      LimitConfig     `mapstructure:"feed"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig guards the mutating API routes with a static key.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features. Level is optional.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig governs the traversal engine, the fetcher and host politeness.
type CrawlerConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Concurrency   int           `mapstructure:"concurrency"`
	MaxPages      int           `mapstructure:"max_pages"`
	MaxQueue      int           `mapstructure:"max_queue"`
	DefaultDepth  int           `mapstructure:"default_depth"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	PageTimeout   time.Duration `mapstructure:"page_timeout"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	PerHostMax    int           `mapstructure:"per_host_max"`
	PerHostRPS    float64       `mapstructure:"per_host_rps"`
	PerHostBurst  int           `mapstructure:"per_host_burst"`
}

// Engine converts the section into the engine's own config.
func (c CrawlerConfig) Engine() crawler.Config {
	return crawler.Config{
		Concurrency:  c.Concurrency,
		MaxPages:     c.MaxPages,
		MaxQueue:     c.MaxQueue,
		DefaultDepth: c.DefaultDepth,
		FetchTimeout: c.FetchTimeout,
	}
}

// SchedulerConfig controls periodic crawling.
type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// SeedSource is a source registered by the seed command.
type SeedSource struct {
	URL             string `mapstructure:"url"`
	Name            string `mapstructure:"name"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	Depth           int    `mapstructure:"depth"`
	ScrapeOutbound  *bool  `mapstructure:"scrape_outbound"`
}

// SourcesConfig holds registration defaults and the seed list.
type SourcesConfig struct {
	DefaultIntervalMinutes int          `mapstructure:"default_interval_minutes"`
	DefaultDepth           int          `mapstructure:"default_depth"`
	Seeds                  []SeedSource `mapstructure:"seeds"`
}

// NewSource applies the section defaults to a seed. Outbound recording is on
// unless the seed turns it off.
func (c SourcesConfig) NewSource(seed SeedSource) crawler.NewSource {
	n := crawler.NewSource{
		URL:             seed.URL,
		Name:            seed.Name,
		IntervalMinutes: seed.IntervalMinutes,
		Depth:           seed.Depth,
		ScrapeOutbound:  true,
	}
	if seed.ScrapeOutbound != nil {
		n.ScrapeOutbound = *seed.ScrapeOutbound
	}
	if n.IntervalMinutes <= 0 {
		n.IntervalMinutes = c.DefaultIntervalMinutes
	}
	if n.Depth <= 0 {
		n.Depth = c.DefaultDepth
	}
	return n
}

// DatabaseConfig selects and configures the store backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	DisableFullText bool          `mapstructure:"disable_full_text"`
}

// LimitConfig sets the default page size of a listing endpoint.
type LimitConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
}

// ProgressConfig tunes the event hub.
type ProgressConfig struct {
	BufferSize    int         `mapstructure:"buffer_size"`
	Batch         BatchConfig `mapstructure:"batch"`
	SinkTimeoutMs int         `mapstructure:"sink_timeout_ms"`
	LogEnabled    bool        `mapstructure:"log_enabled"`
	ClientBuffer  int         `mapstructure:"client_buffer"`
	MaxClients    int         `mapstructure:"max_clients"`
}

// BatchConfig bounds hub batches.
type BatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether both project and topic are set.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.TopicName != ""
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SYNAPSE")
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
	v.SetDefault("server.port", 3000)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("crawler.user_agent", collyfetcher.DefaultUserAgent)
	v.SetDefault("crawler.concurrency", crawler.DefaultConcurrency)
	v.SetDefault("crawler.max_pages", crawler.DefaultMaxPages)
	v.SetDefault("crawler.max_queue", crawler.DefaultMaxQueue)
	v.SetDefault("crawler.default_depth", crawler.DefaultDepth)
	v.SetDefault("crawler.fetch_timeout", crawler.DefaultFetchTimeout)
	v.SetDefault("crawler.page_timeout", 8*time.Second)
	v.SetDefault("crawler.max_body_bytes", 10<<20)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.per_host_max", 0)
	v.SetDefault("crawler.per_host_rps", 0)
	v.SetDefault("crawler.per_host_burst", 1)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", 30*time.Second)
	v.SetDefault("sources.default_interval_minutes", crawler.DefaultIntervalMinutes)
	v.SetDefault("sources.default_depth", crawler.DefaultSourceDepth)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "news.db")
	v.SetDefault("database.disable_full_text", false)
	v.SetDefault("search.default_limit", 100)
	v.SetDefault("feed.default_limit", 100)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.batch.max_events", 100)
	v.SetDefault("progress.batch.max_wait_ms", 100)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("progress.log_enabled", false)
	v.SetDefault("progress.client_buffer", 256)
	v.SetDefault("progress.max_clients", 100)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.MaxQueue <= 0 {
		return fmt.Errorf("crawler.max_queue must be > 0")
	}
	if c.Crawler.FetchTimeout <= 0 {
		return fmt.Errorf("crawler.fetch_timeout must be > 0")
	}
	if c.Crawler.PageTimeout <= 0 {
		return fmt.Errorf("crawler.page_timeout must be > 0")
	}
	if c.Crawler.PerHostMax < 0 || c.Crawler.PerHostRPS < 0 {
		return fmt.Errorf("crawler.per_host limits must be >= 0")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be > 0 when the scheduler is enabled")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	for i, seed := range c.Sources.Seeds {
		if _, err := crawler.ParseStartURL(seed.URL); err != nil {
			return fmt.Errorf("sources.seeds[%d]: %w", i, err)
		}
	}
	return nil
}

// SinkTimeout returns the per-batch sink deadline.
func (c ProgressConfig) SinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutMs) * time.Millisecond
}

// MaxBatchWait returns the hub flush interval.
func (c ProgressConfig) MaxBatchWait() time.Duration {
	return time.Duration(c.Batch.MaxWaitMs) * time.Millisecond
}
