// Package config loads and validates Atlas configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles for the /v1 admin routes.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig describes the service resource and trace export target.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	ProjectID   string `mapstructure:"project_id"`
	Region      string `mapstructure:"region"`
}

// HTTPConfig configures the source API client and its retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	UserAgent        string `mapstructure:"user_agent"`
}

// RateLimitConfig bounds outbound requests per source host.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// SourceConfig configures one upstream job API.
type SourceConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	PageSize   int    `mapstructure:"page_size"`
	MaxPages   int    `mapstructure:"max_pages"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SourcesConfig groups the upstream APIs.
type SourcesConfig struct {
	Remotive   SourceConfig `mapstructure:"remotive"`
	Jobicy     SourceConfig `mapstructure:"jobicy"`
	TheirStack SourceConfig `mapstructure:"theirstack"`
}

// IngestConfig governs the scheduler, queue and worker pool.
type IngestConfig struct {
	Schedule          string `mapstructure:"schedule"`
	RunOnStart        bool   `mapstructure:"run_on_start"`
	SourceDelayMs     int    `mapstructure:"source_delay_ms"`
	Concurrency       int    `mapstructure:"concurrency"`
	QueueDepth        int    `mapstructure:"queue_depth"`
	StoreConcurrency  int    `mapstructure:"store_concurrency"`
	JobTimeoutSeconds int    `mapstructure:"job_timeout_seconds"`
}

// DatabaseConfig selects and configures the job store backend.
type DatabaseConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	URI             string        `mapstructure:"uri"`
	Name            string        `mapstructure:"name"`
	Collection      string        `mapstructure:"collection"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// StorageConfig selects where raw source pages are archived.
type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	Bucket  string       `mapstructure:"bucket"`
	Prefix  string       `mapstructure:"prefix"`
	Local   LocalStorage `mapstructure:"local"`
}

// LocalStorage configures the filesystem archive.
type LocalStorage struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// JobsConfig controls listing defaults.
type JobsConfig struct {
	ListLimit  int `mapstructure:"list_limit"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Database backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendNone     = "none"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindAliases(v); err != nil {
		return Config{}, err
	}

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
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.service_name", "atlas")
	v.SetDefault("telemetry.version", "dev")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.user_agent", "atlas-jobs/0.1")
	v.SetDefault("rate_limit.requests_per_second", 1.0)
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("sources.remotive.enabled", true)
	v.SetDefault("sources.remotive.url", "https://remotive.com/api/remote-jobs")
	v.SetDefault("sources.jobicy.enabled", true)
	v.SetDefault("sources.jobicy.url", "https://jobicy.com/api/v2/remote-jobs")
	v.SetDefault("sources.theirstack.enabled", true)
	v.SetDefault("sources.theirstack.url", "https://api.theirstack.com/v1/jobs/search")
	v.SetDefault("sources.theirstack.page_size", 25)
	v.SetDefault("sources.theirstack.max_pages", 4)
	v.SetDefault("sources.theirstack.max_age_days", 30)
	v.SetDefault("ingest.schedule", "0 */6 * * *")
	v.SetDefault("ingest.run_on_start", false)
	v.SetDefault("ingest.source_delay_ms", 3000)
	v.SetDefault("ingest.concurrency", 1)
	v.SetDefault("ingest.queue_depth", 16)
	v.SetDefault("ingest.store_concurrency", 8)
	v.SetDefault("ingest.job_timeout_seconds", 600)
	v.SetDefault("database.backend", BackendMemory)
	v.SetDefault("database.table", "jobs")
	v.SetDefault("database.name", "atlas")
	v.SetDefault("database.collection", "jobs")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("storage.backend", BackendNone)
	v.SetDefault("storage.prefix", "raw")
	v.SetDefault("storage.local.base_dir", "data/raw")
	v.SetDefault("pubsub.topic_name", "atlas-events")
	v.SetDefault("jobs.list_limit", 100)
	v.SetDefault("jobs.max_age_days", 30)
}

// bindAliases accepts the conventional unprefixed variables for secrets.
func bindAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"sources.theirstack.api_key": {"ATLAS_SOURCES_THEIRSTACK_API_KEY", "THEIRSTACK_API_KEY"},
		"database.uri":               {"ATLAS_DATABASE_URI", "MONGODB_URI"},
		"database.dsn":               {"ATLAS_DATABASE_DSN", "DATABASE_URL"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be > 0")
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be > 0")
	}
	if c.Ingest.QueueDepth <= 0 {
		return fmt.Errorf("ingest.queue_depth must be > 0")
	}
	if c.Ingest.StoreConcurrency <= 0 {
		return fmt.Errorf("ingest.store_concurrency must be > 0")
	}
	if c.Ingest.SourceDelayMs < 0 {
		return fmt.Errorf("ingest.source_delay_ms must be >= 0")
	}
	if c.Jobs.ListLimit <= 0 {
		return fmt.Errorf("jobs.list_limit must be > 0")
	}
	if c.Jobs.MaxAgeDays <= 0 {
		return fmt.Errorf("jobs.max_age_days must be > 0")
	}
	switch c.Database.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres backend")
		}
	case BackendMongo:
		if c.Database.URI == "" {
			return fmt.Errorf("database.uri must be set for the mongo backend")
		}
	default:
		return fmt.Errorf("database.backend %q is not supported", c.Database.Backend)
	}
	switch c.Storage.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Sources.TheirStack.Enabled && c.Sources.TheirStack.PageSize <= 0 {
		return fmt.Errorf("sources.theirstack.page_size must be > 0")
	}
	return nil
}

// EnabledSources lists the ingest sources switched on, in ingest order.
func (c Config) EnabledSources() []jobs.Source {
	enabled := map[jobs.Source]bool{
		jobs.SourceRemotive:   c.Sources.Remotive.Enabled,
		jobs.SourceJobicy:     c.Sources.Jobicy.Enabled,
		jobs.SourceTheirStack: c.Sources.TheirStack.Enabled,
	}
	out := make([]jobs.Source, 0, len(jobs.IngestSources))
	for _, src := range jobs.IngestSources {
		if enabled[src] {
			out = append(out, src)
		}
	}
	return out
}

// SourceDelay is the pause between consecutive sources in one run.
func (c Config) SourceDelay() time.Duration {
	return time.Duration(c.Ingest.SourceDelayMs) * time.Millisecond
}

// JobTimeout bounds a single ingest run.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Ingest.JobTimeoutSeconds) * time.Second
}

// MaxAge is the freshness window applied to listings.
func (c Config) MaxAge() time.Duration {
	return time.Duration(c.Jobs.MaxAgeDays) * 24 * time.Hour
}
