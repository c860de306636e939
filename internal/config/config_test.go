package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: debug
http:
  timeout_seconds: 45
  max_retries: 4
sources:
  jobicy:
    enabled: false
  theirstack:
    api_key: ts-key
    page_size: 50
    max_pages: 2
ingest:
  schedule: "*/30 * * * *"
  source_delay_ms: 0
  concurrency: 2
database:
  backend: postgres
  dsn: postgres://atlas@localhost/atlas
storage:
  backend: gcs
  bucket: atlas-raw
jobs:
  max_age_days: 14
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 45, cfg.HTTP.TimeoutSeconds)
	require.Equal(t, "ts-key", cfg.Sources.TheirStack.APIKey)
	require.Equal(t, 50, cfg.Sources.TheirStack.PageSize)
	require.Equal(t, "*/30 * * * *", cfg.Ingest.Schedule)
	require.Equal(t, time.Duration(0), cfg.SourceDelay())
	require.Equal(t, BackendPostgres, cfg.Database.Backend)
	require.Equal(t, "atlas-raw", cfg.Storage.Bucket)
	require.Equal(t, 14*24*time.Hour, cfg.MaxAge())
	require.Equal(t, []jobs.Source{jobs.SourceRemotive, jobs.SourceTheirStack}, cfg.EnabledSources())

	// untouched keys keep their defaults
	require.Equal(t, "https://remotive.com/api/remote-jobs", cfg.Sources.Remotive.URL)
	require.Equal(t, 100, cfg.Jobs.ListLimit)
	require.Equal(t, "jobs", cfg.Database.Table)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "0 */6 * * *", cfg.Ingest.Schedule)
	require.Equal(t, 3*time.Second, cfg.SourceDelay())
	require.Equal(t, 30*24*time.Hour, cfg.MaxAge())
	require.Equal(t, BackendMemory, cfg.Database.Backend)
	require.Equal(t, BackendNone, cfg.Storage.Backend)
	require.Equal(t, jobs.IngestSources, cfg.EnabledSources())
	require.Equal(t, 10*time.Minute, cfg.JobTimeout())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestLoadEnvironmentAliases(t *testing.T) {
	t.Setenv("THEIRSTACK_API_KEY", "from-env")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("ATLAS_DATABASE_BACKEND", "mongo")
	t.Setenv("ATLAS_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Sources.TheirStack.APIKey)
	require.Equal(t, "mongodb://localhost:27017", cfg.Database.URI)
	require.Equal(t, BackendMongo, cfg.Database.Backend)
	require.Equal(t, 7070, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port must be > 0"},
		{"auth key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key must be set"},
		{"timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "http.max_retries"},
		{"rate", func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }, "rate_limit.requests_per_second"},
		{"concurrency", func(c *Config) { c.Ingest.Concurrency = 0 }, "ingest.concurrency"},
		{"queue", func(c *Config) { c.Ingest.QueueDepth = 0 }, "ingest.queue_depth"},
		{"store concurrency", func(c *Config) { c.Ingest.StoreConcurrency = 0 }, "ingest.store_concurrency"},
		{"delay", func(c *Config) { c.Ingest.SourceDelayMs = -1 }, "ingest.source_delay_ms"},
		{"limit", func(c *Config) { c.Jobs.ListLimit = 0 }, "jobs.list_limit"},
		{"age", func(c *Config) { c.Jobs.MaxAgeDays = 0 }, "jobs.max_age_days"},
		{"postgres dsn", func(c *Config) { c.Database.Backend = BackendPostgres }, "database.dsn"},
		{"mongo uri", func(c *Config) { c.Database.Backend = BackendMongo }, "database.uri"},
		{"db backend", func(c *Config) { c.Database.Backend = "sqlite" }, "database.backend"},
		{"gcs bucket", func(c *Config) { c.Storage.Backend = BackendGCS }, "storage.bucket"},
		{"local dir", func(c *Config) {
			c.Storage.Backend = BackendLocal
			c.Storage.Local.BaseDir = ""
		}, "storage.local.base_dir"},
		{"storage backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"page size", func(c *Config) { c.Sources.TheirStack.PageSize = 0 }, "sources.theirstack.page_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
