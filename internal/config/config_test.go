package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "civicsignal", cfg.Namespace)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.PollTimeout)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.MaxDelay)
	assert.InDelta(t, 0.2, cfg.Pipeline.Jitter, 0.0001)
	assert.Equal(t, 168*time.Hour, cfg.Fusion.DedupTTL)
	assert.Equal(t, "exports", cfg.Export.Dir)
	assert.Equal(t, 8, cfg.Scoring.LeadWeeks)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, "file://migrations", cfg.Postgres.MigrationsURL)
	assert.Empty(t, cfg.NATS.URL)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromFile(t *testing.T) {
	content := `
namespace: permits
redis:
  url: redis://redis.internal:6379/2
pipeline:
  batch_size: 25
  max_retries: 5
stages:
  score:
    max_retries: 2
    poll_timeout: 1s
queues:
  raw: custom:incoming
fusion:
  dedup_ttl: 24h
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "permits", cfg.Namespace)
	assert.Equal(t, "redis://redis.internal:6379/2", cfg.Redis.URL)
	assert.Equal(t, 25, cfg.Pipeline.BatchSize)
	assert.Equal(t, 5, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.Fusion.DedupTTL)

	// Untouched keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Pipeline.PollTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CIVICSIGNAL_NAMESPACE", "staging")
	t.Setenv("CIVICSIGNAL_REDIS_URL", "redis://staging:6379/0")
	t.Setenv("CIVICSIGNAL_PIPELINE_MAX_RETRIES", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Namespace)
	assert.Equal(t, "redis://staging:6379/0", cfg.Redis.URL)
	assert.Equal(t, 7, cfg.Pipeline.MaxRetries)
}

func TestQueueKeys(t *testing.T) {
	t.Run("defaults from namespace", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)

		keys := cfg.QueueKeys()
		assert.Equal(t, "civicsignal:raw", keys.Raw)
		assert.Equal(t, "civicsignal:export:dlq", keys.ExportDLQ)
	})

	t.Run("individual overrides win", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Queues.Raw = "legacy:incoming"
		cfg.Queues.ScoreDLQ = "legacy:score:failed"

		keys := cfg.QueueKeys()
		assert.Equal(t, "legacy:incoming", keys.Raw)
		assert.Equal(t, "legacy:score:failed", keys.ScoreDLQ)
		assert.Equal(t, "civicsignal:fuse", keys.Fuse)
	})
}

func TestStagePipeline(t *testing.T) {
	content := `
pipeline:
  batch_size: 10
  max_retries: 3
stages:
  export:
    batch_size: 50
  score:
    max_retries: 1
    initial_delay: 100ms
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	t.Run("no override inherits shared values", func(t *testing.T) {
		pc := cfg.StagePipeline("ingest")
		assert.Equal(t, 10, pc.BatchSize)
		assert.Equal(t, 3, pc.MaxRetries)
	})

	t.Run("override replaces only named fields", func(t *testing.T) {
		pc := cfg.StagePipeline("export")
		assert.Equal(t, 50, pc.BatchSize)
		assert.Equal(t, 3, pc.MaxRetries)

		pc = cfg.StagePipeline("score")
		assert.Equal(t, 10, pc.BatchSize)
		assert.Equal(t, 1, pc.MaxRetries)
		assert.Equal(t, 100*time.Millisecond, pc.InitialDelay)
	})
}

func TestPolicy(t *testing.T) {
	pc := PipelineConfig{
		MaxRetries:   2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Jitter:       0.1,
	}

	p := pc.Policy()
	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, p.InitialDelay)
	assert.Equal(t, time.Second, p.MaxDelay)
	assert.InDelta(t, 0.1, p.JitterFactor, 0.0001)
}

func TestSettings(t *testing.T) {
	settings, err := Settings("")
	require.NoError(t, err)

	assert.Contains(t, settings, "namespace")
	assert.Contains(t, settings, "pipeline")
	assert.Contains(t, settings, "redis")
}
