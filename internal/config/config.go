// Package config loads pipeline configuration from an optional YAML file
// and CIVICSIGNAL_-prefixed environment variables, with defaults for
// every key.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/civicsignal/civicsignal/internal/backoff"
	"github.com/civicsignal/civicsignal/internal/queue"
)

// Config holds all configuration for the pipeline.
type Config struct {
	Namespace string                   `mapstructure:"namespace"`
	Redis     RedisConfig              `mapstructure:"redis"`
	Queues    QueuesConfig             `mapstructure:"queues"`
	Pipeline  PipelineConfig           `mapstructure:"pipeline"`
	Stages    map[string]StageOverride `mapstructure:"stages"`
	Fusion    FusionConfig             `mapstructure:"fusion"`
	Export    ExportConfig             `mapstructure:"export"`
	Scoring   ScoringConfig            `mapstructure:"scoring"`
	Postgres  PostgresConfig           `mapstructure:"postgres"`
	Intel     IntelConfig              `mapstructure:"intel"`
	NATS      NATSConfig               `mapstructure:"nats"`
	Metrics   MetricsConfig            `mapstructure:"metrics"`
	Log       LogConfig                `mapstructure:"log"`
}

// RedisConfig holds the queue transport connection settings.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// QueuesConfig allows overriding individual queue keys. Empty fields fall
// back to the {namespace}:{stage} scheme.
type QueuesConfig struct {
	Raw       string `mapstructure:"raw"`
	RawDLQ    string `mapstructure:"raw_dlq"`
	Normalize string `mapstructure:"normalize"`
	Score     string `mapstructure:"score"`
	ScoreDLQ  string `mapstructure:"score_dlq"`
	Fuse      string `mapstructure:"fuse"`
	FuseDLQ   string `mapstructure:"fuse_dlq"`
	Export    string `mapstructure:"export"`
	ExportDLQ string `mapstructure:"export_dlq"`
}

// PipelineConfig holds the batch and retry settings shared by all stages.
type PipelineConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Jitter       float64       `mapstructure:"jitter"`
}

// StageOverride narrows PipelineConfig for a single stage. Nil fields
// inherit the shared values.
type StageOverride struct {
	BatchSize    *int           `mapstructure:"batch_size"`
	PollTimeout  *time.Duration `mapstructure:"poll_timeout"`
	MaxRetries   *int           `mapstructure:"max_retries"`
	InitialDelay *time.Duration `mapstructure:"initial_delay"`
	MaxDelay     *time.Duration `mapstructure:"max_delay"`
	Jitter       *float64       `mapstructure:"jitter"`
}

// FusionConfig holds deduplication settings.
type FusionConfig struct {
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

// ExportConfig holds export artifact settings.
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// ScoringConfig holds scoring heuristic settings.
type ScoringConfig struct {
	LeadWeeks int `mapstructure:"lead_weeks"`
}

// PostgresConfig holds storage settings. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN           string `mapstructure:"dsn"`
	MigrationsURL string `mapstructure:"migrations_url"`
}

// IntelConfig holds enrichment collaborator settings. An empty endpoint
// selects the local heuristic provider.
type IntelConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// NATSConfig holds DLQ alerting settings. An empty URL disables alerts.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// MetricsConfig holds the metrics/health listener settings.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("namespace", "civicsignal")

	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.poll_timeout", "5s")
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.initial_delay", "250ms")
	v.SetDefault("pipeline.max_delay", "30s")
	v.SetDefault("pipeline.jitter", 0.2)

	v.SetDefault("fusion.dedup_ttl", "168h")

	v.SetDefault("export.dir", "exports")

	v.SetDefault("scoring.lead_weeks", 8)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.migrations_url", "file://migrations")

	v.SetDefault("intel.endpoint", "")
	v.SetDefault("intel.timeout", "10s")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.name", "civicsignal")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func buildViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("CIVICSIGNAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v, nil
}

// Load reads configuration from an optional file and the environment.
func Load(configPath string) (*Config, error) {
	v, err := buildViper(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Settings returns the effective configuration as a plain map, for the
// "config show" command.
func Settings(configPath string) (map[string]any, error) {
	v, err := buildViper(configPath)
	if err != nil {
		return nil, err
	}
	return v.AllSettings(), nil
}

// QueueKeys resolves the queue key set: the {namespace}:{stage} scheme
// with any per-queue overrides applied.
func (c *Config) QueueKeys() queue.Keys {
	keys := queue.DefaultKeys(c.Namespace)

	if c.Queues.Raw != "" {
		keys.Raw = c.Queues.Raw
	}
	if c.Queues.RawDLQ != "" {
		keys.RawDLQ = c.Queues.RawDLQ
	}
	if c.Queues.Normalize != "" {
		keys.Normalize = c.Queues.Normalize
	}
	if c.Queues.Score != "" {
		keys.Score = c.Queues.Score
	}
	if c.Queues.ScoreDLQ != "" {
		keys.ScoreDLQ = c.Queues.ScoreDLQ
	}
	if c.Queues.Fuse != "" {
		keys.Fuse = c.Queues.Fuse
	}
	if c.Queues.FuseDLQ != "" {
		keys.FuseDLQ = c.Queues.FuseDLQ
	}
	if c.Queues.Export != "" {
		keys.Export = c.Queues.Export
	}
	if c.Queues.ExportDLQ != "" {
		keys.ExportDLQ = c.Queues.ExportDLQ
	}

	return keys
}

// StagePipeline resolves the pipeline settings for one stage: the shared
// values with that stage's overrides applied.
func (c *Config) StagePipeline(stage string) PipelineConfig {
	pc := c.Pipeline

	ov, ok := c.Stages[stage]
	if !ok {
		return pc
	}
	if ov.BatchSize != nil {
		pc.BatchSize = *ov.BatchSize
	}
	if ov.PollTimeout != nil {
		pc.PollTimeout = *ov.PollTimeout
	}
	if ov.MaxRetries != nil {
		pc.MaxRetries = *ov.MaxRetries
	}
	if ov.InitialDelay != nil {
		pc.InitialDelay = *ov.InitialDelay
	}
	if ov.MaxDelay != nil {
		pc.MaxDelay = *ov.MaxDelay
	}
	if ov.Jitter != nil {
		pc.Jitter = *ov.Jitter
	}

	return pc
}

// Policy converts pipeline settings to a backoff policy.
func (pc PipelineConfig) Policy() backoff.Policy {
	return backoff.Policy{
		MaxRetries:   pc.MaxRetries,
		InitialDelay: pc.InitialDelay,
		MaxDelay:     pc.MaxDelay,
		JitterFactor: pc.Jitter,
	}
}
