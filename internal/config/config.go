package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Database      DatabaseConfig      `yaml:"database"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Audio         ScriptConfig        `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	NLP           ScriptConfig        `yaml:"nlp"`
	Summarizer    SummarizerConfig    `yaml:"summarizer"`
	Retention     RetentionConfig     `yaml:"retention"`
	Persistence   PersistenceConfig   `yaml:"persistence"`
	Notify        NotifyConfig        `yaml:"notify"`
	Inbox         InboxConfig         `yaml:"inbox"`
	Tracing       TracingConfig       `yaml:"tracing"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	TempDir      string      `yaml:"temp_dir"`
	ProcessedDir string      `yaml:"processed_dir"`
	PermanentDir string      `yaml:"permanent_dir"`
	Backend      string      `yaml:"backend"`
	MinIO        MinIOConfig `yaml:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type PipelineConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	Timeouts      StageTimeouts `yaml:"timeouts"`
	DedupeTTL     time.Duration `yaml:"dedupe_ttl"`
	DedupeEntries int           `yaml:"dedupe_entries"`
	NotifyTimeout time.Duration `yaml:"notify_timeout"`
}

type StageTimeouts struct {
	Audio         time.Duration `yaml:"audio"`
	Transcription time.Duration `yaml:"transcription"`
	NLP           time.Duration `yaml:"nlp"`
	Summarization time.Duration `yaml:"summarization"`
}

// ScriptConfig describes an external tool invoked as a subprocess.
type ScriptConfig struct {
	Command []string `yaml:"command"`
}

type TranscriptionConfig struct {
	Backend      string        `yaml:"backend"`
	Command      []string      `yaml:"command"`
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
}

type SummarizerConfig struct {
	Provider string        `yaml:"provider"`
	Fallback bool          `yaml:"fallback"`
	Gemini   GeminiConfig  `yaml:"gemini"`
	Gateway  GatewayConfig `yaml:"gateway"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type GatewayConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type RetentionConfig struct {
	DefaultDays   *int          `yaml:"default_days"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

type PersistenceConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

type InboxConfig struct {
	Dir      string        `yaml:"dir"`
	OwnerID  string        `yaml:"owner_id"`
	Category string        `yaml:"category"`
	Settle   time.Duration `yaml:"settle"`
}

type TracingConfig struct {
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// Load reads the YAML file at path (a missing file means defaults), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	setString(&c.Database.DSN, "DATABASE_DSN")
	if c.Database.DSN != "" && c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	setString(&c.Transcription.URL, "TRANSCRIBE_URL")
	if c.Transcription.URL != "" && c.Transcription.Backend == "" {
		c.Transcription.Backend = "http"
	}
	setString(&c.Summarizer.Gateway.URL, "LLM_GATEWAY_URL")
	setString(&c.Summarizer.Gateway.APIKey, "LLM_API_KEY")
	setString(&c.Summarizer.Gateway.Model, "LLM_MODEL")
	setString(&c.Summarizer.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Summarizer.Provider, "SUMMARIZER_PROVIDER")
	if v := os.Getenv("SUMMARIZER_FALLBACK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Summarizer.Fallback = b
		}
	}
	setString(&c.Storage.MinIO.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Storage.MinIO.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Storage.MinIO.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Storage.MinIO.Bucket, "MINIO_BUCKET")
	if c.Storage.MinIO.Endpoint != "" && c.Storage.Backend == "" {
		c.Storage.Backend = "minio"
	}
	setString(&c.Notify.WebhookURL, "NOTIFY_WEBHOOK_URL")
	setString(&c.Tracing.Exporter, "OTEL_EXPORTER")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate fills defaults and rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}

	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "data/temp"
	}
	if c.Storage.ProcessedDir == "" {
		c.Storage.ProcessedDir = "data/processed"
	}
	if c.Storage.PermanentDir == "" {
		c.Storage.PermanentDir = "data/recordings"
	}
	switch c.Storage.Backend {
	case "":
		c.Storage.Backend = "fs"
	case "fs":
	case "minio":
		if c.Storage.MinIO.Endpoint == "" {
			return fmt.Errorf("storage.minio.endpoint is required when storage.backend=minio")
		}
		if c.Storage.MinIO.Bucket == "" {
			c.Storage.MinIO.Bucket = "meeting-recordings"
		}
	default:
		return fmt.Errorf("storage.backend must be fs or minio, got %q", c.Storage.Backend)
	}

	switch c.Database.Driver {
	case "":
		c.Database.Driver = "memory"
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required when database.driver=postgres")
		}
	default:
		return fmt.Errorf("database.driver must be memory or postgres, got %q", c.Database.Driver)
	}

	if c.Pipeline.MaxConcurrent <= 0 {
		c.Pipeline.MaxConcurrent = 4
	}
	if c.Pipeline.Timeouts.Audio <= 0 {
		c.Pipeline.Timeouts.Audio = 5 * time.Minute
	}
	if c.Pipeline.Timeouts.Transcription <= 0 {
		c.Pipeline.Timeouts.Transcription = 10 * time.Minute
	}
	if c.Pipeline.Timeouts.NLP <= 0 {
		c.Pipeline.Timeouts.NLP = 2 * time.Minute
	}
	if c.Pipeline.Timeouts.Summarization <= 0 {
		c.Pipeline.Timeouts.Summarization = 2 * time.Minute
	}
	if c.Pipeline.DedupeTTL <= 0 {
		c.Pipeline.DedupeTTL = 15 * time.Minute
	}
	if c.Pipeline.DedupeEntries <= 0 {
		c.Pipeline.DedupeEntries = 1024
	}
	if c.Pipeline.NotifyTimeout <= 0 {
		c.Pipeline.NotifyTimeout = 10 * time.Second
	}

	if len(c.Audio.Command) == 0 {
		c.Audio.Command = []string{"python3", "scripts/audio_processor.py"}
	}
	switch c.Transcription.Backend {
	case "":
		c.Transcription.Backend = "script"
	case "script":
	case "http":
		if c.Transcription.URL == "" {
			return fmt.Errorf("transcription.url is required when transcription.backend=http")
		}
	default:
		return fmt.Errorf("transcription.backend must be script or http, got %q", c.Transcription.Backend)
	}
	if len(c.Transcription.Command) == 0 {
		c.Transcription.Command = []string{"python3", "scripts/transcribe.py"}
	}
	if c.Transcription.PollInterval <= 0 {
		c.Transcription.PollInterval = 1500 * time.Millisecond
	}
	if c.Transcription.MaxPolls <= 0 {
		c.Transcription.MaxPolls = 40
	}
	if len(c.NLP.Command) == 0 {
		c.NLP.Command = []string{"python3", "scripts/nlp_processor.py"}
	}

	switch c.Summarizer.Provider {
	case "":
		c.Summarizer.Provider = "generic"
	case "generic", "specialized":
	default:
		return fmt.Errorf("summarizer.provider must be generic or specialized, got %q", c.Summarizer.Provider)
	}
	if c.Summarizer.Gemini.Model == "" {
		c.Summarizer.Gemini.Model = "gemini-2.5-flash"
	}
	if c.Summarizer.Gateway.Model == "" {
		c.Summarizer.Gateway.Model = "mixtral-8x7b-32768"
	}

	if c.Retention.DefaultDays != nil && *c.Retention.DefaultDays < 0 {
		return fmt.Errorf("retention.default_days must not be negative")
	}
	if c.Retention.SweepInterval <= 0 {
		c.Retention.SweepInterval = time.Hour
	}
	if c.Retention.BatchSize <= 0 {
		c.Retention.BatchSize = 100
	}

	if c.Persistence.MaxAttempts <= 0 {
		c.Persistence.MaxAttempts = 3
	}
	if c.Persistence.BaseDelay <= 0 {
		c.Persistence.BaseDelay = 100 * time.Millisecond
	}

	if c.Notify.Timeout <= 0 {
		c.Notify.Timeout = 5 * time.Second
	}
	if c.Inbox.Dir != "" && c.Inbox.OwnerID == "" {
		return fmt.Errorf("inbox.owner_id is required when inbox.dir is set")
	}
	if c.Inbox.Settle <= 0 {
		c.Inbox.Settle = 500 * time.Millisecond
	}

	switch c.Tracing.Exporter {
	case "":
		c.Tracing.Exporter = "none"
	case "none", "stdout", "otlphttp":
	default:
		return fmt.Errorf("tracing.exporter must be none, stdout or otlphttp, got %q", c.Tracing.Exporter)
	}
	return nil
}
