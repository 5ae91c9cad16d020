// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	Provider          string            `yaml:"provider"` // openai | gemini | fake
	OpenAIKey         string            `yaml:"openai_key"`
	OpenAIBaseURL     string            `yaml:"openai_base_url"`
	GeminiKey         string            `yaml:"gemini_key"`
	GeminiURL         string            `yaml:"gemini_url"`
	DefaultModel      string            `yaml:"default_model"`
	TaskModels        map[string]string `yaml:"task_models"`     // task type -> model
	ModelProviders    map[string]string `yaml:"model_providers"` // model -> provider
	ConcurrentLimit   int               `yaml:"concurrent_limit"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Burst             int               `yaml:"burst"`
	Timeout           time.Duration     `yaml:"timeout"`
	MaxOutputTokens   int               `yaml:"max_output_tokens"`
}

// FlowQueueConfig is the execution policy of one job name.
type FlowQueueConfig struct {
	Concurrency int           `yaml:"concurrency"`
	RateLimit   int           `yaml:"rate_limit"`
	RateWindow  time.Duration `yaml:"rate_window"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	Priority    int           `yaml:"priority"`
}

type QueueConfig struct {
	PollInterval time.Duration              `yaml:"poll_interval"`
	Lease        time.Duration              `yaml:"lease"`
	DeferDelay   time.Duration              `yaml:"defer_delay"`
	Retention    time.Duration              `yaml:"retention"`
	Defaults     FlowQueueConfig            `yaml:"defaults"`
	Flows        map[string]FlowQueueConfig `yaml:"flows"`
}

// For merges the per-flow overrides over the defaults.
func (q QueueConfig) For(name string) FlowQueueConfig {
	out := q.Defaults
	f, ok := q.Flows[name]
	if !ok {
		return out
	}
	if f.Concurrency > 0 {
		out.Concurrency = f.Concurrency
	}
	if f.RateLimit > 0 {
		out.RateLimit = f.RateLimit
	}
	if f.RateWindow > 0 {
		out.RateWindow = f.RateWindow
	}
	if f.MaxAttempts > 0 {
		out.MaxAttempts = f.MaxAttempts
	}
	if f.BackoffBase > 0 {
		out.BackoffBase = f.BackoffBase
	}
	if f.Priority != 0 {
		out.Priority = f.Priority
	}
	return out
}

type NotifyConfig struct {
	Workers  int `yaml:"workers"`
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
}

type SchedulerConfig struct {
	LeaseReapInterval time.Duration `yaml:"lease_reap_interval"`
	RetentionInterval time.Duration `yaml:"retention_interval"`
	BidExpiryInterval time.Duration `yaml:"bid_expiry_interval"`
	DBStatsInterval   time.Duration `yaml:"db_stats_interval"`
}

type SecurityConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	AdminAPIKey string        `yaml:"admin_api_key"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Queue     QueueConfig     `yaml:"queue"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. In dev mode the file is optional and
// storage falls back to memory.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case dev && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	cfg.Runtime.Dev = dev
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Admin.RequestTimeout <= 0 {
		cfg.Admin.RequestTimeout = 15 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
		if cfg.Runtime.Dev {
			cfg.AI.Provider = "fake"
		}
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 8
	}
	if cfg.AI.RequestsPerSecond <= 0 {
		cfg.AI.RequestsPerSecond = 5
	}
	if cfg.AI.Burst <= 0 {
		cfg.AI.Burst = 5
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 30 * time.Second
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 1024
	}

	q := &cfg.Queue
	if q.PollInterval <= 0 {
		q.PollInterval = 500 * time.Millisecond
	}
	if q.Lease <= 0 {
		q.Lease = 10 * time.Minute
	}
	if q.DeferDelay <= 0 {
		q.DeferDelay = time.Minute
	}
	if q.Retention <= 0 {
		q.Retention = 7 * 24 * time.Hour
	}
	if q.Defaults.Concurrency <= 0 {
		q.Defaults.Concurrency = 2
	}
	if q.Defaults.RateLimit <= 0 {
		q.Defaults.RateLimit = 10
	}
	if q.Defaults.RateWindow <= 0 {
		q.Defaults.RateWindow = time.Minute
	}
	if q.Defaults.MaxAttempts <= 0 {
		q.Defaults.MaxAttempts = 3
	}
	if q.Defaults.BackoffBase <= 0 {
		q.Defaults.BackoffBase = 5 * time.Second
	}

	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = 2
	}
	s := &cfg.Scheduler
	if s.LeaseReapInterval <= 0 {
		s.LeaseReapInterval = time.Minute
	}
	if s.RetentionInterval <= 0 {
		s.RetentionInterval = time.Hour
	}
	if s.BidExpiryInterval <= 0 {
		s.BidExpiryInterval = 5 * time.Minute
	}
	if s.DBStatsInterval <= 0 {
		s.DBStatsInterval = 30 * time.Second
	}
	if cfg.Security.TokenTTL <= 0 {
		cfg.Security.TokenTTL = 8 * time.Hour
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "coachhire-worker"
	}
}

// Validate performs the minimal checks needed to start.
func (c *Config) Validate() error {
	if c.Runtime.Dev {
		return nil
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Security.JWTSecret == "" {
		return errors.New("security.jwt_secret is required")
	}
	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	case "multi", "fake":
	default:
		return fmt.Errorf("ai.provider %q is not supported", c.AI.Provider)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
