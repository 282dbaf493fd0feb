package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone     = "UTC"
	configPathEnv       = "CONTENT_REWRITER_CONFIG"
	databaseDSNEnv      = "DATABASE_DSN"
	taskSecretKeyEnv    = "TASK_SECRET_KEY"
	redisURLEnv         = "REDIS_URL"
	httpAddrEnv         = "HTTP_ADDR"
	apiKeyEnv           = "API_KEY"
	openAIAPIKeyEnv     = "OPENAI_API_KEY"
	anthropicAPIKeyEnv  = "ANTHROPIC_API_KEY"
	cmsBaseURLEnv       = "CMS_BASE_URL"
	cmsAPIKeyEnv        = "CMS_API_KEY"
	cmsWebhookURLEnv    = "CMS_WEBHOOK_URL"
	cmsWebhookSecretEnv = "CMS_WEBHOOK_SECRET"
	logLevelEnv         = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	CMS      CMSConfig      `yaml:"cms"`
	Batch    BatchConfig    `yaml:"batch"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig describes the HTTP API listener.
type ServerConfig struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"apiKey"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes Postgres connection details.
// SecretKey seals per-task callback secrets at rest; empty falls back to
// the API key.
type DatabaseConfig struct {
	DSN       string `yaml:"dsn"`
	SecretKey string `yaml:"secretKey"`
}

// RedisConfig points at the shared key-value store for locks and settings.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AIConfig lists provider adapters by name.
type AIConfig struct {
	DefaultProvider string                    `yaml:"defaultProvider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig defines how to contact one AI provider.
type ProviderConfig struct {
	Kind          string        `yaml:"kind"`
	Endpoint      string        `yaml:"endpoint"`
	ImageEndpoint string        `yaml:"imageEndpoint"`
	Model         string        `yaml:"model"`
	ImageModel    string        `yaml:"imageModel"`
	APIKey        string        `yaml:"apiKey"`
	Timeout       time.Duration `yaml:"timeout"`
}

// CMSConfig wires the content system that owns feeds and receives webhooks.
type CMSConfig struct {
	BaseURL       string `yaml:"baseUrl"`
	APIKey        string `yaml:"apiKey"`
	WebhookURL    string `yaml:"webhookUrl"`
	WebhookSecret string `yaml:"webhookSecret"`
}

// BatchConfig defines when and how the batch orchestrator runs.
type BatchConfig struct {
	CronExpression    string         `yaml:"cronExpression"`
	Timezone          string         `yaml:"timezone"`
	DailyLimit        int            `yaml:"dailyLimit"`
	CurationThreshold float64        `yaml:"curationThreshold"`
	CurationBatchSize int            `yaml:"curationBatchSize"`
	CurationDelay     time.Duration  `yaml:"curationDelay"`
	DispatchInterval  time.Duration  `yaml:"dispatchInterval"`
	LockKey           string         `yaml:"lockKey"`
	LockTTL           time.Duration  `yaml:"lockTtl"`
	DefaultLanguage   string         `yaml:"defaultLanguage"`
	location          *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (b BatchConfig) Location() *time.Location {
	if b.location != nil {
		return b.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// PipelineConfig tunes the item pipeline and its runtime.
type PipelineConfig struct {
	StepAttempts     int           `yaml:"stepAttempts"`
	StepBackoff      time.Duration `yaml:"stepBackoff"`
	RetryDelay       time.Duration `yaml:"retryDelay"`
	MaxContentChars  int           `yaml:"maxContentChars"`
	PublishThreshold float64       `yaml:"publishThreshold"`
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queueSize"`
	WebhookTimeout   time.Duration `yaml:"webhookTimeout"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(taskSecretKeyEnv); v != "" {
		c.Database.SecretKey = v
	}
	if v := os.Getenv(redisURLEnv); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(apiKeyEnv); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.setProviderKey("openai", v)
	}
	if v := os.Getenv(anthropicAPIKeyEnv); v != "" {
		c.setProviderKey("anthropic", v)
	}

	if v := os.Getenv(cmsBaseURLEnv); v != "" {
		c.CMS.BaseURL = v
	}
	if v := os.Getenv(cmsAPIKeyEnv); v != "" {
		c.CMS.APIKey = v
	}
	if v := os.Getenv(cmsWebhookURLEnv); v != "" {
		c.CMS.WebhookURL = v
	}
	if v := os.Getenv(cmsWebhookSecretEnv); v != "" {
		c.CMS.WebhookSecret = v
	}
}

func (c *Config) setProviderKey(name, key string) {
	if c.AI.Providers == nil {
		c.AI.Providers = map[string]ProviderConfig{}
	}
	p := c.AI.Providers[name]
	p.APIKey = key
	c.AI.Providers[name] = p
}

func (c *Config) bindTimezone() {
	tz := c.Batch.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Batch.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Server.APIKey != "" {
		base.Server.APIKey = override.Server.APIKey
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}
	if override.Database.SecretKey != "" {
		base.Database.SecretKey = override.Database.SecretKey
	}
	if override.Redis.URL != "" {
		base.Redis = override.Redis
	}

	if override.AI.DefaultProvider != "" {
		base.AI.DefaultProvider = override.AI.DefaultProvider
	}
	for name, p := range override.AI.Providers {
		base.AI.Providers[name] = mergeProvider(base.AI.Providers[name], p)
	}

	if override.CMS.BaseURL != "" {
		base.CMS.BaseURL = override.CMS.BaseURL
	}
	if override.CMS.APIKey != "" {
		base.CMS.APIKey = override.CMS.APIKey
	}
	if override.CMS.WebhookURL != "" {
		base.CMS.WebhookURL = override.CMS.WebhookURL
	}
	if override.CMS.WebhookSecret != "" {
		base.CMS.WebhookSecret = override.CMS.WebhookSecret
	}

	b, o := &base.Batch, override.Batch
	if o.CronExpression != "" {
		b.CronExpression = o.CronExpression
	}
	if o.Timezone != "" {
		b.Timezone = o.Timezone
	}
	if o.DailyLimit > 0 {
		b.DailyLimit = o.DailyLimit
	}
	if o.CurationThreshold > 0 {
		b.CurationThreshold = o.CurationThreshold
	}
	if o.CurationBatchSize > 0 {
		b.CurationBatchSize = o.CurationBatchSize
	}
	if o.CurationDelay > 0 {
		b.CurationDelay = o.CurationDelay
	}
	if o.DispatchInterval > 0 {
		b.DispatchInterval = o.DispatchInterval
	}
	if o.LockKey != "" {
		b.LockKey = o.LockKey
	}
	if o.LockTTL > 0 {
		b.LockTTL = o.LockTTL
	}
	if o.DefaultLanguage != "" {
		b.DefaultLanguage = o.DefaultLanguage
	}

	p, po := &base.Pipeline, override.Pipeline
	if po.StepAttempts > 0 {
		p.StepAttempts = po.StepAttempts
	}
	if po.StepBackoff > 0 {
		p.StepBackoff = po.StepBackoff
	}
	if po.RetryDelay > 0 {
		p.RetryDelay = po.RetryDelay
	}
	if po.MaxContentChars > 0 {
		p.MaxContentChars = po.MaxContentChars
	}
	if po.PublishThreshold > 0 {
		p.PublishThreshold = po.PublishThreshold
	}
	if po.Workers > 0 {
		p.Workers = po.Workers
	}
	if po.QueueSize > 0 {
		p.QueueSize = po.QueueSize
	}
	if po.WebhookTimeout > 0 {
		p.WebhookTimeout = po.WebhookTimeout
	}
	if po.FetchTimeout > 0 {
		p.FetchTimeout = po.FetchTimeout
	}

	return base
}

func mergeProvider(base, override ProviderConfig) ProviderConfig {
	if override.Kind != "" {
		base.Kind = override.Kind
	}
	if override.Endpoint != "" {
		base.Endpoint = override.Endpoint
	}
	if override.ImageEndpoint != "" {
		base.ImageEndpoint = override.ImageEndpoint
	}
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.ImageModel != "" {
		base.ImageModel = override.ImageModel
	}
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.Timeout > 0 {
		base.Timeout = override.Timeout
	}
	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Server:  ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		AI: AIConfig{
			DefaultProvider: "openai",
			Providers: map[string]ProviderConfig{
				"openai": {
					Kind:          "openai",
					Endpoint:      "https://api.openai.com/v1/chat/completions",
					ImageEndpoint: "https://api.openai.com/v1/images/generations",
					Model:         "gpt-4o-mini",
					ImageModel:    "dall-e-3",
					Timeout:       120 * time.Second,
				},
				"anthropic": {
					Kind:     "anthropic",
					Endpoint: "https://api.anthropic.com/v1/messages",
					Model:    "claude-3-5-sonnet-latest",
					Timeout:  120 * time.Second,
				},
			},
		},
		Batch: BatchConfig{
			CronExpression:    "0 * * * *",
			Timezone:          defaultTimezone,
			DailyLimit:        10,
			CurationThreshold: 0.6,
			CurationBatchSize: 5,
			CurationDelay:     time.Second,
			DispatchInterval:  5 * time.Second,
			LockKey:           "batch_processor_lock",
			LockTTL:           time.Hour,
			DefaultLanguage:   "ko",
			location:          tz,
		},
		Pipeline: PipelineConfig{
			StepAttempts:     3,
			StepBackoff:      2 * time.Second,
			RetryDelay:       2 * time.Second,
			MaxContentChars:  15000,
			PublishThreshold: 8,
			Workers:          4,
			QueueSize:        100,
			WebhookTimeout:   30 * time.Second,
			FetchTimeout:     30 * time.Second,
		},
	}
}
