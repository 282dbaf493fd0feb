package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
server:
  addr: ":9090"
batch:
  dailyLimit: 25
  curationThreshold: 0.75
  timezone: Asia/Seoul
ai:
  providers:
    openai:
      model: gpt-4o
pipeline:
  workers: 8
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(openAIAPIKeyEnv, "sk-test")
	t.Setenv(cmsWebhookURLEnv, "https://cms.example/webhook")

	cfg := Load()

	if cfg.Server.Addr != ":9090" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Batch.DailyLimit != 25 || cfg.Batch.CurationThreshold != 0.75 {
		t.Fatalf("batch overrides not applied: %+v", cfg.Batch)
	}
	if cfg.Batch.CurationBatchSize != 5 || cfg.Batch.LockTTL != time.Hour {
		t.Fatalf("batch defaults lost: %+v", cfg.Batch)
	}
	if cfg.Batch.Location().String() != "Asia/Seoul" {
		t.Fatalf("timezone not bound: %s", cfg.Batch.Location())
	}

	openai := cfg.AI.Providers["openai"]
	if openai.Model != "gpt-4o" || openai.APIKey != "sk-test" {
		t.Fatalf("provider merge failed: %+v", openai)
	}
	if openai.Endpoint == "" {
		t.Fatalf("provider default endpoint lost")
	}
	if cfg.Pipeline.Workers != 8 || cfg.Pipeline.StepAttempts != 3 {
		t.Fatalf("pipeline merge failed: %+v", cfg.Pipeline)
	}
	if cfg.CMS.WebhookURL != "https://cms.example/webhook" {
		t.Fatalf("env override missing: %s", cfg.CMS.WebhookURL)
	}
}

func TestLoadUnknownTimezoneFallsBack(t *testing.T) {
	t.Setenv(configPathEnv, "")
	cfg := defaultConfig()
	cfg.Batch.Timezone = "Nowhere/Invalid"
	cfg.bindTimezone()
	if cfg.Batch.Location().String() != defaultTimezone {
		t.Fatalf("expected fallback to %s, got %s", defaultTimezone, cfg.Batch.Location())
	}
}
