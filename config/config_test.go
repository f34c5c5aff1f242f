package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
app_name: batchd-test
server:
  port: 9100
data:
  redis:
    addr: localhost:6379
batch:
  max_jobs: 10
  stale_after: 10m
billing:
  costs:
    upscale: 4
gateway:
  models:
    upscale: some/model
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.AppName != "batchd-test" {
		t.Errorf("AppName = %q", cfg.AppName)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.Batch.Storage != "redis" {
		t.Errorf("Batch.Storage = %q, want redis when redis addr is set", cfg.Batch.Storage)
	}
	if cfg.Batch.MaxJobs != 10 || cfg.Batch.StaleAfter != 10*time.Minute {
		t.Errorf("Batch = %+v", cfg.Batch)
	}
	if cfg.Billing.Costs["upscale"] != 4 {
		t.Errorf("Billing.Costs = %v", cfg.Billing.Costs)
	}
	if len(cfg.Gateway.Models) != 1 || cfg.Gateway.Models["upscale"] != "some/model" {
		t.Errorf("Gateway.Models = %v", cfg.Gateway.Models)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "app_name: x\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 8233 {
		t.Errorf("default port = %d", cfg.Port)
	}
	if cfg.Batch.Storage != "memory" {
		t.Errorf("default storage = %q", cfg.Batch.Storage)
	}
	if cfg.Billing.DefaultCost != 1 || cfg.Billing.Provider != "ledger" {
		t.Errorf("billing defaults = %+v", cfg.Billing)
	}
	if cfg.Auth.Webhook.Tolerance != 5*time.Minute {
		t.Errorf("webhook tolerance = %v", cfg.Auth.Webhook.Tolerance)
	}
	if len(cfg.Gateway.Operations()) != len(DefaultModels) {
		t.Errorf("operations = %v", cfg.Gateway.Operations())
	}
	if cfg.Consul.Enabled() {
		t.Error("consul should be disabled without an address")
	}
}

func TestObservesInheritEnvironment(t *testing.T) {
	yaml := "app_name: studio\nobserves:\n  environment: staging\n  sentry:\n    environment: prod\n  tracer:\n    batch_timeout: -5s\n"
	cfg, err := LoadConfig(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Observes.Sentry.Environment != "prod" {
		t.Errorf("sentry environment = %q", cfg.Observes.Sentry.Environment)
	}
	if tr := cfg.Observes.Tracer; tr.Environment != "staging" || tr.ServiceName != "studio" {
		t.Errorf("tracer = %+v", tr)
	}
	if got := cfg.Observes.Tracer.BatchTimeout; got != 5*time.Second {
		t.Errorf("negative duration should fall back, got %v", got)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("BATCHD_SERVER_PORT", "7000")
	t.Setenv("BATCHD_AUTH_WEBHOOK_SECRET", "whsec")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 7000 {
		t.Errorf("Port = %d, want env override 7000", cfg.Port)
	}
	if cfg.Auth.Webhook.Secret != "whsec" {
		t.Errorf("webhook secret = %q", cfg.Auth.Webhook.Secret)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
