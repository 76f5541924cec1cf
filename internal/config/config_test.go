package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Reviewers.Primary.Timeout != 90*time.Second {
		t.Errorf("primary reviewer timeout = %v, want 90s", cfg.Reviewers.Primary.Timeout)
	}
	if cfg.Reviewers.Secondary.Timeout != 15*time.Second {
		t.Errorf("secondary reviewer timeout = %v, want 15s", cfg.Reviewers.Secondary.Timeout)
	}
	if cfg.Scan.MaxConcurrent != 5 {
		t.Errorf("reviewer concurrency cap = %d, want 5", cfg.Scan.MaxConcurrent)
	}
	if cfg.Tracker.PollInterval != 30*time.Second {
		t.Errorf("dispatcher interval = %v, want 30s", cfg.Tracker.PollInterval)
	}
	if cfg.Auth.Header != "X-API-Key" {
		t.Errorf("auth header = %q", cfg.Auth.Header)
	}
	if cfg.Webhook.AllowUnverified {
		t.Error("dev-mode webhook escape hatch must default off")
	}
	if len(cfg.Reviewers.Validator.Models) == 0 {
		t.Error("validator fallback model list must not be empty")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"daemon": {"server_addr": ":9999", "log_level": "debug"},
		"scan": {"max_concurrent": 3},
		"webhook": {"secret": "s3cret", "allow_unverified": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Daemon.ServerAddr != ":9999" || cfg.Daemon.LogLevel != "debug" {
		t.Errorf("daemon overrides not applied: %+v", cfg.Daemon)
	}
	if cfg.Scan.MaxConcurrent != 3 {
		t.Errorf("scan override not applied: %d", cfg.Scan.MaxConcurrent)
	}
	if !cfg.Webhook.AllowUnverified || cfg.Webhook.Secret != "s3cret" {
		t.Errorf("webhook overrides not applied: %+v", cfg.Webhook)
	}
	// Untouched sections keep defaults.
	if cfg.Tracker.PollInterval != 30*time.Second {
		t.Errorf("untouched default changed: %v", cfg.Tracker.PollInterval)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("missing file should error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MISTRAL_API_BASE_URL", "http://models:1234/v1")
	t.Setenv("JIRA_PROJECT_KEY", "OPS")
	t.Setenv("JIRA_POLLING_INTERVAL", "45")
	t.Setenv("GITHUB_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("WEBHOOK_ALLOW_UNVERIFIED", "true")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/sentinel")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Reviewers.Primary.BaseURL != "http://models:1234/v1" {
		t.Errorf("reviewer URL override missing: %s", cfg.Reviewers.Primary.BaseURL)
	}
	if cfg.Tracker.ProjectKey != "OPS" {
		t.Errorf("project key override missing: %s", cfg.Tracker.ProjectKey)
	}
	if cfg.Tracker.PollInterval != 45*time.Second {
		t.Errorf("poll interval override missing: %v", cfg.Tracker.PollInterval)
	}
	if cfg.Webhook.Secret != "hook-secret" || !cfg.Webhook.AllowUnverified {
		t.Errorf("webhook overrides missing: %+v", cfg.Webhook)
	}
	if cfg.Postgres.DSN != "postgres://u:p@db:5432/sentinel" {
		t.Errorf("DSN override missing: %s", cfg.Postgres.DSN)
	}
}

func TestDSNFromParts(t *testing.T) {
	t.Setenv("POSTGRES_USER", "sentinel")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "sentinel_db")
	t.Setenv("POSTGRES_HOST", "db")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	want := "postgres://sentinel:pw@db:5432/sentinel_db"
	if cfg.Postgres.DSN != want {
		t.Errorf("DSN = %q, want %q", cfg.Postgres.DSN, want)
	}
}
