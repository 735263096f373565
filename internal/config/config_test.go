package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/deals")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoad(t *testing.T) {
	setRequired(t)
	t.Setenv("DISCORD_WEBHOOK_URL", "https://test.webhook")
	t.Setenv("PORT", "9090")
	t.Setenv("ADMIN_EMAILS", "a@x.com, b@x.com ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.StorageBackend != BackendPostgres {
		t.Errorf("Expected default backend postgres, got %s", cfg.StorageBackend)
	}
	if cfg.DiscordWebhookURL != "https://test.webhook" {
		t.Errorf("Expected https://test.webhook, got %s", cfg.DiscordWebhookURL)
	}
	if cfg.Port != "9090" {
		t.Errorf("Expected 9090, got %s", cfg.Port)
	}
	if cfg.PublicBaseURL != "http://localhost:9090" {
		t.Errorf("Expected default public base URL, got %s", cfg.PublicBaseURL)
	}
	if len(cfg.AdminEmails) != 2 || cfg.AdminEmails[1] != "b@x.com" {
		t.Errorf("Expected two trimmed admin emails, got %v", cfg.AdminEmails)
	}
	if cfg.ExtractTimeout != 20*time.Second {
		t.Errorf("Expected default 20s extract timeout, got %s", cfg.ExtractTimeout)
	}
	if cfg.CrawlConcurrency != 4 {
		t.Errorf("Expected default crawl concurrency 4, got %d", cfg.CrawlConcurrency)
	}
	if cfg.ExpirySweepSpec != "@every 1h" {
		t.Errorf("Expected default sweep spec, got %s", cfg.ExpirySweepSpec)
	}
	if cfg.SubmissionFee != 4900 {
		t.Errorf("Expected default fee 4900, got %d", cfg.SubmissionFee)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() should return an error when DATABASE_URL is not set for postgres")
	}
}

func TestLoad_FirestoreNeedsProject(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "firestore")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	if _, err := Load(); err == nil {
		t.Error("Load() should return an error when GOOGLE_CLOUD_PROJECT is not set for firestore")
	}

	t.Setenv("GOOGLE_CLOUD_PROJECT", "test-project")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.ProjectID != "test-project" {
		t.Errorf("Expected test-project, got %s", cfg.ProjectID)
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "mongo")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject an unknown STORAGE_BACKEND")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Error("Load() should return an error when JWT_SECRET is not set")
	}
}

func TestLoad_CustomExtractSettings(t *testing.T) {
	setRequired(t)
	t.Setenv("EXTRACT_TIMEOUT", "5s")
	t.Setenv("EXTRACT_RETRIES", "0")
	t.Setenv("EXTRACT_RATE_PER_SEC", "0.5")
	t.Setenv("HEADLESS_FALLBACK", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.ExtractTimeout != 5*time.Second {
		t.Errorf("Expected 5s, got %s", cfg.ExtractTimeout)
	}
	if cfg.ExtractRetries != 0 {
		t.Errorf("Expected 0 retries, got %d", cfg.ExtractRetries)
	}
	if cfg.ExtractRatePerSec != 0.5 {
		t.Errorf("Expected 0.5, got %v", cfg.ExtractRatePerSec)
	}
	if !cfg.HeadlessFallback {
		t.Error("Expected headless fallback enabled")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"EXTRACT_TIMEOUT", "not-a-duration"},
		{"EXTRACT_RETRIES", "abc"},
		{"EXTRACT_RATE_PER_SEC", "fast"},
		{"HEADLESS_FALLBACK", "maybe"},
		{"CRAWL_CONCURRENCY", "0"},
		{"SUBMISSION_FEE", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() should fail for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestConfig_FeatureToggles(t *testing.T) {
	cfg := &Config{}
	if cfg.UploadsEnabled() || cfg.PaymentsEnabled() {
		t.Error("empty config should disable uploads and payments")
	}
	cfg = &Config{R2AccountID: "a", R2AccessKeyID: "b", R2SecretAccessKey: "c", R2Bucket: "d", PaymentKeyID: "k", PaymentKeySecret: "s"}
	if !cfg.UploadsEnabled() || !cfg.PaymentsEnabled() {
		t.Error("complete config should enable uploads and payments")
	}
}
