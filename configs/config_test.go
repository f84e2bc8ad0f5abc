package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"session-sync/internal/domain"
)

// TestLoadReadsShippedConfig tests the config.yaml next to this file
func TestLoadReadsShippedConfig(t *testing.T) {
	if err := Load(".", ""); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	cfg := GetViper()

	if cfg.App.Port != "9089" {
		t.Errorf("expected port 9089, got %s", cfg.App.Port)
	}
	if cfg.Sync.MaxCachedSessions != 20 {
		t.Errorf("expected max cached sessions 20, got %d", cfg.Sync.MaxCachedSessions)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected 3 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.Database.Driver)
	}
	if cfg.Lifecycle.Grant() != 25*time.Second {
		t.Errorf("expected 25s grant, got %v", cfg.Lifecycle.Grant())
	}
}

// TestEnvironmentOverridesFile tests AutomaticEnv with the . to _ replacer
func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("SYNC_PAGE_SIZE", "25")
	t.Setenv("BACKEND_USER_ID", "user-42")
	t.Setenv("LOG_LEVEL", "debug")

	if err := Load(".", ""); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	cfg := GetViper()

	if cfg.Sync.PageSize != 25 {
		t.Errorf("expected page size 25, got %d", cfg.Sync.PageSize)
	}
	if cfg.Backend.UserID != "user-42" {
		t.Errorf("expected user-42, got %s", cfg.Backend.UserID)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Log.Level)
	}
}

// TestMissingFileFallsBackToDefaults tests that defaults and env are enough to run
func TestMissingFileFallsBackToDefaults(t *testing.T) {
	if err := Load(t.TempDir(), "test"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	cfg := GetViper()

	if cfg.App.Env != "test" {
		t.Errorf("expected env test, got %s", cfg.App.Env)
	}
	if cfg.Sync.BackgroundInterval() != time.Minute {
		t.Errorf("expected 60s interval, got %v", cfg.Sync.BackgroundInterval())
	}
	if cfg.Lifecycle.EmergencyTimeout() != 2*time.Second {
		t.Errorf("expected 2s emergency timeout, got %v", cfg.Lifecycle.EmergencyTimeout())
	}
}

// TestEnvFileIsMerged tests config.<env>.yaml overrides
func TestEnvFileIsMerged(t *testing.T) {
	dir := t.TempDir()
	base := "backend:\n  base_url: http://backend:8000/claude\nsync:\n  page_size: 10\n"
	override := "sync:\n  page_size: 5\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(base), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.staging.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Load(dir, "staging"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	cfg := GetViper()

	if cfg.Sync.PageSize != 5 {
		t.Errorf("expected page size 5 from override, got %d", cfg.Sync.PageSize)
	}
	if cfg.Backend.BaseURL != "http://backend:8000/claude" {
		t.Errorf("expected base url from base file, got %s", cfg.Backend.BaseURL)
	}
}

// TestInvalidConfigIsRejected tests the validator tags
func TestInvalidConfigIsRejected(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")

	if err := Load(t.TempDir(), ""); err == nil {
		t.Error("expected error for unsupported database driver")
	}
}

// TestRetryPolicy tests the conversion into a backoff policy
func TestRetryPolicy(t *testing.T) {
	r := Retry{MaxAttempts: 4, BaseDelayMs: 100, MaxDelayMs: 1000, Multiplier: 3, Jitter: 0.1}
	p := r.Policy("sync", domain.IsRetryable)

	if p.MaxAttempts != 4 || p.BaseDelay != 100*time.Millisecond || p.MaxDelay != time.Second {
		t.Errorf("unexpected policy %+v", p)
	}
	if !p.Retryable(domain.ErrTransientNetwork) || p.Retryable(domain.ErrSessionNotFound) {
		t.Error("expected the domain predicate to be wired")
	}
}

// TestPostgresConnectionString tests building a dsn from host fields
func TestPostgresConnectionString(t *testing.T) {
	d := Database{Driver: "postgres", Host: "db", Port: "5432", Username: "u", Password: "p", DbName: "sessions"}
	if d.ConnectionString() == "" {
		t.Error("expected a postgres dsn from host fields")
	}
	d = Database{Driver: "sqlite", DSN: "x.db"}
	if d.ConnectionString() != "x.db" {
		t.Errorf("expected x.db, got %s", d.ConnectionString())
	}
}
