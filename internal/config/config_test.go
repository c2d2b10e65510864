package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range keys {
		t.Setenv(key, "")
	}

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("Expected driver sqlite, got %s", cfg.DatabaseDriver)
	}
	if cfg.DatabaseURL != "taskflow.db" {
		t.Errorf("Expected database url taskflow.db, got %s", cfg.DatabaseURL)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected http addr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.RecurrenceInterval != time.Minute || cfg.ReminderInterval != time.Minute {
		t.Errorf("Expected 1m intervals, got %s / %s", cfg.RecurrenceInterval, cfg.ReminderInterval)
	}
	if cfg.TickTimeout != 30*time.Second {
		t.Errorf("Expected tick timeout 30s, got %s", cfg.TickTimeout)
	}
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected validation error without JWT_SECRET")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", " MySQL ")
	t.Setenv("DATABASE_URL", "user:pass@tcp(localhost:3306)/tasks")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REMINDER_INTERVAL", "15s")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DatabaseDriver != "mysql" {
		t.Errorf("Expected driver mysql, got %s", cfg.DatabaseDriver)
	}
	if cfg.ReminderInterval != 15*time.Second {
		t.Errorf("Expected reminder interval 15s, got %s", cfg.ReminderInterval)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("Expected redis db 3, got %d", cfg.RedisDB)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("HTTP_ADDR", "")

	dir := t.TempDir()
	content := "JWT_SECRET=from-file\nHTTP_ADDR=:9090\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.JWTSecret != "from-file" {
		t.Errorf("Expected secret from file, got %q", cfg.JWTSecret)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("Expected http addr :9090, got %s", cfg.HTTPAddr)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Config{DatabaseDriver: "oracle", JWTSecret: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Expected error for unknown driver")
	}
}
