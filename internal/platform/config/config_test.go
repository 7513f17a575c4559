package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Expected port 5000, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "jsonfile" {
		t.Errorf("Expected jsonfile driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Licensing.KeyPrefix != "ZPOFES-" {
		t.Errorf("Expected ZPOFES- prefix, got %q", cfg.Licensing.KeyPrefix)
	}
	if cfg.Licensing.ResetCooldown != 24*time.Hour {
		t.Errorf("Expected 24h cooldown, got %v", cfg.Licensing.ResetCooldown)
	}
	if cfg.Workers.AuditRetention != 90*24*time.Hour {
		t.Errorf("Expected 90 day retention, got %v", cfg.Workers.AuditRetention)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
server:
  port: 8080
storage:
  driver: sqlite
  sqlite:
    path: /tmp/keys.db
licensing:
  reset_cooldown: 12h
jwt:
  secret: from-file
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.SQLite.Path != "/tmp/keys.db" {
		t.Errorf("Unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Storage.SQLite.MaxConnections != 4 {
		t.Errorf("Expected default max connections 4, got %d", cfg.Storage.SQLite.MaxConnections)
	}
	if cfg.Licensing.ResetCooldown != 12*time.Hour {
		t.Errorf("Expected 12h cooldown, got %v", cfg.Licensing.ResetCooldown)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Errorf("Expected env to override file, got %q", cfg.JWT.Secret)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$hash")
	t.Setenv("WEBHOOKS_SECRET", "hook")
	t.Setenv("LOGGING_FILE_PATH", "/var/log/keyhub.log")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.JWT.Secret != "env-secret" {
		t.Errorf("Expected env jwt secret, got %q", cfg.JWT.Secret)
	}
	if cfg.Admin.PasswordHash != "$2a$10$hash" {
		t.Errorf("Expected env password hash, got %q", cfg.Admin.PasswordHash)
	}
	if cfg.Webhooks.Secret != "hook" {
		t.Errorf("Expected env webhook secret, got %q", cfg.Webhooks.Secret)
	}
	if cfg.Logging.FilePath != "/var/log/keyhub.log" {
		t.Errorf("Expected env log file path, got %q", cfg.Logging.FilePath)
	}
	if len(cfg.RateLimit.TrustedProxies) != 0 {
		t.Errorf("Expected no trusted proxies by default, got %v", cfg.RateLimit.TrustedProxies)
	}
}
