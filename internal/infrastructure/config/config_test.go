package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeTestConfig(t, `
server:
  host: "127.0.0.1"
  port: 9090
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
    token_ttl_hours: 24
    refresh_threshold_minutes: 15
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.TokenTTL() != 24*time.Hour {
		t.Errorf("TokenTTL() = %v, want %v", cfg.TokenTTL(), 24*time.Hour)
	}

	if cfg.RefreshThreshold() != 15*time.Minute {
		t.Errorf("RefreshThreshold() = %v, want %v", cfg.RefreshThreshold(), 15*time.Minute)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeTestConfig(t, `
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}

	if cfg.Security.JWT.TokenTTLHours != 24 {
		t.Errorf("default TokenTTLHours = %d, want 24", cfg.Security.JWT.TokenTTLHours)
	}

	if cfg.Security.JWT.RefreshThresholdMinutes != 15 {
		t.Errorf("default RefreshThresholdMinutes = %d, want 15", cfg.Security.JWT.RefreshThresholdMinutes)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeTestConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	configPath := writeTestConfig(t, `
database:
  path: "/tmp/test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for missing JWT secret, got nil")
	}
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	configPath := writeTestConfig(t, `
security:
  jwt:
    secret: "too-short"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for short JWT secret, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeTestConfig(t, `
database:
  path: "/tmp/from-file.db"
security:
  jwt:
    secret: "file-secret-key-at-least-32-chars!!"
`)

	t.Setenv("STOCKROOM_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("STOCKROOM_JWT_SECRET", "env-secret-key-at-least-32-chars!!!")
	t.Setenv("STOCKROOM_SERVER_PORT", "7070")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}

	if cfg.Security.JWT.Secret != "env-secret-key-at-least-32-chars!!!" {
		t.Error("JWT secret should come from environment")
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070 from env", cfg.Server.Port)
	}
}

func TestValidate_PortRange(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = "test-secret-key-at-least-32-chars!"
	cfg.Server.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for port 0, got nil")
	}
}
