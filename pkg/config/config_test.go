package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

content:
  type: "filesystem"

adapters:
  http:
    enabled: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Adapters.HTTP.Port != DefaultHTTPPort {
		t.Errorf("Expected default HTTP port %d, got %d", DefaultHTTPPort, cfg.Adapters.HTTP.Port)
	}
	if cfg.Credentials.ReadPoolSize != DefaultReadPoolSize {
		t.Errorf("Expected default read pool size %d, got %d", DefaultReadPoolSize, cfg.Credentials.ReadPoolSize)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// An explicit path keeps the user's own ~/.config/tinyweb out of the test.
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Content.Type != "filesystem" {
		t.Errorf("Expected default content type 'filesystem', got %q", cfg.Content.Type)
	}
	if !cfg.Adapters.HTTP.Enabled {
		t.Error("Expected HTTP adapter enabled without a config file")
	}
	if cfg.Adapters.HTTP.TriggerMode != DefaultTriggerMode {
		t.Errorf("Expected trigger mode %d, got %d", DefaultTriggerMode, cfg.Adapters.HTTP.TriggerMode)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_TOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[logging]
level = "WARN"
format = "json"

[content]
type = "memory"

[adapters.http]
enabled = true
port = 8080
trigger_mode = 0
idle_timeout = "15s"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Adapters.HTTP.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Adapters.HTTP.Port)
	}
	if cfg.Adapters.HTTP.TriggerMode != 0 {
		t.Errorf("Expected explicit trigger mode 0 to be kept, got %d", cfg.Adapters.HTTP.TriggerMode)
	}
	if cfg.Adapters.HTTP.IdleTimeout != 15*time.Second {
		t.Errorf("Expected idle timeout 15s, got %v", cfg.Adapters.HTTP.IdleTimeout)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Content.Type != "filesystem" {
		t.Errorf("Expected default content type 'filesystem', got %q", cfg.Content.Type)
	}
	if cfg.Credentials.Type != "memory" {
		t.Errorf("Expected default credentials type 'memory', got %q", cfg.Credentials.Type)
	}
	if !cfg.Adapters.HTTP.Enabled {
		t.Error("Expected HTTP adapter enabled by default")
	}
	if cfg.Adapters.HTTP.Port != DefaultHTTPPort {
		t.Errorf("Expected default HTTP port %d, got %d", DefaultHTTPPort, cfg.Adapters.HTTP.Port)
	}
	if cfg.Adapters.HTTP.Workers != 8 {
		t.Errorf("Expected 8 workers, got %d", cfg.Adapters.HTTP.Workers)
	}
}

func TestConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if ConfigExists() {
		t.Fatal("Expected no config in a fresh directory")
	}

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	if !ConfigExists() {
		t.Error("Expected config to exist after InitConfig")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "tinyweb" {
		t.Errorf("Expected directory name 'tinyweb', got %q", filepath.Base(dir))
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("TINYWEB_LOGGING_LEVEL", "ERROR")
	t.Setenv("TINYWEB_ADAPTERS_HTTP_PORT", "5049")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

adapters:
  http:
    enabled: true
    port: 1453
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Adapters.HTTP.Port != 5049 {
		t.Errorf("Expected port 5049 from env var, got %d", cfg.Adapters.HTTP.Port)
	}
}
