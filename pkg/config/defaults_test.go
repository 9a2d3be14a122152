package config

import (
	"testing"
	"time"

	"github.com/marmos91/tinyweb/pkg/adapter/http"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Logging.QueueSize != 1024 {
		t.Errorf("Expected default queue size 1024, got %d", cfg.Logging.QueueSize)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Metrics.Port != 9090 {
		t.Errorf("Expected metrics port 9090, got %d", cfg.Server.Metrics.Port)
	}
	if cfg.Server.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
}

func TestApplyDefaults_Content(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Content.Type != "filesystem" {
		t.Errorf("Expected default type 'filesystem', got %q", cfg.Content.Type)
	}
	if cfg.Content.Filesystem["root"] != "./root" {
		t.Errorf("Expected default root './root', got %v", cfg.Content.Filesystem["root"])
	}

	custom := &Config{Content: ContentConfig{Filesystem: map[string]any{"root": "/srv/www"}}}
	ApplyDefaults(custom)
	if custom.Content.Filesystem["root"] != "/srv/www" {
		t.Errorf("Expected explicit root kept, got %v", custom.Content.Filesystem["root"])
	}
}

func TestApplyDefaults_Credentials(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Credentials.Type != "memory" {
		t.Errorf("Expected default type 'memory', got %q", cfg.Credentials.Type)
	}
	if cfg.Credentials.ReadPoolSize != DefaultReadPoolSize {
		t.Errorf("Expected read pool size %d, got %d", DefaultReadPoolSize, cfg.Credentials.ReadPoolSize)
	}
	if cfg.Credentials.BcryptCost != DefaultBcryptCost {
		t.Errorf("Expected bcrypt cost %d, got %d", DefaultBcryptCost, cfg.Credentials.BcryptCost)
	}
}

func TestApplyDefaults_HTTP(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	h := cfg.Adapters.HTTP
	if !h.Enabled {
		t.Error("Expected HTTP enabled for an unconfigured adapter")
	}
	if h.Port != DefaultHTTPPort {
		t.Errorf("Expected port %d, got %d", DefaultHTTPPort, h.Port)
	}
	if h.TriggerMode != DefaultTriggerMode {
		t.Errorf("Expected trigger mode %d, got %d", DefaultTriggerMode, h.TriggerMode)
	}
	if h.IdleTimeout != 5*time.Second {
		t.Errorf("Expected idle timeout 5s, got %v", h.IdleTimeout)
	}
	if h.MaxRequestSize != 1<<20 {
		t.Errorf("Expected max request size 1MiB, got %d", h.MaxRequestSize)
	}
	if h.MaxEvents != 10000 {
		t.Errorf("Expected max events 10000, got %d", h.MaxEvents)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "WARN", Format: "json", Output: "stderr"},
		Server:  ServerConfig{ShutdownTimeout: 5 * time.Second},
		Adapters: AdaptersConfig{
			HTTP: http.HTTPConfig{
				Enabled:     true,
				Port:        8080,
				TriggerMode: 0,
				Workers:     2,
				IdleTimeout: -1,
				AcceptRate:  50,
			},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Explicit logging values overwritten: %+v", cfg.Logging)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown timeout 5s, got %v", cfg.Server.ShutdownTimeout)
	}
	h := cfg.Adapters.HTTP
	if h.Port != 8080 || h.Workers != 2 {
		t.Errorf("Explicit HTTP values overwritten: port=%d workers=%d", h.Port, h.Workers)
	}
	if h.TriggerMode != 0 {
		t.Errorf("Expected level-triggered mode kept, got %d", h.TriggerMode)
	}
	if h.IdleTimeout != -1 {
		t.Errorf("Expected negative idle timeout kept, got %v", h.IdleTimeout)
	}
	if h.AcceptBurst != 100 {
		t.Errorf("Expected accept burst twice the rate, got %d", h.AcceptBurst)
	}
}

func TestApplyDefaults_HTTPDisabled(t *testing.T) {
	cfg := &Config{
		Adapters: AdaptersConfig{
			HTTP: http.HTTPConfig{Enabled: false, Port: 8080},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Adapters.HTTP.Enabled {
		t.Error("Expected explicitly configured adapter to stay disabled")
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Credentials.Badger["db_path"] == nil {
		t.Error("Expected default badger db_path for generated config files")
	}
	if cfg.Adapters.HTTP.MaxConnections != 65536 {
		t.Errorf("Expected max connections 65536, got %d", cfg.Adapters.HTTP.MaxConnections)
	}
	if cfg.Adapters.HTTP.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected adapter shutdown timeout 30s, got %v", cfg.Adapters.HTTP.ShutdownTimeout)
	}
}
