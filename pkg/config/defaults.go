package config

import (
	"strings"
	"time"

	"github.com/marmos91/tinyweb/pkg/adapter/http"
)

const (
	// DefaultHTTPPort is the port the server listens on when none is set.
	DefaultHTTPPort = 1453

	// DefaultTriggerMode is level triggering on both listener and connections.
	DefaultTriggerMode = 0

	// DefaultReadPoolSize is the credential store's concurrent lookup bound.
	DefaultReadPoolSize = 8

	// DefaultBcryptCost matches bcrypt.DefaultCost.
	DefaultBcryptCost = 10
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values ("", 0, nil) are replaced with defaults; explicit values are
// preserved. Store-specific defaults are handled by the store implementations.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyContentDefaults(&cfg.Content)
	applyCredentialsDefaults(&cfg.Credentials)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1024
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyContentDefaults sets content store defaults.
func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}

	// Filled for every type so generated config files show the option.
	if _, ok := cfg.Filesystem["root"]; !ok {
		cfg.Filesystem["root"] = "./root"
	}
}

// applyCredentialsDefaults sets credential store defaults.
func applyCredentialsDefaults(cfg *CredentialsConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.ReadPoolSize == 0 {
		cfg.ReadPoolSize = DefaultReadPoolSize
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultBcryptCost
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// A config without an explicit HTTP section (port still 0) gets the
	// adapter enabled, so a fresh load passes validation. Users can set
	// enabled: false together with a port to turn it off.
	if !cfg.HTTP.Enabled && cfg.HTTP.Port == 0 {
		cfg.HTTP.Enabled = true
	}

	applyHTTPDefaults(&cfg.HTTP)
}

// applyHTTPDefaults sets HTTP adapter defaults. TriggerMode needs none:
// its zero value is level/level, the default mode.
func applyHTTPDefaults(cfg *http.HTTPConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultHTTPPort
	}
	if cfg.Workers == 0 {
		cfg.Workers = 8
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 65536
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Second
	}
	if cfg.MaxRequestSize == 0 {
		cfg.MaxRequestSize = 1 << 20
	}
	if cfg.MaxEvents == 0 {
		cfg.MaxEvents = 10000
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
	if cfg.AcceptRate > 0 && cfg.AcceptBurst == 0 {
		cfg.AcceptBurst = cfg.AcceptRate * 2
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Used for generating sample configuration files and in tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Content: ContentConfig{
			Filesystem: make(map[string]any),
		},
		Credentials: CredentialsConfig{
			Memory: make(map[string]any),
			Badger: map[string]any{
				"db_path": "./tinyweb-users",
			},
		},
		Adapters: AdaptersConfig{
			HTTP: http.HTTPConfig{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
