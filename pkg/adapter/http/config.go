package http

import (
	"fmt"
	"time"
)

// HTTPConfig holds configuration parameters for the HTTP server.
//
// Default values (applied by New if zero):
//   - Workers: 8
//   - MaxConnections: 65536
//   - IdleTimeout: 5s (negative disables eviction)
//   - MaxRequestSize: 1 MiB
//   - MaxEvents: 10000
//   - ShutdownTimeout: 30s
//   - MetricsLogInterval: 5m (negative disables)
//
// Port 0 binds an ephemeral port; Port reports the bound one once Ready is
// closed.
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// TriggerMode selects level or edge triggering:
	//   0: level / level
	//   1: connections edge, listener level
	//   2: connections level, listener edge
	//   3: edge / edge
	TriggerMode int `mapstructure:"trigger_mode" yaml:"trigger_mode" validate:"min=0,max=3"`

	// Linger makes close wait up to one second for unsent data.
	Linger bool `mapstructure:"linger" yaml:"linger"`

	// Workers is the worker pool size.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"min=0"`

	// MaxConnections bounds the live table. Connections beyond it are sent
	// a 503 and closed.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// IdleTimeout closes connections without activity for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// MaxRequestSize bounds the buffered bytes of one request.
	MaxRequestSize int `mapstructure:"max_request_size" yaml:"max_request_size" validate:"min=0"`

	// AcceptRate limits new connections per second (0: unlimited).
	// AcceptBurst is the token bucket size.
	AcceptRate  uint `mapstructure:"accept_rate" yaml:"accept_rate"`
	AcceptBurst uint `mapstructure:"accept_burst" yaml:"accept_burst"`

	// MaxEvents bounds the events returned by one poll.
	MaxEvents int `mapstructure:"max_events" yaml:"max_events" validate:"min=0"`

	// ShutdownTimeout bounds the wait for in-flight tasks on shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the period of the status log line.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval"`
}

func (c *HTTPConfig) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = 8
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 65536
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Second
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 1 << 20
	}
	if c.MaxEvents == 0 {
		c.MaxEvents = 10000
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
	if c.AcceptRate > 0 && c.AcceptBurst == 0 {
		c.AcceptBurst = c.AcceptRate * 2
	}
}

func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.TriggerMode < 0 || c.TriggerMode > 3 {
		return fmt.Errorf("invalid trigger mode %d: must be 0-3", c.TriggerMode)
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid Workers %d: must be >= 1", c.Workers)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 1", c.MaxConnections)
	}
	if c.MaxRequestSize < 1 {
		return fmt.Errorf("invalid MaxRequestSize %d: must be >= 1", c.MaxRequestSize)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

func (c *HTTPConfig) connEdge() bool   { return c.TriggerMode&1 != 0 }
func (c *HTTPConfig) listenEdge() bool { return c.TriggerMode&2 != 0 }
