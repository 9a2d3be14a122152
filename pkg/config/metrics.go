package config

import (
	"github.com/marmos91/tinyweb/pkg/metrics"
	promMetrics "github.com/marmos91/tinyweb/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// HTTPMetrics is the collector for the HTTP adapter (never nil, no-op if disabled)
	HTTPMetrics metrics.HTTPMetrics
}

// InitializeMetrics creates all metrics components based on configuration.
//
// When metrics are enabled the global Prometheus registry is initialized,
// so store factories called afterwards (CreateContentStore,
// CreateCredentialStore) pick up Prometheus-backed collectors as well.
// When disabled, a nil server and no-op collectors are returned.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			HTTPMetrics: metrics.NewNoopHTTPMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:      server,
		HTTPMetrics: promMetrics.NewHTTPMetrics(),
	}
}
