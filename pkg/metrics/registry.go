// Package metrics holds TinyWeb's Prometheus collectors: connection and
// request counters for the HTTP adapter, credential store latencies and S3
// content fetches.
//
// Collection is off until InitRegistry runs. Before that every constructor
// hands back a no-op implementation, so the adapter and stores never check
// whether metrics are on.
//
//	metrics.InitRegistry()
//	httpMetrics := prometheus.NewHTTPMetrics()
//	accounts := metrics.NewCredentialMetrics("badger")
//
//	srv := metrics.NewServer(metrics.ServerConfig{Port: 9090})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the registry served on /metrics, seeded with the Go
// runtime and process collectors. Later calls are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "tinyweb"}),
		)
		registry = reg
	})
}

// GetRegistry returns the registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return GetRegistry() != nil
}
