package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/tinyweb/pkg/store/credential"
)

// credentialMetrics is the Prometheus implementation of credential.Metrics.
type credentialMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	poolWait          *prometheus.HistogramVec
}

// NewCredentialMetrics creates Prometheus metrics for a credential store.
//
// Parameters:
//   - storeType: Backend name used as a label ("badger", "memory")
//
// Returns nil if metrics are not enabled, which makes the store fall back to
// its no-op implementation.
func NewCredentialMetrics(storeType string) credential.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()
	labels := prometheus.Labels{"store": storeType}

	return &credentialMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "tinyweb_credential_operations_total",
				Help:        "Total number of credential store operations by operation and status",
				ConstLabels: labels,
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "tinyweb_credential_operation_duration_seconds",
				Help:        "Duration of credential store operations in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"operation"},
		),
		poolWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "tinyweb_credential_pool_wait_seconds",
				Help:        "Time spent waiting for a credential pool slot",
				ConstLabels: labels,
				Buckets:     prometheus.ExponentialBuckets(0.00001, 10, 6),
			},
			[]string{"kind"},
		),
	}
}

func (m *credentialMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		if credential.IsNotFound(err) {
			status = "not_found"
		}
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *credentialMetrics) ObservePoolWait(kind string, wait time.Duration) {
	m.poolWait.WithLabelValues(kind).Observe(wait.Seconds())
}
