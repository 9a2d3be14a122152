package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/tinyweb/pkg/metrics"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	bytesTransferred    *prometheus.CounterVec
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   *prometheus.CounterVec
	connectionsRejected *prometheus.CounterVec
	pendingTasks        prometheus.Gauge
	taskPanics          prometheus.Counter
}

// NewHTTPMetrics creates a new Prometheus-backed HTTPMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopHTTPMetrics()
	}

	reg := metrics.GetRegistry()

	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyweb_http_requests_total",
				Help: "Total number of HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tinyweb_http_request_duration_milliseconds",
				Help: "Time spent decoding a request and preparing its response",
				Buckets: []float64{
					0.1,  // 100µs
					1,    // 1ms
					10,   // 10ms
					100,  // 100ms
					1000, // 1s
				},
			},
			[]string{"method"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyweb_http_bytes_transferred_total",
				Help: "Total bytes read from and written to clients",
			},
			[]string{"direction"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tinyweb_http_active_connections",
				Help: "Current number of open client connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tinyweb_http_connections_accepted_total",
				Help: "Total number of client connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyweb_http_connections_closed_total",
				Help: "Total number of client connections closed by reason",
			},
			[]string{"reason"},
		),
		connectionsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyweb_http_connections_rejected_total",
				Help: "Total number of connections refused at accept time",
			},
			[]string{"reason"},
		),
		pendingTasks: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tinyweb_worker_pending_tasks",
				Help: "Tasks queued for the worker pool",
			},
		),
		taskPanics: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tinyweb_worker_task_panics_total",
				Help: "Tasks that panicked and were recovered",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(float64(duration) / float64(time.Millisecond))
}

func (m *httpMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *httpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed(reason string) {
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

func (m *httpMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *httpMetrics) SetPendingTasks(count int) {
	m.pendingTasks.Set(float64(count))
}

func (m *httpMetrics) RecordTaskPanic() {
	m.taskPanics.Inc()
}
