package metrics

import (
	"time"
)

// HTTPMetrics provides observability for the HTTP adapter.
//
// Implementations can collect metrics about requests, connection lifecycle,
// throughput and worker pool pressure. This interface is optional - if not
// provided to the HTTP adapter, a no-op implementation is used with zero
// overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	adapter := http.New(config, prometheus.NewHTTPMetrics())
//
//	// Without metrics (no-op)
//	adapter := http.New(config, nil)
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - method: Request method ("GET", "POST"), or "-" for unparsable requests
	//   - status: Response status code
	//   - duration: Time from the start of decoding to the response being queued
	RecordRequest(method string, status int, duration time.Duration)

	// RecordBytesTransferred records bytes read from or written to clients.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	//
	// Parameters:
	//   - reason: "done", "peer", "timeout", "error" or "shutdown"
	RecordConnectionClosed(reason string)

	// RecordConnectionRejected counts connections refused at accept time.
	//
	// Parameters:
	//   - reason: "busy" (connection limit) or "rate" (accept rate limit)
	RecordConnectionRejected(reason string)

	// SetPendingTasks reports the worker pool backlog.
	SetPendingTasks(count int)

	// RecordTaskPanic counts tasks that panicked and were recovered.
	RecordTaskPanic()
}

// NewNoopHTTPMetrics returns an HTTPMetrics that discards everything.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

// noopHTTPMetrics is a no-op implementation of HTTPMetrics with zero overhead.
type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(method string, status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordBytesTransferred(direction string, bytes int64)            {}
func (noopHTTPMetrics) SetActiveConnections(count int32)                                {}
func (noopHTTPMetrics) RecordConnectionAccepted()                                       {}
func (noopHTTPMetrics) RecordConnectionClosed(reason string)                            {}
func (noopHTTPMetrics) RecordConnectionRejected(reason string)                          {}
func (noopHTTPMetrics) SetPendingTasks(count int)                                       {}
func (noopHTTPMetrics) RecordTaskPanic()                                                {}
