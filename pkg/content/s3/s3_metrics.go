package s3

import "time"

// S3Metrics receives per-request observations from the store. The
// Prometheus implementation lives in pkg/metrics.
type S3Metrics interface {
	// ObserveOperation records an S3 operation with its duration and outcome
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred
	RecordBytes(operation string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(operation string, duration time.Duration, err error) {}
func (noopMetrics) RecordBytes(operation string, bytes int64)                            {}
