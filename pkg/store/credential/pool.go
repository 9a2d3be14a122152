package credential

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultReadPoolSize is used when a pool is created with size zero.
const DefaultReadPoolSize = 8

// Pool gates backend access: at most Size readers at once and one writer.
//
// Readers that find every slot taken wait until one is released or their
// context ends. The writer never waits for readers; backends are expected to
// provide snapshot reads.
type Pool struct {
	readers *semaphore.Weighted
	size    int64
	writeMu sync.Mutex
	metrics Metrics

	readsInUse atomic.Int64
}

// NewPool creates a pool with size read slots.
func NewPool(size int, metrics Metrics) *Pool {
	if size <= 0 {
		size = DefaultReadPoolSize
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Pool{
		readers: semaphore.NewWeighted(int64(size)),
		size:    int64(size),
		metrics: metrics,
	}
}

// Read runs fn holding one read slot.
func (p *Pool) Read(ctx context.Context, fn func() error) error {
	start := time.Now()
	if err := p.readers.Acquire(ctx, 1); err != nil {
		return err
	}
	p.metrics.ObservePoolWait("read", time.Since(start))

	p.readsInUse.Add(1)
	defer func() {
		p.readsInUse.Add(-1)
		p.readers.Release(1)
	}()
	return fn()
}

// Write runs fn as the only writer.
func (p *Pool) Write(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.metrics.ObservePoolWait("write", time.Since(start))
	return fn()
}

// Size returns the number of read slots.
func (p *Pool) Size() int {
	return int(p.size)
}

// ReadsInUse returns the number of read slots currently held.
func (p *Pool) ReadsInUse() int {
	return int(p.readsInUse.Load())
}

// WaitIdle blocks until every read slot is free and the writer is idle.
// Stores call it from Close after refusing new work.
func (p *Pool) WaitIdle(ctx context.Context) error {
	if err := p.readers.Acquire(ctx, p.size); err != nil {
		return err
	}
	p.writeMu.Lock()
	p.writeMu.Unlock()
	p.readers.Release(p.size)
	return nil
}
