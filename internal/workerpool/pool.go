// Package workerpool runs submitted tasks on a fixed set of goroutines fed
// from one FIFO queue.
package workerpool

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// Task is a unit of work. It runs to completion on exactly one worker.
type Task func()

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("workerpool: pool closed")

// Config configures a Pool.
type Config struct {
	// Workers is the number of goroutines. Zero means runtime.NumCPU().
	Workers int

	// OnPanic is called with the recovered value when a task panics. The
	// worker survives and moves on to the next task.
	OnPanic func(recovered any)
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers   int
	Submitted uint64
	Completed uint64
	Panicked  uint64
	Pending   int
}

// Pool is a fixed-size worker pool over an unbounded FIFO.
//
// Submit appends under the pool mutex and signals one waiting worker. Close
// lets the workers drain every queued task before they exit.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	closed  bool
	wg      sync.WaitGroup
	workers int
	onPanic func(any)

	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// New starts cfg.Workers goroutines.
func New(cfg Config) *Pool {
	n := cfg.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}

	p := &Pool{
		tasks:   queue.New(),
		workers: n,
		onPanic: cfg.OnPanic,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

// Submit queues task for execution.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("workerpool: nil task")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.tasks.Add(task)
	p.submitted.Add(1)
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.tasks.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.tasks.Length() == 0 {
			p.mu.Unlock()
			return
		}
		task := p.tasks.Remove().(Task)
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
		p.completed.Add(1)
	}()
	task()
}

// Close stops accepting tasks, waits for every queued task to finish and
// then for the workers to exit. Calling Close more than once is harmless.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	pending := p.tasks.Length()
	p.mu.Unlock()

	return Stats{
		Workers:   p.workers,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Pending:   pending,
	}
}
