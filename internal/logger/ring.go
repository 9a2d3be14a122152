package logger

import (
	"io"
	"sync"
)

// Ring is a bounded FIFO of byte slices shared by many producers and one
// consumer. Push blocks while the ring is full; Pop blocks while it is empty.
//
// A popped item stays "in flight" until the consumer calls Done, so WaitEmpty
// only returns once the consumer has finished handling everything it took.
type Ring struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	empty    *sync.Cond

	items    [][]byte
	head     int
	count    int
	inflight int
	closed   bool
}

// NewRing creates a ring holding at most capacity items. Capacity below one
// is raised to one.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring{items: make([][]byte, capacity)}
	r.notEmpty = sync.NewCond(&r.mu)
	r.notFull = sync.NewCond(&r.mu)
	r.empty = sync.NewCond(&r.mu)
	return r
}

// Push appends item, waiting for space. It returns false if the ring was
// closed before the item could be stored.
func (r *Ring) Push(item []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count == len(r.items) && !r.closed {
		r.notFull.Wait()
	}
	if r.closed {
		return false
	}
	r.pushLocked(item)
	return true
}

// TryPush appends item only if there is room right now.
func (r *Ring) TryPush(item []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.count == len(r.items) {
		return false
	}
	r.pushLocked(item)
	return true
}

func (r *Ring) pushLocked(item []byte) {
	r.items[(r.head+r.count)%len(r.items)] = item
	r.count++
	r.notEmpty.Signal()
}

// Pop removes the oldest item, waiting until one is available. After Close,
// Pop keeps returning queued items and then reports false.
func (r *Ring) Pop() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count == 0 && !r.closed {
		r.notEmpty.Wait()
	}
	if r.count == 0 {
		return nil, false
	}

	item := r.items[r.head]
	r.items[r.head] = nil
	r.head = (r.head + 1) % len(r.items)
	r.count--
	r.inflight++
	r.notFull.Signal()
	return item, true
}

// Done acknowledges one item returned by Pop.
func (r *Ring) Done() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inflight > 0 {
		r.inflight--
	}
	if r.count == 0 && r.inflight == 0 {
		r.empty.Broadcast()
	}
}

// Len reports the number of queued items, excluding in-flight ones.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Ring) Cap() int {
	return len(r.items)
}

// WaitEmpty blocks until the ring is empty and no popped item is in flight.
func (r *Ring) WaitEmpty() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count > 0 || r.inflight > 0 {
		r.empty.Wait()
	}
}

// Close wakes all waiters. Queued items can still be popped.
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.notEmpty.Broadcast()
	r.notFull.Broadcast()
	if r.count == 0 && r.inflight == 0 {
		r.empty.Broadcast()
	}
}

// asyncSink is an io.Writer that hands formatted lines to a Ring and writes
// them to out from a single goroutine.
type asyncSink struct {
	ring *Ring
	out  io.Writer
	done chan struct{}
}

func newAsyncSink(out io.Writer, size int) *asyncSink {
	if size <= 0 {
		size = 1024
	}
	s := &asyncSink{
		ring: NewRing(size),
		out:  out,
		done: make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *asyncSink) Write(p []byte) (int, error) {
	// logrus reuses its formatting buffer, so keep a private copy.
	line := make([]byte, len(p))
	copy(line, p)
	if !s.ring.Push(line) {
		return 0, io.ErrClosedPipe
	}
	return len(p), nil
}

func (s *asyncSink) drain() {
	defer close(s.done)
	for {
		line, ok := s.ring.Pop()
		if !ok {
			return
		}
		_, _ = s.out.Write(line)
		s.ring.Done()
	}
}

func (s *asyncSink) flush() {
	s.ring.WaitEmpty()
}

func (s *asyncSink) close() {
	s.ring.WaitEmpty()
	s.ring.Close()
	<-s.done
}
