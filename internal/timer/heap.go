// Package timer provides a deadline-ordered set of keys with cheap
// rescheduling, used to evict idle connections.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

type entry[K comparable] struct {
	key      K
	deadline time.Time
	seq      uint64
	stale    bool
	index    int
}

type entries[K comparable] []*entry[K]

func (e entries[K]) Len() int { return len(e) }

func (e entries[K]) Less(i, j int) bool {
	if e[i].deadline.Equal(e[j].deadline) {
		return e[i].seq < e[j].seq
	}
	return e[i].deadline.Before(e[j].deadline)
}

func (e entries[K]) Swap(i, j int) {
	e[i], e[j] = e[j], e[i]
	e[i].index = i
	e[j].index = j
}

func (e *entries[K]) Push(x any) {
	it := x.(*entry[K])
	it.index = len(*e)
	*e = append(*e, it)
}

func (e *entries[K]) Pop() any {
	old := *e
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*e = old[:n-1]
	it.index = -1
	return it
}

// Heap orders keys by deadline. Ties go to the key scheduled first.
//
// Rescheduling or removing a key marks its current entry stale instead of
// restructuring the heap; stale entries are skipped when they surface and
// purged once they make up more than half the heap.
//
// All methods are safe for concurrent use.
type Heap[K comparable] struct {
	mu      sync.Mutex
	items   entries[K]
	current map[K]*entry[K]
	seq     uint64
	stale   int
	now     func() time.Time
}

// New creates an empty heap using the wall clock.
func New[K comparable]() *Heap[K] {
	return NewWithClock[K](time.Now)
}

// NewWithClock creates an empty heap that computes deadlines with now.
func NewWithClock[K comparable](now func() time.Time) *Heap[K] {
	return &Heap[K]{
		current: make(map[K]*entry[K]),
		now:     now,
	}
}

// Add schedules key to expire after d. If key is already scheduled its
// previous deadline is replaced.
func (h *Heap[K]) Add(key K, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scheduleLocked(key, h.now().Add(d))
}

// Adjust moves the deadline of a scheduled key to now+d. Unknown keys are
// ignored.
func (h *Heap[K]) Adjust(key K, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.current[key]; !ok {
		return
	}
	h.scheduleLocked(key, h.now().Add(d))
}

// Remove unschedules key. Unknown keys are ignored.
func (h *Heap[K]) Remove(key K) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.current[key]; ok {
		h.invalidateLocked(old)
		delete(h.current, key)
		h.maybeCompactLocked()
	}
}

// Contains reports whether key is scheduled.
func (h *Heap[K]) Contains(key K) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.current[key]
	return ok
}

// Deadline returns the current deadline of key.
func (h *Heap[K]) Deadline(key K) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.current[key]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

// PopExpired removes and returns every key whose deadline is not after now,
// earliest first.
func (h *Heap[K]) PopExpired(now time.Time) []K {
	h.mu.Lock()
	defer h.mu.Unlock()

	var expired []K
	for len(h.items) > 0 {
		top := h.items[0]
		if top.stale {
			heap.Pop(&h.items)
			h.stale--
			continue
		}
		if top.deadline.After(now) {
			break
		}
		heap.Pop(&h.items)
		delete(h.current, top.key)
		expired = append(expired, top.key)
	}
	return expired
}

// TimeUntilNext returns how long until the earliest live deadline, clamped
// at zero. The boolean is false when nothing is scheduled.
func (h *Heap[K]) TimeUntilNext(now time.Time) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for len(h.items) > 0 && h.items[0].stale {
		heap.Pop(&h.items)
		h.stale--
	}
	if len(h.items) == 0 {
		return 0, false
	}
	d := h.items[0].deadline.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Len returns the number of scheduled keys.
func (h *Heap[K]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.current)
}

// Clear drops every entry.
func (h *Heap[K]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = nil
	h.current = make(map[K]*entry[K])
	h.stale = 0
}

func (h *Heap[K]) scheduleLocked(key K, deadline time.Time) {
	if old, ok := h.current[key]; ok {
		h.invalidateLocked(old)
	}
	h.seq++
	e := &entry[K]{key: key, deadline: deadline, seq: h.seq}
	heap.Push(&h.items, e)
	h.current[key] = e
	h.maybeCompactLocked()
}

func (h *Heap[K]) invalidateLocked(e *entry[K]) {
	if !e.stale {
		e.stale = true
		h.stale++
	}
}

func (h *Heap[K]) maybeCompactLocked() {
	if h.stale <= len(h.items)/2 || len(h.items) < 64 {
		return
	}
	live := h.items[:0]
	for _, e := range h.items {
		if !e.stale {
			e.index = len(live)
			live = append(live, e)
		}
	}
	for i := len(live); i < len(h.items); i++ {
		h.items[i] = nil
	}
	h.items = live
	h.stale = 0
	heap.Init(&h.items)
}
