//go:build linux

package reactor

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Reactor multiplexes readiness notifications over one epoll instance.
//
// Register, Modify and Unregister may be called from any goroutine. Poll is
// intended for a single caller; Wake may be called concurrently with it and
// with Close.
type Reactor struct {
	epfd   int
	wakeFd int
	events []unix.EpollEvent

	// mu is held shared around every use of epfd and wakeFd, so Close
	// cannot release a descriptor number another goroutine is about to use.
	mu     sync.RWMutex
	closed bool
}

// New creates an epoll instance plus an eventfd used by Wake.
func New(maxEvents int) (*Reactor, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll add wake fd: %w", err)
	}

	return &Reactor{
		epfd:   epfd,
		wakeFd: wakeFd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

func toEpoll(in Interest) uint32 {
	var ev uint32
	if in&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if in&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	if in&PeerHangup != 0 {
		ev |= unix.EPOLLRDHUP
	}
	if in&EdgeTriggered != 0 {
		ev |= unix.EPOLLET
	}
	if in&OneShot != 0 {
		ev |= unix.EPOLLONESHOT
	}
	return ev
}

func fromEpoll(ev uint32) Mask {
	var m Mask
	if ev&unix.EPOLLIN != 0 {
		m |= EventReadable
	}
	if ev&unix.EPOLLOUT != 0 {
		m |= EventWritable
	}
	if ev&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
		m |= EventHangup
	}
	if ev&unix.EPOLLERR != 0 {
		m |= EventError
	}
	return m
}

func (r *Reactor) ctl(op int, fd int, in Interest) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: toEpoll(in), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, op, fd, &ev)
}

// Register starts watching fd.
func (r *Reactor) Register(fd int, in Interest) error {
	if err := r.ctl(unix.EPOLL_CTL_ADD, fd, in); err != nil {
		return fmt.Errorf("epoll add fd %d: %w", fd, err)
	}
	return nil
}

// Modify replaces the interest set of a registered fd. This is how one-shot
// registrations are re-armed.
func (r *Reactor) Modify(fd int, in Interest) error {
	if err := r.ctl(unix.EPOLL_CTL_MOD, fd, in); err != nil {
		return fmt.Errorf("epoll mod fd %d: %w", fd, err)
	}
	return nil
}

// Unregister stops watching fd.
func (r *Reactor) Unregister(fd int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll del fd %d: %w", fd, err)
	}
	return nil
}

// Poll waits for readiness. A negative timeout blocks until an event or a
// Wake arrives; zero returns immediately. An interrupted wait yields an empty
// result rather than an error.
func (r *Reactor) Poll(timeout time.Duration) ([]Event, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}

	n, err := unix.EpollWait(r.epfd, r.events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll wait: %w", err)
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev := r.events[i]
		fd := int(ev.Fd)
		if fd == r.wakeFd {
			r.drainWake()
			continue
		}
		out = append(out, Event{Fd: fd, Mask: fromEpoll(ev.Events)})
	}
	return out, nil
}

// Wake makes a blocked Poll return.
func (r *Reactor) Wake() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	var one = [8]byte{1}
	_, err := unix.Write(r.wakeFd, one[:])
	if err == unix.EAGAIN {
		// Counter saturated: a wake is already pending.
		return nil
	}
	return err
}

func (r *Reactor) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(r.wakeFd, buf[:])
}

// Close releases the epoll instance and the wake descriptor. Registered
// descriptors are not closed.
func (r *Reactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	werr := unix.Close(r.wakeFd)
	if err := unix.Close(r.epfd); err != nil {
		return err
	}
	return werr
}
