// Package reactor wraps the operating system readiness facility (epoll on
// Linux) behind a small interest/event API.
//
// A Reactor only reports readiness. It never reads or writes descriptors and
// it holds no per-descriptor state of its own: callers decide what a
// descriptor means.
package reactor

import (
	"errors"
)

// Interest selects which readiness conditions a registration reports.
type Interest uint32

const (
	// Readable reports when the descriptor has data or a pending accept.
	Readable Interest = 1 << iota

	// Writable reports when the descriptor can accept more output.
	Writable

	// PeerHangup reports when the peer shut down its write side.
	PeerHangup

	// EdgeTriggered reports state transitions instead of levels.
	EdgeTriggered

	// OneShot disarms the registration after one delivered event. It must
	// be re-armed with Modify before further events are reported.
	OneShot
)

// Mask describes what happened to a descriptor.
type Mask uint32

const (
	EventReadable Mask = 1 << iota
	EventWritable
	EventHangup
	EventError
)

// Event is one readiness notification.
type Event struct {
	Fd   int
	Mask Mask
}

func (m Mask) Readable() bool { return m&EventReadable != 0 }
func (m Mask) Writable() bool { return m&EventWritable != 0 }

// Closed reports a hangup or error condition.
func (m Mask) Closed() bool { return m&(EventHangup|EventError) != 0 }

var (
	// ErrUnsupported is returned on platforms without an epoll backend.
	ErrUnsupported = errors.New("reactor: not supported on this platform")

	// ErrClosed is returned by operations on a closed reactor.
	ErrClosed = errors.New("reactor: closed")
)

// DefaultMaxEvents bounds the number of events returned by one Poll.
const DefaultMaxEvents = 10000
