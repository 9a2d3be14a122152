//go:build !linux

package reactor

import "time"

// Reactor is unavailable outside Linux.
type Reactor struct{}

func New(maxEvents int) (*Reactor, error) {
	return nil, ErrUnsupported
}

func (r *Reactor) Register(fd int, in Interest) error {
	return ErrUnsupported
}

func (r *Reactor) Modify(fd int, in Interest) error {
	return ErrUnsupported
}

func (r *Reactor) Unregister(fd int) error {
	return ErrUnsupported
}

func (r *Reactor) Poll(timeout time.Duration) ([]Event, error) {
	return nil, ErrUnsupported
}

func (r *Reactor) Wake() error {
	return ErrUnsupported
}

func (r *Reactor) Close() error {
	return nil
}
