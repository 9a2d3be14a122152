package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/tinyweb/pkg/content"
	"github.com/marmos91/tinyweb/pkg/content/memory"
	"github.com/marmos91/tinyweb/pkg/store/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	protocol string
	port     int
	serveErr error
	// stopErr is returned by Serve once it has been asked to stop.
	stopErr error

	storesSet atomic.Bool
	stopped   atomic.Int32
	stop      chan struct{}
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stop: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
	case <-f.stop:
	}
	return f.stopErr
}

func (f *fakeAdapter) SetStores(content.Store, *credential.Authenticator) {
	f.storesSet.Store(true)
}

func (f *fakeAdapter) Stop(context.Context) error {
	if f.stopped.Add(1) == 1 {
		close(f.stop)
	}
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func TestNewPanicsWithoutContent(t *testing.T) {
	assert.Panics(t, func() { New(nil, nil) })
}

func TestAddAdapter(t *testing.T) {
	srv := New(memory.NewMemoryContentStore(), nil)

	a := newFakeAdapter("HTTP", 8080)
	require.NoError(t, srv.AddAdapter(a))
	assert.True(t, a.storesSet.Load())

	err := srv.AddAdapter(newFakeAdapter("HTTP", 8081))
	assert.ErrorContains(t, err, "already registered")

	err = srv.AddAdapter(newFakeAdapter("OTHER", 8080))
	assert.ErrorContains(t, err, "already in use")

	assert.Len(t, srv.Adapters(), 1)
}

func TestAddAdapterEphemeralPortsDoNotConflict(t *testing.T) {
	srv := New(memory.NewMemoryContentStore(), nil)

	require.NoError(t, srv.AddAdapter(newFakeAdapter("A", 0)))
	require.NoError(t, srv.AddAdapter(newFakeAdapter("B", 0)))
}

func TestServeWithoutAdapters(t *testing.T) {
	srv := New(memory.NewMemoryContentStore(), nil)

	err := srv.Serve(context.Background())
	assert.ErrorContains(t, err, "no adapters registered")
}

func TestServeStopsAdaptersOnCancel(t *testing.T) {
	srv := New(memory.NewMemoryContentStore(), nil)
	a := newFakeAdapter("A", 1)
	b := newFakeAdapter("B", 2)
	require.NoError(t, srv.AddAdapter(a))
	require.NoError(t, srv.AddAdapter(b))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	assert.EqualValues(t, 1, a.stopped.Load())
	assert.EqualValues(t, 1, b.stopped.Load())
}

func TestServeStopsOthersWhenOneFails(t *testing.T) {
	srv := New(memory.NewMemoryContentStore(), nil)
	srv.SetStopTimeout(time.Second)

	healthy := newFakeAdapter("A", 1)
	broken := newFakeAdapter("B", 2)
	broken.serveErr = errors.New("bind failed")
	require.NoError(t, srv.AddAdapter(healthy))
	require.NoError(t, srv.AddAdapter(broken))

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B adapter error")
	assert.Contains(t, err.Error(), "bind failed")
	assert.EqualValues(t, 1, healthy.stopped.Load())
}

func TestServeTwice(t *testing.T) {
	srv := New(memory.NewMemoryContentStore(), nil)
	require.NoError(t, srv.AddAdapter(newFakeAdapter("A", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = srv.Serve(ctx)

	assert.ErrorIs(t, srv.Serve(ctx), ErrAlreadyServed)
	assert.Panics(t, func() { _ = srv.AddAdapter(newFakeAdapter("C", 3)) })
}

func TestServeReportsStopErrorAfterCancel(t *testing.T) {
	srv := New(memory.NewMemoryContentStore(), nil)
	clean := newFakeAdapter("A", 1)
	slow := newFakeAdapter("B", 2)
	slow.stopErr = errors.New("shutdown timeout: 1 task(s) still running")
	require.NoError(t, srv.AddAdapter(clean))
	require.NoError(t, srv.AddAdapter(slow))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.NotErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "B adapter error")
		assert.Contains(t, err.Error(), "still running")
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeIgnoresCanceledStopError(t *testing.T) {
	srv := New(memory.NewMemoryContentStore(), nil)
	a := newFakeAdapter("A", 1)
	a.stopErr = fmt.Errorf("accept loop: %w", context.Canceled)
	require.NoError(t, srv.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, srv.Serve(ctx), context.Canceled)
}
