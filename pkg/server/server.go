package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/tinyweb/internal/logger"
	"github.com/marmos91/tinyweb/pkg/adapter"
	"github.com/marmos91/tinyweb/pkg/content"
	"github.com/marmos91/tinyweb/pkg/store/credential"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve already called")

// DefaultStopTimeout bounds the Stop calls issued on shutdown.
const DefaultStopTimeout = 30 * time.Second

// TinyWebServer manages the lifecycle of protocol adapters that share one
// content store and one credential store.
//
// Lifecycle:
//  1. Creation: New() with the shared stores
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: context cancellation stops every adapter
//
// AddAdapter may be called concurrently with the other methods until Serve
// runs. Serve runs at most once per instance.
//
// Example usage:
//
//	srv := server.New(contentStore, accounts)
//	_ = srv.AddAdapter(http.New(httpConfig, nil))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type TinyWebServer struct {
	content  content.Store
	accounts *credential.Authenticator

	// mu protects adapters and served
	mu       sync.RWMutex
	adapters []adapter.Adapter
	served   bool

	stopTimeout time.Duration
}

// New creates a server around the shared stores. accounts may be nil, in
// which case form posts are answered with the error page.
//
// Panics if contentStore is nil (programmer error).
func New(contentStore content.Store, accounts *credential.Authenticator) *TinyWebServer {
	if contentStore == nil {
		panic("content store cannot be nil")
	}

	return &TinyWebServer{
		content:     contentStore,
		accounts:    accounts,
		adapters:    make([]adapter.Adapter, 0, 2),
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout changes the deadline given to adapters' Stop calls.
func (s *TinyWebServer) SetStopTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.stopTimeout = d
	}
}

// AddAdapter injects the shared stores into a and registers it.
//
// Duplicate protocols and port conflicts are rejected. Port 0 (ephemeral)
// never conflicts.
//
// Panics if a is nil or Serve has already been called.
func (s *TinyWebServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetStores(s.content, s.accounts)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts all registered adapters and blocks until ctx is cancelled or
// an adapter fails.
//
// On cancellation every adapter is stopped in reverse registration order and
// Serve returns ctx.Err(). If an adapter fails, the others are stopped and
// the adapter's error is returned. Errors adapters return while stopping,
// such as a shutdown timeout, take precedence over ctx.Err(). Serve waits
// for every adapter goroutine before returning.
func (s *TinyWebServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting TinyWeb with %d adapter(s)", len(adapters))

	// Buffered so failing adapters never block.
	errChan := make(chan adapterError, len(adapters))
	// Closed when every adapter has returned, so a clean exit without a
	// cancelled ctx does not leave Serve waiting.
	allDone := make(chan struct{})

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			// Errors other than cancellation are reported even after
			// shutdown began, e.g. a drain that outlived its timeout.
			if err := a.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			} else {
				logger.Info("%s adapter stopped", protocol)
			}
		}(adp)
	}
	go func() {
		wg.Wait()
		close(allDone)
	}()

	var errs []error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters)

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters)
		errs = append(errs, adapterErr.wrap())

	case <-allDone:
	}

	logger.Debug("Waiting for all adapters to complete shutdown")
	<-allDone

	for drained := false; !drained; {
		select {
		case adapterErr := <-errChan:
			errs = append(errs, adapterErr.wrap())
		default:
			drained = true
		}
	}

	var shutdownErr error
	switch {
	case len(errs) > 0:
		shutdownErr = errors.Join(errs...)
	case ctx.Err() != nil:
		shutdownErr = ctx.Err()
	}

	logger.Info("TinyWeb stopped")
	return shutdownErr
}

type adapterError struct {
	protocol string
	err      error
}

func (e adapterError) wrap() error {
	return fmt.Errorf("%s adapter error: %w", e.protocol, e.err)
}

// stopAllAdapters stops adapters in reverse registration order, sharing one
// timeout across all Stop calls. Errors are logged, not returned.
func (s *TinyWebServer) stopAllAdapters(adapters []adapter.Adapter) {
	s.mu.RLock()
	timeout := s.stopTimeout
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

// Adapters returns a copy of the registered adapters.
func (s *TinyWebServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
