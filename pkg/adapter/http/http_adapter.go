package http

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/marmos91/tinyweb/internal/buffer"
	"github.com/marmos91/tinyweb/internal/logger"
	protohttp "github.com/marmos91/tinyweb/internal/protocol/http"
	"github.com/marmos91/tinyweb/internal/ratelimiter"
	"github.com/marmos91/tinyweb/internal/reactor"
	"github.com/marmos91/tinyweb/internal/timer"
	"github.com/marmos91/tinyweb/internal/workerpool"
	"github.com/marmos91/tinyweb/pkg/content"
	"github.com/marmos91/tinyweb/pkg/metrics"
	"github.com/marmos91/tinyweb/pkg/store/credential"
)

// HTTPAdapter implements the adapter.Adapter interface for HTTP/1.x.
//
// Architecture:
// One orchestrator goroutine (the caller of Serve) owns the listening
// socket, the reactor, the timer heap and the live connection table. It
// never performs client I/O. Readiness on a connection becomes a task on the
// worker pool; the task reads, decodes, encodes or writes, and reports back
// through the completion queue. Only the orchestrator applies completions:
// it re-arms the one-shot registration, or closes the connection.
//
// Loop:
//  1. Poll with a timeout taken from the earliest idle deadline
//  2. Accept on listener readiness (503 and close beyond MaxConnections)
//  3. Close on hangup or error; otherwise refresh the deadline and submit
//  4. Apply completions (clear busy, re-arm or close)
//  5. Close connections whose idle deadline passed
//
// A connection is never closed while a task for it is outstanding: the close
// is recorded and carried out when the completion arrives.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called: the reactor is woken
//  2. Listener closed (no new connections)
//  3. Worker pool drained (up to ShutdownTimeout)
//  4. Every remaining connection closed; one whose task outlived the
//     timeout is shut down and closed by that task when it returns
type HTTPAdapter struct {
	config HTTPConfig

	handler  *protohttp.Handler
	content  content.Store
	accounts *credential.Authenticator
	metrics  metrics.HTTPMetrics
	limiter  *ratelimiter.RateLimiter

	// Owned by the orchestrator goroutine.
	listenFd int
	conns    map[int]*HTTPConnection
	nextGen  uint64
	timers   *timer.Heap[int]
	pool     *workerpool.Pool
	busyResp []byte

	reactor atomic.Pointer[reactor.Reactor]

	compMu      sync.Mutex
	completions *queue.Queue
	batch       []completion

	port      atomic.Int32
	connCount atomic.Int32
	accepted  atomic.Uint64
	rejected  atomic.Uint64
	overlaps  atomic.Int64

	ready        chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once
	started      atomic.Bool
	done         chan struct{}

	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// writev is replaced in tests to simulate short writes.
	writev func(fd int, iovs [][]byte) (int, error)
}

// completion is a finished task, keyed by descriptor and generation so that
// a result for a recycled descriptor is ignored.
type completion struct {
	fd  int
	gen uint64
	act action
}

// New creates a new HTTPAdapter with the specified configuration.
//
// The adapter is created in a stopped state. Call SetStores() to inject the
// content and account backends, then call Serve() to start accepting.
//
// Panics if config validation fails.
func New(config HTTPConfig, httpMetrics metrics.HTTPMetrics) *HTTPAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	busy := buffer.New(128)
	protohttp.WriteBusy(busy)

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &HTTPAdapter{
		config:         config,
		metrics:        httpMetrics,
		limiter:        ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		listenFd:       -1,
		conns:          make(map[int]*HTTPConnection),
		timers:         timer.New[int](),
		busyResp:       []byte(busy.RetrieveAllString()),
		completions:    queue.New(),
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		done:           make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		writev:         sysWritev,
	}
}

// SetStores injects the static content store and the account service used
// by login and registration forms. accounts may be nil.
//
// Called exactly once before Serve(), no synchronization needed.
func (s *HTTPAdapter) SetStores(contentStore content.Store, accounts *credential.Authenticator) {
	s.content = contentStore
	s.accounts = accounts

	// A nil *Authenticator must not become a non-nil interface value.
	var acc protohttp.Accounts
	if accounts != nil {
		acc = accounts
	}
	s.handler = protohttp.NewHandler(contentStore, acc)
	logger.Debug("HTTP stores configured")
}

func (s *HTTPAdapter) listenInterest() reactor.Interest {
	in := reactor.Readable | reactor.PeerHangup
	if s.config.listenEdge() {
		in |= reactor.EdgeTriggered
	}
	return in
}

func (s *HTTPAdapter) connInterest(dir reactor.Interest) reactor.Interest {
	in := dir | reactor.PeerHangup | reactor.OneShot
	if s.config.connEdge() {
		in |= reactor.EdgeTriggered
	}
	return in
}

// Serve starts the HTTP server and blocks until the context is cancelled,
// Stop is called, or an unrecoverable error occurs.
//
// Returns:
//   - nil on graceful shutdown
//   - error if setup fails (nothing was accepted) or shutdown timed out
//
// Serve() should only be called once per HTTPAdapter instance.
func (s *HTTPAdapter) Serve(ctx context.Context) error {
	if s.handler == nil {
		return errors.New("HTTP adapter: stores not configured")
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("HTTP adapter: already serving")
	}
	defer close(s.done)

	lfd, port, err := listenTCP(s.config.Port, s.config.Linger)
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on port %d: %w", s.config.Port, err)
	}

	r, err := reactor.New(s.config.MaxEvents)
	if err != nil {
		_ = sysClose(lfd)
		return fmt.Errorf("failed to create HTTP reactor: %w", err)
	}
	if err := r.Register(lfd, s.listenInterest()); err != nil {
		_ = r.Close()
		_ = sysClose(lfd)
		return fmt.Errorf("failed to register HTTP listener: %w", err)
	}

	s.listenFd = lfd
	s.reactor.Store(r)
	s.pool = workerpool.New(workerpool.Config{
		Workers: s.config.Workers,
		OnPanic: func(recovered any) {
			logger.Error("Panic in HTTP worker: %v", recovered)
		},
	})
	s.port.Store(int32(port))
	close(s.ready)

	logger.Info("HTTP server listening on port %d", port)
	logger.Debug("HTTP config: trigger_mode=%d workers=%d max_connections=%d idle_timeout=%v linger=%t",
		s.config.TriggerMode, s.config.Workers, s.config.MaxConnections, s.config.IdleTimeout, s.config.Linger)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics()
	}

	loopErr := s.loop()
	// Releases the ctx watcher and the metrics logger on a poll failure too.
	s.initiateShutdown()
	shutdownErr := s.gracefulShutdown()
	if loopErr != nil {
		return loopErr
	}
	return shutdownErr
}

func (s *HTTPAdapter) loop() error {
	r := s.reactor.Load()
	for {
		select {
		case <-s.shutdown:
			return nil
		default:
		}

		timeout := time.Duration(-1)
		if s.config.IdleTimeout > 0 {
			if d, ok := s.timers.TimeUntilNext(time.Now()); ok {
				timeout = d
			}
		}

		events, err := r.Poll(timeout)
		if err != nil {
			return fmt.Errorf("HTTP poll: %w", err)
		}

		for _, ev := range events {
			if ev.Fd == s.listenFd {
				s.acceptAll()
				continue
			}
			s.dispatch(ev)
		}

		s.drainCompletions()
		if s.config.IdleTimeout > 0 {
			s.evictExpired(time.Now())
		}
	}
}

// acceptAll accepts pending connections: until EAGAIN with an edge-triggered
// listener, once otherwise.
func (s *HTTPAdapter) acceptAll() {
	for {
		fd, peer, err := acceptConn(s.listenFd)
		if err != nil {
			if !isTemporary(err) {
				logger.Warn("Error accepting HTTP connection: %v", err)
			}
			return
		}
		s.admit(fd, peer)
		if !s.config.listenEdge() {
			return
		}
	}
}

func (s *HTTPAdapter) admit(fd int, peer string) {
	if len(s.conns) >= s.config.MaxConnections {
		logger.Warn("HTTP clients full, refusing %s", peer)
		s.reject(fd, "busy")
		return
	}
	if !s.limiter.Allow() {
		logger.Debug("HTTP accept rate exceeded, refusing %s", peer)
		s.reject(fd, "rate")
		return
	}

	s.nextGen++
	c := newHTTPConnection(s, fd, peer, s.nextGen)
	if err := s.reactor.Load().Register(fd, s.connInterest(reactor.Readable)); err != nil {
		logger.Warn("Failed to register HTTP connection from %s: %v", peer, err)
		_ = c.Close()
		return
	}

	s.conns[fd] = c
	if s.config.IdleTimeout > 0 {
		s.timers.Add(fd, s.config.IdleTimeout)
	}

	s.accepted.Add(1)
	count := s.connCount.Add(1)
	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(count)
	logger.Debug("HTTP connection accepted from %s (fd=%d conn=%s active=%d)", peer, fd, c.id, count)
}

// reject answers a socket that never enters the live table.
func (s *HTTPAdapter) reject(fd int, reason string) {
	if _, err := sysWrite(fd, s.busyResp); err != nil {
		logger.Debug("HTTP busy response: %v", err)
	}
	_ = sysClose(fd)
	s.rejected.Add(1)
	s.metrics.RecordConnectionRejected(reason)
}

func (s *HTTPAdapter) dispatch(ev reactor.Event) {
	c, ok := s.conns[ev.Fd]
	if !ok {
		return
	}
	if c.busy {
		logger.Warn("HTTP event for busy connection %s (fd=%d)", c.id, c.fd)
		if ev.Mask.Closed() {
			s.closeConn(c, "peer")
		}
		return
	}

	switch {
	case ev.Mask.Closed():
		s.closeConn(c, "peer")
	case ev.Mask.Readable():
		s.extend(c)
		s.submit(c, c.handleRead)
	case ev.Mask.Writable():
		s.extend(c)
		s.submit(c, c.handleWrite)
	default:
		logger.Error("Unexpected HTTP event %#x on fd %d", ev.Mask, ev.Fd)
	}
}

func (s *HTTPAdapter) extend(c *HTTPConnection) {
	if s.config.IdleTimeout > 0 {
		s.timers.Adjust(c.fd, s.config.IdleTimeout)
	}
}

func (s *HTTPAdapter) submit(c *HTTPConnection, step func(context.Context) action) {
	c.busy = true
	c.beginTask()
	fd, gen := c.fd, c.gen

	err := s.pool.Submit(func() {
		act := actionClose
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic in HTTP connection handler from %s: %v", c.peer, r)
				s.metrics.RecordTaskPanic()
				c.reason = "error"
				act = actionClose
			}
			if c.endTask() {
				if err := c.Close(); err != nil {
					logger.Debug("HTTP close abandoned fd %d: %v", fd, err)
				}
				return
			}
			s.complete(completion{fd: fd, gen: gen, act: act})
		}()
		act = c.run(s.shutdownCtx, step)
	})
	if err != nil {
		c.endTask()
		c.busy = false
		s.closeConn(c, "shutdown")
		return
	}
	s.metrics.SetPendingTasks(s.pool.Stats().Pending)
}

// complete is called from workers.
func (s *HTTPAdapter) complete(comp completion) {
	s.compMu.Lock()
	s.completions.Add(comp)
	s.compMu.Unlock()

	if r := s.reactor.Load(); r != nil {
		if err := r.Wake(); err != nil && !errors.Is(err, reactor.ErrClosed) {
			logger.Debug("HTTP reactor wake: %v", err)
		}
	}
}

func (s *HTTPAdapter) drainCompletions() {
	s.compMu.Lock()
	s.batch = s.batch[:0]
	for s.completions.Length() > 0 {
		s.batch = append(s.batch, s.completions.Remove().(completion))
	}
	s.compMu.Unlock()

	for _, comp := range s.batch {
		s.apply(comp)
	}
}

func (s *HTTPAdapter) apply(comp completion) {
	c, ok := s.conns[comp.fd]
	if !ok || c.gen != comp.gen {
		return
	}
	c.busy = false

	if c.closePending {
		s.closeConn(c, c.closeReason)
		return
	}

	var dir reactor.Interest
	switch comp.act {
	case actionRead:
		dir = reactor.Readable
	case actionWrite:
		dir = reactor.Writable
	default:
		s.closeConn(c, c.reason)
		return
	}

	if err := s.reactor.Load().Modify(c.fd, s.connInterest(dir)); err != nil {
		logger.Debug("HTTP re-arm fd %d: %v", c.fd, err)
		s.closeConn(c, "error")
	}
}

func (s *HTTPAdapter) evictExpired(now time.Time) {
	for _, fd := range s.timers.PopExpired(now) {
		c, ok := s.conns[fd]
		if !ok {
			continue
		}
		logger.Debug("HTTP connection %s idle for %v, closing", c.peer, s.config.IdleTimeout)
		s.closeConn(c, "timeout")
	}
}

// closeConn removes c from the table, the timer heap and the reactor, then
// closes it. A busy connection is only marked; the completion finishes the
// job.
func (s *HTTPAdapter) closeConn(c *HTTPConnection, reason string) {
	if reason == "" {
		reason = "done"
	}
	if c.busy {
		c.closePending = true
		c.closeReason = reason
		return
	}
	if cur, ok := s.conns[c.fd]; !ok || cur != c {
		return
	}

	delete(s.conns, c.fd)
	s.timers.Remove(c.fd)
	if err := s.reactor.Load().Unregister(c.fd); err != nil {
		logger.Debug("HTTP unregister fd %d: %v", c.fd, err)
	}
	if err := c.Close(); err != nil {
		logger.Debug("HTTP close fd %d: %v", c.fd, err)
	}

	count := s.connCount.Add(-1)
	s.metrics.RecordConnectionClosed(reason)
	s.metrics.SetActiveConnections(count)
	logger.Debug("HTTP connection closed from %s (conn=%s reason=%s active=%d)", c.peer, c.id, reason, count)
}

// abandon drops a connection whose task is still running after the
// shutdown timeout. The socket is shut down so the task's I/O fails fast,
// but the descriptor stays open until the task lets go of it; closing it
// here would let a later open() reuse the number under the task.
func (s *HTTPAdapter) abandon(c *HTTPConnection) {
	delete(s.conns, c.fd)
	s.timers.Remove(c.fd)
	_ = s.reactor.Load().Unregister(c.fd)
	if err := sysShutdown(c.fd); err != nil {
		logger.Debug("HTTP shutdown fd %d: %v", c.fd, err)
	}
	if c.detach() {
		// The task finished after the timeout; its completion was never applied.
		if err := c.Close(); err != nil {
			logger.Debug("HTTP close fd %d: %v", c.fd, err)
		}
	}

	count := s.connCount.Add(-1)
	s.metrics.RecordConnectionClosed("shutdown")
	s.metrics.SetActiveConnections(count)
	logger.Warn("HTTP connection %s (conn=%s) abandoned with a running task", c.peer, c.id)
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Safe to call multiple times and from multiple goroutines.
func (s *HTTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")
		close(s.shutdown)
		s.cancelRequests()
		if r := s.reactor.Load(); r != nil {
			_ = r.Wake()
		}
	})
}

// gracefulShutdown runs on the orchestrator goroutine after the loop exits.
func (s *HTTPAdapter) gracefulShutdown() error {
	r := s.reactor.Load()

	if err := r.Unregister(s.listenFd); err != nil {
		logger.Debug("HTTP unregister listener: %v", err)
	}
	if err := sysClose(s.listenFd); err != nil {
		logger.Debug("Error closing HTTP listener: %v", err)
	}

	pending := s.pool.Stats().Pending
	logger.Info("HTTP graceful shutdown: %d connection(s), %d queued task(s) (timeout: %v)",
		len(s.conns), pending, s.config.ShutdownTimeout)

	drained := make(chan struct{})
	go func() {
		s.pool.Close()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
		s.drainCompletions()
	case <-time.After(s.config.ShutdownTimeout):
		stats := s.pool.Stats()
		err = fmt.Errorf("HTTP shutdown timeout: %d task(s) still running",
			stats.Submitted-stats.Completed)
		logger.Warn("%v - forcing closure", err)
	}

	closed := 0
	for _, c := range s.conns {
		if c.busy {
			s.abandon(c)
		} else {
			s.closeConn(c, "shutdown")
		}
		closed++
	}
	s.timers.Clear()

	if cerr := r.Close(); cerr != nil {
		logger.Debug("HTTP reactor close: %v", cerr)
	}

	if err == nil {
		logger.Info("HTTP graceful shutdown complete: %d connection(s) closed", closed)
	}
	return err
}

// Stop initiates graceful shutdown of the HTTP server and waits for Serve to
// return, or for ctx to be done.
//
// Safe to call concurrently from multiple goroutines.
func (s *HTTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()
	if !s.started.Load() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		logger.Warn("HTTP shutdown context cancelled: %d connection(s) still active: %v",
			s.connCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs server status until shutdown.
func (s *HTTPAdapter) logMetrics() {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			stats := s.pool.Stats()
			logger.Info("HTTP metrics: active_connections=%d accepted=%d rejected=%d pending_tasks=%d completed_tasks=%d",
				s.connCount.Load(), s.accepted.Load(), s.rejected.Load(), stats.Pending, stats.Completed)
		}
	}
}

// Ready is closed once the listener is bound and Port reports it.
func (s *HTTPAdapter) Ready() <-chan struct{} {
	return s.ready
}

// GetActiveConnections returns the current number of live connections.
func (s *HTTPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Accepted returns the number of connections admitted to the table.
func (s *HTTPAdapter) Accepted() uint64 {
	return s.accepted.Load()
}

// Rejected returns the number of sockets answered with a busy response.
func (s *HTTPAdapter) Rejected() uint64 {
	return s.rejected.Load()
}

// Overlaps returns how many times two tasks ran on the same connection at
// once. Always zero unless one-shot arming is broken.
func (s *HTTPAdapter) Overlaps() int64 {
	return s.overlaps.Load()
}

// Port returns the bound port once Ready is closed, the configured port
// before that.
func (s *HTTPAdapter) Port() int {
	if p := s.port.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Protocol returns "HTTP".
func (s *HTTPAdapter) Protocol() string {
	return "HTTP"
}
