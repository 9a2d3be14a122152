package http

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/tinyweb/internal/buffer"
	"github.com/marmos91/tinyweb/internal/logger"
	protohttp "github.com/marmos91/tinyweb/internal/protocol/http"
)

// ConnState is the position of a connection in its request cycle.
type ConnState int32

const (
	StateAccepted ConnState = iota
	StateReading
	StateProcessing
	StateWriting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateReading:
		return "reading"
	case StateProcessing:
		return "processing"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// action is what a connection step asks the orchestrator to do next.
type action int

const (
	actionRead action = iota
	actionWrite
	actionClose
)

// In level-triggered mode a step keeps writing while more than this many
// bytes are pending, and otherwise leaves the rest to the next event.
const writeLoopThreshold = 10 << 10

const initialBufferSize = 1024

// HTTPConnection is one accepted client socket.
//
// Its I/O steps (handleRead, handleWrite) run on worker goroutines, one at a
// time: the descriptor is registered one-shot and only re-armed after the
// previous step's completion has been applied. busy, closePending and
// closeReason belong to the orchestrator goroutine.
type HTTPConnection struct {
	fd   int
	gen  uint64
	id   string
	peer string
	edge bool

	server *HTTPAdapter
	parser *protohttp.Parser
	in     *buffer.Buffer
	out    *buffer.Buffer

	reply     *protohttp.Reply
	bodyOff   int
	keepAlive bool
	reqStart  time.Time
	iov       [2][]byte
	writev    func(fd int, iovs [][]byte) (int, error)

	// reason is set by a step that returns actionClose.
	reason string
	closed bool
	state  atomic.Int32

	busy         bool
	closePending bool
	closeReason  string

	inflight atomic.Int32

	// taskMu hands the descriptor over between a running task and an
	// orchestrator that gave up waiting for it during shutdown.
	taskMu   sync.Mutex
	running  bool
	detached bool
}

func newHTTPConnection(s *HTTPAdapter, fd int, peer string, gen uint64) *HTTPConnection {
	maxReq := s.config.MaxRequestSize
	c := &HTTPConnection{
		fd:     fd,
		gen:    gen,
		id:     uuid.NewString()[:8],
		peer:   peer,
		edge:   s.config.connEdge(),
		server: s,
		parser: protohttp.NewParser(protohttp.Limits{
			MaxHeaderBytes: maxReq,
			MaxBodyBytes:   maxReq,
		}),
		in:     buffer.New(initialBufferSize),
		out:    buffer.New(initialBufferSize),
		writev: s.writev,
	}
	c.state.Store(int32(StateAccepted))
	return c
}

// State returns the current state. Safe to call from any goroutine.
func (c *HTTPConnection) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *HTTPConnection) setState(st ConnState) {
	c.state.Store(int32(st))
}

// run executes one step and counts overlapping executions on the same
// connection, which one-shot arming must make impossible.
func (c *HTTPConnection) run(ctx context.Context, step func(context.Context) action) action {
	if c.inflight.Add(1) > 1 {
		c.server.overlaps.Add(1)
		logger.Error("HTTP connection %s (fd=%d): overlapping task", c.id, c.fd)
	}
	defer c.inflight.Add(-1)
	return step(ctx)
}

func (c *HTTPConnection) beginTask() {
	c.taskMu.Lock()
	c.running = true
	c.taskMu.Unlock()
}

// endTask reports whether the connection was detached while the task ran.
// If so, the caller owns the descriptor and must close it.
func (c *HTTPConnection) endTask() bool {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()
	c.running = false
	return c.detached
}

// detach gives up the orchestrator's ownership. It reports whether no task
// is running, in which case the caller must close the connection itself.
func (c *HTTPConnection) detach() bool {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()
	c.detached = true
	return !c.running
}

func (c *HTTPConnection) fail(reason string) action {
	c.reason = reason
	return actionClose
}

// handleRead reads what the socket has and tries to decode a request.
func (c *HTTPConnection) handleRead(ctx context.Context) action {
	c.setState(StateReading)

	total := 0
	for {
		n, err := c.in.ReadFd(c.fd)
		if err != nil {
			if isTemporary(err) {
				break
			}
			logger.Debug("HTTP read from %s (fd=%d): %v", c.peer, c.fd, err)
			return c.fail("error")
		}
		if n == 0 {
			return c.fail("peer")
		}
		total += n
		if !c.edge || c.in.ReadableBytes() > c.server.config.MaxRequestSize {
			break
		}
	}

	if total == 0 {
		return actionRead
	}
	c.server.metrics.RecordBytesTransferred("read", int64(total))
	return c.process(ctx)
}

// process decodes buffered input and, once a request is complete or
// rejected, encodes the response.
func (c *HTTPConnection) process(ctx context.Context) action {
	if c.in.ReadableBytes() == 0 && !c.parser.InProgress() {
		c.setState(StateReading)
		return actionRead
	}

	c.setState(StateProcessing)
	if c.reqStart.IsZero() {
		c.reqStart = time.Now()
	}

	status, err := c.parser.Parse(c.in)
	code := protohttp.StatusOK
	var req *protohttp.Request

	switch status {
	case protohttp.NeedMore:
		if c.in.ReadableBytes() <= c.server.config.MaxRequestSize {
			c.setState(StateReading)
			return actionRead
		}
		logger.Debug("HTTP request from %s exceeds %d bytes", c.peer, c.server.config.MaxRequestSize)
		code = protohttp.StatusBadRequest
	case protohttp.Malformed:
		logger.Debug("HTTP malformed request from %s: %v", c.peer, err)
		code = protohttp.StatusBadRequest
	case protohttp.Complete:
		req = c.parser.Request()
		logger.Debug("HTTP %s %s from %s (conn=%s)", req.Method, req.RawPath, c.peer, c.id)
	}

	c.reply = c.server.handler.Respond(ctx, req, code, c.out)
	c.keepAlive = c.reply.KeepAlive
	c.bodyOff = 0

	method := "-"
	if req != nil {
		method = req.Method
	}
	c.server.metrics.RecordRequest(method, c.reply.Code, time.Since(c.reqStart))
	c.reqStart = time.Time{}

	c.parser.Reset()
	if code == protohttp.StatusBadRequest {
		// The rest of the stream cannot be framed.
		c.in.RetrieveAll()
	}

	c.setState(StateWriting)
	return actionWrite
}

// handleWrite sends pending header and body bytes.
func (c *HTTPConnection) handleWrite(ctx context.Context) action {
	c.setState(StateWriting)

	for c.pending() > 0 {
		n, err := c.writeOnce()
		if err != nil {
			if isTemporary(err) {
				return actionWrite
			}
			logger.Debug("HTTP write to %s (fd=%d): %v", c.peer, c.fd, err)
			return c.fail("error")
		}
		if n > 0 {
			c.server.metrics.RecordBytesTransferred("write", int64(n))
		}
		if c.pending() == 0 {
			break
		}
		if n == 0 || (!c.edge && c.pending() <= writeLoopThreshold) {
			return actionWrite
		}
	}

	c.releaseReply()
	if !c.keepAlive {
		return c.fail("done")
	}
	return c.process(ctx)
}

func (c *HTTPConnection) body() []byte {
	if c.reply == nil || c.reply.Body == nil {
		return nil
	}
	return c.reply.Body.Bytes()[c.bodyOff:]
}

func (c *HTTPConnection) pending() int {
	return c.out.ReadableBytes() + len(c.body())
}

// writeOnce issues one vectored write of the header and body segments and
// advances both cursors by the bytes accepted.
func (c *HTTPConnection) writeOnce() (int, error) {
	iovs := c.iov[:0]
	if c.out.ReadableBytes() > 0 {
		iovs = append(iovs, c.out.Peek())
	}
	if b := c.body(); len(b) > 0 {
		iovs = append(iovs, b)
	}

	n, err := c.writev(c.fd, iovs)
	if err != nil {
		return 0, err
	}

	if head := c.out.ReadableBytes(); n >= head {
		c.out.RetrieveAll()
		c.bodyOff += n - head
	} else {
		c.out.Retrieve(n)
	}
	return n, nil
}

func (c *HTTPConnection) releaseReply() {
	if c.reply == nil {
		return
	}
	if err := c.reply.Close(); err != nil {
		logger.Debug("HTTP release body %s: %v", c.reply.Path, err)
	}
	c.reply = nil
	c.bodyOff = 0
}

// Close releases the response body and the descriptor. It runs once nothing
// else can touch the connection: on the orchestrator after unregistering,
// or on the last task of a connection abandoned at shutdown.
func (c *HTTPConnection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.setState(StateClosed)
	c.releaseReply()
	return sysClose(c.fd)
}
