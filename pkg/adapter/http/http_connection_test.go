package http

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	protohttp "github.com/marmos91/tinyweb/internal/protocol/http"
	"github.com/marmos91/tinyweb/pkg/content"
)

var errWouldBlock = errors.New("would block")

// sink is a fake socket that takes at most limit bytes per writev and
// refuses every call listed in block.
type sink struct {
	got   bytes.Buffer
	limit int
	calls int
	block map[int]bool
}

func (s *sink) writev(_ int, iovs [][]byte) (int, error) {
	s.calls++
	if s.block[s.calls] {
		return 0, errWouldBlock
	}
	n := 0
	for _, iov := range iovs {
		take := min(len(iov), s.limit-n)
		s.got.Write(iov[:take])
		n += take
		if n == s.limit {
			break
		}
	}
	return n, nil
}

func newTestConnection(t *testing.T, edge bool, w *sink) *HTTPConnection {
	t.Helper()
	mode := 0
	if edge {
		mode = 1
	}
	a := New(HTTPConfig{TriggerMode: mode}, nil)
	c := newHTTPConnection(a, -1, "test", 1)
	c.writev = w.writev
	return c
}

func TestWriteOnceAdvancesBothSegments(t *testing.T) {
	w := &sink{limit: 5}
	c := newTestConnection(t, true, w)
	c.out.AppendString("HEAD:")
	c.reply = &protohttp.Reply{Body: content.BytesObject("0123456789")}

	n, err := c.writeOnce()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 0, c.out.ReadableBytes())
	assert.Equal(t, 0, c.bodyOff)
	assert.Equal(t, 10, c.pending())

	w.limit = 7
	_, err = c.writeOnce()
	require.NoError(t, err)
	assert.Equal(t, 7, c.bodyOff)
	assert.Equal(t, 3, c.pending())

	_, err = c.writeOnce()
	require.NoError(t, err)
	assert.Equal(t, 0, c.pending())
	assert.Equal(t, "HEAD:0123456789", w.got.String())
}

func TestWriteOnceSplitsAcrossBoundary(t *testing.T) {
	w := &sink{limit: 3}
	c := newTestConnection(t, true, w)
	c.out.AppendString("ab")
	c.reply = &protohttp.Reply{Body: content.BytesObject("cdef")}

	_, err := c.writeOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, c.bodyOff)
	assert.Equal(t, "def", string(c.body()))
}

func TestHandleWriteLevelModeRearmsOnPartialProgress(t *testing.T) {
	w := &sink{limit: 100}
	c := newTestConnection(t, false, w)
	c.out.AppendString("H")
	c.reply = &protohttp.Reply{Body: content.BytesObject(strings.Repeat("x", 299))}

	// At most one write per event below the loop threshold.
	for i := 0; i < 2; i++ {
		assert.Equal(t, actionWrite, c.handleWrite(context.Background()))
	}
	assert.Equal(t, actionClose, c.handleWrite(context.Background()))
	assert.Equal(t, "done", c.reason)
	assert.Equal(t, 300, w.got.Len())
	assert.Nil(t, c.reply)
}

func TestHandleWriteEdgeModeLoopsUntilDrained(t *testing.T) {
	w := &sink{limit: 64}
	c := newTestConnection(t, true, w)
	c.out.AppendString("HTTP/1.1 200 OK\r\n\r\n")
	c.reply = &protohttp.Reply{Body: content.BytesObject(strings.Repeat("y", 1000))}

	assert.Equal(t, actionClose, c.handleWrite(context.Background()))
	assert.Equal(t, 19+1000, w.got.Len())
	assert.Greater(t, w.calls, 10)
}

func TestHandleWriteKeepAliveReturnsToReading(t *testing.T) {
	w := &sink{limit: 1 << 20}
	c := newTestConnection(t, true, w)
	c.out.AppendString("resp")
	c.keepAlive = true

	assert.Equal(t, actionRead, c.handleWrite(context.Background()))
	assert.Equal(t, StateReading, c.State())
}

func TestHandleWriteErrorCloses(t *testing.T) {
	w := &sink{limit: 1, block: map[int]bool{1: true}}
	c := newTestConnection(t, true, w)
	c.out.AppendString("resp")

	assert.Equal(t, actionClose, c.handleWrite(context.Background()))
	assert.Equal(t, "error", c.reason)
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "accepted", StateAccepted.String())
	assert.Equal(t, "writing", StateWriting.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", ConnState(42).String())
}

func TestDetachOwnership(t *testing.T) {
	c := newTestConnection(t, false, &sink{})

	// No task running: the orchestrator keeps the close.
	assert.True(t, c.detach())

	c = newTestConnection(t, false, &sink{})
	c.beginTask()
	assert.False(t, c.detach(), "a running task owns the close")
	assert.True(t, c.endTask())

	c = newTestConnection(t, false, &sink{})
	c.beginTask()
	assert.False(t, c.endTask(), "an attached connection is closed by the orchestrator")
}
