// Package buffer implements the growable byte buffer used for per-connection
// inbound and outbound data.
//
// A Buffer keeps a read position and a write position over one backing slice:
//
//	| consumed | readable | writable |
//	0      readPos    writePos    len(buf)
//
// Retrieving advances readPos. Appending writes at writePos, first reclaiming
// the consumed prefix and then growing the slice when space runs out.
package buffer

import (
	"golang.org/x/sys/unix"
)

const (
	// DefaultSize is the initial capacity of a Buffer created with New(0).
	DefaultSize = 1024

	// extraSize is the stack overflow area used by ReadFd so a single
	// syscall can accept more data than the buffer currently has room for.
	extraSize = 65536
)

// Buffer is not safe for concurrent use. A connection's buffers are only
// touched by the worker that currently owns the connection.
type Buffer struct {
	buf      []byte
	readPos  int
	writePos int
}

// New creates a buffer with the given initial capacity.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{buf: make([]byte, size)}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int {
	return b.writePos - b.readPos
}

// WritableBytes returns the room left after the write position.
func (b *Buffer) WritableBytes() int {
	return len(b.buf) - b.writePos
}

// PrependableBytes returns the size of the consumed prefix.
func (b *Buffer) PrependableBytes() int {
	return b.readPos
}

// Peek returns the readable region without consuming it. The slice is only
// valid until the next mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readPos:b.writePos]
}

// Retrieve consumes n readable bytes. Retrieving everything resets both
// positions so the whole slice becomes writable again.
func (b *Buffer) Retrieve(n int) {
	if n >= b.ReadableBytes() {
		b.RetrieveAll()
		return
	}
	b.readPos += n
}

// RetrieveUntil consumes bytes up to (not including) offset end of the
// readable region.
func (b *Buffer) RetrieveUntil(end int) {
	b.Retrieve(end)
}

// RetrieveAll discards all readable bytes.
func (b *Buffer) RetrieveAll() {
	b.readPos = 0
	b.writePos = 0
}

// RetrieveAllString consumes and returns the readable bytes as a string.
func (b *Buffer) RetrieveAllString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// Append copies data after the readable region.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	b.writePos += copy(b.buf[b.writePos:], data)
}

// AppendString is Append for strings.
func (b *Buffer) AppendString(s string) {
	b.EnsureWritable(len(s))
	b.writePos += copy(b.buf[b.writePos:], s)
}

// EnsureWritable makes room for at least n more bytes.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	b.makeSpace(n)
}

func (b *Buffer) makeSpace(n int) {
	readable := b.ReadableBytes()
	if b.WritableBytes()+b.PrependableBytes() >= n {
		copy(b.buf, b.buf[b.readPos:b.writePos])
		b.readPos = 0
		b.writePos = readable
		return
	}

	grown := make([]byte, max(2*len(b.buf), readable+n))
	copy(grown, b.buf[b.readPos:b.writePos])
	b.buf = grown
	b.readPos = 0
	b.writePos = readable
}

// ReadFd performs one scatter read from fd into the writable region plus an
// overflow area, appending whatever arrived. It returns the number of bytes
// read; zero with a nil error means the peer closed its write side.
func (b *Buffer) ReadFd(fd int) (int, error) {
	var extra [extraSize]byte
	writable := b.WritableBytes()

	iovs := [][]byte{b.buf[b.writePos:], extra[:]}
	if writable == 0 {
		iovs = iovs[1:]
	}

	n, err := unix.Readv(fd, iovs)
	if err != nil {
		return 0, err
	}
	if n <= writable {
		b.writePos += n
	} else {
		b.writePos = len(b.buf)
		b.Append(extra[:n-writable])
	}
	return n, nil
}

// WriteFd writes the readable region to fd and consumes what was written.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return 0, err
	}
	b.Retrieve(n)
	return n, nil
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}
