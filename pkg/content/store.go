// Package content defines how static files are located and handed to the
// HTTP response writer.
//
// A Store resolves request paths (always slash-separated and rooted, such as
// "/index.html") to objects. The response writer sends an object's bytes as
// the second segment of a vectored write, so implementations return the whole
// body as one contiguous slice: a read-only memory mapping for files on disk,
// a heap slice for remote or in-memory objects.
package content

import (
	"context"
	"io/fs"
	"path"
	"strings"
	"time"
)

// Info describes a stored object without opening it.
type Info struct {
	// Size in bytes.
	Size int64

	// Mode carries permission bits and the directory flag.
	Mode fs.FileMode

	// ModTime is the last modification time, zero when unknown.
	ModTime time.Time
}

// IsDir reports whether the path names a directory.
func (i Info) IsDir() bool {
	return i.Mode.IsDir()
}

// WorldReadable reports whether the "others" read bit is set. Only such
// objects are served.
func (i Info) WorldReadable() bool {
	return i.Mode.Perm()&0o004 != 0
}

// Object is an opened object body.
//
// Bytes stays valid until Close. Close must be called exactly once, after
// the bytes have been fully written to the client.
type Object interface {
	Bytes() []byte
	Len() int
	Close() error
}

// Store is a read-only source of static content.
//
// Implementations must be safe for concurrent use; the server calls them
// from every worker goroutine.
type Store interface {
	// Stat returns object metadata. Missing objects yield ErrContentNotFound.
	Stat(ctx context.Context, name string) (Info, error)

	// Open returns the object body. Directories yield ErrIsDirectory.
	Open(ctx context.Context, name string) (Object, error)

	// Close releases store resources.
	Close() error
}

// CleanPath normalizes a request path into a rooted, slash-separated path
// with no "." or ".." elements. Paths that would climb above the root are
// clamped to it.
func CleanPath(name string) string {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return path.Clean(name)
}

// BytesObject is an Object over a plain byte slice.
type BytesObject []byte

func (b BytesObject) Bytes() []byte { return b }
func (b BytesObject) Len() int      { return len(b) }
func (b BytesObject) Close() error  { return nil }
