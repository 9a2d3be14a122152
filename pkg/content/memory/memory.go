// Package memory provides an in-memory content store, mainly for tests and
// for serving a handful of embedded pages.
package memory

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/tinyweb/pkg/content"
)

type object struct {
	data    []byte
	mode    fs.FileMode
	modTime time.Time
}

// MemoryContentStore keeps objects in a map keyed by cleaned path.
//
// Directories are implicit: any proper prefix of a stored path ending at a
// slash stats as a directory.
type MemoryContentStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{objects: make(map[string]object)}
}

// Put stores data under name with mode 0644.
func (s *MemoryContentStore) Put(name string, data []byte) {
	s.PutWithMode(name, data, 0o644)
}

// PutWithMode stores a copy of data under name with the given permissions.
func (s *MemoryContentStore) PutWithMode(name string, data []byte, mode fs.FileMode) {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[content.CleanPath(name)] = object{data: buf, mode: mode.Perm(), modTime: time.Now()}
}

// Delete removes name if present.
func (s *MemoryContentStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, content.CleanPath(name))
}

func (s *MemoryContentStore) isDirLocked(name string) bool {
	prefix := name
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for p := range s.objects {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Stat implements content.Store.
func (s *MemoryContentStore) Stat(ctx context.Context, name string) (content.Info, error) {
	if err := ctx.Err(); err != nil {
		return content.Info{}, err
	}

	key := content.CleanPath(name)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if obj, ok := s.objects[key]; ok {
		return content.Info{Size: int64(len(obj.data)), Mode: obj.mode, ModTime: obj.modTime}, nil
	}
	if s.isDirLocked(key) {
		return content.Info{Mode: fs.ModeDir | 0o755}, nil
	}
	return content.Info{}, fmt.Errorf("content %s: %w", name, content.ErrContentNotFound)
}

// Open implements content.Store. The returned object shares the stored
// slice, which is never mutated after Put.
func (s *MemoryContentStore) Open(ctx context.Context, name string) (content.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := content.CleanPath(name)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if obj, ok := s.objects[key]; ok {
		return content.BytesObject(obj.data), nil
	}
	if s.isDirLocked(key) {
		return nil, fmt.Errorf("content %s: %w", name, content.ErrIsDirectory)
	}
	return nil, fmt.Errorf("content %s: %w", name, content.ErrContentNotFound)
}

// Close implements content.Store.
func (s *MemoryContentStore) Close() error {
	return nil
}
