// Package fs serves static content from a local directory using read-only
// memory mappings.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/marmos91/tinyweb/pkg/content"
)

// FSContentStore serves files below a root directory.
//
// Open maps the whole file with PROT_READ/MAP_PRIVATE and closes the
// descriptor immediately; the mapping is released by the returned object's
// Close. Empty files are returned as empty objects without mapping.
//
// Thread Safety:
// Safe for concurrent use. The store holds no mutable state.
type FSContentStore struct {
	root string
}

// FSContentStoreConfig configures the filesystem store.
type FSContentStoreConfig struct {
	// Root is the document root. It must exist and be a directory.
	Root string
}

// NewFSContentStore validates the root directory and returns a store.
func NewFSContentStore(ctx context.Context, cfg FSContentStoreConfig) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", cfg.Root, err)
	}

	st, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root %q: %w", root, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}

	return &FSContentStore{root: root}, nil
}

// Root returns the absolute document root.
func (s *FSContentStore) Root() string {
	return s.root
}

func (s *FSContentStore) resolve(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(content.CleanPath(name)))
}

// Stat implements content.Store.
func (s *FSContentStore) Stat(ctx context.Context, name string) (content.Info, error) {
	if err := ctx.Err(); err != nil {
		return content.Info{}, err
	}

	st, err := os.Stat(s.resolve(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return content.Info{}, fmt.Errorf("content %s: %w", name, content.ErrContentNotFound)
		}
		return content.Info{}, fmt.Errorf("stat %s: %w", name, err)
	}

	return content.Info{
		Size:    st.Size(),
		Mode:    st.Mode(),
		ModTime: st.ModTime(),
	}, nil
}

// Open implements content.Store.
func (s *FSContentStore) Open(ctx context.Context, name string) (content.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.resolve(name))
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("content %s: %w", name, content.ErrContentNotFound)
		case errors.Is(err, os.ErrPermission):
			return nil, fmt.Errorf("content %s: %w", name, content.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("content %s: %w", name, content.ErrIsDirectory)
	}
	if st.Size() == 0 {
		return content.BytesObject(nil), nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", name, err)
	}
	return &mappedObject{data: data}, nil
}

// Close implements content.Store.
func (s *FSContentStore) Close() error {
	return nil
}

type mappedObject struct {
	data []byte
}

func (m *mappedObject) Bytes() []byte { return m.data }
func (m *mappedObject) Len() int      { return len(m.data) }

func (m *mappedObject) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
