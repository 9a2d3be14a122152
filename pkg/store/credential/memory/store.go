// Package memory keeps user accounts in a map. Contents are lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/tinyweb/pkg/store/credential"
)

// MemoryCredentialStore implements credential.Store in memory.
type MemoryCredentialStore struct {
	pool    *credential.Pool
	metrics credential.Metrics

	mu     sync.RWMutex
	users  map[string]credential.User
	closed bool
}

// MemoryCredentialStoreConfig configures the store.
type MemoryCredentialStoreConfig struct {
	ReadPoolSize int
	Metrics      credential.Metrics
}

func NewMemoryCredentialStore(cfg MemoryCredentialStoreConfig) *MemoryCredentialStore {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &MemoryCredentialStore{
		pool:    credential.NewPool(cfg.ReadPoolSize, cfg.Metrics),
		metrics: metrics,
		users:   make(map[string]credential.User),
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, time.Duration, error) {}
func (nopMetrics) ObservePoolWait(string, time.Duration)         {}

// Pool exposes the access pool, mainly for tests.
func (s *MemoryCredentialStore) Pool() *credential.Pool {
	return s.pool
}

func (s *MemoryCredentialStore) checkOpen() error {
	if s.closed {
		return &credential.StoreError{Code: credential.ErrClosed, Message: "store closed"}
	}
	return nil
}

// Lookup implements credential.Store.
func (s *MemoryCredentialStore) Lookup(ctx context.Context, name string) (*credential.User, error) {
	start := time.Now()
	var user *credential.User

	err := s.pool.Read(ctx, func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		if err := s.checkOpen(); err != nil {
			return err
		}
		u, ok := s.users[name]
		if !ok {
			return &credential.StoreError{Code: credential.ErrNotFound, Message: "user not found", Name: name}
		}
		user = &u
		return nil
	})

	s.metrics.ObserveOperation("lookup", time.Since(start), err)
	return user, err
}

// Create implements credential.Store.
func (s *MemoryCredentialStore) Create(ctx context.Context, user *credential.User) error {
	start := time.Now()

	err := s.pool.Write(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.checkOpen(); err != nil {
			return err
		}
		if _, ok := s.users[user.Name]; ok {
			return &credential.StoreError{Code: credential.ErrAlreadyExists, Message: "user already exists", Name: user.Name}
		}
		s.users[user.Name] = *user
		return nil
	})

	s.metrics.ObserveOperation("create", time.Since(start), err)
	return err
}

// Count implements credential.Store.
func (s *MemoryCredentialStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.Read(ctx, func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if err := s.checkOpen(); err != nil {
			return err
		}
		n = len(s.users)
		return nil
	})
	return n, err
}

// Close implements credential.Store.
func (s *MemoryCredentialStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
