// Package badger persists user accounts in an embedded BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/tinyweb/pkg/store/credential"
)

// BadgerCredentialStore implements credential.Store using BadgerDB.
//
// Badger provides MVCC snapshot reads, so lookups run in read-only
// transactions on the pool's read slots while creates run in read-write
// transactions under the pool's single writer. The create path re-checks the
// name inside its transaction, so a concurrent duplicate is reported as
// ErrAlreadyExists rather than overwriting.
//
// Thread Safety:
// Safe for concurrent use by multiple goroutines.
type BadgerCredentialStore struct {
	db      *badger.DB
	pool    *credential.Pool
	metrics credential.Metrics
	closed  atomic.Bool
}

// BadgerCredentialStoreConfig contains configuration for the store.
type BadgerCredentialStoreConfig struct {
	// DBPath is the directory where BadgerDB keeps its files
	DBPath string `mapstructure:"db_path"`

	// InMemory runs Badger without touching disk (tests)
	InMemory bool `mapstructure:"in_memory"`

	// ReadPoolSize bounds concurrent lookups (default: 8)
	ReadPoolSize int `mapstructure:"read_pool_size"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 16)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 8)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`

	// Metrics is optional
	Metrics credential.Metrics `mapstructure:"-"`
}

// NewBadgerCredentialStore opens (or creates) the database.
func NewBadgerCredentialStore(ctx context.Context, config BadgerCredentialStoreConfig) (*BadgerCredentialStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.DBPath == "" && !config.InMemory {
		return nil, fmt.Errorf("db_path is required")
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.DBPath)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 16
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 8
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	metrics := config.Metrics
	store := &BadgerCredentialStore{
		db:      db,
		pool:    credential.NewPool(config.ReadPoolSize, metrics),
		metrics: metrics,
	}
	if store.metrics == nil {
		store.metrics = nopMetrics{}
	}

	if err := store.initializeSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// ReadPoolSize returns the number of concurrent lookup slots.
func (s *BadgerCredentialStore) ReadPoolSize() int {
	return s.pool.Size()
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, time.Duration, error) {}
func (nopMetrics) ObservePoolWait(string, time.Duration)         {}

func (s *BadgerCredentialStore) initializeSchema() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keySchema))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set([]byte(keySchema), []byte(schemaVersion))
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if string(val) != schemaVersion {
				return fmt.Errorf("unsupported schema version %q", val)
			}
			return nil
		})
	})
}

// Pool exposes the access pool, mainly for tests.
func (s *BadgerCredentialStore) Pool() *credential.Pool {
	return s.pool
}

var errClosed = &credential.StoreError{Code: credential.ErrClosed, Message: "store closed"}

func ioError(msg, name string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return &credential.StoreError{Code: credential.ErrClosed, Message: "store closed", Err: err}
	}
	return &credential.StoreError{Code: credential.ErrIOError, Message: msg, Name: name, Err: err}
}

// Lookup implements credential.Store.
func (s *BadgerCredentialStore) Lookup(ctx context.Context, name string) (*credential.User, error) {
	if s.closed.Load() {
		return nil, errClosed
	}

	start := time.Now()
	var user credential.User

	err := s.pool.Read(ctx, func() error {
		return s.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(keyUser(name))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &credential.StoreError{Code: credential.ErrNotFound, Message: "user not found", Name: name}
			}
			if err != nil {
				return ioError("lookup user", name, err)
			}
			return item.Value(func(val []byte) error {
				if err := json.Unmarshal(val, &user); err != nil {
					return ioError("decode user", name, err)
				}
				return nil
			})
		})
	})

	s.metrics.ObserveOperation("lookup", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create implements credential.Store.
func (s *BadgerCredentialStore) Create(ctx context.Context, user *credential.User) error {
	if s.closed.Load() {
		return errClosed
	}

	start := time.Now()

	data, err := json.Marshal(user)
	if err != nil {
		return &credential.StoreError{Code: credential.ErrInvalidArgument, Message: "encode user", Name: user.Name, Err: err}
	}

	err = s.pool.Write(ctx, func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(keyUser(user.Name))
			if err == nil {
				return &credential.StoreError{Code: credential.ErrAlreadyExists, Message: "user already exists", Name: user.Name}
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return ioError("check user", user.Name, err)
			}
			if err := txn.Set(keyUser(user.Name), data); err != nil {
				return ioError("store user", user.Name, err)
			}
			return nil
		})
	})

	s.metrics.ObserveOperation("create", time.Since(start), err)
	return err
}

// Count implements credential.Store.
func (s *BadgerCredentialStore) Count(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, errClosed
	}

	n := 0
	err := s.pool.Read(ctx, func() error {
		return s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = []byte(prefixUser)
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				n++
			}
			return nil
		})
	})
	if err != nil {
		var se *credential.StoreError
		if !errors.As(err, &se) {
			err = ioError("count users", "", err)
		}
	}
	return n, err
}

// Close refuses new operations, waits for in-flight ones and closes the
// database. Subsequent calls return nil.
func (s *BadgerCredentialStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.pool.WaitIdle(context.Background()); err != nil {
		return err
	}
	return s.db.Close()
}
