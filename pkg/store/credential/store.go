// Package credential stores user accounts for the login and registration
// pages.
//
// Reads and writes go through a Pool: lookups borrow one of a bounded number
// of read slots and may run concurrently, while account creation is
// serialized behind a single writer. Both backends (badger, memory) share
// this discipline so the server behaves the same whichever is configured.
package credential

import (
	"context"
	"time"
)

// User is one stored account.
type User struct {
	// ID is a random UUID assigned on creation.
	ID string `json:"id"`

	// Name is the unique login name.
	Name string `json:"name"`

	// PasswordHash is a bcrypt hash. Plain passwords are never stored.
	PasswordHash []byte `json:"password_hash"`

	CreatedAt time.Time `json:"created_at"`
}

// Store persists users.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Lookup returns the user named name, or a StoreError with ErrNotFound.
	Lookup(ctx context.Context, name string) (*User, error)

	// Create inserts user. A user with the same name yields ErrAlreadyExists.
	Create(ctx context.Context, user *User) error

	// Count returns the number of stored users.
	Count(ctx context.Context) (int, error)

	// Close releases resources. Calls after Close fail with ErrClosed.
	Close() error
}

// Metrics receives store observations. Nil means no collection.
type Metrics interface {
	// ObserveOperation records a lookup or create with its outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// ObservePoolWait records how long a caller waited for a pool slot.
	// kind is "read" or "write".
	ObservePoolWait(kind string, wait time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) ObservePoolWait(string, time.Duration)         {}
