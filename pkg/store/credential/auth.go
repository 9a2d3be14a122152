package credential

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Authenticator implements registration and login on top of a Store.
type Authenticator struct {
	store Store
	cost  int
}

// NewAuthenticator wraps store. A cost of zero selects bcrypt.DefaultCost.
func NewAuthenticator(store Store, cost int) *Authenticator {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Authenticator{store: store, cost: cost}
}

func validate(name, password string) error {
	if strings.TrimSpace(name) == "" || password == "" {
		return &StoreError{Code: ErrInvalidArgument, Message: "name and password are required"}
	}
	if len(name) > 100 || len(password) > 72 {
		return &StoreError{Code: ErrInvalidArgument, Message: "name or password too long", Name: name}
	}
	return nil
}

// Register creates an account. Taken names yield ErrAlreadyExists.
func (a *Authenticator) Register(ctx context.Context, name, password string) (*User, error) {
	if err := validate(name, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, &StoreError{Code: ErrInvalidArgument, Message: "hash password", Name: name, Err: err}
	}

	user := &User{
		ID:           uuid.New().String(),
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Verify checks name and password. Unknown names and wrong passwords both
// return ErrInvalidCredentials; backend failures are returned as is.
func (a *Authenticator) Verify(ctx context.Context, name, password string) (*User, error) {
	if err := validate(name, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := a.store.Lookup(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return user, nil
}
