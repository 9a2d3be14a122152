package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tinyweb/pkg/store/credential"
)

func TestCreateLookupCount(t *testing.T) {
	s := NewMemoryCredentialStore(MemoryCredentialStoreConfig{})
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &credential.User{ID: "1", Name: "alice", PasswordHash: []byte("h")}))
	u, err := s.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1", u.ID)

	_, err = s.Lookup(ctx, "bob")
	assert.True(t, credential.IsNotFound(err))

	err = s.Create(ctx, &credential.User{ID: "2", Name: "alice"})
	assert.True(t, credential.IsAlreadyExists(err))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, credential.DefaultReadPoolSize, s.Pool().Size())
}

func TestClosed(t *testing.T) {
	s := NewMemoryCredentialStore(MemoryCredentialStoreConfig{})
	require.NoError(t, s.Close())

	_, err := s.Lookup(context.Background(), "x")
	code, ok := credential.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, credential.ErrClosed, code)
}
