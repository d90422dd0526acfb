// ABOUTME: Tests for the credential store contract across both implementations.
// ABOUTME: Covers sealing, token lifecycle, type-scoped grants, and denial paths.

package creds

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKey is a fixed 32-byte key so tests never hit the generated-key path
// unless they mean to.
var testKey = []byte("0123456789abcdef0123456789abcdef")

// newTestStores builds one store of each implementation sharing the contract.
func newTestStores(t *testing.T) map[string]Store {
	t.Helper()

	mem, err := NewMemoryStore(MemoryStoreConfig{Key: testKey, Logger: slog.Default()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	sqlite, err := NewSQLiteStore(SQLiteStoreConfig{
		Path:   filepath.Join(t.TempDir(), "creds.db"),
		Key:    testKey,
		Logger: slog.Default(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{"memory": mem, "sqlite": sqlite}
}

func TestStoreAndResolve(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := store.Store(ctx, "api_key", "s3cr3t-value")
			require.NoError(t, err)
			require.NotEmpty(t, id)

			token, err := store.IssueToken(ctx, id)
			require.NoError(t, err)
			require.NotEmpty(t, token)
			assert.NotContains(t, token, "s3cr3t-value")

			store.Grant("weather", "api_key")

			secret, err := store.Resolve(ctx, token, "weather")
			require.NoError(t, err)
			assert.Equal(t, "s3cr3t-value", secret)
		})
	}
}

func TestResolve_DeniedWithoutGrant(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := store.Store(ctx, "db_password", "hunter2")
			require.NoError(t, err)
			token, err := store.IssueToken(ctx, id)
			require.NoError(t, err)

			// No grant at all.
			_, err = store.Resolve(ctx, token, "ungrunted")
			assert.ErrorIs(t, err, ErrAccessDenied)

			// Grant for a different type does not help.
			store.Grant("ungrunted", "api_key")
			_, err = store.Resolve(ctx, token, "ungrunted")
			assert.ErrorIs(t, err, ErrAccessDenied)
		})
	}
}

func TestIssueToken_UnknownCredential(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.IssueToken(context.Background(), "no-such-id")
			assert.ErrorIs(t, err, ErrCredentialNotFound)
		})
	}
}

func TestRevoke(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := store.Store(ctx, "api_key", "secret")
			require.NoError(t, err)
			token, err := store.IssueToken(ctx, id)
			require.NoError(t, err)
			store.Grant("conn", "api_key")

			_, err = store.Resolve(ctx, token, "conn")
			require.NoError(t, err)

			require.NoError(t, store.Revoke(ctx, token))

			_, err = store.Resolve(ctx, token, "conn")
			assert.ErrorIs(t, err, ErrTokenRevoked)
		})
	}
}

func TestRevoke_Garbage(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Revoke(context.Background(), "not-a-jwt")
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestResolve_InvalidToken(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Resolve(context.Background(), "garbage", "conn")
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestResolve_ExpiredToken(t *testing.T) {
	mem, err := NewMemoryStore(MemoryStoreConfig{
		Key:      testKey,
		TokenTTL: time.Nanosecond,
		Logger:   slog.Default(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	id, err := mem.Store(ctx, "api_key", "secret")
	require.NoError(t, err)
	token, err := mem.IssueToken(ctx, id)
	require.NoError(t, err)
	mem.Grant("conn", "api_key")

	time.Sleep(10 * time.Millisecond)

	_, err = mem.Resolve(ctx, token, "conn")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestDelete(t *testing.T) {
	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := store.Store(ctx, "api_key", "secret")
			require.NoError(t, err)
			token, err := store.IssueToken(ctx, id)
			require.NoError(t, err)
			store.Grant("conn", "api_key")

			require.NoError(t, store.Delete(ctx, id))

			// Outstanding tokens stop resolving once the credential is gone.
			_, err = store.Resolve(ctx, token, "conn")
			assert.ErrorIs(t, err, ErrCredentialNotFound)

			assert.ErrorIs(t, store.Delete(ctx, id), ErrCredentialNotFound)
		})
	}
}

func TestGeneratedKeyWorksWithinProcess(t *testing.T) {
	mem, err := NewMemoryStore(MemoryStoreConfig{Logger: slog.Default()})
	require.NoError(t, err)

	ctx := context.Background()
	id, err := mem.Store(ctx, "api_key", "ephemeral")
	require.NoError(t, err)
	token, err := mem.IssueToken(ctx, id)
	require.NoError(t, err)
	mem.Grant("conn", "api_key")

	secret, err := mem.Resolve(ctx, token, "conn")
	require.NoError(t, err)
	assert.Equal(t, "ephemeral", secret)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(SQLiteStoreConfig{Path: path, Key: testKey})
	require.NoError(t, err)
	id, err := first.Store(ctx, "api_key", "durable")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(SQLiteStoreConfig{Path: path, Key: testKey})
	require.NoError(t, err)
	defer second.Close()

	token, err := second.IssueToken(ctx, id)
	require.NoError(t, err)
	second.Grant("conn", "api_key")

	secret, err := second.Resolve(ctx, token, "conn")
	require.NoError(t, err)
	assert.Equal(t, "durable", secret)
}

func TestNewMemoryStore_BadKeyLength(t *testing.T) {
	_, err := NewMemoryStore(MemoryStoreConfig{Key: []byte("short")})
	require.Error(t, err)
}
