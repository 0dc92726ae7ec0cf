package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "profile")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "profile", []byte(`{"friendsCount":3}`)))
	value, err := store.Get(ctx, "profile")
	require.NoError(t, err)
	assert.JSONEq(t, `{"friendsCount":3}`, string(value))

	require.NoError(t, store.Put(ctx, "profile", []byte(`{"friendsCount":4}`)))
	value, err = store.Get(ctx, "profile")
	require.NoError(t, err)
	assert.JSONEq(t, `{"friendsCount":4}`, string(value), "put overwrites wholesale")

	require.NoError(t, store.Delete(ctx, "profile"))
	_, err = store.Get(ctx, "profile")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)
	assert.Equal(t, 2, store.Writes())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", value))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestBadgerStoreInMemory(t *testing.T) {
	store, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestBadgerStorePersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "profile", []byte("snapshot")))
	require.NoError(t, store.Close())

	reopened, err := OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "profile")
	require.NoError(t, err)
	assert.Equal(t, "snapshot", string(value))
}

func TestOpenBadgerRequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	require.Error(t, err)
}

func TestSealedStore(t *testing.T) {
	inner := NewMemoryStore()
	sealed, err := NewSealed(inner, strings.Repeat("0f", 32))
	require.NoError(t, err)

	exerciseStore(t, sealed)

	ctx := context.Background()
	require.NoError(t, sealed.Put(ctx, "profile", []byte("secret-profile")))

	raw, err := inner.Get(ctx, "profile")
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("secret-profile")), "value must be encrypted at rest")

	raw[len(raw)-1] ^= 0xff
	require.NoError(t, inner.Put(ctx, "profile", raw))
	_, err = sealed.Get(ctx, "profile")
	assert.ErrorIs(t, err, ErrSealedCorrupt)
}

func TestNewSealedRejectsBadKeys(t *testing.T) {
	_, err := NewSealed(NewMemoryStore(), "zz")
	require.Error(t, err)

	_, err = NewSealed(NewMemoryStore(), "abcd")
	require.Error(t, err)
}

func TestShouldRetrySchema(t *testing.T) {
	assert.True(t, shouldRetrySchema(&pgconn.PgError{Code: "40001"}))
	assert.True(t, shouldRetrySchema(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"})))
	assert.True(t, shouldRetrySchema(context.DeadlineExceeded))
	assert.False(t, shouldRetrySchema(&pgconn.PgError{Code: "42601"}))
	assert.False(t, shouldRetrySchema(errors.New("boom")))
}
