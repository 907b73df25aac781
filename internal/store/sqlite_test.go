package store_test

import (
	"context"
	"testing"

	"github.com/2beens/gymsheets/internal/store"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLiteStore(t.TempDir(), 0)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "k1", "v1"))
	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	// overwrite
	require.NoError(t, s.Set(ctx, "k1", "v1-updated"))
	got, err = s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1-updated", got)

	require.NoError(t, s.Delete(ctx, "k1"))
	_, err = s.Get(ctx, "k1")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)

	// deleting a missing key is not an error
	require.NoError(t, s.Delete(ctx, "k1"))
}

func TestSQLiteStore_Keys(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLiteStore(t.TempDir(), 0)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	require.NoError(t, s.Set(ctx, "cache||v1||sessions", "[]"))
	require.NoError(t, s.Set(ctx, "cache||v1||exercises", "[]"))
	require.NoError(t, s.Set(ctx, "auth||token", "{}"))

	keys, err := s.Keys(ctx, "cache||")
	require.NoError(t, err)
	assert.Equal(t, []string{"cache||v1||exercises", "cache||v1||sessions"}, keys)

	keys, err = s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestSQLiteStore_Quota(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLiteStore(t.TempDir(), 32)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	// key (2) + value (10) = 12 bytes, fits
	require.NoError(t, s.Set(ctx, "k1", "0123456789"))

	// another 12 bytes, 24 total, still fits
	require.NoError(t, s.Set(ctx, "k2", "0123456789"))

	// 12 more would make 36 > 32
	err = s.Set(ctx, "k3", "0123456789")
	assert.ErrorIs(t, err, store.ErrQuotaExceeded)

	// overwriting an existing entry does not double-count it
	require.NoError(t, s.Set(ctx, "k1", "0123456789"))

	// freeing space makes the write fit again
	require.NoError(t, s.Delete(ctx, "k2"))
	require.NoError(t, s.Set(ctx, "k3", "0123456789"))
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.OpenSQLiteStore(dir, 0)
	require.NoError(t, err)

	faker := gofakeit.New(0)
	stored := make(map[string]string)
	for i := 0; i < 50; i++ {
		key := faker.UUID()
		stored[key] = faker.Sentence(5)
		require.NoError(t, s.Set(ctx, key, stored[key]))
	}
	require.NoError(t, s.Close())

	s, err = store.OpenSQLiteStore(dir, 0)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	for key, value := range stored {
		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, len(stored))
}

func TestMemoryStore_QuotaParity(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStoreWithQuota(32)

	require.NoError(t, s.Set(ctx, "k1", "0123456789"))
	require.NoError(t, s.Set(ctx, "k2", "0123456789"))
	assert.ErrorIs(t, s.Set(ctx, "k3", "0123456789"), store.ErrQuotaExceeded)

	require.NoError(t, s.Delete(ctx, "k2"))
	require.NoError(t, s.Set(ctx, "k3", "0123456789"))
}
