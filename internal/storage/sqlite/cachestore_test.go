package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/vire-analyzer/internal/common"
)

func testStore(t *testing.T) *CacheStore {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache", "market.db"), common.NewSilentLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCacheStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "k", []byte(`[{"close":1}]`), time.Hour))
	got, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte(`[{"close":1}]`), got)

	// Upsert replaces the payload
	require.NoError(t, store.Put(ctx, "k", []byte("v2"), time.Hour))
	got, _, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestCacheStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	require.NoError(t, store.Put(ctx, "k", []byte("v"), time.Minute))

	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	var n int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM market_cache").Scan(&n))
	assert.Equal(t, 0, n, "expired row is deleted on read")
}

func TestCacheStore_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "market.db")

	first, err := Open(ctx, path, common.NewSilentLogger())
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path, common.NewSilentLogger())
	require.NoError(t, err)
	defer second.Close()

	got, found, err := second.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), got)
}
