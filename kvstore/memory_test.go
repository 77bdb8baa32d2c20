package kvstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/storepilot/storepilot/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	require.NoError(t, store.Set(ctx, "cache:k1", "hello", 0))

	got, err := store.Get(ctx, "cache:k1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := kvstore.NewMemoryStore()

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	current := time.Now()
	store.SetClock(func() time.Time { return current })

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	ttl, err := store.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	// Advance past the deadline: key is gone.
	current = current.Add(2 * time.Minute)

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestMemoryStore_TTLWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", "v", 0))

	ttl, err := store.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, kvstore.NoExpiry, ttl)
}

func TestMemoryStore_IncrFromAbsent(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	n, err := store.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryStore_IncrConcurrent(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	const workers = 20
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := store.Incr(ctx, "counter")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n, err := store.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker+1), n)
}

func TestMemoryStore_IncrResetsAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	current := time.Now()
	store.SetClock(func() time.Time { return current })

	_, err := store.Incr(ctx, "window")
	require.NoError(t, err)
	require.NoError(t, store.Expire(ctx, "window", time.Minute))

	current = current.Add(90 * time.Second)

	n, err := store.Incr(ctx, "window")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "expired window restarts at 1")
}

func TestMemoryStore_SwapCreatesAbsentKey(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	require.NoError(t, store.Swap(ctx, "k", "v1", 0, 0))

	got, rev, err := store.GetRev(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
	assert.NotZero(t, rev)
}

func TestMemoryStore_SwapCreateConflictsWithExisting(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", "v1", 0))

	err := store.Swap(ctx, "k", "v2", 0, 0)
	assert.ErrorIs(t, err, kvstore.ErrConflict)
}

func TestMemoryStore_SwapStaleRevisionConflicts(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", "v1", 0))
	_, rev, err := store.GetRev(ctx, "k")
	require.NoError(t, err)

	// Another writer lands in between.
	require.NoError(t, store.Set(ctx, "k", "v2", 0))

	err = store.Swap(ctx, "k", "v3", 0, rev)
	assert.ErrorIs(t, err, kvstore.ErrConflict)

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got, "conflicting swap must not overwrite")
}

func TestMemoryStore_SwapCurrentRevisionSucceeds(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", "v1", 0))
	_, rev, err := store.GetRev(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, store.Swap(ctx, "k", "v2", 0, rev))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
}

func TestMemoryStore_ExpireMissing(t *testing.T) {
	store := kvstore.NewMemoryStore()

	err := store.Expire(context.Background(), "nope", time.Minute)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestMemoryStore_Del(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	require.NoError(t, store.Del(ctx, "k"))
	require.NoError(t, store.Del(ctx, "k"), "deleting absent key is not an error")

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}
