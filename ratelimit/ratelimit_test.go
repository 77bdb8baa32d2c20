package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/kvstore"
	"github.com/storepilot/storepilot/ratelimit"
	"github.com/stretchr/testify/assert"
)

func TestLimiter_BoundaryAtLimit(t *testing.T) {
	limiter := ratelimit.New(kvstore.NewMemoryStore())
	ctx := context.Background()

	// Stock product limit is 50 per window. The 50th call is allowed,
	// the 51st is not.
	var last ratelimit.Decision
	for i := 0; i < 50; i++ {
		last = limiter.Check(ctx, command.TypeProduct, "tenant-1")
		assert.True(t, last.Allowed, "call %d", i+1)
	}
	assert.Equal(t, 0, last.Remaining)

	denied := limiter.Check(ctx, command.TypeProduct, "tenant-1")
	assert.False(t, denied.Allowed)
	assert.Equal(t, 0, denied.Remaining)
	assert.False(t, denied.ResetTime.IsZero())
}

func TestLimiter_RemainingCountsDown(t *testing.T) {
	limiter := ratelimit.New(kvstore.NewMemoryStore())
	ctx := context.Background()

	d := limiter.Check(ctx, command.TypeStore, "tenant-1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining) // store limit is 3

	d = limiter.Check(ctx, command.TypeStore, "tenant-1")
	assert.Equal(t, 1, d.Remaining)
}

func TestLimiter_TenantsIndependent(t *testing.T) {
	limiter := ratelimit.New(kvstore.NewMemoryStore(), ratelimit.WithLimits(map[command.Type]ratelimit.Limit{
		command.TypeProduct: {MaxRequests: 1, Window: time.Minute},
	}))
	ctx := context.Background()

	assert.True(t, limiter.Check(ctx, command.TypeProduct, "tenant-1").Allowed)
	assert.False(t, limiter.Check(ctx, command.TypeProduct, "tenant-1").Allowed)

	assert.True(t, limiter.Check(ctx, command.TypeProduct, "tenant-2").Allowed,
		"tenant-2 has its own window")
}

func TestLimiter_TypesIndependent(t *testing.T) {
	limiter := ratelimit.New(kvstore.NewMemoryStore(), ratelimit.WithLimits(map[command.Type]ratelimit.Limit{
		command.TypeProduct: {MaxRequests: 1, Window: time.Minute},
		command.TypeOrder:   {MaxRequests: 1, Window: time.Minute},
	}))
	ctx := context.Background()

	assert.True(t, limiter.Check(ctx, command.TypeProduct, "tenant-1").Allowed)
	assert.False(t, limiter.Check(ctx, command.TypeProduct, "tenant-1").Allowed)
	assert.True(t, limiter.Check(ctx, command.TypeOrder, "tenant-1").Allowed)
}

func TestLimiter_WindowResets(t *testing.T) {
	store := kvstore.NewMemoryStore()
	now := time.Now()
	store.SetClock(func() time.Time { return now })

	limiter := ratelimit.New(store, ratelimit.WithLimits(map[command.Type]ratelimit.Limit{
		command.TypeCode: {MaxRequests: 1, Window: 30 * time.Second},
	}))
	ctx := context.Background()

	assert.True(t, limiter.Check(ctx, command.TypeCode, "tenant-1").Allowed)
	assert.False(t, limiter.Check(ctx, command.TypeCode, "tenant-1").Allowed)

	now = now.Add(31 * time.Second)
	assert.True(t, limiter.Check(ctx, command.TypeCode, "tenant-1").Allowed,
		"a new window starts after expiry")
}

func TestLimiter_FailsOpen(t *testing.T) {
	limiter := ratelimit.New(&failingStore{})

	d := limiter.Check(context.Background(), command.TypeProduct, "tenant-1")
	assert.True(t, d.Allowed, "store failures must not reject requests")
}

func TestLimiter_UnconfiguredTypeUnlimited(t *testing.T) {
	limiter := ratelimit.New(kvstore.NewMemoryStore(), ratelimit.WithLimits(map[command.Type]ratelimit.Limit{}))

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Check(context.Background(), command.TypeProduct, "tenant-1").Allowed)
	}
}

// failingStore errors on every operation.
type failingStore struct{}

var errStoreDown = errors.New("store unavailable")

func (f *failingStore) Get(context.Context, string) (string, error)           { return "", errStoreDown }
func (f *failingStore) Set(context.Context, string, string, time.Duration) error { return errStoreDown }
func (f *failingStore) Incr(context.Context, string) (int64, error)           { return 0, errStoreDown }
func (f *failingStore) Expire(context.Context, string, time.Duration) error   { return errStoreDown }
func (f *failingStore) TTL(context.Context, string) (time.Duration, error)    { return 0, errStoreDown }
func (f *failingStore) Del(context.Context, string) error                     { return errStoreDown }
func (f *failingStore) GetRev(context.Context, string) (string, uint64, error) {
	return "", 0, errStoreDown
}
func (f *failingStore) Swap(context.Context, string, string, time.Duration, uint64) error {
	return errStoreDown
}
