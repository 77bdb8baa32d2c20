// Package kvstore provides the shared key-value store used by the rate
// limiter, response cache, and tenant history. Implementations must make
// Incr atomic: concurrent callers on the same key may never observe the
// same count.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

// ErrConflict is returned by Swap when the key was written after the
// revision was read. Callers re-read and retry.
var ErrConflict = errors.New("key modified concurrently")

// NoExpiry is returned by TTL for keys without an expiration.
const NoExpiry = time.Duration(-1)

// Store is the key-value capability the pipeline consumes. Keys are
// opaque strings; callers namespace them with prefixes such as
// "rate_limit:" and "cache:".
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A zero ttl means no expiration.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments the integer value of key by one,
	// creating it at 1 if absent, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// GetRev returns the value for key together with a revision token
	// for Swap, or ErrNotFound.
	GetRev(ctx context.Context, key string) (string, uint64, error)

	// Swap stores value under key only if the key's revision still
	// equals rev, returning ErrConflict otherwise. A rev of zero
	// requires that the key not exist. A zero ttl means no expiration.
	Swap(ctx context.Context, key, value string, ttl time.Duration, rev uint64) error

	// Expire sets the remaining time to live of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining time to live of key, NoExpiry if the
	// key has no expiration, or ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Del removes key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error
}
