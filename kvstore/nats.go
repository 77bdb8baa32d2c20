package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Bucket is the KV bucket backing the shared store.
const Bucket = "STOREPILOT_KV"

// envelope wraps stored values with their expiration deadline. NATS KV
// has no per-key TTL, so expiry is carried in the value and enforced
// lazily on read.
type envelope struct {
	Value     string `json:"v"`
	ExpiresAt int64  `json:"exp,omitempty"` // unix nanos, 0 = no expiry
}

func (e envelope) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.UnixNano() > e.ExpiresAt
}

// NATSStore implements Store on a NATS JetStream KV bucket. Incr and
// Expire use revision-based compare-and-swap so concurrent writers
// serialize through the bucket rather than racing in process.
type NATSStore struct {
	kv     jetstream.KeyValue
	logger *slog.Logger
}

// NATSOption configures a NATSStore.
type NATSOption func(*NATSStore)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) NATSOption {
	return func(s *NATSStore) {
		s.logger = logger
	}
}

// NewNATSStore creates a Store backed by a JetStream KV bucket,
// creating the bucket if it does not exist.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, opts ...NATSOption) (*NATSStore, error) {
	kv, err := getOrCreateBucket(ctx, js, Bucket)
	if err != nil {
		return nil, fmt.Errorf("create kv bucket: %w", err)
	}

	s := &NATSStore{kv: kv, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "Storepilot rate-limit, cache, and history storage",
	})
}

// encodeKey maps store keys onto the NATS KV key alphabet. Colons (the
// conventional prefix separator) become dots; anything else outside the
// allowed set becomes an underscore.
func encodeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r == ':':
			b.WriteByte('.')
		case r == '-' || r == '/' || r == '_' || r == '=' || r == '.',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Get returns the value for key, deleting it lazily if expired.
func (s *NATSStore) Get(ctx context.Context, key string) (string, error) {
	_, env, err := s.getLive(ctx, encodeKey(key))
	if err != nil {
		return "", err
	}
	return env.Value, nil
}

// getLive fetches an entry and enforces lazy expiry, returning
// ErrNotFound for missing or expired keys.
func (s *NATSStore) getLive(ctx context.Context, encoded string) (jetstream.KeyValueEntry, envelope, error) {
	entry, err := s.kv.Get(ctx, encoded)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, envelope{}, ErrNotFound
		}
		return nil, envelope{}, fmt.Errorf("kv get: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		return nil, envelope{}, fmt.Errorf("decode kv entry: %w", err)
	}

	if env.expired(time.Now()) {
		if err := s.kv.Delete(ctx, encoded); err != nil {
			s.logger.Debug("Failed to delete expired key", "key", encoded, "error", err)
		}
		return nil, envelope{}, ErrNotFound
	}
	return entry, env, nil
}

// Set stores value under key with an optional TTL.
func (s *NATSStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	env := envelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl).UnixNano()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode kv entry: %w", err)
	}
	if _, err := s.kv.Put(ctx, encodeKey(key), data); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

// GetRev returns the value for key along with its KV revision.
func (s *NATSStore) GetRev(ctx context.Context, key string) (string, uint64, error) {
	entry, env, err := s.getLive(ctx, encodeKey(key))
	if err != nil {
		return "", 0, err
	}
	return env.Value, entry.Revision(), nil
}

// Swap stores value under key if the revision still matches. A rev of
// zero creates the key. Expired keys are removed by the preceding
// GetRev, so a create after expiry succeeds.
func (s *NATSStore) Swap(ctx context.Context, key, value string, ttl time.Duration, rev uint64) error {
	env := envelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl).UnixNano()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode kv entry: %w", err)
	}

	encoded := encodeKey(key)
	if rev == 0 {
		if _, err := s.kv.Create(ctx, encoded, data); err != nil {
			if errors.Is(err, jetstream.ErrKeyExists) {
				return ErrConflict
			}
			return fmt.Errorf("kv create: %w", err)
		}
		return nil
	}

	if _, err := s.kv.Update(ctx, encoded, data, rev); err != nil {
		// Update fails on a revision mismatch; the caller re-reads.
		return ErrConflict
	}
	return nil
}

// Incr atomically increments key via a revision CAS loop. An expired
// counter restarts at 1; its expiry is cleared until Expire is called
// again, matching the fixed-window reset semantics of the rate limiter.
func (s *NATSStore) Incr(ctx context.Context, key string) (int64, error) {
	encoded := encodeKey(key)

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		entry, err := s.kv.Get(ctx, encoded)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			data, err := json.Marshal(envelope{Value: "1"})
			if err != nil {
				return 0, fmt.Errorf("encode kv entry: %w", err)
			}
			if _, err := s.kv.Create(ctx, encoded, data); err != nil {
				if errors.Is(err, jetstream.ErrKeyExists) {
					continue // lost the race, re-read
				}
				return 0, fmt.Errorf("kv create: %w", err)
			}
			return 1, nil
		}
		if err != nil {
			return 0, fmt.Errorf("kv get: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(entry.Value(), &env); err != nil {
			return 0, fmt.Errorf("decode kv entry: %w", err)
		}

		var next int64 = 1
		if !env.expired(time.Now()) {
			current, err := strconv.ParseInt(env.Value, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("value at %q is not an integer: %w", key, err)
			}
			next = current + 1
		} else {
			env.ExpiresAt = 0
		}

		env.Value = strconv.FormatInt(next, 10)
		data, err := json.Marshal(env)
		if err != nil {
			return 0, fmt.Errorf("encode kv entry: %w", err)
		}

		if _, err := s.kv.Update(ctx, encoded, data, entry.Revision()); err != nil {
			// Revision conflict: another writer got there first.
			continue
		}
		return next, nil
	}
}

// Expire sets the TTL of an existing key via CAS.
func (s *NATSStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	encoded := encodeKey(key)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, env, err := s.getLive(ctx, encoded)
		if err != nil {
			return err
		}

		env.ExpiresAt = time.Now().Add(ttl).UnixNano()
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("encode kv entry: %w", err)
		}

		if _, err := s.kv.Update(ctx, encoded, data, entry.Revision()); err != nil {
			continue
		}
		return nil
	}
}

// TTL returns the remaining time to live of key.
func (s *NATSStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	_, env, err := s.getLive(ctx, encodeKey(key))
	if err != nil {
		return 0, err
	}
	if env.ExpiresAt == 0 {
		return NoExpiry, nil
	}
	return time.Until(time.Unix(0, env.ExpiresAt)), nil
}

// Del removes key.
func (s *NATSStore) Del(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, encodeKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}
