// Package cache provides a best-effort response cache over the shared
// key-value store. Each command type carries its own TTL and size
// bound; oversize writes are dropped with a warning and any store
// failure degrades to a miss. The cache never raises.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/kvstore"
)

// keyPrefix namespaces cache keys in the shared store.
const keyPrefix = "cache:"

// Policy defines one command type's caching behavior.
type Policy struct {
	// TTL is how long entries stay fresh.
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// MaxSize is the serialized byte limit per entry. Larger writes
	// are dropped whole, never partially written.
	MaxSize int `json:"max_size" yaml:"max_size"`
}

// DefaultPolicies returns the stock per-type cache policies.
func DefaultPolicies() map[command.Type]Policy {
	return map[command.Type]Policy{
		command.TypeProduct:  {TTL: 300 * time.Second, MaxSize: 1024 * 1024},
		command.TypeOrder:    {TTL: 60 * time.Second, MaxSize: 512 * 1024},
		command.TypeCustomer: {TTL: 600 * time.Second, MaxSize: 256 * 1024},
		command.TypeTheme:    {TTL: 3600 * time.Second, MaxSize: 2 * 1024 * 1024},
		command.TypeStore:    {TTL: 3600 * time.Second, MaxSize: 5 * 1024 * 1024},
	}
}

// Cache stores typed responses keyed by opaque strings.
type Cache struct {
	store    kvstore.Store
	policies map[command.Type]Policy
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithPolicies replaces the per-type policy table.
func WithPolicies(policies map[command.Type]Policy) Option {
	return func(c *Cache) {
		c.policies = policies
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache over the given store with the stock policies.
func New(store kvstore.Store, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		policies: DefaultPolicies(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// entry wraps cached data with its write timestamp so staleness can be
// judged against the type's TTL on read.
type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"ts"` // unix milliseconds
}

// Set stores data under key with the type's policy. Unserializable or
// oversize data is dropped with a warning.
func (c *Cache) Set(ctx context.Context, key string, commandType command.Type, data any) {
	policy, ok := c.policies[commandType]
	if !ok {
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Warn("Cache write dropped, data not serializable", "key", key, "error", err)
		return
	}

	payload, err := json.Marshal(entry{Data: raw, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		c.logger.Warn("Cache write dropped", "key", key, "error", err)
		return
	}

	if len(payload) > policy.MaxSize {
		c.logger.Warn("Cache write dropped, entry exceeds size limit",
			"key", key, "type", commandType, "size", len(payload), "max_size", policy.MaxSize)
		return
	}

	if err := c.store.Set(ctx, c.storeKey(key, commandType), string(payload), policy.TTL); err != nil {
		c.logger.Warn("Cache write failed", "key", key, "error", err)
	}
}

// Get returns the cached value for key decoded into out, reporting
// whether it was found. Entries older than the type's TTL are evicted
// and treated as a miss; store failures are a miss.
func (c *Cache) Get(ctx context.Context, key string, commandType command.Type, out any) bool {
	policy, ok := c.policies[commandType]
	if !ok {
		return false
	}

	storeKey := c.storeKey(key, commandType)
	raw, err := c.store.Get(ctx, storeKey)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			c.logger.Warn("Cache read failed, treating as miss", "key", key, "error", err)
		}
		return false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.Warn("Evicting corrupt cache entry", "key", key, "error", err)
		c.evict(ctx, storeKey)
		return false
	}

	age := time.Since(time.UnixMilli(e.Timestamp))
	if age > policy.TTL {
		c.evict(ctx, storeKey)
		return false
	}

	if err := json.Unmarshal(e.Data, out); err != nil {
		c.logger.Warn("Cache entry does not match requested shape", "key", key, "error", err)
		return false
	}
	return true
}

// Invalidate removes the entry for key.
func (c *Cache) Invalidate(ctx context.Context, key string, commandType command.Type) {
	c.evict(ctx, c.storeKey(key, commandType))
}

func (c *Cache) evict(ctx context.Context, storeKey string) {
	if err := c.store.Del(ctx, storeKey); err != nil {
		c.logger.Warn("Cache eviction failed", "key", storeKey, "error", err)
	}
}

func (c *Cache) storeKey(key string, commandType command.Type) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, commandType, key)
}
