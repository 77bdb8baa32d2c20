// Package history tracks recently executed commands per tenant in the
// shared key-value store. The policy engine reads it to flag repeated
// operations; entries expire with the store key, so history survives
// process restarts and stays consistent across instances without any
// in-process maps.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/kvstore"
)

// keyPrefix namespaces history keys in the shared store.
const keyPrefix = "history:"

// DefaultWindow is how long an executed command stays visible.
const DefaultWindow = 5 * time.Minute

// defaultMaxEntries bounds the stored list per tenant.
const defaultMaxEntries = 50

// Entry records one executed command for a tenant.
type Entry struct {
	Type   command.Type `json:"type"`
	Action string       `json:"action"`
	At     time.Time    `json:"at"`
}

// Tracker reads and writes tenant command history. It is best-effort:
// store failures degrade to an empty history and never propagate.
type Tracker struct {
	store      kvstore.Store
	window     time.Duration
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWindow sets how long entries remain visible.
func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		t.window = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// New creates a history tracker over the given store.
func New(store kvstore.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:      store,
		window:     DefaultWindow,
		maxEntries: defaultMaxEntries,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetClock overrides the time source. Test hook.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Record appends an executed command to the tenant's history, pruning
// entries older than the window. The key's TTL is refreshed so an idle
// tenant's history disappears on its own. The append runs through a
// revision CAS loop so concurrent executions for the same tenant merge
// instead of overwriting each other.
func (t *Tracker) Record(ctx context.Context, tenantID string, cmd *command.Command) {
	key := keyPrefix + tenantID

	for {
		if ctx.Err() != nil {
			return
		}

		raw, rev, err := t.store.GetRev(ctx, key)
		var entries []Entry
		switch {
		case err == nil:
			if uerr := json.Unmarshal([]byte(raw), &entries); uerr != nil {
				t.logger.Warn("Discarding corrupt history", "tenant", tenantID, "error", uerr)
				entries = nil
			}
		case errors.Is(err, kvstore.ErrNotFound):
			rev = 0
		default:
			t.logger.Warn("Failed to read history", "tenant", tenantID, "error", err)
			return
		}

		entries = append(t.prune(entries), Entry{
			Type:   cmd.Type,
			Action: cmd.Action,
			At:     t.now(),
		})
		if len(entries) > t.maxEntries {
			entries = entries[len(entries)-t.maxEntries:]
		}

		data, err := json.Marshal(entries)
		if err != nil {
			t.logger.Warn("Failed to encode history", "tenant", tenantID, "error", err)
			return
		}

		err = t.store.Swap(ctx, key, string(data), t.window, rev)
		if errors.Is(err, kvstore.ErrConflict) {
			continue // another writer landed first, re-read and merge
		}
		if err != nil {
			t.logger.Warn("Failed to store history", "tenant", tenantID, "error", err)
		}
		return
	}
}

// Recent returns the tenant's executed commands within the window,
// oldest first. Missing keys and store errors yield an empty slice.
func (t *Tracker) Recent(ctx context.Context, tenantID string) []Entry {
	raw, err := t.store.Get(ctx, keyPrefix+tenantID)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			t.logger.Warn("Failed to read history", "tenant", tenantID, "error", err)
		}
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		t.logger.Warn("Discarding corrupt history", "tenant", tenantID, "error", err)
		return nil
	}
	return t.prune(entries)
}

// prune drops entries older than the window, in place.
func (t *Tracker) prune(entries []Entry) []Entry {
	cutoff := t.now().Add(-t.window)
	live := entries[:0]
	for _, e := range entries {
		if e.At.After(cutoff) {
			live = append(live, e)
		}
	}
	return live
}
