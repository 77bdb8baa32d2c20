// Package ratelimit implements a fixed-window, per-tenant, per-type
// rate limiter over the shared key-value store. It is an advisory
// layer: any backing-store failure fails open, preferring availability
// over strict enforcement.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/kvstore"
)

// keyPrefix namespaces rate-limit keys in the shared store.
const keyPrefix = "rate_limit:"

// Limit defines one command type's window.
type Limit struct {
	// MaxRequests is the number of admissions per window.
	MaxRequests int `json:"max_requests" yaml:"max_requests"`

	// Window is the fixed window length.
	Window time.Duration `json:"window" yaml:"window"`
}

// DefaultLimits returns the stock per-type limits.
func DefaultLimits() map[command.Type]Limit {
	return map[command.Type]Limit{
		command.TypeProduct:  {MaxRequests: 50, Window: 60 * time.Second},
		command.TypeOrder:    {MaxRequests: 30, Window: 60 * time.Second},
		command.TypeCustomer: {MaxRequests: 20, Window: 60 * time.Second},
		command.TypeTheme:    {MaxRequests: 10, Window: 300 * time.Second},
		command.TypeCode:     {MaxRequests: 5, Window: 300 * time.Second},
		command.TypeStore:    {MaxRequests: 3, Window: 300 * time.Second},
	}
}

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool `json:"allowed"`

	// Remaining is how many admissions are left in the window.
	Remaining int `json:"remaining"`

	// ResetTime is when the current window expires.
	ResetTime time.Time `json:"reset_time"`
}

// Limiter admits or rejects commands per (type, tenant) window.
type Limiter struct {
	store  kvstore.Store
	limits map[command.Type]Limit
	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimits replaces the per-type limit table.
func WithLimits(limits map[command.Type]Limit) Option {
	return func(l *Limiter) {
		l.limits = limits
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a limiter over the given store with the stock limits.
func New(store kvstore.Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limits: DefaultLimits(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one request against the (commandType, tenant) window
// and reports whether it is admitted. The increment that brings the
// count to exactly the limit is still allowed; the next one is not.
// The first increment of a window sets the window's expiry.
func (l *Limiter) Check(ctx context.Context, commandType command.Type, tenantID string) Decision {
	limit, ok := l.limits[commandType]
	if !ok || limit.MaxRequests <= 0 {
		// Unconfigured types are not limited.
		return Decision{Allowed: true, Remaining: -1}
	}

	key := fmt.Sprintf("%s%s:%s", keyPrefix, commandType, tenantID)

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		l.logger.Warn("Rate limit check failed, failing open",
			"type", commandType, "tenant", tenantID, "error", err)
		return Decision{Allowed: true, Remaining: limit.MaxRequests, ResetTime: time.Now().Add(limit.Window)}
	}

	if count == 1 {
		if err := l.store.Expire(ctx, key, limit.Window); err != nil {
			l.logger.Warn("Failed to set rate limit window expiry",
				"type", commandType, "tenant", tenantID, "error", err)
		}
	}

	resetTime := time.Now().Add(limit.Window)
	if ttl, err := l.store.TTL(ctx, key); err == nil && ttl > 0 {
		resetTime = time.Now().Add(ttl)
	}

	remaining := limit.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(limit.MaxRequests),
		Remaining: remaining,
		ResetTime: resetTime,
	}
}
