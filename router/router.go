// Package router executes validated commands with bounded retry. Error
// classification is an explicit branch: validation and rate-limit
// failures are terminal, everything else retries with exponential
// backoff until the attempt budget runs out.
package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/storepilot/storepilot/command"
)

// Dispatcher runs one command against the external API. The shopify
// dispatch service is the production implementation.
type Dispatcher interface {
	Execute(ctx context.Context, cmd *command.Command) (map[string]any, error)
}

// RetryPolicy bounds the retry loop.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, first try included.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// InitialDelay is the backoff before the second attempt.
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64 `json:"backoff_factor" yaml:"backoff_factor"`

	// MaxDelay caps the backoff.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`
}

// DefaultRetryPolicy returns the stock policy: three attempts, one
// second initial delay doubling up to ten seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  1000 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      10000 * time.Millisecond,
	}
}

// Router dispatches validated commands with retry.
type Router struct {
	dispatcher Dispatcher
	policy     RetryPolicy
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Router) {
		r.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// New creates a router over the given dispatcher.
func New(dispatcher Dispatcher, opts ...Option) *Router {
	r := &Router{
		dispatcher: dispatcher,
		policy:     DefaultRetryPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExecuteCommand validates and runs one command, retrying retryable
// failures. APICalls in the result counts every attempt regardless of
// outcome. Attempts are strictly sequential; observing cancellation
// aborts the loop without starting another attempt.
func (r *Router) ExecuteCommand(ctx context.Context, cmd *command.Command) *command.Result {
	if err := command.Validate(cmd); err != nil {
		return &command.Result{Success: false, Error: err.Error()}
	}

	result := &command.Result{}
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		result.APICalls++

		details, err := r.dispatcher.Execute(ctx, cmd)
		if err == nil {
			result.Success = true
			result.Details = details
			return result
		}
		lastErr = err

		if !IsRetryable(err) {
			r.logger.Warn("Command failed with terminal error",
				"type", cmd.Type, "action", cmd.Action, "error", err)
			result.Error = err.Error()
			return result
		}

		if ctx.Err() != nil {
			result.Error = ctx.Err().Error()
			return result
		}

		if attempt < r.policy.MaxAttempts {
			delay := r.backoff(attempt)
			r.logger.Debug("Command attempt failed, retrying",
				"type", cmd.Type,
				"action", cmd.Action,
				"attempt", attempt,
				"max_attempts", r.policy.MaxAttempts,
				"delay", delay,
				"error", err)

			select {
			case <-ctx.Done():
				result.Error = ctx.Err().Error()
				return result
			case <-time.After(delay):
			}
		}
	}

	r.logger.Warn("Command failed after all attempts",
		"type", cmd.Type, "action", cmd.Action, "attempts", result.APICalls, "error", lastErr)
	result.Error = lastErr.Error()
	return result
}

// IsRetryable classifies an execution error. Errors mentioning
// validation or rate limiting will not change on retry.
func IsRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return !strings.Contains(msg, "validation") && !strings.Contains(msg, "rate limit")
}

// backoff returns the delay after the given failed attempt.
func (r *Router) backoff(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= r.policy.BackoffFactor
	}
	if capped := float64(r.policy.MaxDelay); delay > capped {
		delay = capped
	}
	return time.Duration(delay)
}
