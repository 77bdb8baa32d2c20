package router_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDispatcher returns errs in sequence, then succeeds.
type scriptedDispatcher struct {
	errs  []error
	calls int
}

func (d *scriptedDispatcher) Execute(_ context.Context, _ *command.Command) (map[string]any, error) {
	d.calls++
	if d.calls <= len(d.errs) {
		return nil, d.errs[d.calls-1]
	}
	return map[string]any{"ok": true}, nil
}

// fastPolicy keeps test backoff delays negligible.
func fastPolicy() router.RetryPolicy {
	return router.RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      5 * time.Millisecond,
	}
}

func validCommand() *command.Command {
	return &command.Command{
		Type:       command.TypeProduct,
		Action:     "update",
		Parameters: map[string]any{"productId": "1", "title": "Mug"},
	}
}

func TestRouter_SuccessFirstAttempt(t *testing.T) {
	d := &scriptedDispatcher{}
	r := router.New(d, router.WithRetryPolicy(fastPolicy()))

	result := r.ExecuteCommand(context.Background(), validCommand())

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.APICalls)
	assert.Equal(t, map[string]any{"ok": true}, result.Details)
}

func TestRouter_RetriesThenSucceeds(t *testing.T) {
	d := &scriptedDispatcher{errs: []error{
		errors.New("connection reset"),
		errors.New("gateway timeout"),
	}}
	r := router.New(d, router.WithRetryPolicy(fastPolicy()))

	result := r.ExecuteCommand(context.Background(), validCommand())

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.APICalls, "every attempt counts, including failures")
}

func TestRouter_ExhaustsAttempts(t *testing.T) {
	d := &scriptedDispatcher{errs: []error{
		errors.New("boom"), errors.New("boom"), errors.New("boom"), errors.New("boom"),
	}}
	r := router.New(d, router.WithRetryPolicy(fastPolicy()))

	result := r.ExecuteCommand(context.Background(), validCommand())

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.APICalls)
	assert.Contains(t, result.Error, "boom")
}

func TestRouter_RateLimitErrorNotRetried(t *testing.T) {
	d := &scriptedDispatcher{errs: []error{
		errors.New("shopify rate limit exceeded (status 429)"),
		errors.New("should never be reached"),
	}}
	r := router.New(d, router.WithRetryPolicy(fastPolicy()))

	result := r.ExecuteCommand(context.Background(), validCommand())

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.APICalls, "rate limit errors fail immediately")
	assert.Equal(t, 1, d.calls)
}

func TestRouter_ValidationErrorNotRetried(t *testing.T) {
	d := &scriptedDispatcher{errs: []error{
		errors.New("shopify validation failed (status 422)"),
	}}
	r := router.New(d, router.WithRetryPolicy(fastPolicy()))

	result := r.ExecuteCommand(context.Background(), validCommand())

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.APICalls)
}

func TestRouter_InvalidCommandNoDispatch(t *testing.T) {
	d := &scriptedDispatcher{}
	r := router.New(d, router.WithRetryPolicy(fastPolicy()))

	result := r.ExecuteCommand(context.Background(), &command.Command{
		Type:       command.TypeProduct,
		Action:     "update",
		Parameters: map[string]any{}, // missing productId
	})

	assert.False(t, result.Success)
	assert.Zero(t, result.APICalls)
	assert.Zero(t, d.calls, "invalid commands never reach dispatch")
}

func TestRouter_UnknownTypeTerminal(t *testing.T) {
	d := &scriptedDispatcher{}
	r := router.New(d, router.WithRetryPolicy(fastPolicy()))

	result := r.ExecuteCommand(context.Background(), &command.Command{
		Type:   command.Type("warehouse"),
		Action: "create",
	})

	assert.False(t, result.Success)
	assert.Zero(t, d.calls)
}

func TestRouter_CancellationStopsRetries(t *testing.T) {
	d := &scriptedDispatcher{errs: []error{
		errors.New("transient"), errors.New("transient"), errors.New("transient"),
	}}
	r := router.New(d, router.WithRetryPolicy(router.RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  time.Hour, // cancellation must interrupt the backoff
		BackoffFactor: 2,
		MaxDelay:      time.Hour,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := r.ExecuteCommand(ctx, validCommand())

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.APICalls, "no retry after cancellation is observed")
	assert.Less(t, time.Since(start), time.Second)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, router.IsRetryable(errors.New("connection refused")))
	assert.True(t, router.IsRetryable(errors.New("shopify API error (status 500)")))
	assert.False(t, router.IsRetryable(errors.New("validation failed: parameter missing")))
	assert.False(t, router.IsRetryable(errors.New("Rate Limit exceeded")))
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := router.DefaultRetryPolicy()
	require.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialDelay)
	assert.Equal(t, 2.0, p.BackoffFactor)
	assert.Equal(t, 10*time.Second, p.MaxDelay)
}
