package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the machine-checkable error category surfaced to callers.
// The web layer maps kinds to HTTP status codes; the pipeline itself
// is transport-agnostic.
type Kind string

const (
	KindParseError         Kind = "ParseError"
	KindValidationFailed   Kind = "ValidationFailed"
	KindUpgradeRequired    Kind = "UpgradeRequired"
	KindUnauthorized       Kind = "Unauthorized"
	KindRateLimited        Kind = "RateLimited"
	KindExecutionFailed    Kind = "ExecutionFailed"
	KindFeedbackGeneration Kind = "FeedbackGenerationError"
)

// Error is a structured pipeline failure: a human-readable message
// plus a kind and enough detail for the caller to render an
// actionable prompt.
type Error struct {
	// Kind categorizes the failure.
	Kind Kind `json:"kind"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// MinTier is the minimum subscription tier required. Set for
	// UpgradeRequired.
	MinTier int `json:"min_tier,omitempty"`

	// Attempts is how many execution attempts were made. Set for
	// ExecutionFailed.
	Attempts int `json:"attempts,omitempty"`

	// ResetTime is when the rate-limit window expires. Set for
	// RateLimited.
	ResetTime time.Time `json:"reset_time,omitempty"`

	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the pipeline error kind of err, or empty if err is
// not a pipeline error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// AsError returns err as a pipeline *Error if it is one.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}

func upgradeRequired(minTier int) *Error {
	return &Error{
		Kind:    KindUpgradeRequired,
		Message: fmt.Sprintf("this feature requires subscription tier %d or higher", minTier),
		MinTier: minTier,
	}
}

func rateLimited(resetTime time.Time) *Error {
	return &Error{
		Kind:      KindRateLimited,
		Message:   "rate limit exceeded, try again later",
		ResetTime: resetTime,
	}
}

func executionFailed(attempts int, cause error) *Error {
	return &Error{
		Kind:     KindExecutionFailed,
		Message:  fmt.Sprintf("command failed after %d attempts: %v", attempts, cause),
		Attempts: attempts,
		cause:    cause,
	}
}
