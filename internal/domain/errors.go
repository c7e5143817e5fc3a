package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Sentinel errors forming the gateway error taxonomy. Callers match them
// with errors.Is.
var (
	// ErrInvalidRequest marks a caller error; never retried, no provider
	// call is made and no quota is consumed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownModel marks a logical model id the registry does not know.
	ErrUnknownModel = errors.New("unknown model")

	// ErrProviderUnavailable marks a provider call that failed after all
	// retry attempts were exhausted. Retryable by the caller.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrStreamInterrupted marks a mid-stream failure after partial
	// output was already delivered. The caller must treat the output as
	// incomplete; the gateway never resumes automatically.
	ErrStreamInterrupted = errors.New("stream interrupted")
)

// RateLimitError is returned when a user has exhausted the daily quota.
// ResetAt is the next midnight in the gateway's configured time zone.
type RateLimitError struct {
	UserID  string
	Limit   int
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("daily request limit of %d exceeded for user %s, resets at %s",
		e.Limit, e.UserID, e.ResetAt.Format(time.RFC3339))
}

// SchemaValidationError is returned when a provider's structured output
// cannot be parsed into the requested schema. Not retried: replaying the
// same prompt is unlikely to help without caller intervention.
type SchemaValidationError struct {
	Schema string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("response does not satisfy schema %q: %s", e.Schema, e.Reason)
}

// ProviderError carries the HTTP status of a failed provider call so the
// retry policy can classify it.
type ProviderError struct {
	Provider   string
	StatusCode int // zero when the request never reached the provider
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s call failed: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether retrying the call may succeed: provider rate
// limits, request timeouts and server-side errors qualify.
func (e *ProviderError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	case e.StatusCode == 0:
		// No status means the call never completed (connection reset,
		// timeout). Let IsTransient inspect the wrapped error.
		return isNetworkTransient(e.Err)
	default:
		return false
	}
}

// IsTransient classifies an error for the retry policy. Anything not
// recognized as transient is treated as permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var schemaErr *SchemaValidationError
	if errors.As(err, &schemaErr) {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Transient()
	}

	return isNetworkTransient(err)
}

func isNetworkTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
