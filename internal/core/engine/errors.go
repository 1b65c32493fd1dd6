package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCancelled is reported when the caller cancels a submission.
	ErrCancelled = errors.New("request cancelled")
	// ErrTimeout is reported when a submission's deadline elapses.
	ErrTimeout = errors.New("request deadline exceeded")
	// ErrRateLimitExceeded matches bucket-scoped 429s that exhausted the retry budget.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrGlobalRateLimitExceeded matches global 429s that exhausted the retry budget.
	ErrGlobalRateLimitExceeded = errors.New("global rate limit exceeded")
	// ErrInvalidCall is reported for calls that cannot be turned into a request.
	ErrInvalidCall = errors.New("invalid call")
)

// TransportError wraps a network-level failure. No bucket state is changed
// and the request is not retried.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError describes a malformed rate limit header. It is tolerated and
// only surfaces on RateLimitInfo.
type DecodeError struct {
	Header string
	Value  string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s=%q: %v", e.Header, e.Value, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RateLimitError is surfaced when a 429 persists past the retry budget.
type RateLimitError struct {
	Global     bool
	Scope      string
	RetryAfter time.Duration
	StatusCode int
	Body       []byte
}

func (e *RateLimitError) Error() string {
	kind := "rate limited"
	if e.Global {
		kind = "globally rate limited"
	}
	return fmt.Sprintf("%s, retry after %s", kind, e.RetryAfter)
}

// Is matches ErrRateLimitExceeded or ErrGlobalRateLimitExceeded.
func (e *RateLimitError) Is(target error) bool {
	if e.Global {
		return target == ErrGlobalRateLimitExceeded
	}
	return target == ErrRateLimitExceeded
}

// HTTPError is surfaced for non-2xx responses other than 429.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}
