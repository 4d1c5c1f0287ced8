package calendar

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnauthenticated indicates the provider rejected the token.
type ErrUnauthenticated struct {
	Err error
}

func (e *ErrUnauthenticated) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("calendar: unauthenticated: %v", e.Err)
	}
	return "calendar: unauthenticated"
}

func (e *ErrUnauthenticated) Unwrap() error { return e.Err }

// ErrNotFound indicates the referenced event no longer exists.
type ErrNotFound struct {
	RemoteID string
	Err      error
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("calendar: event %q not found", e.RemoteID)
}

func (e *ErrNotFound) Unwrap() error { return e.Err }

// ErrRateLimit indicates the provider throttled the call.
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("calendar: rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrTransient indicates a temporary failure: network, timeout or 5xx.
type ErrTransient struct {
	Err error
}

func (e *ErrTransient) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("calendar: temporarily unavailable: %v", e.Err)
	}
	return "calendar: temporarily unavailable"
}

func (e *ErrTransient) Unwrap() error { return e.Err }

// ErrInvalidRequest indicates the provider or the client rejected the input.
type ErrInvalidRequest struct {
	Reason string
	Err    error
}

func (e *ErrInvalidRequest) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("calendar: invalid request: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("calendar: invalid request: %s", e.Reason)
}

func (e *ErrInvalidRequest) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates the provider returned a malformed payload.
// It is classified as transient.
type ErrInvalidResponse struct {
	Body []byte
	Err  error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("calendar: invalid provider response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// Kind is the normalized error category.
type Kind int

const (
	KindNone Kind = iota
	KindUnauthenticated
	KindNotFound
	KindRateLimited
	KindTransient
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindInvalidRequest:
		return "invalid_request"
	}
	return "unknown"
}

// Retryable reports whether a later attempt may succeed without user action.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindTransient
}

// Classify maps any error onto the taxonomy. Unknown errors are transient.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var unauth *ErrUnauthenticated
	if errors.As(err, &unauth) {
		return KindUnauthenticated
	}
	var nf *ErrNotFound
	if errors.As(err, &nf) {
		return KindNotFound
	}
	var rl *ErrRateLimit
	if errors.As(err, &rl) {
		return KindRateLimited
	}
	var inv *ErrInvalidRequest
	if errors.As(err, &inv) {
		return KindInvalidRequest
	}
	var tr *ErrTransient
	if errors.As(err, &tr) {
		return KindTransient
	}
	var resp *ErrInvalidResponse
	if errors.As(err, &resp) {
		return KindTransient
	}
	// Timeouts, cancellation and network errors land here.
	return KindTransient
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return Classify(err) == KindNotFound
}
