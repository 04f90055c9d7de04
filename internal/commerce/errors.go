package commerce

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnreachable indicates a transport-level failure talking to the backend.
	ErrUnreachable = errors.New("commerce: backend unreachable")
	// ErrBadStatus indicates a non-2xx HTTP response.
	ErrBadStatus = errors.New("commerce: unexpected response status")
	// ErrMalformed indicates a response body that does not match the page schema.
	ErrMalformed = errors.New("commerce: malformed response")
)

// FetchError describes why a collection fetch was aborted. No partial result
// accompanies it.
type FetchError struct {
	Collection string
	Offset     int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s at offset %d: HTTP %d: %v", e.Collection, e.Offset, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s at offset %d: %v", e.Collection, e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Kind returns a short label for metrics and logs.
func (e *FetchError) Kind() string {
	switch {
	case errors.Is(e.Err, context.Canceled), errors.Is(e.Err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(e.Err, ErrMalformed):
		return "malformed"
	case errors.Is(e.Err, ErrBadStatus):
		return "bad_status"
	case errors.Is(e.Err, ErrUnreachable):
		return "unreachable"
	default:
		return "other"
	}
}

// retryable reports whether another attempt at the same page may succeed.
func (e *FetchError) retryable() bool {
	if errors.Is(e.Err, ErrUnreachable) {
		return true
	}
	if errors.Is(e.Err, ErrBadStatus) {
		return e.StatusCode == 429 || e.StatusCode >= 500
	}
	return false
}
