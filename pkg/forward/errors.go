package forward

import (
	"errors"
	"fmt"
)

var (
	// ErrResponseTooLarge reports a backend response over MaxResponseBytes.
	ErrResponseTooLarge = errors.New("response body too large")

	// ErrForwardingLoop reports a leg refused by a parity instance because it
	// had already been forwarded: the target is the proxy itself and no
	// application is mounted behind it.
	ErrForwardingLoop = errors.New("forwarding loop: target answered 508 for a forwarded request")
)

// CloneError reports that an inbound request could not be buffered for
// forwarding. It is never retried.
type CloneError struct {
	Limit int64
	Cause error
}

// Error implements the error interface.
func (e *CloneError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("clone request: body exceeds %d bytes", e.Limit)
	}
	return fmt.Sprintf("clone request: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *CloneError) Unwrap() error {
	return e.Cause
}

// NewCloneError creates a new CloneError.
func NewCloneError(limit int64, cause error) *CloneError {
	return &CloneError{Limit: limit, Cause: cause}
}

// TransportError describes a leg that never produced an HTTP response.
type TransportError struct {
	Target   string
	URL      string
	Attempts int
	Cause    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport failure after %d attempt(s) [url=%s]: %v", e.Target, e.Attempts, e.URL, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}
