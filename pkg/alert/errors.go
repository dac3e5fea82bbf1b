package alert

import "fmt"

// ForwardingError reports an alert that could not be delivered.
type ForwardingError struct {
	AlertID  string
	Attempts int
	Cause    error
}

// Error implements the error interface.
func (e *ForwardingError) Error() string {
	return fmt.Sprintf("alert forwarding failed [id=%s, attempts=%d]: %v", e.AlertID, e.Attempts, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ForwardingError) Unwrap() error {
	return e.Cause
}

// NewForwardingError creates a new ForwardingError.
func NewForwardingError(id string, attempts int, cause error) *ForwardingError {
	return &ForwardingError{AlertID: id, Attempts: attempts, Cause: cause}
}
