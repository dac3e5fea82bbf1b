package maintenance

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned when a cycle is triggered while another is in progress.
var ErrAlreadyRunning = errors.New("maintenance cycle already running")

// CycleError reports which phase of a maintenance cycle failed.
type CycleError struct {
	// Phase is "prune", "rollup" or "persist".
	Phase string
	Cause error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("maintenance %s failed: %v", e.Phase, e.Cause)
}

func (e *CycleError) Unwrap() error {
	return e.Cause
}

// NewCycleError creates a new cycle error.
func NewCycleError(phase string, cause error) *CycleError {
	return &CycleError{Phase: phase, Cause: cause}
}
