package compare

import (
	"fmt"

	"nocturne-hq/parity/pkg/analysis"
)

// ComparisonError reports that a response body claimed to be JSON but could
// not be parsed.
type ComparisonError struct {
	Target analysis.Target
	Cause  error
}

// Error implements the error interface.
func (e *ComparisonError) Error() string {
	return fmt.Sprintf("%s body is not valid JSON: %v", e.Target, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ComparisonError) Unwrap() error {
	return e.Cause
}

// NewComparisonError creates a new ComparisonError.
func NewComparisonError(target analysis.Target, cause error) *ComparisonError {
	return &ComparisonError{Target: target, Cause: cause}
}
