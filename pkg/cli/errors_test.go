package cli

import (
	"errors"
	"fmt"
	"testing"

	"nocturne-hq/parity/pkg/config"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("proxy.listen_address", "missing required field")

	expected := "config error in proxy.listen_address: missing required field"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("run", underlyingErr)

	if err.Error() != "command run failed: underlying error" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestConfigErrors(t *testing.T) {
	verr := config.ValidationError{Errors: []config.FieldError{
		{Field: "targets.legacy.base_url", Message: "is required"},
		{Field: "parity.sampling_percentage", Message: "must be between 0 and 100"},
	}}

	got := ConfigErrors(fmt.Errorf("load: %w", verr))
	if len(got) != 2 {
		t.Fatalf("got %d errors, want 2", len(got))
	}
	if got[0].Field != "targets.legacy.base_url" || got[1].Message != "must be between 0 and 100" {
		t.Errorf("unexpected errors %v", got)
	}

	if ConfigErrors(errors.New("other")) != nil {
		t.Error("non-validation errors should yield nil")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", NewConfigError("f", "m"), ExitConfig},
		{"validation", fmt.Errorf("wrapped: %w", config.ValidationError{}), ExitConfig},
		{"command", NewCommandError("run", errors.New("boom")), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
