package agent

import (
	"errors"
	"fmt"
)

// Common sentinel errors for runtime operations
var (
	// ErrMaxIterations indicates the conversation loop exceeded its iteration limit
	ErrMaxIterations = errors.New("max iterations exceeded")

	// ErrNoProvider indicates no LLM provider is configured
	ErrNoProvider = errors.New("no provider configured")

	// ErrToolNotFound indicates a requested tool doesn't exist
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolTimeout indicates a tool execution timed out
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrToolPanic indicates a tool panicked during execution
	ErrToolPanic = errors.New("tool panicked")

	// ErrNoLoader indicates the registry has no module loader configured
	ErrNoLoader = errors.New("no module loader configured")
)

// ValidationError reports a rejected registry input. It is returned
// synchronously from Register and the validation APIs; it never travels
// through the conversation loop.
type ValidationError struct {
	// Field names the offending input: "name", "schema", "parameters".
	Field string

	// Message explains the rejection in one sentence.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// IsValidationError checks if an error is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
