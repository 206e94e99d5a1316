package presentation

import "fmt"

// ValidationError reports a malformed mutation payload. The mutation is
// rejected before any state change, so a failed call never leaves a
// partially applied update behind.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
