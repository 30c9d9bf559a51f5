package store

import (
	"errors"
	"fmt"
)

// OperationError is a domain error whose text is meant for the user.
// Handlers report the reason verbatim and typically delete the
// originating command; anything else is an internal failure.
type OperationError struct {
	Reason string
}

func (e *OperationError) Error() string { return e.Reason }

// NewOperationError builds a user-visible domain error.
func NewOperationError(reason string) *OperationError {
	return &OperationError{Reason: reason}
}

// NewOperationErrorf is the printf variant of NewOperationError.
func NewOperationErrorf(format string, args ...any) *OperationError {
	return &OperationError{Reason: fmt.Sprintf(format, args...)}
}

// AsOperationError unwraps err to an OperationError, if it is one.
func AsOperationError(err error) (*OperationError, bool) {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
