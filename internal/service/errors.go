package service

import (
	"errors"
	"fmt"
)

// Domain error classes. Handlers map these onto HTTP statuses:
// ErrNotFound -> 404, ErrValidation / InvalidTransitionError -> 400,
// ErrForbidden -> 403, ErrConflict -> 409, anything else -> 500.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflicting concurrent update")
)

// InvalidTransitionError rejects an order status change not permitted by
// the lifecycle state machine. The message names the rejected edge.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition from %s to %s", e.From, e.To)
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
