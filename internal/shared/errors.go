package shared

import "errors"

var (
	// ErrNotFound indicates an unknown id or an id owned by another tenant.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates a transition attempted from a state that does not allow it.
	ErrInvalidState = errors.New("invalid state")
	// ErrInsufficientStock indicates a movement that would drive quantity on hand negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrContention indicates the stock row lock could not be acquired within the bound. Retryable.
	ErrContention = errors.New("stock row contention")
	// ErrValidation indicates malformed input such as zero quantity.
	ErrValidation = errors.New("validation failed")
	// ErrTenantMismatch indicates a foreign key owned by a different tenant.
	ErrTenantMismatch = errors.New("tenant mismatch")
)

// Retryable reports whether the caller may retry the failed operation with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrContention)
}
