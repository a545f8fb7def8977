package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrCustomerAlreadyExists = errors.New("customer_already_exists")
	ErrCustomerNotFound      = errors.New("customer_not_found")
	ErrBalanceNotFound       = errors.New("balance_not_found")
	ErrBalanceAlreadyExists  = errors.New("balance_already_exists")
	ErrOrderNotFound         = errors.New("order_not_found")
	ErrOrderNotPending       = errors.New("order_not_pending")
	ErrInsufficientBalance   = errors.New("insufficient_balance")
	ErrInvariantViolation    = errors.New("invariant_violation")
	ErrLockTimeout           = errors.New("lock_timeout")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
