package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes. All of them except
// ErrStorage are expected, user-facing outcomes; ErrStorage wraps an
// infrastructure fault and means the operation was aborted with no
// partial mutation.
var (
	ErrInvalidPrice           = errors.New("invalid_price")
	ErrInvalidItem            = errors.New("invalid_item")
	ErrCapacityExceeded       = errors.New("capacity_exceeded")
	ErrMarketplaceUnavailable = errors.New("marketplace_unavailable")
	ErrNotFound               = errors.New("not_found")
	ErrInsufficientFunds      = errors.New("insufficient_funds")
	ErrEscrowNotFound         = errors.New("escrow_account_not_found")
	ErrStorage                = errors.New("storage_failure")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
