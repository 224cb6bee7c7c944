package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("operation not valid for current state")
	// ErrGatewayUnavailable marks a transient provider failure; the payment
	// stays pending and the caller may retry with a fresh attempt.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected marks an explicit decline by the provider.
	ErrGatewayRejected = errors.New("payment rejected by gateway")
)
