package model

import "errors"

// Error taxonomy of the simulator core. All of these are recoverable and
// reported to the caller as typed failures; none is fatal to the process.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountDeleted    = errors.New("account is deleted")
	ErrAccountHeldFunds  = errors.New("account still has held funds")
	ErrTokenNotFound     = errors.New("card token not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAmountMismatch    = errors.New("split legs do not sum to the authorized amount")
	ErrDuplicateOrder    = errors.New("order id was already completed")
	ErrOrderNotFound     = errors.New("no payment for order id")
	ErrValidation        = errors.New("validation failed")
)
