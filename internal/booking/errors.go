package booking

import "errors"

var (
	ErrNotFound          = errors.New("booking not found")
	ErrNotBookingOwner   = errors.New("booking belongs to another guest")
	ErrInvalidTransition = errors.New("invalid booking payment transition")
	ErrAmountMismatch    = errors.New("paid amount does not match booking total")
)
