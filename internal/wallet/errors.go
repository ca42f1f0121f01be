package wallet

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletLocked        = errors.New("wallet is locked")
	ErrStorageConflict     = errors.New("storage conflict")
	ErrDuplicateRef        = errors.New("duplicate external reference")
)
