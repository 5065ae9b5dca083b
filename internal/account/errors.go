package account

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrAccountNotFound      = errors.New("account not found")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrDuplicateTransaction = errors.New("transaction id already used with a different amount")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationExists    = errors.New("reservation already exists")
	ErrReservationShortfall = errors.New("reservation does not cover settlement")
	ErrAccountExists        = errors.New("account already exists")
)

// InsufficientFundsError represents insufficient funds error with details
type InsufficientFundsError struct {
	UID       int64
	Currency  int32
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: uid=%d currency=%d required=%d available=%d",
		e.UID, e.Currency, e.Required, e.Available)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
