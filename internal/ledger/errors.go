package ledger

import (
	"errors"
	"fmt"

	"smokehouse/internal/saga"
)

var (
	ErrNotFound               = errors.New("ledger: not found")
	ErrMaterialMismatch       = errors.New("ledger: lot material does not match allocation material")
	ErrInsufficientBalance    = errors.New("ledger: insufficient lot balance")
	ErrInvalidQuantity        = errors.New("ledger: invalid quantity")
	ErrConcurrentModification = errors.New("ledger: concurrent modification")
	ErrLotRecalled            = errors.New("ledger: lot is recalled")

	// ErrPartialFailureCompensated matches a write that failed midway and was
	// fully rolled back.
	ErrPartialFailureCompensated = saga.ErrCompensated
	// ErrPartialFailureUncompensated matches a write that failed midway and left
	// records behind; operator follow-up is required.
	ErrPartialFailureUncompensated = saga.ErrUncompensated
)

// InsufficientBalanceError reports an allocation or adjustment that would drive a
// lot below zero. Quantities are in the lot's unit.
type InsufficientBalanceError struct {
	LotID     string
	Requested float64
	Available float64
	Unit      string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("ledger: insufficient balance on lot %s: requested %g %s, available %g %s",
		e.LotID, e.Requested, e.Unit, e.Available, e.Unit)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
