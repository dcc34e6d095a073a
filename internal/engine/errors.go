package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound: the account does not exist, is deleted, or
	// belongs to another admin. Never retried.
	ErrAccountNotFound = errors.New("account not found")
	// ErrOrderNotFound: the order does not exist or belongs to another
	// admin. Never retried.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAlreadyClosed: close requested for an order already in CLOSED
	// status. Never retried.
	ErrAlreadyClosed = errors.New("order is already closed")
	// ErrOrderNotOpen: close requested for an order that never opened,
	// so it has no margin or metal to settle.
	ErrOrderNotOpen = errors.New("order is not open")
)

// ValidationError reports a malformed trade draft. It is raised before
// any store or venue interaction, so it never has side effects.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// InsufficientBalanceError carries the figures the chat layer surfaces
// to the user verbatim.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required margin %s exceeds available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}
