package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRejected            = errors.New("transfer rejected")
)

// LedgerError is returned for a single failed transfer attempt.
type LedgerError struct {
	Asset  string
	From   string
	To     string
	Amount decimal.Decimal
	Cause  error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s transfer %s -> %s of %s failed: %v", e.Asset, e.From, e.To, e.Amount.String(), e.Cause)
}

func (e *LedgerError) Unwrap() error {
	return e.Cause
}
