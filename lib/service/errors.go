package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSettlementFailed  = errors.New("settlement failed")
	ErrInvalidTransition = errors.New("invalid debt status transition")
	ErrDebtNotFound      = errors.New("debt not found")
)

// ValidationError is raised before any transfer is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payment request: %s %s", e.Field, e.Reason)
}

// SettlementFailedError means the restaurant received nothing in either asset.
// Partial holds what did go through before the failure, such as the customer euro transfer.
type SettlementFailedError struct {
	Restaurant   string
	UsdAssetErr  error
	EuroTokenErr error
	Partial      *SettlementResult
}

func (e *SettlementFailedError) Error() string {
	return fmt.Sprintf("settlement failed: restaurant %s could not be paid (usd asset: %v, euro token: %v)", e.Restaurant, e.UsdAssetErr, e.EuroTokenErr)
}

func (e *SettlementFailedError) Is(target error) bool {
	return target == ErrSettlementFailed
}

// DebtStoreError wraps a failed read or write of the debt ledger.
type DebtStoreError struct {
	Op  string
	Err error
}

func (e *DebtStoreError) Error() string {
	return fmt.Sprintf("debt store %s: %v", e.Op, e.Err)
}

func (e *DebtStoreError) Unwrap() error {
	return e.Err
}

type RejectedTransition struct {
	DebtID int64
	From   string
}

// InvalidTransitionError lists every debt of a batch that could not move to To.
// None of the batch was applied.
type InvalidTransitionError struct {
	To       string
	Rejected []RejectedTransition
}

func (e *InvalidTransitionError) Error() string {
	parts := make([]string, 0, len(e.Rejected))
	for _, r := range e.Rejected {
		parts = append(parts, fmt.Sprintf("debt %d (%s)", r.DebtID, r.From))
	}
	return fmt.Sprintf("invalid debt status transition to %s: %s", e.To, strings.Join(parts, ", "))
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
