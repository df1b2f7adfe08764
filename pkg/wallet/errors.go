package wallet

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the wallet service. Redemption
// policy failures are ordinary typed results for the checkout flow, not
// request-aborting conditions.
var (
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrWalletDisabled           = errors.New("wallet disabled")
	ErrBelowMinimumCartValue    = errors.New("below minimum cart value")
	ErrCategoryNotEligible      = errors.New("category not eligible")
	ErrExceedsPerTransactionCap = errors.New("exceeds per-transaction cap")
	ErrUsagePercentageExceeded  = errors.New("usage percentage exceeded")
	ErrWalletNotFound           = errors.New("wallet not found")
	ErrStorageConflict          = errors.New("storage conflict")
	ErrRedemptionUnavailable    = errors.New("redemption unavailable")
	ErrInvalidUserID            = errors.New("invalid user id")
	ErrInvalidEntryKind         = errors.New("invalid entry kind")
	ErrInvalidSettings          = errors.New("invalid settings")
	ErrInvalidServiceConfig     = errors.New("invalid service config")
	ErrLedgerInconsistent       = errors.New("ledger inconsistent")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
