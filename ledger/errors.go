/*
errors.go - Error types for the wallet engine

ERROR CATEGORIES:
  1. Validation errors - Malformed or missing input; no state change
  2. Not-found errors - Wallet or transaction absent or owned by someone else
  3. Store errors - Persistence failures (network, disk, timeout)
  4. Conflict errors - Optimistic-lock exhaustion, wallet still referenced

PROPAGATION:
  Services never swallow balance errors. A failure after a successful
  revert leaves drift behind; RecalculateWalletBalance is the recovery path.

USAGE:
  if ledger.IsNotFound(err) {
      // 404
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is the root of every missing-or-not-owned lookup.
	ErrNotFound = errors.New("not found")

	// ErrWalletNotFound is returned when a wallet is absent or belongs to another user.
	ErrWalletNotFound = fmt.Errorf("wallet %w", ErrNotFound)

	// ErrTransactionNotFound is returned when a transaction is absent or belongs to another user.
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)

	// ErrStore wraps underlying persistence failures.
	ErrStore = errors.New("store failure")

	// ErrConcurrentModification is returned when a compare-and-swap balance
	// update keeps losing to concurrent writers.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrWalletInUse is returned when deleting a wallet that transactions still reference.
	ErrWalletInUse = errors.New("wallet has transactions")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// WalletInUseError is returned by WalletService.Delete.
type WalletInUseError struct {
	WalletID   WalletID
	References int
}

func (e *WalletInUseError) Error() string {
	return fmt.Sprintf("wallet %s is referenced by %d transaction(s)", e.WalletID, e.References)
}

func (e *WalletInUseError) Unwrap() error { return ErrWalletInUse }

// StoreError records which store operation failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// storeErr wraps err as a StoreError unless it already carries a domain meaning.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrStore) || errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrWalletInUse) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing or foreign resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
