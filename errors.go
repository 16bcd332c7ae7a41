package credits

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// Business rule errors. A failed operation leaves every account and the
	// transaction log unchanged.
	ErrInsufficientFunds = errors.New("credits: insufficient funds")
	ErrInvalidAmount     = errors.New("credits: invalid amount")
	ErrNotEligible       = errors.New("credits: not eligible for support credits")
	ErrSameAccount       = errors.New("credits: payer and payee are the same account")
	ErrBankAccount       = errors.New("credits: operation not permitted on the bank account")

	// Lookup errors
	ErrAccountNotFound = errors.New("credits: account not found")
	ErrAccountExists   = errors.New("credits: account already exists")
	ErrInvalidInput    = errors.New("credits: invalid input")

	// Concurrency errors
	ErrConflict    = errors.New("credits: lock contention")
	ErrLockTimeout = errors.New("credits: timed out waiting for account locks")

	// Integrity errors
	ErrBalanceMismatch = errors.New("credits: cached balance does not match transaction log")

	// Store errors
	ErrStoreClosed     = errors.New("credits: store is closed")
	ErrMigrationFailed = errors.New("credits: migration failed")
)

// NotEligibleError explains why a support claim was refused.
type NotEligibleError struct {
	Reason string
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("credits: not eligible for support credits: %s", e.Reason)
}

// Unwrap lets errors.Is match ErrNotEligible.
func (e *NotEligibleError) Unwrap() error {
	return ErrNotEligible
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// IsBusinessRule returns true if the error is a deterministic rejection that
// would fail the same way on retry.
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrNotEligible) ||
		errors.Is(err, ErrSameAccount) ||
		errors.Is(err, ErrBankAccount) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrAccountExists) ||
		errors.Is(err, ErrInvalidInput)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrLockTimeout)
}
