package grant

import (
	"errors"
	"fmt"

	"github.com/xraph/grant/allocation"
	"github.com/xraph/grant/settlement"
	"github.com/xraph/grant/tier"
	"github.com/xraph/grant/types"
	"github.com/xraph/grant/vesting"
)

// Sentinel errors for common failure scenarios. Errors owned by a leaf
// package are re-exported here so callers only need this package.
var (
	// General errors
	ErrNotFound      = errors.New("grant: not found")
	ErrUnauthorized  = errors.New("grant: unauthorized")
	ErrInvalidInput  = errors.New("grant: invalid input")
	ErrInvalidConfig = errors.New("grant: invalid configuration")

	// Vesting errors
	ErrInvalidSchedule  = vesting.ErrInvalidSchedule
	ErrNotBeneficiary   = errors.New("grant: caller is not a beneficiary")
	ErrAlreadyRevoked   = errors.New("grant: account already revoked")
	ErrNotRevocable     = errors.New("grant: account is not revocable")
	ErrNothingClaimable = errors.New("grant: nothing to claim")

	// Sale errors
	ErrRegistrationClosed = errors.New("grant: registration window closed")
	ErrSaleClosed         = errors.New("grant: sale window closed")
	ErrAlreadyRegistered  = errors.New("grant: already registered")
	ErrNotRegistered      = errors.New("grant: not registered")
	ErrWrongToken         = errors.New("grant: stake reported in wrong token")
	ErrInsufficientStake  = errors.New("grant: insufficient stake amount")
	ErrWrongPaymentToken  = errors.New("grant: payment from wrong token")
	ErrBelowMinimumCap    = allocation.ErrBelowMinimumCap
	ErrAboveMaximumCap    = allocation.ErrAboveMaximumCap
	ErrNoParticipants     = tier.ErrNoParticipants

	// Arithmetic errors
	ErrArithmeticOverflow  = types.ErrOverflow
	ErrArithmeticUnderflow = types.ErrUnderflow
	ErrDivisionByZero      = types.ErrDivisionByZero

	// Concurrency errors
	ErrOperationInProgress = settlement.ErrOperationInProgress
	ErrDuplicateResolution = settlement.ErrDuplicateResolution
	ErrNotPending          = settlement.ErrNotPending
	ErrDispatchFailed      = settlement.ErrDispatchFailed

	// Engine errors
	ErrNotStarted = errors.New("grant: engine not started")
	ErrStopped    = errors.New("grant: engine stopped")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("grant: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap makes every ValidationError match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "grant: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("grant: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, vesting.ErrNotFound) ||
		errors.Is(err, allocation.ErrNotFound) ||
		errors.Is(err, settlement.ErrNotFound)
}

// IsValidation returns true if the error rejected an operation before any
// state changed.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrNotBeneficiary) ||
		errors.Is(err, ErrAlreadyRevoked) ||
		errors.Is(err, ErrNotRevocable) ||
		errors.Is(err, ErrNothingClaimable) ||
		errors.Is(err, ErrRegistrationClosed) ||
		errors.Is(err, ErrSaleClosed) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrNotRegistered) ||
		errors.Is(err, ErrWrongToken) ||
		errors.Is(err, ErrInsufficientStake) ||
		errors.Is(err, ErrWrongPaymentToken) ||
		errors.Is(err, ErrBelowMinimumCap) ||
		errors.Is(err, ErrAboveMaximumCap) ||
		errors.Is(err, ErrNoParticipants)
}

// IsArithmetic returns true if the error is an overflow, underflow or
// division by zero.
func IsArithmetic(err error) bool {
	return errors.Is(err, ErrArithmeticOverflow) ||
		errors.Is(err, ErrArithmeticUnderflow) ||
		errors.Is(err, ErrDivisionByZero)
}

// IsConcurrency returns true if the error comes from the per-participant
// lock or the exactly-once resolution contract.
func IsConcurrency(err error) bool {
	return errors.Is(err, ErrOperationInProgress) ||
		errors.Is(err, ErrDuplicateResolution) ||
		errors.Is(err, ErrNotPending)
}

// notFound tags a store miss with ErrNotFound while keeping the original
// sentinel reachable.
func notFound(err error, what, key string) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %s %q: %w", ErrNotFound, what, key, err)
	}
	return err
}
