/*
errors.go - Centralized error types for the cash-drawer engine

PURPOSE:
  All error kinds in one place so callers can disambiguate with errors.Is /
  errors.As. The HTTP layer maps these onto status codes; nothing here is
  retried or silently defaulted inside the core.

ERROR CATEGORIES:
  1. Validation errors     - client-correctable, rejected before any write
  2. Invariant violations  - second open shift, writes against closed shifts
  3. Verification pending  - carry-over mismatch awaiting acknowledgment
  4. Not-found errors      - unknown shift/operator
  5. Storage errors        - wrapped and surfaced as-is (transactional
                             boundary guarantees no partial state)

SEE ALSO:
  - manager.go: produces these errors
  - api/handlers.go: maps them to HTTP responses
*/
package drawer

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrShiftAlreadyOpen is returned when opening would create a second
	// open shift for the operator. Surfaced from the storage-layer
	// uniqueness constraint, so concurrent opens cannot both succeed.
	ErrShiftAlreadyOpen = errors.New("operator already has an open shift")

	// ErrShiftAlreadyClosed is returned when closing a shift that is no
	// longer open. The original closure is never re-computed.
	ErrShiftAlreadyClosed = errors.New("shift already closed")

	// ErrShiftNotFound is returned for an unknown shift id.
	ErrShiftNotFound = errors.New("shift not found")

	// ErrNoActiveShift is returned when an operation requires an open shift
	// (recording a movement, querying drawer state) and none exists.
	ErrNoActiveShift = errors.New("no active shift")

	// ErrOperatorNotFound is returned for an unknown operator id.
	ErrOperatorNotFound = errors.New("operator not found")

	// ErrInvalidAmount is the base for amount validation failures.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrMissingField is the base for missing/blank required fields.
	ErrMissingField = errors.New("missing required field")

	// ErrVerificationRequired is the base for the carry-over confirmation
	// step. Not a failure: the caller must resubmit with an explicit
	// acknowledgment.
	ErrVerificationRequired = errors.New("opening verification required")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the field / figures at fault
// =============================================================================

// InvalidAmountError reports which monetary field was rejected. Reason is
// set when the input never parsed to a decimal at all.
type InvalidAmountError struct {
	Field  string
	Value  decimal.Decimal
	Reason string
}

func (e *InvalidAmountError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid amount for %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid amount for %s: %s", e.Field, e.Value)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// MissingFieldError reports a required field that was blank or malformed.
type MissingFieldError struct {
	Field  string
	Reason string
}

func (e *MissingFieldError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("field %s is required", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// VerificationRequiredError is returned when the counted opening cash does
// not match the previous shift's theoretical cash and the caller has not
// acknowledged the discrepancy. No shift is created. Opening is never
// silently auto-corrected.
type VerificationRequiredError struct {
	OperatorID string
	Expected   decimal.Decimal // previous shift's theoretical cash
	Counted    decimal.Decimal
	Difference decimal.Decimal // Counted - Expected
}

func (e *VerificationRequiredError) Error() string {
	return fmt.Sprintf("opening verification required: expected carry-over %s, counted %s (difference %s)",
		e.Expected, e.Counted, e.Difference)
}

func (e *VerificationRequiredError) Unwrap() error { return ErrVerificationRequired }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrMissingField)
}

// IsConflict reports an invariant violation or a pending verification step:
// the request was well-formed but conflicts with current drawer state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrShiftAlreadyOpen) ||
		errors.Is(err, ErrShiftAlreadyClosed) ||
		errors.Is(err, ErrNoActiveShift) ||
		errors.Is(err, ErrVerificationRequired)
}

// IsNotFound reports a missing shift or operator.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrShiftNotFound) ||
		errors.Is(err, ErrOperatorNotFound)
}
