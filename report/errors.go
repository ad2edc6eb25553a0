/*
errors.go - Centralized error types for the reporting engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these onto HTTP statuses; nothing here escapes an
  operation boundary as an unhandled fault.

ERROR CATEGORIES:
  1. Validation errors - malformed input, operation not attempted
  2. State-conflict errors - invalid lifecycle transitions, double links
  3. Data errors - facts in the ledger that cannot produce a sound report
  4. Not-found errors - unknown record ids

None of these are retryable: they are logic/data errors, not transient
I/O failures.

SEE ALSO:
  - workflow.go: Raises state-conflict errors
  - advance.go: Raises link conflicts
  - classify.go: Raises validation and data errors
*/
package report

import (
	"errors"
	"fmt"

	"github.com/finlane/invoice-engine/ledger"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input-validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrNegativeAmount is returned for a negative amount on anything that
	// is not a credit note.
	ErrNegativeAmount = errors.New("negative amount on non-credit-note entry")

	// ErrCreditNoteNotNegative is returned for a credit note whose amount
	// is not negative.
	ErrCreditNoteNotNegative = errors.New("credit note amount must be negative")

	// ErrStateConflict is the root of all lifecycle conflicts.
	ErrStateConflict = errors.New("state conflict")

	// ErrAlreadyLinked is returned when linking an advance payment that is
	// already linked to an invoice.
	ErrAlreadyLinked = errors.New("advance payment already linked")

	// ErrInvoiceClaimed is returned when the target invoice is already the
	// link target of a different advance payment.
	ErrInvoiceClaimed = errors.New("invoice already claimed by another advance payment")

	// ErrNotLinked is returned when unlinking an advance payment that has
	// no link.
	ErrNotLinked = errors.New("advance payment not linked")

	// ErrDataIntegrity is the root of data errors: facts that cannot yield
	// a sound report (e.g. percentage against a zero payable amount).
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrZeroPayable is returned when a payment percentage would divide by
	// a zero or missing payable amount.
	ErrZeroPayable = errors.New("payable amount is zero")

	// ErrNotFound is the root of all missing-record errors.
	ErrNotFound = errors.New("not found")

	ErrInvoiceNotFound = fmt.Errorf("invoice %w", ErrNotFound)
	ErrAdvanceNotFound = fmt.Errorf("advance payment %w", ErrNotFound)
	ErrPeriodNotFound  = fmt.Errorf("report period %w", ErrNotFound)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StateConflictError names the period status that blocked a transition.
type StateConflictError struct {
	Op      string // "finalize" or "submit"
	Month   ledger.Month
	Current PeriodStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s %s: period is %s", e.Op, e.Month, e.Current)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// ValidationError carries the field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DataError names the record whose facts cannot produce a sound report.
// Report generation fails rather than emitting a corrupted total.
type DataError struct {
	Record  string // e.g. "invoice INV-3"
	Message string
	Err     error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error on %s: %s", e.Record, e.Message)
}

// Unwrap keeps ErrDataIntegrity reachable even when a more specific cause
// is attached, so a data error never reclassifies as its cause alone.
func (e *DataError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDataIntegrity, e.Err}
	}
	return []error{ErrDataIntegrity}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid client input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, ErrCreditNoteNotNegative)
}

// IsConflict returns true for lifecycle and linking conflicts.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrAlreadyLinked) ||
		errors.Is(err, ErrInvoiceClaimed) ||
		errors.Is(err, ErrNotLinked)
}

// IsDataError returns true for ledger facts that cannot yield a sound report.
func IsDataError(err error) bool {
	return errors.Is(err, ErrDataIntegrity) || errors.Is(err, ErrZeroPayable)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
