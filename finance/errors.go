/*
errors.go - Centralized error types for the finance engine

PURPOSE:
  All error kinds in one place. Every failed mutating operation leaves the
  stores in their pre-call state and surfaces one of these typed errors;
  nothing is retried and nothing is swallowed. In particular a missing rate is
  NEVER treated as a zero-cost entry.

ERROR CATEGORIES:
  1. Store errors       - Backing storage could not be opened
  2. Resolution errors  - Rate lookup found zero or multiple windows
  3. Precondition errors- State machine violations, caller-correctable
  4. Validation errors  - Malformed input, caught before any store mutation

USAGE:
  if errors.Is(err, finance.ErrEntryLocked) { ... }

SEE ALSO:
  - rate.go: Returns RateResolutionError
  - costs.go: Returns ErrDateFinalized / ErrAlreadyFinalized
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStoreUnavailable is returned when the backing storage medium cannot
	// be opened. Fatal to the requested operation; never falls back to the
	// master store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrAmbiguousOrMissingRate is returned when rate resolution finds zero
	// or more than one matching schedule window for a date.
	ErrAmbiguousOrMissingRate = errors.New("ambiguous or missing rate")

	// ErrRequisitionNotApproved is returned when creating a purchase order
	// against a requisition that is not in Approved status.
	ErrRequisitionNotApproved = errors.New("requisition not approved")

	// ErrEntryLocked is returned when editing a time entry that has reached
	// a terminal status (Approved/Rejected).
	ErrEntryLocked = errors.New("entry locked")

	// ErrAlreadyFinalized is returned when finalizing a date that already
	// has a finalized summary. The existing summary is left untouched.
	ErrAlreadyFinalized = errors.New("day already finalized")

	// ErrDateFinalized is returned when posting a cost entry to a date whose
	// summary has been finalized.
	ErrDateFinalized = errors.New("date already finalized")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed input. Raised before any store mutation.
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

// RateResolutionError reports a failed rate lookup with the window count.
type RateResolutionError struct {
	Kind    RateKind
	Subject string
	Date    Date
	Matches int
}

func (e *RateResolutionError) Error() string {
	return fmt.Sprintf("%s rate for %q on %s: %d matching windows",
		e.Kind, e.Subject, e.Date, e.Matches)
}

func (e *RateResolutionError) Unwrap() error { return ErrAmbiguousOrMissingRate }

// StateTransitionError reports an operation applied in the wrong status.
type StateTransitionError struct {
	Entity string
	ID     string
	Status string
	Action string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in status %q", e.Action, e.Entity, e.ID, e.Status)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is caller-correctable.
func IsClientError(err error) bool {
	var ve *ValidationError
	var se *StateTransitionError
	return errors.Is(err, ErrAmbiguousOrMissingRate) ||
		errors.Is(err, ErrRequisitionNotApproved) ||
		errors.Is(err, ErrEntryLocked) ||
		errors.Is(err, ErrAlreadyFinalized) ||
		errors.Is(err, ErrDateFinalized) ||
		errors.As(err, &ve) ||
		errors.As(err, &se)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
