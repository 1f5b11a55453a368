/*
errors.go - Centralized error types for the day-lifecycle engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Service packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Value errors - Bad operator input, surfaced at the API boundary
  2. Lifecycle errors - Roll/finalize sequencing violations
  3. Store errors - Persistence-level failures, treated as transient

USAGE:
  Callers classify with errors.Is or the helpers below:

    if core.IsNotFound(err) {
        // 404
    }

SEE ALSO:
  - tracker: raises ErrDependencyNotMet, ErrItemNotFound
  - planner: raises ErrRollAlreadyDone, ErrRollNotAvailable
  - scoring: raises ErrAlreadyFinalized (swallowed by the scheduler)
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrItemNotFound is returned when a referenced work item doesn't exist.
	ErrItemNotFound = errors.New("work item not found")

	// ErrGoalNotFound is returned when a referenced goal doesn't exist.
	ErrGoalNotFound = errors.New("goal not found")

	// ErrRestDayNotFound is returned when a referenced rest day doesn't exist.
	ErrRestDayNotFound = errors.New("rest day not found")

	// ErrBackupNotFound is returned when a referenced backup doesn't exist.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrNoActiveItem is returned when stop/complete targets the active
	// item and none exists.
	ErrNoActiveItem = errors.New("no active work item")

	// ErrInvalidArgument is returned for malformed operator input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDependencyNotMet is returned by start() when the item's
	// dependency is neither completed nor scheduled for today.
	ErrDependencyNotMet = errors.New("dependency not met")

	// ErrDependencyCycle is returned when a depends_on edge would close a cycle.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrRollAlreadyDone is returned when Roll has already run for the
	// current effective date. This is expected behavior for retries.
	ErrRollAlreadyDone = errors.New("roll already done for this date")

	// ErrRollNotAvailable is returned when Roll is attempted before
	// roll_available_time.
	ErrRollNotAvailable = errors.New("roll not available yet")

	// ErrAlreadyFinalized is returned when a date's penalties were already
	// computed. The scheduler swallows it; operators see it surfaced.
	ErrAlreadyFinalized = errors.New("day already finalized")

	// ErrStoreFailure is returned for persistence-level failures. The
	// enclosing transaction has been rolled back in full.
	ErrStoreFailure = errors.New("store failure")

	// ErrBackupFailure is returned for backup job failures. Isolated to
	// the backup path; core operations are unaffected.
	ErrBackupFailure = errors.New("backup failure")

	// ErrSnapshotUnsupported is returned when the configured store cannot
	// write consistent file snapshots.
	ErrSnapshotUnsupported = errors.New("store does not support snapshots")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidArgumentError reports which field failed validation and why.
type InvalidArgumentError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, fmt.Sprint(e.Value), e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// DependencyNotMetError identifies the blocking dependency.
type DependencyNotMetError struct {
	ItemID      int64
	DependsOn   int64
	Description string
}

func (e *DependencyNotMetError) Error() string {
	return fmt.Sprintf("item %d blocked by incomplete dependency %d (%s)",
		e.ItemID, e.DependsOn, e.Description)
}

func (e *DependencyNotMetError) Unwrap() error { return ErrDependencyNotMet }

// RollStateError reports why a roll was refused.
type RollStateError struct {
	Date   Day
	Reason string
	err    error
}

func NewRollAlreadyDone(date Day) *RollStateError {
	return &RollStateError{Date: date, Reason: "agenda already rolled", err: ErrRollAlreadyDone}
}

func NewRollNotAvailable(date Day, availableAt ClockTime) *RollStateError {
	return &RollStateError{
		Date:   date,
		Reason: fmt.Sprintf("roll opens at %s", availableAt),
		err:    ErrRollNotAvailable,
	}
}

func (e *RollStateError) Error() string {
	return fmt.Sprintf("roll refused for %s: %s", e.Date, e.Reason)
}

func (e *RollStateError) Unwrap() error { return e.err }

// FinalizedError identifies the date whose penalties already exist.
type FinalizedError struct {
	Date Day
}

func (e *FinalizedError) Error() string {
	return fmt.Sprintf("penalties already finalized for %s", e.Date)
}

func (e *FinalizedError) Unwrap() error { return ErrAlreadyFinalized }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrGoalNotFound) ||
		errors.Is(err, ErrRestDayNotFound) ||
		errors.Is(err, ErrBackupNotFound) ||
		errors.Is(err, ErrNoActiveItem)
}

// IsClientError returns true if the error is due to invalid operator input
// or sequencing, rather than an engine fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrDependencyNotMet) ||
		errors.Is(err, ErrDependencyCycle) ||
		errors.Is(err, ErrRollAlreadyDone) ||
		errors.Is(err, ErrRollNotAvailable) ||
		errors.Is(err, ErrAlreadyFinalized)
}

// IsRetryable returns true if the operation might succeed on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreFailure) || errors.Is(err, ErrBackupFailure)
}
