/*
errors.go - Centralized error types for the recurrence engine

PURPOSE:
  All sentinel errors in one place for consistency and discoverability.
  The calculation functions themselves never return errors: an invalid
  rule degrades to zero occurrences and a bounded search that exhausts
  its budget returns what it found. These sentinels exist for the layers
  around the engine - the field codec and the instance stores - so that
  callers can classify failures with errors.Is.

ERROR CATEGORIES:
  1. Pattern errors - Unparseable or structurally invalid rules
  2. Store errors  - Duplicate or missing templates/instances

SEE ALSO:
  - codec: wraps ErrInvalidPattern with field context
  - task: store implementations return the duplicate/not-found sentinels
*/
package recur

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPattern is returned when a recurrence pattern cannot be
	// parsed or its constraint does not pair with its unit. Callers show
	// the task without a recurrence indicator; nothing is materialized.
	ErrInvalidPattern = errors.New("invalid recurrence pattern")

	// ErrInvalidDate is returned when a date string is not a real
	// YYYY-MM-DD calendar date.
	ErrInvalidDate = errors.New("invalid calendar date")

	// ErrDuplicateInstance is returned when an instance already exists for
	// the same template identity and due date. Expected whenever two
	// triggers fire close together; callers skip the write silently.
	ErrDuplicateInstance = errors.New("duplicate instance for template and date")

	// ErrTemplateNotFound is returned when a referenced template doesn't exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInstanceNotFound is returned when a referenced instance doesn't exist.
	ErrInstanceNotFound = errors.New("instance not found")
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrInstanceNotFound)
}

// IsDuplicate returns true if the error indicates an idempotency skip.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateInstance)
}
