/*
errors.go - Error taxonomy for the tracking engine

ERROR CATEGORIES:
  1. NotFound   - project, proposal, WBS, phase or entry does not exist
  2. Conflict   - a second project for a proposal that already has one
  3. Validation - negative quantity, or a batch with nothing valid in it
  4. Stale      - a batch line names an activity that no longer exists.
                  Never returned by SaveEntries; carried on the skipped
                  line's LineOutcome.Err instead.

PROPAGATION:
  Read paths return (nil, nil) for absence; absence is data.
  Write paths return these errors on precondition failures.
*/
package progress

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrValidation     = errors.New("validation failed")
	ErrStaleReference = errors.New("stale activity reference")

	// ErrDuplicateEntry is returned by stores when an insert collides with
	// an existing (project, activity, date) row.
	ErrDuplicateEntry = errors.New("duplicate progress entry for key")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "project", "proposal", "wbs", "phase", "entry"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports the project already tracking a proposal.
type ConflictError struct {
	ProposalID        string
	ExistingProjectID ProjectID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("proposal %q is already tracked by project %q", e.ProposalID, e.ExistingProjectID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ValidationError carries either a plain message or per-activity issues.
type ValidationError struct {
	Message string
	Issues  []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.Message
	}
	if e.Message == "" {
		return strings.Join(parts, "; ")
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func notFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: fmt.Sprint(id)}
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict)
}
