/*
Package progress is the field-progress tracking engine.

PURPOSE:
  A tracking project wraps exactly one estimate (Proposal). Field crews report
  completed quantities per activity per day. This package owns those reports
  and turns them, together with the budgeted estimate, into earned man-hours
  and percent-complete at every level of the hierarchy.

KEY CONCEPTS IN THIS FILE (types.go):
  - Project: the tracking-side wrapper around a Proposal
  - ProgressEntry: one completed-quantity fact per (project, activity, day)
  - EntryKey: the natural key of a ProgressEntry
  - Submission: one line of a batch submitted to SaveEntries

DESIGN PRINCIPLES:
  1. Nothing derived is stored. Every rollup recomputes from current rows.
  2. Precision: quantities and man-hours use decimal.Decimal.
  3. One live row per EntryKey. A zero quantity is a deletion, never a row.
  4. Entries carry a snapshot of their activity's WBS/phase for scoped reads.

SEE ALSO:
  - rollup.go: man-hour aggregation
  - upsert.go: the only write path for entries
  - store.go: persistence interfaces
*/
package progress

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/truss/momentum/estimate"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProjectID string
type EntryID string

// =============================================================================
// PROJECT - Tracking wrapper around one Proposal
// =============================================================================

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on-hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectOnHold, ProjectCompleted, ProjectArchived:
		return true
	}
	return false
}

func ParseProjectStatus(s string) (ProjectStatus, error) {
	status := ProjectStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown project status %q", s)
	}
	return status, nil
}

// Project mirrors display fields from its Proposal at creation time.
// Those fields are a snapshot; later Proposal edits do not flow through.
type Project struct {
	ID         ProjectID
	ProposalID estimate.ProposalID

	Name      string
	Owner     string
	Location  string
	JobNumber string

	Status    ProjectStatus
	StartDate Date // zero = unset
	EndDate   Date // zero = unset

	// LastEntryDate is the date of the most recent saved batch, whatever
	// the batch did. Zero when nothing was ever saved.
	LastEntryDate Date

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectPatch carries user-editable settings. Nil fields are left alone.
type ProjectPatch struct {
	Name      *string
	Status    *ProjectStatus
	StartDate *Date // pointer to a zero Date clears the field
	EndDate   *Date
}

// =============================================================================
// PROGRESS ENTRY
// =============================================================================

// ProgressEntry records quantity completed for one activity on one day.
// QuantityCompleted is always > 0 for a stored row.
type ProgressEntry struct {
	ID         EntryID
	ProjectID  ProjectID
	ActivityID estimate.ActivityID

	// Snapshot of the activity's ancestry at insert time.
	WBSID   estimate.WBSID
	PhaseID estimate.PhaseID

	EntryDate         Date
	QuantityCompleted decimal.Decimal
	Notes             string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryKey is the natural key: at most one row exists per key.
type EntryKey struct {
	ProjectID  ProjectID
	ActivityID estimate.ActivityID
	EntryDate  Date
}

func (e ProgressEntry) Key() EntryKey {
	return EntryKey{ProjectID: e.ProjectID, ActivityID: e.ActivityID, EntryDate: e.EntryDate}
}

func (k EntryKey) String() string {
	return fmt.Sprintf("%s/%s@%s", k.ProjectID, k.ActivityID, k.EntryDate)
}

// Submission is one line of a SaveEntries batch. A zero quantity means
// "no progress" and removes any existing row for the key.
type Submission struct {
	ActivityID        estimate.ActivityID
	QuantityCompleted decimal.Decimal
	Notes             string
}
