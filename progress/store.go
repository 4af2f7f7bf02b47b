/*
store.go - Persistence interfaces for estimates, entries and projects

PURPOSE:
  Defines the boundary between the tracking engine and its database.
  The same contracts are implemented in memory (progress/store) and on
  SQLite (store/sqlite).

KEY INTERFACES:
  EstimateStore: Proposal → WBS → Phase → Activity, read-mostly.
                 SaveEstimate is the authoring import path; the engine
                 itself only reads.
  EntryStore:    ProgressEntry rows. Only the upsert service and the
                 project lifecycle write here.
  ProjectStore:  Tracking projects.
  TxStore:       Store + WithTx for atomic multi-row writes.

ABSENCE:
  Single-row getters return (nil, nil) when the row does not exist.

SCOPED READS:
  ListEntries filters on the denormalized WBS/phase ids carried by each
  entry, so scoped rollups never need a join.
*/
package progress

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/truss/momentum/estimate"
)

// =============================================================================
// FILTERS
// =============================================================================

// ActivityFilter selects activities. Empty fields do not filter.
type ActivityFilter struct {
	ProposalID estimate.ProposalID
	WBSID      estimate.WBSID
	PhaseID    estimate.PhaseID
	Types      []estimate.ActivityType
}

// EntryFilter selects progress entries. Empty fields do not filter.
type EntryFilter struct {
	ProjectID  ProjectID
	WBSID      estimate.WBSID
	PhaseID    estimate.PhaseID
	ActivityID estimate.ActivityID
	Date       Date // zero = any date
}

// =============================================================================
// STORES
// =============================================================================

type EstimateStore interface {
	// SaveEstimate replaces a proposal and its whole hierarchy.
	SaveEstimate(ctx context.Context, est estimate.Estimate) error

	GetProposal(ctx context.Context, id estimate.ProposalID) (*estimate.Proposal, error)
	ListProposals(ctx context.Context) ([]estimate.Proposal, error)

	// ListWBS and ListPhases return rows ordered by sort order.
	ListWBS(ctx context.Context, proposalID estimate.ProposalID) ([]estimate.WBS, error)
	ListPhases(ctx context.Context, proposalID estimate.ProposalID) ([]estimate.Phase, error)

	ListActivities(ctx context.Context, filter ActivityFilter) ([]estimate.Activity, error)

	// GetActivities returns the subset of ids that exist, keyed by id.
	GetActivities(ctx context.Context, ids []estimate.ActivityID) (map[estimate.ActivityID]estimate.Activity, error)
}

type EntryStore interface {
	ListEntries(ctx context.Context, filter EntryFilter) ([]ProgressEntry, error)
	FindEntry(ctx context.Context, key EntryKey) (*ProgressEntry, error)
	GetEntry(ctx context.Context, id EntryID) (*ProgressEntry, error)

	// InsertEntry returns ErrDuplicateEntry if a row exists for the key.
	InsertEntry(ctx context.Context, entry ProgressEntry) error

	// UpdateEntry changes quantity and notes only; identity and the
	// ancestry snapshot are preserved.
	UpdateEntry(ctx context.Context, id EntryID, quantity decimal.Decimal, notes string) error

	DeleteEntry(ctx context.Context, id EntryID) error
	DeleteProjectEntries(ctx context.Context, projectID ProjectID) (int64, error)
}

type ProjectStore interface {
	GetProject(ctx context.Context, id ProjectID) (*Project, error)
	GetProjectByProposal(ctx context.Context, proposalID estimate.ProposalID) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	InsertProject(ctx context.Context, p Project) error
	UpdateProject(ctx context.Context, p Project) error
	DeleteProject(ctx context.Context, id ProjectID) error
	SetLastEntryDate(ctx context.Context, id ProjectID, date Date) error
}

// Store is everything the engine needs.
type Store interface {
	EstimateStore
	EntryStore
	ProjectStore
}

// TxStore wraps Store with transaction support.
// If fn returns an error the transaction is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// withTx runs fn inside a transaction when the store supports one.
func withTx(ctx context.Context, s Store, fn func(Store) error) error {
	if ts, ok := s.(TxStore); ok {
		return ts.WithTx(ctx, fn)
	}
	return fn(s)
}
