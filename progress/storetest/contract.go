// Package storetest holds behavioral tests every progress.TxStore must pass.
// Backends call Run from their own _test.go files.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/truss/momentum/estimate"
	"github.com/truss/momentum/progress"
)

// Factory returns an empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) progress.TxStore

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s progress.TxStore)
	}{
		{"EstimateRoundTrip", testEstimateRoundTrip},
		{"SaveEstimateReplacesHierarchy", testSaveEstimateReplaces},
		{"ActivityFilter", testActivityFilter},
		{"GetActivitiesReturnsExistingSubset", testGetActivities},
		{"AbsentRowsAreNil", testAbsentRows},
		{"EntryKeyIsUnique", testEntryKeyUnique},
		{"EntryUpdateAndDelete", testEntryUpdateDelete},
		{"EntryFilter", testEntryFilter},
		{"ProjectPerProposal", testProjectPerProposal},
		{"ProjectUpdateAndLastEntryDate", testProjectUpdate},
		{"DeleteProjectEntries", testDeleteProjectEntries},
		{"WithTxRollsBack", testWithTxRollback},
		{"WithTxCommits", testWithTxCommit},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

// =============================================================================
// FIXTURES
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixture() estimate.Estimate {
	return estimate.Estimate{
		Proposal: estimate.Proposal{ID: "prop-1", Name: "Unit 7 Revamp", Owner: "Acme", JobNumber: "J-1"},
		WBS: []estimate.WBS{
			{ID: "w-pipe", ProposalID: "prop-1", Name: "Piping", SortOrder: 1},
			{ID: "w-civil", ProposalID: "prop-1", Name: "Civil", SortOrder: 0},
		},
		Phases: []estimate.Phase{
			{ID: "p-cs", ProposalID: "prop-1", WBSID: "w-pipe", Name: "Carbon Steel", SortOrder: 0},
			{ID: "p-found", ProposalID: "prop-1", WBSID: "w-civil", Name: "Foundations", SortOrder: 0},
		},
		Activities: []estimate.Activity{
			{
				ID: "a-weld", ProposalID: "prop-1", WBSID: "w-pipe", PhaseID: "p-cs",
				Description: "Butt weld", Type: estimate.TypeLabor, Quantity: dec("100"), Unit: "EA",
				Labor: &estimate.Labor{CraftConstant: dec("0.5"), WelderConstant: dec("0.1")},
			},
			{
				ID: "a-pipe", ProposalID: "prop-1", WBSID: "w-pipe", PhaseID: "p-cs",
				Description: "Pipe", Type: estimate.TypeMaterial, Quantity: dec("400"), Unit: "LF", SortOrder: 1,
			},
			{
				ID: "a-pour", ProposalID: "prop-1", WBSID: "w-civil", PhaseID: "p-found",
				Description: "Pour", Type: estimate.TypeCustomLabor, Quantity: dec("12.5"), Unit: "CY",
				Labor: &estimate.Labor{CraftConstant: dec("2"), WelderConstant: decimal.Zero},
			},
		},
	}
}

func seedProject(t *testing.T, s progress.TxStore) progress.Project {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveEstimate(ctx, fixture()))

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	p := progress.Project{
		ID: "proj-1", ProposalID: "prop-1", Name: "Unit 7 Revamp",
		Status: progress.ProjectActive, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.InsertProject(ctx, p))
	return p
}

func entry(id, activity, date, qty string) progress.ProgressEntry {
	wbs, phase := estimate.WBSID("w-pipe"), estimate.PhaseID("p-cs")
	if activity == "a-pour" {
		wbs, phase = "w-civil", "p-found"
	}
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	return progress.ProgressEntry{
		ID:                progress.EntryID(id),
		ProjectID:         "proj-1",
		ActivityID:        estimate.ActivityID(activity),
		WBSID:             wbs,
		PhaseID:           phase,
		EntryDate:         progress.MustParseDate(date),
		QuantityCompleted: dec(qty),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// =============================================================================
// ESTIMATE TABLES
// =============================================================================

func testEstimateRoundTrip(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveEstimate(ctx, fixture()))

	p, err := s.GetProposal(ctx, "prop-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Acme", p.Owner)
	assert.Equal(t, "J-1", p.JobNumber)

	wbs, err := s.ListWBS(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, wbs, 2)
	assert.Equal(t, estimate.WBSID("w-civil"), wbs[0].ID, "ordered by sort order")

	phases, err := s.ListPhases(ctx, "prop-1")
	require.NoError(t, err)
	assert.Len(t, phases, 2)

	acts, err := s.GetActivities(ctx, []estimate.ActivityID{"a-weld", "a-pipe"})
	require.NoError(t, err)
	weld := acts["a-weld"]
	require.NotNil(t, weld.Labor)
	assert.True(t, weld.Quantity.Equal(dec("100")))
	assert.True(t, weld.Labor.CraftConstant.Equal(dec("0.5")))
	assert.True(t, weld.Labor.WelderConstant.Equal(dec("0.1")))
	assert.Nil(t, acts["a-pipe"].Labor)

	proposals, err := s.ListProposals(ctx)
	require.NoError(t, err)
	assert.Len(t, proposals, 1)
}

func testSaveEstimateReplaces(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveEstimate(ctx, fixture()))

	revised := fixture()
	revised.Proposal.Name = "Unit 7 Revamp Rev B"
	revised.Activities = revised.Activities[:1]
	require.NoError(t, s.SaveEstimate(ctx, revised))

	p, err := s.GetProposal(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, "Unit 7 Revamp Rev B", p.Name)

	acts, err := s.ListActivities(ctx, progress.ActivityFilter{ProposalID: "prop-1"})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, estimate.ActivityID("a-weld"), acts[0].ID)
}

func testActivityFilter(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveEstimate(ctx, fixture()))

	labor, err := s.ListActivities(ctx, progress.ActivityFilter{
		ProposalID: "prop-1",
		Types:      estimate.LaborBearingTypes,
	})
	require.NoError(t, err)
	assert.Len(t, labor, 2)

	inPhase, err := s.ListActivities(ctx, progress.ActivityFilter{ProposalID: "prop-1", PhaseID: "p-cs"})
	require.NoError(t, err)
	require.Len(t, inPhase, 2)
	assert.Equal(t, estimate.ActivityID("a-weld"), inPhase[0].ID)

	inWBS, err := s.ListActivities(ctx, progress.ActivityFilter{
		ProposalID: "prop-1",
		WBSID:      "w-civil",
		Types:      estimate.LaborBearingTypes,
	})
	require.NoError(t, err)
	require.Len(t, inWBS, 1)
	assert.Equal(t, estimate.ActivityID("a-pour"), inWBS[0].ID)
}

func testGetActivities(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveEstimate(ctx, fixture()))

	got, err := s.GetActivities(ctx, []estimate.ActivityID{"a-weld", "a-gone"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, estimate.ActivityID("a-weld"))

	empty, err := s.GetActivities(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testAbsentRows(t *testing.T, s progress.TxStore) {
	ctx := context.Background()

	proposal, err := s.GetProposal(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, proposal)

	project, err := s.GetProject(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, project)

	byProposal, err := s.GetProjectByProposal(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, byProposal)

	e, err := s.GetEntry(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, e)

	found, err := s.FindEntry(ctx, progress.EntryKey{ProjectID: "x", ActivityID: "y", EntryDate: progress.MustParseDate("2025-03-03")})
	assert.NoError(t, err)
	assert.Nil(t, found)
}

// =============================================================================
// ENTRY TABLE
// =============================================================================

func testEntryKeyUnique(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	seedProject(t, s)

	require.NoError(t, s.InsertEntry(ctx, entry("e1", "a-weld", "2025-03-03", "10")))
	err := s.InsertEntry(ctx, entry("e2", "a-weld", "2025-03-03", "5"))
	assert.True(t, errors.Is(err, progress.ErrDuplicateEntry), "got %v", err)

	// Same activity on another date is a different key.
	require.NoError(t, s.InsertEntry(ctx, entry("e3", "a-weld", "2025-03-04", "5")))

	all, err := s.ListEntries(ctx, progress.EntryFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testEntryUpdateDelete(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	seedProject(t, s)

	e := entry("e1", "a-weld", "2025-03-03", "10")
	require.NoError(t, s.InsertEntry(ctx, e))

	require.NoError(t, s.UpdateEntry(ctx, "e1", dec("12.5"), "rework"))
	got, err := s.FindEntry(ctx, e.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, progress.EntryID("e1"), got.ID)
	assert.True(t, got.QuantityCompleted.Equal(dec("12.5")))
	assert.Equal(t, "rework", got.Notes)
	assert.Equal(t, estimate.WBSID("w-pipe"), got.WBSID, "ancestry snapshot kept")
	assert.Equal(t, "2025-03-03", got.EntryDate.String())
	assert.True(t, got.UpdatedAt.After(e.UpdatedAt), "update bumps updated_at")
	assert.True(t, got.CreatedAt.Equal(e.CreatedAt), "update keeps created_at")

	err = s.UpdateEntry(ctx, "missing", dec("1"), "")
	assert.True(t, progress.IsNotFound(err))

	require.NoError(t, s.DeleteEntry(ctx, "e1"))
	got, err = s.FindEntry(ctx, e.Key())
	require.NoError(t, err)
	assert.Nil(t, got)

	// Key is free again after delete.
	require.NoError(t, s.InsertEntry(ctx, entry("e2", "a-weld", "2025-03-03", "1")))
}

func testEntryFilter(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	seedProject(t, s)

	for _, e := range []progress.ProgressEntry{
		entry("e1", "a-weld", "2025-03-03", "10"),
		entry("e2", "a-weld", "2025-03-04", "5"),
		entry("e3", "a-pour", "2025-03-04", "2"),
	} {
		require.NoError(t, s.InsertEntry(ctx, e))
	}

	tests := []struct {
		name   string
		filter progress.EntryFilter
		want   int
	}{
		{"project", progress.EntryFilter{ProjectID: "proj-1"}, 3},
		{"wbs", progress.EntryFilter{ProjectID: "proj-1", WBSID: "w-pipe"}, 2},
		{"phase", progress.EntryFilter{ProjectID: "proj-1", PhaseID: "p-found"}, 1},
		{"activity", progress.EntryFilter{ProjectID: "proj-1", ActivityID: "a-weld"}, 2},
		{"date", progress.EntryFilter{ProjectID: "proj-1", Date: progress.MustParseDate("2025-03-04")}, 2},
		{"other project", progress.EntryFilter{ProjectID: "proj-2"}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ListEntries(ctx, tc.filter)
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}

	ordered, err := s.ListEntries(ctx, progress.EntryFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", ordered[0].EntryDate.String(), "oldest first")
}

// =============================================================================
// PROJECT TABLE
// =============================================================================

func testProjectPerProposal(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	first := seedProject(t, s)

	second := first
	second.ID = "proj-2"
	err := s.InsertProject(ctx, second)
	assert.True(t, progress.IsConflict(err), "got %v", err)
	var conflict *progress.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "prop-1", conflict.ProposalID)
	assert.Equal(t, progress.ProjectID("proj-1"), conflict.ExistingProjectID)

	got, err := s.GetProjectByProposal(ctx, "prop-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, progress.ProjectID("proj-1"), got.ID)

	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testProjectUpdate(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	p := seedProject(t, s)

	p.Name = "Renamed"
	p.Status = progress.ProjectOnHold
	p.StartDate = progress.MustParseDate("2025-03-01")
	require.NoError(t, s.UpdateProject(ctx, p))

	require.NoError(t, s.SetLastEntryDate(ctx, p.ID, progress.MustParseDate("2025-03-05")))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, progress.ProjectOnHold, got.Status)
	assert.Equal(t, "2025-03-01", got.StartDate.String())
	assert.True(t, got.EndDate.IsZero())
	assert.Equal(t, "2025-03-05", got.LastEntryDate.String())

	err = s.SetLastEntryDate(ctx, "missing", progress.MustParseDate("2025-03-05"))
	assert.True(t, progress.IsNotFound(err))

	missing := p
	missing.ID = "missing"
	assert.True(t, progress.IsNotFound(s.UpdateProject(ctx, missing)))
}

func testDeleteProjectEntries(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	seedProject(t, s)
	require.NoError(t, s.InsertEntry(ctx, entry("e1", "a-weld", "2025-03-03", "10")))
	require.NoError(t, s.InsertEntry(ctx, entry("e2", "a-pour", "2025-03-03", "1")))

	n, err := s.DeleteProjectEntries(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.DeleteProject(ctx, "proj-1"))
	got, err := s.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The estimate outlives the project.
	proposal, err := s.GetProposal(ctx, "prop-1")
	require.NoError(t, err)
	assert.NotNil(t, proposal)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func testWithTxRollback(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	seedProject(t, s)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx progress.Store) error {
		if err := tx.InsertEntry(ctx, entry("e1", "a-weld", "2025-03-03", "10")); err != nil {
			return err
		}
		if err := tx.SetLastEntryDate(ctx, "proj-1", progress.MustParseDate("2025-03-03")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := s.ListEntries(ctx, progress.EntryFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Empty(t, entries)

	p, err := s.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.True(t, p.LastEntryDate.IsZero())
}

func testWithTxCommit(t *testing.T, s progress.TxStore) {
	ctx := context.Background()
	seedProject(t, s)

	err := s.WithTx(ctx, func(tx progress.Store) error {
		if err := tx.InsertEntry(ctx, entry("e1", "a-weld", "2025-03-03", "10")); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes.
		got, err := tx.FindEntry(ctx, entry("e1", "a-weld", "2025-03-03", "10").Key())
		if err != nil {
			return err
		}
		if got == nil {
			return errors.New("insert not visible inside transaction")
		}
		return nil
	})
	require.NoError(t, err)

	entries, err := s.ListEntries(ctx, progress.EntryFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
