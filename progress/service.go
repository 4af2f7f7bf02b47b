/*
service.go - Query surface of the tracking engine

PURPOSE:
  Fetches what a rollup needs in a fixed number of store calls (project,
  WBS list, phase list, activities in scope, entries in scope) and hands it
  to BuildRollup. Nothing is cached: every call recomputes from current rows,
  so a read issued after SaveEntries always reflects it.

NOT FOUND:
  A missing project, WBS or phase yields (nil, nil). Callers render an empty
  state; errors are reserved for store failures.

QUERIES:
  ListProjects       all projects with project-level metrics
  GetProjectRollup   full tree for one project
  GetWBSRollup       one WBS with its phases and activities
  GetPhaseRollup     one phase with its activities
  GetEntryFormData   full tree with day breakdown + that day's raw entries
  GetEntriesForDate  activity → quantity for one date only

SEE ALSO:
  - rollup.go: the pure aggregation
  - upsert.go: SaveEntries
  - projects.go: project lifecycle
*/
package progress

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/truss/momentum/estimate"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service is the entry point for every query and mutation.
type Service struct {
	store Store
	log   zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a service over the given store.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   logger.With().Str("component", "progress").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Store exposes the underlying store for import paths.
func (s *Service) Store() Store { return s.store }

// =============================================================================
// ROLLUP
// =============================================================================

// ComputeRollup builds the rollup tree for scope. A non-zero asOf adds the
// per-activity day breakdown. Returns (nil, nil) if the project, WBS or
// phase named by scope does not exist.
func (s *Service) ComputeRollup(ctx context.Context, scope Scope, asOf Date) (*ProjectRollup, error) {
	return computeRollup(ctx, s.store, scope, asOf)
}

func computeRollup(ctx context.Context, st Store, scope Scope, asOf Date) (*ProjectRollup, error) {
	project, err := st.GetProject(ctx, scope.ProjectID)
	if err != nil || project == nil {
		return nil, err
	}

	wbs, err := st.ListWBS(ctx, project.ProposalID)
	if err != nil {
		return nil, err
	}
	phases, err := st.ListPhases(ctx, project.ProposalID)
	if err != nil {
		return nil, err
	}

	wbs, phases, ok := narrowScope(scope, wbs, phases)
	if !ok {
		return nil, nil
	}

	activities, err := st.ListActivities(ctx, ActivityFilter{
		ProposalID: project.ProposalID,
		WBSID:      scope.WBSID,
		PhaseID:    scope.PhaseID,
		Types:      estimate.LaborBearingTypes,
	})
	if err != nil {
		return nil, err
	}

	entries, err := st.ListEntries(ctx, EntryFilter{
		ProjectID: project.ID,
		WBSID:     scope.WBSID,
		PhaseID:   scope.PhaseID,
	})
	if err != nil {
		return nil, err
	}

	return BuildRollup(RollupInput{
		Project:    *project,
		Scope:      scope,
		WBS:        wbs,
		Phases:     phases,
		Activities: activities,
		Entries:    entries,
		AsOf:       asOf,
	}), nil
}

// narrowScope keeps only the WBS and phases inside scope. ok is false when
// scope names a WBS or phase that is not part of the proposal, or a phase
// outside the named WBS.
func narrowScope(scope Scope, wbs []estimate.WBS, phases []estimate.Phase) ([]estimate.WBS, []estimate.Phase, bool) {
	wbsID := scope.WBSID

	if scope.PhaseID != "" {
		var found *estimate.Phase
		for i := range phases {
			if phases[i].ID == scope.PhaseID {
				found = &phases[i]
				break
			}
		}
		if found == nil || (wbsID != "" && found.WBSID != wbsID) {
			return nil, nil, false
		}
		wbsID = found.WBSID
		phases = []estimate.Phase{*found}
	}

	if wbsID == "" {
		return wbs, phases, true
	}

	var keptWBS []estimate.WBS
	for _, w := range wbs {
		if w.ID == wbsID {
			keptWBS = append(keptWBS, w)
		}
	}
	if len(keptWBS) == 0 {
		return nil, nil, false
	}

	var keptPhases []estimate.Phase
	for _, p := range phases {
		if p.WBSID == wbsID {
			keptPhases = append(keptPhases, p)
		}
	}
	return keptWBS, keptPhases, true
}

// =============================================================================
// QUERY SURFACE
// =============================================================================

// ProjectSummary is a project with its project-level metrics.
type ProjectSummary struct {
	Project Project
	Metrics Metrics
}

// ListProjects returns every project with top-level rollup metrics.
func (s *Service) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		rollup, err := s.ComputeRollup(ctx, Scope{ProjectID: p.ID}, Date{})
		if err != nil {
			return nil, err
		}
		if rollup == nil {
			// Deleted between the list and the rollup.
			continue
		}
		summaries = append(summaries, ProjectSummary{Project: rollup.Project, Metrics: rollup.Metrics})
	}
	return summaries, nil
}

// GetProjectRollup returns the full tree for a project, or nil.
func (s *Service) GetProjectRollup(ctx context.Context, projectID ProjectID) (*ProjectRollup, error) {
	return s.ComputeRollup(ctx, Scope{ProjectID: projectID}, Date{})
}

// GetWBSRollup returns one WBS with its phase-level rollup, or nil.
func (s *Service) GetWBSRollup(ctx context.Context, projectID ProjectID, wbsID estimate.WBSID) (*WBSRollup, error) {
	rollup, err := s.ComputeRollup(ctx, Scope{ProjectID: projectID, WBSID: wbsID}, Date{})
	if err != nil || rollup == nil {
		return nil, err
	}
	return rollup.FindWBS(wbsID), nil
}

// GetPhaseRollup returns one phase with activity-level detail, or nil.
func (s *Service) GetPhaseRollup(ctx context.Context, projectID ProjectID, phaseID estimate.PhaseID) (*PhaseRollup, error) {
	rollup, err := s.ComputeRollup(ctx, Scope{ProjectID: projectID, PhaseID: phaseID}, Date{})
	if err != nil || rollup == nil {
		return nil, err
	}
	return rollup.FindPhase(phaseID), nil
}

// EntryForm is what an entry form needs for one project and date.
type EntryForm struct {
	Date   Date
	Rollup *ProjectRollup

	// TodaysEntries holds the raw rows dated Date, keyed by activity.
	TodaysEntries map[estimate.ActivityID]ProgressEntry
}

// GetEntryFormData returns the full hierarchy with a day breakdown per
// activity plus that day's raw entries, or nil if the project is missing.
func (s *Service) GetEntryFormData(ctx context.Context, projectID ProjectID, date Date) (*EntryForm, error) {
	rollup, err := s.ComputeRollup(ctx, Scope{ProjectID: projectID}, date)
	if err != nil || rollup == nil {
		return nil, err
	}

	entries, err := s.store.ListEntries(ctx, EntryFilter{ProjectID: projectID, Date: date})
	if err != nil {
		return nil, err
	}

	today := make(map[estimate.ActivityID]ProgressEntry, len(entries))
	for _, e := range entries {
		today[e.ActivityID] = e
	}

	return &EntryForm{Date: date, Rollup: rollup, TodaysEntries: today}, nil
}

// GetEntriesForDate returns activity → quantity for that date only.
// Returns nil if the project does not exist.
func (s *Service) GetEntriesForDate(ctx context.Context, projectID ProjectID, date Date) (map[estimate.ActivityID]decimal.Decimal, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil || project == nil {
		return nil, err
	}

	entries, err := s.store.ListEntries(ctx, EntryFilter{ProjectID: projectID, Date: date})
	if err != nil {
		return nil, err
	}

	out := make(map[estimate.ActivityID]decimal.Decimal, len(entries))
	for _, e := range entries {
		out[e.ActivityID] = e.QuantityCompleted
	}
	return out, nil
}
