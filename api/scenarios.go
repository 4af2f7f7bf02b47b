/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Populates the database with a realistic estimate, a tracking project and
  a few days of crew entries, so the rollup screens have something to show.

AVAILABLE SCENARIOS:
  pipe-rack:  Piping and steel on a pipe rack, roughly a third complete,
              one welding line already over-completed
  tank-farm:  Two tanks plus civil work; only foundations started

HOW SCENARIOS WORK:
  1. Reset database (clear all data)
  2. Save the estimate hierarchy
  3. Create the tracking project
  4. Save one batch per working day, ending yesterday

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "pipe-rack"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Route table
  - cmd/server/main.go: "seed" command
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/truss/momentum/estimate"
	"github.com/truss/momentum/progress"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "pipe-rack",
		Name:        "Pipe Rack",
		Description: "Piping and structural steel, about a third complete with one over-completed weld line",
	},
	{
		ID:          "tank-farm",
		Name:        "Tank Farm",
		Description: "Two field-erected tanks and civil work; only foundations started",
	},
}

// dayBatch is one working day of entries, dated daysAgo before today.
type dayBatch struct {
	daysAgo int
	lines   map[estimate.ActivityID]string
}

type scenario struct {
	estimate estimate.Estimate
	days     []dayBatch
}

// Resetter is implemented by stores that can drop all data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario id, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario resets the database and loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	projectID, err := LoadScenario(r.Context(), h.Service, req.ScenarioID)
	if err != nil {
		if _, ok := scenarioByID(req.ScenarioID); !ok {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.log.Info().Str("scenario_id", req.ScenarioID).Str("project_id", string(projectID)).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, LoadScenarioResponse{ScenarioID: req.ScenarioID, ProjectID: string(projectID)})
}

// =============================================================================
// LOADING
// =============================================================================

// LoadScenario resets the service's store and loads the named scenario.
// Returns the id of the created project.
func LoadScenario(ctx context.Context, svc *progress.Service, id string) (progress.ProjectID, error) {
	sc, ok := scenarioByID(id)
	if !ok {
		return "", fmt.Errorf("unknown scenario %q", id)
	}

	resetter, ok := svc.Store().(Resetter)
	if !ok {
		return "", fmt.Errorf("store does not support reset")
	}
	if err := resetter.Reset(ctx); err != nil {
		return "", fmt.Errorf("failed to reset store: %w", err)
	}

	if err := svc.Store().SaveEstimate(ctx, sc.estimate); err != nil {
		return "", fmt.Errorf("failed to save estimate: %w", err)
	}
	project, err := svc.CreateProject(ctx, sc.estimate.Proposal.ID, progress.ProjectActive)
	if err != nil {
		return "", err
	}

	today := progress.Today()
	start := today.AddDays(-sc.days[0].daysAgo)
	status := progress.ProjectActive
	if _, err := svc.UpdateProject(ctx, project.ID, progress.ProjectPatch{Status: &status, StartDate: &start}); err != nil {
		return "", err
	}

	for _, day := range sc.days {
		subs := make([]progress.Submission, 0, len(day.lines))
		for activityID, qty := range day.lines {
			subs = append(subs, progress.Submission{
				ActivityID:        activityID,
				QuantityCompleted: decimal.RequireFromString(qty),
			})
		}
		if _, err := svc.SaveEntries(ctx, project.ID, today.AddDays(-day.daysAgo), subs); err != nil {
			return "", fmt.Errorf("failed to save day -%d: %w", day.daysAgo, err)
		}
	}
	return project.ID, nil
}

func scenarioByID(id string) (scenario, bool) {
	switch id {
	case "pipe-rack":
		return pipeRackScenario(), true
	case "tank-farm":
		return tankFarmScenario(), true
	}
	return scenario{}, false
}

// =============================================================================
// SCENARIO DATA
// =============================================================================

func labor(craft, welder string) *estimate.Labor {
	return &estimate.Labor{
		CraftConstant:  decimal.RequireFromString(craft),
		WelderConstant: decimal.RequireFromString(welder),
	}
}

func activity(id, wbs, phase, desc string, typ estimate.ActivityType, qty, unit string, l *estimate.Labor, order int) estimate.Activity {
	return estimate.Activity{
		ID:          estimate.ActivityID(id),
		WBSID:       estimate.WBSID(wbs),
		PhaseID:     estimate.PhaseID(phase),
		Description: desc,
		Type:        typ,
		Quantity:    decimal.RequireFromString(qty),
		Unit:        unit,
		Labor:       l,
		SortOrder:   order,
	}
}

func pipeRackScenario() scenario {
	return scenario{
		estimate: estimate.Estimate{
			Proposal: estimate.Proposal{
				ID: "pr-2025-014", Name: "Pipe Rack 3 Extension", Owner: "Gulf Coast Refining",
				Location: "Baytown, TX", JobNumber: "J-1042", DatasetVersion: "2025.2",
			},
			WBS: []estimate.WBS{
				{ID: "pr-pipe", Name: "Piping", SortOrder: 0},
				{ID: "pr-steel", Name: "Structural Steel", SortOrder: 1},
				{ID: "pr-elec", Name: "Electrical", SortOrder: 2},
			},
			Phases: []estimate.Phase{
				{ID: "pr-pipe-cs", WBSID: "pr-pipe", Name: "Carbon Steel Spool Install", SortOrder: 0},
				{ID: "pr-pipe-test", WBSID: "pr-pipe", Name: "Hydrotest", SortOrder: 1},
				{ID: "pr-steel-erect", WBSID: "pr-steel", Name: "Erection", SortOrder: 0},
			},
			Activities: []estimate.Activity{
				activity("pr-a1", "pr-pipe", "pr-pipe-cs", "6in Sch40 butt weld", estimate.TypeLabor, "100", "EA", labor("0.5", "0.1"), 0),
				activity("pr-a2", "pr-pipe", "pr-pipe-cs", "6in pipe handling and fit-up", estimate.TypeLabor, "800", "LF", labor("0.12", "0"), 1),
				activity("pr-a3", "pr-pipe", "pr-pipe-cs", "6in Sch40 pipe", estimate.TypeMaterial, "800", "LF", nil, 2),
				activity("pr-a4", "pr-pipe", "pr-pipe-test", "Hydrotest loops", estimate.TypeCustomLabor, "6", "EA", labor("16", "0"), 0),
				activity("pr-a5", "pr-steel", "pr-steel-erect", "Erect W-shapes", estimate.TypeLabor, "42", "TON", labor("14", "0"), 0),
				activity("pr-a6", "pr-steel", "pr-steel-erect", "Crane rental", estimate.TypeEquipment, "20", "DAY", nil, 1),
			},
		},
		days: []dayBatch{
			{daysAgo: 5, lines: map[estimate.ActivityID]string{"pr-a1": "20", "pr-a2": "120", "pr-a5": "6"}},
			{daysAgo: 4, lines: map[estimate.ActivityID]string{"pr-a1": "25", "pr-a2": "150", "pr-a5": "5.5"}},
			{daysAgo: 3, lines: map[estimate.ActivityID]string{"pr-a1": "30", "pr-a2": "90"}},
			{daysAgo: 1, lines: map[estimate.ActivityID]string{"pr-a1": "35", "pr-a5": "4"}},
		},
	}
}

func tankFarmScenario() scenario {
	return scenario{
		estimate: estimate.Estimate{
			Proposal: estimate.Proposal{
				ID: "tf-2025-003", Name: "North Tank Farm", Owner: "Permian Midstream",
				Location: "Midland, TX", JobNumber: "J-2210", DatasetVersion: "2025.2",
			},
			WBS: []estimate.WBS{
				{ID: "tf-civil", Name: "Civil", SortOrder: 0},
				{ID: "tf-t101", Name: "Tank T-101", SortOrder: 1},
				{ID: "tf-t102", Name: "Tank T-102", SortOrder: 2},
			},
			Phases: []estimate.Phase{
				{ID: "tf-civil-found", WBSID: "tf-civil", Name: "Ringwall Foundations", SortOrder: 0},
				{ID: "tf-t101-shell", WBSID: "tf-t101", Name: "Shell", SortOrder: 0},
				{ID: "tf-t102-shell", WBSID: "tf-t102", Name: "Shell", SortOrder: 0},
			},
			Activities: []estimate.Activity{
				activity("tf-a1", "tf-civil", "tf-civil-found", "Form ringwall", estimate.TypeLabor, "640", "SF", labor("0.18", "0"), 0),
				activity("tf-a2", "tf-civil", "tf-civil-found", "Place concrete", estimate.TypeLabor, "220", "CY", labor("0.9", "0"), 1),
				activity("tf-a3", "tf-civil", "tf-civil-found", "Rebar supply", estimate.TypeSubcontractor, "18", "TON", nil, 2),
				activity("tf-a4", "tf-t101", "tf-t101-shell", "Shell plate weld", estimate.TypeLabor, "360", "LF", labor("0.6", "0.9"), 0),
				activity("tf-a5", "tf-t102", "tf-t102-shell", "Shell plate weld", estimate.TypeLabor, "360", "LF", labor("0.6", "0.9"), 0),
			},
		},
		days: []dayBatch{
			{daysAgo: 3, lines: map[estimate.ActivityID]string{"tf-a1": "200"}},
			{daysAgo: 2, lines: map[estimate.ActivityID]string{"tf-a1": "240", "tf-a2": "40"}},
			{daysAgo: 1, lines: map[estimate.ActivityID]string{"tf-a1": "0", "tf-a2": "60"}},
		},
	}
}
