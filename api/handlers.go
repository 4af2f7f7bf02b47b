/*
handlers.go - HTTP API handlers for progress tracking

PURPOSE:
  Exposes the tracking engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to progress.Service.

ENDPOINTS:
  Proposals:
    GET    /api/proposals                          List imported proposals
    POST   /api/proposals                          Import an estimate document
    GET    /api/proposals/{id}                     Estimate document for a proposal

  Projects:
    GET    /api/projects                           List with project-level metrics
    POST   /api/projects                           Start tracking a proposal
    GET    /api/projects/{id}                      Full rollup
    PATCH  /api/projects/{id}                      Update name/status/dates
    DELETE /api/projects/{id}                      Delete project and its entries
    GET    /api/projects/{id}/wbs/{wbsID}          WBS rollup
    GET    /api/projects/{id}/phases/{phaseID}     Phase rollup
    GET    /api/projects/{id}/history              Earned MH per entry date
    GET    /api/projects/{id}/export.xlsx?date=    Workbook download

  Entries:
    GET    /api/projects/{id}/entry-form?date=     Entry form data (default today)
    GET    /api/projects/{id}/entries?date=        activity → quantity for one date
    POST   /api/projects/{id}/entries/validate     Validate without saving
    POST   /api/projects/{id}/entries              Validate, then save a batch
    DELETE /api/entries/{id}                       Delete one entry

  Scenarios:
    GET    /api/scenarios                          List demo scenarios
    POST   /api/scenarios/load                     Reset and load a scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found (reads return 404 for absent entities too)
  - 409: Conflict, or warnings not yet acknowledged
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/truss/momentum/estimate"
	"github.com/truss/momentum/export"
	"github.com/truss/momentum/progress"
)

const maxBodyBytes = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *progress.Service
	log     zerolog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over the given service.
func NewHandler(svc *progress.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		Service: svc,
		log:     logger.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// PROPOSAL HANDLERS
// =============================================================================

// ListProposals returns all imported proposals.
// GET /api/proposals
func (h *Handler) ListProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.Service.Store().ListProposals(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dtos := make([]ProposalDTO, len(proposals))
	for i, p := range proposals {
		dtos[i] = toProposalDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ImportProposal stores an estimate document, replacing any previous import
// of the same proposal.
// POST /api/proposals
func (h *Handler) ImportProposal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	est, warnings, err := estimate.ParseDocument(body)
	if err != nil {
		var docErr *estimate.DocumentError
		if errors.As(err, &docErr) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid estimate document",
				Details: strings.Join(docErr.Problems, "; "),
			})
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	if err := h.Service.Store().SaveEstimate(r.Context(), *est); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.log.Info().
		Str("proposal_id", string(est.Proposal.ID)).
		Int("activities", len(est.Activities)).
		Int("warnings", len(warnings)).
		Msg("estimate imported")

	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusCreated, ImportProposalResponse{
		Proposal:   toProposalDTO(est.Proposal),
		WBS:        len(est.WBS),
		Phases:     len(est.Phases),
		Activities: len(est.Activities),
		Warnings:   warnings,
	})
}

// GetProposal returns the stored estimate in document form.
// GET /api/proposals/{id}
func (h *Handler) GetProposal(w http.ResponseWriter, r *http.Request) {
	id := estimate.ProposalID(chi.URLParam(r, "id"))

	est, err := loadEstimate(r.Context(), h.Service.Store(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if est == nil {
		writeError(w, http.StatusNotFound, "Proposal not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, estimate.ToDocument(*est))
}

func loadEstimate(ctx context.Context, st progress.EstimateStore, id estimate.ProposalID) (*estimate.Estimate, error) {
	proposal, err := st.GetProposal(ctx, id)
	if err != nil || proposal == nil {
		return nil, err
	}
	wbs, err := st.ListWBS(ctx, id)
	if err != nil {
		return nil, err
	}
	phases, err := st.ListPhases(ctx, id)
	if err != nil {
		return nil, err
	}
	activities, err := st.ListActivities(ctx, progress.ActivityFilter{ProposalID: id})
	if err != nil {
		return nil, err
	}
	return &estimate.Estimate{Proposal: *proposal, WBS: wbs, Phases: phases, Activities: activities}, nil
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects returns all projects with project-level metrics.
// GET /api/projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Service.ListProjects(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dtos := make([]ProjectSummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = ProjectSummaryDTO{Project: toProjectDTO(s.Project), Metrics: toMetricsDTO(s.Metrics)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProject starts tracking a proposal.
// POST /api/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProposalID) == "" {
		writeError(w, http.StatusBadRequest, "proposal_id is required", nil)
		return
	}

	p, err := h.Service.CreateProject(r.Context(), estimate.ProposalID(req.ProposalID), progress.ProjectStatus(req.Status))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectDTO(*p))
}

// GetProject returns the full rollup tree.
// GET /api/projects/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	rollup, err := h.Service.GetProjectRollup(r.Context(), projectID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if rollup == nil {
		writeError(w, http.StatusNotFound, "Project not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toProjectRollupDTO(rollup))
}

// UpdateProject patches user-editable settings.
// PATCH /api/projects/{id}
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req UpdateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	patch := progress.ProjectPatch{Name: req.Name}
	if req.Status != nil {
		status, err := progress.ParseProjectStatus(*req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid status", err)
			return
		}
		patch.Status = &status
	}
	var err error
	if patch.StartDate, err = optionalDate(req.StartDate); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	if patch.EndDate, err = optionalDate(req.EndDate); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}

	p, err := h.Service.UpdateProject(r.Context(), projectID(r), patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(*p))
}

// DeleteProject removes a project and its entries.
// DELETE /api/projects/{id}
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteProject(r.Context(), projectID(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWBSRollup returns one WBS with its phases.
// GET /api/projects/{id}/wbs/{wbsID}
func (h *Handler) GetWBSRollup(w http.ResponseWriter, r *http.Request) {
	wbs, err := h.Service.GetWBSRollup(r.Context(), projectID(r), estimate.WBSID(chi.URLParam(r, "wbsID")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if wbs == nil {
		writeError(w, http.StatusNotFound, "WBS not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toWBSRollupDTO(*wbs))
}

// GetPhaseRollup returns one phase with its activities.
// GET /api/projects/{id}/phases/{phaseID}
func (h *Handler) GetPhaseRollup(w http.ResponseWriter, r *http.Request) {
	phase, err := h.Service.GetPhaseRollup(r.Context(), projectID(r), estimate.PhaseID(chi.URLParam(r, "phaseID")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if phase == nil {
		writeError(w, http.StatusNotFound, "Phase not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPhaseRollupDTO(*phase))
}

// GetHistory returns earned man-hours per entry date.
// GET /api/projects/{id}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	points, err := h.Service.ProgressHistory(r.Context(), projectID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if points == nil {
		// Distinguish a project with no entries from a missing project.
		p, err := h.Service.GetProject(r.Context(), projectID(r))
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if p == nil {
			writeError(w, http.StatusNotFound, "Project not found", nil)
			return
		}
	}

	dtos := make([]HistoryPointDTO, len(points))
	for i, p := range points {
		dtos[i] = HistoryPointDTO{
			Date:               p.Date.String(),
			EarnedMH:           f64(p.EarnedMH),
			CumulativeEarnedMH: f64(p.CumulativeEarnedMH),
			PercentComplete:    p.PercentComplete,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ExportWorkbook streams the project rollup as .xlsx. With ?date= the
// activity sheet carries that day's breakdown.
// GET /api/projects/{id}/export.xlsx
func (h *Handler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateParam(w, r, false)
	if !ok {
		return
	}

	rollup, err := h.Service.ComputeRollup(r.Context(), progress.Scope{ProjectID: projectID(r)}, asOf)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if rollup == nil {
		writeError(w, http.StatusNotFound, "Project not found", nil)
		return
	}

	f, err := export.NewProjectWorkbook(rollup)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("%s-progress.xlsx", rollup.Project.ID)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		h.log.Error().Err(err).Str("project_id", string(rollup.Project.ID)).Msg("workbook write failed")
	}
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// GetEntryForm returns the hierarchy with a day breakdown and that day's rows.
// GET /api/projects/{id}/entry-form?date=YYYY-MM-DD
func (h *Handler) GetEntryForm(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r, false)
	if !ok {
		return
	}
	if date.IsZero() {
		date = progress.Today()
	}

	form, err := h.Service.GetEntryFormData(r.Context(), projectID(r), date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if form == nil {
		writeError(w, http.StatusNotFound, "Project not found", nil)
		return
	}

	today := make(map[string]EntryDTO, len(form.TodaysEntries))
	for id, e := range form.TodaysEntries {
		today[string(id)] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, EntryFormDTO{
		Date:          form.Date.String(),
		Rollup:        toProjectRollupDTO(form.Rollup),
		TodaysEntries: today,
	})
}

// GetEntriesForDate returns activity id → quantity for one date.
// GET /api/projects/{id}/entries?date=YYYY-MM-DD
func (h *Handler) GetEntriesForDate(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r, true)
	if !ok {
		return
	}

	entries, err := h.Service.GetEntriesForDate(r.Context(), projectID(r), date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		writeError(w, http.StatusNotFound, "Project not found", nil)
		return
	}

	out := make(map[string]float64, len(entries))
	for id, q := range entries {
		out[string(id)] = f64(q)
	}
	writeJSON(w, http.StatusOK, out)
}

// ValidateEntries runs entry-time validation without saving.
// POST /api/projects/{id}/entries/validate
func (h *Handler) ValidateEntries(w http.ResponseWriter, r *http.Request) {
	req, date, ok := decodeBatch(w, r)
	if !ok {
		return
	}

	report, found := h.validate(w, r, date, req)
	if !found {
		return
	}
	writeJSON(w, http.StatusOK, ValidationResponse{Issues: toIssueDTOs(report.Issues)})
}

// SaveEntries validates a batch, then reconciles it.
//
// Error-class issues → 400. Warning-class issues without
// acknowledge_warnings → 409. Otherwise the batch is saved and any warnings
// are returned with the per-line outcomes.
// POST /api/projects/{id}/entries
func (h *Handler) SaveEntries(w http.ResponseWriter, r *http.Request) {
	req, date, ok := decodeBatch(w, r)
	if !ok {
		return
	}

	report, found := h.validate(w, r, date, req)
	if !found {
		return
	}
	if report.HasErrors() {
		writeJSON(w, http.StatusBadRequest, ValidationResponse{
			Error:  "Entries have errors",
			Issues: toIssueDTOs(report.Errors()),
		})
		return
	}
	warnings := report.Warnings()
	if len(warnings) > 0 && !req.AcknowledgeWarnings {
		writeJSON(w, http.StatusConflict, ValidationResponse{
			Error:  "Entries have warnings that must be acknowledged",
			Issues: toIssueDTOs(warnings),
		})
		return
	}

	result, err := h.Service.SaveEntries(r.Context(), projectID(r), date, req.submissions())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	outcomes := make([]OutcomeDTO, len(result.Outcomes))
	for i, o := range result.Outcomes {
		outcomes[i] = OutcomeDTO{ActivityID: string(o.ActivityID), Outcome: string(o.Outcome), EntryID: string(o.EntryID)}
		if o.Err != nil {
			outcomes[i].Reason = o.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, SaveEntriesResponse{
		ProjectID: string(result.ProjectID),
		EntryDate: result.EntryDate.String(),
		Outcomes:  outcomes,
		Warnings:  toIssueDTOs(warnings),
	})
}

// DeleteEntry removes a single entry.
// DELETE /api/entries/{id}
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteEntry(r.Context(), progress.EntryID(chi.URLParam(r, "id"))); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBatch(w http.ResponseWriter, r *http.Request) (SaveEntriesRequest, progress.Date, bool) {
	var req SaveEntriesRequest
	if !decodeJSON(w, r, &req) {
		return req, progress.Date{}, false
	}
	date, err := progress.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return req, progress.Date{}, false
	}
	return req, date, true
}

// validate loads the entry form for date and checks the batch against it.
// found is false once a response has been written.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request, date progress.Date, req SaveEntriesRequest) (progress.ValidationReport, bool) {
	form, err := h.Service.GetEntryFormData(r.Context(), projectID(r), date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return progress.ValidationReport{}, false
	}
	if form == nil {
		writeError(w, http.StatusNotFound, "Project not found", nil)
		return progress.ValidationReport{}, false
	}
	return progress.ValidateSubmissions(form, req.submissions()), true
}

// =============================================================================
// HELPERS
// =============================================================================

func projectID(r *http.Request) progress.ProjectID {
	return progress.ProjectID(chi.URLParam(r, "id"))
}

// dateParam reads ?date=. A missing value is an error only when required.
func dateParam(w http.ResponseWriter, r *http.Request, required bool) (progress.Date, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		if required {
			writeError(w, http.StatusBadRequest, "date query parameter is required", nil)
			return progress.Date{}, false
		}
		return progress.Date{}, true
	}
	d, err := progress.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return progress.Date{}, false
	}
	return d, true
}

func optionalDate(s *string) (*progress.Date, error) {
	if s == nil {
		return nil, nil
	}
	if *s == "" {
		return &progress.Date{}, nil
	}
	d, err := progress.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps engine errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *progress.ValidationError
	switch {
	case errors.As(err, &verr):
		msg := verr.Message
		if msg == "" {
			msg = "Validation failed"
		}
		writeJSON(w, http.StatusBadRequest, ValidationResponse{Error: msg, Issues: toIssueDTOs(verr.Issues)})
	case progress.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case progress.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
