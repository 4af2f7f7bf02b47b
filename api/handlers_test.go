/*
handlers_test.go - HTTP tests for the API surface

Tests for:
- Estimate import and proposal lookup
- Project lifecycle and status mapping of engine errors
- Entry batches: validation errors, warning acknowledgment, save outcomes
- Rollup, entry form, history and workbook endpoints
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/truss/momentum/progress"
	"github.com/truss/momentum/progress/store"
	"github.com/xuri/excelize/v2"
)

const estimateDoc = `{
  "proposal": {"id": "prop-1", "name": "Pipe Rack", "owner": "Acme", "job_number": "J-7"},
  "wbs": [
    {"id": "w-pipe", "name": "Piping", "phases": [
      {"id": "p-cs", "name": "Carbon Steel", "activities": [
        {"id": "a-weld", "description": "Butt weld", "type": "labor", "quantity": 100, "unit": "EA",
         "labor": {"craft_constant": 0.5, "welder_constant": 0.1}},
        {"id": "a-pipe", "description": "Pipe", "type": "material", "quantity": 400, "unit": "LF"}
      ]}
    ]},
    {"id": "w-civil", "name": "Civil", "phases": [
      {"id": "p-found", "name": "Foundations", "activities": [
        {"id": "a-pour", "description": "Pour", "type": "custom_labor", "quantity": 10, "unit": "CY",
         "labor": {"craft_constant": 2, "welder_constant": 0}}
      ]}
    ]}
  ]
}`

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	t      *testing.T
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc := progress.NewService(store.NewMemory(), zerolog.Nop())
	h := NewHandler(svc, zerolog.Nop())
	return &testServer{t: t, router: NewRouter(h, []string{"http://localhost:5173"})}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// withProject imports the estimate and creates a project for it.
func (s *testServer) withProject() string {
	s.t.Helper()
	rec := s.do("POST", "/api/proposals", estimateDoc)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do("POST", "/api/projects", `{"proposal_id": "prop-1"}`)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ProjectDTO](s.t, rec).ID
}

// =============================================================================
// PROPOSALS
// =============================================================================

func TestImportProposal(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/api/proposals", estimateDoc)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[ImportProposalResponse](t, rec)
	assert.Equal(t, "prop-1", resp.Proposal.ID)
	assert.Equal(t, 2, resp.WBS)
	assert.Equal(t, 3, resp.Activities)
	assert.Empty(t, resp.Warnings)

	rec = s.do("GET", "/api/proposals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ProposalDTO](t, rec), 1)

	rec = s.do("GET", "/api/proposals/prop-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"a-weld"`)

	rec = s.do("GET", "/api/proposals/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportProposal_Rejected(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/api/proposals", `{"proposal": {"id": ""}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "Invalid estimate document")

	rec = s.do("POST", "/api/proposals", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PROJECTS
// =============================================================================

func TestCreateProject_StatusMapping(t *testing.T) {
	s := newTestServer(t)
	s.withProject()

	rec := s.do("POST", "/api/projects", `{"proposal_id": "prop-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do("POST", "/api/projects", `{"proposal_id": "nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do("POST", "/api/projects", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjectRollupEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := s.withProject()

	rec := s.do("POST", "/api/projects/"+id+"/entries",
		`{"date": "2025-03-03", "entries": [{"activity_id": "a-weld", "quantity_completed": 40}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("GET", "/api/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ProjectSummaryDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, 80.0, list[0].Metrics.TotalMH)
	assert.Equal(t, 24.0, list[0].Metrics.EarnedMH)
	assert.Equal(t, int64(30), list[0].Metrics.PercentComplete)

	rec = s.do("GET", "/api/projects/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rollup := decode[ProjectRollupDTO](t, rec)
	require.Len(t, rollup.WBS, 2)
	weld := rollup.WBS[0].Phases[0].Activities[0]
	assert.Equal(t, "a-weld", weld.ID)
	assert.Equal(t, int64(40), weld.Metrics.PercentComplete)
	assert.Equal(t, "in-progress", weld.Metrics.Status)
	assert.InDelta(t, 0.6, weld.ManHoursPerUnit, 1e-9)

	rec = s.do("GET", "/api/projects/"+id+"/wbs/w-civil", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not-started", decode[WBSRollupDTO](t, rec).Metrics.Status)

	rec = s.do("GET", "/api/projects/"+id+"/phases/p-cs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[PhaseRollupDTO](t, rec).Activities, 1)

	for _, path := range []string{
		"/api/projects/nope",
		"/api/projects/" + id + "/wbs/nope",
		"/api/projects/" + id + "/phases/nope",
		"/api/projects/nope/history",
	} {
		assert.Equal(t, http.StatusNotFound, s.do("GET", path, "").Code, path)
	}
}

func TestUpdateAndDeleteProject(t *testing.T) {
	s := newTestServer(t)
	id := s.withProject()

	rec := s.do("PATCH", "/api/projects/"+id, `{"name": "Renamed", "status": "on-hold", "start_date": "2025-03-01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[ProjectDTO](t, rec)
	assert.Equal(t, "Renamed", p.Name)
	assert.Equal(t, "on-hold", p.Status)
	assert.Equal(t, "2025-03-01", p.StartDate)

	assert.Equal(t, http.StatusBadRequest, s.do("PATCH", "/api/projects/"+id, `{"status": "paused"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("PATCH", "/api/projects/"+id, `{"end_date": "2025-01-01"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("PATCH", "/api/projects/"+id, `{"start_date": "March"}`).Code)

	assert.Equal(t, http.StatusNoContent, s.do("DELETE", "/api/projects/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/projects/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do("DELETE", "/api/projects/"+id, "").Code)
}

// =============================================================================
// ENTRIES
// =============================================================================

func TestSaveEntries_NegativeQuantityIs400(t *testing.T) {
	s := newTestServer(t)
	id := s.withProject()

	rec := s.do("POST", "/api/projects/"+id+"/entries",
		`{"date": "2025-03-03", "entries": [{"activity_id": "a-weld", "quantity_completed": -1}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ValidationResponse](t, rec)
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, progress.CodeNegativeQuantity, resp.Issues[0].Code)
}

func TestSaveEntries_WarningsNeedAcknowledgment(t *testing.T) {
	// GIVEN: A batch pushing welding past its budgeted quantity
	// WHEN: Submitted without, then with, acknowledge_warnings
	// THEN: 409 first, then saved with the warning echoed back

	s := newTestServer(t)
	id := s.withProject()
	batch := `"date": "2025-03-03", "entries": [{"activity_id": "a-weld", "quantity_completed": "120"}]`

	rec := s.do("POST", "/api/projects/"+id+"/entries", "{"+batch+"}")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, progress.CodeExceedsRemaining, decode[ValidationResponse](t, rec).Issues[0].Code)

	rec = s.do("GET", "/api/projects/"+id+"/entries?date=2025-03-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string]float64](t, rec), "nothing saved without acknowledgment")

	rec = s.do("POST", "/api/projects/"+id+"/entries", "{"+batch+`, "acknowledge_warnings": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SaveEntriesResponse](t, rec)
	assert.Len(t, resp.Warnings, 1)
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, "inserted", resp.Outcomes[0].Outcome)
}

func TestSaveEntries_EmptyAndStaleBatches(t *testing.T) {
	s := newTestServer(t)
	id := s.withProject()

	rec := s.do("POST", "/api/projects/"+id+"/entries", `{"date": "2025-03-03", "entries": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("POST", "/api/projects/"+id+"/entries",
		`{"date": "2025-03-03", "entries": [{"activity_id": "a-gone", "quantity_completed": 1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("POST", "/api/projects/"+id+"/entries", `{"date": "03/03/2025", "entries": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("POST", "/api/projects/nope/entries",
		`{"date": "2025-03-03", "entries": [{"activity_id": "a-weld", "quantity_completed": 1}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveEntries_StaleLineCarriesReason(t *testing.T) {
	s := newTestServer(t)
	id := s.withProject()

	rec := s.do("POST", "/api/projects/"+id+"/entries",
		`{"date": "2025-03-03", "entries": [{"activity_id": "a-weld", "quantity_completed": 1}, {"activity_id": "a-gone", "quantity_completed": 1}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SaveEntriesResponse](t, rec)
	require.Len(t, resp.Outcomes, 2)
	assert.Empty(t, resp.Outcomes[0].Reason)
	assert.Equal(t, "skipped_stale", resp.Outcomes[1].Outcome)
	assert.Equal(t, progress.ErrStaleReference.Error(), resp.Outcomes[1].Reason)
}

func TestEntryFormAndEntriesForDate(t *testing.T) {
	s := newTestServer(t)
	id := s.withProject()

	s.do("POST", "/api/projects/"+id+"/entries",
		`{"date": "2025-03-03", "entries": [{"activity_id": "a-weld", "quantity_completed": 30}]}`)
	s.do("POST", "/api/projects/"+id+"/entries",
		`{"date": "2025-03-04", "entries": [{"activity_id": "a-weld", "quantity_completed": 10, "notes": "rain delay"}]}`)

	rec := s.do("GET", "/api/projects/"+id+"/entry-form?date=2025-03-04", "")
	require.Equal(t, http.StatusOK, rec.Code)
	form := decode[EntryFormDTO](t, rec)
	assert.Equal(t, "2025-03-04", form.Date)
	weld := form.Rollup.WBS[0].Phases[0].Activities[0]
	require.NotNil(t, weld.Day)
	assert.Equal(t, 30.0, weld.Day.PreviousTotal)
	assert.Equal(t, 10.0, weld.Day.TodaysEntry)
	assert.Equal(t, 40.0, weld.Day.NewTotal)
	assert.Equal(t, 60.0, weld.Day.Remaining)
	assert.Equal(t, "rain delay", form.TodaysEntries["a-weld"].Notes)

	rec = s.do("GET", "/api/projects/"+id+"/entries?date=2025-03-04", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]float64{"a-weld": 10}, decode[map[string]float64](t, rec))

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/projects/"+id+"/entries", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/projects/"+id+"/entry-form?date=bad", "").Code)
}

func TestValidateEntries(t *testing.T) {
	s := newTestServer(t)
	id := s.withProject()

	rec := s.do("POST", "/api/projects/"+id+"/entries/validate",
		`{"date": "2025-03-03", "entries": [{"activity_id": "a-weld", "quantity_completed": 101}, {"activity_id": "a-pour", "quantity_completed": -2}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ValidationResponse](t, rec).Issues, 2)
}

func TestDeleteEntry(t *testing.T) {
	s := newTestServer(t)
	id := s.withProject()

	rec := s.do("POST", "/api/projects/"+id+"/entries",
		`{"date": "2025-03-03", "entries": [{"activity_id": "a-weld", "quantity_completed": 5}]}`)
	entryID := decode[SaveEntriesResponse](t, rec).Outcomes[0].EntryID
	require.NotEmpty(t, entryID)

	assert.Equal(t, http.StatusNoContent, s.do("DELETE", "/api/entries/"+entryID, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do("DELETE", "/api/entries/"+entryID, "").Code)
}

// =============================================================================
// HISTORY AND EXPORT
// =============================================================================

func TestHistory(t *testing.T) {
	s := newTestServer(t)
	id := s.withProject()

	rec := s.do("GET", "/api/projects/"+id+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]HistoryPointDTO](t, rec))

	s.do("POST", "/api/projects/"+id+"/entries",
		`{"date": "2025-03-03", "entries": [{"activity_id": "a-weld", "quantity_completed": 40}]}`)

	rec = s.do("GET", "/api/projects/"+id+"/history", "")
	points := decode[[]HistoryPointDTO](t, rec)
	require.Len(t, points, 1)
	assert.Equal(t, "2025-03-03", points[0].Date)
	assert.Equal(t, 24.0, points[0].CumulativeEarnedMH)
}

func TestExportWorkbook(t *testing.T) {
	s := newTestServer(t)
	id := s.withProject()

	rec := s.do("GET", "/api/projects/"+id+"/export.xlsx?date=2025-03-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Activities")

	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/projects/nope/export.xlsx", "").Code)
}
