/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

NUMBERS:
  Man-hours and quantities leave the API as JSON numbers (float64). They
  arrive as decimal.Decimal, which accepts both numbers and strings, so
  no float rounding touches what gets stored.

DATES:
  Entry dates are "YYYY-MM-DD" strings. Zero dates are omitted.

SEE ALSO:
  - handlers.go: Uses these types
  - progress/rollup.go: The tree these DTOs mirror
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/truss/momentum/estimate"
	"github.com/truss/momentum/progress"
)

// =============================================================================
// PROPOSALS
// =============================================================================

type ProposalDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Owner          string `json:"owner,omitempty"`
	Location       string `json:"location,omitempty"`
	JobNumber      string `json:"job_number,omitempty"`
	DatasetVersion string `json:"dataset_version,omitempty"`
}

// ImportProposalResponse summarizes an imported estimate document.
type ImportProposalResponse struct {
	Proposal   ProposalDTO `json:"proposal"`
	WBS        int         `json:"wbs"`
	Phases     int         `json:"phases"`
	Activities int         `json:"activities"`
	Warnings   []string    `json:"warnings"`
}

func toProposalDTO(p estimate.Proposal) ProposalDTO {
	return ProposalDTO{
		ID:             string(p.ID),
		Name:           p.Name,
		Owner:          p.Owner,
		Location:       p.Location,
		JobNumber:      p.JobNumber,
		DatasetVersion: p.DatasetVersion,
	}
}

// =============================================================================
// PROJECTS
// =============================================================================

type ProjectDTO struct {
	ID            string    `json:"id"`
	ProposalID    string    `json:"proposal_id"`
	Name          string    `json:"name"`
	Owner         string    `json:"owner,omitempty"`
	Location      string    `json:"location,omitempty"`
	JobNumber     string    `json:"job_number,omitempty"`
	Status        string    `json:"status"`
	StartDate     string    `json:"start_date,omitempty"`
	EndDate       string    `json:"end_date,omitempty"`
	LastEntryDate string    `json:"last_entry_date,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ProjectSummaryDTO struct {
	Project ProjectDTO `json:"project"`
	Metrics MetricsDTO `json:"metrics"`
}

type CreateProjectRequest struct {
	ProposalID string `json:"proposal_id"`
	Status     string `json:"status,omitempty"`
}

// UpdateProjectRequest patches only the fields present.
type UpdateProjectRequest struct {
	Name      *string `json:"name,omitempty"`
	Status    *string `json:"status,omitempty"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
}

func toProjectDTO(p progress.Project) ProjectDTO {
	return ProjectDTO{
		ID:            string(p.ID),
		ProposalID:    string(p.ProposalID),
		Name:          p.Name,
		Owner:         p.Owner,
		Location:      p.Location,
		JobNumber:     p.JobNumber,
		Status:        string(p.Status),
		StartDate:     p.StartDate.String(),
		EndDate:       p.EndDate.String(),
		LastEntryDate: p.LastEntryDate.String(),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// =============================================================================
// ROLLUPS
// =============================================================================

type MetricsDTO struct {
	TotalMH         float64 `json:"total_mh"`
	EarnedMH        float64 `json:"earned_mh"`
	RemainingMH     float64 `json:"remaining_mh"`
	PercentComplete int64   `json:"percent_complete"`
	Status          string  `json:"status"`
}

type DayBreakdownDTO struct {
	PreviousTotal   float64 `json:"previous_total"`
	TodaysEntry     float64 `json:"todays_entry"`
	NewTotal        float64 `json:"new_total"`
	Remaining       float64 `json:"remaining"`
	PercentComplete int64   `json:"percent_complete"`
}

type ActivityRollupDTO struct {
	ID                string           `json:"id"`
	Description       string           `json:"description"`
	Type              string           `json:"type"`
	Unit              string           `json:"unit"`
	Quantity          float64          `json:"quantity"`
	CompletedQuantity float64          `json:"completed_quantity"`
	ManHoursPerUnit   float64          `json:"mh_per_unit"`
	Metrics           MetricsDTO       `json:"metrics"`
	Day               *DayBreakdownDTO `json:"day,omitempty"`
}

type PhaseRollupDTO struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Metrics    MetricsDTO          `json:"metrics"`
	Activities []ActivityRollupDTO `json:"activities"`
}

type WBSRollupDTO struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Metrics MetricsDTO       `json:"metrics"`
	Phases  []PhaseRollupDTO `json:"phases"`
}

type ProjectRollupDTO struct {
	Project ProjectDTO     `json:"project"`
	AsOf    string         `json:"as_of,omitempty"`
	Metrics MetricsDTO     `json:"metrics"`
	WBS     []WBSRollupDTO `json:"wbs"`
}

type EntryFormDTO struct {
	Date          string              `json:"date"`
	Rollup        ProjectRollupDTO    `json:"rollup"`
	TodaysEntries map[string]EntryDTO `json:"todays_entries"`
}

type HistoryPointDTO struct {
	Date               string  `json:"date"`
	EarnedMH           float64 `json:"earned_mh"`
	CumulativeEarnedMH float64 `json:"cumulative_earned_mh"`
	PercentComplete    int64   `json:"percent_complete"`
}

func f64(d decimal.Decimal) float64 { return d.InexactFloat64() }

func toMetricsDTO(m progress.Metrics) MetricsDTO {
	return MetricsDTO{
		TotalMH:         f64(m.TotalMH),
		EarnedMH:        f64(m.EarnedMH),
		RemainingMH:     f64(m.RemainingMH()),
		PercentComplete: m.PercentComplete,
		Status:          string(m.Status),
	}
}

func toActivityRollupDTO(a progress.ActivityRollup) ActivityRollupDTO {
	dto := ActivityRollupDTO{
		ID:                string(a.Activity.ID),
		Description:       a.Activity.Description,
		Type:              string(a.Activity.Type),
		Unit:              a.Activity.Unit,
		Quantity:          f64(a.Activity.Quantity),
		CompletedQuantity: f64(a.CompletedQuantity),
		ManHoursPerUnit:   f64(a.Activity.ManHoursPerUnit()),
		Metrics:           toMetricsDTO(a.Metrics),
	}
	if a.Day != nil {
		dto.Day = &DayBreakdownDTO{
			PreviousTotal:   f64(a.Day.PreviousTotal),
			TodaysEntry:     f64(a.Day.TodaysEntry),
			NewTotal:        f64(a.Day.NewTotal),
			Remaining:       f64(a.Day.Remaining),
			PercentComplete: a.Metrics.PercentComplete,
		}
	}
	return dto
}

func toPhaseRollupDTO(p progress.PhaseRollup) PhaseRollupDTO {
	acts := make([]ActivityRollupDTO, len(p.Activities))
	for i, a := range p.Activities {
		acts[i] = toActivityRollupDTO(a)
	}
	return PhaseRollupDTO{
		ID:         string(p.Phase.ID),
		Name:       p.Phase.Name,
		Metrics:    toMetricsDTO(p.Metrics),
		Activities: acts,
	}
}

func toWBSRollupDTO(w progress.WBSRollup) WBSRollupDTO {
	phases := make([]PhaseRollupDTO, len(w.Phases))
	for i, p := range w.Phases {
		phases[i] = toPhaseRollupDTO(p)
	}
	return WBSRollupDTO{
		ID:      string(w.WBS.ID),
		Name:    w.WBS.Name,
		Metrics: toMetricsDTO(w.Metrics),
		Phases:  phases,
	}
}

func toProjectRollupDTO(r *progress.ProjectRollup) ProjectRollupDTO {
	wbs := make([]WBSRollupDTO, len(r.WBS))
	for i, w := range r.WBS {
		wbs[i] = toWBSRollupDTO(w)
	}
	return ProjectRollupDTO{
		Project: toProjectDTO(r.Project),
		AsOf:    r.AsOf.String(),
		Metrics: toMetricsDTO(r.Metrics),
		WBS:     wbs,
	}
}

// =============================================================================
// ENTRIES
// =============================================================================

type EntryDTO struct {
	ID                string  `json:"id"`
	ActivityID        string  `json:"activity_id"`
	WBSID             string  `json:"wbs_id"`
	PhaseID           string  `json:"phase_id"`
	EntryDate         string  `json:"entry_date"`
	QuantityCompleted float64 `json:"quantity_completed"`
	Notes             string  `json:"notes,omitempty"`
}

type EntryLineRequest struct {
	ActivityID        string          `json:"activity_id"`
	QuantityCompleted decimal.Decimal `json:"quantity_completed"`
	Notes             string          `json:"notes,omitempty"`
}

// SaveEntriesRequest is one day's batch for one project.
type SaveEntriesRequest struct {
	Date                string             `json:"date"`
	Entries             []EntryLineRequest `json:"entries"`
	AcknowledgeWarnings bool               `json:"acknowledge_warnings"`
}

type OutcomeDTO struct {
	ActivityID string `json:"activity_id"`
	Outcome    string `json:"outcome"`
	EntryID    string `json:"entry_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type SaveEntriesResponse struct {
	ProjectID string       `json:"project_id"`
	EntryDate string       `json:"entry_date"`
	Outcomes  []OutcomeDTO `json:"outcomes"`
	Warnings  []IssueDTO   `json:"warnings"`
}

type IssueDTO struct {
	ActivityID string `json:"activity_id,omitempty"`
	Severity   string `json:"severity"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// ValidationResponse is returned with 400 (errors) or 409 (unacknowledged
// warnings).
type ValidationResponse struct {
	Error  string     `json:"error"`
	Issues []IssueDTO `json:"issues"`
}

func toEntryDTO(e progress.ProgressEntry) EntryDTO {
	return EntryDTO{
		ID:                string(e.ID),
		ActivityID:        string(e.ActivityID),
		WBSID:             string(e.WBSID),
		PhaseID:           string(e.PhaseID),
		EntryDate:         e.EntryDate.String(),
		QuantityCompleted: f64(e.QuantityCompleted),
		Notes:             e.Notes,
	}
}

func toIssueDTOs(issues []progress.Issue) []IssueDTO {
	out := make([]IssueDTO, len(issues))
	for i, is := range issues {
		out[i] = IssueDTO{
			ActivityID: string(is.ActivityID),
			Severity:   string(is.Severity),
			Code:       is.Code,
			Message:    is.Message,
		}
	}
	return out
}

func (r SaveEntriesRequest) submissions() []progress.Submission {
	subs := make([]progress.Submission, len(r.Entries))
	for i, e := range r.Entries {
		subs[i] = progress.Submission{
			ActivityID:        estimate.ActivityID(e.ActivityID),
			QuantityCompleted: e.QuantityCompleted,
			Notes:             e.Notes,
		}
	}
	return subs
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	ScenarioID string `json:"scenario_id"`
	ProjectID  string `json:"project_id"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
