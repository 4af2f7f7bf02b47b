package progress

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/truss/momentum/estimate"
)

// HistoryPoint is project-wide progress as of the end of one entry date.
type HistoryPoint struct {
	Date               Date
	EarnedMH           decimal.Decimal // earned on this date alone
	CumulativeEarnedMH decimal.Decimal
	PercentComplete    int64 // cumulative, against the whole project's total MH
}

// ProgressHistory returns one point per date that has entries, oldest first.
// Returns nil if the project does not exist.
func (s *Service) ProgressHistory(ctx context.Context, projectID ProjectID) ([]HistoryPoint, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil || project == nil {
		return nil, err
	}

	activities, err := s.store.ListActivities(ctx, ActivityFilter{
		ProposalID: project.ProposalID,
		Types:      estimate.LaborBearingTypes,
	})
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, EntryFilter{ProjectID: projectID})
	if err != nil {
		return nil, err
	}

	perUnit := make(map[estimate.ActivityID]decimal.Decimal, len(activities))
	total := decimal.Zero
	for _, a := range activities {
		perUnit[a.ID] = a.ManHoursPerUnit()
		total = total.Add(a.BudgetedManHours())
	}

	// Keyed by YYYY-MM-DD, which also sorts chronologically.
	daily := make(map[string]decimal.Decimal)
	for _, e := range entries {
		rate, ok := perUnit[e.ActivityID]
		if !ok {
			continue
		}
		day := e.EntryDate.String()
		daily[day] = daily[day].Add(e.QuantityCompleted.Mul(rate))
	}

	days := make([]string, 0, len(daily))
	for d := range daily {
		days = append(days, d)
	}
	sort.Strings(days)

	points := make([]HistoryPoint, 0, len(days))
	cumulative := decimal.Zero
	for _, d := range days {
		cumulative = cumulative.Add(daily[d])
		points = append(points, HistoryPoint{
			Date:               MustParseDate(d),
			EarnedMH:           daily[d],
			CumulativeEarnedMH: cumulative,
			PercentComplete:    PercentComplete(cumulative, total),
		})
	}
	return points, nil
}
