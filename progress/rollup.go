/*
rollup.go - Hierarchical man-hour aggregation

PURPOSE:
  Joins budgeted labor activities with their progress entries and folds the
  result up Activity → Phase → WBS → Project. Pure functions only; fetching
  happens in service.go with a fixed number of store calls per rollup.

PER ACTIVITY:
  completed = Σ quantityCompleted over every entry for the activity
  totalMH   = quantity  × (craft + welder)
  earnedMH  = completed × (craft + welder)

PER PARENT:
  totalMH and earnedMH are sums of the children. Percent and status are
  recomputed from those sums, never from the children's rounded percents.

AS-OF DATE:
  When an as-of date is given each activity also carries a DayBreakdown:
    previousTotal = completed excluding entries dated as-of
    todaysEntry   = quantity dated exactly as-of
    newTotal      = previousTotal + todaysEntry
    remaining     = max(0, quantity − completed)

EXAMPLE:
  quantity 100, craft 0.5, welder 0.1 → totalMH 60
  40 completed → earnedMH 24, 40%, in-progress
  120 completed → earnedMH 72, 120%, complete, remaining 0
*/
package progress

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/truss/momentum/estimate"
)

// =============================================================================
// ROLLUP TREE
// =============================================================================

// Scope selects the part of a project a rollup covers.
// PhaseID narrows further than WBSID; both empty means the whole project.
type Scope struct {
	ProjectID ProjectID
	WBSID     estimate.WBSID
	PhaseID   estimate.PhaseID
}

// DayBreakdown is the entry-form view of one activity on one date.
type DayBreakdown struct {
	PreviousTotal decimal.Decimal
	TodaysEntry   decimal.Decimal
	NewTotal      decimal.Decimal
	Remaining     decimal.Decimal
}

type ActivityRollup struct {
	Activity          estimate.Activity
	CompletedQuantity decimal.Decimal
	Metrics           Metrics
	Day               *DayBreakdown // set only when computed with an as-of date
}

type PhaseRollup struct {
	Phase      estimate.Phase
	Metrics    Metrics
	Activities []ActivityRollup
}

type WBSRollup struct {
	WBS     estimate.WBS
	Metrics Metrics
	Phases  []PhaseRollup
}

// ProjectRollup is the root of a rollup tree. Metrics cover Scope only.
type ProjectRollup struct {
	Project Project
	Scope   Scope
	AsOf    Date
	Metrics Metrics
	WBS     []WBSRollup
}

// =============================================================================
// BUILDING
// =============================================================================

// RollupInput is everything a rollup needs, already fetched and scoped.
type RollupInput struct {
	Project    Project
	Scope      Scope
	WBS        []estimate.WBS
	Phases     []estimate.Phase
	Activities []estimate.Activity
	Entries    []ProgressEntry
	AsOf       Date // zero = no day breakdown
}

// completion accumulates entry quantities per activity.
type completion struct {
	cumulative decimal.Decimal
	onAsOf     decimal.Decimal
}

// indexEntries sums entries per activity. Entries for activities outside
// the input are ignored.
func indexEntries(entries []ProgressEntry, asOf Date) map[estimate.ActivityID]*completion {
	idx := make(map[estimate.ActivityID]*completion)
	for _, e := range entries {
		c, ok := idx[e.ActivityID]
		if !ok {
			c = &completion{cumulative: decimal.Zero, onAsOf: decimal.Zero}
			idx[e.ActivityID] = c
		}
		c.cumulative = c.cumulative.Add(e.QuantityCompleted)
		if !asOf.IsZero() && e.EntryDate.Equal(asOf) {
			c.onAsOf = c.onAsOf.Add(e.QuantityCompleted)
		}
	}
	return idx
}

// RollupActivity computes metrics for a single activity given its
// cumulative completed quantity. Non-labor activities always yield zero.
func RollupActivity(a estimate.Activity, completed decimal.Decimal) ActivityRollup {
	return ActivityRollup{
		Activity:          a,
		CompletedQuantity: completed,
		Metrics:           NewMetrics(a.BudgetedManHours(), a.ManHoursFor(completed)),
	}
}

// Remaining is budgeted minus completed, floored at zero.
func Remaining(budgeted, completed decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, budgeted.Sub(completed))
}

// BuildRollup assembles the tree. WBS and phases without activities still
// appear, with zero metrics.
func BuildRollup(in RollupInput) *ProjectRollup {
	completed := indexEntries(in.Entries, in.AsOf)

	activitiesByPhase := make(map[estimate.PhaseID][]ActivityRollup)
	for _, a := range sortedActivities(in.Activities) {
		if !a.Type.IsLaborBearing() {
			continue
		}
		done, today := decimal.Zero, decimal.Zero
		if c, ok := completed[a.ID]; ok {
			done, today = c.cumulative, c.onAsOf
		}

		ar := RollupActivity(a, done)
		if !in.AsOf.IsZero() {
			ar.Day = &DayBreakdown{
				PreviousTotal: done.Sub(today),
				TodaysEntry:   today,
				NewTotal:      done,
				Remaining:     Remaining(a.Quantity, done),
			}
		}
		activitiesByPhase[a.PhaseID] = append(activitiesByPhase[a.PhaseID], ar)
	}

	phasesByWBS := make(map[estimate.WBSID][]PhaseRollup)
	for _, p := range sortedPhases(in.Phases) {
		acts := activitiesByPhase[p.ID]
		phasesByWBS[p.WBSID] = append(phasesByWBS[p.WBSID], PhaseRollup{
			Phase:      p,
			Activities: acts,
			Metrics:    sum(acts, func(a ActivityRollup) Metrics { return a.Metrics }),
		})
	}

	var wbsRollups []WBSRollup
	for _, w := range sortedWBS(in.WBS) {
		phases := phasesByWBS[w.ID]
		wbsRollups = append(wbsRollups, WBSRollup{
			WBS:     w,
			Phases:  phases,
			Metrics: sum(phases, func(p PhaseRollup) Metrics { return p.Metrics }),
		})
	}

	return &ProjectRollup{
		Project: in.Project,
		Scope:   in.Scope,
		AsOf:    in.AsOf,
		WBS:     wbsRollups,
		Metrics: sum(wbsRollups, func(w WBSRollup) Metrics { return w.Metrics }),
	}
}

// =============================================================================
// TREE LOOKUPS
// =============================================================================

// FindWBS returns the WBS node with the given id, or nil.
func (r *ProjectRollup) FindWBS(id estimate.WBSID) *WBSRollup {
	for i := range r.WBS {
		if r.WBS[i].WBS.ID == id {
			return &r.WBS[i]
		}
	}
	return nil
}

// FindPhase returns the phase node with the given id, or nil.
func (r *ProjectRollup) FindPhase(id estimate.PhaseID) *PhaseRollup {
	for i := range r.WBS {
		for j := range r.WBS[i].Phases {
			if r.WBS[i].Phases[j].Phase.ID == id {
				return &r.WBS[i].Phases[j]
			}
		}
	}
	return nil
}

// Activities flattens the tree in display order.
func (r *ProjectRollup) Activities() []ActivityRollup {
	var out []ActivityRollup
	for _, w := range r.WBS {
		for _, p := range w.Phases {
			out = append(out, p.Activities...)
		}
	}
	return out
}

// =============================================================================
// ORDERING
// =============================================================================

func sortedWBS(in []estimate.WBS) []estimate.WBS {
	out := append([]estimate.WBS(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedPhases(in []estimate.Phase) []estimate.Phase {
	out := append([]estimate.Phase(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedActivities(in []estimate.Activity) []estimate.Activity {
	out := append([]estimate.Activity(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}
