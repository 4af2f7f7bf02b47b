/*
Package estimate holds the budgeted estimate hierarchy the tracking engine reads.

PURPOSE:
  An estimate is authored elsewhere (catalog selection, rate configuration)
  and arrives here as a Proposal with nested WBS → Phase → Activity rows.
  The progress engine never mutates any of these types; it only reads
  quantities and labor constants off activities to compute man-hours.

KEY CONCEPTS IN THIS FILE (types.go):
  - ActivityType: labor, custom_labor, material, equipment, subcontractor, cost_only
  - Labor: craft and welder man-hours per unit of quantity
  - Activity: a single estimate line item carrying quantity and (maybe) labor
  - Estimate: a Proposal together with its whole hierarchy

MAN-HOURS:
  Only labor-bearing activities (labor, custom_labor) produce man-hours:

    budgeted MH = quantity × (craftConstant + welderConstant)

  Everything else contributes zero, as does a labor-bearing activity whose
  labor constants were never filled in.

SEE ALSO:
  - document.go: JSON import of a whole estimate
  - progress/rollup.go: where man-hours are aggregated
*/
package estimate

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProposalID string
type WBSID string
type PhaseID string
type ActivityID string

// =============================================================================
// ACTIVITY TYPE
// =============================================================================

type ActivityType string

const (
	TypeLabor         ActivityType = "labor"
	TypeCustomLabor   ActivityType = "custom_labor"
	TypeMaterial      ActivityType = "material"
	TypeEquipment     ActivityType = "equipment"
	TypeSubcontractor ActivityType = "subcontractor"
	TypeCostOnly      ActivityType = "cost_only"
)

var activityTypes = []ActivityType{
	TypeLabor, TypeCustomLabor, TypeMaterial, TypeEquipment, TypeSubcontractor, TypeCostOnly,
}

// LaborBearingTypes lists the types that contribute man-hours.
var LaborBearingTypes = []ActivityType{TypeLabor, TypeCustomLabor}

// IsLaborBearing reports whether activities of this type contribute man-hours.
func (t ActivityType) IsLaborBearing() bool {
	return t == TypeLabor || t == TypeCustomLabor
}

func (t ActivityType) Valid() bool {
	for _, known := range activityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseActivityType converts a stored or submitted string to an ActivityType.
func ParseActivityType(s string) (ActivityType, error) {
	t := ActivityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown activity type %q", s)
	}
	return t, nil
}

// =============================================================================
// LABOR CONSTANTS
// =============================================================================

// Labor carries man-hours per unit of quantity, split by trade.
type Labor struct {
	CraftConstant  decimal.Decimal
	WelderConstant decimal.Decimal
}

// PerUnit returns craft + welder man-hours for one unit of quantity.
func (l Labor) PerUnit() decimal.Decimal {
	return l.CraftConstant.Add(l.WelderConstant)
}

// =============================================================================
// HIERARCHY
// =============================================================================

// Proposal is the root of an estimate.
type Proposal struct {
	ID             ProposalID
	Name           string
	Owner          string
	Location       string
	JobNumber      string
	DatasetVersion string
}

type WBS struct {
	ID         WBSID
	ProposalID ProposalID
	Name       string
	SortOrder  int
}

type Phase struct {
	ID         PhaseID
	ProposalID ProposalID
	WBSID      WBSID
	Name       string
	SortOrder  int
}

// Activity is one estimate line item.
// Labor is nil for non-labor types, and may be nil for labor types whose
// constants were never populated.
type Activity struct {
	ID          ActivityID
	ProposalID  ProposalID
	WBSID       WBSID
	PhaseID     PhaseID
	Description string
	Type        ActivityType
	Quantity    decimal.Decimal
	Unit        string
	Labor       *Labor
	SortOrder   int
}

// ManHoursPerUnit returns the man-hours earned per unit of quantity.
// Zero for non-labor types and for labor types missing their constants.
func (a Activity) ManHoursPerUnit() decimal.Decimal {
	if !a.Type.IsLaborBearing() || a.Labor == nil {
		return decimal.Zero
	}
	return a.Labor.PerUnit()
}

// ManHoursFor returns quantity × (craft + welder) for the given quantity.
func (a Activity) ManHoursFor(quantity decimal.Decimal) decimal.Decimal {
	return quantity.Mul(a.ManHoursPerUnit())
}

// BudgetedManHours returns the man-hours for the full budgeted quantity.
func (a Activity) BudgetedManHours() decimal.Decimal {
	return a.ManHoursFor(a.Quantity)
}

// Estimate is a proposal with its full hierarchy, flattened per level.
type Estimate struct {
	Proposal   Proposal
	WBS        []WBS
	Phases     []Phase
	Activities []Activity
}
