/*
document.go - JSON import of a whole estimate

PURPOSE:
  Converts a nested JSON estimate document into the flat Estimate the stores
  persist. The authoring application exports this shape; the tracking service
  imports it once per proposal.

JSON SCHEMA:
  {
    "proposal": {"id": "prop-1", "name": "Unit 7 Revamp", "owner": "Acme",
                 "location": "Baytown, TX", "job_number": "J-1042",
                 "dataset_version": "2025.2"},
    "wbs": [
      {"id": "wbs-pipe", "name": "Piping", "phases": [
        {"id": "ph-cs", "name": "Carbon Steel", "activities": [
          {"id": "act-1", "description": "6in weld", "type": "labor",
           "quantity": 100, "unit": "EA",
           "labor": {"craft_constant": 0.5, "welder_constant": 0.1}}
        ]}
      ]}
    ]
  }

VALIDATION:
  Hard problems (reject the document):
    - missing proposal id, duplicate ids at any level
    - unknown activity type, negative quantity or constants
  Soft problems (warnings, document accepted):
    - labor-bearing activity without labor constants (counts as zero MH)
    - non-labor activity carrying labor constants (ignored)
*/
package estimate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type DocumentJSON struct {
	Proposal ProposalJSON `json:"proposal"`
	WBS      []WBSJSON    `json:"wbs"`
}

type ProposalJSON struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Owner          string `json:"owner,omitempty"`
	Location       string `json:"location,omitempty"`
	JobNumber      string `json:"job_number,omitempty"`
	DatasetVersion string `json:"dataset_version,omitempty"`
}

type WBSJSON struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Phases []PhaseJSON `json:"phases"`
}

type PhaseJSON struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Activities []ActivityJSON `json:"activities"`
}

type ActivityJSON struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	Labor       *LaborJSON      `json:"labor,omitempty"`
}

type LaborJSON struct {
	CraftConstant  decimal.Decimal `json:"craft_constant"`
	WelderConstant decimal.Decimal `json:"welder_constant"`
}

// =============================================================================
// ERRORS
// =============================================================================

// DocumentError lists every hard problem found in a document.
type DocumentError struct {
	Problems []string
}

func (e *DocumentError) Error() string {
	return "invalid estimate document: " + strings.Join(e.Problems, "; ")
}

// =============================================================================
// PARSING
// =============================================================================

// ParseDocument parses JSON into an Estimate. Warnings describe soft problems
// that did not prevent the import.
func ParseDocument(data []byte) (*Estimate, []string, error) {
	var doc DocumentJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse estimate JSON: %w", err)
	}
	return FromDocument(doc)
}

// FromDocument flattens and validates a decoded document.
func FromDocument(doc DocumentJSON) (*Estimate, []string, error) {
	var (
		problems []string
		warnings []string
		seen     = make(map[string]bool)
	)

	claim := func(kind, id string) {
		if strings.TrimSpace(id) == "" {
			problems = append(problems, kind+" id is required")
			return
		}
		if seen[kind+":"+id] {
			problems = append(problems, fmt.Sprintf("duplicate %s id %q", kind, id))
		}
		seen[kind+":"+id] = true
	}

	claim("proposal", doc.Proposal.ID)
	proposalID := ProposalID(doc.Proposal.ID)

	est := &Estimate{
		Proposal: Proposal{
			ID:             proposalID,
			Name:           doc.Proposal.Name,
			Owner:          doc.Proposal.Owner,
			Location:       doc.Proposal.Location,
			JobNumber:      doc.Proposal.JobNumber,
			DatasetVersion: doc.Proposal.DatasetVersion,
		},
	}

	for wi, wj := range doc.WBS {
		claim("wbs", wj.ID)
		est.WBS = append(est.WBS, WBS{
			ID:         WBSID(wj.ID),
			ProposalID: proposalID,
			Name:       wj.Name,
			SortOrder:  wi,
		})

		for pi, pj := range wj.Phases {
			claim("phase", pj.ID)
			est.Phases = append(est.Phases, Phase{
				ID:         PhaseID(pj.ID),
				ProposalID: proposalID,
				WBSID:      WBSID(wj.ID),
				Name:       pj.Name,
				SortOrder:  pi,
			})

			for ai, aj := range pj.Activities {
				claim("activity", aj.ID)
				act, actProblems, actWarnings := activityFromJSON(aj)
				problems = append(problems, actProblems...)
				warnings = append(warnings, actWarnings...)
				act.ProposalID = proposalID
				act.WBSID = WBSID(wj.ID)
				act.PhaseID = PhaseID(pj.ID)
				act.SortOrder = ai
				est.Activities = append(est.Activities, act)
			}
		}
	}

	if len(problems) > 0 {
		return nil, warnings, &DocumentError{Problems: problems}
	}
	return est, warnings, nil
}

func activityFromJSON(aj ActivityJSON) (Activity, []string, []string) {
	var problems, warnings []string

	act := Activity{
		ID:          ActivityID(aj.ID),
		Description: aj.Description,
		Quantity:    aj.Quantity,
		Unit:        aj.Unit,
	}

	t, err := ParseActivityType(aj.Type)
	if err != nil {
		problems = append(problems, fmt.Sprintf("activity %q: %v", aj.ID, err))
	}
	act.Type = t

	if aj.Quantity.IsNegative() {
		problems = append(problems, fmt.Sprintf("activity %q: quantity must be >= 0", aj.ID))
	}

	switch {
	case aj.Labor != nil && !t.IsLaborBearing():
		warnings = append(warnings, fmt.Sprintf("activity %q: labor constants ignored for type %s", aj.ID, aj.Type))
	case aj.Labor == nil && t.IsLaborBearing():
		warnings = append(warnings, fmt.Sprintf("activity %q: labor activity without constants contributes no man-hours", aj.ID))
	case aj.Labor != nil:
		if aj.Labor.CraftConstant.IsNegative() || aj.Labor.WelderConstant.IsNegative() {
			problems = append(problems, fmt.Sprintf("activity %q: labor constants must be >= 0", aj.ID))
		}
		act.Labor = &Labor{
			CraftConstant:  aj.Labor.CraftConstant,
			WelderConstant: aj.Labor.WelderConstant,
		}
	}

	return act, problems, warnings
}

// ToDocument nests a flat Estimate back into its JSON shape.
func ToDocument(est Estimate) DocumentJSON {
	doc := DocumentJSON{
		Proposal: ProposalJSON{
			ID:             string(est.Proposal.ID),
			Name:           est.Proposal.Name,
			Owner:          est.Proposal.Owner,
			Location:       est.Proposal.Location,
			JobNumber:      est.Proposal.JobNumber,
			DatasetVersion: est.Proposal.DatasetVersion,
		},
	}

	activitiesByPhase := make(map[PhaseID][]ActivityJSON)
	for _, a := range est.Activities {
		aj := ActivityJSON{
			ID:          string(a.ID),
			Description: a.Description,
			Type:        string(a.Type),
			Quantity:    a.Quantity,
			Unit:        a.Unit,
		}
		if a.Labor != nil {
			aj.Labor = &LaborJSON{CraftConstant: a.Labor.CraftConstant, WelderConstant: a.Labor.WelderConstant}
		}
		activitiesByPhase[a.PhaseID] = append(activitiesByPhase[a.PhaseID], aj)
	}

	phasesByWBS := make(map[WBSID][]PhaseJSON)
	for _, p := range est.Phases {
		phasesByWBS[p.WBSID] = append(phasesByWBS[p.WBSID], PhaseJSON{
			ID:         string(p.ID),
			Name:       p.Name,
			Activities: activitiesByPhase[p.ID],
		})
	}

	for _, w := range est.WBS {
		doc.WBS = append(doc.WBS, WBSJSON{
			ID:     string(w.ID),
			Name:   w.Name,
			Phases: phasesByWBS[w.ID],
		})
	}
	return doc
}
