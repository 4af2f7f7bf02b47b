package estimate_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/truss/momentum/estimate"
)

const pipingDoc = `{
  "proposal": {"id": "prop-1", "name": "Unit 7 Revamp", "owner": "Acme", "job_number": "J-1042"},
  "wbs": [
    {"id": "wbs-pipe", "name": "Piping", "phases": [
      {"id": "ph-cs", "name": "Carbon Steel", "activities": [
        {"id": "act-weld", "description": "6in butt weld", "type": "labor", "quantity": 100, "unit": "EA",
         "labor": {"craft_constant": 0.5, "welder_constant": 0.1}},
        {"id": "act-pipe", "description": "6in pipe", "type": "material", "quantity": 400, "unit": "LF"}
      ]}
    ]},
    {"id": "wbs-civil", "name": "Civil", "phases": []}
  ]
}`

func TestParseDocument_FlattensHierarchy(t *testing.T) {
	est, warnings, err := estimate.ParseDocument([]byte(pipingDoc))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, estimate.ProposalID("prop-1"), est.Proposal.ID)
	assert.Equal(t, "J-1042", est.Proposal.JobNumber)
	require.Len(t, est.WBS, 2)
	require.Len(t, est.Phases, 1)
	require.Len(t, est.Activities, 2)

	weld := est.Activities[0]
	assert.Equal(t, estimate.WBSID("wbs-pipe"), weld.WBSID)
	assert.Equal(t, estimate.PhaseID("ph-cs"), weld.PhaseID)
	assert.Equal(t, estimate.ProposalID("prop-1"), weld.ProposalID)
	require.NotNil(t, weld.Labor)
	assert.True(t, weld.BudgetedManHours().Equal(decimal.NewFromInt(60)))

	assert.Nil(t, est.Activities[1].Labor)
	assert.True(t, est.Activities[1].BudgetedManHours().IsZero())
}

func TestParseDocument_RejectsHardProblems(t *testing.T) {
	doc := `{
	  "proposal": {"id": "prop-1"},
	  "wbs": [{"id": "w", "phases": [{"id": "p", "activities": [
	    {"id": "a", "type": "plumbing", "quantity": 1},
	    {"id": "a", "type": "labor", "quantity": -5, "labor": {"craft_constant": 1, "welder_constant": 0}}
	  ]}]}]
	}`

	_, _, err := estimate.ParseDocument([]byte(doc))
	require.Error(t, err)

	var docErr *estimate.DocumentError
	require.ErrorAs(t, err, &docErr)
	assert.Len(t, docErr.Problems, 3, "unknown type, duplicate id, negative quantity")
}

func TestParseDocument_LaborWithoutConstantsIsWarning(t *testing.T) {
	doc := `{"proposal": {"id": "p"}, "wbs": [{"id": "w", "phases": [{"id": "ph", "activities": [
	  {"id": "a", "type": "custom_labor", "quantity": 10, "unit": "HR"}
	]}]}]}`

	est, warnings, err := estimate.ParseDocument([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.True(t, est.Activities[0].BudgetedManHours().IsZero())
}

func TestActivity_ManHours(t *testing.T) {
	tests := []struct {
		name string
		act  estimate.Activity
		want string
	}{
		{"labor", estimate.Activity{Type: estimate.TypeLabor, Quantity: decimal.NewFromInt(10),
			Labor: &estimate.Labor{CraftConstant: decimal.RequireFromString("1.25"), WelderConstant: decimal.RequireFromString("0.25")}}, "15"},
		{"custom labor", estimate.Activity{Type: estimate.TypeCustomLabor, Quantity: decimal.NewFromInt(4),
			Labor: &estimate.Labor{CraftConstant: decimal.NewFromInt(2)}}, "8"},
		{"equipment ignores labor", estimate.Activity{Type: estimate.TypeEquipment, Quantity: decimal.NewFromInt(10),
			Labor: &estimate.Labor{CraftConstant: decimal.NewFromInt(3)}}, "0"},
		{"labor missing constants", estimate.Activity{Type: estimate.TypeLabor, Quantity: decimal.NewFromInt(10)}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.act.BudgetedManHours().String())
		})
	}
}

func TestToDocument_RoundTripsStructure(t *testing.T) {
	est, _, err := estimate.ParseDocument([]byte(pipingDoc))
	require.NoError(t, err)

	back, _, err := estimate.FromDocument(estimate.ToDocument(*est))
	require.NoError(t, err)
	assert.Equal(t, est.WBS, back.WBS)
	assert.Equal(t, est.Phases, back.Phases)
	assert.Len(t, back.Activities, len(est.Activities))
}
