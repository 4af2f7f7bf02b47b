package export_test

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/truss/momentum/estimate"
	"github.com/truss/momentum/export"
	"github.com/truss/momentum/progress"
	"github.com/xuri/excelize/v2"
)

func rollup(asOf progress.Date) *progress.ProjectRollup {
	d := decimal.RequireFromString
	return progress.BuildRollup(progress.RollupInput{
		Project: progress.Project{ID: "proj-1", Name: "Pipe Rack", JobNumber: "J-7"},
		Scope:   progress.Scope{ProjectID: "proj-1"},
		WBS:     []estimate.WBS{{ID: "w-pipe", Name: "Piping"}},
		Phases:  []estimate.Phase{{ID: "p-cs", WBSID: "w-pipe", Name: "Carbon Steel"}},
		Activities: []estimate.Activity{{
			ID: "a-weld", WBSID: "w-pipe", PhaseID: "p-cs", Description: "Butt weld",
			Type: estimate.TypeLabor, Quantity: d("100"), Unit: "EA",
			Labor: &estimate.Labor{CraftConstant: d("0.5"), WelderConstant: d("0.1")},
		}},
		Entries: []progress.ProgressEntry{
			{ActivityID: "a-weld", EntryDate: progress.MustParseDate("2025-03-03"), QuantityCompleted: d("30")},
			{ActivityID: "a-weld", EntryDate: progress.MustParseDate("2025-03-04"), QuantityCompleted: d("10")},
		},
		AsOf: asOf,
	})
}

func open(t *testing.T, r *progress.ProjectRollup) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, export.WriteProjectWorkbook(&buf, r))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestWriteProjectWorkbook_Summary(t *testing.T) {
	f := open(t, rollup(progress.Date{}))

	assert.Equal(t, []string{export.SummarySheet, export.ActivitiesSheet}, f.GetSheetList())

	rows, err := f.GetRows(export.SummarySheet)
	require.NoError(t, err)
	assert.Equal(t, "Pipe Rack (J-7)", rows[0][0])
	assert.Equal(t, "As of: all dates", rows[1][0])
	assert.Equal(t, "Total MH", rows[3][3])

	// Project, WBS and phase rows follow the header.
	require.Len(t, rows, 7)
	assert.Equal(t, []string{"Project", "proj-1", "Pipe Rack", "60", "24", "36", "40", "in-progress"}, rows[4])
	assert.Equal(t, "WBS", rows[5][0])
	assert.Equal(t, "Phase", rows[6][0])
}

func TestWriteProjectWorkbook_ActivitiesWithDayBreakdown(t *testing.T) {
	f := open(t, rollup(progress.MustParseDate("2025-03-04")))

	rows, err := f.GetRows(export.ActivitiesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	header := rows[0]
	assert.Equal(t, "Previous Total", header[len(header)-4])

	weld := rows[1]
	assert.Equal(t, "a-weld", weld[2])
	assert.Equal(t, "40", weld[7])  // completed
	assert.Equal(t, "0.6", weld[8]) // MH per unit
	assert.Equal(t, "30", weld[13]) // previous total
	assert.Equal(t, "10", weld[14]) // today
	assert.Equal(t, "60", weld[16]) // remaining quantity
}

func TestWriteProjectWorkbook_NoDayColumnsWithoutAsOf(t *testing.T) {
	f := open(t, rollup(progress.Date{}))

	rows, err := f.GetRows(export.ActivitiesSheet)
	require.NoError(t, err)
	assert.Len(t, rows[0], 13)
}

func TestWriteProjectWorkbook_NilRollup(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, export.WriteProjectWorkbook(&buf, nil))
}
