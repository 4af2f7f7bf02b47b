/*
Package export renders rollups as Excel workbooks.

SHEETS:
  Summary     one row per level: project, then each WBS followed by its phases
  Activities  one row per labor activity; day-breakdown columns are added
              when the rollup was computed with an as-of date

Man-hours are written as numbers so the sheet can be re-totalled in Excel.
*/
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/truss/momentum/progress"
	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet    = "Summary"
	ActivitiesSheet = "Activities"
)

var summaryHeaders = []string{"Level", "ID", "Name", "Total MH", "Earned MH", "Remaining MH", "% Complete", "Status"}

var activityHeaders = []string{
	"WBS", "Phase", "Activity", "Description", "Type", "Unit",
	"Quantity", "Completed", "MH / Unit", "Total MH", "Earned MH", "% Complete", "Status",
}

var dayHeaders = []string{"Previous Total", "Today", "New Total", "Remaining Qty"}

// WriteProjectWorkbook writes r as an .xlsx document to w.
func WriteProjectWorkbook(w io.Writer, r *progress.ProjectRollup) error {
	f, err := NewProjectWorkbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// NewProjectWorkbook builds the workbook in memory.
func NewProjectWorkbook(r *progress.ProjectRollup) (*excelize.File, error) {
	if r == nil {
		return nil, fmt.Errorf("no rollup to export")
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(ActivitiesSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, err
	}

	if err := writeSummary(f, r, headerStyle); err != nil {
		return nil, err
	}
	if err := writeActivities(f, r, headerStyle); err != nil {
		return nil, err
	}
	return f, nil
}

func writeSummary(f *excelize.File, r *progress.ProjectRollup, headerStyle int) error {
	title := r.Project.Name
	if r.Project.JobNumber != "" {
		title = fmt.Sprintf("%s (%s)", title, r.Project.JobNumber)
	}
	if err := f.SetCellValue(SummarySheet, "A1", title); err != nil {
		return err
	}
	asOf := "all dates"
	if !r.AsOf.IsZero() {
		asOf = r.AsOf.String()
	}
	if err := f.SetCellValue(SummarySheet, "A2", "As of: "+asOf); err != nil {
		return err
	}

	row := 4
	if err := writeHeader(f, SummarySheet, row, summaryHeaders, headerStyle); err != nil {
		return err
	}

	rows := [][]any{metricsRow("Project", string(r.Project.ID), r.Project.Name, r.Metrics)}
	for _, w := range r.WBS {
		rows = append(rows, metricsRow("WBS", string(w.WBS.ID), w.WBS.Name, w.Metrics))
		for _, p := range w.Phases {
			rows = append(rows, metricsRow("Phase", string(p.Phase.ID), p.Phase.Name, p.Metrics))
		}
	}
	for _, values := range rows {
		row++
		if err := setRow(f, SummarySheet, row, values); err != nil {
			return err
		}
	}

	return f.SetColWidth(SummarySheet, "A", "H", 16)
}

func metricsRow(level, id, name string, m progress.Metrics) []any {
	return []any{
		level, id, name,
		num(m.TotalMH), num(m.EarnedMH), num(m.RemainingMH()),
		m.PercentComplete, string(m.Status),
	}
}

func writeActivities(f *excelize.File, r *progress.ProjectRollup, headerStyle int) error {
	headers := activityHeaders
	withDay := !r.AsOf.IsZero()
	if withDay {
		headers = append(append([]string(nil), activityHeaders...), dayHeaders...)
	}

	row := 1
	if err := writeHeader(f, ActivitiesSheet, row, headers, headerStyle); err != nil {
		return err
	}

	for _, w := range r.WBS {
		for _, p := range w.Phases {
			for _, a := range p.Activities {
				act := a.Activity
				values := []any{
					w.WBS.Name, p.Phase.Name, string(act.ID), act.Description, string(act.Type), act.Unit,
					num(act.Quantity), num(a.CompletedQuantity), num(act.ManHoursPerUnit()),
					num(a.Metrics.TotalMH), num(a.Metrics.EarnedMH), a.Metrics.PercentComplete, string(a.Metrics.Status),
				}
				if withDay && a.Day != nil {
					values = append(values,
						num(a.Day.PreviousTotal), num(a.Day.TodaysEntry), num(a.Day.NewTotal), num(a.Day.Remaining))
				}
				row++
				if err := setRow(f, ActivitiesSheet, row, values); err != nil {
					return err
				}
			}
		}
	}

	return f.SetColWidth(ActivitiesSheet, "A", "D", 20)
}

func writeHeader(f *excelize.File, sheet string, row int, headers []string, style int) error {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := setRow(f, sheet, row, values); err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(headers), row)
	return f.SetCellStyle(sheet, first, last, style)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
