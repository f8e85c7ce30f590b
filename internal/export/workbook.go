// Package export renders plans as spreadsheet workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-planner/internal/planner"
)

// Sheet names of the exported workbook.
const (
	SheetCalendar = "Calendar"
	SheetPath     = "Path"
	SheetExcluded = "Excluded"
)

// ContentType is the MIME type of a workbook written by WriteWorkbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteWorkbook writes an XLSX workbook with the allocation on one sheet,
// the learning path on another, and every excluded topic on a third.
func WriteWorkbook(w io.Writer, plan planner.SchedulePlan, path planner.Path) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetCalendar); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetPath, SheetExcluded} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	calendar := [][]any{{"Date", "Weekday", "Topic ID", "Topic", "Hours", "Priority"}}
	for _, day := range plan.Days {
		for _, a := range day.Topics {
			calendar = append(calendar, []any{day.Date.String(), day.Weekday, a.TopicID, a.TopicName, a.Hours, a.Priority})
		}
	}
	if err := writeRows(f, SheetCalendar, calendar, header); err != nil {
		return err
	}

	steps := [][]any{{"#", "Topic ID", "Topic", "Status", "Estimated Hours", "Start", "End"}}
	for i, s := range path.Steps {
		steps = append(steps, []any{i + 1, s.TopicID, s.TopicName, string(s.Status), s.EstimatedHours, s.StartDate.String(), s.EndDate.String()})
	}
	if err := writeRows(f, SheetPath, steps, header); err != nil {
		return err
	}

	excluded := [][]any{{"Topic ID", "Topic", "Reason", "Remaining Hours"}}
	for _, e := range append(append([]planner.Exclusion{}, path.Excluded...), plan.Excluded...) {
		excluded = append(excluded, []any{e.TopicID, e.Name, string(e.Reason), e.RemainingHours})
	}
	if err := writeRows(f, SheetExcluded, excluded, header); err != nil {
		return err
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("Study plan %s / %s", plan.StudentID, plan.CourseID),
		Creator: "pai-planner",
	}); err != nil {
		return fmt.Errorf("set document properties: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}

	last, err := excelize.ColumnNumberToName(len(rows[0]))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 16); err != nil {
		return fmt.Errorf("size %s columns: %w", sheet, err)
	}
	return nil
}
