package analytics

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	learnersSheet = "Learners"
)

var learnerHeader = []any{"Learner", "Enrolled At", "Progress (%)", "Label", "Status", "Time Spent (min)"}

// ExportCourseXLSX writes the course analytics as an XLSX workbook with a
// Summary sheet and a Learners sheet.
func ExportCourseXLSX(w io.Writer, report CourseAnalytics) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	summary := [][]any{
		{"Course", report.CourseID},
		{"Title", report.Title},
		{"Average Rating", report.AverageRating},
		{"Enrollments", report.EnrollmentCount},
	}
	for i, row := range summary {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(learnersSheet); err != nil {
		return fmt.Errorf("create learners sheet: %w", err)
	}
	if err := setRow(f, learnersSheet, 1, learnerHeader); err != nil {
		return err
	}
	for i, l := range report.Learners {
		row := []any{
			l.LearnerID,
			l.EnrolledAt.UTC().Format(time.RFC3339),
			l.Progress,
			l.Label,
			string(l.Status),
			l.TimeSpent,
		}
		if err := setRow(f, learnersSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("set %s row %d: %w", sheet, row, err)
	}
	return nil
}
