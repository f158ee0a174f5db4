package sheets

import (
	"context"

	"expensecal/internal/calendar"
	"expensecal/internal/core"
)

// Ports for outbound adapters.
type (
	// MonthExporter writes a month summary to an external spreadsheet,
	// replacing any previous export of the same month.
	MonthExporter interface {
		ExportMonth(ctx context.Context, r MonthReport) (ref string, err error)
	}

	// DayRow is one day of a month that has at least one expense.
	DayRow struct {
		Date   core.Date
		Titles []string
		Total  core.Money
	}

	// MonthReport is the exported form of a month view.
	MonthReport struct {
		Overview core.MonthOverview
		Days     []DayRow
	}
)

// ReportFromView keeps only the days with expenses.
func ReportFromView(v calendar.MonthView) MonthReport {
	r := MonthReport{Overview: v.Overview}
	for _, cell := range v.Days {
		if len(cell.Expenses) == 0 {
			continue
		}
		titles := make([]string, len(cell.Expenses))
		for i, e := range cell.Expenses {
			titles[i] = e.Title
		}
		r.Days = append(r.Days, DayRow{Date: cell.Date, Titles: titles, Total: cell.Total})
	}
	return r
}

// Month returns the month the report covers.
func (r MonthReport) Month() core.YearMonth {
	return core.YearMonth{Year: r.Overview.Year, Month: r.Overview.Month}
}
