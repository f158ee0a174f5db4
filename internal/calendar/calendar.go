// Package calendar builds the month grid and day detail views shown by the
// web interface from the active record set.
package calendar

import (
	"expensecal/internal/core"
	"expensecal/internal/recurrence"
)

// MaxBadges is the number of expense badges drawn inside a day cell before
// the rest collapse into a "+N more" badge.
const MaxBadges = 2

// WeekdayHeaders labels the grid columns, starting on Sunday.
var WeekdayHeaders = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

type (
	// DayCell is one day of the month grid.
	DayCell struct {
		Date     core.Date
		IsToday  bool
		Expenses []core.Record
		Badges   []core.Record
		Overflow int
		Total    core.Money
	}

	// MonthView is everything needed to render one month.
	MonthView struct {
		Month         core.YearMonth
		Title         string
		Prev          core.YearMonth
		Next          core.YearMonth
		Weekdays      []string
		LeadingBlanks int
		Days          []DayCell
		Overview      core.MonthOverview
	}

	// DayView is the detail of a single day.
	DayView struct {
		Date     core.Date
		Title    string
		Expenses []core.Record
		Total    core.Money
	}
)

// Build lays out month with one cell per calendar day and computes the
// projected month total over exactly those days.
func Build(records []core.Record, month core.YearMonth, today core.Date, agg recurrence.Aggregator) MonthView {
	days := month.Days()
	view := MonthView{
		Month:         month,
		Title:         month.Title(),
		Prev:          month.Prev(),
		Next:          month.Next(),
		Weekdays:      WeekdayHeaders,
		LeadingBlanks: int(month.First().Weekday()),
		Days:          make([]DayCell, 0, len(days)),
	}

	for _, d := range days {
		dayRecords := recurrence.ForDay(records, d)
		cell := DayCell{
			Date:     d,
			IsToday:  d.SameDay(today),
			Expenses: dayRecords,
			Badges:   dayRecords,
			Total:    sum(dayRecords),
		}
		if len(dayRecords) > MaxBadges {
			cell.Badges = dayRecords[:MaxBadges]
			cell.Overflow = len(dayRecords) - MaxBadges
		}
		view.Days = append(view.Days, cell)
	}

	view.Overview = agg.Breakdown(records, month, len(view.Days))
	return view
}

// Day returns the expenses occurring on date and their total.
func Day(records []core.Record, date core.Date) DayView {
	expenses := recurrence.ForDay(records, date)
	return DayView{
		Date:     date,
		Title:    date.Format("January 2, 2006"),
		Expenses: expenses,
		Total:    sum(expenses),
	}
}

// Total is the projected spend of the month.
func (v MonthView) Total() core.Money {
	return v.Overview.Total
}

// TrailingBlanks is the number of empty cells completing the last grid row.
func (v MonthView) TrailingBlanks() int {
	n := (v.LeadingBlanks + len(v.Days)) % 7
	if n == 0 {
		return 0
	}
	return 7 - n
}

// Empty reports whether no expense occurs on the day.
func (d DayView) Empty() bool {
	return len(d.Expenses) == 0
}

func sum(records []core.Record) core.Money {
	var total core.Money
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}
