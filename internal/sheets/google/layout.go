package google

import (
	"fmt"
	"strconv"
	"strings"

	ports "expensecal/internal/sheets"
)

// Each month owns a fixed block of rows in the year sheet so an export can
// clear and rewrite it without looking at its neighbours.
// Header (2) + up to 31 days + blank + one row per frequency + total.
const blockRows = 42

// blockRange returns the A1 range of month's block, e.g. '2024 Expenses'!A43:C84.
func blockRange(sheet string, month int) string {
	start := (month-1)*blockRows + 1
	end := start + blockRows - 1
	return fmt.Sprintf("'%s'!A%d:C%d", strings.ReplaceAll(sheet, "'", "''"), start, end)
}

// monthBlock lays out a report as sheet rows.
func monthBlock(r ports.MonthReport) [][]any {
	month := r.Month()
	rows := make([][]any, 0, blockRows)
	rows = append(rows,
		[]any{month.Title(), "Total", r.Overview.Total.Dollars()},
		[]any{"Date", "Expenses", "Day total"},
	)
	for _, d := range r.Days {
		rows = append(rows, []any{d.Date.String(), strings.Join(d.Titles, ", "), d.Total.Dollars()})
	}
	rows = append(rows, []any{"", "", ""})
	for _, fa := range r.Overview.ByFrequency {
		rows = append(rows, []any{fa.Frequency.Label(), "", fa.Amount.Dollars()})
	}
	rows = append(rows, []any{"Total", "", r.Overview.Total.Dollars()})
	return rows
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
