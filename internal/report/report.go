// Package report renders a month view as plain text for the terminal.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"expensecal/internal/calendar"
)

// Options controls what Write prints.
type Options struct {
	// EmptyDays includes days without expenses in the daily listing.
	EmptyDays bool
}

// Write prints the month title, the projected total with its per-frequency
// breakdown and the expenses of every day.
func Write(w io.Writer, v calendar.MonthView, weekly string, opts Options) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "%s\t(weekly estimate: %s)\n\n", v.Title, weekly)
	for _, fa := range v.Overview.ByFrequency {
		fmt.Fprintf(tw, "  %s\t%s\n", fa.Frequency.Label(), fa.Amount.Format())
	}
	fmt.Fprintf(tw, "  Monthly total\t%s\n\n", v.Overview.Total.Format())

	for _, cell := range v.Days {
		if len(cell.Expenses) == 0 {
			if opts.EmptyDays {
				fmt.Fprintf(tw, "%s\t%s\t-\n", cell.Date, cell.Date.Weekday().String()[:3])
			}
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", cell.Date, cell.Date.Weekday().String()[:3], cell.Total.Format())
		for _, e := range cell.Expenses {
			fmt.Fprintf(tw, "\t  %s\t%s\t%s\n", e.Title, e.Amount.Format(), e.Frequency.Label())
		}
	}

	return tw.Flush()
}
