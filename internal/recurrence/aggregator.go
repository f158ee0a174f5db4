package recurrence

import (
	"fmt"
	"strings"

	"expensecal/internal/core"
)

// WeeklyEstimate selects how weekly records are projected over a month.
type WeeklyEstimate int

const (
	// WeeklyFixedFour counts every weekly record four times per month,
	// whatever the real number of matching weekdays is.
	WeeklyFixedFour WeeklyEstimate = iota
	// WeeklyExact counts the real number of matching weekdays (4 or 5).
	// Totals differ from WeeklyFixedFour for months with five occurrences.
	WeeklyExact
)

// ParseWeeklyEstimate maps "fixed" or "exact" to a WeeklyEstimate.
func ParseWeeklyEstimate(s string) (WeeklyEstimate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed":
		return WeeklyFixedFour, nil
	case "exact":
		return WeeklyExact, nil
	default:
		return 0, fmt.Errorf("unknown weekly estimate %q: must be 'fixed' or 'exact'", s)
	}
}

func (w WeeklyEstimate) String() string {
	if w == WeeklyExact {
		return "exact"
	}
	return "fixed"
}

// Aggregator projects monthly spend. The zero value uses the fixed four-week
// estimate for weekly records.
type Aggregator struct {
	Weekly WeeklyEstimate
}

// TotalForMonth sums the projected contribution of every record for month.
// daysInMonth is the number of calendar days displayed for that month.
func TotalForMonth(records []core.Record, month core.YearMonth, daysInMonth int) core.Money {
	return Aggregator{}.TotalForMonth(records, month, daysInMonth)
}

// TotalForMonth sums the projected contribution of every record for month.
// Each record contributes independently; amounts are summed in cents.
func (a Aggregator) TotalForMonth(records []core.Record, month core.YearMonth, daysInMonth int) core.Money {
	var total core.Money
	for _, r := range records {
		total = total.Add(a.Contribution(r, month, daysInMonth))
	}
	return total
}

// Contribution returns what a single record adds to the month total.
func (a Aggregator) Contribution(r core.Record, month core.YearMonth, daysInMonth int) core.Money {
	rule, err := RuleFor(r.Frequency)
	if err != nil {
		return core.Money{}
	}
	return rule.Projected(r.AnchorDate, r.Amount, month, daysInMonth, a.Weekly)
}

// Breakdown returns the month total split by frequency, in display order.
// The subtotals add up to TotalForMonth.
func (a Aggregator) Breakdown(records []core.Record, month core.YearMonth, daysInMonth int) core.MonthOverview {
	byFreq := make(map[core.Frequency]core.Money, 5)
	var total core.Money
	for _, r := range records {
		c := a.Contribution(r, month, daysInMonth)
		byFreq[r.Frequency] = byFreq[r.Frequency].Add(c)
		total = total.Add(c)
	}

	ov := core.MonthOverview{
		Year:        month.Year,
		Month:       month.Month,
		DaysInMonth: daysInMonth,
		Total:       total,
	}
	for _, f := range core.Frequencies() {
		if amt, ok := byFreq[f]; ok {
			ov.ByFrequency = append(ov.ByFrequency, core.FrequencyAmount{Frequency: f, Amount: amt})
		}
	}
	return ov
}
