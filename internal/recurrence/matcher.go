package recurrence

import "expensecal/internal/core"

// Matches reports whether record occurs on day. It never fails: a record with
// an unknown frequency occurs on no day.
func Matches(record core.Record, day core.Date) bool {
	rule, err := RuleFor(record.Frequency)
	if err != nil {
		return false
	}
	return rule.Occurs(record.AnchorDate, day)
}

// ForDay returns the records occurring on day, in input order.
func ForDay(records []core.Record, day core.Date) []core.Record {
	var out []core.Record
	for _, r := range records {
		if Matches(r, day) {
			out = append(out, r)
		}
	}
	return out
}

// DayTotal sums the amounts of the records occurring on day.
func DayTotal(records []core.Record, day core.Date) core.Money {
	var total core.Money
	for _, r := range records {
		if Matches(r, day) {
			total = total.Add(r.Amount)
		}
	}
	return total
}
