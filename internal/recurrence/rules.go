// Package recurrence decides which expense records occur on a calendar day and
// projects how much a set of records costs over a displayed month.
//
// Each frequency has its own Rule that encapsulates both decisions. Rules are
// selected by an exhaustive switch over the closed core.Frequency set, so a new
// frequency cannot be added without giving it a rule here.
package recurrence

import (
	"fmt"

	"expensecal/internal/core"
)

// Rule is the strategy interface for one frequency.
type Rule interface {
	// Occurs reports whether a record anchored on anchor applies to day.
	Occurs(anchor, day core.Date) bool

	// Projected returns what a record anchored on anchor with the given
	// amount contributes to the month total.
	Projected(anchor core.Date, amount core.Money, month core.YearMonth, daysInMonth int, weekly WeeklyEstimate) core.Money
}

// OneTimeRule applies to the anchor date only.
type OneTimeRule struct{}

func (OneTimeRule) Occurs(anchor, day core.Date) bool {
	return anchor.SameDay(day)
}

func (OneTimeRule) Projected(anchor core.Date, amount core.Money, month core.YearMonth, _ int, _ WeeklyEstimate) core.Money {
	if !month.Contains(anchor) {
		return core.Money{}
	}
	return amount
}

// DailyRule applies to every day.
type DailyRule struct{}

func (DailyRule) Occurs(_, _ core.Date) bool {
	return true
}

func (DailyRule) Projected(_ core.Date, amount core.Money, _ core.YearMonth, daysInMonth int, _ WeeklyEstimate) core.Money {
	return amount.Times(daysInMonth)
}

// WeeklyRule applies to days sharing the anchor's weekday.
type WeeklyRule struct{}

func (WeeklyRule) Occurs(anchor, day core.Date) bool {
	return anchor.Weekday() == day.Weekday()
}

// Projected uses a fixed four occurrences per month unless the exact
// estimate is selected, in which case the anchor weekday is counted among the
// first daysInMonth days of the month.
func (WeeklyRule) Projected(anchor core.Date, amount core.Money, month core.YearMonth, daysInMonth int, weekly WeeklyEstimate) core.Money {
	if weekly != WeeklyExact {
		return amount.Times(4)
	}
	return amount.Times(countWeekday(month, daysInMonth, anchor))
}

// MonthlyRule applies to days sharing the anchor's day of month. Short months
// are not clamped: an anchor on the 31st never occurs in a 30-day month.
type MonthlyRule struct{}

func (MonthlyRule) Occurs(anchor, day core.Date) bool {
	return anchor.Day() == day.Day()
}

func (MonthlyRule) Projected(_ core.Date, amount core.Money, _ core.YearMonth, _ int, _ WeeklyEstimate) core.Money {
	return amount
}

// YearlyRule applies to days sharing the anchor's month and day. A February 29
// anchor only occurs in leap years.
type YearlyRule struct{}

func (YearlyRule) Occurs(anchor, day core.Date) bool {
	return anchor.Month() == day.Month() && anchor.Day() == day.Day()
}

func (YearlyRule) Projected(anchor core.Date, amount core.Money, month core.YearMonth, _ int, _ WeeklyEstimate) core.Money {
	if anchor.Month() != month.Month {
		return core.Money{}
	}
	return amount
}

// RuleFor returns the rule of a frequency.
func RuleFor(f core.Frequency) (Rule, error) {
	switch f {
	case core.OneTime:
		return OneTimeRule{}, nil
	case core.Daily:
		return DailyRule{}, nil
	case core.Weekly:
		return WeeklyRule{}, nil
	case core.Monthly:
		return MonthlyRule{}, nil
	case core.Yearly:
		return YearlyRule{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidFrequency, int(f))
	}
}

func countWeekday(month core.YearMonth, daysInMonth int, anchor core.Date) int {
	n := 0
	first := month.First()
	for i := 0; i < daysInMonth; i++ {
		if first.AddDate(0, 0, i).Weekday() == anchor.Weekday() {
			n++
		}
	}
	return n
}
