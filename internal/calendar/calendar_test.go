package calendar

import (
	"testing"

	"expensecal/internal/core"
	"expensecal/internal/recurrence"
)

func record(id string, cents int64, f core.Frequency, anchor core.Date) core.Record {
	return core.Record{ID: id, Title: id, Amount: core.Money{Cents: cents}, Frequency: f, AnchorDate: anchor, Color: core.DefaultColor}
}

func TestBuildLaysOutMonth(t *testing.T) {
	records := []core.Record{
		record("rent", 120000, core.Monthly, core.NewDate(2024, 1, 1)),
		record("coffee", 500, core.Daily, core.NewDate(2024, 1, 1)),
		record("gym", 4000, core.Weekly, core.NewDate(2024, 1, 1)),
		record("tv", 30000, core.OneTime, core.NewDate(2024, 3, 1)),
	}
	month := core.YearMonth{Year: 2024, Month: 3}
	today := core.NewDate(2024, 3, 15)

	v := Build(records, month, today, recurrence.Aggregator{})

	if v.Title != "March 2024" {
		t.Errorf("Title = %q", v.Title)
	}
	if v.Prev != (core.YearMonth{Year: 2024, Month: 2}) || v.Next != (core.YearMonth{Year: 2024, Month: 4}) {
		t.Errorf("navigation prev=%v next=%v", v.Prev, v.Next)
	}
	if len(v.Days) != 31 {
		t.Fatalf("expected 31 cells, got %d", len(v.Days))
	}
	// 2024-03-01 is a Friday.
	if v.LeadingBlanks != 5 {
		t.Errorf("LeadingBlanks = %d, want 5", v.LeadingBlanks)
	}
	if v.TrailingBlanks() != 6 {
		t.Errorf("TrailingBlanks = %d, want 6", v.TrailingBlanks())
	}

	first := v.Days[0]
	if len(first.Expenses) != 3 {
		t.Fatalf("march 1st: expected 3 expenses, got %d", len(first.Expenses))
	}
	if len(first.Badges) != MaxBadges || first.Overflow != 1 {
		t.Errorf("march 1st badges=%d overflow=%d", len(first.Badges), first.Overflow)
	}
	if first.Badges[0].ID != "rent" || first.Badges[1].ID != "coffee" {
		t.Errorf("badges must keep record order, got %s,%s", first.Badges[0].ID, first.Badges[1].ID)
	}
	if first.Total.Cents != 150500 {
		t.Errorf("march 1st total = %d", first.Total.Cents)
	}

	// 2024-03-04 is a Monday: coffee + gym.
	monday := v.Days[3]
	if len(monday.Expenses) != 2 || monday.Overflow != 0 || monday.Total.Cents != 4500 {
		t.Errorf("march 4th: %+v", monday)
	}

	for i, c := range v.Days {
		if c.IsToday != (i == 14) {
			t.Errorf("day %d IsToday=%v", i+1, c.IsToday)
		}
	}

	// 120000 + 500*31 + 4000*4 + 30000
	if v.Total().Cents != 181500 {
		t.Errorf("month total = %d, want 181500", v.Total().Cents)
	}
	if v.Overview.DaysInMonth != 31 {
		t.Errorf("DaysInMonth = %d", v.Overview.DaysInMonth)
	}
}

func TestBuildTrailingBlanksOnFullRow(t *testing.T) {
	// February 2015 starts on a Sunday and has 28 days: four full rows.
	v := Build(nil, core.YearMonth{Year: 2015, Month: 2}, core.NewDate(2015, 1, 1), recurrence.Aggregator{})
	if v.LeadingBlanks != 0 || v.TrailingBlanks() != 0 {
		t.Fatalf("leading=%d trailing=%d", v.LeadingBlanks, v.TrailingBlanks())
	}
	if !v.Total().IsZero() {
		t.Fatalf("empty record set must total zero")
	}
}

func TestDay(t *testing.T) {
	records := []core.Record{
		record("gym", 4000, core.Weekly, core.NewDate(2024, 1, 1)),
		record("ins", 60000, core.Yearly, core.NewDate(2024, 6, 15)),
	}

	v := Day(records, core.NewDate(2024, 1, 8))
	if v.Title != "January 8, 2024" {
		t.Errorf("Title = %q", v.Title)
	}
	if v.Empty() || len(v.Expenses) != 1 || v.Total.Cents != 4000 {
		t.Errorf("unexpected day view %+v", v)
	}

	empty := Day(records, core.NewDate(2024, 1, 9))
	if !empty.Empty() || !empty.Total.IsZero() {
		t.Errorf("expected empty day, got %+v", empty)
	}
}
