package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frequency is the recurrence rule of an expense record. The set of values is
// closed: anything outside OneTime..Yearly is not a valid frequency.
type Frequency int

const (
	OneTime Frequency = iota
	Daily
	Weekly
	Monthly
	Yearly
)

// DefaultColor is the badge color used when a record does not carry one.
const DefaultColor = "#3b82f6"

const maxTitleLength = 200

var frequencyTags = [...]string{
	OneTime: "one-time",
	Daily:   "daily",
	Weekly:  "weekly",
	Monthly: "monthly",
	Yearly:  "yearly",
}

type (
	Date struct {
		time.Time
	}

	// YearMonth names one displayed calendar month.
	YearMonth struct {
		Year  int
		Month int // 1-12
	}

	Money struct {
		Cents int64
	}

	// Record is one user-entered expense. AnchorDate is the exact date of a
	// one-time expense, or the reference date whose weekday, day of month or
	// month and day is reused by recurring expenses.
	Record struct {
		ID         string
		Title      string
		Amount     Money
		AnchorDate Date
		Color      string
		Frequency  Frequency
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyTitle       = errors.New("empty title")
	ErrTitleTooLong     = errors.New("title too long (max 200 characters)")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrZeroDate         = errors.New("date cannot be zero")
)

// Frequencies returns every frequency in display order.
func Frequencies() []Frequency {
	return []Frequency{OneTime, Daily, Weekly, Monthly, Yearly}
}

// ParseFrequency maps a wire tag ("one-time", "daily", ...) to a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, tag := range frequencyTags {
		if tag == s {
			return Frequency(f), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
}

// Valid reports whether f is one of the five known frequencies.
func (f Frequency) Valid() bool {
	return f >= OneTime && f <= Yearly
}

func (f Frequency) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Frequency(%d)", int(f))
	}
	return frequencyTags[f]
}

// Label returns the human readable name shown in forms.
func (f Frequency) Label() string {
	switch f {
	case OneTime:
		return "One-time"
	case Daily:
		return "Daily"
	case Weekly:
		return "Weekly"
	case Monthly:
		return "Monthly"
	case Yearly:
		return "Yearly"
	default:
		return f.String()
	}
}

func (f Frequency) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrequency, int(f))
	}
	return []byte(frequencyTags[f]), nil
}

func (f *Frequency) UnmarshalText(b []byte) error {
	parsed, err := ParseFrequency(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time of day of t, keeping its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// SameDay reports whether both dates name the same year, month and day.
func (d Date) SameDay(o Date) bool {
	return d.Year() == o.Year() && d.Month() == o.Month() && d.Day() == o.Day()
}

// YearMonth returns the month the date falls in.
func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Year(), Month: d.Month()}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// MonthOf returns the YearMonth containing t.
func MonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

func (ym YearMonth) Validate() error {
	if ym.Month < 1 || ym.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// First returns the first day of the month.
func (ym YearMonth) First() Date {
	return NewDate(ym.Year, ym.Month, 1)
}

// DaysIn returns the number of calendar days in the month.
func (ym YearMonth) DaysIn() int {
	return time.Date(ym.Year, time.Month(ym.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Days returns every date of the month in order.
func (ym YearMonth) Days() []Date {
	n := ym.DaysIn()
	out := make([]Date, n)
	for i := range out {
		out[i] = NewDate(ym.Year, ym.Month, i+1)
	}
	return out
}

// Next returns the following month.
func (ym YearMonth) Next() YearMonth {
	return MonthOf(ym.First().AddDate(0, 1, 0))
}

// Prev returns the preceding month.
func (ym YearMonth) Prev() YearMonth {
	return MonthOf(ym.First().AddDate(0, -1, 0))
}

// Contains reports whether d falls within the month.
func (ym YearMonth) Contains(d Date) bool {
	return d.Year() == ym.Year && d.Month() == ym.Month
}

// Title formats the month as "January 2024".
func (ym YearMonth) Title() string {
	return ym.First().Format("January 2006")
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// Validate checks the invariants every persisted record must hold.
func (r Record) Validate() error {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return ErrEmptyTitle
	}
	if len(title) > maxTitleLength {
		return ErrTitleTooLong
	}
	if r.Amount.Cents < 0 || r.Amount.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	if !r.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if err := r.AnchorDate.Validate(); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	return nil
}
