package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"expensecal/internal/core"
)

// RecordsKey is the single key the record sequence is stored under.
const RecordsKey = "expenses"

// recordJSON is the persisted shape of a record. Amounts are decimal numbers
// and dates are calendar dates, as written by the browser store. Amounts are
// kept as json.Number so cents survive a save and load exactly.
type recordJSON struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Amount    json.Number    `json:"amount"`
	Date      string         `json:"date"`
	Color     string         `json:"color"`
	Frequency core.Frequency `json:"frequency"`
}

// Encode serializes the record sequence, preserving order.
func Encode(records []core.Record) ([]byte, error) {
	out := make([]recordJSON, len(records))
	for i, r := range records {
		out[i] = recordJSON{
			ID:        r.ID,
			Title:     r.Title,
			Amount:    json.Number(r.Amount.String()),
			Date:      r.AnchorDate.String(),
			Color:     r.Color,
			Frequency: r.Frequency,
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return b, nil
}

// Decode parses a persisted record sequence. Dates may be plain calendar
// dates or RFC 3339 timestamps; a timestamp keeps the calendar date of its own
// offset. Any malformed or invalid entry, or a repeated id, fails the whole
// decode.
func Decode(data []byte) ([]core.Record, error) {
	var in []recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	records := make([]core.Record, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for i, rj := range in {
		date, err := parseStoredDate(rj.Date)
		if err != nil {
			return nil, fmt.Errorf("decode record %d (%s): %w", i, rj.ID, err)
		}
		amount, err := core.ParseStoredAmount(rj.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("decode record %d (%s): %w", i, rj.ID, err)
		}
		color := rj.Color
		if strings.TrimSpace(color) == "" {
			color = core.DefaultColor
		}
		r := core.Record{
			ID:         rj.ID,
			Title:      rj.Title,
			Amount:     amount,
			AnchorDate: date,
			Color:      color,
			Frequency:  rj.Frequency,
		}
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("decode record %d: missing id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("decode record %d: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = struct{}{}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("decode record %d (%s): %w", i, r.ID, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func parseStoredDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if d, err := core.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid date %q", s)
	}
	return core.DateOf(t), nil
}
