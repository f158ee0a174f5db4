package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"expensecal/internal/core"
)

// RecordChangedMessage tells consumers that the projection of one month may
// have changed, or of every month when AllMonths is set. It carries no record
// data: consumers reload the set.
type RecordChangedMessage struct {
	Op        string    `json:"op"`
	ID        string    `json:"id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	AllMonths bool      `json:"all_months,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordChangedMessage(op, id string, month core.YearMonth) *RecordChangedMessage {
	return &RecordChangedMessage{
		Op:        op,
		ID:        id,
		Year:      month.Year,
		Month:     month.Month,
		Timestamp: time.Now(),
	}
}

// YearMonth returns the affected month.
func (m *RecordChangedMessage) YearMonth() core.YearMonth {
	return core.YearMonth{Year: m.Year, Month: m.Month}
}

func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON decodes and validates a message body.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.YearMonth().Validate(); err != nil {
		return nil, fmt.Errorf("message month: %w", err)
	}
	return &msg, nil
}
