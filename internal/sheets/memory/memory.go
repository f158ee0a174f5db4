package memory

import (
	"context"
	"fmt"
	"sync"

	"expensecal/internal/core"
	ports "expensecal/internal/sheets"
)

// Store keeps the latest export of each month in process memory.
type Store struct {
	mu      sync.Mutex
	reports map[core.YearMonth]ports.MonthReport
	writes  int
}

var _ ports.MonthExporter = (*Store)(nil)

func New() *Store {
	return &Store{reports: make(map[core.YearMonth]ports.MonthReport)}
}

// ExportMonth replaces the stored report and returns a synthetic reference.
func (s *Store) ExportMonth(_ context.Context, r ports.MonthReport) (string, error) {
	month := r.Month()
	if err := month.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[month] = r
	s.writes++
	return fmt.Sprintf("mem:%s", month), nil
}

// Report returns the last export of month.
func (s *Store) Report(month core.YearMonth) (ports.MonthReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[month]
	return r, ok
}

// Writes returns the number of successful exports.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
