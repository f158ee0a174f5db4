// Package worker turns record change events into spreadsheet exports.
package worker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"expensecal/internal/amqp"
	"expensecal/internal/calendar"
	"expensecal/internal/core"
	"expensecal/internal/recurrence"
	"expensecal/internal/sheets"
)

// RecordSource reloads and lists the persisted record set.
type RecordSource interface {
	Load(ctx context.Context) error
	List() []core.Record
}

// ExportWorker exports month summaries to a spreadsheet.
type ExportWorker struct {
	records  RecordSource
	exporter sheets.MonthExporter
	agg      recurrence.Aggregator
	now      func() time.Time

	mu       sync.Mutex
	exported map[core.YearMonth]time.Time
}

func NewExportWorker(records RecordSource, exporter sheets.MonthExporter, agg recurrence.Aggregator) *ExportWorker {
	return &ExportWorker{
		records:  records,
		exporter: exporter,
		agg:      agg,
		now:      time.Now,
		exported: make(map[core.YearMonth]time.Time),
	}
}

// HandleMessage exports the month named by msg. A message that flags every
// month also re-exports each month exported before plus the current one. A
// month exported after the message was published already reflects it and is
// skipped.
func (w *ExportWorker) HandleMessage(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	months := []core.YearMonth{msg.YearMonth()}
	if msg.AllMonths {
		months = append(months, w.exportedMonths()...)
		months = append(months, core.MonthOf(w.now()))
	}

	slog.InfoContext(ctx, "Processing record change",
		"op", msg.Op,
		"id", msg.ID,
		"month", msg.YearMonth().String(),
		"all_months", msg.AllMonths)

	var errs []error
	done := make(map[core.YearMonth]bool, len(months))
	for _, month := range months {
		if done[month] {
			continue
		}
		done[month] = true

		if w.exportedSince(month, msg.Timestamp) {
			slog.DebugContext(ctx, "Change already exported, skipping",
				"id", msg.ID,
				"month", month.String())
			continue
		}
		if err := w.ExportMonth(ctx, month); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// exportedSince reports whether month was exported at or after t.
func (w *ExportWorker) exportedSince(month core.YearMonth, t time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.exported[month]
	return ok && !t.After(last)
}

// exportedMonths lists the months exported so far, oldest first.
func (w *ExportWorker) exportedMonths() []core.YearMonth {
	w.mu.Lock()
	months := make([]core.YearMonth, 0, len(w.exported))
	for m := range w.exported {
		months = append(months, m)
	}
	w.mu.Unlock()
	slices.SortFunc(months, func(a, b core.YearMonth) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Month, b.Month))
	})
	return months
}

// ExportMonth reloads the record set and exports month.
func (w *ExportWorker) ExportMonth(ctx context.Context, month core.YearMonth) error {
	if err := month.Validate(); err != nil {
		return fmt.Errorf("export %s: %w", month, err)
	}

	started := w.now()
	if err := w.records.Load(ctx); err != nil {
		return fmt.Errorf("reload records: %w", err)
	}

	view := calendar.Build(w.records.List(), month, core.DateOf(started), w.agg)
	ref, err := w.exporter.ExportMonth(ctx, sheets.ReportFromView(view))
	if err != nil {
		return fmt.Errorf("export month %s: %w", month, err)
	}

	w.mu.Lock()
	w.exported[month] = started
	w.mu.Unlock()

	slog.InfoContext(ctx, "Successfully exported month",
		"month", month.String(),
		"ref", ref,
		"total_cents", view.Total().Cents)
	return nil
}

// ExportCurrentMonth exports the month containing now. Used at startup and on
// every periodic tick to recover from missed messages.
func (w *ExportWorker) ExportCurrentMonth(ctx context.Context) error {
	return w.ExportMonth(ctx, core.MonthOf(w.now()))
}

// RunPeriodic re-exports the current month every interval until ctx ends.
func (w *ExportWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ExportCurrentMonth(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", "error", err)
			}
		}
	}
}
