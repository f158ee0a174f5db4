// Package store owns the active expense record set. It loads the set once at
// startup, writes the full sequence back after every mutation and is the only
// place where records are validated.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"expensecal/internal/core"
	"expensecal/internal/log"
	"expensecal/internal/storage"
)

var ErrNotFound = errors.New("expense not found")

// Op names a mutation of the record set.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes one applied mutation. Months lists the anchor months of
// the record before and after the change. AllMonths is set when a recurring
// record was involved, since it contributes to every month's projection.
type Change struct {
	Op        Op
	ID        string
	Months    []core.YearMonth
	AllMonths bool
}

// Notifier is told about every mutation after it has been persisted.
type Notifier interface {
	RecordChanged(ctx context.Context, c Change) error
}

// Draft carries the user-editable fields of a record.
type Draft struct {
	Title      string
	Amount     core.Money
	AnchorDate core.Date
	Color      string
	Frequency  core.Frequency
}

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	persister storage.Persister
	notifier  Notifier
	records   []core.Record
	newID     func() string
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier publishes changes to n.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithIDGenerator replaces the UUID generator, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func New(p storage.Persister, opts ...Option) *Store {
	s := &Store{
		persister: p,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory set with the persisted one. A missing or
// unreadable entry leaves the store empty rather than failing.
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.persister.Load(ctx, storage.RecordsKey)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	var records []core.Record
	switch {
	case !ok:
		slog.InfoContext(ctx, "No saved expenses, starting empty", "key", storage.RecordsKey)
	default:
		records, err = storage.Decode(raw)
		if err != nil {
			slog.WarnContext(ctx, "Saved expenses unreadable, starting empty", "key", storage.RecordsKey, "error", err)
			records = nil
		}
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	slog.InfoContext(ctx, "Expenses loaded", "count", len(records))
	return nil
}

// List returns a snapshot of the record set in insertion order.
func (s *Store) List() []core.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.Record{}, ErrNotFound
	}
	return s.records[i], nil
}

// Add validates d, assigns a fresh id and appends the record.
func (s *Store) Add(ctx context.Context, d Draft) (core.Record, error) {
	r := d.record("")
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}

	s.mu.Lock()
	r.ID = s.newID()
	next := append(slices.Clone(s.records), r)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return core.Record{}, err
	}
	s.mu.Unlock()

	slog.InfoContext(ctx, "Expense created", log.NewFields().WithRecord(r).WithOperation(log.OpCreate).ToSlice()...)

	s.notify(ctx, Change{
		Op:        OpCreate,
		ID:        r.ID,
		Months:    []core.YearMonth{r.AnchorDate.YearMonth()},
		AllMonths: recurring(r),
	})
	return r, nil
}

// Update replaces every field of the record with the given id. The set size
// and the other records are left untouched.
func (s *Store) Update(ctx context.Context, id string, d Draft) (core.Record, error) {
	r := d.record(id)
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return core.Record{}, ErrNotFound
	}
	old := s.records[i]
	next := slices.Clone(s.records)
	next[i] = r
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return core.Record{}, err
	}
	s.mu.Unlock()

	slog.InfoContext(ctx, "Expense updated", log.NewFields().WithRecord(r).WithOperation(log.OpUpdate).ToSlice()...)

	months := []core.YearMonth{old.AnchorDate.YearMonth()}
	if nm := r.AnchorDate.YearMonth(); nm != months[0] {
		months = append(months, nm)
	}
	s.notify(ctx, Change{Op: OpUpdate, ID: id, Months: months, AllMonths: recurring(old) || recurring(r)})
	return r, nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	old := s.records[i]
	next := slices.Delete(slices.Clone(s.records), i, i+1)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	slog.InfoContext(ctx, "Expense deleted", log.NewFields().WithRecord(old).WithOperation(log.OpDelete).ToSlice()...)

	s.notify(ctx, Change{
		Op:        OpDelete,
		ID:        id,
		Months:    []core.YearMonth{old.AnchorDate.YearMonth()},
		AllMonths: recurring(old),
	})
	return nil
}

// commit persists next and installs it. Callers hold s.mu.
func (s *Store) commit(ctx context.Context, next []core.Record) error {
	raw, err := storage.Encode(next)
	if err != nil {
		return err
	}
	if err := s.persister.Save(ctx, storage.RecordsKey, raw); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	s.records = next
	return nil
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.records, func(r core.Record) bool { return r.ID == id })
}

// notify never fails the mutation: the record set is already saved.
func (s *Store) notify(ctx context.Context, c Change) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.RecordChanged(ctx, c); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense change",
			"op", string(c.Op),
			"id", c.ID,
			"error", err)
	}
}

// recurring reports whether r contributes outside its anchor month.
func recurring(r core.Record) bool {
	return r.Frequency != core.OneTime
}

func (d Draft) record(id string) core.Record {
	color := strings.TrimSpace(d.Color)
	if color == "" {
		color = core.DefaultColor
	}
	return core.Record{
		ID:         id,
		Title:      strings.TrimSpace(d.Title),
		Amount:     d.Amount,
		AnchorDate: d.AnchorDate,
		Color:      color,
		Frequency:  d.Frequency,
	}
}
