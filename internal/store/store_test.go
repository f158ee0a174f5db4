package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensecal/internal/core"
	"expensecal/internal/storage"
)

var ctx = context.Background()

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
	err     error
}

func (n *recordingNotifier) RecordChanged(_ context.Context, c Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
	return n.err
}

type failingPersister struct {
	*storage.MemoryPersister
}

func (f *failingPersister) Save(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func rent() Draft {
	return Draft{
		Title:      "Rent",
		Amount:     core.Money{Cents: 120000},
		AnchorDate: core.NewDate(2024, 3, 1),
		Color:      "#ef4444",
		Frequency:  core.Monthly,
	}
}

func TestAddPersistsAndAssignsID(t *testing.T) {
	// given
	p := storage.NewMemoryPersister()
	s := New(p, WithIDGenerator(sequentialIDs()))
	require.NoError(t, s.Load(ctx))

	// when
	r, err := s.Add(ctx, rent())

	// then
	require.NoError(t, err)
	assert.Equal(t, "id-1", r.ID)
	assert.Equal(t, 1, s.Len())

	raw, ok, err := p.Load(ctx, storage.RecordsKey)
	require.NoError(t, err)
	require.True(t, ok)
	saved, err := storage.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []core.Record{r}, saved)
}

func TestAddDefaultsColorAndTrimsTitle(t *testing.T) {
	s := New(storage.NewMemoryPersister())

	d := rent()
	d.Title = "  Rent  "
	d.Color = ""
	r, err := s.Add(ctx, d)

	require.NoError(t, err)
	assert.Equal(t, "Rent", r.Title)
	assert.Equal(t, core.DefaultColor, r.Color)
	assert.NotEmpty(t, r.ID)
}

func TestAddRejectsInvalid(t *testing.T) {
	s := New(storage.NewMemoryPersister())

	d := rent()
	d.Title = "   "
	_, err := s.Add(ctx, d)
	assert.ErrorIs(t, err, core.ErrEmptyTitle)

	d = rent()
	d.Amount = core.Money{Cents: -1}
	_, err = s.Add(ctx, d)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	d = rent()
	d.Frequency = core.Frequency(42)
	_, err = s.Add(ctx, d)
	assert.ErrorIs(t, err, core.ErrInvalidFrequency)

	assert.Zero(t, s.Len())
}

func TestUpdateKeepsSetSize(t *testing.T) {
	// given two records
	s := New(storage.NewMemoryPersister(), WithIDGenerator(sequentialIDs()))
	first, err := s.Add(ctx, rent())
	require.NoError(t, err)
	second, err := s.Add(ctx, Draft{
		Title:      "Coffee",
		Amount:     core.Money{Cents: 500},
		AnchorDate: core.NewDate(2024, 4, 1),
		Frequency:  core.Daily,
	})
	require.NoError(t, err)

	// when the first is edited
	d := rent()
	d.Amount = core.Money{Cents: 130000}
	updated, err := s.Update(ctx, first.ID, d)

	// then
	require.NoError(t, err)
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, 2, s.Len())

	got, err := s.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(130000), got.Amount.Cents)

	untouched, err := s.Get(second.ID)
	require.NoError(t, err)
	assert.Equal(t, second, untouched)

	assert.Equal(t, []string{first.ID, second.ID}, ids(s.List()))
}

func TestUpdateAndDeleteUnknownID(t *testing.T) {
	s := New(storage.NewMemoryPersister())
	_, err := s.Add(ctx, rent())
	require.NoError(t, err)

	_, err = s.Update(ctx, "missing", rent())
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Delete(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, s.Len())
}

func TestDelete(t *testing.T) {
	s := New(storage.NewMemoryPersister(), WithIDGenerator(sequentialIDs()))
	a, err := s.Add(ctx, rent())
	require.NoError(t, err)
	b, err := s.Add(ctx, rent())
	require.NoError(t, err)
	c, err := s.Add(ctx, rent())
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, b.ID))

	assert.Equal(t, []string{a.ID, c.ID}, ids(s.List()))
}

func TestLoadRoundTripsThroughPersister(t *testing.T) {
	p := storage.NewMemoryPersister()
	s := New(p, WithIDGenerator(sequentialIDs()))
	_, err := s.Add(ctx, rent())
	require.NoError(t, err)

	reloaded := New(p)
	require.NoError(t, reloaded.Load(ctx))

	assert.Equal(t, s.List(), reloaded.List())
}

func TestLoadTreatsCorruptDataAsEmpty(t *testing.T) {
	p := storage.NewMemoryPersister()
	require.NoError(t, p.Save(ctx, storage.RecordsKey, []byte(`{not json`)))

	s := New(p)
	require.NoError(t, s.Load(ctx))

	assert.Zero(t, s.Len())
}

func TestSaveFailureLeavesSetUnchanged(t *testing.T) {
	n := &recordingNotifier{}
	s := New(&failingPersister{storage.NewMemoryPersister()}, WithNotifier(n))

	_, err := s.Add(ctx, rent())

	require.Error(t, err)
	assert.Zero(t, s.Len())
	assert.Empty(t, n.changes, "nothing is published for a mutation that was not saved")
}

func TestListReturnsCopy(t *testing.T) {
	s := New(storage.NewMemoryPersister())
	_, err := s.Add(ctx, rent())
	require.NoError(t, err)

	list := s.List()
	list[0].Title = "changed"

	got := s.List()
	assert.Equal(t, "Rent", got[0].Title)
}

func TestNotifierReceivesAffectedMonths(t *testing.T) {
	n := &recordingNotifier{}
	s := New(storage.NewMemoryPersister(), WithNotifier(n), WithIDGenerator(sequentialIDs()))

	r, err := s.Add(ctx, rent())
	require.NoError(t, err)

	moved := rent()
	moved.AnchorDate = core.NewDate(2024, 5, 10)
	_, err = s.Update(ctx, r.ID, moved)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, r.ID))

	march := core.YearMonth{Year: 2024, Month: 3}
	may := core.YearMonth{Year: 2024, Month: 5}
	assert.Equal(t, []Change{
		{Op: OpCreate, ID: "id-1", Months: []core.YearMonth{march}, AllMonths: true},
		{Op: OpUpdate, ID: "id-1", Months: []core.YearMonth{march, may}, AllMonths: true},
		{Op: OpDelete, ID: "id-1", Months: []core.YearMonth{may}, AllMonths: true},
	}, n.changes)
}

func TestNotifierFlagsRecurringChanges(t *testing.T) {
	n := &recordingNotifier{}
	s := New(storage.NewMemoryPersister(), WithNotifier(n), WithIDGenerator(sequentialIDs()))

	dinner := rent()
	dinner.Title = "Dinner"
	dinner.Frequency = core.OneTime
	r, err := s.Add(ctx, dinner)
	require.NoError(t, err)

	// one-time to monthly and back
	_, err = s.Update(ctx, r.ID, rent())
	require.NoError(t, err)
	_, err = s.Update(ctx, r.ID, dinner)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, r.ID))

	var flags []bool
	for _, c := range n.changes {
		flags = append(flags, c.AllMonths)
	}
	assert.Equal(t, []bool{false, true, true, false}, flags)
}

func TestNotifierFailureDoesNotFailMutation(t *testing.T) {
	n := &recordingNotifier{err: errors.New("broker down")}
	s := New(storage.NewMemoryPersister(), WithNotifier(n))

	_, err := s.Add(ctx, rent())

	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Len(t, n.changes, 1)
}

func TestConcurrentAdds(t *testing.T) {
	s := New(storage.NewMemoryPersister())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Add(ctx, rent())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, s.Len())
}

func ids(records []core.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
