package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"expensecal/internal/calendar"
	"expensecal/internal/core"
	"expensecal/internal/recurrence"
	"expensecal/internal/storage"
	"expensecal/internal/store"
)

var testNow = time.Date(2024, time.March, 15, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) (*Server, *store.Store) {
	t.Helper()
	n := 0
	st := store.New(storage.NewMemoryPersister(), store.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("exp-%d", n)
	}))
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	srv := NewServer(":0", st, recurrence.Aggregator{}, opts...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, st
}

func addRecord(t *testing.T, st *store.Store, title string, cents int64, date string, f core.Frequency) core.Record {
	t.Helper()
	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", date, err)
	}
	rec, err := st.Add(context.Background(), store.Draft{
		Title:      title,
		Amount:     core.Money{Cents: cents},
		AnchorDate: d,
		Frequency:  f,
	})
	if err != nil {
		t.Fatalf("Add(%q): %v", title, err)
	}
	return rec
}

func do(srv *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

var htmx = map[string]string{"HX-Request": "true"}

func TestIndexAndHealth(t *testing.T) {
	srv, st := newTestServer(t)
	addRecord(t, st, "Groceries", 4250, "2024-03-15", core.OneTime)

	rr := do(srv, http.MethodGet, "/", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Expense Calendar", "March 2024", "Groceries", "$42.50"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if n := strings.Count(body, `id="expense-date"`); n != 1 {
		t.Errorf("index renders %d add form date inputs, want 1", n)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(srv, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	if rr := do(srv, http.MethodGet, "/nope", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown path status=%d, want 404", rr.Code)
	}
}

func TestIndex_CorrectsInvalidMonth(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/?year=2023&month=13", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "March 2023") {
		t.Error("invalid month was not replaced by the current month")
	}
}

func TestReady_FailingCheck(t *testing.T) {
	srv, _ := newTestServer(t, WithReadinessCheck("database", func(context.Context) error {
		return fmt.Errorf("connection refused")
	}))

	rr := do(srv, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}
	var resp struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "not_ready" {
		t.Errorf("status=%q, want not_ready", resp.Status)
	}
	if got, _ := resp.Checks["database"].(string); !strings.Contains(got, "connection refused") {
		t.Errorf("database check=%q", got)
	}
}

func TestCalendarAndDayPartials(t *testing.T) {
	srv, st := newTestServer(t)
	addRecord(t, st, "Gym", 3000, "2024-01-15", core.Monthly)

	rr := do(srv, http.MethodGet, "/ui/calendar?year=2024&month=2", "", htmx)
	if rr.Code != http.StatusOK {
		t.Fatalf("calendar status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "February 2024") || !strings.Contains(rr.Body.String(), "Gym") {
		t.Error("calendar partial missing month title or recurring expense")
	}
	if strings.Contains(rr.Body.String(), "<html") {
		t.Error("calendar partial rendered the full page")
	}

	rr = do(srv, http.MethodGet, "/ui/day?date=2024-04-15", "", htmx)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Gym") {
		t.Errorf("day status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = do(srv, http.MethodGet, "/ui/day?date=2024-04-16", "", htmx)
	if !strings.Contains(rr.Body.String(), "No expenses for this day.") {
		t.Error("empty day missing placeholder")
	}
	oob := `<input type="date" id="expense-date" name="date" value="2024-04-16" required hx-swap-oob="true">`
	if !strings.Contains(rr.Body.String(), oob) {
		t.Errorf("day partial does not carry the clicked date into the add form: %q", rr.Body.String())
	}

	if rr := do(srv, http.MethodGet, "/ui/day?date=2024-02-30", "", htmx); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid date status=%d, want 400", rr.Code)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	srv, st := newTestServer(t)

	rr := do(srv, http.MethodGet, "/expenses", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("Allow") != http.MethodPost {
		t.Errorf("Allow=%q", rr.Header().Get("Allow"))
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid amount", "title=Rent&amount=abc&date=2024-03-01", "Amount must be a positive number"},
		{"amount above ceiling", "title=Rent&amount=92233720368547758&date=2024-03-01", "no larger than 1000000000"},
		{"missing title", "title=&amount=10&date=2024-03-01", "Title is required"},
		{"bad date", "title=Rent&amount=10&date=2024-13-01", "Date must be a valid YYYY-MM-DD date"},
		{"unknown frequency", "title=Rent&amount=10&date=2024-03-01&frequency=fortnightly", "Unknown frequency"},
		{"title too long", "title=" + strings.Repeat("x", 201) + "&amount=10&date=2024-03-01", "Title is too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(srv, http.MethodPost, "/expenses", tt.body, htmx)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("body=%q, want %q", rr.Body.String(), tt.want)
			}
			if trigger := rr.Header().Get("HX-Trigger"); !strings.Contains(trigger, `"type":"error"`) {
				t.Errorf("HX-Trigger=%s, want an error notification", trigger)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(`{"title":`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON status=%d, want 400", rr.Code)
	}

	if st.Len() != 0 {
		t.Errorf("store has %d records after rejected requests", st.Len())
	}
}

func TestCreateExpense_HTMX(t *testing.T) {
	srv, st := newTestServer(t)

	rr := do(srv, http.MethodPost, "/expenses", "title=Coffee&amount=3.50&date=2024-03-20&frequency=weekly&color=%2310b981", htmx)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	for _, want := range []string{`"expense:created"`, `"form:reset"`, `"calendar:refresh"`, `"show-notification"`} {
		if !strings.Contains(trigger, want) {
			t.Errorf("HX-Trigger missing %s: %s", want, trigger)
		}
	}
	if !strings.Contains(rr.Body.String(), "Saved Coffee: $3.50 (Weekly)") {
		t.Errorf("body=%q", rr.Body.String())
	}

	rec, err := st.Get("exp-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Frequency != core.Weekly || rec.Color != "#10b981" || rec.Amount.Cents != 350 {
		t.Errorf("stored record = %+v", rec)
	}
}

func TestCreateExpense_FormRedirect(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodPost, "/expenses", "title=Rent&amount=1200&date=2024-05-01&frequency=monthly", nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status=%d, want 303", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/?year=2024&month=5" {
		t.Errorf("Location=%q", loc)
	}
}

func TestCreateExpense_JSON(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/expenses",
		strings.NewReader(`{"title":"Insurance","amount":"480.00","date":"2024-03-10","frequency":"yearly"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var got expenseJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := expenseJSON{
		ID:          "exp-1",
		Title:       "Insurance",
		Amount:      480,
		AmountCents: 48000,
		Date:        "2024-03-10",
		Color:       core.DefaultColor,
		Frequency:   "yearly",
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	srv, st := newTestServer(t)
	addRecord(t, st, "Rent", 120000, "2024-03-01", core.Monthly)

	rr := do(srv, http.MethodPut, "/expenses/update?id=exp-1", "title=Rent+%2B+utilities&amount=1350&date=2024-03-02&frequency=monthly", htmx)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"expense:updated"`) {
		t.Errorf("HX-Trigger=%s", rr.Header().Get("HX-Trigger"))
	}
	rec, _ := st.Get("exp-1")
	if rec.Title != "Rent + utilities" || rec.Amount.Cents != 135000 || rec.AnchorDate.Day() != 2 {
		t.Errorf("updated record = %+v", rec)
	}
	if st.Len() != 1 {
		t.Errorf("Len()=%d after update, want 1", st.Len())
	}

	if rr := do(srv, http.MethodPut, "/expenses/update", "title=x&amount=1&date=2024-03-02", htmx); rr.Code != http.StatusBadRequest {
		t.Errorf("missing id status=%d, want 400", rr.Code)
	}
	if rr := do(srv, http.MethodPut, "/expenses/update?id=exp-9", "title=x&amount=1&date=2024-03-02", htmx); rr.Code != http.StatusNotFound {
		t.Errorf("unknown id status=%d, want 404", rr.Code)
	}

	rr = do(srv, http.MethodDelete, "/expenses/delete?id=exp-1", "", map[string]string{"Accept": "application/json"})
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if got := rr.Body.String(); got != `{"deleted":"exp-1"}` {
		t.Errorf("delete body=%q", got)
	}
	if st.Len() != 0 {
		t.Errorf("Len()=%d after delete, want 0", st.Len())
	}

	rr = do(srv, http.MethodDelete, "/expenses/delete?id=exp-1", "", htmx)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status=%d, want 404", rr.Code)
	}
	if trigger := rr.Header().Get("HX-Trigger"); !strings.Contains(trigger, `"type":"warning"`) {
		t.Errorf("HX-Trigger=%s, want a warning notification", trigger)
	}
	if rr := do(srv, http.MethodGet, "/expenses/delete?id=exp-1", "", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET delete status=%d, want 405", rr.Code)
	}
}

func TestDeleteExpense_HTMX(t *testing.T) {
	srv, st := newTestServer(t)
	addRecord(t, st, "Dinner <out>", 5000, "2024-03-09", core.OneTime)

	rr := do(srv, http.MethodPost, "/expenses/delete?id=exp-1", "", htmx)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Deleted Dinner &lt;out&gt;") {
		t.Errorf("body=%q", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"expense:deleted":{"month":3,"year":2024}`) {
		t.Errorf("HX-Trigger=%s", rr.Header().Get("HX-Trigger"))
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"type":"info"`) {
		t.Errorf("HX-Trigger=%s, want an info notification", rr.Header().Get("HX-Trigger"))
	}
}

type failingPersister struct{}

func (failingPersister) Load(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (failingPersister) Save(context.Context, string, []byte) error { return errors.New("disk full") }
func (failingPersister) Close() error { return nil }

func TestCreateExpense_SaveFailure(t *testing.T) {
	st := store.New(failingPersister{})
	srv := NewServer(":0", st, recurrence.Aggregator{}, WithClock(func() time.Time { return testNow }))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rr := do(srv, http.MethodPost, "/expenses", "title=Rent&amount=10&date=2024-03-01", htmx)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "disk full") {
		t.Errorf("body leaks the storage error: %q", rr.Body.String())
	}
	if trigger := rr.Header().Get("HX-Trigger"); !strings.Contains(trigger, `"message":"Error saving expense"`) {
		t.Errorf("HX-Trigger=%s, want an error notification", trigger)
	}

	rr = do(srv, http.MethodPost, "/expenses", "title=Rent&amount=10&date=2024-03-01", nil)
	if rr.Header().Get("HX-Trigger") != "" {
		t.Errorf("plain form post got HX-Trigger=%s", rr.Header().Get("HX-Trigger"))
	}
}

func getMonth(t *testing.T, srv *Server, query string) monthJSON {
	t.Helper()
	rr := do(srv, http.MethodGet, "/api/month?"+query, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("month status=%d", rr.Code)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control=%q", rr.Header().Get("Cache-Control"))
	}
	var m monthJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestMonthAPI(t *testing.T) {
	srv, st := newTestServer(t)
	addRecord(t, st, "Rent", 10000, "2024-01-05", core.Monthly)
	addRecord(t, st, "Coffee", 1000, "2024-03-04", core.Weekly)
	addRecord(t, st, "Book", 500, "2024-03-15", core.OneTime)
	addRecord(t, st, "Domain", 1200, "2023-06-01", core.Yearly)

	m := getMonth(t, srv, "year=2024&month=3")

	if m.Year != 2024 || m.Month != 3 || m.DaysInMonth != 31 || len(m.Days) != 31 {
		t.Fatalf("month header = %d-%d days=%d/%d", m.Year, m.Month, m.DaysInMonth, len(m.Days))
	}
	if m.Weekly != "fixed" {
		t.Errorf("weekly_estimate=%q", m.Weekly)
	}
	// monthly 100 + weekly 4x10 + one-time 5; the yearly record belongs to June.
	if m.TotalCents != 14500 {
		t.Errorf("total_cents=%d, want 14500", m.TotalCents)
	}

	monday := m.Days[3]
	if monday.Date != "2024-03-04" || len(monday.Expenses) != 1 || monday.Expenses[0].Title != "Coffee" {
		t.Errorf("2024-03-04 = %+v", monday)
	}
	fifth := m.Days[4]
	if fifth.TotalCents != 10000 {
		t.Errorf("2024-03-05 total=%d, want 10000", fifth.TotalCents)
	}
	if m.Days[0].Expenses == nil {
		t.Error("empty day expenses encoded as null")
	}

	june := getMonth(t, srv, "year=2024&month=6")
	// monthly 100 + weekly 40 + yearly 12
	if june.TotalCents != 15200 {
		t.Errorf("June total_cents=%d, want 15200", june.TotalCents)
	}
}

func TestMonthCacheInvalidatedOnMutation(t *testing.T) {
	srv, _ := newTestServer(t)

	if m := getMonth(t, srv, "year=2024&month=4"); m.TotalCents != 0 {
		t.Fatalf("empty month total=%d", m.TotalCents)
	}
	getMonth(t, srv, "year=2024&month=4")
	if stats := srv.monthCache.Stats(); stats.Hits != 1 {
		t.Errorf("cache hits=%d, want 1", stats.Hits)
	}

	// A daily record anchored in March changes April too.
	rr := do(srv, http.MethodPost, "/expenses", "title=Lunch&amount=1&date=2024-03-01&frequency=daily", htmx)
	if rr.Code != http.StatusOK {
		t.Fatalf("create status=%d", rr.Code)
	}

	if m := getMonth(t, srv, "year=2024&month=4"); m.TotalCents != 3000 {
		t.Errorf("April total after create=%d, want 3000", m.TotalCents)
	}
}

func TestStoreMonthViewDropsStaleBuilds(t *testing.T) {
	srv, _ := newTestServer(t)
	v := calendar.Build(nil, core.YearMonth{Year: 2024, Month: 4}, core.DateOf(testNow), recurrence.Aggregator{})

	gen := srv.generation.Load()
	if !srv.storeMonthView("2024-04|fresh", gen, v) {
		t.Fatal("fresh build not cached")
	}

	srv.invalidateMonths(context.Background())
	if srv.storeMonthView("2024-04|stale", gen, v) {
		t.Error("build from before the mutation was cached")
	}
	if _, ok := srv.monthCache.Get("2024-04|stale"); ok {
		t.Error("stale key present in the cache")
	}
	if _, ok := srv.monthCache.Get("2024-04|fresh"); ok {
		t.Error("purge left the fresh key behind")
	}
}

func TestStaticScriptSwapsErrorFragments(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/static/app.js", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("app.js status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`"htmx:beforeSwap"`, "status === 422", "shouldSwap = true"} {
		if !strings.Contains(body, want) {
			t.Errorf("app.js missing %q", want)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/healthz", "", nil)
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("%s=%q, want %q", header, got, want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy not set")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}

	rr = do(srv, http.MethodGet, "/healthz", "", map[string]string{"X-Request-ID": "req-42"})
	if got := rr.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID=%q, want req-42", got)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, WithRateLimit(1))

	body := "title=Tea&amount=2&date=2024-03-15"
	if rr := do(srv, http.MethodPost, "/expenses", body, htmx); rr.Code != http.StatusOK {
		t.Fatalf("first request status=%d", rr.Code)
	}
	rr := do(srv, http.MethodPost, "/expenses", body, htmx)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After=%q", rr.Header().Get("Retry-After"))
	}

	// Reads are not limited.
	if rr := do(srv, http.MethodGet, "/api/month", "", nil); rr.Code != http.StatusOK {
		t.Errorf("GET after limit status=%d", rr.Code)
	}

	metrics := do(srv, http.MethodGet, "/metrics", "", nil).Body.String()
	for _, want := range []string{"expensecal_records_total 1\n", "expensecal_rate_limit_rejected_total 1\n"} {
		if !strings.Contains(metrics, want) {
			t.Errorf("metrics missing %q:\n%s", want, metrics)
		}
	}
}
