package http

import (
	"net/http"

	"expensecal/internal/calendar"
	"expensecal/internal/core"
	"expensecal/internal/log"
)

// pageData feeds index.html.
type pageData struct {
	View         calendar.MonthView
	Day          calendar.DayView
	Today        core.Date
	DefaultDate  core.Date
	DefaultColor string
	Weekly       string
}

// selectedMonth reads ?year=&month=, logging a corrected month.
func (s *Server) selectedMonth(r *http.Request) core.YearMonth {
	p := ParseMonthParams(r.URL.Query(), s.now())
	if p.Corrected {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Invalid month parameter",
			log.FieldQuery, r.URL.RawQuery,
			"corrected_to", p.Month)
	}
	return p.YearMonth()
}

// defaultDay is today when it falls in month, else the first of month.
func (s *Server) defaultDay(month core.YearMonth) core.Date {
	if today := s.today(); month.Contains(today) {
		return today
	}
	return month.First()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		NotFoundError("Page not found").Write(w)
		return
	}
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	month := s.selectedMonth(r)
	day := s.defaultDay(month)
	s.render(w, r, "index.html", pageData{
		View:         s.monthView(r.Context(), month),
		Day:          calendar.Day(s.records.List(), day),
		Today:        s.today(),
		DefaultDate:  day,
		DefaultColor: core.DefaultColor,
		Weekly:       s.agg.Weekly.String(),
	})
}

// handleCalendar renders the month grid partial.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	s.render(w, r, "calendar", s.monthView(r.Context(), s.selectedMonth(r)))
}

// handleDay renders the detail of ?date=YYYY-MM-DD and moves the add form's
// date to that day.
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	date, err := core.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		BadRequestError("Date must be a valid YYYY-MM-DD date").Write(w)
		return
	}
	s.render(w, r, "day_partial", calendar.Day(s.records.List(), date))
}

type (
	expenseJSON struct {
		ID          string  `json:"id"`
		Title       string  `json:"title"`
		Amount      float64 `json:"amount"`
		AmountCents int64   `json:"amount_cents"`
		Date        string  `json:"date"`
		Color       string  `json:"color"`
		Frequency   string  `json:"frequency"`
	}

	breakdownJSON struct {
		Frequency   string  `json:"frequency"`
		Amount      float64 `json:"amount"`
		AmountCents int64   `json:"amount_cents"`
	}

	dayJSON struct {
		Date       string        `json:"date"`
		Total      float64       `json:"total"`
		TotalCents int64         `json:"total_cents"`
		Expenses   []expenseJSON `json:"expenses"`
	}

	monthJSON struct {
		Year        int             `json:"year"`
		Month       int             `json:"month"`
		DaysInMonth int             `json:"days_in_month"`
		Weekly      string          `json:"weekly_estimate"`
		Total       float64         `json:"total"`
		TotalCents  int64           `json:"total_cents"`
		Breakdown   []breakdownJSON `json:"breakdown"`
		Days        []dayJSON       `json:"days"`
	}
)

func toExpenseJSON(r core.Record) expenseJSON {
	return expenseJSON{
		ID:          r.ID,
		Title:       r.Title,
		Amount:      r.Amount.Dollars(),
		AmountCents: r.Amount.Cents,
		Date:        r.AnchorDate.String(),
		Color:       r.Color,
		Frequency:   r.Frequency.String(),
	}
}

// handleMonthAPI serves the month view as JSON.
func (s *Server) handleMonthAPI(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	v := s.monthView(r.Context(), s.selectedMonth(r))
	out := monthJSON{
		Year:        v.Overview.Year,
		Month:       v.Overview.Month,
		DaysInMonth: v.Overview.DaysInMonth,
		Weekly:      s.agg.Weekly.String(),
		Total:       v.Overview.Total.Dollars(),
		TotalCents:  v.Overview.Total.Cents,
		Breakdown:   make([]breakdownJSON, 0, len(v.Overview.ByFrequency)),
		Days:        make([]dayJSON, 0, len(v.Days)),
	}
	for _, fa := range v.Overview.ByFrequency {
		out.Breakdown = append(out.Breakdown, breakdownJSON{
			Frequency:   fa.Frequency.String(),
			Amount:      fa.Amount.Dollars(),
			AmountCents: fa.Amount.Cents,
		})
	}
	for _, cell := range v.Days {
		d := dayJSON{
			Date:       cell.Date.String(),
			Total:      cell.Total.Dollars(),
			TotalCents: cell.Total.Cents,
			Expenses:   make([]expenseJSON, 0, len(cell.Expenses)),
		}
		for _, e := range cell.Expenses {
			d.Expenses = append(d.Expenses, toExpenseJSON(e))
		}
		out.Days = append(out.Days, d)
	}

	NewHTMXResponse().Header("Cache-Control", "no-store").BodyJSON(out).Write(w)
}
