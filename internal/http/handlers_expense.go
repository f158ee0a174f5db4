package http

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"expensecal/internal/core"
	"expensecal/internal/log"
	"expensecal/internal/store"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	d, err := ParseDraft(p)
	if err != nil {
		s.mutationFailed(w, r, err, log.OpCreate, "")
		return
	}

	rec, err := s.records.Add(r.Context(), d)
	if err != nil {
		s.mutationFailed(w, r, err, log.OpCreate, "")
		return
	}
	s.invalidateMonths(r.Context())

	if p.IsJSON() || wantsJSON(r) {
		NewHTMXResponse().Status(http.StatusCreated).BodyJSON(toExpenseJSON(rec)).Write(w)
		return
	}
	s.mutationDone(w, r, rec.AnchorDate.YearMonth(),
		NewHTMXResponse().
			TriggerExpenseCreated(rec.AnchorDate.YearMonth()).
			TriggerFormReset().
			TriggerSuccessNotification(fmt.Sprintf("Expense %q saved", rec.Title)).
			BodyHTML(savedFragment("Saved", rec)))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePUTOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	id, resp := recordID(r)
	if resp != nil {
		resp.Write(w)
		return
	}

	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	d, err := ParseDraft(p)
	if err != nil {
		s.mutationFailed(w, r, err, log.OpUpdate, id)
		return
	}

	rec, err := s.records.Update(r.Context(), id, d)
	if err != nil {
		s.mutationFailed(w, r, err, log.OpUpdate, id)
		return
	}
	s.invalidateMonths(r.Context())

	if p.IsJSON() || wantsJSON(r) {
		NewHTMXResponse().BodyJSON(toExpenseJSON(rec)).Write(w)
		return
	}
	s.mutationDone(w, r, rec.AnchorDate.YearMonth(),
		NewHTMXResponse().
			TriggerExpenseUpdated(rec.AnchorDate.YearMonth()).
			TriggerSuccessNotification(fmt.Sprintf("Expense %q updated", rec.Title)).
			BodyHTML(savedFragment("Updated", rec)))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	id, resp := recordID(r)
	if resp != nil {
		resp.Write(w)
		return
	}

	rec, err := s.records.Get(id)
	if err == nil {
		err = s.records.Delete(r.Context(), id)
	}
	if err != nil {
		s.mutationFailed(w, r, err, log.OpDelete, id)
		return
	}
	s.invalidateMonths(r.Context())

	if wantsJSON(r) {
		NewHTMXResponse().BodyJSON(map[string]string{"deleted": id}).Write(w)
		return
	}
	s.mutationDone(w, r, rec.AnchorDate.YearMonth(),
		NewHTMXResponse().
			TriggerExpenseDeleted(rec.AnchorDate.YearMonth()).
			TriggerNotification(NotificationInfo, fmt.Sprintf("Expense %q deleted", rec.Title), 3000).
			BodyHTML(`<div class="success">Deleted ` + template.HTMLEscapeString(rec.Title) + `</div>`))
}

// mutationDone answers an htmx request with resp and a calendar refresh, and
// redirects plain form posts back to the month of the record.
func (s *Server) mutationDone(w http.ResponseWriter, r *http.Request, month core.YearMonth, resp *HTMXResponseBuilder) {
	if !isHTMX(r) {
		http.Redirect(w, r, fmt.Sprintf("/?year=%d&month=%d", month.Year, month.Month), http.StatusSeeOther)
		return
	}
	resp.TriggerCalendarRefresh().Write(w)
}

// mutationFailed maps store and parse errors to 422, 404 or 500. htmx
// requests also get a notification naming the failure.
func (s *Server) mutationFailed(w http.ResponseWriter, r *http.Request, err error, op, id string) {
	var resp *HTMXResponseBuilder
	msg, invalid := validationMessage(err)
	switch {
	case invalid:
		resp = UnprocessableEntityError(msg)
	case errors.Is(err, store.ErrNotFound):
		msg = "Expense not found"
		resp = NotFoundError(msg)
	default:
		fields := log.NewFields()
		if id != "" {
			fields[log.FieldRecordID] = id
		}
		s.httpLog.LogError(r.Context(), "Failed to save expense", err, op, fields)
		msg = "Error saving expense"
		resp = InternalServerError(msg)
	}

	if isHTMX(r) {
		if resp.StatusCode() == http.StatusNotFound {
			resp.TriggerNotification(NotificationWarning, msg, 5000)
		} else {
			resp.TriggerErrorNotification(msg)
		}
	}
	resp.Write(w)
}

func savedFragment(verb string, rec core.Record) string {
	return fmt.Sprintf(`<div class="success">%s %s: %s (%s)</div>`,
		verb,
		template.HTMLEscapeString(rec.Title),
		template.HTMLEscapeString(rec.Amount.Format()),
		template.HTMLEscapeString(rec.Frequency.Label()))
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
