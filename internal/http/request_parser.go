// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// month selection from query strings, expense drafts from form or JSON
// bodies, and method checks.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"expensecal/internal/core"
	"expensecal/internal/store"
)

const maxBodyBytes = 1 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
	// Corrected is set when an out-of-range month was replaced by the current one.
	Corrected bool
}

// YearMonth converts the params to a core.YearMonth.
func (p MonthParams) YearMonth() core.YearMonth {
	return core.YearMonth{Year: p.Year, Month: p.Month}
}

// ParseMonthParams extracts year and month from query parameters, using the
// month of now as default. Unparseable values fall back to the default and an
// out-of-range month is corrected to the current month.
func ParseMonthParams(query url.Values, now time.Time) MonthParams {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y >= 1 && y <= 9999 {
			params.Year = y
		}
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			params.Month = m
		}
	}
	if params.Month < 1 || params.Month > 12 {
		params.Month = int(now.Month())
		params.Corrected = true
	}

	return params
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// errInvalidDate marks a date field that is missing or not YYYY-MM-DD.
var errInvalidDate = errors.New("invalid date")

// ParseDraft reads the expense fields title, amount, date, color and
// frequency. An empty frequency means one-time. Title rules are left to the
// store.
func ParseDraft(p *RequestBodyParser) (store.Draft, error) {
	cents, err := core.ParseDecimalToCents(p.Get("amount"))
	if err != nil {
		return store.Draft{}, core.ErrInvalidAmount
	}

	date, err := core.ParseDate(p.Get("date"))
	if err != nil {
		return store.Draft{}, errInvalidDate
	}

	freq := core.OneTime
	if v := p.Get("frequency"); v != "" {
		if freq, err = core.ParseFrequency(v); err != nil {
			return store.Draft{}, err
		}
	}

	return store.Draft{
		Title:      p.Get("title"),
		Amount:     core.Money{Cents: cents},
		AnchorDate: date,
		Color:      p.Get("color"),
		Frequency:  freq,
	}, nil
}

// validationMessage maps a draft or record validation error to the message
// shown to the user. ok is false for errors that are not validation failures.
func validationMessage(err error) (msg string, ok bool) {
	switch {
	case errors.Is(err, core.ErrEmptyTitle):
		return "Title is required", true
	case errors.Is(err, core.ErrTitleTooLong):
		return "Title is too long (max 200 characters)", true
	case errors.Is(err, core.ErrInvalidAmount):
		return "Amount must be a positive number no larger than 1000000000", true
	case errors.Is(err, core.ErrInvalidFrequency):
		return "Unknown frequency", true
	case errors.Is(err, errInvalidDate),
		errors.Is(err, core.ErrZeroDate),
		errors.Is(err, core.ErrInvalidDay),
		errors.Is(err, core.ErrInvalidMonth):
		return "Date must be a valid YYYY-MM-DD date", true
	default:
		return "", false
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequireGET accepts GET and HEAD.
func RequireGET(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequirePUTOrPOST is a convenience function for update handlers.
func RequirePUTOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost, http.MethodPut)
}

// RequireDeleteOrPOST is a convenience function for DELETE/POST handlers.
func RequireDeleteOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodDelete, http.MethodPost)
}
