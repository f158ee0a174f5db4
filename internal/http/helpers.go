package http

import (
	"html/template"
	"net/http"
	"strings"

	"expensecal/internal/core"
)

const maxIDLength = 64

// validID reports whether id looks like a record ID. IDs are UUIDs for new
// records; imported data may carry other opaque tokens of the same alphabet.
func validID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// recordID extracts and checks the id query parameter.
func recordID(r *http.Request) (string, *HTMXResponseBuilder) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if !validID(id) {
		return "", BadRequestError("Missing or malformed expense id")
	}
	return id, nil
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

var templateFuncs = template.FuncMap{
	"money": func(m core.Money) string { return m.Format() },
	"iso":   func(d core.Date) string { return d.String() },
	"blanks": func(n int) []struct{} {
		if n < 0 {
			n = 0
		}
		return make([]struct{}, n)
	},
	"frequencies": core.Frequencies,
}
