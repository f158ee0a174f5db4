package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().BodyJSON(map[string]interface{}{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	checks["cache"] = s.monthCache.Stats()
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.activeClients(),
		"status":         "ok",
	}

	NewHTMXResponse().
		Status(httpStatus).
		BodyJSON(map[string]interface{}{
			"status":    status,
			"timestamp": s.now().Format(time.RFC3339),
			"checks":    checks,
		}).
		Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	stats := s.monthCache.Stats()
	metrics := map[string]int64{
		"expensecal_records_total":             int64(len(s.records.List())),
		"expensecal_month_cache_hits_total":    stats.Hits,
		"expensecal_month_cache_misses_total":  stats.Misses,
		"expensecal_month_cache_entries":       int64(stats.Entries),
		"expensecal_rate_limit_rejected_total": s.rateLimiter.rejected(),
		"expensecal_rate_limit_clients":        int64(s.rateLimiter.activeClients()),
		"expensecal_suspicious_requests_total": atomic.LoadInt64(&s.security.suspiciousRequests),
		"expensecal_uptime_seconds":            int64(s.now().Sub(s.startedAt).Seconds()),
	}
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, name := range names {
		fmt.Fprintf(w, "%s %d\n", name, metrics[name])
	}
}
