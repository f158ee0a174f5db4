package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"expensecal/internal/cache"
	"expensecal/internal/calendar"
	"expensecal/internal/core"
	"expensecal/internal/log"
	"expensecal/internal/recurrence"
	"expensecal/internal/store"
	appweb "expensecal/web"
)

// RecordStore is the part of the expense store the handlers use.
type RecordStore interface {
	List() []core.Record
	Get(id string) (core.Record, error)
	Add(ctx context.Context, d store.Draft) (core.Record, error)
	Update(ctx context.Context, id string, d store.Draft) (core.Record, error)
	Delete(ctx context.Context, id string) error
}

var _ RecordStore = (*store.Store)(nil)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	http.Server
	templates *template.Template
	records   RecordStore
	agg       recurrence.Aggregator
	logger    *log.Logger
	httpLog   *log.StructuredLogger
	now       func() time.Time
	startedAt time.Time

	// Month views keyed by month and current day, purged on every mutation.
	monthCache  *cache.LRUCache[string, calendar.MonthView]
	generation  atomic.Uint64
	caches      *cache.Manager
	rateLimiter *rateLimiter
	security    securityMetrics
	checks      map[string]ReadinessCheck

	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the request logger. Defaults to the slog default logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithReadinessCheck adds a named dependency check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithRateLimit sets the number of mutating requests a client may send per minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) {
		s.rateLimiter.stop()
		s.rateLimiter = newRateLimiter(perMinute)
	}
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, records RecordStore, agg recurrence.Aggregator, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		records:     records,
		agg:         agg,
		now:         time.Now,
		monthCache:  cache.NewLRUCache[string, calendar.MonthView](100, 5*time.Minute),
		caches:      cache.NewManager(),
		rateLimiter: newRateLimiter(defaultRequestsPerMinute),
		checks:      make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.Config{Handler: slog.Default().Handler(), Component: log.ComponentHTTP})
	}
	s.httpLog = log.NewStructuredLogger(s.logger)
	s.startedAt = s.now()

	s.caches.Register(s.monthCache)
	s.caches.StartCleanup(10 * time.Minute)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			static.ServeHTTP(w, r)
		}))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/ui/calendar", s.handleCalendar)
	mux.HandleFunc("/ui/day", s.handleDay)
	mux.HandleFunc("/api/month", s.handleMonthAPI)
	mux.HandleFunc("/expenses", s.handleCreateExpense)
	mux.HandleFunc("/expenses/update", s.handleUpdateExpense)
	mux.HandleFunc("/expenses/delete", s.handleDeleteExpense)

	s.Handler = log.Middleware(s.logger)(log.RequestIDMiddleware(s.withSecurity(mux)))
	return s
}

// withSecurity adds security headers, rate limiting of mutating requests and
// request logging.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		clientIP := extractClientIP(r)
		s.httpLog.LogHTTPStart(ctx, r, clientIP)

		if detectSuspiciousRequest(r, &s.security) {
			log.FromContext(ctx).WarnContext(ctx, "Suspicious request",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}

		setSecurityHeaders(w, r)

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			log.FromContext(ctx).WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			s.httpLog.LogHTTPEnd(ctx, r, http.StatusTooManyRequests, time.Since(start).Milliseconds(), clientIP)
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.httpLog.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodDelete
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// today is the current date in the server clock.
func (s *Server) today() core.Date {
	return core.DateOf(s.now())
}

// monthView builds the view of month, served from the cache when possible.
// The key carries today's date because the grid highlights it.
func (s *Server) monthView(ctx context.Context, month core.YearMonth) calendar.MonthView {
	today := s.today()
	key := month.String() + "|" + today.String()
	if v, ok := s.monthCache.Get(key); ok {
		slog.DebugContext(ctx, "Month view cache hit", log.NewFields().WithMonth(month).ToSlice()...)
		return v
	}

	gen := s.generation.Load()
	v := calendar.Build(s.records.List(), month, today, s.agg)
	if s.storeMonthView(key, gen, v) {
		fields := log.NewFields().WithMonth(month)
		fields["total_cents"] = v.Overview.Total.Cents
		slog.DebugContext(ctx, "Month view cached", fields.ToSlice()...)
	}
	return v
}

// storeMonthView caches v, built at generation gen, unless a mutation landed
// since. invalidateMonths bumps the generation before purging, so a Set that
// races the purge is caught by the second check and undone.
func (s *Server) storeMonthView(key string, gen uint64, v calendar.MonthView) bool {
	if s.generation.Load() != gen {
		return false
	}
	s.monthCache.Set(key, v)
	if s.generation.Load() != gen {
		s.monthCache.Delete(key)
		return false
	}
	return true
}

// invalidateMonths drops every cached month. A recurring record contributes
// to all months, so per-month invalidation is not enough.
func (s *Server) invalidateMonths(ctx context.Context) {
	s.generation.Add(1)
	if n := s.monthCache.Purge(); n > 0 {
		slog.DebugContext(ctx, "Month view cache purged", "entries_removed", n)
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		InternalServerError("Templates not loaded").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err.Error(),
			"template", name)
	}
}
