package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"kilometers/internal/cache"
	"kilometers/internal/core"
	applog "kilometers/internal/log"
	"kilometers/internal/middleware/ratelimit"
	"kilometers/internal/middleware/security"
	"kilometers/internal/middleware/trace"
	"kilometers/internal/services"
	appweb "kilometers/web"
)

// HealthChecker is implemented by backends that can verify their connection.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// BrokerStatus reports whether the optional message broker is reachable.
type BrokerStatus interface {
	Healthy() bool
}

// Config holds server settings.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	RateLimitBurst     int
	Logger             *applog.Logger
}

// Dependencies are the services the handlers call. Health and Broker are optional.
type Dependencies struct {
	Entries  *services.EntryService
	Reports  *services.ReportService
	Archives *services.ArchiveService
	Health   HealthChecker
	Broker   BrokerStatus
}

// Server is the local web UI.
type Server struct {
	http.Server
	templates *template.Template

	entries  *services.EntryService
	reports  *services.ReportService
	archives *services.ArchiveService
	health   HealthChecker
	broker   BrokerStatus

	// Month reports keyed by "month|order"
	reportCache  *cache.LRUCache[core.MonthReport]
	cacheManager *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	logger     *applog.Logger
	events     *applog.StructuredLogger
	appMetrics *appMetrics
	now        func() time.Time

	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime         time.Time
	entriesCreated int64
	entriesDeleted int64
	pdfExports     int64
	archives       int64
	cacheHits      int64
	cacheMisses    int64
}

// NewServer configures routes, middleware and templates, returning a ready-to-run server.
func NewServer(cfg Config, deps Dependencies) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	s := &Server{
		entries:          deps.Entries,
		reports:          deps.Reports,
		archives:         deps.Archives,
		health:           deps.Health,
		broker:           deps.Broker,
		reportCache:      cache.NewLRUCache[core.MonthReport](64, 5*time.Minute),
		cacheManager:     cache.NewManager(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute, Burst: cfg.RateLimitBurst}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		logger:           logger,
		events:           applog.NewStructuredLogger(logger),
		appMetrics:       &appMetrics{uptime: time.Now()},
		now:              time.Now,
	}
	s.cacheManager.Register(s.reportCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "Te veel verzoeken, probeer het zo opnieuw").Write(w)
	})

	var handler http.Handler = mux
	handler = limit(handler)
	handler = headers.Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)

	mux.HandleFunc("POST /entries", s.handleCreateEntry)
	mux.HandleFunc("POST /entries/bulk", s.handleCreateBulk)
	mux.HandleFunc("POST /entries/delete", s.handleDeleteSelection)
	mux.HandleFunc("DELETE /entries/{id}", s.handleDeleteEntry)

	// UI partials
	mux.HandleFunc("GET /ui/planner", s.handlePlanner)
	mux.HandleFunc("GET /ui/report", s.handleReport)
	mux.HandleFunc("GET /ui/months", s.handleMonthSelector)
	mux.HandleFunc("GET /settings", s.handleSettings)
	mux.HandleFunc("POST /settings", s.handleSaveSettings)

	mux.Handle("GET /export/{file}", security.NoStoreMiddleware(http.HandlerFunc(s.handleExportPDF)))
	mux.HandleFunc("POST /export/{month}/archive", s.handleArchive)

	mux.HandleFunc("GET /api/months", s.handleAPIMonths)
	mux.HandleFunc("GET /api/report", s.handleAPIReport)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
}

// Shutdown gracefully shuts down the server and background routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a named template into a buffer so failures never leave a
// half-written response.
func (s *Server) render(name string, data any) (string, error) {
	if s.templates == nil {
		return "", errTemplatesMissing
	}
	var b strings.Builder
	if err := s.templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func requestID(r *http.Request) string {
	return trace.GetRequestID(r.Context())
}

// loggerFor returns the request-scoped logger set by the trace middleware.
func loggerFor(r *http.Request) *slog.Logger {
	return applog.FromContext(r.Context()).Logger
}
