package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"kilometers/internal/core"
	applog "kilometers/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.health == nil:
		checks["storage"] = "ok"
	case s.health.Ping(ctx) != nil:
		checks["storage"] = "failed"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	default:
		checks["storage"] = "ok"
	}

	// The broker is optional; losing it degrades archiving to synchronous writes.
	switch {
	case s.broker == nil:
		checks["amqp"] = "disabled"
	case s.broker.Healthy():
		checks["amqp"] = "ok"
	default:
		checks["amqp"] = "degraded"
	}

	checks["cache"] = map[string]any{"report_entries": s.reportCache.Size()}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v float64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %.0f\n\n", name, help, name, name, v)
	}

	w.WriteHeader(http.StatusOK)
	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	gauge("http_response_time_avg_microseconds", "Average response time", float64(traceMetrics.AverageResponseTime))
	counter("entries_created_total", "Total number of entries created", atomic.LoadInt64(&s.appMetrics.entriesCreated))
	counter("entries_deleted_total", "Total number of entries deleted", atomic.LoadInt64(&s.appMetrics.entriesDeleted))
	counter("pdf_exports_total", "Total number of PDF documents downloaded", atomic.LoadInt64(&s.appMetrics.pdfExports))
	counter("archive_requests_total", "Total number of archive requests", atomic.LoadInt64(&s.appMetrics.archives))
	counter("cache_hits_total", "Total report cache hits", atomic.LoadInt64(&s.appMetrics.cacheHits))
	counter("cache_misses_total", "Total report cache misses", atomic.LoadInt64(&s.appMetrics.cacheMisses))
	gauge("cache_entries", "Current report cache entries", float64(s.reportCache.Size()))
	counter("rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", float64(rateLimitMetrics.ClientCount))
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	gauge("uptime_seconds", "Application uptime in seconds", time.Since(s.appMetrics.uptime).Seconds())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			"error_type", applog.ErrorTypeConfiguration)
		InternalServerError("Pagina kon niet worden geladen").Write(w)
		return
	}

	ctx := r.Context()
	month, err := ParseMonthParam(r.URL.Query(), "month", s.now())
	if err != nil {
		month = core.MonthKeyOf(s.now())
	}

	months, err := s.entries.AvailableMonths(ctx, month)
	if err != nil {
		s.writeError(w, r, err, applog.OpList)
		return
	}
	suggested, err := s.entries.SuggestedDistance(ctx)
	if err != nil {
		s.writeError(w, r, err, applog.OpRead)
		return
	}
	planner, err := newPlannerView(month, months, core.DefaultBulkTitle, suggested, "", nil)
	if err != nil {
		s.writeError(w, r, err, applog.OpRender)
		return
	}
	settings, err := s.reports.Settings(ctx)
	if err != nil {
		s.writeError(w, r, err, applog.OpRead)
		return
	}
	report, err := s.monthReport(ctx, month, core.SortDesc)
	if err != nil {
		s.writeError(w, r, err, applog.OpRead)
		return
	}
	archived, _ := s.archives.IsArchived(ctx, month)

	data := indexView{
		Planner:  planner,
		Entry:    entryFormView{Today: core.Date{Time: s.now()}.ISO()},
		Settings: newSettingsView(settings, false),
		Months:   monthSelectorView{Selected: string(month), Options: monthOptions(months, month)},
		Report:   newReportView(report),
	}
	data.Report.Archived = archived

	page, err := s.render("index.html", data)
	if err != nil {
		s.logger.ErrorContext(ctx, "Index template execution failed", applog.FieldError, err, "template", "index.html")
		InternalServerError("Pagina kon niet worden geladen").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(page).Write(w)
}

// handleMonthSelector renders the month <select> of the report section.
func (s *Server) handleMonthSelector(w http.ResponseWriter, r *http.Request) {
	month, err := ParseMonthParam(r.URL.Query(), "month", s.now())
	if err != nil {
		s.writeError(w, r, err, applog.OpParse)
		return
	}
	months, err := s.entries.AvailableMonths(r.Context(), month)
	if err != nil {
		s.writeError(w, r, err, applog.OpList)
		return
	}
	html, err := s.render("month_selector", monthSelectorView{Selected: string(month), Options: monthOptions(months, month)})
	if err != nil {
		s.writeError(w, r, err, applog.OpRender)
		return
	}
	NewHTMXResponse().BodyHTML(html).Write(w)
}

func (s *Server) handleAPIMonths(w http.ResponseWriter, r *http.Request) {
	month, err := ParseMonthParam(r.URL.Query(), "month", s.now())
	if err != nil {
		s.writeJSONError(w, r, err, applog.OpParse)
		return
	}
	months, err := s.entries.AvailableMonths(r.Context(), month)
	if err != nil {
		s.writeJSONError(w, r, err, applog.OpList)
		return
	}
	out := make([]apiMonth, 0, len(months))
	for _, m := range months {
		out = append(out, apiMonth{Key: string(m), Label: m.Label()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": month, "months": out})
}
