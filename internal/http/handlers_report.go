package http

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"kilometers/internal/core"
	"kilometers/internal/invoicepdf"
	applog "kilometers/internal/log"
	"kilometers/internal/services"
)

// monthReport serves month reports from the cache, loading them on a miss.
func (s *Server) monthReport(ctx context.Context, month core.MonthKey, order core.SortOrder) (core.MonthReport, error) {
	key := string(month) + "|" + string(order)
	if report, ok := s.reportCache.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return report, nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	report, err := s.reports.MonthReport(ctx, month, order)
	if err != nil {
		return core.MonthReport{}, err
	}
	s.reportCache.Set(key, report)
	return report, nil
}

// handlePlanner re-renders the bulk planner, optionally applying a quick selection.
func (s *Server) handlePlanner(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month, err := ParseMonthParam(q, "month", s.now())
	if err != nil {
		s.writeError(w, r, err, applog.OpParse)
		return
	}

	days := q["day"]
	if name := strings.TrimSpace(q.Get("select")); name != "" {
		selector, err := services.GetDaySelector(services.SelectionName(name))
		if err != nil {
			s.writeError(w, r, err, applog.OpParse)
			return
		}
		weeks, err := core.CalendarGrid(month)
		if err != nil {
			s.writeError(w, r, err, applog.OpRender)
			return
		}
		days = selector.Select(core.MonthDays(weeks))
	}

	months, err := s.entries.AvailableMonths(r.Context(), month)
	if err != nil {
		s.writeError(w, r, err, applog.OpList)
		return
	}
	view, err := newPlannerView(month, months,
		sanitizeInput(q.Get("title")), sanitizeInput(q.Get("distance")), sanitizeInput(q.Get("notes")), days)
	if err != nil {
		s.writeError(w, r, err, applog.OpRender)
		return
	}
	html, err := s.render("planner", view)
	if err != nil {
		s.writeError(w, r, err, applog.OpRender)
		return
	}
	NewHTMXResponse().BodyHTML(html).Write(w)
}

// handleReport renders the summary table of one month.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	month, err := ParseMonthParam(q, "month", s.now())
	if err != nil {
		s.writeError(w, r, err, applog.OpParse)
		return
	}

	report, err := s.monthReport(ctx, month, core.ParseSortOrder(q.Get("sort")))
	if err != nil {
		s.writeError(w, r, err, applog.OpRead)
		return
	}
	view := newReportView(report)
	if view.Archived, err = s.archives.IsArchived(ctx, month); err != nil {
		loggerFor(r).Warn("Archive lookup failed", applog.FieldMonth, month, applog.FieldError, err)
	}

	html, err := s.render("report", view)
	if err != nil {
		s.writeError(w, r, err, applog.OpRender)
		return
	}
	NewHTMXResponse().BodyHTML(html).Write(w)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.reports.Settings(r.Context())
	if err != nil {
		s.writeError(w, r, err, applog.OpRead)
		return
	}
	html, err := s.render("settings", newSettingsView(st, false))
	if err != nil {
		s.writeError(w, r, err, applog.OpRender)
		return
	}
	NewHTMXResponse().BodyHTML(html).Write(w)
}

// handleSaveSettings stores the invoice settings. Every cached report depends on them.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, err, applog.OpParse)
		return
	}
	current, err := s.reports.Settings(ctx)
	if err != nil {
		s.writeError(w, r, err, applog.OpRead)
		return
	}
	next, err := ParseSettings(p, current)
	if err != nil {
		s.writeError(w, r, err, applog.OpParse)
		return
	}
	saved, err := s.reports.SaveSettings(ctx, next)
	if err != nil {
		s.writeError(w, r, err, applog.OpValidate)
		return
	}
	s.reportCache.Clear()

	html, err := s.render("settings", newSettingsView(saved, true))
	if err != nil {
		s.writeError(w, r, err, applog.OpRender)
		return
	}
	NewHTMXResponse().
		TriggerSettingsSaved().
		TriggerSuccessNotification("Factuurgegevens opgeslagen").
		BodyHTML(html).
		Write(w)
}

// handleExportPDF streams the month document as an attachment.
func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	raw, ok := strings.CutSuffix(r.PathValue("file"), ".pdf")
	if !ok {
		s.writeError(w, r, errBadMonthParam, applog.OpExport)
		return
	}
	month, err := parseMonth(raw)
	if err != nil {
		s.writeError(w, r, err, applog.OpExport)
		return
	}

	var buf bytes.Buffer
	if err := s.reports.RenderPDF(r.Context(), &buf, month, core.ParseSortOrder(r.URL.Query().Get("sort"))); err != nil {
		s.writeError(w, r, err, applog.OpExport)
		return
	}
	atomic.AddInt64(&s.appMetrics.pdfExports, 1)
	s.events.LogExport(r.Context(), string(month), applog.OpExport, "")

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+invoicepdf.FileName(month, s.now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleArchive requests an archived copy of the month document.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r.PathValue("month"))
	if err != nil {
		s.writeError(w, r, err, applog.OpArchive)
		return
	}

	res, err := s.archives.RequestArchive(r.Context(), month, "manual")
	if err != nil {
		s.writeError(w, r, err, applog.OpArchive)
		return
	}
	atomic.AddInt64(&s.appMetrics.archives, 1)
	s.events.LogExport(r.Context(), string(month), applog.OpArchive, res.Path)

	msg := "Maand gearchiveerd"
	if res.Queued {
		msg = "Archivering ingepland"
	}
	html, err := s.render("archive_status", res)
	if err != nil {
		s.writeError(w, r, err, applog.OpRender)
		return
	}
	NewHTMXResponse().
		TriggerArchived(string(month)).
		TriggerSuccessNotification(msg).
		BodyHTML(html).
		Write(w)
}

func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month, err := ParseMonthParam(q, "month", s.now())
	if err != nil {
		s.writeJSONError(w, r, err, applog.OpParse)
		return
	}
	report, err := s.monthReport(r.Context(), month, core.ParseSortOrder(q.Get("sort")))
	if err != nil {
		s.writeJSONError(w, r, err, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, newAPIReport(report))
}
