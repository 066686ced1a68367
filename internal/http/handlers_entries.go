package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"kilometers/internal/core"
	applog "kilometers/internal/log"
)

var errNothingSelected = errors.New("no entries selected")

// handleCreateEntry stores a single trip and resets the entry form.
func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, err, applog.OpParse)
		return
	}
	entry, err := ParseEntry(p)
	if err != nil {
		s.writeError(w, r, err, applog.OpParse)
		return
	}

	created, err := s.entries.CreateEntry(r.Context(), entry)
	if err != nil {
		s.writeError(w, r, err, applog.OpCreate)
		return
	}
	atomic.AddInt64(&s.appMetrics.entriesCreated, 1)
	month := created.Month()
	s.invalidateMonth(month)
	s.events.LogEntriesCreated(r.Context(), string(month), 1)

	html, err := s.render("entry_form", entryFormView{Today: created.Date.ISO()})
	if err != nil {
		s.writeError(w, r, err, applog.OpRender)
		return
	}
	NewHTMXResponse().
		TriggerEntriesChanged(string(month)).
		TriggerFormReset().
		TriggerSuccessNotification("Rit opgeslagen").
		BodyHTML(html).
		Write(w)
}

// handleCreateBulk stores one entry per selected planner day.
func (s *Server) handleCreateBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, err, applog.OpParse)
		return
	}
	req, err := ParseBulkRequest(p)
	if err != nil {
		s.writeError(w, r, err, applog.OpParse)
		return
	}

	created, err := s.entries.CreateBulk(ctx, req)
	if err != nil {
		s.writeError(w, r, err, applog.OpBulk)
		return
	}
	atomic.AddInt64(&s.appMetrics.entriesCreated, int64(len(created)))
	s.invalidateMonth(req.Month)
	s.events.LogEntriesCreated(ctx, string(req.Month), len(created))

	months, err := s.entries.AvailableMonths(ctx, req.Month)
	if err != nil {
		s.writeError(w, r, err, applog.OpList)
		return
	}
	// Keep title and distance for the next batch, clear the days.
	view, err := newPlannerView(req.Month, months, req.Title, core.FormatQuantity(req.Distance), req.Notes, nil)
	if err != nil {
		s.writeError(w, r, err, applog.OpRender)
		return
	}
	html, err := s.render("planner", view)
	if err != nil {
		s.writeError(w, r, err, applog.OpRender)
		return
	}

	msg := fmt.Sprintf("%d ritten toegevoegd", len(created))
	if len(created) == 1 {
		msg = "1 rit toegevoegd"
	}
	NewHTMXResponse().
		TriggerEntriesChanged(string(req.Month)).
		TriggerSuccessNotification(msg).
		BodyHTML(html).
		Write(w)
}

// handleDeleteSelection removes the checked report rows.
func (s *Server) handleDeleteSelection(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, err, applog.OpParse)
		return
	}
	var ids []string
	for _, id := range p.GetAll("id") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		s.writeError(w, r, errNothingSelected, applog.OpDelete)
		return
	}

	n, err := s.entries.DeleteEntries(r.Context(), ids...)
	if err != nil {
		s.writeError(w, r, err, applog.OpDelete)
		return
	}
	atomic.AddInt64(&s.appMetrics.entriesDeleted, int64(n))
	s.reportCache.Clear()

	loggerFor(r).Info("Entries deleted", applog.FieldCount, n, applog.FieldOperation, applog.OpDelete)

	msg := fmt.Sprintf("%d ritten verwijderd", n)
	if n == 1 {
		msg = "1 rit verwijderd"
	}
	NewHTMXResponse().
		Header("HX-Reswap", "none").
		TriggerEntriesChanged(p.Get("month")).
		TriggerSuccessNotification(msg).
		Write(w)
}

// handleDeleteEntry removes one entry by ID.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := s.entries.DeleteEntry(r.Context(), id); err != nil {
		s.writeError(w, r, err, applog.OpDelete)
		return
	}
	atomic.AddInt64(&s.appMetrics.entriesDeleted, 1)
	s.reportCache.Clear()

	loggerFor(r).Info("Entry deleted", applog.FieldEntryID, id, applog.FieldOperation, applog.OpDelete)

	NewHTMXResponse().
		Header("HX-Reswap", "none").
		TriggerEntriesChanged(r.URL.Query().Get("month")).
		TriggerSuccessNotification("Rit verwijderd").
		Write(w)
}

// invalidateMonth drops cached reports of one month in every sort order.
func (s *Server) invalidateMonth(month core.MonthKey) {
	prefix := string(month) + "|"
	s.reportCache.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}
