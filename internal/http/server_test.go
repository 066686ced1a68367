package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kilometers/internal/ledger"
	"kilometers/internal/ledger/memory"
	applog "kilometers/internal/log"
	"kilometers/internal/services"
)

type testEnv struct {
	srv        *Server
	archiveDir string
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New(ledger.Defaults{})
	reports := services.NewReportService(store, store)
	dir := t.TempDir()

	// no broker: archived months are refreshed in-process, as in cmd/kilometers
	archives := services.NewArchiveService(reports, store, store, dir, nil)

	srv := NewServer(Config{
		Addr:   "127.0.0.1:0",
		Logger: applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard}),
	}, Dependencies{
		Entries:  services.NewEntryService(store, archives),
		Reports:  reports,
		Archives: archives,
	})
	srv.now = func() time.Time { return time.Date(2024, time.March, 15, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, archiveDir: dir}
}

func (e *testEnv) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) report(t *testing.T, month string) apiReport {
	t.Helper()
	rr := e.do(t, http.MethodGet, "/api/report?month="+month, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("api report status=%d body=%s", rr.Code, rr.Body.String())
	}
	var out apiReport
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return out
}

func (e *testEnv) addEntry(t *testing.T, date, title, distance string) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/entries", url.Values{
		"date": {date}, "title": {title}, "distance": {distance},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create entry status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestIndexAndHealth(t *testing.T) {
	env := newTestServer(t)

	rr := env.do(t, http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d body=%s", rr.Code, rr.Body.String())
	}
	for _, want := range []string{"Kilometerregistratie", "Snelle maandplanning", "Factuurgegevens", "maart 2024"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("request ID header not set")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	rr = env.do(t, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rr.Body.String(), "entries_created_total 0") {
		t.Errorf("metrics missing entries counter: %s", rr.Body.String())
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	env := newTestServer(t)

	if rr := env.do(t, http.MethodGet, "/nope", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route status=%d, want 404", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/entries", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /entries status=%d, want 405", rr.Code)
	}
}

func TestCreateEntry(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name   string
		form   url.Values
		status int
	}{
		{"valid", url.Values{"date": {"2024-03-05"}, "title": {"Kantoor"}, "distance": {"12,5"}}, http.StatusOK},
		{"invalid distance", url.Values{"date": {"2024-03-05"}, "title": {"Kantoor"}, "distance": {"abc"}}, http.StatusUnprocessableEntity},
		{"negative distance", url.Values{"date": {"2024-03-05"}, "title": {"Kantoor"}, "distance": {"-3"}}, http.StatusUnprocessableEntity},
		{"missing title", url.Values{"date": {"2024-03-05"}, "distance": {"10"}}, http.StatusUnprocessableEntity},
		{"bad date", url.Values{"date": {"2024-02-30"}, "title": {"Kantoor"}, "distance": {"10"}}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/entries", tt.form)
			if rr.Code != tt.status {
				t.Fatalf("status=%d, want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			trigger := rr.Header().Get("HX-Trigger")
			if tt.status == http.StatusOK && !strings.Contains(trigger, "entries:changed") {
				t.Errorf("missing entries:changed trigger: %s", trigger)
			}
			if tt.status != http.StatusOK && !strings.Contains(trigger, "show-notification") {
				t.Errorf("missing error notification: %s", trigger)
			}
		})
	}

	rep := env.report(t, "2024-03")
	if len(rep.Entries) != 1 {
		t.Fatalf("entries=%d, want 1", len(rep.Entries))
	}
	if got := rep.Entries[0].Distance.String(); got != "12.5" {
		t.Errorf("distance=%s, want 12.5", got)
	}
	// 12.5 km at the default 0.23 per km
	if got := rep.Totals.Total.StringFixed(2); got != "2.88" {
		t.Errorf("total=%s, want 2.88", got)
	}
}

func TestCreateEntry_MalformedJSON(t *testing.T) {
	env := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader(`{"title":`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}

func TestCreateBulk(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name   string
		days   []string
		status int
	}{
		{"two days", []string{"2024-03-01", "2024-03-04"}, http.StatusOK},
		{"no days", nil, http.StatusUnprocessableEntity},
		{"day outside month", []string{"2024-04-01"}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/entries/bulk", url.Values{
				"month": {"2024-03"}, "title": {"Kantoor"}, "distance": {"30"}, "day": tt.days,
			})
			if rr.Code != tt.status {
				t.Fatalf("status=%d, want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			if tt.status == http.StatusOK && !strings.Contains(rr.Body.String(), "0 dagen geselecteerd") {
				t.Errorf("planner not cleared after submit")
			}
		})
	}

	rep := env.report(t, "2024-03")
	if len(rep.Entries) != 2 {
		t.Fatalf("entries=%d, want 2", len(rep.Entries))
	}
	if rep.Entries[0].Date != "2024-03-04" {
		t.Errorf("first entry %s, want newest first", rep.Entries[0].Date)
	}
}

func TestPlanner(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name   string
		query  string
		status int
		want   string
	}{
		{"workdays", "month=2024-03&select=workdays&title=Kantoor&distance=10", http.StatusOK, "21 dagen geselecteerd"},
		{"every other day", "month=2024-03&select=every-other-day&title=Kantoor&distance=10", http.StatusOK, "16 dagen geselecteerd"},
		{"clear", "month=2024-03&select=clear&day=2024-03-01", http.StatusOK, "0 dagen geselecteerd"},
		{"manual days", "month=2024-03&day=2024-03-01&day=2024-04-01&distance=10", http.StatusOK, "1 dag geselecteerd"},
		{"unknown selection", "month=2024-03&select=weekends", http.StatusBadRequest, ""},
		{"bad month", "month=2024-13", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/ui/planner?"+tt.query, nil)
			if rr.Code != tt.status {
				t.Fatalf("status=%d, want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			if tt.want != "" && !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
		})
	}

	rr := env.do(t, http.MethodGet, "/ui/planner?month=2024-03&select=workdays&title=Kantoor&distance=10", nil)
	if !strings.Contains(rr.Body.String(), "210,00 km") {
		t.Errorf("total distance not shown")
	}
}

func TestReportAndCacheInvalidation(t *testing.T) {
	env := newTestServer(t)

	rr := env.do(t, http.MethodGet, "/ui/report?month=2024-03", nil)
	if !strings.Contains(rr.Body.String(), "Er zijn nog geen ritten opgeslagen") {
		t.Fatalf("expected empty month message, got %s", rr.Body.String())
	}

	env.addEntry(t, "2024-03-05", "Klantbezoek Utrecht", "40")
	env.addEntry(t, "2024-03-07", "Kantoor", "20")

	rr = env.do(t, http.MethodGet, "/ui/report?month=2024-03", nil)
	body := rr.Body.String()
	if !strings.Contains(body, "Klantbezoek Utrecht") {
		t.Fatalf("report served from stale cache")
	}
	if strings.Index(body, "07-03-2024") > strings.Index(body, "05-03-2024") {
		t.Errorf("default order should be newest first")
	}

	rr = env.do(t, http.MethodGet, "/ui/report?month=2024-03&sort=asc", nil)
	body = rr.Body.String()
	if strings.Index(body, "05-03-2024") > strings.Index(body, "07-03-2024") {
		t.Errorf("ascending order not applied")
	}
	if !strings.Contains(body, "60,00 km totaal") {
		t.Errorf("month distance total missing")
	}

	if rr := env.do(t, http.MethodGet, "/ui/report?month=march", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad month status=%d, want 400", rr.Code)
	}
}

func TestDeleteEntries(t *testing.T) {
	env := newTestServer(t)
	env.addEntry(t, "2024-03-05", "Kantoor", "10")
	env.addEntry(t, "2024-03-06", "Kantoor", "10")
	env.addEntry(t, "2024-03-07", "Kantoor", "10")

	rep := env.report(t, "2024-03")
	if len(rep.Entries) != 3 {
		t.Fatalf("entries=%d, want 3", len(rep.Entries))
	}

	id := rep.Entries[0].ID
	if rr := env.do(t, http.MethodDelete, "/entries/"+id+"?month=2024-03", nil); rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodDelete, "/entries/"+id, nil); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status=%d, want 404", rr.Code)
	}

	if rr := env.do(t, http.MethodPost, "/entries/delete", url.Values{"month": {"2024-03"}}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty selection status=%d, want 422", rr.Code)
	}

	rr := env.do(t, http.MethodPost, "/entries/delete", url.Values{
		"month": {"2024-03"},
		"id":    {rep.Entries[1].ID, "unknown-id"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("delete selection status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "1 rit verwijderd") {
		t.Errorf("unknown IDs should be ignored: %s", rr.Header().Get("HX-Trigger"))
	}

	if got := len(env.report(t, "2024-03").Entries); got != 1 {
		t.Errorf("entries after delete=%d, want 1", got)
	}
}

func TestSettings(t *testing.T) {
	env := newTestServer(t)

	rr := env.do(t, http.MethodGet, "/settings", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `value="0.23"`) {
		t.Fatalf("settings status=%d body=%s", rr.Code, rr.Body.String())
	}

	env.addEntry(t, "2024-03-05", "Kantoor", "100")
	before := env.report(t, "2024-03")

	tests := []struct {
		name   string
		form   url.Values
		status int
	}{
		{"negative rate", url.Values{"ratePerKm": {"-1"}}, http.StatusUnprocessableEntity},
		{"long currency", url.Values{"currencySymbol": {"EURO"}}, http.StatusUnprocessableEntity},
		{"bad invoice date", url.Values{"invoiceDate": {"01-03-2024"}}, http.StatusUnprocessableEntity},
		{"valid", url.Values{
			"invoiceDate": {"2024-04-01"}, "companyName": {"DeGraafIT"}, "licensePlate": {"g-270-tt"},
			"ratePerKm": {"0,5"}, "currencySymbol": {"€"}, "vatPercentage": {"21"},
		}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/settings", tt.form)
			if rr.Code != tt.status {
				t.Fatalf("status=%d, want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			if tt.status == http.StatusOK && !strings.Contains(rr.Header().Get("HX-Trigger"), "settings:saved") {
				t.Errorf("missing settings:saved trigger")
			}
		})
	}

	after := env.report(t, "2024-03")
	if before.Totals.Total.Equal(after.Totals.Total) {
		t.Fatal("cached report survived a settings change")
	}
	// 100 km * 0.5 = 50, plus 21% VAT
	if got := after.Totals.Total.StringFixed(2); got != "60.50" {
		t.Errorf("total=%s, want 60.50", got)
	}
	if after.Settings.LicensePlate != "G-270-TT" {
		t.Errorf("license plate=%q, want upper case", after.Settings.LicensePlate)
	}
	if after.InvoiceNumber != "20240401" {
		t.Errorf("invoice number=%q, want 20240401", after.InvoiceNumber)
	}
}

func TestExportPDF(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"empty month", "/export/2024-03.pdf", http.StatusNotFound},
		{"missing extension", "/export/2024-03", http.StatusBadRequest},
		{"bad month", "/export/maart.pdf", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := env.do(t, http.MethodGet, tt.path, nil); rr.Code != tt.status {
				t.Errorf("status=%d, want %d", rr.Code, tt.status)
			}
		})
	}

	env.addEntry(t, "2024-03-05", "Kantoor", "10")
	rr := env.do(t, http.MethodGet, "/export/2024-03.pdf?sort=asc", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type=%q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "kilometers-2024-03-20240315-0930.pdf") {
		t.Errorf("content disposition=%q", cd)
	}
	if !strings.HasPrefix(rr.Body.String(), "%PDF") {
		t.Error("body is not a PDF document")
	}
	if cc := rr.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("cache control=%q", cc)
	}
}

func TestArchive(t *testing.T) {
	env := newTestServer(t)

	if rr := env.do(t, http.MethodPost, "/export/2024-03/archive", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("empty month archive status=%d, want 404", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/export/2024-3x/archive", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad month archive status=%d, want 400", rr.Code)
	}

	env.addEntry(t, "2024-03-05", "Kantoor", "10")
	rr := env.do(t, http.MethodPost, "/export/2024-03/archive", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("archive status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Gearchiveerd") {
		t.Errorf("body=%q", rr.Body.String())
	}
	if _, err := os.Stat(filepath.Join(env.archiveDir, "kilometers-2024-03.pdf")); err != nil {
		t.Errorf("archive file missing: %v", err)
	}

	rr = env.do(t, http.MethodGet, "/ui/report?month=2024-03", nil)
	if !strings.Contains(rr.Body.String(), "Gearchiveerd") {
		t.Error("report does not show archived state")
	}
}

func TestArchive_FollowsEdits(t *testing.T) {
	env := newTestServer(t)
	path := filepath.Join(env.archiveDir, "kilometers-2024-02.pdf")

	env.addEntry(t, "2024-02-05", "Kantoor", "10")
	if rr := env.do(t, http.MethodPost, "/export/2024-02/archive", nil); rr.Code != http.StatusOK {
		t.Fatalf("archive status=%d body=%s", rr.Code, rr.Body.String())
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("archive file missing: %v", err)
	}

	env.addEntry(t, "2024-02-06", "Klantbezoek Delft", "45")
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("archive file missing after edit: %v", err)
	}
	if bytes.Equal(before, after) {
		t.Error("archive was not re-rendered after adding an entry")
	}

	for _, e := range env.report(t, "2024-02").Entries {
		if rr := env.do(t, http.MethodDelete, "/entries/"+e.ID+"?month=2024-02", nil); rr.Code != http.StatusOK {
			t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("archive of emptied month still on disk: %v", err)
	}
	rr := env.do(t, http.MethodGet, "/ui/report?month=2024-02", nil)
	if strings.Contains(rr.Body.String(), "Gearchiveerd") {
		t.Error("emptied month still reported as archived")
	}
}

func TestAPIMonths(t *testing.T) {
	env := newTestServer(t)
	env.addEntry(t, "2019-06-10", "Oude rit", "5")

	rr := env.do(t, http.MethodGet, "/api/months?month=2024-03", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var out struct {
		Selected string     `json:"selected"`
		Months   []apiMonth `json:"months"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Selected != "2024-03" {
		t.Errorf("selected=%q", out.Selected)
	}
	found := false
	for _, m := range out.Months {
		if m.Key == "2019-06" {
			found = m.Label == "juni 2019"
		}
	}
	if !found {
		t.Errorf("month with entries missing or mislabelled: %+v", out.Months)
	}

	if rr := env.do(t, http.MethodGet, "/api/months?month=x", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad month status=%d, want 400", rr.Code)
	}
}

func TestMonthSelector(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(t, http.MethodGet, "/ui/months?month=2023-01", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `<option value="2023-01" selected>januari 2023</option>`) {
		t.Errorf("selected month missing: %s", rr.Body.String())
	}
}

func TestCreatedEntryMonthBecomesSelected(t *testing.T) {
	env := newTestServer(t)

	rr := env.do(t, http.MethodPost, "/entries", url.Values{
		"date": {"2021-06-14"}, "title": {"Klantbezoek"}, "distance": {"30"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var triggers map[string]json.RawMessage
	if err := json.Unmarshal([]byte(rr.Header().Get("HX-Trigger")), &triggers); err != nil {
		t.Fatalf("decode HX-Trigger: %v", err)
	}
	var changed struct {
		Month string `json:"month"`
	}
	if err := json.Unmarshal(triggers["entries:changed"], &changed); err != nil {
		t.Fatalf("decode entries:changed: %v", err)
	}
	if changed.Month != "2021-06" {
		t.Fatalf("entries:changed month=%q, want 2021-06", changed.Month)
	}

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"selector", "/ui/months?month=" + changed.Month, `<option value="2021-06" selected>juni 2021</option>`},
		{"planner", "/ui/planner?month=" + changed.Month, `<option value="2021-06" selected>juni 2021</option>`},
		{"report", "/ui/report?month=" + changed.Month, "Klantbezoek"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, tt.target, nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("body missing %q: %s", tt.want, rr.Body.String())
			}
		})
	}
}
