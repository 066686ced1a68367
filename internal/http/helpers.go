package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"kilometers/internal/core"
	"kilometers/internal/invoicepdf"
	"kilometers/internal/ledger"
	applog "kilometers/internal/log"
	"kilometers/internal/services"
)

var errTemplatesMissing = errors.New("templates not loaded")

// userError pairs a domain error with its error fragment and the Dutch message
// shown in the UI.
type userError struct {
	err     error
	respond func(message string) *HTMXResponseBuilder
	message string
}

var userErrors = []userError{
	{errMalformedRequest, BadRequestError, "Ongeldig verzoek"},
	{errBadMonthParam, BadRequestError, "Ongeldige maand in verzoek"},
	{services.ErrUnknownSelection, BadRequestError, "Onbekende snelle selectie"},
	{errNothingSelected, UnprocessableEntityError, "Selecteer minstens één rit"},
	{core.ErrEmptyTitle, UnprocessableEntityError, "Voeg een korte beschrijving toe"},
	{core.ErrTitleTooLong, UnprocessableEntityError, "Beschrijving is te lang (max. 200 tekens)"},
	{core.ErrNotesTooLong, UnprocessableEntityError, "Notities zijn te lang (max. 500 tekens)"},
	{core.ErrInvalidDistance, UnprocessableEntityError, "Afstand moet een positief getal zijn"},
	{core.ErrInvalidDate, UnprocessableEntityError, "Kies een geldige datum"},
	{core.ErrInvalidMonth, UnprocessableEntityError, "Kies een geldige maand"},
	{core.ErrNoDaysSelected, UnprocessableEntityError, "Selecteer minstens één dag"},
	{core.ErrDayOutsideMonth, UnprocessableEntityError, "Geselecteerde dag valt buiten de gekozen maand"},
	{core.ErrInvalidNumber, UnprocessableEntityError, "Voer een geldig getal in"},
	{core.ErrNegativeRate, UnprocessableEntityError, "Tarief per km mag niet negatief zijn"},
	{core.ErrNegativeVAT, UnprocessableEntityError, "Btw-percentage mag niet negatief zijn"},
	{core.ErrInvalidCurrency, UnprocessableEntityError, "Valuta moet 1 tot 3 tekens zijn"},
	{core.ErrInvalidInvoiceDate, UnprocessableEntityError, "Factuurdatum moet een geldige datum zijn"},
	{ledger.ErrNotFound, NotFoundError, "Rit niet gevonden"},
	{invoicepdf.ErrNoEntries, NotFoundError, "Er zijn nog geen ritten opgeslagen voor deze maand."},
}

// classifyError maps an error to its error response and user-facing message.
// Anything unknown is a 500.
func classifyError(err error) (*HTMXResponseBuilder, string) {
	for _, ue := range userErrors {
		if errors.Is(err, ue.err) {
			return ue.respond(ue.message), ue.message
		}
	}
	const message = "Er is iets misgegaan, probeer het opnieuw"
	return InternalServerError(message), message
}

// writeError renders an HTML error fragment, logging server-side failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	resp, message := classifyError(err)
	if resp.statusCode >= http.StatusInternalServerError {
		s.events.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, operation,
			applog.NewFields().WithRequestID(requestID(r)))
	}
	resp.TriggerErrorNotification(message).Write(w)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError is writeError for the JSON API.
func (s *Server) writeJSONError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	resp, message := classifyError(err)
	if resp.statusCode >= http.StatusInternalServerError {
		s.events.LogError(r.Context(), "API request failed", err, applog.ComponentHTTP, operation, nil)
	}
	writeJSON(w, resp.statusCode, map[string]string{"error": message})
}

// sanitizeInput removes control characters (except tab, newline and carriage return)
// and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
