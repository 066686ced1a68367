package invoicepdf

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kilometers/internal/core"
)

func sampleReport(n int) core.MonthReport {
	entries := make([]core.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, core.Entry{
			ID:       fmt.Sprintf("id-%03d", i),
			Date:     core.NewDate(2024, 3, 1+i%31),
			Title:    strings.Repeat("Kantoor Utrecht ", 1+i%4),
			Distance: decimal.RequireFromString("42.5"),
			Notes:    "parkeren",
		})
	}
	s := core.DefaultInvoiceSettings(time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))
	s.CompanyName = "Acme BV"
	s.VATPercentage = decimal.NewFromInt(21)
	return core.NewMonthReport("2024-03", entries, s, core.SortAsc)
}

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		entries int
	}{
		{"single row", 1},
		{"one page", 20},
		{"spans pages", 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Render(&buf, sampleReport(tt.entries)); err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
				t.Fatalf("output is not a PDF: %q", buf.Bytes()[:8])
			}
		})
	}
}

var showText = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\) ?Tj`)

// textOperands returns the strings drawn by an uncompressed document, in order.
func textOperands(pdf []byte) []string {
	var parts []string
	for _, m := range showText.FindAllSubmatch(pdf, -1) {
		parts = append(parts, string(m[1]))
	}
	return parts
}

func TestRender_WrapsLongCells(t *testing.T) {
	tests := []struct {
		name  string
		title string
		notes string
		want  string
	}{
		{
			name:  "long note",
			title: "Kantoor",
			notes: "Klantbezoek Rotterdam en daarna doorgereden naar Delft voor overleg project X",
			want:  "Klantbezoek Rotterdam en daarna doorgereden naar Delft voor overleg project X",
		},
		{
			name:  "long title",
			title: "Overleg met leverancier in Eindhoven over de planning van het tweede kwartaal",
			want:  "Overleg met leverancier in Eindhoven over de planning van het tweede kwartaal",
		},
		{
			name:  "word wider than the column",
			title: "Kantoor",
			notes: strings.Repeat("Rotterdam", 6),
			want:  strings.Repeat("Rotterdam", 6),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := sampleReport(1)
			report.Entries[0].Title = tt.title
			report.Entries[0].Notes = tt.notes

			var buf bytes.Buffer
			if err := render(&buf, report, false); err != nil {
				t.Fatalf("render() error = %v", err)
			}
			parts := textOperands(buf.Bytes())
			if slices.Contains(parts, tt.want) {
				t.Fatalf("%q was drawn on a single line", tt.want)
			}
			text := strings.Join(parts, " ")
			joined := strings.ReplaceAll(text, " ", "")
			if !strings.Contains(joined, strings.ReplaceAll(tt.want, " ", "")) {
				t.Errorf("document text %q is missing %q", text, tt.want)
			}
		})
	}
}

func TestRender_EmptyMonth(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, sampleReport(0))
	if !errors.Is(err, ErrNoEntries) {
		t.Fatalf("Render() error = %v, want ErrNoEntries", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes for an empty month", buf.Len())
	}
}

func TestFileName(t *testing.T) {
	now := time.Date(2024, 4, 2, 9, 5, 0, 0, time.UTC)
	if got, want := FileName("2024-03", now), "kilometers-2024-03-20240402-0905.pdf"; got != want {
		t.Errorf("FileName() = %q, want %q", got, want)
	}
}
