// Package invoicepdf renders a month report as a printable A4 document.
package invoicepdf

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"kilometers/internal/core"
)

// ErrNoEntries is returned for months without entries; no document is produced.
var ErrNoEntries = errors.New("no entries for month")

const (
	marginX     = 16.0
	metaRightX  = 110.0
	metaValueL  = 35.0
	metaValueR  = 30.0
	lineHeight  = 6.0
	rowHeight   = 8.0
	cellLine    = 4.5
	cellPadding = 1.0
	summaryX    = 120.0
)

type rgb struct{ r, g, b int }

var (
	titleColor   = rgb{31, 58, 147}
	subtleColor  = rgb{50, 60, 70}
	labelColor   = rgb{84, 99, 110}
	valueColor   = rgb{15, 23, 42}
	headerFill   = rgb{51, 86, 156}
	stripeFill   = rgb{245, 247, 250}
	totalColor   = rgb{31, 122, 224}
	tableHeaders = []string{"Datum", "Beschrijving rit", "Aantal", "Eenheid", "Tarief", "Totaal (excl. btw)", "Btw %", "Notities"}
	colWidths    = []float64{20, 40, 16, 14, 20, 26, 14, 28}
	colAligns    = []string{"L", "L", "R", "L", "R", "R", "R", "L"}
)

// FileName returns the download name for a month, stamped with now.
func FileName(month core.MonthKey, now time.Time) string {
	return fmt.Sprintf("kilometers-%s-%s.pdf", month, now.Format("20060102-1504"))
}

// Render writes the report as PDF to w.
func Render(w io.Writer, report core.MonthReport) error {
	return render(w, report, true)
}

func render(w io.Writer, report core.MonthReport, compress bool) error {
	if report.IsEmpty() {
		return ErrNoEntries
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetMargins(marginX, 18, marginX)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Kilometerregistratie "+report.Label, true)
	pdf.SetCreator("kilometers", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	d := &document{pdf: pdf, tr: tr, report: report}

	pdf.AddPage()
	d.header()
	d.meta()
	d.table()
	d.summary()

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

type document struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	report core.MonthReport
	y      float64
}

func (d *document) color(c rgb) { d.pdf.SetTextColor(c.r, c.g, c.b) }

func (d *document) text(x, y float64, s string) { d.pdf.Text(x, y, d.tr(s)) }

func (d *document) header() {
	d.y = 18
	d.pdf.SetFont("Helvetica", "B", 18)
	d.color(titleColor)
	d.text(marginX, d.y, "Kilometerregistratie")

	d.y += 8
	d.pdf.SetFont("Helvetica", "", 12)
	d.color(subtleColor)
	d.text(marginX, d.y, "Specificatie: "+d.report.Label)
	d.y += 6
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func (d *document) meta() {
	s := d.report.Settings
	y := d.y

	d.pdf.SetFont("Helvetica", "", 10)
	d.color(labelColor)
	for i, label := range []string{"Factuurdatum", "Factuurnummer", "Bedrijfsnaam", "Kenteken"} {
		d.text(marginX, y+lineHeight*float64(i), label)
	}
	for i, label := range []string{"Tarief per km", "Totaal aantal km", "Btw %"} {
		d.text(metaRightX, y+lineHeight*float64(i), label)
	}

	d.pdf.SetFont("Helvetica", "B", 10)
	d.color(valueColor)
	left := []string{
		core.FormatInvoiceDate(s.InvoiceDate),
		d.report.InvoiceNumber,
		orDash(s.CompanyName),
		orDash(s.LicensePlate),
	}
	for i, v := range left {
		d.text(marginX+metaValueL, y+lineHeight*float64(i), v)
	}
	right := []string{
		core.FormatCurrency(s.CurrencySymbol, s.RatePerKm),
		core.FormatQuantity(d.report.Totals.TotalDistance),
		core.FormatVAT(s.VATPercentage),
	}
	for i, v := range right {
		d.text(metaRightX+metaValueR, y+lineHeight*float64(i), v)
	}

	d.y = y + lineHeight*4 + 4
}

func (d *document) tableHeader() {
	d.pdf.SetXY(marginX, d.y)
	d.pdf.SetFont("Helvetica", "B", 9)
	d.pdf.SetFillColor(headerFill.r, headerFill.g, headerFill.b)
	d.pdf.SetTextColor(255, 255, 255)
	for i, h := range tableHeaders {
		d.pdf.CellFormat(colWidths[i], rowHeight, d.tr(h), "", 0, colAligns[i], true, 0, "")
	}
	d.y += rowHeight
}

func (d *document) table() {
	s := d.report.Settings
	rate := core.FormatCurrency(s.CurrencySymbol, s.RatePerKm)
	vat := core.FormatVAT(s.VATPercentage)
	_, pageH := d.pdf.GetPageSize()
	bottom := pageH - 20

	d.tableHeader()
	d.pdf.SetFont("Helvetica", "", 9)
	for i, e := range d.report.Entries {
		row := []string{
			core.FormatDisplayDate(e.Date),
			e.Title,
			core.FormatQuantity(e.Distance),
			"km",
			rate,
			core.FormatCurrency(s.CurrencySymbol, core.LineAmount(e, s)),
			vat,
			e.Notes,
		}
		cells := make([][]string, len(row))
		h := rowHeight
		for c, v := range row {
			cells[c] = d.wrap(v, colWidths[c]-2*cellPadding)
			if ch := float64(len(cells[c]))*cellLine + 2*cellPadding; ch > h {
				h = ch
			}
		}

		if d.y+h > bottom {
			d.pdf.AddPage()
			d.y = 18
			d.tableHeader()
			d.pdf.SetFont("Helvetica", "", 9)
		}
		if i%2 == 1 {
			d.pdf.SetFillColor(stripeFill.r, stripeFill.g, stripeFill.b)
		} else {
			d.pdf.SetFillColor(255, 255, 255)
		}
		d.pdf.Rect(marginX, d.y, tableWidth(), h, "F")
		d.color(valueColor)

		x := marginX
		for c, lines := range cells {
			top := d.y + (h-float64(len(lines))*cellLine)/2
			for l, line := range lines {
				d.pdf.SetXY(x, top+float64(l)*cellLine)
				d.pdf.CellFormat(colWidths[c], cellLine, line, "", 0, colAligns[c], false, 0, "")
			}
			x += colWidths[c]
		}
		d.y += h
	}
}

func tableWidth() float64 {
	var w float64
	for _, cw := range colWidths {
		w += cw
	}
	return w
}

// wrap translates s and breaks it into lines no wider than width. Words
// longer than a line are split between characters.
func (d *document) wrap(s string, width float64) []string {
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		line := ""
		for _, word := range strings.Fields(para) {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if d.width(candidate) <= width {
				line = candidate
				continue
			}
			if line != "" {
				lines = append(lines, d.tr(line))
			}
			line = word
			for d.width(line) > width {
				head, tail := d.splitWord(line, width)
				lines = append(lines, d.tr(head))
				line = tail
			}
		}
		if line != "" || len(lines) == 0 {
			lines = append(lines, d.tr(line))
		}
	}
	return lines
}

func (d *document) width(s string) float64 { return d.pdf.GetStringWidth(d.tr(s)) }

// splitWord returns the longest prefix of word (at least one rune) that fits width.
func (d *document) splitWord(word string, width float64) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && d.width(string(runes[:n+1])) <= width {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}

func (d *document) summary() {
	s := d.report.Settings
	t := d.report.Totals
	_, pageH := d.pdf.GetPageSize()
	y := d.y + 10
	if y+14 > pageH-20 {
		d.pdf.AddPage()
		y = 28
	}

	d.pdf.SetFont("Helvetica", "", 10)
	d.color(valueColor)
	d.text(summaryX, y, "Bedrag (excl. btw): "+core.FormatCurrency(s.CurrencySymbol, t.Subtotal))
	d.text(summaryX, y+6, "Btw: "+core.FormatCurrency(s.CurrencySymbol, t.VAT))

	d.pdf.SetFont("Helvetica", "B", 10)
	d.color(totalColor)
	d.text(summaryX, y+14, "Totaalbedrag incl. btw: "+core.FormatCurrency(s.CurrencySymbol, t.Total))
}
