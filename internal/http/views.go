package http

import (
	"github.com/shopspring/decimal"

	"kilometers/internal/core"
	"kilometers/internal/services"
)

// monthOption is one entry of a month <select>.
type monthOption struct {
	Key      string
	Label    string
	Selected bool
}

func monthOptions(months []core.MonthKey, selected core.MonthKey) []monthOption {
	opts := make([]monthOption, 0, len(months))
	for _, m := range months {
		opts = append(opts, monthOption{Key: string(m), Label: m.Label(), Selected: m == selected})
	}
	return opts
}

type monthSelectorView struct {
	Selected string
	Options  []monthOption
}

type dayView struct {
	ISO      string
	Label    string
	Weekday  string
	InMonth  bool
	Selected bool
}

type selectionButton struct {
	Name  string
	Label string
}

var selectionButtons = []selectionButton{
	{string(services.SelectWorkdays), "Werkdagen"},
	{string(services.SelectEveryOther), "Om de dag"},
	{string(services.SelectAll), "Alle dagen"},
	{string(services.SelectClear), "Wissen"},
}

type plannerView struct {
	Month         string
	Months        []monthOption
	Title         string
	Distance      string
	Notes         string
	Weeks         [][]dayView
	Buttons       []selectionButton
	SelectedCount int
	TotalDistance string
	CanSubmit     bool
}

// newPlannerView renders the grid for month with the given days selected. Days outside
// the month are dropped from the selection.
func newPlannerView(month core.MonthKey, months []core.MonthKey, title, distance, notes string, selected []string) (plannerView, error) {
	weeks, err := core.CalendarGrid(month)
	if err != nil {
		return plannerView{}, err
	}
	chosen := make(map[string]bool, len(selected))
	for _, iso := range selected {
		chosen[iso] = true
	}

	v := plannerView{
		Month:    string(month),
		Months:   monthOptions(months, month),
		Title:    title,
		Distance: distance,
		Notes:    notes,
		Buttons:  selectionButtons,
	}
	for _, week := range weeks {
		row := make([]dayView, 0, len(week))
		for _, d := range week {
			sel := d.InMonth && chosen[d.ISO]
			if sel {
				v.SelectedCount++
			}
			row = append(row, dayView{ISO: d.ISO, Label: d.Label, Weekday: d.Weekday, InMonth: d.InMonth, Selected: sel})
		}
		v.Weeks = append(v.Weeks, row)
	}

	total := decimal.Zero
	if km, err := core.ParseDistance(distance); err == nil {
		total = km.Mul(decimal.NewFromInt(int64(v.SelectedCount)))
		v.CanSubmit = v.SelectedCount > 0 && title != ""
	}
	v.TotalDistance = core.FormatQuantity(total)
	return v, nil
}

type reportRow struct {
	ID       string
	Date     string
	Title    string
	Quantity string
	Rate     string
	Amount   string
	VAT      string
	Notes    string
}

type reportView struct {
	Month         string
	Label         string
	Empty         bool
	Order         string
	NextOrder     string
	Ascending     bool
	Rows          []reportRow
	InvoiceDate   string
	InvoiceNumber string
	CompanyName   string
	LicensePlate  string
	TotalDistance string
	Subtotal      string
	VAT           string
	Total         string
	Archived      bool
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func newReportView(r core.MonthReport) reportView {
	st := r.Settings
	v := reportView{
		Month:         string(r.Month),
		Label:         r.Label,
		Empty:         r.IsEmpty(),
		Order:         string(r.Order),
		NextOrder:     string(core.SortAsc),
		Ascending:     r.Order == core.SortAsc,
		InvoiceDate:   core.FormatInvoiceDate(st.InvoiceDate),
		InvoiceNumber: r.InvoiceNumber,
		CompanyName:   orDash(st.CompanyName),
		LicensePlate:  orDash(st.LicensePlate),
		TotalDistance: core.FormatQuantity(r.Totals.TotalDistance),
		Subtotal:      core.FormatCurrency(st.CurrencySymbol, r.Totals.Subtotal),
		VAT:           core.FormatCurrency(st.CurrencySymbol, r.Totals.VAT),
		Total:         core.FormatCurrency(st.CurrencySymbol, r.Totals.Total),
	}
	if v.Ascending {
		v.NextOrder = string(core.SortDesc)
	}

	rate := core.FormatCurrency(st.CurrencySymbol, st.RatePerKm)
	vat := core.FormatVAT(st.VATPercentage)
	for _, e := range r.Entries {
		v.Rows = append(v.Rows, reportRow{
			ID:       e.ID,
			Date:     core.FormatDisplayDate(e.Date),
			Title:    e.Title,
			Quantity: core.FormatQuantity(e.Distance),
			Rate:     rate,
			Amount:   core.FormatCurrency(st.CurrencySymbol, core.LineAmount(e, st)),
			VAT:      vat,
			Notes:    orDash(e.Notes),
		})
	}
	return v
}

type settingsView struct {
	InvoiceDate    string
	InvoiceNumber  string
	CompanyName    string
	LicensePlate   string
	RatePerKm      string
	CurrencySymbol string
	VATPercentage  string
	Saved          bool
}

func newSettingsView(s core.InvoiceSettings, saved bool) settingsView {
	return settingsView{
		InvoiceDate:    s.InvoiceDate,
		InvoiceNumber:  s.InvoiceNumber,
		CompanyName:    s.CompanyName,
		LicensePlate:   s.LicensePlate,
		RatePerKm:      s.RatePerKm.String(),
		CurrencySymbol: s.CurrencySymbol,
		VATPercentage:  s.VATPercentage.String(),
		Saved:          saved,
	}
}

type entryFormView struct {
	Today string
}

type indexView struct {
	Planner  plannerView
	Entry    entryFormView
	Settings settingsView
	Months   monthSelectorView
	Report   reportView
}

// JSON API shapes

type apiMonth struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type apiEntry struct {
	ID       string          `json:"id"`
	Date     string          `json:"date"`
	Title    string          `json:"title"`
	Distance decimal.Decimal `json:"distance"`
	Notes    string          `json:"notes,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}

type apiTotals struct {
	TotalDistance decimal.Decimal `json:"totalDistance"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	VAT           decimal.Decimal `json:"vat"`
	Total         decimal.Decimal `json:"total"`
}

type apiSettings struct {
	InvoiceDate    string          `json:"invoiceDate"`
	InvoiceNumber  string          `json:"invoiceNumber"`
	CompanyName    string          `json:"companyName"`
	LicensePlate   string          `json:"licensePlate"`
	RatePerKm      decimal.Decimal `json:"ratePerKm"`
	CurrencySymbol string          `json:"currencySymbol"`
	VATPercentage  decimal.Decimal `json:"vatPercentage"`
}

type apiReport struct {
	Month         string      `json:"month"`
	Label         string      `json:"label"`
	InvoiceNumber string      `json:"invoiceNumber"`
	Order         string      `json:"order"`
	Entries       []apiEntry  `json:"entries"`
	Totals        apiTotals   `json:"totals"`
	Settings      apiSettings `json:"settings"`
}

func newAPIReport(r core.MonthReport) apiReport {
	st := r.Settings
	out := apiReport{
		Month:         string(r.Month),
		Label:         r.Label,
		InvoiceNumber: r.InvoiceNumber,
		Order:         string(r.Order),
		Entries:       make([]apiEntry, 0, len(r.Entries)),
		Totals: apiTotals{
			TotalDistance: r.Totals.TotalDistance,
			Subtotal:      r.Totals.Subtotal.Round(2),
			VAT:           r.Totals.VAT.Round(2),
			Total:         r.Totals.Total.Round(2),
		},
		Settings: apiSettings(st),
	}
	for _, e := range r.Entries {
		out.Entries = append(out.Entries, apiEntry{
			ID:       e.ID,
			Date:     e.Date.ISO(),
			Title:    e.Title,
			Distance: e.Distance,
			Notes:    e.Notes,
			Amount:   core.LineAmount(e, st).Round(2),
		})
	}
	return out
}
