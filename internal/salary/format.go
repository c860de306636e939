package salary

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NotDisclosed is rendered when a posting carries no usable salary data.
const NotDisclosed = "Salary not disclosed"

const monthsPerYear = 12

var printer = message.NewPrinter(language.English)

// Annualize returns the year-equivalent bounds. Only monthly figures are scaled.
func Annualize(r *Range) (float64, float64) {
	if r == nil {
		return 0, 0
	}
	if r.Period == PeriodMonth {
		return r.Min * monthsPerYear, r.Max * monthsPerYear
	}
	return r.Min, r.Max
}

// Format renders a range for display. Monthly values are shown annualized and
// hourly, daily and weekly rates keep their unit suffix. The raw text is used
// when the range cannot be rendered consistently.
func Format(r *Range, raw string) string {
	if r == nil || (r.Min == 0 && r.Max == 0) {
		return NotDisclosed
	}
	switch r.Period {
	case PeriodYear, PeriodMonth, "":
		lo, hi := Annualize(r)
		switch {
		case lo != 0 && hi != 0:
			return formatAmount(lo, r.Currency) + " - " + formatAmount(hi, r.Currency)
		case lo != 0:
			return formatAmount(lo, r.Currency)
		default:
			return formatAmount(hi, r.Currency)
		}
	case PeriodHour, PeriodDay, PeriodWeek:
		if r.Min != 0 {
			out := formatAmount(r.Min, r.Currency)
			if r.Max != 0 {
				out += " - " + formatAmount(r.Max, r.Currency)
			}
			return out + " / " + unitSuffix(r.Period)
		}
	}
	if raw != "" {
		return raw
	}
	return NotDisclosed
}

func unitSuffix(p Period) string {
	if p == PeriodHour {
		return "hr"
	}
	return string(p)
}

func formatAmount(v float64, currency string) string {
	n := printer.Sprintf("%d", int64(math.Round(v)))
	if currency == "" || currency == DefaultCurrency {
		return "$" + n
	}
	return n + " " + currency
}
