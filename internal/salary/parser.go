// Package salary normalizes free-form salary text into structured ranges.
package salary

import (
	"regexp"
	"strconv"
	"strings"
)

// Period is the pay interval a salary range refers to.
type Period string

// Supported periods.
const (
	PeriodYear  Period = "year"
	PeriodMonth Period = "month"
	PeriodWeek  Period = "week"
	PeriodDay   Period = "day"
	PeriodHour  Period = "hour"
)

// DefaultCurrency is assumed when no currency marker is present.
const DefaultCurrency = "USD"

// Range is the normalized salary shape. Zero Min or Max means the bound is absent.
type Range struct {
	Min      float64 `json:"min,omitempty" bson:"min,omitempty"`
	Max      float64 `json:"max,omitempty" bson:"max,omitempty"`
	Currency string  `json:"currency" bson:"currency"`
	Period   Period  `json:"period" bson:"period"`
	Note     string  `json:"note,omitempty" bson:"note,omitempty"`
}

var (
	numberRx    = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)
	thousandsRx = regexp.MustCompile(`\b\d+[kK]\b`)
	leadingRx   = regexp.MustCompile(`^\s*[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)
	currencyRx  = regexp.MustCompile(`(?i)\b(USD|EUR|GBP|PLN|ZRX)\b|[$€£]`)
	periodRx    = regexp.MustCompile(
		`(?i)(per year|annually|/year|/yr|per hour|/hour|hourly|per month|/month|monthly|/mo|` +
			`per week|/week|weekly|per day|/day|daily)`,
	)
)

var symbolCurrencies = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

// Parse extracts a Range from raw salary text. It returns nil when the text is
// empty or holds no numbers.
func Parse(raw string) *Range {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	nums := extractNumbers(raw)
	if len(nums) == 0 {
		return nil
	}
	if thousandsRx.MatchString(raw) {
		for i := range nums {
			nums[i] *= 1000
		}
	}

	r := &Range{
		Min:      nums[0],
		Currency: detectCurrency(raw),
		Period:   detectPeriod(raw),
	}
	if len(nums) > 1 {
		r.Max = nums[1]
	}
	return r
}

// IsValidFormat reports whether raw parses into a range with a minimum.
func IsValidFormat(raw string) bool {
	r := Parse(raw)
	return r != nil && r.Min != 0
}

// LeadingNumber parses the number at the start of s and ignores any trailing
// text, so "5000 USD" yields 5000.
func LeadingNumber(s string) (float64, bool) {
	m := leadingRx.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func extractNumbers(raw string) []float64 {
	tokens := numberRx.FindAllString(raw, -1)
	nums := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		clean := strings.ReplaceAll(tok, ",", "")
		if clean == "" {
			continue
		}
		n, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	return nums
}

func detectCurrency(raw string) string {
	m := currencyRx.FindString(raw)
	if m == "" {
		return DefaultCurrency
	}
	if code, ok := symbolCurrencies[m]; ok {
		return code
	}
	return strings.ToUpper(m)
}

func detectPeriod(raw string) Period {
	m := strings.ToLower(periodRx.FindString(raw))
	if m == "" {
		lower := strings.ToLower(raw)
		switch {
		case strings.Contains(lower, "/hr"):
			return PeriodHour
		case strings.Contains(lower, "gross salary"):
			// gross figures are quoted monthly in practice
			return PeriodMonth
		}
		return PeriodYear
	}
	switch {
	case strings.Contains(m, "hour") || strings.Contains(m, "/hr"):
		return PeriodHour
	case strings.Contains(m, "month") || strings.Contains(m, "/mo"):
		return PeriodMonth
	case strings.Contains(m, "week") || strings.Contains(m, "/wk"):
		return PeriodWeek
	case strings.Contains(m, "day") || strings.Contains(m, "daily"):
		return PeriodDay
	}
	return PeriodYear
}
