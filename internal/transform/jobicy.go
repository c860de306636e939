package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/salary"
)

// Jobicy reads postings from the Jobicy v2 API.
type Jobicy struct {
	idGen     jobs.IDGenerator
	clock     jobs.Clock
	sanitizer *Sanitizer
}

// Source implements Transformer.
func (t *Jobicy) Source() jobs.Source { return jobs.SourceJobicy }

// Transform implements Transformer. Every Jobicy posting is remote.
func (t *Jobicy) Transform(raw []byte) (jobs.Record, error) {
	doc, err := parsePayload(raw)
	if err != nil {
		return jobs.Record{}, err
	}
	title := text(doc.Get("jobTitle"))
	company := text(doc.Get("companyName"))
	if err := requireFields(jobs.SourceJobicy, title, company); err != nil {
		return jobs.Record{}, err
	}
	id, err := t.idGen.NewID()
	if err != nil {
		return jobs.Record{}, fmt.Errorf("generate record id: %w", err)
	}

	rawSalary, rng := jobicySalary(doc)
	now := t.clock.Now()
	sources, urls, ids := singleSource(jobs.SourceJobicy, doc.Get("url").String(), doc.Get("id").String())

	return jobs.Record{
		ID:           id,
		Title:        title,
		Company:      company,
		Logo:         doc.Get("companyLogo").String(),
		Description:  t.sanitizer.Sanitize(doc.Get("jobDescription").String()),
		Salary:       rawSalary,
		SalaryRange:  rng,
		Location:     text(doc.Get("jobGeo")),
		JobType:      text(doc.Get("jobType")),
		Category:     text(doc.Get("jobIndustry")),
		Remote:       true,
		JobSignature: jobs.Signature(company, title),
		Sources:      sources,
		SourceURLs:   urls,
		SourceIDs:    ids,
		Benefits:     []string{},
		FirstSeen:    now,
		LastSeen:     now,
	}, nil
}

func jobicySalary(doc gjson.Result) (string, *salary.Range) {
	minRes, maxRes := doc.Get("annualSalaryMin"), doc.Get("annualSalaryMax")
	currency := strings.ToUpper(text(doc.Get("salaryCurrency")))
	if currency == "" {
		currency = salary.DefaultCurrency
	}

	rawSalary := text(doc.Get("salary"))
	if present(minRes) && present(maxRes) {
		rawSalary = fmt.Sprintf("%s-%s %s", text(minRes), text(maxRes), currency)
	}

	rng := salary.Parse(rawSalary)
	if rng != nil {
		if bonus := doc.Get("bonus"); present(bonus) {
			if v, ok := salary.LeadingNumber(text(bonus)); ok {
				note := "bonus: " + strconv.FormatFloat(v, 'f', -1, 64)
				if rng.Note != "" {
					note = rng.Note + " + " + note
				}
				rng.Note = note
			}
		}
		return rawSalary, rng
	}

	if !present(minRes) {
		return rawSalary, nil
	}
	rng = &salary.Range{Currency: currency, Period: salary.PeriodYear}
	if v, ok := salary.LeadingNumber(text(minRes)); ok {
		rng.Min = v
	}
	if present(maxRes) {
		if v, ok := salary.LeadingNumber(text(maxRes)); ok {
			rng.Max = v
		}
	}
	return rawSalary, rng
}

// present treats missing, null, empty and zero values as absent.
func present(res gjson.Result) bool {
	switch res.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return res.Float() != 0
	case gjson.String:
		s := strings.TrimSpace(res.Str)
		return s != "" && s != "0"
	default:
		return res.Exists()
	}
}
