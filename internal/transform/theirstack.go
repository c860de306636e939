package transform

import (
	"fmt"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/salary"
)

// TheirStack reads postings from the TheirStack job search API. Records
// carry a source-scoped id and signature, so they never merge with postings
// from other feeds.
type TheirStack struct {
	clock     jobs.Clock
	sanitizer *Sanitizer
}

// Source implements Transformer.
func (t *TheirStack) Source() jobs.Source { return jobs.SourceTheirStack }

// Transform implements Transformer.
func (t *TheirStack) Transform(raw []byte) (jobs.Record, error) {
	doc, err := parsePayload(raw)
	if err != nil {
		return jobs.Record{}, err
	}
	title := text(doc.Get("job_title"))
	company := text(doc.Get("company"))
	if doc.Get("company").IsObject() {
		company = text(doc.Get("company.name"))
	}
	if err := requireFields(jobs.SourceTheirStack, title, company); err != nil {
		return jobs.Record{}, err
	}
	sourceID := text(doc.Get("id"))
	if sourceID == "" {
		return jobs.Record{}, fmt.Errorf("%w: theirstack job missing id", jobs.ErrInvalidPayload)
	}

	rawSalary := text(doc.Get("salary_string"))
	var rng *salary.Range
	minUSD, maxUSD := doc.Get("min_annual_salary_usd").Float(), doc.Get("max_annual_salary_usd").Float()
	if minUSD != 0 || maxUSD != 0 {
		rng = &salary.Range{Min: minUSD, Max: maxUSD, Currency: salary.DefaultCurrency, Period: salary.PeriodYear}
	} else if rawSalary != "" {
		rng = salary.Parse(rawSalary)
	}

	remote := doc.Get("remote").Bool()
	location := text(doc.Get("location"))
	if location == "" {
		location = "Unknown"
		if remote {
			location = "Remote"
		}
	}

	key := "theirstack-" + sourceID
	now := t.clock.Now()
	sources, urls, ids := singleSource(jobs.SourceTheirStack, doc.Get("url").String(), sourceID)

	return jobs.Record{
		ID:           key,
		Title:        title,
		Company:      company,
		Logo:         CompanyLogo(doc.Get("company_domain").String()),
		Description:  t.sanitizer.Sanitize(doc.Get("description").String()),
		Salary:       rawSalary,
		SalaryRange:  rng,
		Location:     location,
		Remote:       remote,
		JobSignature: key,
		Sources:      sources,
		SourceURLs:   urls,
		SourceIDs:    ids,
		Benefits:     []string{},
		FirstSeen:    now,
		LastSeen:     now,
	}, nil
}
