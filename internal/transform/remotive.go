package transform

import (
	"fmt"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/salary"
)

// Remotive reads postings from the Remotive remote-jobs feed.
type Remotive struct {
	idGen     jobs.IDGenerator
	clock     jobs.Clock
	sanitizer *Sanitizer
	// source overrides the attribution for feeds sharing this shape.
	source jobs.Source
}

// Source implements Transformer.
func (t *Remotive) Source() jobs.Source {
	if t.source != "" {
		return t.source
	}
	return jobs.SourceRemotive
}

// Transform implements Transformer. Every Remotive posting is remote.
func (t *Remotive) Transform(raw []byte) (jobs.Record, error) {
	doc, err := parsePayload(raw)
	if err != nil {
		return jobs.Record{}, err
	}
	src := t.Source()
	title := text(doc.Get("title"))
	company := text(doc.Get("company_name"))
	if err := requireFields(src, title, company); err != nil {
		return jobs.Record{}, err
	}
	id, err := t.idGen.NewID()
	if err != nil {
		return jobs.Record{}, fmt.Errorf("generate record id: %w", err)
	}
	rawSalary := text(doc.Get("salary"))
	now := t.clock.Now()
	sources, urls, ids := singleSource(src, doc.Get("url").String(), doc.Get("id").String())

	return jobs.Record{
		ID:           id,
		Title:        title,
		Company:      company,
		Logo:         doc.Get("company_logo").String(),
		Description:  t.sanitizer.Sanitize(doc.Get("description").String()),
		Salary:       rawSalary,
		SalaryRange:  salary.Parse(rawSalary),
		Location:     text(doc.Get("candidate_required_location")),
		JobType:      text(doc.Get("job_type")),
		Category:     text(doc.Get("category")),
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
