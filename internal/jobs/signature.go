package jobs

import (
	"regexp"
	"strings"
	"time"
)

var (
	seniorityRx  = regexp.MustCompile(`(?i)senior|junior|mid-level|lead|principal`)
	whitespaceRx = regexp.MustCompile(`\s+`)
)

// Signature derives the cross-source dedup key: lowercased company and title
// joined by a double underscore, with seniority words removed from the title.
func Signature(company, title string) string {
	c := strings.ToLower(strings.TrimSpace(company))
	t := strings.ToLower(strings.TrimSpace(title))
	t = seniorityRx.ReplaceAllString(t, "")
	t = strings.TrimSpace(whitespaceRx.ReplaceAllString(t, " "))
	return c + "__" + t
}

// Merge folds an incoming posting from source into an existing record.
// Identity fields and FirstSeen are preserved; content fields are refreshed
// when the incoming posting carries a value.
func Merge(existing, incoming Record, source Source, now time.Time) Record {
	out := existing.Clone()
	out.LastSeen = now
	out.UpdatedAt = now
	if incoming.Salary != "" {
		out.Salary = incoming.Salary
	}
	if incoming.Logo != "" {
		out.Logo = incoming.Logo
	}
	if incoming.Description != "" {
		out.Description = incoming.Description
	}
	if incoming.SalaryRange != nil {
		sr := *incoming.SalaryRange
		out.SalaryRange = &sr
	}
	if !out.HasSource(source) {
		out.Sources = append(out.Sources, source)
	}
	if out.SourceURLs == nil {
		out.SourceURLs = map[Source]string{}
	}
	if out.SourceIDs == nil {
		out.SourceIDs = map[Source]string{}
	}
	out.SourceURLs[source] = incoming.SourceURLs[source]
	out.SourceIDs[source] = incoming.SourceIDs[source]
	return out
}
