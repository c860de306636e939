package jobs

import (
	"strings"
	"time"

	"github.com/JakeFAU/atlas-jobs/internal/salary"
)

const (
	postedLayout     = "Jan 2, 2006"
	dateNotAvailable = "Date not available"
)

// View is the client-facing shape of a job.
type View struct {
	ID                        string        `json:"id"`
	Company                   string        `json:"company"`
	Logo                      string        `json:"logo,omitempty"`
	Title                     string        `json:"title"`
	Salary                    string        `json:"salary"`
	SalaryRange               *salary.Range `json:"salaryRange,omitempty"`
	HasSalary                 bool          `json:"hasSalary"`
	Benefits                  []string      `json:"benefits"`
	Remote                    bool          `json:"remote"`
	USOnly                    bool          `json:"usOnly"`
	Source                    Source        `json:"source"`
	TimePosted                string        `json:"timePosted"`
	FirstSeen                 time.Time     `json:"firstSeen"`
	URL                       string        `json:"url"`
	Description               string        `json:"description"`
	Category                  string        `json:"category,omitempty"`
	JobType                   string        `json:"jobType,omitempty"`
	CandidateRequiredLocation string        `json:"candidateRequiredLocation,omitempty"`
}

// ToView converts a stored record into its served form.
func ToView(rec Record) View {
	v := View{
		ID:                        rec.ID,
		Company:                   rec.Company,
		Logo:                      rec.Logo,
		Title:                     rec.Title,
		Salary:                    salary.Format(rec.SalaryRange, rec.Salary),
		HasSalary:                 salary.IsValidFormat(rec.Salary),
		Benefits:                  append([]string{}, rec.Benefits...),
		Remote:                    rec.Remote,
		USOnly:                    strings.Contains(rec.Location, "USA") || strings.Contains(rec.Location, "US only"),
		TimePosted:                formatPosted(rec.FirstSeen),
		FirstSeen:                 rec.FirstSeen,
		URL:                       primaryURL(rec),
		Description:               rec.Description,
		Category:                  rec.Category,
		JobType:                   rec.JobType,
		CandidateRequiredLocation: rec.Location,
	}
	if rec.SalaryRange != nil {
		sr := *rec.SalaryRange
		v.SalaryRange = &sr
	}
	if len(rec.Sources) > 0 {
		v.Source = rec.Sources[0]
	}
	return v
}

// ToViews converts a slice of records.
func ToViews(recs []Record) []View {
	out := make([]View, 0, len(recs))
	for _, rec := range recs {
		out = append(out, ToView(rec))
	}
	return out
}

func formatPosted(t time.Time) string {
	if t.IsZero() {
		return dateNotAvailable
	}
	return t.Format(postedLayout)
}

func primaryURL(rec Record) string {
	if len(rec.Sources) > 0 {
		if u := rec.SourceURLs[rec.Sources[0]]; u != "" {
			return u
		}
	}
	for _, src := range rec.Sources {
		if u := rec.SourceURLs[src]; u != "" {
			return u
		}
	}
	return ""
}
