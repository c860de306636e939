// Package filter evaluates featured-job criteria against served job views.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// EmploymentType is the primary featured filter.
type EmploymentType string

// Employment types accepted in settings.
const (
	FullTime EmploymentType = "full-time"
	PartTime EmploymentType = "part-time"
	Contract EmploymentType = "contract"
)

// RecentWindow is how fresh a posting must be to count as recently posted.
const RecentWindow = 7 * 24 * time.Hour

// ErrInvalidSettings is returned when settings are missing required parts.
var ErrInvalidSettings = errors.New("invalid settings")

// Criteria are the opt-in secondary filters. Every selected criterion that
// has job data behind it must hold.
type Criteria struct {
	HasSalary      bool `json:"hasSalary"`
	RemoteOnly     bool `json:"remoteOnly"`
	SeniorLevel    bool `json:"seniorLevel"`
	RecentlyPosted bool `json:"recentlyPosted"`
	// No source provides company size, equity or visa data. These count toward
	// Active but are never checked against a job.
	LargeCompany    bool `json:"largeCompany"`
	HasEquity       bool `json:"hasEquity"`
	VisaSponsorship bool `json:"visaSponsorship"`
}

// Active reports whether any criterion is selected.
func (c Criteria) Active() bool {
	return c.HasSalary || c.RemoteOnly || c.SeniorLevel || c.RecentlyPosted ||
		c.LargeCompany || c.HasEquity || c.VisaSponsorship
}

// Settings are a user's featured filter preferences.
type Settings struct {
	EmploymentType EmploymentType `json:"employmentType"`
	Criteria       *Criteria      `json:"criteria"`
}

// Default returns full-time postings with a salary and remote work.
func Default() Settings {
	return Settings{
		EmploymentType: FullTime,
		Criteria:       &Criteria{HasSalary: true, RemoteOnly: true},
	}
}

// Validate requires a known employment type and a criteria object.
func (s Settings) Validate() error {
	switch s.EmploymentType {
	case FullTime, PartTime, Contract:
	case "":
		return fmt.Errorf("%w: employmentType is required", ErrInvalidSettings)
	default:
		return fmt.Errorf("%w: unknown employmentType %q", ErrInvalidSettings, s.EmploymentType)
	}
	if s.Criteria == nil {
		return fmt.Errorf("%w: criteria is required", ErrInvalidSettings)
	}
	return nil
}

// Clone returns a copy that does not share the criteria pointer.
func (s Settings) Clone() Settings {
	if s.Criteria != nil {
		c := *s.Criteria
		s.Criteria = &c
	}
	return s
}

// Matches reports whether v is a featured job under s at time now.
func Matches(v jobs.View, s Settings, now time.Time) bool {
	if s.Criteria == nil || !s.Criteria.Active() {
		return false
	}
	if !matchesEmployment(v.JobType, s.EmploymentType) {
		return false
	}
	c := s.Criteria
	if c.HasSalary && !v.HasSalary {
		return false
	}
	if c.RemoteOnly && !v.Remote {
		return false
	}
	if c.SeniorLevel && !isSenior(v.Title) {
		return false
	}
	if c.RecentlyPosted && (v.FirstSeen.IsZero() || v.FirstSeen.Before(now.Add(-RecentWindow))) {
		return false
	}
	return true
}

// Apply keeps the views matching s, preserving order.
func Apply(views []jobs.View, s Settings, now time.Time) []jobs.View {
	out := make([]jobs.View, 0, len(views))
	for _, v := range views {
		if Matches(v, s, now) {
			out = append(out, v)
		}
	}
	return out
}

func matchesEmployment(jobType string, want EmploymentType) bool {
	if jobType == "" {
		return false
	}
	jt := strings.ToLower(jobType)
	switch want {
	case FullTime:
		return strings.Contains(jt, "full")
	case PartTime:
		return strings.Contains(jt, "part")
	case Contract:
		return strings.Contains(jt, "contract")
	default:
		return true
	}
}

func isSenior(title string) bool {
	t := strings.ToLower(title)
	return strings.Contains(t, "senior") || strings.Contains(t, "sr.") || strings.Contains(t, "lead")
}
