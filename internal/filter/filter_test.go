package filter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

var now = time.Date(2024, 8, 10, 0, 0, 0, 0, time.UTC)

func view() jobs.View {
	return jobs.View{
		Title:     "Senior Platform Engineer",
		JobType:   "Full_Time",
		HasSalary: true,
		Remote:    true,
		FirstSeen: now.Add(-48 * time.Hour),
	}
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	s := Default()
	require.NoError(t, s.Validate())
	require.Equal(t, FullTime, s.EmploymentType)
	require.True(t, s.Criteria.HasSalary)
	require.True(t, s.Criteria.RemoteOnly)
	require.False(t, s.Criteria.SeniorLevel)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"complete", `{"employmentType":"contract","criteria":{"remoteOnly":true}}`, true},
		{"empty criteria object", `{"employmentType":"part-time","criteria":{}}`, true},
		{"missing type", `{"criteria":{"hasSalary":true}}`, false},
		{"unknown type", `{"employmentType":"gig","criteria":{}}`, false},
		{"missing criteria", `{"employmentType":"full-time"}`, false},
		{"null criteria", `{"employmentType":"full-time","criteria":null}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var s Settings
			require.NoError(t, json.Unmarshal([]byte(tt.body), &s))
			err := s.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidSettings)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*jobs.View)
		settings Settings
		want     bool
	}{
		{"default matches", nil, Default(), true},
		{"no active criteria", nil, Settings{EmploymentType: FullTime, Criteria: &Criteria{}}, false},
		{"nil criteria", nil, Settings{EmploymentType: FullTime}, false},
		{"no job type", func(v *jobs.View) { v.JobType = "" }, Default(), false},
		{"wrong employment", nil, Settings{EmploymentType: Contract, Criteria: &Criteria{RemoteOnly: true}}, false},
		{"part time", func(v *jobs.View) { v.JobType = "part_time" }, Settings{EmploymentType: PartTime, Criteria: &Criteria{RemoteOnly: true}}, true},
		{"contract", func(v *jobs.View) { v.JobType = "Contract" }, Settings{EmploymentType: Contract, Criteria: &Criteria{HasSalary: true}}, true},
		{"missing salary", func(v *jobs.View) { v.HasSalary = false }, Default(), false},
		{"not remote", func(v *jobs.View) { v.Remote = false }, Default(), false},
		{"senior", nil, Settings{EmploymentType: FullTime, Criteria: &Criteria{SeniorLevel: true}}, true},
		{"sr abbreviation", func(v *jobs.View) { v.Title = "Sr. Designer" }, Settings{EmploymentType: FullTime, Criteria: &Criteria{SeniorLevel: true}}, true},
		{"lead", func(v *jobs.View) { v.Title = "Team Lead" }, Settings{EmploymentType: FullTime, Criteria: &Criteria{SeniorLevel: true}}, true},
		{"junior", func(v *jobs.View) { v.Title = "Junior Designer" }, Settings{EmploymentType: FullTime, Criteria: &Criteria{SeniorLevel: true}}, false},
		{"recent", nil, Settings{EmploymentType: FullTime, Criteria: &Criteria{RecentlyPosted: true}}, true},
		{"exactly seven days", func(v *jobs.View) { v.FirstSeen = now.Add(-RecentWindow) }, Settings{EmploymentType: FullTime, Criteria: &Criteria{RecentlyPosted: true}}, true},
		{"stale", func(v *jobs.View) { v.FirstSeen = now.Add(-8 * 24 * time.Hour) }, Settings{EmploymentType: FullTime, Criteria: &Criteria{RecentlyPosted: true}}, false},
		{"no date", func(v *jobs.View) { v.FirstSeen = time.Time{} }, Settings{EmploymentType: FullTime, Criteria: &Criteria{RecentlyPosted: true}}, false},
		{"large company alone", func(v *jobs.View) { v.HasSalary, v.Remote = false, false }, Settings{EmploymentType: FullTime, Criteria: &Criteria{LargeCompany: true}}, true},
		{"large company keeps salary check", func(v *jobs.View) { v.HasSalary = false }, Settings{EmploymentType: FullTime, Criteria: &Criteria{HasSalary: true, LargeCompany: true}}, false},
		{"equity with salary", nil, Settings{EmploymentType: FullTime, Criteria: &Criteria{HasSalary: true, HasEquity: true}}, true},
		{"visa sponsorship needs employment", func(v *jobs.View) { v.JobType = "contract" }, Settings{EmploymentType: FullTime, Criteria: &Criteria{VisaSponsorship: true}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := view()
			if tt.mutate != nil {
				tt.mutate(&v)
			}
			require.Equal(t, tt.want, Matches(v, tt.settings, now))
		})
	}
}

func TestApplyPreservesOrder(t *testing.T) {
	t.Parallel()

	a, b, c := view(), view(), view()
	a.ID, b.ID, c.ID = "a", "b", "c"
	b.Remote = false

	got := Apply([]jobs.View{a, b, c}, Default(), now)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "c", got[1].ID)
	require.Empty(t, Apply(nil, Default(), now))
}

func TestCloneDetachesCriteria(t *testing.T) {
	t.Parallel()

	s := Default()
	cp := s.Clone()
	cp.Criteria.HasSalary = false
	require.True(t, s.Criteria.HasSalary)
}
