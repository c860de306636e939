package transform

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/salary"
)

type fakeIDGen struct {
	ids []string
	err error
}

func (f *fakeIDGen) NewID() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if len(f.ids) == 0 {
		return "id-default", nil
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry(ids ...string) *Registry {
	return NewRegistry(&fakeIDGen{ids: ids}, fakeClock{now: testNow})
}

func TestRemotiveTransform(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"id": 1234,
		"url": "https://remotive.com/remote-jobs/1234",
		"title": "Senior Go Engineer",
		"company_name": "Acme",
		"company_logo": "https://remotive.com/logo/acme.png",
		"category": "Software Development",
		"job_type": "full_time",
		"candidate_required_location": "USA",
		"salary": "$120k - $150k",
		"description": "<p onclick=\"x()\">Build things</p><script>alert(1)</script>"
	}`)

	rec, err := newTestRegistry("rec-1").For(jobs.SourceRemotive).Transform(raw)
	require.NoError(t, err)
	require.Equal(t, "rec-1", rec.ID)
	require.Equal(t, "Senior Go Engineer", rec.Title)
	require.Equal(t, "Acme", rec.Company)
	require.Equal(t, "acme__go engineer", rec.JobSignature)
	require.True(t, rec.Remote)
	require.Equal(t, "USA", rec.Location)
	require.Equal(t, "full_time", rec.JobType)
	require.Equal(t, "Software Development", rec.Category)
	require.Equal(t, []jobs.Source{jobs.SourceRemotive}, rec.Sources)
	require.Equal(t, "https://remotive.com/remote-jobs/1234", rec.SourceURLs[jobs.SourceRemotive])
	require.Equal(t, "1234", rec.SourceIDs[jobs.SourceRemotive])
	require.Equal(t, testNow, rec.FirstSeen)
	require.Equal(t, testNow, rec.LastSeen)
	require.NotNil(t, rec.SalaryRange)
	require.Equal(t, 120000.0, rec.SalaryRange.Min)
	require.Equal(t, 150000.0, rec.SalaryRange.Max)
	require.Equal(t, "<p>Build things</p>", rec.Description)
	require.NotNil(t, rec.Benefits)
}

func TestRemotiveFallbackKeepsSource(t *testing.T) {
	t.Parallel()

	tr := newTestRegistry().For(jobs.SourceWeWorkRemotely)
	require.Equal(t, jobs.SourceWeWorkRemotely, tr.Source())

	rec, err := tr.Transform([]byte(`{"id":"w1","title":"Designer","company_name":"Globex","url":"https://wwr/1"}`))
	require.NoError(t, err)
	require.Equal(t, []jobs.Source{jobs.SourceWeWorkRemotely}, rec.Sources)
	require.Equal(t, "https://wwr/1", rec.SourceURLs[jobs.SourceWeWorkRemotely])
	require.Nil(t, rec.SalaryRange)
}

func TestTransformRejectsInvalidPayloads(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	tests := []struct {
		name string
		src  jobs.Source
		raw  string
	}{
		{"malformed", jobs.SourceRemotive, `{"title":`},
		{"array", jobs.SourceRemotive, `[1,2]`},
		{"remotive no company", jobs.SourceRemotive, `{"title":"Dev"}`},
		{"jobicy no title", jobs.SourceJobicy, `{"companyName":"Acme"}`},
		{"theirstack no id", jobs.SourceTheirStack, `{"job_title":"Dev","company":"Acme"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := reg.For(tt.src).Transform([]byte(tt.raw))
			require.ErrorIs(t, err, jobs.ErrInvalidPayload)
		})
	}
}

func TestTransformPropagatesIDError(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(&fakeIDGen{err: errors.New("entropy")}, fakeClock{now: testNow})
	_, err := reg.For(jobs.SourceRemotive).Transform([]byte(`{"title":"Dev","company_name":"Acme"}`))
	require.ErrorContains(t, err, "entropy")
}

func TestJobicyTransform(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"id": 98,
		"url": "https://jobicy.com/jobs/98",
		"jobTitle": "Lead Data Engineer",
		"companyName": "Initech",
		"companyLogo": "https://jobicy.com/logo.png",
		"jobIndustry": ["Data Science", "Engineering"],
		"jobType": ["full-time"],
		"jobGeo": "Europe",
		"annualSalaryMin": "70000",
		"annualSalaryMax": 90000,
		"salaryCurrency": "EUR",
		"bonus": 5000,
		"jobDescription": "<p style=\"color:red\">Pipelines<!-- hidden --></p>"
	}`)

	rec, err := newTestRegistry("rec-9").For(jobs.SourceJobicy).Transform(raw)
	require.NoError(t, err)
	require.Equal(t, "rec-9", rec.ID)
	require.Equal(t, "initech__data engineer", rec.JobSignature)
	require.Equal(t, "70000-90000 EUR", rec.Salary)
	require.Equal(t, &salary.Range{Min: 70000, Max: 90000, Currency: "EUR", Period: salary.PeriodYear, Note: "bonus: 5000"}, rec.SalaryRange)
	require.Equal(t, "Data Science, Engineering", rec.Category)
	require.Equal(t, "full-time", rec.JobType)
	require.Equal(t, "Europe", rec.Location)
	require.Equal(t, "<p>Pipelines</p>", rec.Description)
	require.Equal(t, "98", rec.SourceIDs[jobs.SourceJobicy])
	require.True(t, rec.Remote)
}

func TestJobicySalaryFallbacks(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()

	rec, err := reg.For(jobs.SourceJobicy).Transform([]byte(
		`{"jobTitle":"Dev","companyName":"Acme","salary":"$50 per hour"}`))
	require.NoError(t, err)
	require.Equal(t, "$50 per hour", rec.Salary)
	require.Equal(t, salary.PeriodHour, rec.SalaryRange.Period)

	rec, err = reg.For(jobs.SourceJobicy).Transform([]byte(
		`{"jobTitle":"Dev","companyName":"Acme","annualSalaryMin":"65000"}`))
	require.NoError(t, err)
	require.Empty(t, rec.Salary)
	require.Equal(t, &salary.Range{Min: 65000, Currency: "USD", Period: salary.PeriodYear}, rec.SalaryRange)

	rec, err = reg.For(jobs.SourceJobicy).Transform([]byte(`{"jobTitle":"Dev","companyName":"Acme"}`))
	require.NoError(t, err)
	require.Nil(t, rec.SalaryRange)
}

func TestJobicyBonusWithTrailingText(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry()
	rec, err := reg.For(jobs.SourceJobicy).Transform([]byte(
		`{"jobTitle":"Dev","companyName":"Acme","annualSalaryMin":70000,"annualSalaryMax":90000,"bonus":"5000 USD"}`))
	require.NoError(t, err)
	require.Equal(t, "bonus: 5000", rec.SalaryRange.Note)

	rec, err = reg.For(jobs.SourceJobicy).Transform([]byte(
		`{"jobTitle":"Dev","companyName":"Acme","annualSalaryMin":70000,"annualSalaryMax":90000,"bonus":"negotiable"}`))
	require.NoError(t, err)
	require.Empty(t, rec.SalaryRange.Note)
}

func TestTheirStackTransform(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"id": 555,
		"job_title": "Platform Engineer",
		"company": {"name": "Hooli"},
		"company_domain": "https://hooli.com/about",
		"url": "https://theirstack.com/jobs/555",
		"remote": true,
		"min_annual_salary_usd": 140000,
		"max_annual_salary_usd": 0,
		"salary_string": "140k+",
		"description": "<b>Infra</b>"
	}`)

	rec, err := newTestRegistry().For(jobs.SourceTheirStack).Transform(raw)
	require.NoError(t, err)
	require.Equal(t, "theirstack-555", rec.ID)
	require.Equal(t, "theirstack-555", rec.JobSignature)
	require.Equal(t, "Hooli", rec.Company)
	require.Equal(t, "Remote", rec.Location)
	require.True(t, rec.Remote)
	require.Equal(t, "https://logo.clearbit.com/hooli.com", rec.Logo)
	require.Equal(t, &salary.Range{Min: 140000, Currency: "USD", Period: salary.PeriodYear}, rec.SalaryRange)
	require.Equal(t, "140k+", rec.Salary)
	require.Equal(t, "<b>Infra</b>", rec.Description)
	require.Equal(t, "555", rec.SourceIDs[jobs.SourceTheirStack])
}

func TestTheirStackSalaryStringAndLocation(t *testing.T) {
	t.Parallel()

	rec, err := newTestRegistry().For(jobs.SourceTheirStack).Transform([]byte(
		`{"id":"a1","job_title":"SRE","company":"Vandelay","salary_string":"€60,000 - €70,000","location":"Berlin"}`))
	require.NoError(t, err)
	require.Equal(t, "Vandelay", rec.Company)
	require.Equal(t, "Berlin", rec.Location)
	require.False(t, rec.Remote)
	require.Empty(t, rec.Logo)
	require.Equal(t, "EUR", rec.SalaryRange.Currency)
	require.Equal(t, 60000.0, rec.SalaryRange.Min)

	rec, err = newTestRegistry().For(jobs.SourceTheirStack).Transform([]byte(
		`{"id":"a2","job_title":"SRE","company":"Vandelay"}`))
	require.NoError(t, err)
	require.Equal(t, "Unknown", rec.Location)
	require.Nil(t, rec.SalaryRange)
}

func TestCompanyLogo(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://logo.clearbit.com/acme.io", CompanyLogo("acme.io"))
	require.Equal(t, "https://logo.clearbit.com/acme.io", CompanyLogo("http://acme.io/careers"))
	require.Empty(t, CompanyLogo("  "))
}

func TestSanitizer(t *testing.T) {
	t.Parallel()

	s := NewSanitizer()
	require.Empty(t, s.Sanitize(""))
	require.Equal(t, `<a href="https://x.io" rel="nofollow">x</a>`, s.Sanitize(`<a href="https://x.io" onmouseover="evil()">x</a>`))
}
