// Package jobs defines the domain model shared by the ingest pipeline, stores and API.
package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/atlas-jobs/internal/salary"
)

// Source identifies an upstream job listing API.
type Source string

// Known sources. Only the ingest sources have fetch clients.
const (
	SourceRemotive       Source = "remotive"
	SourceJobicy         Source = "jobicy"
	SourceTheirStack     Source = "theirstack"
	SourceWeWorkRemotely Source = "weworkremotely"
	SourceGitHub         Source = "github"
	SourceOther          Source = "other"
)

// IngestSources lists the sources with fetch clients, in ingest order.
var IngestSources = []Source{SourceRemotive, SourceJobicy, SourceTheirStack}

var knownSources = map[Source]struct{}{
	SourceRemotive:       {},
	SourceJobicy:         {},
	SourceTheirStack:     {},
	SourceWeWorkRemotely: {},
	SourceGitHub:         {},
	SourceOther:          {},
}

// ParseSource validates a source name.
func ParseSource(raw string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownSources[src]; !ok {
		return "", fmt.Errorf("unknown source %q", raw)
	}
	return src, nil
}

// Sentinel errors returned by stores and transformers.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("duplicate job signature")
	ErrInvalidPayload = errors.New("invalid job payload")
	ErrQueueClosed    = errors.New("queue closed")
)

// Record is the canonical stored job posting.
type Record struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Company      string            `json:"company"`
	Logo         string            `json:"logo,omitempty"`
	Description  string            `json:"description"`
	Salary       string            `json:"salary,omitempty"`
	SalaryRange  *salary.Range     `json:"salaryRange,omitempty"`
	Location     string            `json:"location,omitempty"`
	JobType      string            `json:"jobType,omitempty"`
	Category     string            `json:"category,omitempty"`
	Remote       bool              `json:"remote"`
	JobSignature string            `json:"jobSignature"`
	Sources      []Source          `json:"sources"`
	SourceURLs   map[Source]string `json:"sourceUrls"`
	SourceIDs    map[Source]string `json:"sourceIds"`
	Benefits     []string          `json:"benefits"`
	FirstSeen    time.Time         `json:"firstSeen"`
	LastSeen     time.Time         `json:"lastSeen"`
	UpdatedAt    time.Time         `json:"updatedAt,omitzero"`
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (r Record) Clone() Record {
	cp := r
	if r.SalaryRange != nil {
		sr := *r.SalaryRange
		cp.SalaryRange = &sr
	}
	cp.Sources = append([]Source(nil), r.Sources...)
	cp.Benefits = append([]string(nil), r.Benefits...)
	cp.SourceURLs = cloneSourceMap(r.SourceURLs)
	cp.SourceIDs = cloneSourceMap(r.SourceIDs)
	return cp
}

// HasSource reports whether src already contributed to the record.
func (r Record) HasSource(src Source) bool {
	for _, s := range r.Sources {
		if s == src {
			return true
		}
	}
	return false
}

func cloneSourceMap(m map[Source]string) map[Source]string {
	if m == nil {
		return nil
	}
	out := make(map[Source]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Query narrows a listing. Zero values disable the corresponding filter.
type Query struct {
	Since    time.Time
	Limit    int
	Source   Source
	Category string
	JobType  string
	Remote   *bool
}

// Matches reports whether rec satisfies the attribute filters of q.
// Stores without native filtering use it to post-filter.
func (q Query) Matches(rec Record) bool {
	if !q.Since.IsZero() && rec.LastSeen.Before(q.Since) {
		return false
	}
	if q.Source != "" && !rec.HasSource(q.Source) {
		return false
	}
	if q.Category != "" && rec.Category != q.Category {
		return false
	}
	if q.JobType != "" && rec.JobType != q.JobType {
		return false
	}
	if q.Remote != nil && rec.Remote != *q.Remote {
		return false
	}
	return true
}
