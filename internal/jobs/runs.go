package jobs

import (
	"net/http"
	"time"
)

// RunStatus represents the lifecycle state of an ingest run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCanceled
}

// Trigger records what started a run.
type Trigger string

// Run triggers.
const (
	TriggerSchedule Trigger = "schedule"
	TriggerAPI      Trigger = "api"
	TriggerCLI      Trigger = "cli"
)

// SourceCount tallies one source's contribution to a run.
type SourceCount struct {
	Fetched int    `json:"fetched"`
	Stored  int    `json:"stored"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

// Run is the metadata persisted for each ingest pass over the sources.
type Run struct {
	ID        string                 `json:"id"`
	Status    RunStatus              `json:"status"`
	Trigger   Trigger                `json:"trigger"`
	Sources   []Source               `json:"sources"`
	Submitted time.Time              `json:"submitted_at"`
	Started   *time.Time             `json:"started_at,omitempty"`
	Finished  *time.Time             `json:"finished_at,omitempty"`
	ErrorText string                 `json:"error_text,omitempty"`
	Counts    map[Source]SourceCount `json:"counts"`
}

// Totals sums the per-source counts.
func (r Run) Totals() SourceCount {
	var total SourceCount
	for _, c := range r.Counts {
		total.Fetched += c.Fetched
		total.Stored += c.Stored
		total.Created += c.Created
		total.Updated += c.Updated
		total.Failed += c.Failed
	}
	return total
}

// RunRequest wraps a run ready to execute.
type RunRequest struct {
	RunID     string
	Sources   []Source
	Trigger   Trigger
	Attempt   int
	Submitted int64
}

// FetchRequest captures everything needed to call a source API.
type FetchRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
