package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// RunStore keeps ingest run metadata in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]jobs.Run
	now  func() time.Time
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]jobs.Run),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run jobs.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// UpdateRun sets the status, error text and counts. Started is stamped on
// the first running transition and Finished on a terminal one.
func (s *RunStore) UpdateRun(
	_ context.Context,
	runID string,
	status jobs.RunStatus,
	errText string,
	counts map[jobs.Source]jobs.SourceCount,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, jobs.ErrNotFound)
	}
	run.Status = status
	run.ErrorText = errText
	if counts != nil {
		run.Counts = cloneCounts(counts)
	}
	now := s.now()
	if status == jobs.RunStatusRunning && run.Started == nil {
		run.Started = &now
	}
	if status.Terminal() {
		run.Finished = &now
	}
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (jobs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return jobs.Run{}, fmt.Errorf("run %s: %w", runID, jobs.ErrNotFound)
	}
	return cloneRun(run), nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, limit, offset int) ([]jobs.Run, error) {
	s.mu.RLock()
	out := make([]jobs.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, cloneRun(run))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Submitted.Equal(out[j].Submitted) {
			return out[i].ID > out[j].ID
		}
		return out[i].Submitted.After(out[j].Submitted)
	})
	if offset >= len(out) {
		return []jobs.Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneRun(run jobs.Run) jobs.Run {
	cp := run
	cp.Sources = append([]jobs.Source(nil), run.Sources...)
	cp.Counts = cloneCounts(run.Counts)
	return cp
}

func cloneCounts(in map[jobs.Source]jobs.SourceCount) map[jobs.Source]jobs.SourceCount {
	if in == nil {
		return nil
	}
	out := make(map[jobs.Source]jobs.SourceCount, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
