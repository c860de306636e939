package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// JobStore keeps job records keyed by ID with a unique signature index.
// Records are copied on the way in and out.
type JobStore struct {
	mu    sync.RWMutex
	byID  map[string]jobs.Record
	bySig map[string]string
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		byID:  make(map[string]jobs.Record),
		bySig: make(map[string]string),
	}
}

// FindBySignature implements jobs.Store.
func (s *JobStore) FindBySignature(_ context.Context, sig string) (jobs.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySig[sig]
	if !ok {
		return jobs.Record{}, jobs.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// Get implements jobs.Store.
func (s *JobStore) Get(_ context.Context, id string) (jobs.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return jobs.Record{}, jobs.ErrNotFound
	}
	return rec.Clone(), nil
}

// Insert implements jobs.Store.
func (s *JobStore) Insert(_ context.Context, rec jobs.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bySig[rec.JobSignature]; exists {
		return fmt.Errorf("insert %q: %w", rec.JobSignature, jobs.ErrDuplicate)
	}
	if _, exists := s.byID[rec.ID]; exists {
		return fmt.Errorf("insert id %q: %w", rec.ID, jobs.ErrDuplicate)
	}
	s.byID[rec.ID] = rec.Clone()
	s.bySig[rec.JobSignature] = rec.ID
	return nil
}

// Update implements jobs.Store. The stored ID and FirstSeen are preserved.
func (s *JobStore) Update(_ context.Context, rec jobs.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySig[rec.JobSignature]
	if !ok {
		return fmt.Errorf("update %q: %w", rec.JobSignature, jobs.ErrNotFound)
	}
	current := s.byID[id]
	next := rec.Clone()
	next.ID = current.ID
	next.FirstSeen = current.FirstSeen
	s.byID[id] = next
	return nil
}

// List implements jobs.Store, newest LastSeen first.
func (s *JobStore) List(_ context.Context, q jobs.Query) ([]jobs.Record, error) {
	s.mu.RLock()
	out := make([]jobs.Record, 0, len(s.byID))
	for _, rec := range s.byID {
		if q.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// EnsureIndexes is a no-op; the signature map is the only index.
func (s *JobStore) EnsureIndexes(context.Context) error { return nil }

// Close is a no-op.
func (s *JobStore) Close(context.Context) error { return nil }
