package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// ErrUnknownSource is returned for a requested source with no client.
var ErrUnknownSource = errors.New("unknown or disabled source")

const enqueueTimeout = 5 * time.Second

// Submitter records new runs and hands them to the worker queue.
type Submitter struct {
	runs    jobs.RunStore
	queue   jobs.Queue
	ids     jobs.IDGenerator
	clock   jobs.Clock
	enabled []jobs.Source
	logger  *zap.Logger
}

// NewSubmitter wires a Submitter. enabled is the default source list and
// the set requests are checked against.
func NewSubmitter(
	runs jobs.RunStore,
	queue jobs.Queue,
	ids jobs.IDGenerator,
	clock jobs.Clock,
	enabled []jobs.Source,
	logger *zap.Logger,
) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{runs: runs, queue: queue, ids: ids, clock: clock, enabled: enabled, logger: logger}
}

// Prepare creates a queued run without enqueueing it.
func (s *Submitter) Prepare(ctx context.Context, trigger jobs.Trigger, srcs []jobs.Source) (jobs.RunRequest, error) {
	if len(srcs) == 0 {
		srcs = s.enabled
	}
	for _, src := range srcs {
		if !slices.Contains(s.enabled, src) {
			return jobs.RunRequest{}, fmt.Errorf("%w: %s", ErrUnknownSource, src)
		}
	}
	if len(srcs) == 0 {
		return jobs.RunRequest{}, fmt.Errorf("%w: no sources enabled", ErrUnknownSource)
	}

	runID, err := s.ids.NewID()
	if err != nil {
		return jobs.RunRequest{}, fmt.Errorf("generate run id: %w", err)
	}
	now := s.clock.Now().UTC()
	run := jobs.Run{
		ID:        runID,
		Status:    jobs.RunStatusQueued,
		Trigger:   trigger,
		Sources:   slices.Clone(srcs),
		Submitted: now,
		Counts:    map[jobs.Source]jobs.SourceCount{},
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return jobs.RunRequest{}, fmt.Errorf("create run: %w", err)
	}
	return jobs.RunRequest{
		RunID:     runID,
		Sources:   run.Sources,
		Trigger:   trigger,
		Submitted: now.Unix(),
	}, nil
}

// Submit creates a run and enqueues it. A run that cannot be enqueued
// within five seconds is marked failed.
func (s *Submitter) Submit(ctx context.Context, trigger jobs.Trigger, srcs []jobs.Source) (string, error) {
	req, err := s.Prepare(ctx, trigger, srcs)
	if err != nil {
		return "", err
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if err := s.queue.Enqueue(enqueueCtx, req); err != nil {
		if updateErr := s.runs.UpdateRun(ctx, req.RunID, jobs.RunStatusFailed, err.Error(), nil); updateErr != nil {
			s.logger.Error("mark unqueued run failed", zap.String("run_id", req.RunID), zap.Error(updateErr))
		}
		return "", fmt.Errorf("enqueue run: %w", err)
	}
	s.logger.Info("run submitted",
		zap.String("run_id", req.RunID),
		zap.String("trigger", string(trigger)),
		zap.Any("sources", req.Sources))
	return req.RunID, nil
}
