// Package scheduler submits ingest runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// Submitter starts a run.
type Submitter interface {
	Submit(ctx context.Context, trigger jobs.Trigger, srcs []jobs.Source) (string, error)
}

// Scheduler wraps a cron runner with one ingest entry.
type Scheduler struct {
	schedule   string
	runOnStart bool
	submitter  Submitter
	logger     *zap.Logger
	cron       *cron.Cron
}

// New validates schedule (standard five-field cron or a descriptor such as
// @hourly) and builds a Scheduler.
func New(schedule string, runOnStart bool, submitter Submitter, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	cl := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		schedule:   schedule,
		runOnStart: runOnStart,
		submitter:  submitter,
		logger:     logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}, nil
}

// Run starts the schedule and blocks until ctx ends, then waits for an
// in-flight submission to return.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.submit(ctx) }); err != nil {
		return fmt.Errorf("schedule ingest: %w", err)
	}
	if s.runOnStart {
		s.submit(ctx)
	}
	s.cron.Start()
	s.logger.Info("ingest scheduled", zap.String("schedule", s.schedule), zap.Time("next", s.Next()))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// Next returns the next scheduled fire time, or zero before Run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) submit(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runID, err := s.submitter.Submit(ctx, jobs.TriggerSchedule, nil)
	if err != nil {
		s.logger.Error("scheduled submit failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled run submitted", zap.String("run_id", runID))
}

// cronLogger routes cron's logging through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
