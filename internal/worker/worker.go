// Package worker executes queued ingest runs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/atlas-jobs/internal/ingest"
	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/telemetry"
)

// Runner executes the sources of one run.
type Runner interface {
	Run(ctx context.Context, runID string, srcs []jobs.Source) (map[jobs.Source]jobs.SourceCount, error)
}

// Config controls Worker behavior.
type Config struct {
	Topic      string
	JobTimeout time.Duration
}

// Worker consumes run requests and drives each through the pipeline.
type Worker struct {
	queue     jobs.Queue
	runs      jobs.RunStore
	runner    Runner
	publisher jobs.Publisher
	clock     jobs.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher may be nil.
func New(
	queue jobs.Queue,
	runs jobs.RunStore,
	runner Runner,
	publisher jobs.Publisher,
	clock jobs.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		runs:      runs,
		runner:    runner,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming requests until the context finishes or the queue
// closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, jobs.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", req.RunID))
		if _, err := w.Process(ctx, req); err != nil {
			w.logger.Error("run bookkeeping failed", zap.String("run_id", req.RunID), zap.Error(err))
		}
	}
}

// Process executes one run synchronously and returns its final state.
func (w *Worker) Process(ctx context.Context, req jobs.RunRequest) (jobs.Run, error) {
	telemetry.IncActiveWorkers()
	defer telemetry.DecActiveWorkers()
	logger := w.logger.With(zap.String("run_id", req.RunID))

	if err := w.runs.UpdateRun(ctx, req.RunID, jobs.RunStatusRunning, "", nil); err != nil {
		return jobs.Run{}, fmt.Errorf("mark run running: %w", err)
	}
	telemetry.ObserveRun(string(jobs.RunStatusRunning))
	logger.Info("run started", zap.Any("sources", req.Sources), zap.String("trigger", string(req.Trigger)))

	runCtx := ctx
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}
	counts, runErr := w.runner.Run(runCtx, req.RunID, req.Sources)
	status, errText := deriveFinalStatus(req.Sources, counts, runErr)

	// The run context may be done; bookkeeping uses a fresh one.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.runs.UpdateRun(finishCtx, req.RunID, status, errText, counts); err != nil {
		return jobs.Run{}, fmt.Errorf("mark run %s: %w", status, err)
	}
	telemetry.ObserveRun(string(status))

	total := jobs.Run{Counts: counts}.Totals()
	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("fetched", total.Fetched),
		zap.Int("created", total.Created),
		zap.Int("updated", total.Updated),
		zap.Int("failed", total.Failed),
		zap.String("error", errText))

	w.publishCompleted(finishCtx, req.RunID, status, errText, counts, logger)

	run, err := w.runs.GetRun(finishCtx, req.RunID)
	if err != nil {
		return jobs.Run{}, fmt.Errorf("reload run: %w", err)
	}
	return run, nil
}

// deriveFinalStatus fails a run only when every requested source failed.
// Partial failures succeed with the source errors joined into errText.
func deriveFinalStatus(requested []jobs.Source, counts map[jobs.Source]jobs.SourceCount, runErr error) (jobs.RunStatus, string) {
	var (
		failures []string
		failed   int
	)
	for _, src := range requested {
		c, ok := counts[src]
		if !ok {
			continue
		}
		if c.Error != "" {
			failed++
			failures = append(failures, fmt.Sprintf("%s: %s", src, c.Error))
		}
	}
	sort.Strings(failures)
	errText := strings.Join(failures, "; ")

	switch {
	case runErr != nil && errors.Is(runErr, context.DeadlineExceeded):
		return jobs.RunStatusFailed, joinErr(errText, "run timed out")
	case runErr != nil:
		return jobs.RunStatusCanceled, joinErr(errText, runErr.Error())
	case len(requested) > 0 && failed == len(requested):
		return jobs.RunStatusFailed, errText
	default:
		return jobs.RunStatusSucceeded, errText
	}
}

func joinErr(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}

func (w *Worker) publishCompleted(
	ctx context.Context,
	runID string,
	status jobs.RunStatus,
	errText string,
	counts map[jobs.Source]jobs.SourceCount,
	logger *zap.Logger,
) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	ev := ingest.Event{
		Type:      ingest.EventRunCompleted,
		RunID:     runID,
		Status:    status,
		Counts:    counts,
		Error:     errText,
		Timestamp: w.clock.Now().UTC().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, ev); err != nil {
		logger.Warn("publish run completion failed", zap.Error(err))
	}
}
