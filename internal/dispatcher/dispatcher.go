// Package dispatcher runs the worker pool over the run queue.
package dispatcher

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Loop is a worker consuming the queue until its context ends.
type Loop interface {
	Run(ctx context.Context)
}

type closer interface {
	Close()
}

// Dispatcher fans queue work out to a pool of workers.
type Dispatcher struct {
	queue   closer
	workers []Loop
	logger  *zap.Logger
}

// New creates a Dispatcher. queue may be nil; when set it is closed on
// shutdown so late submissions fail fast.
func New(queue closer, workers []Loop, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{queue: queue, workers: workers, logger: logger}
}

// Size reports the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	var g errgroup.Group
	for i, w := range d.workers {
		g.Go(func() error {
			d.logger.Debug("worker started", zap.Int("worker", i))
			w.Run(ctx)
			d.logger.Debug("worker stopped", zap.Int("worker", i))
			return nil
		})
	}
	d.logger.Info("dispatcher running", zap.Int("workers", len(d.workers)))

	<-ctx.Done()
	if d.queue != nil {
		d.queue.Close()
	}
	return g.Wait()
}
