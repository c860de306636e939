// Package service implements the job service: transform, deduplicate by
// signature, and persist postings; list them back for the API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/salary"
	"github.com/JakeFAU/atlas-jobs/internal/telemetry"
	"github.com/JakeFAU/atlas-jobs/internal/transform"
)

// Outcome labels for ingest metrics.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeFailed  = "failed"
)

// Options tunes listing and bulk behavior.
type Options struct {
	ListLimit        int
	MaxAge           time.Duration
	StoreConcurrency int
}

// Service coordinates the transformer registry and the job store.
type Service struct {
	store        jobs.Store
	transformers *transform.Registry
	clock        jobs.Clock
	logger       *zap.Logger
	opts         Options
}

// StoreResult reports where a posting ended up.
type StoreResult struct {
	ID      string
	Created bool
}

// BulkResult aggregates a batch store.
type BulkResult struct {
	Stored     int
	Created    int
	Updated    int
	Failed     int
	CreatedIDs []string
}

// BackfillResult reports a salary backfill pass.
type BackfillResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
}

// New wires a Service. Zero options fall back to 100 results, a 30 day
// window and 8 concurrent stores.
func New(store jobs.Store, transformers *transform.Registry, clock jobs.Clock, logger *zap.Logger, opts Options) *Service {
	if opts.ListLimit <= 0 {
		opts.ListLimit = 100
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 30 * 24 * time.Hour
	}
	if opts.StoreConcurrency <= 0 {
		opts.StoreConcurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		transformers: transformers,
		clock:        clock,
		logger:       logger,
		opts:         opts,
	}
}

// StoreFromAPI transforms one raw source payload and stores it.
func (s *Service) StoreFromAPI(ctx context.Context, source jobs.Source, raw []byte) (StoreResult, error) {
	rec, err := s.transformers.For(source).Transform(raw)
	if err != nil {
		return StoreResult{}, fmt.Errorf("transform %s job: %w", source, err)
	}
	return s.StoreRecord(ctx, rec)
}

// StoreRecord inserts rec or merges it into the record that already carries
// its signature.
func (s *Service) StoreRecord(ctx context.Context, rec jobs.Record) (StoreResult, error) {
	if rec.JobSignature == "" {
		return StoreResult{}, fmt.Errorf("%w: missing signature", jobs.ErrInvalidPayload)
	}
	source := jobs.SourceOther
	if len(rec.Sources) > 0 {
		source = rec.Sources[0]
	}

	existing, err := s.store.FindBySignature(ctx, rec.JobSignature)
	switch {
	case err == nil:
		return s.merge(ctx, existing, rec, source)
	case !errors.Is(err, jobs.ErrNotFound):
		return StoreResult{}, fmt.Errorf("find by signature: %w", err)
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		if !errors.Is(err, jobs.ErrDuplicate) {
			return StoreResult{}, fmt.Errorf("insert job: %w", err)
		}
		// Lost an insert race with a concurrent writer; fold into the winner.
		existing, findErr := s.store.FindBySignature(ctx, rec.JobSignature)
		if findErr != nil {
			return StoreResult{}, fmt.Errorf("find after duplicate: %w", findErr)
		}
		return s.merge(ctx, existing, rec, source)
	}
	s.observeSalary(rec)
	return StoreResult{ID: rec.ID, Created: true}, nil
}

func (s *Service) merge(ctx context.Context, existing, incoming jobs.Record, source jobs.Source) (StoreResult, error) {
	merged := jobs.Merge(existing, incoming, source, s.clock.Now())
	if err := s.store.Update(ctx, merged); err != nil {
		return StoreResult{}, fmt.Errorf("update job: %w", err)
	}
	return StoreResult{ID: existing.ID, Created: false}, nil
}

func (s *Service) observeSalary(rec jobs.Record) {
	if rec.SalaryRange == nil {
		return
	}
	// Hourly, daily and weekly rates have no reliable yearly equivalent.
	switch rec.SalaryRange.Period {
	case salary.PeriodYear, salary.PeriodMonth, "":
	default:
		return
	}
	lo, _ := salary.Annualize(rec.SalaryRange)
	telemetry.ObserveSalary(rec.SalaryRange.Currency, lo)
}

// BulkStoreFromAPI stores a batch concurrently. Individual failures are
// logged and counted; only context cancellation aborts the batch.
func (s *Service) BulkStoreFromAPI(ctx context.Context, source jobs.Source, raws [][]byte) (BulkResult, error) {
	var (
		mu     sync.Mutex
		result BulkResult
	)
	logger := s.logger.With(zap.String("source", string(source)))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.StoreConcurrency)
	for i, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := s.StoreFromAPI(ctx, source, raw)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				telemetry.ObserveIngested(string(source), OutcomeFailed)
				logger.Warn("store job failed", zap.Int("index", i), zap.Error(err))
				return nil
			}
			result.Stored++
			if res.Created {
				result.Created++
				result.CreatedIDs = append(result.CreatedIDs, res.ID)
				telemetry.ObserveIngested(string(source), OutcomeCreated)
			} else {
				result.Updated++
				telemetry.ObserveIngested(string(source), OutcomeUpdated)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("bulk store %s: %w", source, err)
	}
	return result, nil
}

// List returns records seen within the freshness window, newest first.
func (s *Service) List(ctx context.Context, q jobs.Query) ([]jobs.Record, error) {
	if q.Limit <= 0 {
		q.Limit = s.opts.ListLimit
	}
	if q.Since.IsZero() {
		q.Since = s.clock.Now().Add(-s.opts.MaxAge)
	}
	recs, err := s.store.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return recs, nil
}

// Get fetches a record by ID.
func (s *Service) Get(ctx context.Context, id string) (jobs.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return jobs.Record{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec, nil
}

// EnsureIndexes prepares the backing store.
func (s *Service) EnsureIndexes(ctx context.Context) error {
	if err := s.store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}

// BackfillSalaries parses a range for every record that has salary text but
// no structured range.
func (s *Service) BackfillSalaries(ctx context.Context) (BackfillResult, error) {
	recs, err := s.store.List(ctx, jobs.Query{})
	if err != nil {
		return BackfillResult{}, fmt.Errorf("list for backfill: %w", err)
	}
	var res BackfillResult
	for _, rec := range recs {
		if rec.Salary == "" || rec.SalaryRange != nil {
			continue
		}
		res.Scanned++
		parsed := salary.Parse(rec.Salary)
		if parsed == nil {
			continue
		}
		rec.SalaryRange = parsed
		rec.UpdatedAt = s.clock.Now()
		if err := s.store.Update(ctx, rec); err != nil {
			return res, fmt.Errorf("backfill %s: %w", rec.ID, err)
		}
		res.Updated++
		s.logger.Debug("salary backfilled", zap.String("id", rec.ID), zap.String("raw", rec.Salary))
	}
	s.logger.Info("salary backfill complete", zap.Int("scanned", res.Scanned), zap.Int("updated", res.Updated))
	return res, nil
}
