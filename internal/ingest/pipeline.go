// Package ingest pulls postings from the source APIs into the job store.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/service"
	"github.com/JakeFAU/atlas-jobs/internal/sources"
	"github.com/JakeFAU/atlas-jobs/internal/telemetry"
)

// Event types published during ingest.
const (
	EventJobCreated   = "job.created"
	EventRunCompleted = "run.completed"
)

// Event is the notification payload for both event types.
type Event struct {
	Type      string                           `json:"type"`
	RunID     string                           `json:"run_id"`
	Source    jobs.Source                      `json:"source,omitempty"`
	JobID     string                           `json:"job_id,omitempty"`
	Status    jobs.RunStatus                   `json:"status,omitempty"`
	Counts    map[jobs.Source]jobs.SourceCount `json:"counts,omitempty"`
	Error     string                           `json:"error,omitempty"`
	Timestamp string                           `json:"timestamp"`
}

// EventType names the event for message attributes.
func (e Event) EventType() string { return e.Type }

// Storer persists a batch of raw postings.
type Storer interface {
	BulkStoreFromAPI(ctx context.Context, source jobs.Source, raws [][]byte) (service.BulkResult, error)
}

// Config controls archiving, notification and pacing.
type Config struct {
	BlobPrefix  string
	Topic       string
	SourceDelay time.Duration
}

// Pipeline fetches, archives and stores each source of a run in turn.
type Pipeline struct {
	clients   map[jobs.Source]sources.Client
	storer    Storer
	blobs     jobs.BlobStore
	publisher jobs.Publisher
	hasher    jobs.Hasher
	clock     jobs.Clock
	cfg       Config
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewPipeline wires a Pipeline. blobs and publisher may be nil to skip
// archiving and notifications.
func NewPipeline(
	clients map[jobs.Source]sources.Client,
	storer Storer,
	blobs jobs.BlobStore,
	publisher jobs.Publisher,
	hasher jobs.Hasher,
	clock jobs.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		clients:   clients,
		storer:    storer,
		blobs:     blobs,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sources lists the sources this pipeline can fetch, in ingest order.
func (p *Pipeline) Sources() []jobs.Source {
	out := make([]jobs.Source, 0, len(p.clients))
	for _, src := range jobs.IngestSources {
		if _, ok := p.clients[src]; ok {
			out = append(out, src)
		}
	}
	return out
}

// Run ingests srcs in order and returns a count per source. A failing
// source is recorded in its count; only cancellation returns an error.
func (p *Pipeline) Run(ctx context.Context, runID string, srcs []jobs.Source) (map[jobs.Source]jobs.SourceCount, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ingest.run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID), attribute.Int("sources", len(srcs)))

	counts := make(map[jobs.Source]jobs.SourceCount, len(srcs))
	for i, src := range srcs {
		if i > 0 {
			if err := p.sleep(ctx, p.cfg.SourceDelay); err != nil {
				return counts, fmt.Errorf("run %s: %w", runID, err)
			}
		}
		count, err := p.runSource(ctx, runID, src)
		counts[src] = count
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return counts, fmt.Errorf("run %s: %w", runID, err)
		}
	}
	return counts, nil
}

func (p *Pipeline) runSource(ctx context.Context, runID string, src jobs.Source) (jobs.SourceCount, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ingest.source")
	defer span.End()
	span.SetAttributes(attribute.String("source", string(src)))
	logger := p.logger.With(zap.String("run_id", runID), zap.String("source", string(src)))

	var count jobs.SourceCount
	client, ok := p.clients[src]
	if !ok {
		count.Error = "source not enabled"
		logger.Warn("skipping source", zap.String("reason", count.Error))
		return count, nil
	}

	batch, err := client.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		count.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		logger.Error("source fetch failed", zap.Error(err))
		return count, nil
	}
	count.Fetched = len(batch.Items)
	span.SetAttributes(attribute.Int("fetched", count.Fetched), attribute.Int("pages", len(batch.Pages)))

	p.archive(ctx, runID, src, batch.Pages, logger)

	res, err := p.storer.BulkStoreFromAPI(ctx, src, batch.Items)
	count.Stored, count.Created, count.Updated, count.Failed = res.Stored, res.Created, res.Updated, res.Failed
	if err != nil {
		return count, err
	}
	logger.Info("source ingested",
		zap.Int("fetched", count.Fetched),
		zap.Int("created", count.Created),
		zap.Int("updated", count.Updated),
		zap.Int("failed", count.Failed))

	for _, id := range res.CreatedIDs {
		p.publish(ctx, Event{Type: EventJobCreated, RunID: runID, Source: src, JobID: id}, logger)
	}
	return count, nil
}

// archive writes each raw page. Failures are logged; ingest continues.
func (p *Pipeline) archive(ctx context.Context, runID string, src jobs.Source, pages [][]byte, logger *zap.Logger) {
	if p.blobs == nil || p.hasher == nil {
		return
	}
	for _, page := range pages {
		digest, err := p.hasher.Hash(page)
		if err != nil {
			logger.Warn("hash page failed", zap.Error(err))
			continue
		}
		path := ArchivePath(p.cfg.BlobPrefix, src, runID, digest)
		uri, err := p.blobs.PutObject(ctx, path, "application/json", page)
		if err != nil {
			logger.Warn("archive page failed", zap.String("path", path), zap.Error(err))
			continue
		}
		logger.Debug("page archived", zap.String("uri", uri), zap.Int("bytes", len(page)))
	}
}

// ArchivePath returns <prefix>/<source>/<runID>/<digest>.json.
func ArchivePath(prefix string, src jobs.Source, runID, digest string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s/%s.json", src, runID, digest)
	}
	return fmt.Sprintf("%s/%s/%s/%s.json", prefix, src, runID, digest)
}

func (p *Pipeline) publish(ctx context.Context, ev Event, logger *zap.Logger) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	ev.Timestamp = p.clock.Now().UTC().Format(time.RFC3339)
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, ev); err != nil {
		logger.Warn("publish event failed", zap.String("type", ev.Type), zap.Error(err))
	}
}
