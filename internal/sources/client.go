// Package sources fetches raw job payloads from the upstream job APIs.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/atlas-jobs/internal/config"
	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/telemetry"
)

// Batch is everything one source returned during a run.
type Batch struct {
	Source jobs.Source
	// Pages holds each raw response body, for archiving.
	Pages [][]byte
	// Items holds each raw job object, for transforming.
	Items [][]byte
}

// Client fetches the current postings of one source.
type Client interface {
	Source() jobs.Source
	Fetch(ctx context.Context) (Batch, error)
}

// Limiter throttles calls per host and honors server-requested pauses.
type Limiter interface {
	jobs.Limiter
	Pause(url string, d time.Duration)
}

// ErrUnexpectedStatus marks a non-success response from a source API.
var ErrUnexpectedStatus = errors.New("unexpected status")

// RetryConfig bounds retries of transient failures.
type RetryConfig struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
}

// RetryFromConfig converts the HTTP section of the service config.
func RetryFromConfig(cfg config.HTTPConfig) RetryConfig {
	return RetryConfig{
		MaxRetries: cfg.MaxRetries,
		Initial:    time.Duration(cfg.BackoffInitialMs) * time.Millisecond,
		Max:        time.Duration(cfg.BackoffMaxMs) * time.Millisecond,
	}
}

// requester is the transport shared by every client.
type requester struct {
	source  jobs.Source
	fetcher jobs.Fetcher
	limiter Limiter
	retry   RetryConfig
	logger  *zap.Logger
}

// do performs req, retrying transport errors, 429 and 5xx responses with
// exponential backoff. Other statuses are returned to the caller.
func (r *requester) do(ctx context.Context, req jobs.FetchRequest) (jobs.FetchResponse, error) {
	attempt := 0
	op := func() (jobs.FetchResponse, error) {
		attempt++
		if err := r.limiter.Wait(ctx, req.URL); err != nil {
			return jobs.FetchResponse{}, backoff.Permanent(err)
		}
		start := time.Now()
		resp, err := r.fetcher.Fetch(ctx, req)
		if err == nil && retryableStatus(resp.StatusCode) {
			err = fmt.Errorf("%w %d from %s", ErrUnexpectedStatus, resp.StatusCode, r.source)
		}
		telemetry.ObserveSourceFetch(string(r.source), time.Since(start), err)
		if err != nil {
			if ctx.Err() != nil {
				return jobs.FetchResponse{}, backoff.Permanent(err)
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				if wait := retryAfter(resp.Headers); wait > 0 {
					r.limiter.Pause(req.URL, wait)
				}
			}
			return jobs.FetchResponse{}, err
		}
		return resp, nil
	}

	eb := backoff.NewExponentialBackOff()
	if r.retry.Initial > 0 {
		eb.InitialInterval = r.retry.Initial
	}
	if r.retry.Max > 0 {
		eb.MaxInterval = r.retry.Max
	}
	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(max(r.retry.MaxRetries, 0)+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("source request failed; retrying",
				zap.String("url", req.URL),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		return jobs.FetchResponse{}, fmt.Errorf("fetch %s: %w", r.source, err)
	}
	return resp, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// extractItems returns the raw objects of the array at path in body.
func extractItems(source jobs.Source, body []byte, path string) ([][]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s response is not valid JSON", source)
	}
	arr := gjson.GetBytes(body, path)
	if !arr.IsArray() {
		return nil, fmt.Errorf("%s response has no %s array", source, path)
	}
	items := make([][]byte, 0, len(arr.Array()))
	arr.ForEach(func(_, item gjson.Result) bool {
		items = append(items, []byte(item.Raw))
		return true
	})
	return items, nil
}

func checkOK(source jobs.Source, resp jobs.FetchResponse) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w %d from %s", ErrUnexpectedStatus, resp.StatusCode, source)
	}
	return nil
}

// NewClients builds a client for every enabled source.
func NewClients(cfg config.Config, fetcher jobs.Fetcher, limiter Limiter, logger *zap.Logger) map[jobs.Source]Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := RetryFromConfig(cfg.HTTP)
	mk := func(src jobs.Source) requester {
		return requester{
			source:  src,
			fetcher: fetcher,
			limiter: limiter,
			retry:   retry,
			logger:  logger.With(zap.String("source", string(src))),
		}
	}
	clients := make(map[jobs.Source]Client)
	for _, src := range cfg.EnabledSources() {
		switch src {
		case jobs.SourceRemotive:
			clients[src] = &Remotive{requester: mk(src), url: cfg.Sources.Remotive.URL}
		case jobs.SourceJobicy:
			clients[src] = &Jobicy{requester: mk(src), url: cfg.Sources.Jobicy.URL}
		case jobs.SourceTheirStack:
			clients[src] = NewTheirStack(mk(src), cfg.Sources.TheirStack)
		}
	}
	return clients
}
