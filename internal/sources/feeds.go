package sources

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// Remotive fetches the public Remotive feed in a single request.
type Remotive struct {
	requester
	url string
}

// Source implements Client.
func (c *Remotive) Source() jobs.Source { return jobs.SourceRemotive }

// Fetch implements Client.
func (c *Remotive) Fetch(ctx context.Context) (Batch, error) {
	return fetchFeed(ctx, &c.requester, c.url)
}

// Jobicy fetches the public Jobicy v2 feed in a single request.
type Jobicy struct {
	requester
	url string
}

// Source implements Client.
func (c *Jobicy) Source() jobs.Source { return jobs.SourceJobicy }

// Fetch implements Client.
func (c *Jobicy) Fetch(ctx context.Context) (Batch, error) {
	return fetchFeed(ctx, &c.requester, c.url)
}

// fetchFeed reads a `{"jobs":[...]}` feed.
func fetchFeed(ctx context.Context, r *requester, url string) (Batch, error) {
	resp, err := r.do(ctx, jobs.FetchRequest{Method: http.MethodGet, URL: url})
	if err != nil {
		return Batch{}, err
	}
	if err := checkOK(r.source, resp); err != nil {
		return Batch{}, err
	}
	items, err := extractItems(r.source, resp.Body, "jobs")
	if err != nil {
		return Batch{}, err
	}
	r.logger.Info("fetched source feed", zap.Int("jobs", len(items)), zap.Duration("duration", resp.Duration))
	return Batch{Source: r.source, Pages: [][]byte{resp.Body}, Items: items}, nil
}
