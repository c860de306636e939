package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/atlas-jobs/internal/config"
	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// TheirStack pages through the TheirStack job search API.
type TheirStack struct {
	requester
	url        string
	apiKey     string
	pageSize   int
	maxPages   int
	maxAgeDays int
}

type orderBy struct {
	Desc  bool   `json:"desc"`
	Field string `json:"field"`
}

type theirStackSearch struct {
	PostedAtMaxAgeDays  int       `json:"posted_at_max_age_days"`
	OrderBy             []orderBy `json:"order_by"`
	Page                int       `json:"page"`
	Limit               int       `json:"limit"`
	IncludeTotalResults bool      `json:"include_total_results"`
	Remote              bool      `json:"remote"`
}

// NewTheirStack builds the client. Page size and age default to 100 and 30 days.
func NewTheirStack(r requester, cfg config.SourceConfig) *TheirStack {
	c := &TheirStack{
		requester:  r,
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		pageSize:   cfg.PageSize,
		maxPages:   cfg.MaxPages,
		maxAgeDays: cfg.MaxAgeDays,
	}
	if c.pageSize <= 0 {
		c.pageSize = 100
	}
	if c.maxAgeDays <= 0 {
		c.maxAgeDays = 30
	}
	return c
}

// Source implements Client.
func (c *TheirStack) Source() jobs.Source { return jobs.SourceTheirStack }

// Fetch implements Client. Paging stops at a short page, at max_pages, or
// when the plan refuses access (HTTP 402), which yields what was read so far.
func (c *TheirStack) Fetch(ctx context.Context) (Batch, error) {
	batch := Batch{Source: jobs.SourceTheirStack}
	if c.apiKey == "" {
		c.logger.Warn("theirstack api key not configured; skipping source")
		return batch, nil
	}

	for page := 0; c.maxPages <= 0 || page < c.maxPages; page++ {
		body, err := json.Marshal(c.search(page))
		if err != nil {
			return Batch{}, fmt.Errorf("encode theirstack search: %w", err)
		}
		resp, err := c.do(ctx, jobs.FetchRequest{
			Method: http.MethodPost,
			URL:    c.url,
			Headers: http.Header{
				"Authorization": {"Bearer " + c.apiKey},
				"Content-Type":  {"application/json"},
			},
			Body: body,
		})
		if err != nil {
			return Batch{}, err
		}
		if resp.StatusCode == http.StatusPaymentRequired {
			c.logger.Warn("theirstack plan does not allow access; stopping", zap.Int("page", page))
			break
		}
		if err := checkOK(c.source, resp); err != nil {
			return Batch{}, err
		}
		items, err := extractItems(c.source, resp.Body, "data")
		if err != nil {
			return Batch{}, err
		}
		batch.Pages = append(batch.Pages, resp.Body)
		batch.Items = append(batch.Items, items...)

		if len(items) == 0 {
			if total := gjson.GetBytes(resp.Body, "metadata.total_results").Int(); total > 0 {
				c.logger.Warn("theirstack returned no rows for a non-empty result set; plan limitation",
					zap.Int64("total_results", total))
			}
			break
		}
		c.logger.Debug("fetched theirstack page", zap.Int("page", page), zap.Int("jobs", len(items)))
		if len(items) < c.pageSize {
			break
		}
	}
	c.logger.Info("fetched theirstack jobs", zap.Int("jobs", len(batch.Items)), zap.Int("pages", len(batch.Pages)))
	return batch, nil
}

func (c *TheirStack) search(page int) theirStackSearch {
	return theirStackSearch{
		PostedAtMaxAgeDays: c.maxAgeDays,
		OrderBy: []orderBy{
			{Desc: true, Field: "date_posted"},
			{Desc: true, Field: "discovered_at"},
		},
		Page:                page,
		Limit:               c.pageSize,
		IncludeTotalResults: true,
		Remote:              true,
	}
}
