package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/atlas-jobs/internal/filter"
	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/salary"
	"github.com/JakeFAU/atlas-jobs/internal/settings"
)

const (
	maxListLimit      = 500
	salaryCheckLimit  = 10
	listCacheControl  = "public, s-maxage=60, stale-while-revalidate=120"
	userIDHeader      = "X-User-ID"
	errFetchJobs      = "Failed to fetch jobs"
	errSalaryCheck    = "Failed to check salary data"
	errInvalidFilters = "Invalid settings object"
)

// listJobs handles GET /api/jobs?limit=&source=&category=&jobType=&remote=&featured=.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q, featured, err := parseJobQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.deps.Jobs.List(r.Context(), q)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errFetchJobs)
		return
	}
	views := jobs.ToViews(recs)
	if featured {
		views = filter.Apply(views, s.deps.Settings.Get(r.Context(), userID(r)), s.now())
	}
	w.Header().Set("Cache-Control", listCacheControl)
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

// getJob handles GET /api/jobs/{id}.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.deps.Jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, errFetchJobs)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": jobs.ToView(rec)})
}

type salaryCheckResult struct {
	ID                   string        `json:"id"`
	Title                string        `json:"title"`
	Company              string        `json:"company"`
	RawSalary            string        `json:"rawSalary"`
	HasSalaryRangeInDB   bool          `json:"hasSalaryRangeInDb"`
	SalaryRangeInDB      *salary.Range `json:"salaryRangeInDb"`
	ParsedSalary         *salary.Range `json:"parsedSalary"`
	HasSalaryRangeInView bool          `json:"hasSalaryRangeInView"`
	SalaryRangeInView    *salary.Range `json:"salaryRangeInView"`
}

// salaryCheck handles GET /api/debug/salary-check. It compares stored salary
// data with a fresh parse for the most recent postings.
func (s *Server) salaryCheck(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Jobs.List(r.Context(), jobs.Query{Limit: salaryCheckLimit})
	if err != nil {
		s.logger.Error("salary check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errSalaryCheck)
		return
	}
	results := make([]salaryCheckResult, 0, len(recs))
	for _, rec := range recs {
		res := salaryCheckResult{
			ID:                 rec.ID,
			Title:              rec.Title,
			Company:            rec.Company,
			RawSalary:          rec.Salary,
			HasSalaryRangeInDB: rec.SalaryRange != nil,
			SalaryRangeInDB:    rec.SalaryRange,
		}
		if rec.SalaryRange == nil && rec.Salary != "" {
			res.ParsedSalary = salary.Parse(rec.Salary)
		}
		view := jobs.ToView(rec)
		res.HasSalaryRangeInView = view.SalaryRange != nil
		res.SalaryRangeInView = view.SalaryRange
		results = append(results, res)
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(recs),
		"results": results,
	})
}

func parseJobQuery(r *http.Request) (jobs.Query, bool, error) {
	values := r.URL.Query()
	var q jobs.Query
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return jobs.Query{}, false, fmt.Errorf("invalid limit %q", raw)
		}
		q.Limit = min(limit, maxListLimit)
	}
	if raw := strings.TrimSpace(values.Get("source")); raw != "" {
		src, err := jobs.ParseSource(raw)
		if err != nil {
			return jobs.Query{}, false, err
		}
		q.Source = src
	}
	q.Category = strings.TrimSpace(values.Get("category"))
	q.JobType = strings.TrimSpace(values.Get("jobType"))
	if raw := strings.TrimSpace(values.Get("remote")); raw != "" {
		remote, err := strconv.ParseBool(raw)
		if err != nil {
			return jobs.Query{}, false, fmt.Errorf("invalid remote %q", raw)
		}
		q.Remote = &remote
	}
	featured := false
	if raw := strings.TrimSpace(values.Get("featured")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return jobs.Query{}, false, fmt.Errorf("invalid featured %q", raw)
		}
		featured = v
	}
	return q, featured, nil
}

func userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(userIDHeader)); id != "" {
		return id
	}
	return settings.DefaultUserID
}
