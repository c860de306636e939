package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// JobStore keeps each record as a jsonb document next to the columns that
// are queried directly.
type JobStore struct {
	pool  Pool
	table string
}

// NewJobStore wraps an open pool.
func NewJobStore(pool Pool, table string) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "jobs")
	if err != nil {
		return nil, err
	}
	return &JobStore{pool: pool, table: table}, nil
}

// EnsureIndexes creates the table and its indexes when missing.
func (s *JobStore) EnsureIndexes(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	job_signature TEXT NOT NULL,
	first_seen TIMESTAMPTZ NOT NULL,
	last_seen TIMESTAMPTZ NOT NULL,
	doc JSONB NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_signature_idx ON %[1]s (job_signature)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_last_seen_idx ON %[1]s (last_seen DESC)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_sources_idx ON %[1]s USING GIN ((doc->'sources'))`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_category_idx ON %[1]s ((doc->>'category'))`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_job_type_idx ON %[1]s ((doc->>'jobType'))`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_remote_idx ON %[1]s (((doc->>'remote')::boolean))`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure %s schema: %w", s.table, err)
		}
	}
	return nil
}

// FindBySignature implements jobs.Store.
func (s *JobStore) FindBySignature(ctx context.Context, sig string) (jobs.Record, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE job_signature = $1`, s.table)
	return s.queryOne(ctx, query, sig)
}

// Get implements jobs.Store.
func (s *JobStore) Get(ctx context.Context, id string) (jobs.Record, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, s.table)
	return s.queryOne(ctx, query, id)
}

func (s *JobStore) queryOne(ctx context.Context, query string, arg any) (jobs.Record, error) {
	var doc []byte
	if err := s.pool.QueryRow(ctx, query, arg).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobs.Record{}, jobs.ErrNotFound
		}
		return jobs.Record{}, fmt.Errorf("query job: %w", err)
	}
	return decodeRecord(doc)
}

// Insert implements jobs.Store.
func (s *JobStore) Insert(ctx context.Context, rec jobs.Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, job_signature, first_seen, last_seen, doc)
VALUES ($1, $2, $3, $4, $5)`, s.table)
	if _, err := s.pool.Exec(ctx, query, rec.ID, rec.JobSignature, rec.FirstSeen, rec.LastSeen, doc); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert %q: %w", rec.JobSignature, jobs.ErrDuplicate)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update rewrites the document of the row holding rec's signature. The
// stored id and firstSeen are kept.
func (s *JobStore) Update(ctx context.Context, rec jobs.Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s
SET doc = $2::jsonb || jsonb_build_object('id', id, 'firstSeen', doc->'firstSeen'),
	last_seen = $3
WHERE job_signature = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, rec.JobSignature, doc, rec.LastSeen)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %q: %w", rec.JobSignature, jobs.ErrNotFound)
	}
	return nil
}

// List implements jobs.Store with the filters pushed into SQL.
func (s *JobStore) List(ctx context.Context, q jobs.Query) ([]jobs.Record, error) {
	var (
		conds []string
		args  []any
	)
	where := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !q.Since.IsZero() {
		where("last_seen >= $%d", q.Since)
	}
	if q.Source != "" {
		where("doc->'sources' ? $%d", string(q.Source))
	}
	if q.Category != "" {
		where("doc->>'category' = $%d", q.Category)
	}
	if q.JobType != "" {
		where("doc->>'jobType' = $%d", q.JobType)
	}
	if q.Remote != nil {
		where("(doc->>'remote')::boolean = $%d", *q.Remote)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT doc FROM %s", s.table)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY last_seen DESC, id")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []jobs.Record{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		rec, err := decodeRecord(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return out, nil
}

// Close releases the pool.
func (s *JobStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func decodeRecord(doc []byte) (jobs.Record, error) {
	var rec jobs.Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return jobs.Record{}, fmt.Errorf("decode job document: %w", err)
	}
	return rec, nil
}
