package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// RunStore implements jobs.RunStore on an ingest_runs table.
type RunStore struct {
	pool  Pool
	table string
}

// NewRunStore wraps an open pool.
func NewRunStore(pool Pool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "ingest_runs")
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the runs table when missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	trigger TEXT NOT NULL,
	sources JSONB NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	error_text TEXT NOT NULL DEFAULT '',
	counts JSONB
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_submitted_idx ON %[1]s (submitted_at DESC)`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure %s schema: %w", s.table, err)
		}
	}
	return nil
}

// CreateRun inserts a new run row.
func (s *RunStore) CreateRun(ctx context.Context, run jobs.Run) error {
	sources, err := json.Marshal(run.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	counts, err := marshalCounts(run.Counts)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, status, trigger, sources, submitted_at, error_text, counts)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.table)
	if _, err := s.pool.Exec(ctx, query,
		run.ID, string(run.Status), string(run.Trigger), sources, run.Submitted, run.ErrorText, counts,
	); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateRun sets status, error text and counts. started_at is stamped on the
// first running transition and finished_at on a terminal one. Nil counts keep
// the stored value.
func (s *RunStore) UpdateRun(
	ctx context.Context,
	runID string,
	status jobs.RunStatus,
	errText string,
	counts map[jobs.Source]jobs.SourceCount,
) error {
	encoded, err := marshalCounts(counts)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET
	status = $2,
	error_text = $3,
	counts = COALESCE($4, counts),
	started_at = CASE WHEN $5 THEN COALESCE(started_at, now()) ELSE started_at END,
	finished_at = CASE WHEN $6 THEN now() ELSE finished_at END
WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		runID, string(status), errText, encoded,
		status == jobs.RunStatusRunning, status.Terminal(),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, jobs.ErrNotFound)
	}
	return nil
}

const runColumns = `id, status, trigger, sources, submitted_at, started_at, finished_at, error_text, counts`

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (jobs.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, runColumns, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobs.Run{}, fmt.Errorf("run %s: %w", runID, jobs.ErrNotFound)
		}
		return jobs.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit, offset int) ([]jobs.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY submitted_at DESC, id DESC LIMIT $1 OFFSET $2`, runColumns, s.table)
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []jobs.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (jobs.Run, error) {
	var (
		run             jobs.Run
		status, trigger string
		sources, counts []byte
	)
	if err := row.Scan(
		&run.ID,
		&status,
		&trigger,
		&sources,
		&run.Submitted,
		&run.Started,
		&run.Finished,
		&run.ErrorText,
		&counts,
	); err != nil {
		return jobs.Run{}, err
	}
	run.Status = jobs.RunStatus(status)
	run.Trigger = jobs.Trigger(trigger)
	if err := json.Unmarshal(sources, &run.Sources); err != nil {
		return jobs.Run{}, fmt.Errorf("decode sources: %w", err)
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &run.Counts); err != nil {
			return jobs.Run{}, fmt.Errorf("decode counts: %w", err)
		}
	}
	return run, nil
}

func marshalCounts(counts map[jobs.Source]jobs.SourceCount) ([]byte, error) {
	if counts == nil {
		return nil, nil
	}
	b, err := json.Marshal(counts)
	if err != nil {
		return nil, fmt.Errorf("marshal counts: %w", err)
	}
	return b, nil
}
