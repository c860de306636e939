package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

func newMockRunStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewRunStore(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestCreateRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockRunStore(t)
	mock.ExpectExec("INSERT INTO ingest_runs").
		WithArgs("run-1", "queued", "api", []byte(`["remotive","jobicy"]`), seenAt, "", []byte(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateRun(context.Background(), jobs.Run{
		ID:        "run-1",
		Status:    jobs.RunStatusQueued,
		Trigger:   jobs.TriggerAPI,
		Sources:   []jobs.Source{jobs.SourceRemotive, jobs.SourceJobicy},
		Submitted: seenAt,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockRunStore(t)
	mock.ExpectExec("UPDATE ingest_runs SET").
		WithArgs("run-1", "succeeded", "", []byte(`{"remotive":{"fetched":2,"stored":2,"created":2,"updated":0,"failed":0}}`), false, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE ingest_runs SET").
		WithArgs("missing", "running", "", []byte(nil), true, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateRun(context.Background(), "run-1", jobs.RunStatusSucceeded, "",
		map[jobs.Source]jobs.SourceCount{jobs.SourceRemotive: {Fetched: 2, Stored: 2, Created: 2}})
	require.NoError(t, err)

	err = store.UpdateRun(context.Background(), "missing", jobs.RunStatusRunning, "", nil)
	require.ErrorIs(t, err, jobs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func runRow(id string, submitted time.Time) []any {
	started := submitted.Add(time.Second)
	finished := submitted.Add(time.Minute)
	return []any{
		id, "succeeded", "schedule", []byte(`["remotive"]`), submitted, &started, &finished, "",
		[]byte(`{"remotive":{"fetched":1,"stored":1,"created":1,"updated":0,"failed":0}}`),
	}
}

var runCols = []string{"id", "status", "trigger", "sources", "submitted_at", "started_at", "finished_at", "error_text", "counts"}

func TestGetRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockRunStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ingest_runs WHERE id = $1")).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runCols).AddRow(runRow("run-1", seenAt)...))
	mock.ExpectQuery(regexp.QuoteMeta("FROM ingest_runs WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, jobs.RunStatusSucceeded, run.Status)
	require.Equal(t, jobs.TriggerSchedule, run.Trigger)
	require.Equal(t, []jobs.Source{jobs.SourceRemotive}, run.Sources)
	require.Equal(t, 1, run.Counts[jobs.SourceRemotive].Created)
	require.NotNil(t, run.Finished)

	_, err = store.GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, jobs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	store, mock := newMockRunStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY submitted_at DESC, id DESC LIMIT $1 OFFSET $2")).
		WithArgs(2, 0).
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow(runRow("run-2", seenAt.Add(time.Hour))...).
			AddRow(runRow("run-1", seenAt)...))

	runs, err := store.ListRuns(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockRunStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ingest_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS ingest_runs_submitted_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
