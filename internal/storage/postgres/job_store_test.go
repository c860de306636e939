package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/salary"
)

var seenAt = time.Unix(1700000000, 0).UTC()

func newMockJobStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewJobStore(mock, "jobs")
	require.NoError(t, err)
	return store, mock
}

func sampleRecord() jobs.Record {
	return jobs.Record{
		ID:           "job-1",
		Title:        "Go Engineer",
		Company:      "Acme",
		Salary:       "$120k",
		SalaryRange:  &salary.Range{Min: 120000, Currency: "USD", Period: salary.PeriodYear},
		JobSignature: "acme__go engineer",
		Remote:       true,
		Sources:      []jobs.Source{jobs.SourceRemotive},
		SourceURLs:   map[jobs.Source]string{jobs.SourceRemotive: "https://remotive/1"},
		SourceIDs:    map[jobs.Source]string{jobs.SourceRemotive: "1"},
		Benefits:     []string{},
		FirstSeen:    seenAt,
		LastSeen:     seenAt,
	}
}

func TestNewJobStoreRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewJobStore(mock, "jobs; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")
	_, err = NewJobStore(nil, "")
	require.Error(t, err)
}

func TestInsertWritesDocument(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	rec := sampleRecord()
	doc, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(rec.ID, rec.JobSignature, rec.FirstSeen, rec.LastSeen, doc).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Insert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMapsUniqueViolation(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	err := store.Insert(context.Background(), sampleRecord())
	require.ErrorIs(t, err, jobs.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBySignature(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	rec := sampleRecord()
	doc, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT doc FROM jobs WHERE job_signature = $1")).
		WithArgs(rec.JobSignature).
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT doc FROM jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := store.FindBySignature(context.Background(), rec.JobSignature)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, jobs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateKeepsIdentity(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	rec := sampleRecord()

	mock.ExpectExec(regexp.QuoteMeta("jsonb_build_object('id', id, 'firstSeen', doc->'firstSeen')")).
		WithArgs(rec.JobSignature, pgxmock.AnyArg(), rec.LastSeen).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE jobs").
		WithArgs("gone", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.Update(context.Background(), rec))

	rec.JobSignature = "gone"
	require.ErrorIs(t, store.Update(context.Background(), rec), jobs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBuildsFilters(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	rec := sampleRecord()
	doc, err := json.Marshal(rec)
	require.NoError(t, err)
	remote := true

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT doc FROM jobs WHERE last_seen >= $1 AND doc->'sources' ? $2 AND doc->>'jobType' = $3 "+
			"AND (doc->>'remote')::boolean = $4 ORDER BY last_seen DESC, id LIMIT $5")).
		WithArgs(seenAt, "remotive", "full_time", true, 10).
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))

	got, err := store.List(context.Background(), jobs.Query{
		Since:   seenAt,
		Source:  jobs.SourceRemotive,
		JobType: "full_time",
		Remote:  &remote,
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, rec.ID, got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnfilteredAndErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT doc FROM jobs ORDER BY last_seen DESC, id")).
		WillReturnRows(pgxmock.NewRows([]string{"doc"}))
	mock.ExpectQuery("SELECT doc FROM jobs").
		WillReturnError(errors.New("conn reset"))

	got, err := store.List(context.Background(), jobs.Query{})
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = store.List(context.Background(), jobs.Query{})
	require.ErrorContains(t, err, "conn reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureIndexesCoversQueryFilters(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	created := pgxmock.NewResult("CREATE", 0)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").WillReturnResult(created)
	mock.ExpectExec("CREATE UNIQUE INDEX IF NOT EXISTS jobs_signature_idx").WillReturnResult(created)
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS jobs_last_seen_idx").WillReturnResult(created)
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS jobs_sources_idx").WillReturnResult(created)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS jobs_category_idx ON jobs ((doc->>'category'))`)).WillReturnResult(created)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS jobs_job_type_idx ON jobs ((doc->>'jobType'))`)).WillReturnResult(created)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS jobs_remote_idx ON jobs (((doc->>'remote')::boolean))`)).WillReturnResult(created)

	require.NoError(t, store.EnsureIndexes(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureIndexes(t *testing.T) {
	t.Parallel()

	store, mock := newMockJobStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE UNIQUE INDEX IF NOT EXISTS jobs_signature_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS jobs_last_seen_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS jobs_sources_idx").WillReturnError(errors.New("permission denied"))

	err := store.EnsureIndexes(context.Background())
	require.ErrorContains(t, err, "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}
