package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

func record(id, sig string, lastSeen time.Time) jobs.Record {
	return jobs.Record{
		ID:           id,
		Title:        "Engineer",
		Company:      "Acme",
		JobSignature: sig,
		Sources:      []jobs.Source{jobs.SourceRemotive},
		SourceURLs:   map[jobs.Source]string{jobs.SourceRemotive: "https://r/" + id},
		FirstSeen:    lastSeen,
		LastSeen:     lastSeen,
	}
}

func TestJobStoreInsertFindUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, record("a", "acme__engineer", now)))
	require.ErrorIs(t, store.Insert(ctx, record("b", "acme__engineer", now)), jobs.ErrDuplicate)

	found, err := store.FindBySignature(ctx, "acme__engineer")
	require.NoError(t, err)
	require.Equal(t, "a", found.ID)

	found.SourceURLs[jobs.SourceRemotive] = "mutated"
	again, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "https://r/a", again.SourceURLs[jobs.SourceRemotive])

	updated := again.Clone()
	updated.ID = "ignored"
	updated.FirstSeen = now.Add(time.Hour)
	updated.Description = "fresh"
	require.NoError(t, store.Update(ctx, updated))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "fresh", got.Description)
	require.Equal(t, now, got.FirstSeen)

	_, err = store.FindBySignature(ctx, "missing")
	require.ErrorIs(t, err, jobs.ErrNotFound)
	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, jobs.ErrNotFound)
	require.ErrorIs(t, store.Update(ctx, record("z", "missing", now)), jobs.ErrNotFound)
}

func TestJobStoreListOrdersAndFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	old := record("old", "s1", base.Add(-40*24*time.Hour))
	mid := record("mid", "s2", base.Add(-time.Hour))
	mid.Category = "Design"
	recent := record("recent", "s3", base)
	for _, rec := range []jobs.Record{old, mid, recent} {
		require.NoError(t, store.Insert(ctx, rec))
	}

	all, err := store.List(ctx, jobs.Query{})
	require.NoError(t, err)
	require.Equal(t, []string{"recent", "mid", "old"}, ids(all))

	windowed, err := store.List(ctx, jobs.Query{Since: base.Add(-30 * 24 * time.Hour), Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"recent"}, ids(windowed))

	design, err := store.List(ctx, jobs.Query{Category: "Design"})
	require.NoError(t, err)
	require.Equal(t, []string{"mid"}, ids(design))

	require.NoError(t, store.EnsureIndexes(ctx))
	require.NoError(t, store.Close(ctx))
}

func ids(recs []jobs.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
