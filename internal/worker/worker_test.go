package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/JakeFAU/atlas-jobs/internal/ingest"
	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	pubmemory "github.com/JakeFAU/atlas-jobs/internal/publisher/memory"
	"github.com/JakeFAU/atlas-jobs/internal/queue/memory"
	storememory "github.com/JakeFAU/atlas-jobs/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	mu     sync.Mutex
	counts map[jobs.Source]jobs.SourceCount
	err    error
	block  bool
	calls  []string
}

func (r *fakeRunner) Run(ctx context.Context, runID string, _ []jobs.Source) (map[jobs.Source]jobs.SourceCount, error) {
	r.mu.Lock()
	r.calls = append(r.calls, runID)
	r.mu.Unlock()
	if r.block {
		<-ctx.Done()
		return r.counts, ctx.Err()
	}
	return r.counts, r.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func seedRun(t *testing.T, runs *storememory.RunStore, id string, srcs ...jobs.Source) jobs.RunRequest {
	t.Helper()
	require.NoError(t, runs.CreateRun(context.Background(), jobs.Run{
		ID:        id,
		Status:    jobs.RunStatusQueued,
		Trigger:   jobs.TriggerAPI,
		Sources:   srcs,
		Submitted: testNow,
	}))
	return jobs.RunRequest{RunID: id, Sources: srcs, Trigger: jobs.TriggerAPI}
}

func TestWorkerRunProcessesQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := memory.NewQueue(4)
	runs := storememory.NewRunStore()
	pub := pubmemory.New()
	runner := &fakeRunner{counts: map[jobs.Source]jobs.SourceCount{
		jobs.SourceRemotive: {Fetched: 3, Stored: 3, Created: 3},
	}}
	w := New(q, runs, runner, pub, fixedClock{now: testNow}, Config{Topic: "atlas-events"}, zap.NewNop())

	req := seedRun(t, runs, "run-ok", jobs.SourceRemotive)
	require.NoError(t, q.Enqueue(ctx, req))

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		run, err := runs.GetRun(ctx, "run-ok")
		return err == nil && run.Status == jobs.RunStatusSucceeded
	}, time.Second, 10*time.Millisecond)

	run, err := runs.GetRun(ctx, "run-ok")
	require.NoError(t, err)
	require.NotNil(t, run.Started)
	require.NotNil(t, run.Finished)
	require.Equal(t, 3, run.Counts[jobs.SourceRemotive].Created)

	require.Eventually(t, func() bool { return len(pub.Payloads("atlas-events")) == 1 }, time.Second, 10*time.Millisecond)
	ev := pub.Payloads("atlas-events")[0].(ingest.Event)
	require.Equal(t, ingest.EventRunCompleted, ev.Type)
	require.Equal(t, jobs.RunStatusSucceeded, ev.Status)

	cancel()
	<-done
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	q := memory.NewQueue(1)
	w := New(q, storememory.NewRunStore(), &fakeRunner{}, nil, fixedClock{now: testNow}, Config{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background())
	}()
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after queue close")
	}
}

func TestProcessDerivesStatus(t *testing.T) {
	tests := []struct {
		name       string
		counts     map[jobs.Source]jobs.SourceCount
		wantStatus jobs.RunStatus
		wantErr    string
	}{
		{
			name: "partial failure succeeds",
			counts: map[jobs.Source]jobs.SourceCount{
				jobs.SourceRemotive: {Fetched: 1, Stored: 1, Created: 1},
				jobs.SourceJobicy:   {Error: "unexpected status 500"},
			},
			wantStatus: jobs.RunStatusSucceeded,
			wantErr:    "jobicy: unexpected status 500",
		},
		{
			name: "all sources failed",
			counts: map[jobs.Source]jobs.SourceCount{
				jobs.SourceRemotive: {Error: "timeout"},
				jobs.SourceJobicy:   {Error: "bad json"},
			},
			wantStatus: jobs.RunStatusFailed,
			wantErr:    "jobicy: bad json; remotive: timeout",
		},
		{
			name: "empty feeds still succeed",
			counts: map[jobs.Source]jobs.SourceCount{
				jobs.SourceRemotive: {},
				jobs.SourceJobicy:   {},
			},
			wantStatus: jobs.RunStatusSucceeded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := storememory.NewRunStore()
			w := New(memory.NewQueue(1), runs, &fakeRunner{counts: tt.counts}, nil, fixedClock{now: testNow}, Config{}, nil)
			req := seedRun(t, runs, "run-1", jobs.SourceRemotive, jobs.SourceJobicy)

			run, err := w.Process(context.Background(), req)
			require.NoError(t, err)
			require.Equal(t, tt.wantStatus, run.Status)
			require.Equal(t, tt.wantErr, run.ErrorText)
		})
	}
}

func TestProcessTimeoutFailsRun(t *testing.T) {
	runs := storememory.NewRunStore()
	runner := &fakeRunner{block: true, counts: map[jobs.Source]jobs.SourceCount{}}
	w := New(memory.NewQueue(1), runs, runner, nil, fixedClock{now: testNow}, Config{JobTimeout: 20 * time.Millisecond}, nil)

	run, err := w.Process(context.Background(), seedRun(t, runs, "slow", jobs.SourceRemotive))
	require.NoError(t, err)
	require.Equal(t, jobs.RunStatusFailed, run.Status)
	require.Equal(t, "run timed out", run.ErrorText)
}

func TestProcessCanceledRun(t *testing.T) {
	runs := storememory.NewRunStore()
	runner := &fakeRunner{err: errors.New("run r: context canceled")}
	w := New(memory.NewQueue(1), runs, runner, nil, fixedClock{now: testNow}, Config{}, nil)

	run, err := w.Process(context.Background(), seedRun(t, runs, "r", jobs.SourceRemotive))
	require.NoError(t, err)
	require.Equal(t, jobs.RunStatusCanceled, run.Status)
}

func TestProcessUnknownRun(t *testing.T) {
	w := New(memory.NewQueue(1), storememory.NewRunStore(), &fakeRunner{}, nil, fixedClock{now: testNow}, Config{}, nil)
	_, err := w.Process(context.Background(), jobs.RunRequest{RunID: "ghost"})
	require.ErrorIs(t, err, jobs.ErrNotFound)
}
