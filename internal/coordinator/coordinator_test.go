package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
	"github.com/scrapeflow/scrapeflow/internal/store/memory"
)

type fixedIDGen struct{ id string }

func (g fixedIDGen) NewID() (string, error) { return g.id, nil }

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, scrape.Task) error { return errors.New("broker down") }
func (failingQueue) EnqueueDelayed(context.Context, scrape.Task, time.Duration) error {
	return errors.New("broker down")
}
func (failingQueue) Dequeue(context.Context) (scrape.Task, error) {
	return scrape.Task{}, errors.New("broker down")
}
func (failingQueue) Ack(context.Context, scrape.Task) error { return errors.New("broker down") }

func newTestCoordinator(queue scrape.Queue) (*Coordinator, *memory.FastStore, *memory.JobStore) {
	clock := scrape.ClockFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })
	fast := memory.NewFastStore(clock)
	jobs := memory.NewJobStore()
	c := New(queue, fast, jobs, fixedIDGen{id: "job-1"}, clock, time.Hour, nil)
	return c, fast, jobs
}

func validSpec() scrape.JobSpec {
	return scrape.JobSpec{
		URL:       "https://example.com",
		Mode:      scrape.ModeGuided,
		Selectors: map[string]string{"title": "h1"},
	}
}

func TestSubmit_CreatesPendingJobAndEnqueuesTask(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(4)
	c, fast, _ := newTestCoordinator(queue)
	ctx := context.Background()

	job, err := c.Submit(ctx, validSpec(), scrape.Principal{Subject: "user-1"})
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, scrape.JobStatusPending, job.Status)

	cached, err := fast.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusPending, cached.Status)
	require.Equal(t, "user-1", cached.PrincipalID)

	task, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, scrape.TaskScrape, task.Name)
	var payload scrape.ScrapeTask
	require.NoError(t, json.Unmarshal(task.Payload, &payload))
	require.Equal(t, "job-1", payload.JobID)
	require.Equal(t, "https://example.com", payload.Spec.URL)
	require.Equal(t, "user-1", payload.PrincipalID)
}

func TestSubmit_EnqueueFailureLeavesNoPendingRecord(t *testing.T) {
	t.Parallel()

	c, fast, _ := newTestCoordinator(failingQueue{})
	ctx := context.Background()

	_, err := c.Submit(ctx, validSpec(), scrape.Principal{Subject: "user-1"})
	require.Error(t, err)
	apiErr, ok := scrape.AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, scrape.CodeInternal, apiErr.Code)

	_, err = fast.GetJob(ctx, "job-1")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestSubmit_RejectsUnsafeURLBeforeQueueing(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(4)
	c, _, _ := newTestCoordinator(queue)

	for _, host := range []string{"127.0.0.1", "10.0.0.5", "169.254.1.1", "localhost"} {
		spec := validSpec()
		spec.URL = "http://" + host + "/data"
		_, err := c.Submit(context.Background(), spec, scrape.Principal{Subject: "user-1"})
		require.Error(t, err, host)
		apiErr, ok := scrape.AsAPIError(err)
		require.True(t, ok, host)
		require.Equal(t, scrape.CodeValidation, apiErr.Code, host)
	}

	// Nothing reached the queue.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := queue.Dequeue(ctx)
	require.Error(t, err)
}

func TestSubmit_ModeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*scrape.JobSpec)
		wantErr bool
	}{
		{"guided without selectors", func(s *scrape.JobSpec) { s.Selectors = nil }, true},
		{"unknown mode", func(s *scrape.JobSpec) { s.Mode = "turbo" }, true},
		{"smart without instruction", func(s *scrape.JobSpec) { s.Mode = scrape.ModeSmart; s.Selectors = nil }, false},
		{"oversized instruction", func(s *scrape.JobSpec) {
			s.Mode = scrape.ModeSmart
			s.Instruction = string(make([]byte, MaxInstructionLen+1))
		}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := validSpec()
			tc.mutate(&spec)
			err := ValidateSpec(spec)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestGetStatus_NotFoundAfterExpiryOrAbsence(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(memory.NewQueue(1))
	_, err := c.GetStatus(context.Background(), "nope")
	require.Error(t, err)
	apiErr, ok := scrape.AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, scrape.CodeNotFound, apiErr.Code)
}

func TestPersist_IsIdempotent(t *testing.T) {
	t.Parallel()

	c, fast, jobs := newTestCoordinator(memory.NewQueue(1))
	ctx := context.Background()

	job := scrape.Job{
		ID:     "job-1",
		URL:    "https://example.com",
		Mode:   scrape.ModeGuided,
		Status: scrape.JobStatusCompleted,
		Data:   map[string]any{"title": "Example Domain"},
	}
	require.NoError(t, fast.SetJob(ctx, job, time.Hour))

	created, err := c.Persist(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, created)

	created, err = c.Persist(ctx, "job-1")
	require.NoError(t, err)
	require.False(t, created)

	stored, err := jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusCompleted, stored.Status)
}

func TestHistory_NewestFirstPerPrincipal(t *testing.T) {
	t.Parallel()

	c, _, jobs := newTestCoordinator(memory.NewQueue(1))
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, jobs.UpsertJob(ctx, scrape.Job{
			ID:          id,
			PrincipalID: "user-1",
			Status:      scrape.JobStatusCompleted,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, jobs.UpsertJob(ctx, scrape.Job{
		ID:          "other",
		PrincipalID: "user-2",
		CreatedAt:   base.Add(time.Hour),
	}))

	history, err := c.History(ctx, scrape.Principal{Subject: "user-1"})
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "new", history[0].ID)
	require.Equal(t, "old", history[2].ID)
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	c, _, jobs := newTestCoordinator(memory.NewQueue(1))
	ctx := context.Background()

	require.NoError(t, jobs.UpsertJob(ctx, scrape.Job{ID: "a", Status: scrape.JobStatusCompleted}))
	require.NoError(t, jobs.UpsertJob(ctx, scrape.Job{ID: "b", Status: scrape.JobStatusFailed}))

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalJobs)
	require.Equal(t, int64(1), stats.PagesScraped)
	require.InDelta(t, 50.0, stats.SuccessRate, 0.01)
}
