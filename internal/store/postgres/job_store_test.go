package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

func TestSaveJobInsertsOnce(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	done := now.Add(3 * time.Second)
	job := scrape.Job{
		ID:          "job-1",
		URL:         "https://example.com/page",
		Mode:        scrape.ModeGuided,
		Status:      scrape.JobStatusCompleted,
		Data:        map[string]any{"title": "hello"},
		PrincipalID: "user-1",
		CreatedAt:   now,
		CompletedAt: &done,
	}

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(
			job.ID, job.URL, "guided", "completed", []byte(`{"title":"hello"}`),
			job.Error, job.PrincipalID, job.CreatedAt, job.CompletedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := store.SaveJob(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveJobIdempotentOnConflict(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	job := scrape.Job{
		ID:        "job-1",
		URL:       "https://example.com/page",
		Mode:      scrape.ModeGuided,
		Status:    scrape.JobStatusCompleted,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}

	// ON CONFLICT DO NOTHING reports zero rows affected.
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(
			job.ID, job.URL, "guided", "completed", nil,
			job.Error, job.PrincipalID, job.CreatedAt, job.CompletedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := store.SaveJob(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM jobs WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "url", "mode", "status", "data",
			"error", "principal_id", "created_at", "completed_at",
		}))

	_, err = store.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, scrape.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByPrincipalScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"id", "url", "mode", "status", "data",
		"error", "principal_id", "created_at", "completed_at",
	}).
		AddRow("job-2", "https://example.com/b", "smart", "failed",
			[]byte(nil), "timeout", "user-1", now.Add(time.Minute), (*time.Time)(nil)).
		AddRow("job-1", "https://example.com/a", "guided", "completed",
			[]byte(`{"price":"$5"}`), "", "user-1", now, &now)

	mock.ExpectQuery("SELECT .* FROM jobs WHERE principal_id").
		WithArgs("user-1").
		WillReturnRows(rows)

	jobs, err := store.ListByPrincipal(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[0].ID)
	assert.Equal(t, scrape.JobStatusFailed, jobs[0].Status)
	assert.Equal(t, "timeout", jobs[0].Error)
	assert.Equal(t, map[string]any{"price": "$5"}, jobs[1].Data)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT count").
		WithArgs("completed").
		WillReturnRows(pgxmock.NewRows([]string{"count", "count"}).AddRow(int64(10), int64(7)))

	total, completed, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
	assert.Equal(t, int64(7), completed)
	require.NoError(t, mock.ExpectationsWereMet())
}
