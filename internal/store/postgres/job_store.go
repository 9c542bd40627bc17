package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// JobStore is the authoritative durable job record store. Implements
// scrape.JobStore.
type JobStore struct {
	pool querier
}

// NewJobStore constructs a JobStore from an existing pool. The pool seam also
// accepts a pgxmock pool in tests.
func NewJobStore(pool querier) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `id, url, mode, status, data, error, principal_id, created_at, completed_at`

// UpsertJob creates the durable record on first sighting of the id and
// updates the mutable fields afterwards.
func (s *JobStore) UpsertJob(ctx context.Context, job scrape.Job) error {
	data, err := marshalData(job.Data)
	if err != nil {
		return fmt.Errorf("marshal job %s data: %w", job.ID, err)
	}
	query := `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	data = EXCLUDED.data,
	error = EXCLUDED.error,
	completed_at = EXCLUDED.completed_at`
	if _, err := s.pool.Exec(ctx, query,
		job.ID, job.URL, string(job.Mode), string(job.Status), data,
		job.Error, job.PrincipalID, job.CreatedAt, job.CompletedAt,
	); err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

// SaveJob inserts the job only if no durable record exists yet. Returns true
// when a row was created, false when the id was already persisted.
func (s *JobStore) SaveJob(ctx context.Context, job scrape.Job) (bool, error) {
	data, err := marshalData(job.Data)
	if err != nil {
		return false, fmt.Errorf("marshal job %s data: %w", job.ID, err)
	}
	query := `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query,
		job.ID, job.URL, string(job.Mode), string(job.Status), data,
		job.Error, job.PrincipalID, job.CreatedAt, job.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetJob fetches a single durable job record.
func (s *JobStore) GetJob(ctx context.Context, id string) (scrape.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Job{}, scrape.ErrNotFound
	}
	if err != nil {
		return scrape.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// ListByPrincipal returns the principal's jobs newest-first.
func (s *JobStore) ListByPrincipal(ctx context.Context, principalID string) ([]scrape.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE principal_id = $1 ORDER BY created_at DESC`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", principalID, err)
	}
	defer rows.Close()

	var jobs []scrape.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", principalID, err)
	}
	return jobs, nil
}

// CountByStatus returns total and completed durable job counts.
func (s *JobStore) CountByStatus(ctx context.Context) (total, completed int64, err error) {
	row := s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE status = $1) FROM jobs`,
		string(scrape.JobStatusCompleted),
	)
	if err := row.Scan(&total, &completed); err != nil {
		return 0, 0, fmt.Errorf("count jobs: %w", err)
	}
	return total, completed, nil
}

func scanJob(row pgx.Row) (scrape.Job, error) {
	var (
		job  scrape.Job
		mode string
		stat string
		data []byte
	)
	if err := row.Scan(
		&job.ID, &job.URL, &mode, &stat, &data,
		&job.Error, &job.PrincipalID, &job.CreatedAt, &job.CompletedAt,
	); err != nil {
		return scrape.Job{}, err
	}
	job.Mode = scrape.Mode(mode)
	job.Status = scrape.JobStatus(stat)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &job.Data); err != nil {
			return scrape.Job{}, fmt.Errorf("unmarshal job data: %w", err)
		}
	}
	return job, nil
}

func marshalData(data map[string]any) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	return json.Marshal(data)
}
