package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/applytrack/internal/api/model"
	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/cuongbtq/applytrack/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	id, user_id, company_name, job_title, location, description,
	job_url, platform, status, applied_at, created_at, updated_at`

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           UUID PRIMARY KEY,
	user_id      TEXT NOT NULL,
	company_name TEXT NOT NULL,
	job_title    TEXT NOT NULL,
	location     TEXT,
	description  TEXT,
	job_url      TEXT NOT NULL,
	platform     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'APPLIED',
	applied_at   TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, job_url)
);
CREATE INDEX IF NOT EXISTS jobs_user_applied_idx ON jobs (user_id, applied_at DESC);
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// EnsureSchema creates the jobs table when it does not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpsertJob inserts job or, when (user_id, job_url) already exists, only
// refreshes updated_at. job is overwritten with the stored row. The
// returned bool is true when a new row was created.
func (s *Storage) UpsertJob(ctx context.Context, job *model.Job) (bool, error) {
	query := `
		INSERT INTO jobs (
			id, user_id, company_name, job_title, location, description,
			job_url, platform, status, applied_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, NOW(), NOW()
		)
		ON CONFLICT (user_id, job_url) DO UPDATE SET updated_at = NOW()
		RETURNING ` + jobColumns + `, (xmax = 0) AS inserted
	`

	var row struct {
		model.Job
		Inserted bool `db:"inserted"`
	}

	err := s.db.GetContext(
		ctx,
		&row,
		query,
		job.ID,
		job.UserID,
		job.CompanyName,
		job.JobTitle,
		job.Location,
		job.Description,
		job.JobURL,
		job.Platform,
		job.Status,
		job.AppliedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert job: %w", err)
	}

	*job = row.Job
	return row.Inserted, nil
}

func (s *Storage) GetJob(ctx context.Context, userID, jobID string) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 AND user_id = $2`

	err := s.db.GetContext(ctx, &job, query, jobID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	UserID   string
	Platform string
	Status   string
	Page     int
	Limit    int
}

// ListJobs returns one page of the caller's jobs, newest application first,
// and the total number of jobs matching the filter
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, int, error) {
	where := " WHERE user_id = $1"
	args := []interface{}{filter.UserID}
	argIdx := 2

	if filter.Platform != "" {
		where += fmt.Sprintf(" AND platform = $%d", argIdx)
		args = append(args, filter.Platform)
		argIdx++
	}

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM jobs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs` + where +
		" ORDER BY applied_at DESC, id DESC" +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	jobs := []model.Job{}
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, total, nil
}

// UpdateJobStatus changes the status of a job owned by userID
func (s *Storage) UpdateJobStatus(ctx context.Context, userID, jobID, status string) (*model.Job, error) {
	var job model.Job
	query := `
		UPDATE jobs SET status = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + jobColumns

	err := s.db.GetContext(ctx, &job, query, jobID, userID, status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	return &job, nil
}
