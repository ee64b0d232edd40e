// Package pending holds captured applications whose completion could not be
// observed, until the user confirms or declines them on a later visit.
package pending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/cuongbtq/applytrack/internal/kvstore"
	"github.com/google/uuid"
)

// Store keeps pending jobs as one list under domain.KeyPendingJobs.
// Every mutation re-reads the list inside kvstore.Update.
type Store struct {
	kv     kvstore.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(kv kvstore.Store, logger *slog.Logger) *Store {
	return &Store{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
}

// Add appends rec unless a pending job with the same URL exists, in which
// case the list is left untouched and ErrDuplicatePending is returned.
func (s *Store) Add(ctx context.Context, rec domain.JobRecord) (*domain.PendingJob, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	job := domain.PendingJob{
		JobRecord: rec,
		ID:        newID(now),
		Status:    domain.PendingStatus,
		Timestamp: now.UnixMilli(),
	}

	err := kvstore.UpdateJSON(ctx, s.kv, domain.KeyPendingJobs, func(jobs *[]domain.PendingJob) error {
		for _, existing := range *jobs {
			if existing.JobURL == rec.JobURL {
				return domain.ErrDuplicatePending
			}
		}
		*jobs = append(*jobs, job)
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicatePending) {
			s.logger.Info("Pending job already saved",
				slog.String("job_url", rec.JobURL),
			)
			return nil, err
		}
		return nil, fmt.Errorf("failed to add pending job: %w", err)
	}

	s.logger.Info("Pending job saved",
		slog.String("id", job.ID),
		slog.String("job_title", job.JobTitle),
		slog.String("company_name", job.CompanyName),
	)

	return &job, nil
}

// List returns pending jobs in insertion order
func (s *Store) List(ctx context.Context) ([]domain.PendingJob, error) {
	var jobs []domain.PendingJob
	if _, err := s.kv.Get(ctx, domain.KeyPendingJobs, &jobs); err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	return jobs, nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.PendingJob, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].ID == id {
			return &jobs[i], nil
		}
	}
	return nil, domain.ErrPendingNotFound
}

func (s *Store) Count(ctx context.Context) (int, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(jobs), nil
}

// Remove deletes the job with id and returns how many remain.
// Removing an unknown id is not an error.
func (s *Store) Remove(ctx context.Context, id string) (int, error) {
	var remaining int
	err := kvstore.UpdateJSON(ctx, s.kv, domain.KeyPendingJobs, func(jobs *[]domain.PendingJob) error {
		kept := (*jobs)[:0]
		for _, job := range *jobs {
			if job.ID != id {
				kept = append(kept, job)
			}
		}
		*jobs = kept
		remaining = len(kept)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to remove pending job: %w", err)
	}

	s.logger.Debug("Pending job removed",
		slog.String("id", id),
		slog.Int("remaining", remaining),
	)
	return remaining, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, domain.KeyPendingJobs); err != nil {
		return fmt.Errorf("failed to clear pending jobs: %w", err)
	}
	return nil
}

// newID returns job-<unix millis>-<9 random chars>
func newID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("job-%d-%s", now.UnixMilli(), suffix)
}
