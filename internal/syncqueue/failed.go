package syncqueue

import (
	"context"
	"fmt"

	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/cuongbtq/applytrack/internal/kvstore"
)

// FailedStore is the durable list of deliveries that did not succeed
type FailedStore struct {
	kv kvstore.Store
}

func NewFailedStore(kv kvstore.Store) *FailedStore {
	return &FailedStore{kv: kv}
}

func (s *FailedStore) Append(ctx context.Context, entry domain.FailedJobEntry) error {
	err := kvstore.UpdateJSON(ctx, s.kv, domain.KeyFailedJobs, func(entries *[]domain.FailedJobEntry) error {
		*entries = append(*entries, entry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record failed job: %w", err)
	}
	return nil
}

func (s *FailedStore) List(ctx context.Context) ([]domain.FailedJobEntry, error) {
	var entries []domain.FailedJobEntry
	if _, err := s.kv.Get(ctx, domain.KeyFailedJobs, &entries); err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}
	return entries, nil
}

func (s *FailedStore) Count(ctx context.Context) (int, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Drain returns every entry and clears the list in one atomic step
func (s *FailedStore) Drain(ctx context.Context) ([]domain.FailedJobEntry, error) {
	var entries []domain.FailedJobEntry
	err := s.kv.Update(ctx, domain.KeyFailedJobs, func(current []byte) ([]byte, error) {
		entries = nil
		if len(current) > 0 {
			if err := decodeEntries(current, &entries); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain failed jobs: %w", err)
	}
	return entries, nil
}

func (s *FailedStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, domain.KeyFailedJobs); err != nil {
		return fmt.Errorf("failed to clear failed jobs: %w", err)
	}
	return nil
}
