package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cuongbtq/applytrack/internal/api/model"
	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStorage connects to TEST_DATABASE_URL, skipping when it is unset
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := &Storage{db: db}
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func newJob(userID, url string) *model.Job {
	return &model.Job{
		ID:          uuid.New().String(),
		UserID:      userID,
		CompanyName: "Acme",
		JobTitle:    "Backend Engineer",
		JobURL:      url,
		Platform:    "LINKEDIN",
		Status:      domain.StatusApplied,
		AppliedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestStorage_UpsertRefreshesUpdatedAt(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	user := "user-" + uuid.NewString()
	url := "https://jobs.example/" + uuid.NewString()

	first := newJob(user, url)
	created, err := s.UpsertJob(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	time.Sleep(10 * time.Millisecond)

	second := newJob(user, url)
	created, err = s.UpsertJob(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	jobs, total, err := s.ListJobs(ctx, JobFilter{UserID: user, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, jobs, 1)
}

func TestStorage_UpdateJobStatusChecksOwner(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	user := "user-" + uuid.NewString()

	job := newJob(user, "https://jobs.example/"+uuid.NewString())
	_, err := s.UpsertJob(ctx, job)
	require.NoError(t, err)

	_, err = s.UpdateJobStatus(ctx, "someone-else", job.ID, domain.StatusOffer)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	updated, err := s.UpdateJobStatus(ctx, user, job.ID, domain.StatusOffer)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffer, updated.Status)

	_, err = s.GetJob(ctx, "someone-else", job.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
