package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/applytrack/internal/api/model"
	"github.com/cuongbtq/applytrack/internal/api/storage"
	"github.com/gin-gonic/gin"
)

// ContextUserID is the gin context key the auth middleware stores the caller under
const ContextUserID = "userId"

// JobStorage is implemented by storage.Storage
type JobStorage interface {
	UpsertJob(ctx context.Context, job *model.Job) (bool, error)
	GetJob(ctx context.Context, userID, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, int, error)
	UpdateJobStatus(ctx context.Context, userID, jobID, status string) (*model.Job, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Storage        JobStorage
	JWTSecret      string
	AllowedOrigins []string
	// HealthCheck, when set, backs GET /health
	HealthCheck func(ctx context.Context) error
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	storage JobStorage
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		storage: deps.Storage,
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
