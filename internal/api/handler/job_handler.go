package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/applytrack/internal/api/dto"
	"github.com/cuongbtq/applytrack/internal/api/model"
	"github.com/cuongbtq/applytrack/internal/api/storage"
	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
	filterAll    = "ALL"
)

// CreateJob handles POST /api/jobs.
// Posting a known (user, jobUrl) again refreshes updatedAt and returns 200.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	platform, err := domain.ParsePlatform(req.Platform)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	job := model.Job{
		ID:          uuid.New().String(),
		UserID:      userID(c),
		CompanyName: strings.TrimSpace(req.CompanyName),
		JobTitle:    strings.TrimSpace(req.JobTitle),
		Location:    req.Location,
		Description: req.Description,
		JobURL:      req.JobURL,
		Platform:    platform.Upper(),
		Status:      domain.StatusApplied,
		AppliedAt:   req.AppliedAt,
	}

	created, err := h.storage.UpsertJob(c.Request.Context(), &job)
	if err != nil {
		h.logger.Error("Failed to save job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to save job"})
		return
	}

	h.logger.Info("Job saved",
		slog.String("job_id", job.ID),
		slog.String("user_id", job.UserID),
		slog.Bool("created", created),
	)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, toDTO(&job))
}

// GetJob handles GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "id must be a valid UUID"})
		return
	}

	job, err := h.storage.GetJob(c.Request.Context(), userID(c), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Job not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, toDTO(job))
}

// ListJobs handles GET /api/jobs?page&limit&platform&status.
// A platform or status of ALL (or empty) applies no filter.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	if req.Page <= 0 {
		req.Page = defaultPage
	}
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}

	filter := storage.JobFilter{
		UserID: userID(c),
		Page:   req.Page,
		Limit:  req.Limit,
	}

	if p := strings.TrimSpace(req.Platform); p != "" && !strings.EqualFold(p, filterAll) {
		platform, err := domain.ParsePlatform(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		filter.Platform = platform.Upper()
	}

	if s := strings.ToUpper(strings.TrimSpace(req.Status)); s != "" && s != filterAll {
		if !domain.IsValidStatus(s) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid status"})
			return
		}
		filter.Status = s
	}

	jobs, total, err := h.storage.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list jobs"})
		return
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toDTO(&jobs[i])
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		Total:      total,
		Page:       req.Page,
		TotalPages: (total + req.Limit - 1) / req.Limit,
		Limit:      req.Limit,
	})
}

// UpdateJob handles PATCH /api/jobs/:id with {status}.
// A job that does not belong to the caller is reported as 404.
func (h *JobHandler) UpdateJob(c *gin.Context) {
	jobID := c.Param("id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Job not found"})
		return
	}

	var req dto.UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if !domain.IsValidStatus(status) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid status"})
		return
	}

	job, err := h.storage.UpdateJobStatus(c.Request.Context(), userID(c), jobID, status)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Job not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to update job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update job"})
		return
	}

	h.logger.Info("Job status updated",
		slog.String("job_id", job.ID),
		slog.String("status", job.Status),
	)

	c.JSON(http.StatusOK, toDTO(job))
}

// Me handles GET /api/auth/me
func (h *JobHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, dto.MeResponse{UserID: userID(c)})
}

func toDTO(job *model.Job) dto.JobDTO {
	return dto.JobDTO{
		ID:          job.ID,
		UserID:      job.UserID,
		CompanyName: job.CompanyName,
		JobTitle:    job.JobTitle,
		Location:    job.Location,
		Description: job.Description,
		JobURL:      job.JobURL,
		Platform:    job.Platform,
		Status:      job.Status,
		AppliedAt:   job.AppliedAt,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}
