package dto

import "time"

type CreateJobRequest struct {
	CompanyName string    `json:"companyName" binding:"required"`
	JobTitle    string    `json:"jobTitle" binding:"required"`
	Location    *string   `json:"location"`
	Description *string   `json:"description"`
	JobURL      string    `json:"jobUrl" binding:"required"`
	Platform    string    `json:"platform" binding:"required"`
	AppliedAt   time.Time `json:"appliedAt" binding:"required"`
}

type ListJobsRequest struct {
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
	Platform string `form:"platform"`
	Status   string `form:"status"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
	Limit      int      `json:"limit"`
}

type UpdateJobRequest struct {
	Status string `json:"status" binding:"required"`
}

type JobDTO struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	CompanyName string    `json:"companyName"`
	JobTitle    string    `json:"jobTitle"`
	Location    *string   `json:"location"`
	Description *string   `json:"description"`
	JobURL      string    `json:"jobUrl"`
	Platform    string    `json:"platform"`
	Status      string    `json:"status"`
	AppliedAt   time.Time `json:"appliedAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type MeResponse struct {
	UserID string `json:"userId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
