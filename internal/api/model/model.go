package model

import "time"

type Job struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	CompanyName string    `db:"company_name"`
	JobTitle    string    `db:"job_title"`
	Location    *string   `db:"location"`
	Description *string   `db:"description"`
	JobURL      string    `db:"job_url"`
	Platform    string    `db:"platform"`
	Status      string    `db:"status"`
	AppliedAt   time.Time `db:"applied_at"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
