package domain

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the job board a record was captured on
type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformNaukri   Platform = "naukri"
)

// Upper returns the form the backend stores (LINKEDIN, NAUKRI)
func (p Platform) Upper() string {
	return strings.ToUpper(string(p))
}

// ParsePlatform accepts either case
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformLinkedIn:
		return PlatformLinkedIn, nil
	case PlatformNaukri:
		return PlatformNaukri, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// JobRecord is a job application captured from a job board page.
// JobURL is the natural deduplication key.
type JobRecord struct {
	JobTitle    string    `json:"jobTitle"`
	CompanyName string    `json:"companyName"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	JobURL      string    `json:"jobUrl"`
	Platform    Platform  `json:"platform,omitempty"`
	AppliedAt   time.Time `json:"appliedAt"`
	RetryCount  int       `json:"retryCount,omitempty"`
}

// Validate reports ErrIncompleteRecord when a field needed downstream is empty
func (r *JobRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: no record", ErrIncompleteRecord)
	}
	if r.JobTitle == "" {
		return fmt.Errorf("%w: missing job title", ErrIncompleteRecord)
	}
	if r.CompanyName == "" {
		return fmt.Errorf("%w: missing company name", ErrIncompleteRecord)
	}
	if r.JobURL == "" {
		return fmt.Errorf("%w: missing job url", ErrIncompleteRecord)
	}
	return nil
}

// WithPlatform returns a copy tagged with platform
func (r JobRecord) WithPlatform(p Platform) JobRecord {
	r.Platform = p
	return r
}

// PendingStatus is the only status a pending job carries
const PendingStatus = "APPLIED"

// PendingJob is a captured record waiting for the user to confirm it was submitted
type PendingJob struct {
	JobRecord
	ID        string `json:"id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// QueueEntry is held in memory by the sync queue only
type QueueEntry struct {
	Data     JobRecord `json:"data"`
	Platform Platform  `json:"platform"`
}

// FailedJobEntry records a delivery attempt that did not succeed
type FailedJobEntry struct {
	Data      JobRecord `json:"data"`
	Error     string    `json:"error"`
	Timestamp int64     `json:"timestamp"`
}
