package domain

// MessageType names a request on the message bus
type MessageType string

// Message catalogue between the page and background contexts
const (
	MsgJobApplication      MessageType = "JOB_APPLICATION"
	MsgExternalApplyCached MessageType = "EXTERNAL_APPLY_CACHED"
	MsgUpdateBadge         MessageType = "UPDATE_BADGE"
	MsgClearBadge          MessageType = "CLEAR_BADGE"
	MsgRetryFailed         MessageType = "RETRY_FAILED"
	MsgGetFailedCount      MessageType = "GET_FAILED_COUNT"
)

// CountPayload carries a pending or failed job count
type CountPayload struct {
	Count int `json:"count"`
}

// CaptureResult is the background's answer to a capture event
type CaptureResult struct {
	Accepted    bool `json:"accepted"`
	FailedCount int  `json:"failedCount"`
}

// RetryResult is the background's answer to a retry trigger
type RetryResult struct {
	Retried     int `json:"retried"`
	FailedCount int `json:"failedCount"`
}

// Durable storage keys
const (
	KeyPendingJobs = "pendingJobs"
	KeyFailedJobs  = "failedJobs"
	KeyAuthToken   = "authToken"
	KeyAPIURL      = "apiUrl"
	KeyDevMode     = "devMode"
)
