// Package bus is the request/response channel between page contexts and
// the background context. A Router serves requests one at a time; a Client
// sends them over a Transport and turns a silent counterpart into
// domain.ErrBackgroundUnavailable instead of hanging.
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/applytrack/internal/domain"
)

// Request is {type, data}
type Request struct {
	Type domain.MessageType `json:"type"`
	Data json.RawMessage    `json:"data,omitempty"`
}

// Response is {success, data} or {success: false, error}
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// RemoteError is a handler failure reported by the other side
type RemoteError struct {
	Type    domain.MessageType
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Type, e.Message)
}

// Is lets errors.Is match the not-authenticated signal across the boundary
func (e *RemoteError) Is(target error) bool {
	return target == domain.ErrNotAuthenticated && e.Message == domain.ErrNotAuthenticated.Error()
}
