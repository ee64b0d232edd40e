package domain

import "errors"

var (
	// ErrNotAuthenticated is returned when no usable bearer token is stored
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrBackgroundUnavailable is returned when the background context did not answer
	ErrBackgroundUnavailable = errors.New("background context unavailable, please reload")

	// ErrDuplicatePending is returned when a pending job with the same URL already exists
	ErrDuplicatePending = errors.New("job already saved")

	// ErrPendingNotFound is returned when a pending job id is unknown
	ErrPendingNotFound = errors.New("pending job not found")

	// ErrIncompleteRecord is returned when a record lacks a title, company or URL
	ErrIncompleteRecord = errors.New("incomplete job record")

	// ErrJobNotFound is returned by the backend when a job does not exist for the caller
	ErrJobNotFound = errors.New("job not found")

	// ErrUnsupportedPage is returned when no adapter matches a page origin
	ErrUnsupportedPage = errors.New("unsupported job board")

	// ErrUnknownMessage is returned by the bus router for an unregistered message type
	ErrUnknownMessage = errors.New("unknown message type")
)
