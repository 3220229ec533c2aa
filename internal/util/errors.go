package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrRetriesExhausted indicates a retryable operation kept failing until
	// its attempt ceiling was reached
	ErrRetriesExhausted = errors.New("max retries exceeded")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidStatus indicates a missing-item status outside the known domain
	ErrInvalidStatus = errors.New("invalid status")

	// ErrEmptyTrack indicates a track record with neither title nor artist
	ErrEmptyTrack = errors.New("track has no title and no artist")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPermission indicates a permission error
	ErrPermission = errors.New("permission denied")
)
