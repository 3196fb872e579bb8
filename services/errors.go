package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a story does not exist or has already expired.
	ErrNotFound = errors.New("story not found")

	// ErrForbidden is returned when a delete is attempted by someone other
	// than the story's author.
	ErrForbidden = errors.New("not the story owner")

	// ErrProfileIncomplete is returned when an author without a completed
	// profile tries to publish.
	ErrProfileIncomplete = errors.New("profile is not completed")
)

// ValidationError reports content missing for the declared story kind.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid story: " + e.Reason
}

// RateLimitedError is returned when an author already published a story
// within the rolling 24h window. It carries enough structure for the
// caller to render a retry countdown.
type RateLimitedError struct {
	HoursRemaining  int       `json:"hours_remaining"`
	NextAvailableAt time.Time `json:"next_available_at"`
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("story limit reached, next story available in %dh", e.HoursRemaining)
}

// UploadError wraps a media storage collaborator failure. Creation is
// fully aborted; no partial story is ever persisted.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return "media upload failed: " + e.Err.Error()
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
