package story

import (
	"time"

	"github.com/google/uuid"
)

// TTL is the visibility window of every story. ExpiresAt is always
// CreatedAt + TTL, computed once at creation and never recomputed.
const TTL = 24 * time.Hour

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaItem is one ordered unit inside a story. The binary behind
// StorageRef is owned by the media storage collaborator.
type MediaItem struct {
	URL        string    `json:"url"`
	StorageRef string    `json:"storage_ref"`
	Kind       MediaKind `json:"kind"`
}

// AuthorSnapshot is the author's display identity captured at creation
// time. Intentionally not re-joined live.
type AuthorSnapshot struct {
	Username string `json:"username"`
	Handle   string `json:"handle"`
	ImageURL string `json:"image_url,omitempty"`
}

type Story struct {
	ID          uuid.UUID      `json:"id"`
	AuthorID    uuid.UUID      `json:"author_id"`
	Kind        Kind           `json:"kind"`
	TextContent string         `json:"text_content,omitempty"`
	Media       []MediaItem    `json:"media"`
	Author      AuthorSnapshot `json:"author"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

// VisibleAt reports whether the story is visible at t. Visibility is a
// pure function of the timestamps, never a stored flag.
func (s *Story) VisibleAt(t time.Time) bool {
	return t.Before(s.ExpiresAt)
}

// DeriveKind returns the story kind implied by its media: the kind of
// the first item, or text when there is none.
func DeriveKind(media []MediaItem) Kind {
	if len(media) == 0 {
		return KindText
	}
	if media[0].Kind == MediaVideo {
		return KindVideo
	}
	return KindImage
}

// StoryGroup is the derived per-author browsing view. Never persisted;
// rebuilt from the visible stories on every feed request.
type StoryGroup struct {
	AuthorID   uuid.UUID      `json:"author_id"`
	Author     AuthorSnapshot `json:"author"`
	Stories    []Story        `json:"stories"`
	StoryCount int            `json:"story_count"`
}

type CreateStoryRequest struct {
	Kind        Kind        `json:"kind"`
	TextContent string      `json:"textContent,omitempty"`
	Media       []MediaItem `json:"media,omitempty"`
}
