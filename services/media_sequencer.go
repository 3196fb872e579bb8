package services

import (
	"time"

	"glimpseAPI/internal/types/story"
)

// DefaultImageDuration is how long an image (or text card) stays on
// screen before auto-advancing.
const DefaultImageDuration = 5 * time.Second

type ItemKind string

const (
	ItemText  ItemKind = "text"
	ItemImage ItemKind = "image"
	ItemVideo ItemKind = "video"
)

// PlayableItem is one entry of a story's playback sequence together with
// its display-duration policy.
type PlayableItem struct {
	Kind ItemKind `json:"kind"`
	URL  string   `json:"url,omitempty"`
	Text string   `json:"text,omitempty"`

	// Duration is the display time for images and text cards. For video
	// it stays zero and DurationKnown false until the viewer's player
	// reports the decoded duration; until then no auto-advance timer may
	// run for the item.
	Duration      time.Duration `json:"duration_ms"`
	DurationKnown bool          `json:"duration_known"`
}

// MediaSequencer resolves a story's ordered media into playable items
// and assigns each its display duration.
type MediaSequencer struct {
	imageDuration time.Duration
}

func NewMediaSequencer(imageDuration time.Duration) *MediaSequencer {
	if imageDuration <= 0 {
		imageDuration = DefaultImageDuration
	}
	return &MediaSequencer{imageDuration: imageDuration}
}

func (sq *MediaSequencer) ImageDuration() time.Duration {
	return sq.imageDuration
}

// Sequence returns the story's media verbatim as playable items. A
// pure-text story plays as a single text card with the image duration.
func (sq *MediaSequencer) Sequence(s *story.Story) []PlayableItem {
	if len(s.Media) == 0 {
		return []PlayableItem{{
			Kind:          ItemText,
			Text:          s.TextContent,
			Duration:      sq.imageDuration,
			DurationKnown: true,
		}}
	}

	items := make([]PlayableItem, 0, len(s.Media))
	for _, m := range s.Media {
		switch m.Kind {
		case story.MediaVideo:
			items = append(items, PlayableItem{
				Kind: ItemVideo,
				URL:  m.URL,
			})
		default:
			items = append(items, PlayableItem{
				Kind:          ItemImage,
				URL:           m.URL,
				Duration:      sq.imageDuration,
				DurationKnown: true,
			})
		}
	}
	return items
}
