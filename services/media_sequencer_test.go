package services

import (
	"testing"
	"time"

	"glimpseAPI/internal/types/story"
)

func TestSequenceTextStoryIsSingleCard(t *testing.T) {
	seq := NewMediaSequencer(7 * time.Second)
	s := story.Story{Kind: story.KindText, TextContent: "last day of the trip"}

	items := seq.Sequence(&s)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]
	if it.Kind != ItemText || it.Text != "last day of the trip" {
		t.Errorf("text card = %+v", it)
	}
	if it.Duration != 7*time.Second || !it.DurationKnown {
		t.Errorf("text card duration = %v known=%v, want image duration and known", it.Duration, it.DurationKnown)
	}
}

func TestSequencePreservesMediaOrder(t *testing.T) {
	seq := NewMediaSequencer(5 * time.Second)
	s := story.Story{
		Kind: story.KindImage,
		Media: []story.MediaItem{
			{URL: "a.jpg", StorageRef: "r1", Kind: story.MediaImage},
			{URL: "b.mp4", StorageRef: "r2", Kind: story.MediaVideo},
			{URL: "c.jpg", StorageRef: "r3", Kind: story.MediaImage},
		},
	}

	items := seq.Sequence(&s)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	wantKinds := []ItemKind{ItemImage, ItemVideo, ItemImage}
	for i, it := range items {
		if it.Kind != wantKinds[i] {
			t.Errorf("item %d kind = %s, want %s", i, it.Kind, wantKinds[i])
		}
	}

	// Images carry a known display duration; videos know nothing until
	// the player reports in.
	if !items[0].DurationKnown || items[0].Duration != 5*time.Second {
		t.Errorf("image item = %+v", items[0])
	}
	if items[1].DurationKnown || items[1].Duration != 0 {
		t.Errorf("video item must start with unknown duration: %+v", items[1])
	}
}

func TestNewMediaSequencerDefaultsDuration(t *testing.T) {
	seq := NewMediaSequencer(0)
	if seq.ImageDuration() != DefaultImageDuration {
		t.Errorf("ImageDuration = %v, want %v", seq.ImageDuration(), DefaultImageDuration)
	}
}
