package services

import (
	"sync"
	"testing"
	"time"

	"glimpseAPI/internal/types/story"

	"github.com/google/uuid"
)

// stateRecorder collects every emitted update. The emit callback runs
// with the controller lock held, so it only appends here.
type stateRecorder struct {
	mu      sync.Mutex
	updates []StateUpdate
}

func (r *stateRecorder) record(u StateUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *stateRecorder) all() []StateUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StateUpdate(nil), r.updates...)
}

func imageStory() story.Story {
	return story.Story{
		ID:       uuid.New(),
		AuthorID: uuid.New(),
		Kind:     story.KindImage,
		Media:    []story.MediaItem{{URL: "https://cdn.example/i.jpg", StorageRef: "r", Kind: story.MediaImage}},
	}
}

func videoStory(n int) story.Story {
	media := make([]story.MediaItem, 0, n)
	for i := 0; i < n; i++ {
		media = append(media, story.MediaItem{URL: "https://cdn.example/v.mp4", StorageRef: "r", Kind: story.MediaVideo})
	}
	return story.Story{
		ID:       uuid.New(),
		AuthorID: uuid.New(),
		Kind:     story.KindVideo,
		Media:    media,
	}
}

func groupOf(stories ...story.Story) story.StoryGroup {
	return story.StoryGroup{
		AuthorID:   uuid.New(),
		Stories:    stories,
		StoryCount: len(stories),
	}
}

func newTestController(t *testing.T, imageDuration time.Duration, group story.StoryGroup) (*PlaybackController, *stateRecorder) {
	t.Helper()
	rec := &stateRecorder{}
	seq := NewMediaSequencer(imageDuration)
	cfg := PlaybackConfig{ProgressTick: 5 * time.Millisecond, EndGrace: 50 * time.Millisecond}
	return NewPlaybackController(seq, group, cfg, rec.record), rec
}

func waitClosed(t *testing.T, c *PlaybackController) StateUpdate {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.Snapshot(); s.Closed {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("controller never closed, state %+v", c.Snapshot())
	return StateUpdate{}
}

func TestAutoAdvanceThroughImageGroup(t *testing.T) {
	group := groupOf(imageStory(), imageStory(), imageStory())
	c, rec := newTestController(t, 40*time.Millisecond, group)

	c.Open(0)
	waitClosed(t, c)

	// Every story index must have been visited in order, each starting
	// at progress zero, and the session must end closed.
	visited := make([]int, 0)
	for _, u := range rec.all() {
		if u.Progress == 0 && !u.Closed {
			visited = append(visited, u.StoryIndex)
		}
	}
	want := []int{0, 1, 2}
	if len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visited %v, want %v", visited, want)
		}
	}

	updates := rec.all()
	if !updates[len(updates)-1].Closed {
		t.Error("final update must be Closed")
	}
}

func TestProgressNeverRegressesWithinItem(t *testing.T) {
	group := groupOf(imageStory())
	c, rec := newTestController(t, 60*time.Millisecond, group)

	c.Open(0)
	waitClosed(t, c)

	prev := -1
	for _, u := range rec.all() {
		if u.Closed {
			break
		}
		if u.Progress < prev {
			t.Fatalf("progress regressed: %d after %d", u.Progress, prev)
		}
		if u.Progress > 100 {
			t.Fatalf("progress exceeded 100: %d", u.Progress)
		}
		prev = u.Progress
	}
}

func TestManualPrevAtStartIsNoOp(t *testing.T) {
	group := groupOf(videoStory(1))
	c, rec := newTestController(t, 0, group)

	c.Open(0)
	before := len(rec.all())

	c.ManualPrev()

	s := c.Snapshot()
	if s.Closed || s.StoryIndex != 0 || s.MediaIndex != 0 || s.Progress != 0 {
		t.Fatalf("ManualPrev at start changed state: %+v", s)
	}
	if got := len(rec.all()); got != before {
		t.Errorf("ManualPrev at start emitted %d extra updates", got-before)
	}
}

func TestManualPrevCrossesStoryBoundary(t *testing.T) {
	group := groupOf(videoStory(2), videoStory(1))
	c, _ := newTestController(t, 0, group)

	c.Open(0)
	c.JumpTo(1, 0)
	c.ManualPrev()

	s := c.Snapshot()
	if s.StoryIndex != 0 || s.MediaIndex != 1 {
		t.Fatalf("ManualPrev from (1,0) moved to (%d,%d), want (0,1)", s.StoryIndex, s.MediaIndex)
	}
	if s.Progress != 0 {
		t.Errorf("progress after backward transition = %d, want 0", s.Progress)
	}
}

func TestManualNextAtEndClosesImmediately(t *testing.T) {
	group := groupOf(videoStory(1))
	c, _ := newTestController(t, 0, group)

	c.Open(0)
	c.ManualNext()

	if s := c.Snapshot(); !s.Closed {
		t.Fatalf("ManualNext at group end did not close: %+v", s)
	}
}

func TestManualNextVisitsEveryItemInOrder(t *testing.T) {
	group := groupOf(videoStory(3), videoStory(1))
	c, _ := newTestController(t, 0, group)
	c.Open(0)

	type pos struct{ story, media int }
	visited := []pos{}
	for {
		s := c.Snapshot()
		if s.Closed {
			break
		}
		visited = append(visited, pos{s.StoryIndex, s.MediaIndex})
		c.ManualNext()
	}

	want := []pos{{0, 0}, {0, 1}, {0, 2}, {1, 0}}
	if len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visited %v, want %v", visited, want)
		}
	}
}

func TestJumpToOutOfRangeIgnored(t *testing.T) {
	group := groupOf(videoStory(1), videoStory(1))
	c, _ := newTestController(t, 0, group)

	c.Open(0)
	c.JumpTo(5, 0)
	c.JumpTo(-1, 0)
	c.JumpTo(1, 3)

	s := c.Snapshot()
	if s.StoryIndex != 0 || s.MediaIndex != 0 || s.Closed {
		t.Fatalf("out-of-range JumpTo changed state: %+v", s)
	}
}

func TestVideoProgressMonotonicAndClamped(t *testing.T) {
	group := groupOf(videoStory(1))
	c, _ := newTestController(t, 0, group)
	c.Open(0)

	c.VideoProgress(0, 0, 5*time.Second, 10*time.Second)
	if s := c.Snapshot(); s.Progress != 50 {
		t.Fatalf("progress = %d, want 50", s.Progress)
	}

	// A small backward correction from the player is ignored.
	c.VideoProgress(0, 0, 3*time.Second, 10*time.Second)
	if s := c.Snapshot(); s.Progress != 50 {
		t.Fatalf("progress regressed to %d", s.Progress)
	}

	// Reported position past the duration clamps to 100.
	c.VideoProgress(0, 0, 15*time.Second, 10*time.Second)
	if s := c.Snapshot(); s.Progress != 100 {
		t.Fatalf("progress = %d, want 100", s.Progress)
	}
}

func TestStaleVideoEventsDropped(t *testing.T) {
	group := groupOf(videoStory(2))
	c, _ := newTestController(t, 0, group)
	c.Open(0)

	// Events for an item that is not current must not move anything.
	c.VideoProgress(0, 1, 5*time.Second, 10*time.Second)
	c.VideoEnded(0, 1)
	c.VideoDuration(0, 1, 10*time.Second)

	s := c.Snapshot()
	if s.StoryIndex != 0 || s.MediaIndex != 0 || s.Progress != 0 || s.Closed {
		t.Fatalf("stale video events changed state: %+v", s)
	}
}

func TestVideoEndedMidGroupAdvances(t *testing.T) {
	group := groupOf(videoStory(2))
	c, _ := newTestController(t, 0, group)
	c.Open(0)

	c.VideoEnded(0, 0)

	s := c.Snapshot()
	if s.StoryIndex != 0 || s.MediaIndex != 1 {
		t.Fatalf("VideoEnded mid-group moved to (%d,%d), want (0,1)", s.StoryIndex, s.MediaIndex)
	}
	if s.Closed {
		t.Error("VideoEnded mid-group must not close")
	}
}

func TestVideoEndedAtGroupEndClosesAfterGrace(t *testing.T) {
	group := groupOf(videoStory(1))
	c, _ := newTestController(t, 0, group)
	c.Open(0)

	c.VideoEnded(0, 0)

	s := c.Snapshot()
	if s.Progress != 100 {
		t.Fatalf("progress after final VideoEnded = %d, want 100", s.Progress)
	}
	if s.Closed {
		t.Fatal("close must wait for the grace period")
	}

	final := waitClosed(t, c)
	if final.Progress != 100 {
		t.Errorf("final progress = %d, want 100", final.Progress)
	}
}

func TestEventsAfterCloseIgnored(t *testing.T) {
	group := groupOf(videoStory(1), imageStory())
	c, rec := newTestController(t, time.Minute, group)
	c.Open(0)
	c.Close()

	before := c.Snapshot()
	emitted := len(rec.all())

	c.ManualNext()
	c.ManualPrev()
	c.JumpTo(1, 0)
	c.VideoProgress(0, 0, time.Second, 10*time.Second)
	c.VideoEnded(0, 0)
	c.Open(0)

	after := c.Snapshot()
	if after != before {
		t.Fatalf("state changed after close: %+v -> %+v", before, after)
	}
	if got := len(rec.all()); got != emitted {
		t.Errorf("events after close emitted %d extra updates", got-emitted)
	}
}

func TestOpenEmptyGroupClosesImmediately(t *testing.T) {
	c, _ := newTestController(t, 0, story.StoryGroup{AuthorID: uuid.New()})
	c.Open(0)

	if s := c.Snapshot(); !s.Closed {
		t.Fatalf("opening an empty group must close: %+v", s)
	}
}

func TestOpenOutOfRangeStartFallsBackToFirst(t *testing.T) {
	group := groupOf(videoStory(1), videoStory(1))
	c, _ := newTestController(t, 0, group)
	c.Open(7)

	s := c.Snapshot()
	if s.Closed || s.StoryIndex != 0 || s.MediaIndex != 0 {
		t.Fatalf("out-of-range start index: %+v, want (0,0) open", s)
	}
}

func TestManualNextCancelsRunningImageTimer(t *testing.T) {
	group := groupOf(imageStory(), videoStory(1))
	c, _ := newTestController(t, time.Minute, group)
	c.Open(0)

	c.ManualNext()

	s := c.Snapshot()
	if s.StoryIndex != 1 || s.MediaIndex != 0 || s.Progress != 0 {
		t.Fatalf("ManualNext during image: %+v, want (1,0) at progress 0", s)
	}

	// The cancelled image timer must never fire into the new item.
	time.Sleep(30 * time.Millisecond)
	if after := c.Snapshot(); after != s {
		t.Fatalf("stale timer fired after ManualNext: %+v -> %+v", s, after)
	}
}
