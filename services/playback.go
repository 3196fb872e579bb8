package services

import (
	"sync"
	"time"

	"glimpseAPI/internal/types/story"
)

const (
	// DefaultProgressTick is how often an image item's progress is
	// recomputed while its display timer runs.
	DefaultProgressTick = 100 * time.Millisecond

	// DefaultEndGrace is the short delay honored after a natural video
	// "ended" on the very last item of a group, so the final frame is
	// not visually truncated. Manual next at the same boundary closes
	// immediately.
	DefaultEndGrace = 300 * time.Millisecond
)

// PlaybackConfig tunes the controller's timing. Zero values fall back to
// the defaults above.
type PlaybackConfig struct {
	ProgressTick time.Duration
	EndGrace     time.Duration
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.ProgressTick <= 0 {
		c.ProgressTick = DefaultProgressTick
	}
	if c.EndGrace <= 0 {
		c.EndGrace = DefaultEndGrace
	}
	return c
}

// StateUpdate is pushed to the viewer on every observable change.
type StateUpdate struct {
	Closed     bool `json:"closed"`
	StoryIndex int  `json:"story_index"`
	MediaIndex int  `json:"media_index"`
	Progress   int  `json:"progress"`
}

// PlaybackController drives a viewer through one author group: stories
// in order, media items in order, with automatic timed advancement for
// images and player-reported progress for videos.
//
// All state is owned by the controller and mutated under one mutex.
// Exactly one timer may drive progress at any instant: every transition
// bumps timerSeq before scheduling anything new, so a previously
// scheduled fire that lost the race observes a stale sequence number
// and is a no-op by construction. The video path works the same way,
// except the "timer" is the stream of client-reported position events,
// which carry the indices they belong to and are ignored once stale.
//
// The emit callback runs with the controller lock held and must not
// call back into the controller.
type PlaybackController struct {
	mu  sync.Mutex
	cfg PlaybackConfig

	group story.StoryGroup
	items [][]PlayableItem

	viewing    bool
	closed     bool
	storyIndex int
	mediaIndex int
	progress   int

	itemStarted time.Time
	timer       *time.Timer
	timerSeq    uint64

	emit func(StateUpdate)
}

func NewPlaybackController(seq *MediaSequencer, group story.StoryGroup, cfg PlaybackConfig, emit func(StateUpdate)) *PlaybackController {
	items := make([][]PlayableItem, 0, len(group.Stories))
	for i := range group.Stories {
		items = append(items, seq.Sequence(&group.Stories[i]))
	}
	if emit == nil {
		emit = func(StateUpdate) {}
	}
	return &PlaybackController{
		cfg:   cfg.withDefaults(),
		group: group,
		items: items,
		emit:  emit,
	}
}

// Open starts viewing at the given story, first media item.
func (c *PlaybackController) Open(storyIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.viewing || c.closed {
		return
	}
	if len(c.items) == 0 {
		c.closed = true
		c.emitLocked()
		return
	}
	if storyIndex < 0 || storyIndex >= len(c.items) {
		storyIndex = 0
	}

	c.viewing = true
	c.transitionLocked(storyIndex, 0)
}

// ManualNext advances like a natural completion would, but cancels the
// in-flight timer immediately. At the very end of the group it closes
// with no grace delay.
func (c *PlaybackController) ManualNext() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.viewing {
		return
	}
	c.advanceLocked()
}

// ManualPrev steps backwards. At the first media item of the first
// story it is a no-op: state, progress, and the running timer are left
// untouched.
func (c *PlaybackController) ManualPrev() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.viewing {
		return
	}
	if c.mediaIndex > 0 {
		c.transitionLocked(c.storyIndex, c.mediaIndex-1)
		return
	}
	if c.storyIndex > 0 {
		prev := c.storyIndex - 1
		c.transitionLocked(prev, len(c.items[prev])-1)
	}
}

// JumpTo moves directly to a story/media pair (a tap on a progress
// segment), resetting progress and starting a fresh timer.
func (c *PlaybackController) JumpTo(storyIndex, mediaIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.viewing {
		return
	}
	if storyIndex < 0 || storyIndex >= len(c.items) {
		return
	}
	if mediaIndex < 0 || mediaIndex >= len(c.items[storyIndex]) {
		return
	}
	c.transitionLocked(storyIndex, mediaIndex)
}

// Close ends viewing and cancels any timer unconditionally.
func (c *PlaybackController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.viewing {
		return
	}
	c.closeLocked()
}

// VideoDuration records the decoded duration reported by the viewer's
// player for the given item. Reports for items other than the current
// one are stale subscriptions and are dropped.
func (c *PlaybackController) VideoDuration(storyIndex, mediaIndex int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentVideoLocked(storyIndex, mediaIndex) || duration <= 0 {
		return
	}
	c.items[storyIndex][mediaIndex].Duration = duration
	c.items[storyIndex][mediaIndex].DurationKnown = true
}

// VideoProgress drives the progress bar from the player's own position
// reporting. Progress never regresses within an item; buffering or tiny
// backwards corrections from the player are clamped away.
func (c *PlaybackController) VideoProgress(storyIndex, mediaIndex int, position, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentVideoLocked(storyIndex, mediaIndex) || duration <= 0 {
		return
	}
	if !c.items[storyIndex][mediaIndex].DurationKnown {
		c.items[storyIndex][mediaIndex].Duration = duration
		c.items[storyIndex][mediaIndex].DurationKnown = true
	}

	p := int(position * 100 / duration)
	if p > 100 {
		p = 100
	}
	if p > c.progress {
		c.progress = p
		c.emitLocked()
	}
}

// VideoEnded handles the player's natural end-of-video signal. At the
// last item of the last story the close is delayed by the grace period;
// everywhere else it advances like an image timer completing.
func (c *PlaybackController) VideoEnded(storyIndex, mediaIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentVideoLocked(storyIndex, mediaIndex) {
		return
	}

	if c.progress < 100 {
		c.progress = 100
		c.emitLocked()
	}

	if c.atGroupEndLocked() {
		c.cancelTimerLocked()
		seq := c.timerSeq
		c.timer = time.AfterFunc(c.cfg.EndGrace, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if seq != c.timerSeq || !c.viewing {
				return
			}
			c.closeLocked()
		})
		return
	}
	c.advanceLocked()
}

// Snapshot returns the current observable state.
func (c *PlaybackController) Snapshot() StateUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *PlaybackController) snapshotLocked() StateUpdate {
	return StateUpdate{
		Closed:     c.closed,
		StoryIndex: c.storyIndex,
		MediaIndex: c.mediaIndex,
		Progress:   c.progress,
	}
}

func (c *PlaybackController) emitLocked() {
	c.emit(c.snapshotLocked())
}

func (c *PlaybackController) currentVideoLocked(storyIndex, mediaIndex int) bool {
	if !c.viewing || storyIndex != c.storyIndex || mediaIndex != c.mediaIndex {
		return false
	}
	return c.items[storyIndex][mediaIndex].Kind == ItemVideo
}

func (c *PlaybackController) atGroupEndLocked() bool {
	return c.storyIndex == len(c.items)-1 &&
		c.mediaIndex == len(c.items[c.storyIndex])-1
}

// advanceLocked computes the next state: next media item, else next
// story, else Closed. Cross-group continuation is intentionally absent;
// the viewer closes at the end of the group.
func (c *PlaybackController) advanceLocked() {
	if c.mediaIndex < len(c.items[c.storyIndex])-1 {
		c.transitionLocked(c.storyIndex, c.mediaIndex+1)
		return
	}
	if c.storyIndex < len(c.items)-1 {
		c.transitionLocked(c.storyIndex+1, 0)
		return
	}
	c.closeLocked()
}

// transitionLocked is the single place state moves between items: the
// old timer dies before the indices change, progress resets to exactly
// zero, and only then may a fresh timer start.
func (c *PlaybackController) transitionLocked(storyIndex, mediaIndex int) {
	c.cancelTimerLocked()
	c.storyIndex = storyIndex
	c.mediaIndex = mediaIndex
	c.progress = 0
	c.emitLocked()
	c.startItemTimerLocked()
}

// startItemTimerLocked arms the display timer for the current item.
// Video items get no wall-clock timer at all: until the player reports
// a decoded duration there is nothing to time against, and afterwards
// progress is still driven by the player's position events.
func (c *PlaybackController) startItemTimerLocked() {
	it := c.items[c.storyIndex][c.mediaIndex]
	if it.Kind == ItemVideo {
		return
	}

	c.itemStarted = time.Now()
	seq := c.timerSeq
	c.timer = time.AfterFunc(c.cfg.ProgressTick, func() {
		c.tick(seq)
	})
}

// tick recomputes image progress and either reschedules itself or
// triggers the auto-advance once the display duration has elapsed.
func (c *PlaybackController) tick(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.timerSeq || !c.viewing {
		return
	}

	it := c.items[c.storyIndex][c.mediaIndex]
	elapsed := time.Since(c.itemStarted)

	if elapsed >= it.Duration {
		if c.progress < 100 {
			c.progress = 100
			c.emitLocked()
		}
		c.advanceLocked()
		return
	}

	p := int(elapsed * 100 / it.Duration)
	if p > 100 {
		p = 100
	}
	if p > c.progress {
		c.progress = p
		c.emitLocked()
	}

	c.timer = time.AfterFunc(c.cfg.ProgressTick, func() {
		c.tick(seq)
	})
}

// cancelTimerLocked invalidates every outstanding fire and stops the
// live timer handle. Called on every transition before anything new is
// scheduled, and by Close.
func (c *PlaybackController) cancelTimerLocked() {
	c.timerSeq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *PlaybackController) closeLocked() {
	c.cancelTimerLocked()
	c.viewing = false
	c.closed = true
	c.emitLocked()
}
