// The playback manager keeps one session per open viewer. The session owns the
// websocket plumbing (read/write pumps, ping/pong); the PlaybackController owns
// every piece of playback state and all timer lifecycle. Client events are only
// translated into controller calls here, never interpreted.
package services

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"glimpseAPI/internal/types/story"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// PlaybackEvent is the client → server message shape. Video events carry
// the indices they belong to so the controller can drop stale reports.
type PlaybackEvent struct {
	Action     string `json:"action"`
	StoryIndex int    `json:"story_index"`
	MediaIndex int    `json:"media_index"`
	PositionMs int64  `json:"position_ms"`
	DurationMs int64  `json:"duration_ms"`
}

// PlaybackSession ties one viewer's websocket to one controller.
type PlaybackSession struct {
	ID         string
	ViewerID   string
	StartIndex int
	Controller *PlaybackController
	Group      story.StoryGroup
	Items      [][]PlayableItem

	manager *PlaybackManager
	send    chan []byte
}

// PlaybackManager holds all open playback sessions.
type PlaybackManager struct {
	sessions  map[string]*PlaybackSession
	mu        sync.RWMutex
	sequencer *MediaSequencer
	cfg       PlaybackConfig
	gauge     func(active int)
}

func NewPlaybackManager(sequencer *MediaSequencer, cfg PlaybackConfig) *PlaybackManager {
	return &PlaybackManager{
		sessions:  make(map[string]*PlaybackSession),
		sequencer: sequencer,
		cfg:       cfg,
	}
}

// SetSessionGauge installs a callback invoked with the session count
// after every create and delete. Used to feed the active sessions metric
// without the manager knowing about the metrics registry.
func (m *PlaybackManager) SetSessionGauge(fn func(active int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauge = fn
}

// CreateSession builds a session and its controller for one group. The
// controller is not opened until the websocket attaches, so no timer can
// run before the viewer is actually watching.
func (m *PlaybackManager) CreateSession(sessionID, viewerID string, group story.StoryGroup, startIndex int) *PlaybackSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		return s
	}

	s := &PlaybackSession{
		ID:         sessionID,
		ViewerID:   viewerID,
		StartIndex: startIndex,
		Group:      group,
		manager:    m,
		send:       make(chan []byte, 64),
	}
	s.Controller = NewPlaybackController(m.sequencer, group, m.cfg, s.pushState)
	s.Items = make([][]PlayableItem, 0, len(group.Stories))
	for i := range group.Stories {
		s.Items = append(s.Items, m.sequencer.Sequence(&group.Stories[i]))
	}
	m.sessions[sessionID] = s
	if m.gauge != nil {
		m.gauge(len(m.sessions))
	}
	return s
}

func (m *PlaybackManager) GetSession(sessionID string) (*PlaybackSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

func (m *PlaybackManager) DeleteSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	if m.gauge != nil {
		m.gauge(len(m.sessions))
	}
}

// ActiveSessionCount feeds the playback sessions gauge.
func (m *PlaybackManager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// pushState is the controller's emit callback. It must never block: a
// viewer that stopped reading gets its update dropped, not the timers
// stalled behind a full channel.
func (s *PlaybackSession) pushState(u StateUpdate) {
	payload := struct {
		Action string      `json:"action"`
		State  StateUpdate `json:"state"`
	}{Action: "state", State: u}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Playback: failed to marshal state update: %v", err)
		return
	}

	select {
	case s.send <- data:
	default:
	}
}

// Send exposes the outgoing channel to the write pump.
func (s *PlaybackSession) Send() <-chan []byte {
	return s.send
}

// ReadPump consumes viewer events until the socket drops, then tears the
// session down. Closing the controller here guarantees no timer outlives
// the connection.
func (s *PlaybackSession) ReadPump(conn *websocket.Conn) {
	defer func() {
		s.Controller.Close()
		s.manager.DeleteSession(s.ID)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.Controller.Open(s.StartIndex)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Playback %s] read error: %v", s.ID, err)
			}
			return
		}

		var ev PlaybackEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			continue
		}

		switch ev.Action {
		case "manual_next":
			s.Controller.ManualNext()
		case "manual_prev":
			s.Controller.ManualPrev()
		case "jump_to":
			s.Controller.JumpTo(ev.StoryIndex, ev.MediaIndex)
		case "video_duration":
			s.Controller.VideoDuration(ev.StoryIndex, ev.MediaIndex, time.Duration(ev.DurationMs)*time.Millisecond)
		case "video_progress":
			s.Controller.VideoProgress(ev.StoryIndex, ev.MediaIndex,
				time.Duration(ev.PositionMs)*time.Millisecond,
				time.Duration(ev.DurationMs)*time.Millisecond)
		case "video_ended":
			s.Controller.VideoEnded(ev.StoryIndex, ev.MediaIndex)
		case "close":
			s.Controller.Close()
			return
		}
	}
}

// WritePump pushes state updates to the viewer and keeps the connection
// alive with pings.
func (s *PlaybackSession) WritePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
