package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"glimpseAPI/middleware"
	"glimpseAPI/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type PlaybackHandler struct {
	playbackManager *services.PlaybackManager
	storyService    *services.StoryService
	userService     *services.UserService
}

func NewPlaybackHandler(playbackManager *services.PlaybackManager, storyService *services.StoryService, userService *services.UserService) *PlaybackHandler {
	return &PlaybackHandler{
		playbackManager: playbackManager,
		storyService:    storyService,
		userService:     userService,
	}
}

// OpenPlayback resolves the requested author's visible story group for
// this viewer and creates a playback session. The returned ws_url is
// where the client attaches to drive and observe playback.
func (h *PlaybackHandler) OpenPlayback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	u, err := h.userService.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "User not found")
		return
	}
	viewerID, err := uuid.Parse(u.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Invalid user record")
		return
	}

	var req struct {
		AuthorID   string `json:"author_id"`
		StoryIndex int    `json:"story_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	authorID, err := uuid.Parse(req.AuthorID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid author id")
		return
	}

	visibleIDs, err := h.userService.VisibleAuthorIDs(ctx, viewerID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve visible authors")
		return
	}

	groups, err := h.storyService.Feed(ctx, visibleIDs)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load stories")
		return
	}

	for _, g := range groups {
		if g.AuthorID != authorID {
			continue
		}

		sessionID := uuid.New().String()
		session := h.playbackManager.CreateSession(sessionID, u.ID, g, req.StoryIndex)

		respondWithJSON(w, http.StatusOK, map[string]any{
			"session_id": sessionID,
			"ws_url":     "/api/v1/playback/ws/" + sessionID,
			"group":      session.Group,
			"items":      session.Items,
		})
		return
	}

	respondWithError(w, http.StatusNotFound, "No visible stories for this author")
}

// JoinPlayback upgrades to a websocket and starts the session pumps.
// Opening the controller happens inside the read pump, after the
// connection exists, so the first state update is never lost.
func (h *PlaybackHandler) JoinPlayback(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]

	session, exists := h.playbackManager.GetSession(sessionID)
	if !exists {
		http.Error(w, "Playback session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Playback: could not upgrade connection: %v", err)
		return
	}

	go session.WritePump(conn)
	go session.ReadPump(conn)
}
