package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"glimpseAPI/internal/types/story"
	"glimpseAPI/middleware"
	"glimpseAPI/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"
)

type StoryHandler struct {
	storyService        *services.StoryService
	userService         *services.UserService
	notificationService *services.NotificationService
}

func NewStoryHandler(storyService *services.StoryService, userService *services.UserService, notificationService *services.NotificationService) *StoryHandler {
	return &StoryHandler{
		storyService:        storyService,
		userService:         userService,
		notificationService: notificationService,
	}
}

func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	authorID, snapshot, err := h.userService.ResolveAuthor(ctx, clerkID)
	if err != nil {
		if errors.Is(err, services.ErrProfileIncomplete) {
			respondWithError(w, http.StatusForbidden, "Complete your profile before posting stories")
			return
		}
		respondWithError(w, http.StatusUnauthorized, "User not found")
		return
	}

	var req story.CreateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	st, err := h.storyService.Create(ctx, authorID, snapshot, &req)
	if err != nil {
		h.respondCreateError(w, err)
		return
	}

	middleware.StoriesCreated.Inc()

	// Fan-out must not delay or fail the publish.
	if friendIDs, ferr := h.userService.GetFriendIDs(ctx, authorID); ferr == nil {
		go h.notificationService.NotifyStoryPosted(context.Background(), st, friendIDs)
	}

	respondWithJSON(w, http.StatusCreated, map[string]any{"story": st})
}

func (h *StoryHandler) respondCreateError(w http.ResponseWriter, err error) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		respondWithError(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	var limited *services.RateLimitedError
	if errors.As(err, &limited) {
		middleware.StoriesRateLimited.Inc()
		respondWithJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":             limited.Error(),
			"hours_remaining":   limited.HoursRemaining,
			"next_available_at": limited.NextAvailableAt,
		})
		return
	}

	respondWithError(w, http.StatusInternalServerError, "Failed to create story")
}

func (h *StoryHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	viewerID, ok := h.resolveViewer(ctx, w)
	if !ok {
		return
	}

	authorIDs, err := h.userService.VisibleAuthorIDs(ctx, viewerID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve visible authors")
		return
	}

	groups, err := h.storyService.Feed(ctx, authorIDs)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load stories")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *StoryHandler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	viewerID, ok := h.resolveViewer(ctx, w)
	if !ok {
		return
	}

	storyID, err := uuid.Parse(mux.Vars(r)["storyID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid story id")
		return
	}

	if err := h.storyService.Delete(ctx, storyID, viewerID); err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "Story not found")
		case errors.Is(err, services.ErrForbidden):
			respondWithError(w, http.StatusForbidden, "Only the author can delete a story")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to delete story")
		}
		return
	}

	middleware.StoriesDeleted.Inc()
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ShareStory renders a QR code for the story's deep link so a story can
// be handed to someone in person before it expires.
func (h *StoryHandler) ShareStory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.resolveViewer(ctx, w); !ok {
		return
	}

	storyID, err := uuid.Parse(mux.Vars(r)["storyID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid story id")
		return
	}

	link := fmt.Sprintf("glimpse://story/%s", storyID)
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"link":           link,
		"qr_code_base64": base64.StdEncoding.EncodeToString(png),
	})
}

// resolveViewer maps the authenticated Clerk subject to the internal
// user id, writing the error response itself on failure.
func (h *StoryHandler) resolveViewer(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}

	u, err := h.userService.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "User not found")
		return uuid.Nil, false
	}

	viewerID, err := uuid.Parse(u.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Invalid user record")
		return uuid.Nil, false
	}
	return viewerID, true
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
