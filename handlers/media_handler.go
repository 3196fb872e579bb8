package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"glimpseAPI/middleware"
	"glimpseAPI/services"
)

// Uploads can be large; give them more room than the JSON endpoints.
const uploadTimeout = 60 * time.Second

const maxUploadBytes = 64 << 20 // 64 MiB

type MediaHandler struct {
	mediaService *services.MediaService
}

func NewMediaHandler(mediaService *services.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// UploadMedia streams one file to the storage collaborator and returns
// the references the client must echo back in its create-story request.
// Clients upload every item of a multi-media story before creating it;
// any failure here means the story is simply never created.
func (h *MediaHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()

	if h.mediaService == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Media storage is not configured")
		return
	}

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Missing file upload")
		return
	}
	defer file.Close()

	result, err := h.mediaService.Upload(ctx, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		var uploadErr *services.UploadError
		if errors.As(err, &uploadErr) {
			respondWithError(w, http.StatusBadGateway, uploadErr.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
