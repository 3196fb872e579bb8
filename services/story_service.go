package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"glimpseAPI/internal/types/story"

	"github.com/google/uuid"
)

// MediaRemover deletes an uploaded binary by its storage ref. Satisfied
// by the firebase store.
type MediaRemover interface {
	Delete(ctx context.Context, storageRef string) error
}

// StoryService owns the story lifecycle: creation with the rolling 24h
// per-author limit, expiry-aware listing, and owner-checked deletion.
type StoryService struct {
	repo  StoryRepository
	media MediaRemover

	// now is swappable in tests; everything timestamp-related flows
	// through it so the rate-limit arithmetic is deterministic.
	now func() time.Time
}

func NewStoryService(repo StoryRepository) *StoryService {
	return &StoryService{
		repo: repo,
		now:  time.Now,
	}
}

// SetMediaRemover enables binary cleanup on story deletion. Without it
// deleted stories leave their objects behind for manual reclamation.
func (s *StoryService) SetMediaRemover(m MediaRemover) {
	s.media = m
}

// Create validates the request, enforces the rolling window measured
// from the author's most recent story, and persists atomically. All
// media must already be uploaded; partial stories never exist.
func (s *StoryService) Create(ctx context.Context, authorID uuid.UUID, author story.AuthorSnapshot, req *story.CreateStoryRequest) (*story.Story, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()

	last, ok, err := s.repo.LastCreatedAt(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to check story window: %w", err)
	}
	if ok && now.Before(last.Add(story.TTL)) {
		return nil, rateLimited(last, now)
	}

	st := &story.Story{
		ID:          uuid.New(),
		AuthorID:    authorID,
		Kind:        req.Kind,
		TextContent: strings.TrimSpace(req.TextContent),
		Media:       append([]story.MediaItem{}, req.Media...),
		Author:      author,
		CreatedAt:   now,
		ExpiresAt:   now.Add(story.TTL),
	}

	err = s.repo.Insert(ctx, st, now.Add(-story.TTL))
	if errors.Is(err, errWindowOccupied) {
		// Another device won the race between the check and the insert.
		if last, ok, lastErr := s.repo.LastCreatedAt(ctx, authorID); lastErr == nil && ok {
			return nil, rateLimited(last, now)
		}
		return nil, rateLimited(now, now)
	}
	if err != nil {
		return nil, err
	}

	return st, nil
}

// Feed lists every visible story of the given authors and regroups them
// per author for browsing.
func (s *StoryService) Feed(ctx context.Context, visibleAuthorIDs []uuid.UUID) ([]story.StoryGroup, error) {
	stories, err := s.repo.ListVisible(ctx, visibleAuthorIDs, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return GroupByAuthor(stories), nil
}

// Delete hard-deletes the story. Only the author may delete; an expired
// or missing story reads as not found.
func (s *StoryService) Delete(ctx context.Context, storyID, requesterID uuid.UUID) error {
	st, err := s.repo.Get(ctx, storyID)
	if err != nil {
		return err
	}
	if !st.VisibleAt(s.now().UTC()) {
		return ErrNotFound
	}
	if st.AuthorID != requesterID {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, storyID); err != nil {
		return err
	}

	// Binary cleanup is best effort; the row is already gone.
	if s.media != nil {
		for _, m := range st.Media {
			if err := s.media.Delete(ctx, m.StorageRef); err != nil {
				log.Printf("Stories: failed to remove media object %s: %v", m.StorageRef, err)
			}
		}
	}
	return nil
}

func validateCreateRequest(req *story.CreateStoryRequest) error {
	switch req.Kind {
	case story.KindText:
		if strings.TrimSpace(req.TextContent) == "" {
			return &ValidationError{Reason: "text story requires textContent"}
		}
		if len(req.Media) > 0 {
			return &ValidationError{Reason: "text story cannot carry media"}
		}
	case story.KindImage, story.KindVideo:
		if len(req.Media) == 0 {
			return &ValidationError{Reason: string(req.Kind) + " story requires at least one media item"}
		}
		if story.DeriveKind(req.Media) != req.Kind {
			return &ValidationError{Reason: "declared kind does not match first media item"}
		}
	default:
		return &ValidationError{Reason: "unknown story kind"}
	}

	for _, m := range req.Media {
		if m.Kind != story.MediaImage && m.Kind != story.MediaVideo {
			return &ValidationError{Reason: "unknown media kind"}
		}
		if m.URL == "" || m.StorageRef == "" {
			// An upstream upload failed; never persist a partial story.
			return &ValidationError{Reason: "media item is missing its upload reference"}
		}
	}
	return nil
}

func rateLimited(last, now time.Time) *RateLimitedError {
	next := last.Add(story.TTL)
	remaining := next.Sub(now)
	hours := int((remaining + time.Hour - 1) / time.Hour)
	if hours < 1 {
		hours = 1
	}
	return &RateLimitedError{
		HoursRemaining:  hours,
		NextAvailableAt: next,
	}
}
