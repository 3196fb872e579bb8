package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"glimpseAPI/internal/types/story"

	"github.com/google/uuid"
)

// MemoryStoryRepository is a concurrency-safe in-memory StoryRepository
// used by the service tests. Semantics match the Postgres implementation,
// including the insert-time window re-validation.
type MemoryStoryRepository struct {
	mu      sync.RWMutex
	stories map[uuid.UUID]story.Story
}

func NewMemoryStoryRepository() *MemoryStoryRepository {
	return &MemoryStoryRepository{stories: make(map[uuid.UUID]story.Story)}
}

func (r *MemoryStoryRepository) Insert(ctx context.Context, s *story.Story, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.stories {
		if existing.AuthorID == s.AuthorID && existing.CreatedAt.After(cutoff) {
			return errWindowOccupied
		}
	}

	stored := *s
	stored.Media = append([]story.MediaItem(nil), s.Media...)
	r.stories[s.ID] = stored
	return nil
}

func (r *MemoryStoryRepository) LastCreatedAt(ctx context.Context, authorID uuid.UUID) (time.Time, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last time.Time
	found := false
	for _, s := range r.stories {
		if s.AuthorID == authorID && s.CreatedAt.After(last) {
			last = s.CreatedAt
			found = true
		}
	}
	return last, found, nil
}

func (r *MemoryStoryRepository) ListVisible(ctx context.Context, authorIDs []uuid.UUID, now time.Time) ([]story.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	allowed := make(map[uuid.UUID]bool, len(authorIDs))
	for _, id := range authorIDs {
		allowed[id] = true
	}

	out := make([]story.Story, 0)
	for _, s := range r.stories {
		if allowed[s.AuthorID] && s.VisibleAt(now) {
			out = append(out, s)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryStoryRepository) Get(ctx context.Context, id uuid.UUID) (*story.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *MemoryStoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stories[id]; !ok {
		return ErrNotFound
	}
	delete(r.stories, id)
	return nil
}

func (r *MemoryStoryRepository) DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.stories {
		if s.ExpiresAt.Before(t) {
			delete(r.stories, id)
			n++
		}
	}
	return n, nil
}
