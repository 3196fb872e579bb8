package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"glimpseAPI/internal/types/story"

	"github.com/google/uuid"
)

func newTestStoryService(start time.Time) (*StoryService, *MemoryStoryRepository, *time.Time) {
	repo := NewMemoryStoryRepository()
	svc := NewStoryService(repo)
	now := start
	svc.now = func() time.Time { return now }
	return svc, repo, &now
}

func imageRequest() *story.CreateStoryRequest {
	return &story.CreateStoryRequest{
		Kind: story.KindImage,
		Media: []story.MediaItem{
			{URL: "https://cdn.example/a.jpg", StorageRef: "stories/a.jpg", Kind: story.MediaImage},
		},
	}
}

func TestCreateSetsExpiry(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _ := newTestStoryService(start)

	st, err := svc.Create(context.Background(), uuid.New(), story.AuthorSnapshot{Username: "ana", Handle: "ana"}, imageRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !st.ExpiresAt.Equal(st.CreatedAt.Add(story.TTL)) {
		t.Errorf("ExpiresAt = %v, want CreatedAt + 24h (%v)", st.ExpiresAt, st.CreatedAt.Add(story.TTL))
	}
	if st.VisibleAt(st.ExpiresAt) {
		t.Error("story must not be visible at the exact expiry instant")
	}
	if !st.VisibleAt(st.ExpiresAt.Add(-time.Second)) {
		t.Error("story must be visible just before expiry")
	}
}

func TestCreateRollingWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, now := newTestStoryService(start)
	authorID := uuid.New()
	author := story.AuthorSnapshot{Username: "ana", Handle: "ana"}

	if _, err := svc.Create(context.Background(), authorID, author, imageRequest()); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	// One minute before the window opens again.
	*now = start.Add(24*time.Hour - time.Minute)
	_, err := svc.Create(context.Background(), authorID, author, imageRequest())
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("Create inside window: got %v, want RateLimitedError", err)
	}
	if rl.HoursRemaining != 1 {
		t.Errorf("HoursRemaining = %d, want 1", rl.HoursRemaining)
	}
	if !rl.NextAvailableAt.Equal(start.Add(24 * time.Hour)) {
		t.Errorf("NextAvailableAt = %v, want %v", rl.NextAvailableAt, start.Add(24*time.Hour))
	}

	// One minute after the window opens.
	*now = start.Add(24*time.Hour + time.Minute)
	if _, err := svc.Create(context.Background(), authorID, author, imageRequest()); err != nil {
		t.Fatalf("Create after window: %v", err)
	}
}

func TestCreateHoursRemainingRoundsUp(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, now := newTestStoryService(start)
	authorID := uuid.New()
	author := story.AuthorSnapshot{Username: "ana", Handle: "ana"}

	if _, err := svc.Create(context.Background(), authorID, author, imageRequest()); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	*now = start.Add(30 * time.Minute) // 23.5h remaining
	_, err := svc.Create(context.Background(), authorID, author, imageRequest())
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("got %v, want RateLimitedError", err)
	}
	if rl.HoursRemaining != 24 {
		t.Errorf("HoursRemaining = %d, want 24", rl.HoursRemaining)
	}
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name string
		req  *story.CreateStoryRequest
	}{
		{"text without content", &story.CreateStoryRequest{Kind: story.KindText}},
		{"text with media", &story.CreateStoryRequest{
			Kind:        story.KindText,
			TextContent: "hey",
			Media:       []story.MediaItem{{URL: "u", StorageRef: "r", Kind: story.MediaImage}},
		}},
		{"image without media", &story.CreateStoryRequest{Kind: story.KindImage}},
		{"kind mismatch", &story.CreateStoryRequest{
			Kind:  story.KindImage,
			Media: []story.MediaItem{{URL: "u", StorageRef: "r", Kind: story.MediaVideo}},
		}},
		{"missing storage ref", &story.CreateStoryRequest{
			Kind:  story.KindImage,
			Media: []story.MediaItem{{URL: "u", Kind: story.MediaImage}},
		}},
		{"unknown kind", &story.CreateStoryRequest{Kind: "gif"}},
	}

	svc, _, _ := newTestStoryService(time.Now().UTC())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), uuid.New(), story.AuthorSnapshot{}, tc.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}
}

// blindRepo never reports a previous story, forcing Create past its
// window check and into the insert-time re-validation.
type blindRepo struct {
	*MemoryStoryRepository
}

func (r *blindRepo) LastCreatedAt(ctx context.Context, authorID uuid.UUID) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func TestCreateWindowRaceCaughtAtInsert(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mem := NewMemoryStoryRepository()
	svc := NewStoryService(&blindRepo{mem})
	svc.now = func() time.Time { return start }
	authorID := uuid.New()
	author := story.AuthorSnapshot{Username: "ana", Handle: "ana"}

	if _, err := svc.Create(context.Background(), authorID, author, imageRequest()); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	_, err := svc.Create(context.Background(), authorID, author, imageRequest())
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("got %v, want RateLimitedError from insert conflict", err)
	}
}

func TestDeleteByNonOwner(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, _ := newTestStoryService(start)
	authorID := uuid.New()

	st, err := svc.Create(context.Background(), authorID, story.AuthorSnapshot{Username: "ana", Handle: "ana"}, imageRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(context.Background(), st.ID, uuid.New()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Delete by non-owner: got %v, want ErrForbidden", err)
	}

	if _, err := repo.Get(context.Background(), st.ID); err != nil {
		t.Errorf("story should still exist after rejected delete: %v", err)
	}

	if err := svc.Delete(context.Background(), st.ID, authorID); err != nil {
		t.Fatalf("Delete by owner: %v", err)
	}
	if _, err := repo.Get(context.Background(), st.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("story should be gone after owner delete, got %v", err)
	}
}

type fakeRemover struct {
	removed []string
}

func (f *fakeRemover) Delete(ctx context.Context, storageRef string) error {
	f.removed = append(f.removed, storageRef)
	return nil
}

func TestDeleteRemovesMediaBinaries(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _ := newTestStoryService(start)
	remover := &fakeRemover{}
	svc.SetMediaRemover(remover)
	authorID := uuid.New()

	st, err := svc.Create(context.Background(), authorID, story.AuthorSnapshot{Username: "ana", Handle: "ana"}, imageRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(context.Background(), st.ID, authorID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(remover.removed) != 1 || remover.removed[0] != "stories/a.jpg" {
		t.Errorf("removed refs = %v, want the story's storage ref", remover.removed)
	}
}

func TestDeleteExpiredReadsAsNotFound(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, now := newTestStoryService(start)
	authorID := uuid.New()

	st, err := svc.Create(context.Background(), authorID, story.AuthorSnapshot{Username: "ana", Handle: "ana"}, imageRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	*now = start.Add(25 * time.Hour)
	if err := svc.Delete(context.Background(), st.ID, authorID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete of expired story: got %v, want ErrNotFound", err)
	}
}

func TestFeedFiltersExpiredAndForeignAuthors(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, now := newTestStoryService(start)
	friend := uuid.New()
	stranger := uuid.New()

	if _, err := svc.Create(context.Background(), friend, story.AuthorSnapshot{Username: "bo", Handle: "bo"}, imageRequest()); err != nil {
		t.Fatalf("Create friend story: %v", err)
	}
	if _, err := svc.Create(context.Background(), stranger, story.AuthorSnapshot{Username: "cy", Handle: "cy"}, imageRequest()); err != nil {
		t.Fatalf("Create stranger story: %v", err)
	}

	groups, err := svc.Feed(context.Background(), []uuid.UUID{friend})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(groups) != 1 || groups[0].AuthorID != friend {
		t.Fatalf("Feed = %+v, want exactly the friend's group", groups)
	}

	*now = start.Add(25 * time.Hour)
	groups, err = svc.Feed(context.Background(), []uuid.UUID{friend})
	if err != nil {
		t.Fatalf("Feed after expiry: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expired stories leaked into the feed: %+v", groups)
	}
}
