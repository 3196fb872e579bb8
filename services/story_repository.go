package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"glimpseAPI/internal/types/story"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// errWindowOccupied is returned by Insert when another story by the same
// author landed inside the rolling window between the service's check and
// the insert. The service re-maps it to a RateLimitedError.
var errWindowOccupied = errors.New("another story exists inside the rate-limit window")

// StoryRepository is the persistence boundary for stories. Expiry is
// enforced purely by the expires_at predicate on reads; callers must
// never rely on the reclamation sweep having already run.
type StoryRepository interface {
	// Insert persists the story and its media atomically. It re-validates
	// the rolling window: if the author already has a story with
	// created_at after cutoff, nothing is inserted and errWindowOccupied
	// is returned.
	Insert(ctx context.Context, s *story.Story, cutoff time.Time) error

	// LastCreatedAt returns the creation time of the author's most recent
	// story, expired or not. ok is false when the author has none.
	LastCreatedAt(ctx context.Context, authorID uuid.UUID) (t time.Time, ok bool, err error)

	// ListVisible returns all stories by the given authors with
	// expires_at after now, newest first.
	ListVisible(ctx context.Context, authorIDs []uuid.UUID, now time.Time) ([]story.Story, error)

	// Get returns the story regardless of expiry, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*story.Story, error)

	// Delete hard-deletes the story and its media rows.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteExpiredBefore removes stories whose expires_at is before t.
	// Storage reclamation only; visibility never depends on it.
	DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error)
}

// PostgresStoryRepository stores stories in Postgres via pgx.
type PostgresStoryRepository struct {
	db *pgxpool.Pool
}

func NewPostgresStoryRepository(db *pgxpool.Pool) *PostgresStoryRepository {
	return &PostgresStoryRepository{db: db}
}

// EnsureSchema creates the tables this subsystem owns. It is idempotent
// and invoked once at startup; the users and friendships tables belong
// to the identity collaborator and are assumed to exist.
func (r *PostgresStoryRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stories (
			id UUID PRIMARY KEY,
			author_id UUID NOT NULL,
			kind TEXT NOT NULL,
			text_content TEXT NOT NULL DEFAULT '',
			author_username TEXT NOT NULL,
			author_handle TEXT NOT NULL,
			author_image_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stories_author_created ON stories (author_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_stories_expires ON stories (expires_at)`,
		`CREATE TABLE IF NOT EXISTS story_media (
			story_id UUID NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
			position INT NOT NULL,
			url TEXT NOT NULL,
			storage_ref TEXT NOT NULL,
			kind TEXT NOT NULL,
			PRIMARY KEY (story_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			data JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS device_tokens (
			user_id UUID NOT NULL,
			token TEXT NOT NULL,
			platform TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, token)
		)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresStoryRepository) Insert(ctx context.Context, s *story.Story, cutoff time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The WHERE NOT EXISTS guard re-validates the rolling window at
	// commit time, so two near-simultaneous creates cannot both land.
	query := `
	INSERT INTO stories (id, author_id, kind, text_content, author_username, author_handle, author_image_url, created_at, expires_at)
	SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
	WHERE NOT EXISTS (
		SELECT 1 FROM stories WHERE author_id = $2 AND created_at > $10
	)
	`

	tag, err := tx.Exec(ctx, query,
		s.ID,
		s.AuthorID,
		s.Kind,
		s.TextContent,
		s.Author.Username,
		s.Author.Handle,
		s.Author.ImageURL,
		s.CreatedAt,
		s.ExpiresAt,
		cutoff,
	)
	if err != nil {
		return fmt.Errorf("failed to insert story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errWindowOccupied
	}

	for i, m := range s.Media {
		_, err := tx.Exec(ctx,
			`INSERT INTO story_media (story_id, position, url, storage_ref, kind) VALUES ($1, $2, $3, $4, $5)`,
			s.ID, i, m.URL, m.StorageRef, m.Kind,
		)
		if err != nil {
			return fmt.Errorf("failed to insert story media: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit story: %w", err)
	}
	return nil
}

func (r *PostgresStoryRepository) LastCreatedAt(ctx context.Context, authorID uuid.UUID) (time.Time, bool, error) {
	var t time.Time
	err := r.db.QueryRow(ctx,
		`SELECT created_at FROM stories WHERE author_id = $1 ORDER BY created_at DESC LIMIT 1`,
		authorID,
	).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get last story time: %w", err)
	}
	return t, true, nil
}

func (r *PostgresStoryRepository) ListVisible(ctx context.Context, authorIDs []uuid.UUID, now time.Time) ([]story.Story, error) {
	if len(authorIDs) == 0 {
		return []story.Story{}, nil
	}

	query := `
	SELECT id, author_id, kind, text_content, author_username, author_handle, author_image_url, created_at, expires_at
	FROM stories
	WHERE author_id = ANY($1) AND expires_at > $2
	ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, authorIDs, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	stories := make([]story.Story, 0)
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stories: %w", err)
	}

	if err := r.attachMedia(ctx, stories); err != nil {
		return nil, err
	}
	return stories, nil
}

func (r *PostgresStoryRepository) Get(ctx context.Context, id uuid.UUID) (*story.Story, error) {
	query := `
	SELECT id, author_id, kind, text_content, author_username, author_handle, author_image_url, created_at, expires_at
	FROM stories
	WHERE id = $1
	`

	row := r.db.QueryRow(ctx, query, id)
	s, err := scanStory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	one := []story.Story{*s}
	if err := r.attachMedia(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (r *PostgresStoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresStoryRepository) DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM stories WHERE expires_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired stories: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanStory(row pgx.Row) (*story.Story, error) {
	s := &story.Story{}
	err := row.Scan(
		&s.ID,
		&s.AuthorID,
		&s.Kind,
		&s.TextContent,
		&s.Author.Username,
		&s.Author.Handle,
		&s.Author.ImageURL,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan story: %w", err)
	}
	s.Media = []story.MediaItem{}
	return s, nil
}

// attachMedia loads the ordered media rows for every story in the slice.
func (r *PostgresStoryRepository) attachMedia(ctx context.Context, stories []story.Story) error {
	if len(stories) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(stories))
	index := make(map[uuid.UUID]int, len(stories))
	for i := range stories {
		ids = append(ids, stories[i].ID)
		index[stories[i].ID] = i
	}

	rows, err := r.db.Query(ctx,
		`SELECT story_id, url, storage_ref, kind FROM story_media WHERE story_id = ANY($1) ORDER BY story_id, position`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("failed to load story media: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var storyID uuid.UUID
		var m story.MediaItem
		if err := rows.Scan(&storyID, &m.URL, &m.StorageRef, &m.Kind); err != nil {
			return fmt.Errorf("failed to scan story media: %w", err)
		}
		if i, ok := index[storyID]; ok {
			stories[i].Media = append(stories[i].Media, m)
		}
	}
	return rows.Err()
}
