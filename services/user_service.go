package services

import (
	"context"
	"errors"
	"fmt"

	"glimpseAPI/internal/types/story"
	"glimpseAPI/internal/user"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserService is the identity collaborator for the story subsystem. It
// resolves Clerk subjects to internal users, produces the denormalized
// author snapshot captured on every created story, and answers whose
// stories a viewer is allowed to see. Authentication itself happens in
// the Clerk middleware; this service never re-validates tokens.
type UserService struct {
	db *pgxpool.Pool
}

func NewUserService(db *pgxpool.Pool) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	query := `
	SELECT id, clerk_id, email, username, handle, image_url, created_at, updated_at
	FROM users
	WHERE clerk_id = $1
	`

	u := &user.User{}
	err := s.db.QueryRow(ctx, query, clerkID).Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.Handle,
		&u.ImageURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return u, nil
}

// ResolveAuthor returns the internal author id and display snapshot for
// a Clerk subject. ErrProfileIncomplete is returned when the account has
// not finished onboarding and therefore cannot publish.
func (s *UserService) ResolveAuthor(ctx context.Context, clerkID string) (uuid.UUID, story.AuthorSnapshot, error) {
	u, err := s.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		return uuid.Nil, story.AuthorSnapshot{}, err
	}

	if !u.ProfileCompleted() {
		return uuid.Nil, story.AuthorSnapshot{}, ErrProfileIncomplete
	}

	id, err := uuid.Parse(u.ID)
	if err != nil {
		return uuid.Nil, story.AuthorSnapshot{}, fmt.Errorf("invalid user id %q: %w", u.ID, err)
	}

	snapshot := story.AuthorSnapshot{
		Username: u.Username,
		Handle:   u.Handle,
		ImageURL: u.ImageURL,
	}
	return id, snapshot, nil
}

// GetFriendIDs returns the ids of the user's accepted friends.
func (s *UserService) GetFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `
	SELECT u.id
	FROM users u
	INNER JOIN friendships f ON (
		(f.user_id = u.id AND f.friend_id = $1)
		OR
		(f.friend_id = u.id AND f.user_id = $1)
	)
	WHERE f.status = 'accepted'
	AND u.id != $1
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get friends: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// VisibleAuthorIDs returns the author set whose stories the viewer may
// browse: their accepted friends plus the viewer themselves.
func (s *UserService) VisibleAuthorIDs(ctx context.Context, viewerID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.GetFriendIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return append(ids, viewerID), nil
}
