package services

import (
	"context"
	"fmt"
	"log"

	"glimpseAPI/internal/notification"
	"glimpseAPI/internal/types/story"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PushProvider abstracts FCM so the service stays testable without
// firebase credentials.
type PushProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

type NotificationService struct {
	db   *pgxpool.Pool
	push PushProvider
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) SetPushProvider(p PushProvider) {
	s.push = p
}

// NotifyStoryPosted fans a "new story" notification out to the author's
// friends: one row per friend plus a best-effort push. Failures here
// never fail the story creation that triggered them.
func (s *NotificationService) NotifyStoryPosted(ctx context.Context, st *story.Story, friendIDs []uuid.UUID) {
	title := st.Author.Username + " posted a story"
	message := "Tap to watch before it disappears"

	for _, friendID := range friendIDs {
		_, err := s.db.Exec(ctx,
			`INSERT INTO notifications (id, user_id, type, title, message, data)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), friendID, notification.NotificationStoryPosted, title, message,
			map[string]any{"story_id": st.ID.String(), "author_id": st.AuthorID.String()},
		)
		if err != nil {
			log.Printf("Notifications: failed to insert for user %s: %v", friendID, err)
			continue
		}

		if s.push == nil {
			continue
		}
		tokens, err := s.deviceTokens(ctx, friendID)
		if err != nil {
			log.Printf("Notifications: failed to load device tokens for %s: %v", friendID, err)
			continue
		}
		if err := s.push.SendPush(ctx, tokens, title, message, map[string]any{
			"type":     string(notification.NotificationStoryPosted),
			"story_id": st.ID.String(),
		}); err != nil {
			log.Printf("Notifications: push to %s failed: %v", friendID, err)
		}
	}
}

// GetNotifications returns the user's notifications, newest first.
func (s *NotificationService) GetNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]*notification.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, type, title, message, is_read, data, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Notification, 0)
	for rows.Next() {
		n := &notification.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.Data, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// RegisterDevice stores a push token for the user. Re-registering the
// same token is a no-op.
func (s *NotificationService) RegisterDevice(ctx context.Context, userID uuid.UUID, req *notification.RegisterDeviceRequest) error {
	if req.Token == "" {
		return &ValidationError{Reason: "device token is required"}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO device_tokens (user_id, token, platform)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, token) DO NOTHING`,
		userID, req.Token, req.Platform,
	)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *NotificationService) deviceTokens(ctx context.Context, userID uuid.UUID) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx,
		`SELECT token, platform FROM device_tokens WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := make([]notification.DeviceToken, 0)
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
