package database

import (
	"context"
	"errors"
	"time"

	"fellowship-chat/internal/models"
)

// ErrNotFound is returned for operations referencing an unknown message id.
var ErrNotFound = errors.New("not found")

type MessageRepository interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListCommunityMessages(ctx context.Context, limit int) ([]*models.Message, error)
	ListAdminMessages(ctx context.Context, limit int) ([]*models.Message, error)
	ListPrivateMessages(ctx context.Context, userA, userB string) ([]*models.Message, error)

	// MarkDelivered and MarkRead are idempotent, monotonic transitions:
	// existing timestamps are never overwritten and MarkRead also advances
	// the delivered state. Both return the message after the transition.
	MarkDelivered(ctx context.Context, id string, at time.Time) (*models.Message, error)
	MarkRead(ctx context.Context, id string, at time.Time) (*models.Message, error)

	UpdateReactions(ctx context.Context, id string, reactions map[string]models.Reaction) error

	CountUnreadPrivate(ctx context.Context, userID string) (map[string]int, error)
	CountUnreadSince(ctx context.Context, scope models.ChatScope, userID string, since time.Time) (int, error)
}

type WatermarkRepository interface {
	GetWatermark(ctx context.Context, userID string, scope models.ChatScope) (time.Time, error)
	SetWatermark(ctx context.Context, userID string, scope models.ChatScope, at time.Time) error
}

type Database interface {
	MessageRepository
	WatermarkRepository
	Close() error
}
