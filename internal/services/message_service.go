package services

import (
	"context"
	"errors"
	"time"

	"fellowship-chat/internal/auth"
	"fellowship-chat/internal/database"
	"fellowship-chat/internal/metrics"
	"fellowship-chat/internal/models"
	"fellowship-chat/pkg/apperr"

	"github.com/google/uuid"
)

// ListLimit caps the community and admin listings to bound response size.
const ListLimit = 100

type MessageService struct {
	db database.Database
}

func NewMessageService(db database.Database) *MessageService {
	return &MessageService{db: db}
}

// CreateMessage validates scope preconditions, persists the message and
// returns the stored copy. Community and admin messages are marked delivered
// immediately: membership in those rooms implies reachability. Private
// messages stay undelivered until the recipient acknowledges.
func (s *MessageService) CreateMessage(ctx context.Context, ident *auth.Identity, req *models.CreateMessageRequest) (*models.Message, error) {
	if req.Content == "" {
		return nil, apperr.Validation("message content is required")
	}

	scope := req.Scope
	if scope == "" {
		if req.RecipientID != "" {
			scope = models.ScopePrivate
		} else {
			scope = models.ScopeCommunity
		}
	}
	if !scope.Valid() {
		return nil, apperr.Validation("unknown chat type %q", req.Scope)
	}

	switch scope {
	case models.ScopePrivate:
		if req.RecipientID == "" {
			return nil, apperr.Validation("a private message requires a recipient")
		}
		if req.RecipientID == ident.ID {
			return nil, apperr.Validation("cannot send a private message to yourself")
		}
	case models.ScopeAdmin:
		if !ident.IsAdmin() {
			return nil, apperr.Authorization("Access denied. Admin privileges required.")
		}
		if req.RecipientID != "" {
			return nil, apperr.Validation("%s messages cannot have a recipient", scope)
		}
	case models.ScopeCommunity:
		if req.RecipientID != "" {
			return nil, apperr.Validation("%s messages cannot have a recipient", scope)
		}
	}

	msg := &models.Message{
		ID:          uuid.NewString(),
		Scope:       scope,
		AuthorID:    ident.ID,
		AuthorName:  ident.Name,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		CreatedAt:   time.Now().UTC(),
		Reactions:   make(map[string]models.Reaction),
	}

	if err := s.db.SaveMessage(ctx, msg); err != nil {
		return nil, apperr.Storage("Failed to send message.")
	}

	// Broadcast scopes are considered delivered as soon as they are stored.
	if scope != models.ScopePrivate {
		delivered, err := s.db.MarkDelivered(ctx, msg.ID, time.Now().UTC())
		if err != nil {
			return nil, apperr.Storage("Failed to send message.")
		}
		msg = delivered
	}

	metrics.MessagesSent.WithLabelValues(string(scope)).Inc()
	return msg, nil
}

func (s *MessageService) CommunityMessages(ctx context.Context) ([]*models.Message, error) {
	messages, err := s.db.ListCommunityMessages(ctx, ListLimit)
	if err != nil {
		return nil, apperr.Storage("Failed to fetch community messages.")
	}
	return messages, nil
}

func (s *MessageService) AdminMessages(ctx context.Context, ident *auth.Identity) ([]*models.Message, error) {
	if !ident.IsAdmin() {
		return nil, apperr.Authorization("Access denied. Admin privileges required.")
	}
	messages, err := s.db.ListAdminMessages(ctx, ListLimit)
	if err != nil {
		return nil, apperr.Storage("Failed to fetch admin messages.")
	}
	return messages, nil
}

func (s *MessageService) PrivateMessages(ctx context.Context, ident *auth.Identity, otherUserID string) ([]*models.Message, error) {
	if otherUserID == "" {
		return nil, apperr.Validation("User ID is required to fetch private messages.")
	}
	messages, err := s.db.ListPrivateMessages(ctx, ident.ID, otherUserID)
	if err != nil {
		return nil, apperr.Storage("Failed to fetch private messages.")
	}
	return messages, nil
}

// MarkDelivered advances a message to the delivered state. It is deliberately
// not checked against the caller's identity: it models transport-level
// receipt, not a user action.
func (s *MessageService) MarkDelivered(ctx context.Context, messageID string) (*models.Message, error) {
	msg, err := s.db.MarkDelivered(ctx, messageID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NotFound("Message not found.")
		}
		return nil, apperr.Storage("Failed to mark message as delivered.")
	}
	return msg, nil
}

// MarkRead advances a message to the read state, which implies delivered.
// Only the recipient of a private message, or the author of a community or
// admin message, may acknowledge it. Re-invocations are no-ops that still
// succeed, so duplicate client retries are safe.
func (s *MessageService) MarkRead(ctx context.Context, ident *auth.Identity, messageID string) (*models.Message, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NotFound("Message not found.")
		}
		return nil, apperr.Storage("Failed to mark message as read.")
	}

	if msg.Scope == models.ScopePrivate {
		if msg.RecipientID != ident.ID {
			return nil, apperr.Authorization("Unauthorized to mark this message as read.")
		}
	} else if msg.AuthorID != ident.ID {
		return nil, apperr.Authorization("Unauthorized to mark this message as read.")
	}

	updated, err := s.db.MarkRead(ctx, messageID, time.Now().UTC())
	if err != nil {
		return nil, apperr.Storage("Failed to mark message as read.")
	}
	return updated, nil
}

// ToggleReaction flips the caller's membership in the emoji's reaction set.
// Toggling twice restores the prior state; the emoji key disappears once the
// last user removes their reaction.
func (s *MessageService) ToggleReaction(ctx context.Context, ident *auth.Identity, messageID, emoji string) (*models.Message, error) {
	if emoji == "" {
		return nil, apperr.Validation("emoji is required")
	}

	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NotFound("Message not found.")
		}
		return nil, apperr.Storage("Failed to add reaction.")
	}

	reactions := msg.Reactions
	if reactions == nil {
		reactions = make(map[string]models.Reaction)
	}

	if msg.HasReaction(emoji, ident.ID) {
		r := reactions[emoji]
		users := make([]string, 0, len(r.Users)-1)
		for _, u := range r.Users {
			if u != ident.ID {
				users = append(users, u)
			}
		}
		if len(users) == 0 {
			delete(reactions, emoji)
		} else {
			reactions[emoji] = models.Reaction{Count: len(users), Users: users}
		}
	} else {
		r := reactions[emoji]
		r.Users = append(r.Users, ident.ID)
		r.Count = len(r.Users)
		reactions[emoji] = r
	}

	if err := s.db.UpdateReactions(ctx, messageID, reactions); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NotFound("Message not found.")
		}
		return nil, apperr.Storage("Failed to add reaction.")
	}

	metrics.ReactionsToggled.Inc()
	msg.Reactions = reactions
	return msg, nil
}

func (s *MessageService) UnreadCounts(ctx context.Context, ident *auth.Identity) (*models.UnreadCounts, error) {
	private, err := s.db.CountUnreadPrivate(ctx, ident.ID)
	if err != nil {
		return nil, apperr.Storage("Failed to fetch unread counts.")
	}

	communityMark, err := s.db.GetWatermark(ctx, ident.ID, models.ScopeCommunity)
	if err != nil {
		return nil, apperr.Storage("Failed to fetch unread counts.")
	}
	community, err := s.db.CountUnreadSince(ctx, models.ScopeCommunity, ident.ID, communityMark)
	if err != nil {
		return nil, apperr.Storage("Failed to fetch unread counts.")
	}

	admin := 0
	if ident.IsAdmin() {
		adminMark, err := s.db.GetWatermark(ctx, ident.ID, models.ScopeAdmin)
		if err != nil {
			return nil, apperr.Storage("Failed to fetch unread counts.")
		}
		admin, err = s.db.CountUnreadSince(ctx, models.ScopeAdmin, ident.ID, adminMark)
		if err != nil {
			return nil, apperr.Storage("Failed to fetch unread counts.")
		}
	}

	return &models.UnreadCounts{Private: private, Community: community, Admin: admin}, nil
}

// UpdateWatermark records that the user has caught up on a broadcast scope.
func (s *MessageService) UpdateWatermark(ctx context.Context, ident *auth.Identity, scope models.ChatScope) error {
	switch scope {
	case models.ScopeCommunity:
	case models.ScopeAdmin:
		if !ident.IsAdmin() {
			return apperr.Authorization("Access denied. Admin privileges required.")
		}
	default:
		return apperr.Validation("unknown watermark scope %q", scope)
	}

	if err := s.db.SetWatermark(ctx, ident.ID, scope, time.Now().UTC()); err != nil {
		return apperr.Storage("Failed to update watermark.")
	}
	return nil
}
