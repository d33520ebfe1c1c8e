package models

import "time"

type ChatScope string

const (
	ScopeCommunity ChatScope = "community"
	ScopeAdmin     ChatScope = "admin"
	ScopePrivate   ChatScope = "private"
)

func (s ChatScope) Valid() bool {
	switch s {
	case ScopeCommunity, ScopeAdmin, ScopePrivate:
		return true
	}
	return false
}

// Reaction aggregates all users who reacted with one emoji.
// Count always equals len(Users); the emoji key is dropped at zero.
type Reaction struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

type Message struct {
	ID          string              `json:"_id"`
	Scope       ChatScope           `json:"chatType"`
	AuthorID    string              `json:"authorId"`
	AuthorName  string              `json:"authorName,omitempty"`
	RecipientID string              `json:"recipientId,omitempty"`
	Content     string              `json:"content"`
	CreatedAt   time.Time           `json:"created_at"`
	Delivered   bool                `json:"delivered"`
	DeliveredAt *time.Time          `json:"deliveredAt,omitempty"`
	Read        bool                `json:"read"`
	ReadAt      *time.Time          `json:"readAt,omitempty"`
	Reactions   map[string]Reaction `json:"reactions"`
}

// HasReaction reports whether userID already reacted with emoji.
func (m *Message) HasReaction(emoji, userID string) bool {
	r, ok := m.Reactions[emoji]
	if !ok {
		return false
	}
	for _, u := range r.Users {
		if u == userID {
			return true
		}
	}
	return false
}

type CreateMessageRequest struct {
	Scope       ChatScope `json:"chatType"`
	RecipientID string    `json:"recipientId,omitempty"`
	Content     string    `json:"content"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// UnreadCounts mirrors the payload of GET /api/messages/unread-counts:
// per-sender counts of unread private messages plus watermark-based
// counts for the broadcast scopes.
type UnreadCounts struct {
	Private   map[string]int `json:"private"`
	Community int            `json:"community"`
	Admin     int            `json:"admin"`
}

// Watermark records the last time a user caught up on a broadcast scope.
type Watermark struct {
	UserID     string    `json:"user_id"`
	Scope      ChatScope `json:"scope"`
	LastReadAt time.Time `json:"last_read_at"`
}

type OnlineUser struct {
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	LastActivity time.Time `json:"lastActivity"`
	IsOnline     bool      `json:"isOnline"`
}
