package chat

import (
	"sort"
	"strings"

	"fellowship-chat/internal/models"
)

const (
	RoomCommunity = "community"
	RoomAdmin     = "admin"
)

// RoomForScope derives the fan-out room for a message. Private rooms are the
// two participant ids sorted and joined with "-", so both sides always
// compute the same room regardless of who is author and who is recipient.
func RoomForScope(scope models.ChatScope, authorID, recipientID string) string {
	switch scope {
	case models.ScopeAdmin:
		return RoomAdmin
	case models.ScopePrivate:
		if recipientID != "" {
			return PrivateRoom(authorID, recipientID)
		}
	}
	return RoomCommunity
}

// RoomForMessage derives the fan-out room for a stored message.
func RoomForMessage(m *models.Message) string {
	return RoomForScope(m.Scope, m.AuthorID, m.RecipientID)
}

// PrivateRoom returns the canonical pairwise room id for two users.
func PrivateRoom(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, "-")
}
