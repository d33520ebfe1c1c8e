package models

import (
	"encoding/json"
	"time"
)

type EventType string

// Inbound realtime events.
const (
	EventJoinRoom          EventType = "join-room"
	EventLeaveRoom         EventType = "leave-room"
	EventSendMessage       EventType = "send-message"
	EventMessageDelivered  EventType = "message-delivered"
	EventMessageRead       EventType = "message-read"
	EventUserTyping        EventType = "user-typing"
	EventUserStoppedTyping EventType = "user-stopped-typing"
	EventUserActivity      EventType = "user-activity"
	EventMessageReaction   EventType = "message-reaction"
	EventStartPrivateChat  EventType = "start-private-chat"
)

// Outbound realtime events.
const (
	EventNewMessage           EventType = "new-message"
	EventUserOnline           EventType = "user-online"
	EventUserOffline          EventType = "user-offline"
	EventOnlineUsersList      EventType = "online-users-list"
	EventMessageStatusUpdated EventType = "message-status-updated"
	EventReactionAdded        EventType = "reaction-added"
	EventPrivateChatStarted   EventType = "private-chat-started"
)

// Envelope is the wire frame for every realtime event in both directions.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event EventType, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Inbound payloads.

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type MessageIDPayload struct {
	MessageID string `json:"messageId"`
}

type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserName string `json:"userName,omitempty"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type StartPrivateChatPayload struct {
	TargetUserID string `json:"targetUserId"`
}

// Outbound payloads.

type UserOnlinePayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type UserOfflinePayload struct {
	UserID string `json:"userId"`
}

type TypingNotification struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	ChatID   string `json:"chatId"`
}

type MessageReadNotification struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

type MessageStatusUpdate struct {
	MessageID   string     `json:"messageId"`
	Delivered   *bool      `json:"delivered,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	Read        *bool      `json:"read,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

type ReactionNotification struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

type PrivateChatStartedPayload struct {
	RoomID        string `json:"roomId"`
	InitiatorID   string `json:"initiatorId"`
	InitiatorName string `json:"initiatorName"`
}

type UserActivityPayload struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}
