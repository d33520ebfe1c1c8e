package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"fellowship-chat/internal/auth"
	"fellowship-chat/internal/chat"
	"fellowship-chat/internal/metrics"
	"fellowship-chat/internal/models"
	"fellowship-chat/internal/services"
	"fellowship-chat/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 4096
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// Client is one authenticated realtime session. Inbound events are decoded
// and dispatched by ReadPump; outbound frames are queued on send and flushed
// by WritePump.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity *auth.Identity
	messages *services.MessageService

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, identity *auth.Identity, messages *services.MessageService) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		identity: identity,
		messages: messages,
		send:     make(chan []byte, sendBufferSize),
	}
}

func (c *Client) UserID() string   { return c.identity.ID }
func (c *Client) UserName() string { return c.identity.Name }

// Enqueue queues an outbound frame without blocking. A full buffer drops the
// frame; the client reconciles via the HTTP surface on reconnect.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		metrics.BroadcastsDropped.Inc()
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Error("Error decoding event from %s: %v", c.UserID(), err)
			continue
		}
		c.handleEvent(&env)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent dispatches one inbound event. Storage failures are logged and
// the corresponding broadcast dropped; the operation is not retried.
func (c *Client) handleEvent(env *models.Envelope) {
	switch env.Event {
	case models.EventJoinRoom:
		var payload models.RoomPayload
		if decode(env.Data, &payload) && payload.RoomID != "" {
			c.hub.Join(c, payload.RoomID)
		}

	case models.EventLeaveRoom:
		var payload models.RoomPayload
		if decode(env.Data, &payload) && payload.RoomID != "" {
			c.hub.Leave(c, payload.RoomID)
		}

	case models.EventSendMessage:
		c.handleSendMessage(env.Data)

	case models.EventMessageDelivered:
		if id := decodeMessageID(env.Data); id != "" {
			c.handleMessageDelivered(id)
		}

	case models.EventMessageRead:
		if id := decodeMessageID(env.Data); id != "" {
			c.handleMessageRead(id)
		}

	case models.EventUserTyping:
		var payload models.TypingPayload
		if decode(env.Data, &payload) && payload.ChatID != "" {
			c.handleTyping(&payload)
		}

	case models.EventUserStoppedTyping:
		var payload models.TypingPayload
		if decode(env.Data, &payload) && payload.ChatID != "" {
			c.hub.Typing().Stop(payload.ChatID, c.UserID())
		}

	case models.EventUserActivity:
		c.handleUserActivity()

	case models.EventMessageReaction:
		var payload models.ReactionPayload
		if decode(env.Data, &payload) {
			c.handleReaction(&payload)
		}

	case models.EventStartPrivateChat:
		c.handleStartPrivateChat(env.Data)

	default:
		logger.Debug("Ignoring unknown event %q from %s", env.Event, c.UserID())
	}
}

func (c *Client) handleSendMessage(data json.RawMessage) {
	var req models.CreateMessageRequest
	if !decode(data, &req) {
		return
	}

	msg, err := c.messages.CreateMessage(context.Background(), c.identity, &req)
	if err != nil {
		logger.Error("Error creating message from %s: %v", c.UserID(), err)
		return
	}

	// Everyone joined to the room, the author included, receives the
	// canonical stored copy with its server-assigned id and timestamp.
	room := chat.RoomForMessage(msg)
	c.broadcastToRoom(room, models.EventNewMessage, msg)
}

func (c *Client) handleMessageDelivered(messageID string) {
	msg, err := c.messages.MarkDelivered(context.Background(), messageID)
	if err != nil {
		logger.Error("Error marking message as delivered: %v", err)
		return
	}

	delivered := true
	c.broadcastToRoom(chat.RoomForMessage(msg), models.EventMessageStatusUpdated, models.MessageStatusUpdate{
		MessageID:   msg.ID,
		Delivered:   &delivered,
		DeliveredAt: msg.DeliveredAt,
	})
}

func (c *Client) handleMessageRead(messageID string) {
	msg, err := c.messages.MarkRead(context.Background(), c.identity, messageID)
	if err != nil {
		logger.Error("Error marking message as read: %v", err)
		return
	}

	room := chat.RoomForMessage(msg)
	c.broadcastToRoom(room, models.EventMessageRead, models.MessageReadNotification{
		MessageID: msg.ID,
		UserID:    c.UserID(),
	})

	read, delivered := true, true
	c.broadcastToRoom(room, models.EventMessageStatusUpdated, models.MessageStatusUpdate{
		MessageID:   msg.ID,
		Read:        &read,
		ReadAt:      msg.ReadAt,
		Delivered:   &delivered,
		DeliveredAt: msg.DeliveredAt,
	})
}

func (c *Client) handleTyping(payload *models.TypingPayload) {
	userName := payload.UserName
	if userName == "" {
		userName = c.UserName()
	}

	// A renewed signal only re-arms the expiry; no duplicate notification.
	if !c.hub.Typing().Start(payload.ChatID, c.UserID(), userName) {
		return
	}

	data, err := models.NewEnvelope(models.EventUserTyping, models.TypingNotification{
		UserID:   c.UserID(),
		UserName: userName,
		ChatID:   payload.ChatID,
	})
	if err != nil {
		logger.Error("Error marshaling typing notification: %v", err)
		return
	}
	c.hub.BroadcastRoomExcept(payload.ChatID, c, data)
}

func (c *Client) handleUserActivity() {
	ts, ok := c.hub.Presence().Touch(c.UserID())
	if !ok {
		return
	}

	data, err := models.NewEnvelope(models.EventUserActivity, models.UserActivityPayload{
		UserID:    c.UserID(),
		Timestamp: ts,
	})
	if err != nil {
		logger.Error("Error marshaling activity notification: %v", err)
		return
	}
	c.hub.BroadcastAllExcept(c, data)
}

func (c *Client) handleReaction(payload *models.ReactionPayload) {
	msg, err := c.messages.ToggleReaction(context.Background(), c.identity, payload.MessageID, payload.Emoji)
	if err != nil {
		logger.Error("Error toggling reaction: %v", err)
		return
	}

	c.broadcastToRoom(chat.RoomForMessage(msg), models.EventReactionAdded, models.ReactionNotification{
		MessageID: msg.ID,
		Emoji:     payload.Emoji,
		UserID:    c.UserID(),
		UserName:  c.UserName(),
	})
}

func (c *Client) handleStartPrivateChat(data json.RawMessage) {
	var payload models.StartPrivateChatPayload
	if !decode(data, &payload) || payload.TargetUserID == "" {
		return
	}

	room := chat.PrivateRoom(c.UserID(), payload.TargetUserID)
	c.hub.Join(c, room)

	entry, ok := c.hub.Presence().Lookup(payload.TargetUserID)
	if !ok {
		return
	}

	notice, err := models.NewEnvelope(models.EventPrivateChatStarted, models.PrivateChatStartedPayload{
		RoomID:        room,
		InitiatorID:   c.UserID(),
		InitiatorName: c.UserName(),
	})
	if err != nil {
		logger.Error("Error marshaling private-chat notification: %v", err)
		return
	}
	entry.Conn.Enqueue(notice)
}

func (c *Client) broadcastToRoom(room string, event models.EventType, payload interface{}) {
	data, err := models.NewEnvelope(event, payload)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", event, err)
		return
	}
	c.hub.BroadcastRoom(room, data)
}

func decode(data json.RawMessage, v interface{}) bool {
	if err := json.Unmarshal(data, v); err != nil {
		logger.Error("Error decoding event payload: %v", err)
		return false
	}
	return true
}

// decodeMessageID accepts either a bare JSON string or a {messageId} object,
// matching what different client versions send.
func decodeMessageID(data json.RawMessage) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id
	}
	var payload models.MessageIDPayload
	if err := json.Unmarshal(data, &payload); err == nil {
		return payload.MessageID
	}
	logger.Error("Error decoding message id payload")
	return ""
}
