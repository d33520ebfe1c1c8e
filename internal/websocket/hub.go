package websocket

import (
	"sync"
	"time"

	"fellowship-chat/internal/chat"
	"fellowship-chat/internal/metrics"
	"fellowship-chat/internal/models"
	"fellowship-chat/pkg/logger"
)

// Hub owns the realtime session set: which clients are connected, which
// rooms each has joined, and the presence and typing state derived from
// them. All fan-out goes through the hub.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	presence *chat.Presence
	typing   *chat.Typing
}

func NewHub(typingTTL time.Duration) *Hub {
	h := &Hub{
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		presence: chat.NewPresence(),
	}
	h.typing = chat.NewTyping(typingTTL, h.notifyTypingStopped)
	return h
}

func (h *Hub) Presence() *chat.Presence { return h.presence }
func (h *Hub) Typing() *chat.Typing { return h.typing }

// OnlineUsers returns a snapshot of the presence registry.
func (h *Hub) OnlineUsers() []models.OnlineUser {
	return h.presence.List()
}

// Register adds an authenticated client, records its presence, announces it
// to everyone else and sends the newcomer the current online-users snapshot.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.ActiveConnections.Inc()

	h.presence.Register(c.UserID(), c.UserName(), c)

	if data, err := models.NewEnvelope(models.EventUserOnline, models.UserOnlinePayload{
		UserID:   c.UserID(),
		UserName: c.UserName(),
	}); err == nil {
		h.BroadcastAllExcept(c, data)
	}

	if data, err := models.NewEnvelope(models.EventOnlineUsersList, h.presence.List()); err == nil {
		c.Enqueue(data)
	}

	logger.Info("User %s (%s) connected", c.UserName(), c.UserID())
}

// Unregister removes the client from all rooms, clears its typing entries,
// drops its presence and announces it offline. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	metrics.ActiveConnections.Dec()

	// Only tear down identity-level state if this connection still owns
	// the presence entry; a newer connection from the same identity wins,
	// and its typing entries must survive the stale teardown.
	if entry, ok := h.presence.Lookup(c.UserID()); ok && entry.Conn == chat.Conn(c) {
		// Typing cleanup broadcasts stopped-typing to the affected rooms.
		h.typing.ClearUser(c.UserID())
		h.presence.Unregister(c.UserID())
		if data, err := models.NewEnvelope(models.EventUserOffline, models.UserOfflinePayload{
			UserID: c.UserID(),
		}); err == nil {
			h.BroadcastAllExcept(c, data)
		}
	}

	c.closeSend()
	logger.Info("User %s (%s) disconnected", c.UserName(), c.UserID())
}

func (h *Hub) Join(c *Client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()
	logger.Debug("User %s joined room %s", c.UserID(), room)
}

// Leave removes the client's room membership and clears any typing entry it
// had there, exactly as if the client had sent an explicit stop.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	h.typing.Stop(room, c.UserID())
	logger.Debug("User %s left room %s", c.UserID(), room)
}

// BroadcastRoom fans data out to every client joined to room.
func (h *Hub) BroadcastRoom(room string, data []byte) {
	h.BroadcastRoomExcept(room, nil, data)
}

func (h *Hub) BroadcastRoomExcept(room string, except *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		c.Enqueue(data)
	}
}

func (h *Hub) BroadcastAllExcept(except *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c == except {
			continue
		}
		c.Enqueue(data)
	}
}

// RoomSize reports how many clients are joined to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// notifyTypingStopped fans the stopped-typing event out to the room, minus
// the typer's own sessions, mirroring the typing-start broadcast.
func (h *Hub) notifyTypingStopped(room, userID string) {
	data, err := models.NewEnvelope(models.EventUserStoppedTyping, models.TypingNotification{
		UserID: userID,
		ChatID: room,
	})
	if err != nil {
		logger.Error("Error marshaling stopped-typing notification: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c.UserID() == userID {
			continue
		}
		c.Enqueue(data)
	}
}
