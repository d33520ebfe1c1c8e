package websocket

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"fellowship-chat/internal/auth"
	"fellowship-chat/internal/database"
	"fellowship-chat/internal/models"
	"fellowship-chat/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *services.MessageService) {
	t.Helper()
	db, err := database.NewBuntDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHub(time.Hour), services.NewMessageService(db)
}

func newTestClient(hub *Hub, svc *services.MessageService, id, name, role string) *Client {
	return NewClient(hub, nil, &auth.Identity{ID: id, Name: name, Role: role}, svc)
}

// drainEvents empties the client's send queue and decodes every frame.
func drainEvents(t *testing.T, c *Client) []models.Envelope {
	t.Helper()
	var events []models.Envelope
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return events
			}
			var env models.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			events = append(events, env)
		default:
			return events
		}
	}
}

func eventTypes(events []models.Envelope) []models.EventType {
	types := make([]models.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Event)
	}
	return types
}

func inbound(event models.EventType, data string) *models.Envelope {
	return &models.Envelope{Event: event, Data: json.RawMessage(data)}
}

func TestRegisterAnnouncesAndSendsSnapshot(t *testing.T) {
	hub, svc := newTestHub(t)
	c1 := newTestClient(hub, svc, "u1", "Grace", "Member")
	c2 := newTestClient(hub, svc, "u2", "Sam", "Member")

	hub.Register(c1)
	drainEvents(t, c1)

	hub.Register(c2)

	c1Events := drainEvents(t, c1)
	require.Len(t, c1Events, 1)
	assert.Equal(t, models.EventUserOnline, c1Events[0].Event)
	var online models.UserOnlinePayload
	require.NoError(t, json.Unmarshal(c1Events[0].Data, &online))
	assert.Equal(t, "u2", online.UserID)

	c2Events := drainEvents(t, c2)
	require.Len(t, c2Events, 1)
	assert.Equal(t, models.EventOnlineUsersList, c2Events[0].Event)
	var snapshot []models.OnlineUser
	require.NoError(t, json.Unmarshal(c2Events[0].Data, &snapshot))
	assert.Len(t, snapshot, 2)
}

func TestSendMessageFansOutToRoomIncludingAuthor(t *testing.T) {
	hub, svc := newTestHub(t)
	c1 := newTestClient(hub, svc, "u1", "Grace", "Member")
	c2 := newTestClient(hub, svc, "u2", "Sam", "Member")
	outsider := newTestClient(hub, svc, "u3", "Eve", "Member")

	for _, c := range []*Client{c1, c2, outsider} {
		hub.Register(c)
		drainEvents(t, c)
	}
	drainEvents(t, c1)
	drainEvents(t, c2)
	hub.Join(c1, "community")
	hub.Join(c2, "community")

	c1.handleEvent(inbound(models.EventSendMessage, `{"chatType":"community","content":"hello"}`))

	for _, c := range []*Client{c1, c2} {
		events := drainEvents(t, c)
		require.Len(t, events, 1, "room member should receive exactly one frame")
		assert.Equal(t, models.EventNewMessage, events[0].Event)

		var msg models.Message
		require.NoError(t, json.Unmarshal(events[0].Data, &msg))
		assert.NotEmpty(t, msg.ID, "members receive the canonical stored copy")
		assert.True(t, msg.Delivered)
	}

	assert.Empty(t, drainEvents(t, outsider), "non-members must not receive room traffic")
}

func TestPrivateMessageReadReceiptFlow(t *testing.T) {
	hub, svc := newTestHub(t)
	c1 := newTestClient(hub, svc, "u1", "Grace", "Member")
	c2 := newTestClient(hub, svc, "u2", "Sam", "Member")
	hub.Register(c1)
	hub.Register(c2)
	hub.Join(c1, "u1-u2")
	hub.Join(c2, "u1-u2")
	drainEvents(t, c1)
	drainEvents(t, c2)

	c1.handleEvent(inbound(models.EventSendMessage, `{"chatType":"private","recipientId":"u2","content":"hi"}`))

	events := drainEvents(t, c2)
	require.Len(t, events, 1)
	var msg models.Message
	require.NoError(t, json.Unmarshal(events[0].Data, &msg))
	assert.False(t, msg.Delivered, "private messages start undelivered")
	drainEvents(t, c1)

	c2.handleEvent(inbound(models.EventMessageRead, fmt.Sprintf("%q", msg.ID)))

	c1Events := drainEvents(t, c1)
	require.Equal(t, []models.EventType{models.EventMessageRead, models.EventMessageStatusUpdated}, eventTypes(c1Events))

	var status models.MessageStatusUpdate
	require.NoError(t, json.Unmarshal(c1Events[1].Data, &status))
	require.NotNil(t, status.Read)
	require.NotNil(t, status.Delivered)
	assert.True(t, *status.Read)
	assert.True(t, *status.Delivered, "read implies delivered")
}

func TestMessageReadRejectedForForeignActor(t *testing.T) {
	hub, svc := newTestHub(t)
	c1 := newTestClient(hub, svc, "u1", "Grace", "Member")
	eve := newTestClient(hub, svc, "u3", "Eve", "Member")
	hub.Register(c1)
	hub.Register(eve)
	hub.Join(c1, "u1-u2")
	hub.Join(eve, "u1-u2")
	drainEvents(t, c1)
	drainEvents(t, eve)

	c1.handleEvent(inbound(models.EventSendMessage, `{"chatType":"private","recipientId":"u2","content":"hi"}`))
	events := drainEvents(t, c1)
	require.Len(t, events, 1)
	var msg models.Message
	require.NoError(t, json.Unmarshal(events[0].Data, &msg))
	drainEvents(t, eve)

	// Eve is neither author nor recipient: no broadcast may result.
	eve.handleEvent(inbound(models.EventMessageRead, fmt.Sprintf("%q", msg.ID)))
	assert.Empty(t, drainEvents(t, c1))
	assert.Empty(t, drainEvents(t, eve))
}

func TestTypingIndicatorFlow(t *testing.T) {
	hub, svc := newTestHub(t)
	c1 := newTestClient(hub, svc, "u1", "Grace", "Member")
	c2 := newTestClient(hub, svc, "u2", "Sam", "Member")
	hub.Register(c1)
	hub.Register(c2)
	hub.Join(c1, "community")
	hub.Join(c2, "community")
	drainEvents(t, c1)
	drainEvents(t, c2)

	c1.handleEvent(inbound(models.EventUserTyping, `{"chatId":"community","userName":"Grace"}`))

	assert.Empty(t, drainEvents(t, c1), "the typist does not hear their own typing event")
	events := drainEvents(t, c2)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUserTyping, events[0].Event)

	// A renewed signal while still typing emits nothing new.
	c1.handleEvent(inbound(models.EventUserTyping, `{"chatId":"community","userName":"Grace"}`))
	assert.Empty(t, drainEvents(t, c2))

	c1.handleEvent(inbound(models.EventUserStoppedTyping, `{"chatId":"community"}`))
	events = drainEvents(t, c2)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUserStoppedTyping, events[0].Event)
	assert.Empty(t, drainEvents(t, c1), "the typist does not hear their own stop event either")
}

func TestLeaveRoomClearsTyping(t *testing.T) {
	hub, svc := newTestHub(t)
	c1 := newTestClient(hub, svc, "u1", "Grace", "Member")
	c2 := newTestClient(hub, svc, "u2", "Sam", "Member")
	hub.Register(c1)
	hub.Register(c2)
	hub.Join(c1, "community")
	hub.Join(c2, "community")
	drainEvents(t, c1)
	drainEvents(t, c2)

	c1.handleEvent(inbound(models.EventUserTyping, `{"chatId":"community","userName":"Grace"}`))
	drainEvents(t, c2)

	c1.handleEvent(inbound(models.EventLeaveRoom, `{"roomId":"community"}`))

	events := drainEvents(t, c2)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUserStoppedTyping, events[0].Event)
	assert.False(t, hub.Typing().IsTyping("community", "u1"))
	assert.Equal(t, 1, hub.RoomSize("community"))
}

func TestUnregisterBroadcastsOfflineAndClearsState(t *testing.T) {
	hub, svc := newTestHub(t)
	c1 := newTestClient(hub, svc, "u1", "Grace", "Member")
	c2 := newTestClient(hub, svc, "u2", "Sam", "Member")
	hub.Register(c1)
	hub.Register(c2)
	hub.Join(c1, "community")
	hub.Join(c2, "community")
	drainEvents(t, c1)
	drainEvents(t, c2)

	c1.handleEvent(inbound(models.EventUserTyping, `{"chatId":"community","userName":"Grace"}`))
	drainEvents(t, c2)

	hub.Unregister(c1)

	types := eventTypes(drainEvents(t, c2))
	assert.Contains(t, types, models.EventUserStoppedTyping)
	assert.Contains(t, types, models.EventUserOffline)
	_, online := hub.Presence().Lookup("u1")
	assert.False(t, online)
	assert.Equal(t, 1, hub.RoomSize("community"))

	// Unregistering twice is harmless.
	hub.Unregister(c1)
}

func TestLastConnectWinsOnDisconnect(t *testing.T) {
	hub, svc := newTestHub(t)
	first := newTestClient(hub, svc, "u1", "Grace", "Member")
	second := newTestClient(hub, svc, "u1", "Grace", "Member")
	watcher := newTestClient(hub, svc, "u2", "Sam", "Member")
	hub.Register(first)
	hub.Register(watcher)
	hub.Register(second)
	drainEvents(t, watcher)

	// The stale connection going away must not mark the identity offline.
	hub.Unregister(first)
	assert.NotContains(t, eventTypes(drainEvents(t, watcher)), models.EventUserOffline)
	_, online := hub.Presence().Lookup("u1")
	assert.True(t, online)

	hub.Unregister(second)
	assert.Contains(t, eventTypes(drainEvents(t, watcher)), models.EventUserOffline)
}

func TestSupersededConnectionKeepsTypingState(t *testing.T) {
	hub, svc := newTestHub(t)
	first := newTestClient(hub, svc, "u1", "Grace", "Member")
	watcher := newTestClient(hub, svc, "u2", "Sam", "Member")
	hub.Register(first)
	hub.Register(watcher)
	hub.Join(first, "community")
	hub.Join(watcher, "community")
	drainEvents(t, first)
	drainEvents(t, watcher)

	first.handleEvent(inbound(models.EventUserTyping, `{"chatId":"community","userName":"Grace"}`))
	drainEvents(t, watcher)

	second := newTestClient(hub, svc, "u1", "Grace", "Member")
	hub.Register(second)
	hub.Join(second, "community")
	drainEvents(t, watcher)

	// The stale connection's teardown must not wipe the identity's typing
	// entries now owned by the newer connection.
	hub.Unregister(first)

	assert.True(t, hub.Typing().IsTyping("community", "u1"))
	assert.Empty(t, drainEvents(t, watcher), "no stopped-typing or offline may leak from the stale teardown")
}

func TestStartPrivateChatNotifiesTarget(t *testing.T) {
	hub, svc := newTestHub(t)
	c1 := newTestClient(hub, svc, "u1", "Grace", "Member")
	c2 := newTestClient(hub, svc, "u2", "Sam", "Member")
	hub.Register(c1)
	hub.Register(c2)
	drainEvents(t, c1)
	drainEvents(t, c2)

	c1.handleEvent(inbound(models.EventStartPrivateChat, `{"targetUserId":"u2"}`))

	events := drainEvents(t, c2)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPrivateChatStarted, events[0].Event)
	var payload models.PrivateChatStartedPayload
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, "u1-u2", payload.RoomID)
	assert.Equal(t, "u1", payload.InitiatorID)
	assert.Equal(t, 1, hub.RoomSize("u1-u2"))
}

func TestReactionBroadcast(t *testing.T) {
	hub, svc := newTestHub(t)
	c1 := newTestClient(hub, svc, "u1", "Grace", "Member")
	c2 := newTestClient(hub, svc, "u2", "Sam", "Member")
	hub.Register(c1)
	hub.Register(c2)
	hub.Join(c1, "community")
	hub.Join(c2, "community")
	drainEvents(t, c1)
	drainEvents(t, c2)

	c1.handleEvent(inbound(models.EventSendMessage, `{"chatType":"community","content":"hello"}`))
	events := drainEvents(t, c1)
	require.Len(t, events, 1)
	var msg models.Message
	require.NoError(t, json.Unmarshal(events[0].Data, &msg))
	drainEvents(t, c2)

	c2.handleEvent(inbound(models.EventMessageReaction, fmt.Sprintf(`{"messageId":%q,"emoji":"🙏"}`, msg.ID)))

	events = drainEvents(t, c1)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventReactionAdded, events[0].Event)
	var reaction models.ReactionNotification
	require.NoError(t, json.Unmarshal(events[0].Data, &reaction))
	assert.Equal(t, "🙏", reaction.Emoji)
	assert.Equal(t, "u2", reaction.UserID)
}

func TestUserActivityTouchesPresence(t *testing.T) {
	hub, svc := newTestHub(t)
	c1 := newTestClient(hub, svc, "u1", "Grace", "Member")
	c2 := newTestClient(hub, svc, "u2", "Sam", "Member")
	hub.Register(c1)
	hub.Register(c2)
	drainEvents(t, c1)
	drainEvents(t, c2)

	c1.handleEvent(inbound(models.EventUserActivity, `{}`))

	events := drainEvents(t, c2)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUserActivity, events[0].Event)
	assert.Empty(t, drainEvents(t, c1))
}
