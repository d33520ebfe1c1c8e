package handlers

import (
	"encoding/json"
	"net/http"

	"fellowship-chat/internal/chat"
	"fellowship-chat/internal/models"
	"fellowship-chat/internal/services"
	"fellowship-chat/pkg/apperr"
	"fellowship-chat/pkg/logger"

	"github.com/gorilla/mux"
)

// Broadcaster is the slice of the realtime hub the HTTP surface needs:
// fanning mutations out to connected clients and reading the presence
// snapshot. The hub satisfies it.
type Broadcaster interface {
	BroadcastRoom(room string, data []byte)
	OnlineUsers() []models.OnlineUser
}

type MessageHandlers struct {
	messages *services.MessageService
	hub      Broadcaster
}

func NewMessageHandlers(messages *services.MessageService, hub Broadcaster) *MessageHandlers {
	return &MessageHandlers{messages: messages, hub: hub}
}

// RegisterRoutes mounts the message API under the given router. The caller
// is expected to have applied the auth middleware already.
func (h *MessageHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/messages", h.CreateMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/community", h.GetCommunityMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/admin", h.GetAdminMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/private", h.GetPrivateMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/online-users", h.GetOnlineUsers).Methods(http.MethodGet)
	r.HandleFunc("/messages/unread-counts", h.GetUnreadCounts).Methods(http.MethodGet)
	r.HandleFunc("/messages/watermarks/{scope}", h.UpdateWatermark).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}/delivered", h.MarkDelivered).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}/read", h.MarkRead).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}/react", h.ToggleReaction).Methods(http.MethodPost)
}

// CreateMessage stores a message and fans it out to the room, so clients
// using the HTTP path see the same new-message event as realtime senders.
func (h *MessageHandlers) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	msg, err := h.messages.CreateMessage(r.Context(), IdentityFrom(r.Context()), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(chat.RoomForMessage(msg), models.EventNewMessage, msg)
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandlers) GetCommunityMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messages.CommunityMessages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandlers) GetAdminMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messages.AdminMessages(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandlers) GetPrivateMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messages.PrivateMessages(r.Context(), IdentityFrom(r.Context()), r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandlers) GetOnlineUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.OnlineUsers())
}

func (h *MessageHandlers) GetUnreadCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.messages.UnreadCounts(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *MessageHandlers) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.MarkDelivered(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	delivered := true
	h.broadcast(chat.RoomForMessage(msg), models.EventMessageStatusUpdated, models.MessageStatusUpdate{
		MessageID:   msg.ID,
		Delivered:   &delivered,
		DeliveredAt: msg.DeliveredAt,
	})
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	ident := IdentityFrom(r.Context())
	msg, err := h.messages.MarkRead(r.Context(), ident, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	room := chat.RoomForMessage(msg)
	h.broadcast(room, models.EventMessageRead, models.MessageReadNotification{
		MessageID: msg.ID,
		UserID:    ident.ID,
	})

	read, delivered := true, true
	h.broadcast(room, models.EventMessageStatusUpdated, models.MessageStatusUpdate{
		MessageID:   msg.ID,
		Read:        &read,
		ReadAt:      msg.ReadAt,
		Delivered:   &delivered,
		DeliveredAt: msg.DeliveredAt,
	})
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandlers) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	var req models.ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	ident := IdentityFrom(r.Context())
	msg, err := h.messages.ToggleReaction(r.Context(), ident, mux.Vars(r)["id"], req.Emoji)
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(chat.RoomForMessage(msg), models.EventReactionAdded, models.ReactionNotification{
		MessageID: msg.ID,
		Emoji:     req.Emoji,
		UserID:    ident.ID,
		UserName:  ident.Name,
	})
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandlers) UpdateWatermark(w http.ResponseWriter, r *http.Request) {
	scope := models.ChatScope(mux.Vars(r)["scope"])
	if err := h.messages.UpdateWatermark(r.Context(), IdentityFrom(r.Context()), scope); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *MessageHandlers) broadcast(room string, event models.EventType, payload interface{}) {
	data, err := models.NewEnvelope(event, payload)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", event, err)
		return
	}
	h.hub.BroadcastRoom(room, data)
}

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
	}
	writeJSON(w, status, errorBody{Status: status, Message: err.Error()})
}
