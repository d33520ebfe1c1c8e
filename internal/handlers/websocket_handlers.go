package handlers

import (
	"net/http"

	"fellowship-chat/internal/auth"
	"fellowship-chat/internal/services"
	ws "fellowship-chat/internal/websocket"
	"fellowship-chat/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	messages    *services.MessageService
	hub         *ws.Hub
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, messages *services.MessageService, hub *ws.Hub) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		messages:    messages,
		hub:         hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket authenticates the token from the query string, upgrades
// the connection and hands it to the hub. Browsers cannot set headers on
// WebSocket requests, so the token travels as a query parameter.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	ident, err := h.authService.Authenticate(tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, ident, h.messages)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
