package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fellowship-chat/internal/auth"
	"fellowship-chat/internal/chat"
	"fellowship-chat/internal/config"
	"fellowship-chat/internal/database"
	"fellowship-chat/internal/handlers"
	"fellowship-chat/internal/services"
	"fellowship-chat/internal/websocket"
	"fellowship-chat/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize the message store
	db, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open message store: %v", err)
	}
	defer db.Close()

	// Initialize services
	authService := auth.NewService(cfg)
	messageService := services.NewMessageService(db)

	// Initialize the realtime hub
	hub := websocket.NewHub(chat.DefaultTypingTTL)

	// Initialize handlers
	messageHandlers := handlers.NewMessageHandlers(messageService, hub)
	wsHandlers := handlers.NewWebSocketHandlers(authService, messageService, hub)

	// Setup routes
	router := mux.NewRouter()
	router.Use(handlers.RequestLogger, handlers.CORS, handlers.RateLimit(cfg.RateLimit))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ws", wsHandlers.HandleWebSocket)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(handlers.RequireAuth(authService))
	messageHandlers.RegisterRoutes(api)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
}

// openStore selects the message store backend from configuration. Postgres
// is the production default; BuntDB serves single-node deployments and
// local development without a database.
func openStore(cfg *config.Config) (database.Database, error) {
	switch cfg.Store.Driver {
	case "buntdb":
		return database.NewBuntDB(cfg.Store.BuntDBPath)
	default:
		return database.NewPostgresDB(cfg.Store.DatabaseURL)
	}
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   POST /api/messages")
	logger.Info("   GET  /api/messages/community")
	logger.Info("   GET  /api/messages/admin")
	logger.Info("   GET  /api/messages/private?userId={id}")
	logger.Info("   GET  /api/messages/online-users")
	logger.Info("   GET  /api/messages/unread-counts")
	logger.Info("   PUT  /api/messages/watermarks/{scope}")
	logger.Info("   PUT  /api/messages/{id}/delivered")
	logger.Info("   PUT  /api/messages/{id}/read")
	logger.Info("   POST /api/messages/{id}/react")
}
