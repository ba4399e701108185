package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/sailsync/internal/api/handler"
	"github.com/mcoot/sailsync/internal/api/middleware"
	"github.com/mcoot/sailsync/internal/api/response"
	"github.com/mcoot/sailsync/internal/realtime"
	"github.com/mcoot/sailsync/internal/services/presence"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger     *slog.Logger
	Controller *presence.Controller
	Hub        *realtime.Hub
	// Sockets serves interactive websocket sessions
	Sockets http.Handler
	// Spectators serves the read-only SSE event stream
	Spectators       http.Handler
	LeaderboardLimit int
	// AdminTokenHash is a bcrypt hash guarding admin routes; empty leaves them open
	AdminTokenHash string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	playerHandler := handler.NewPlayerHandler(cfg.Controller)
	worldHandler := handler.NewWorldHandler(cfg.Controller, cfg.LeaderboardLimit)

	// Create middleware
	adminMiddleware := middleware.AdminToken(cfg.AdminTokenHash)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// Realtime transports log their own lifecycle
	r.Handle("/ws", cfg.Sockets).Methods(http.MethodGet)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Read-only projections
	api.HandleFunc("/players", playerHandler.ListActive).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}", playerHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}/stats", playerHandler.Stats).Methods(http.MethodGet)
	api.HandleFunc("/islands", worldHandler.ListIslands).Methods(http.MethodGet)
	api.HandleFunc("/islands/{id}", worldHandler.GetIsland).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", worldHandler.Leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/messages", worldHandler.Messages).Methods(http.MethodGet)
	api.Handle("/events", cfg.Spectators).Methods(http.MethodGet)

	// Admin routes
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(adminMiddleware)
	admin.HandleFunc("/islands", worldHandler.CreateIsland).Methods(http.MethodPost)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler(cfg.Controller, cfg.Hub)).Methods(http.MethodGet)

	return r
}

func healthHandler(controller *presence.Controller, hub *realtime.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, response.Health{
			Status:   "ok",
			Sessions: controller.Sessions(),
			Clients:  hub.ClientCount(),
		})
	}
}
