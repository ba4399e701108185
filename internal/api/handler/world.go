package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/sailsync/internal/api/request"
	"github.com/mcoot/sailsync/internal/api/response"
	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/services/chat"
	"github.com/mcoot/sailsync/internal/services/presence"
)

// Page size caps for list endpoints
const (
	MaxMessageLimit     = 100
	MaxLeaderboardLimit = 100
)

// WorldHandler handles islands, leaderboard and chat history
type WorldHandler struct {
	controller       *presence.Controller
	leaderboardLimit int
}

// NewWorldHandler creates a new world handler
func NewWorldHandler(controller *presence.Controller, leaderboardLimit int) *WorldHandler {
	return &WorldHandler{
		controller:       controller,
		leaderboardLimit: leaderboardLimit,
	}
}

// ListIslands handles GET /api/v1/islands
func (h *WorldHandler) ListIslands(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.IslandsFromModel(h.controller.Islands()))
}

// GetIsland handles GET /api/v1/islands/{id}
func (h *WorldHandler) GetIsland(w http.ResponseWriter, r *http.Request) {
	island, err := h.controller.Island(model.IslandID(mux.Vars(r)["id"]))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, island)
}

// CreateIsland handles POST /api/v1/admin/islands
func (h *WorldHandler) CreateIsland(w http.ResponseWriter, r *http.Request) {
	var req request.CreateIslandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	island, err := h.controller.CreateIsland(r.Context(), presence.IslandRequest{
		Position: req.Position,
		Radius:   req.Radius,
		Type:     req.Type,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, island)
}

// Leaderboard handles GET /api/v1/leaderboard
func (h *WorldHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, h.leaderboardLimit, MaxLeaderboardLimit)
	if err != nil {
		WriteError(w, err)
		return
	}

	board, err := h.controller.Leaderboard(r.Context(), limit)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, board)
}

// Messages handles GET /api/v1/messages
func (h *WorldHandler) Messages(w http.ResponseWriter, r *http.Request) {
	messageType := r.URL.Query().Get("type")
	if messageType == "" {
		messageType = model.MessageTypeGlobal
	}
	limit, err := queryLimit(r, chat.DefaultHistoryLimit, MaxMessageLimit)
	if err != nil {
		WriteError(w, err)
		return
	}

	messages, err := h.controller.RecentMessages(r.Context(), messageType, limit)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MessagesFromModel(messageType, messages))
}
