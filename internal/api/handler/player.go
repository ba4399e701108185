package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/sailsync/internal/api/response"
	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/services/presence"
)

// PlayerHandler handles player read endpoints
type PlayerHandler struct {
	controller *presence.Controller
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(controller *presence.Controller) *PlayerHandler {
	return &PlayerHandler{
		controller: controller,
	}
}

// ListActive handles GET /api/v1/players
func (h *PlayerHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.PlayersFromModel(h.controller.ActivePlayers()))
}

// Get handles GET /api/v1/players/{id}
func (h *PlayerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := model.PlayerID(mux.Vars(r)["id"])

	player, err := h.controller.Player(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, player)
}

// Stats handles GET /api/v1/players/{id}/stats
func (h *PlayerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := model.PlayerID(mux.Vars(r)["id"])

	stats, err := h.controller.Stats(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, stats)
}
