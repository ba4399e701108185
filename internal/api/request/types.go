package request

import (
	"github.com/mcoot/sailsync/internal/model"
)

// CreateIslandRequest is the request body for creating an island
type CreateIslandRequest struct {
	Position *model.Vec3 `json:"position"`
	Radius   *float64    `json:"radius,omitempty"`
	Type     string      `json:"type,omitempty"`
}
