package storage

import (
	"context"

	"github.com/mcoot/sailsync/internal/model"
)

// Store is the durable system of record for players, islands and chat.
// It is overwrite-by-key only; no operation spans more than one entity.
type Store interface {
	// Player operations
	GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error)
	// CreatePlayer fails with model.ErrPlayerExists if the id is taken
	CreatePlayer(ctx context.Context, player *model.Player) error
	// UpdatePlayer writes the set fields of patch, failing with model.ErrPlayerNotFound
	UpdatePlayer(ctx context.Context, id model.PlayerID, patch model.PlayerPatch) error
	ListPlayers(ctx context.Context) ([]*model.Player, error)

	// Island operations
	SaveIsland(ctx context.Context, island *model.Island) error
	ListIslands(ctx context.Context) ([]*model.Island, error)

	// Message operations
	// AppendMessage stores msg and assigns its ID
	AppendMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, messageType string) ([]*model.Message, error)
}

// OrderedStore is implemented by stores that can answer ranked queries natively.
// Callers check for it once and otherwise fall back to listing and sorting.
type OrderedStore interface {
	Store

	// TopPlayers returns up to limit players ordered by counter, highest first
	TopPlayers(ctx context.Context, counter model.Counter, limit int) ([]*model.Player, error)
	// RecentMessages returns up to limit messages of the type, newest first
	RecentMessages(ctx context.Context, messageType string, limit int) ([]*model.Message, error)
}
