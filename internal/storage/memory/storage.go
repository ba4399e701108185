package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/storage"
)

// Storage is an in-memory implementation of the store. It has no ordered
// query support, so rankings are computed by the caller.
type Storage struct {
	mu sync.RWMutex

	players  map[model.PlayerID]*model.Player
	islands  map[model.IslandID]*model.Island
	messages []*model.Message
	nextMsg  int64
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		players: make(map[model.PlayerID]*model.Player),
		islands: make(map[model.IslandID]*model.Island),
	}
}

// Close is a no-op
func (s *Storage) Close() error {
	return nil
}

// Ensure Storage implements the interface
var _ storage.Store = (*Storage)(nil)

// Player operations

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return player.Clone(), nil
}

func (s *Storage) CreatePlayer(ctx context.Context, player *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[player.ID]; ok {
		return model.ErrPlayerExists
	}
	s.players[player.ID] = player.Clone()
	return nil
}

func (s *Storage) UpdatePlayer(ctx context.Context, id model.PlayerID, patch model.PlayerPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[id]
	if !ok {
		return model.ErrPlayerNotFound
	}
	patch.ApplyTo(player)
	return nil
}

func (s *Storage) ListPlayers(ctx context.Context) ([]*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*model.Player, 0, len(s.players))
	for _, p := range s.players {
		result = append(result, p.Clone())
	}
	return result, nil
}

// Island operations

func (s *Storage) SaveIsland(ctx context.Context, island *model.Island) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *island
	s.islands[island.ID] = &c
	return nil
}

func (s *Storage) ListIslands(ctx context.Context) ([]*model.Island, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*model.Island, 0, len(s.islands))
	for _, island := range s.islands {
		c := *island
		result = append(result, &c)
	}
	return result, nil
}

// Message operations

func (s *Storage) AppendMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsg++
	msg.ID = model.MessageID(strconv.FormatInt(s.nextMsg, 10))
	c := *msg
	s.messages = append(s.messages, &c)
	return nil
}

// ListMessages returns the messages of the type in insertion order
func (s *Storage) ListMessages(ctx context.Context, messageType string) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*model.Message
	for _, m := range s.messages {
		if m.MessageType == messageType {
			c := *m
			result = append(result, &c)
		}
	}
	return result, nil
}
