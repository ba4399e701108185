package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/storage"
)

// ErrStoreDown is returned by RecordingStore while failures are switched on
var ErrStoreDown = errors.New("store unavailable")

// RecordedUpdate is one UpdatePlayer call seen by a RecordingStore
type RecordedUpdate struct {
	ID    model.PlayerID
	Patch model.PlayerPatch
}

// RecordingStore wraps a store, records player writes and can be told to
// fail. It hides any ordered capability of the wrapped store.
type RecordingStore struct {
	storage.Store

	mu         sync.Mutex
	creates    []model.PlayerID
	updates    []RecordedUpdate
	failWrites bool
	failReads  bool
}

// NewRecordingStore wraps inner
func NewRecordingStore(inner storage.Store) *RecordingStore {
	return &RecordingStore{Store: inner}
}

// SetFailWrites makes player writes fail with ErrStoreDown
func (s *RecordingStore) SetFailWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = fail
}

// SetFailReads makes reads fail with ErrStoreDown
func (s *RecordingStore) SetFailReads(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads = fail
}

// Creates returns the ids passed to CreatePlayer
func (s *RecordingStore) Creates() []model.PlayerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PlayerID(nil), s.creates...)
}

// Updates returns every UpdatePlayer call, including failed ones
func (s *RecordingStore) Updates() []RecordedUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedUpdate(nil), s.updates...)
}

// UpdateCount returns the number of UpdatePlayer calls for id
func (s *RecordingStore) UpdateCount(id model.PlayerID) int {
	n := 0
	for _, u := range s.Updates() {
		if u.ID == id {
			n++
		}
	}
	return n
}

// Reset clears recorded calls
func (s *RecordingStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = nil
	s.updates = nil
}

func (s *RecordingStore) writesFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failWrites
}

func (s *RecordingStore) readsFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failReads
}

func (s *RecordingStore) CreatePlayer(ctx context.Context, player *model.Player) error {
	s.mu.Lock()
	s.creates = append(s.creates, player.ID)
	s.mu.Unlock()
	if s.writesFail() {
		return ErrStoreDown
	}
	return s.Store.CreatePlayer(ctx, player)
}

func (s *RecordingStore) UpdatePlayer(ctx context.Context, id model.PlayerID, patch model.PlayerPatch) error {
	s.mu.Lock()
	s.updates = append(s.updates, RecordedUpdate{ID: id, Patch: patch})
	s.mu.Unlock()
	if s.writesFail() {
		return ErrStoreDown
	}
	return s.Store.UpdatePlayer(ctx, id, patch)
}

func (s *RecordingStore) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	if s.readsFail() {
		return nil, ErrStoreDown
	}
	return s.Store.GetPlayer(ctx, id)
}

func (s *RecordingStore) ListPlayers(ctx context.Context) ([]*model.Player, error) {
	if s.readsFail() {
		return nil, ErrStoreDown
	}
	return s.Store.ListPlayers(ctx)
}

func (s *RecordingStore) ListIslands(ctx context.Context) ([]*model.Island, error) {
	if s.readsFail() {
		return nil, ErrStoreDown
	}
	return s.Store.ListIslands(ctx)
}
