package session

import (
	"sync"

	"github.com/mcoot/sailsync/internal/model"
)

// Registry maps live connections to the players they represent. At most one
// connection is the active session for a player; a newer attach supersedes
// the older one without closing it.
type Registry struct {
	mu     sync.Mutex
	byConn map[model.ConnectionID]model.PlayerID
	active map[model.PlayerID]model.ConnectionID
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[model.ConnectionID]model.PlayerID),
		active: make(map[model.PlayerID]model.ConnectionID),
	}
}

// Attach makes conn the active session for player. If another connection held
// the player it is returned and its mapping dropped, so its later messages and
// its eventual disconnect no longer touch the player. Re-attaching conn to a
// different player releases its previous player.
func (r *Registry) Attach(conn model.ConnectionID, player model.PlayerID) (model.ConnectionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[conn]; ok && prev != player {
		if r.active[prev] == conn {
			delete(r.active, prev)
		}
	}

	old, superseded := r.active[player]
	if superseded && old == conn {
		superseded = false
	}
	if superseded {
		delete(r.byConn, old)
	}

	r.byConn[conn] = player
	r.active[player] = conn
	return old, superseded
}

// Resolve returns the player attached to conn
func (r *Registry) Resolve(conn model.ConnectionID) (model.PlayerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.byConn[conn]
	return player, ok
}

// Detach removes conn and returns the player it represented. Detaching an
// unknown or already detached connection returns false.
func (r *Registry) Detach(conn model.ConnectionID) (model.PlayerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.byConn[conn]
	if !ok {
		return "", false
	}
	delete(r.byConn, conn)
	if r.active[player] == conn {
		delete(r.active, player)
	}
	return player, true
}

// ActiveConnection returns the connection currently representing player
func (r *Registry) ActiveConnection(player model.PlayerID) (model.ConnectionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.active[player]
	return conn, ok
}

// IsActive reports whether player has a live session
func (r *Registry) IsActive(player model.PlayerID) bool {
	_, ok := r.ActiveConnection(player)
	return ok
}

// Len returns the number of attached connections
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConn)
}
