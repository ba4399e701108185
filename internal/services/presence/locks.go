package presence

import (
	"sync"

	"github.com/mcoot/sailsync/internal/model"
)

// playerLocks serializes lifecycle transitions (join, disconnect) per player.
// Entries are dropped once no goroutine holds or waits on them.
type playerLocks struct {
	mu    sync.Mutex
	locks map[model.PlayerID]*playerLock
}

type playerLock struct {
	mu   sync.Mutex
	refs int
}

func newPlayerLocks() *playerLocks {
	return &playerLocks{locks: make(map[model.PlayerID]*playerLock)}
}

// Lock blocks until id is free and returns the matching unlock
func (l *playerLocks) Lock(id model.PlayerID) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &playerLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *playerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
