package state

import (
	"sync"
	"time"

	"github.com/mcoot/sailsync/internal/dependencies/clock"
	"github.com/mcoot/sailsync/internal/model"
)

// WriteKind says how a mutation reaches durable storage
type WriteKind int

const (
	// WriteThrottled persists at most once per interval per player
	WriteThrottled WriteKind = iota
	// WriteForced always persists
	WriteForced
)

// Throttler tracks when each player was last written durably
type Throttler struct {
	interval time.Duration
	clock    clock.Clock

	mu   sync.Mutex
	last map[model.PlayerID]time.Time
}

// NewThrottler creates a Throttler with the minimum gap between throttled writes
func NewThrottler(interval time.Duration, clk clock.Clock) *Throttler {
	return &Throttler{
		interval: interval,
		clock:    clk,
		last:     make(map[model.PlayerID]time.Time),
	}
}

// Decide reports whether a write of the given kind should go to storage now.
// A yes is recorded as the player's latest write.
func (t *Throttler) Decide(id model.PlayerID, kind WriteKind) bool {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if kind == WriteThrottled {
		if last, ok := t.last[id]; ok && now.Sub(last) < t.interval {
			return false
		}
	}
	t.last[id] = now
	return true
}

// Forget drops bookkeeping for a player
func (t *Throttler) Forget(id model.PlayerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, id)
}
