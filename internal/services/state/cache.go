package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/sailsync/internal/dependencies/clock"
	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/storage"
)

// Cache is the authoritative in-memory view of players and islands. Every
// mutation lands here first; durable writes follow according to the throttler.
type Cache struct {
	store     storage.Store
	throttler *Throttler
	clock     clock.Clock
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.RWMutex
	players map[model.PlayerID]*entry

	islandsMu sync.RWMutex
	islands   map[model.IslandID]*model.Island
}

// errUnconfirmed refuses a full write for a player whose stored record has
// not been read yet
var errUnconfirmed = errors.New("player not yet reconciled with storage")

// entry holds one player. mu serializes mutations; writeMu orders the
// durable writes those mutations produce. writeMu is always taken before mu
// is released, so writes reach storage in mutation order without holding
// mu across I/O.
//
// persisted says storage holds the record. confirmed says the in-memory
// counters and profile include the stored ones (or there is no stored
// record). persist reads them holding only writeMu, hence the atomics.
type entry struct {
	mu      sync.Mutex
	writeMu sync.Mutex
	player  *model.Player
	renamed bool

	persisted atomic.Bool
	confirmed atomic.Bool
}

// NewCache creates an empty cache. timeout bounds each storage call.
func NewCache(store storage.Store, throttler *Throttler, clk clock.Clock, timeout time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		store:     store,
		throttler: throttler,
		clock:     clk,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "state")),
		players:   make(map[model.PlayerID]*entry),
		islands:   make(map[model.IslandID]*model.Island),
	}
}

// HydrateAll loads every stored player and island. Loaded players are marked
// inactive since no session survives a restart. If storage cannot be read the
// cache starts empty and the error is returned for logging.
func (c *Cache) HydrateAll(ctx context.Context) error {
	sctx, cancel := c.storeContext(ctx)
	players, err := c.store.ListPlayers(sctx)
	cancel()
	if err != nil {
		c.logger.Error("failed to load players, starting with empty cache", slog.String("error", err.Error()))
		return fmt.Errorf("hydrate players: %w", err)
	}

	sctx, cancel = c.storeContext(ctx)
	islands, err := c.store.ListIslands(sctx)
	cancel()
	if err != nil {
		c.logger.Error("failed to load islands, starting with empty cache", slog.String("error", err.Error()))
		return fmt.Errorf("hydrate islands: %w", err)
	}

	inactive := false
	stale := 0
	for _, p := range players {
		if p.Active {
			stale++
			sctx, cancel := c.storeContext(ctx)
			if err := c.store.UpdatePlayer(sctx, p.ID, model.PlayerPatch{Active: &inactive}); err != nil {
				c.logger.Warn("failed to persist inactive flag",
					slog.String("player_id", string(p.ID)),
					slog.String("error", err.Error()),
				)
			}
			cancel()
		}
		p.Active = false
		e := c.entryFor(p.ID)
		e.mu.Lock()
		e.player = p
		e.persisted.Store(true)
		e.confirmed.Store(true)
		e.mu.Unlock()
	}

	c.islandsMu.Lock()
	for _, island := range islands {
		c.islands[island.ID] = island
	}
	c.islandsMu.Unlock()

	c.logger.Info("hydrated state cache",
		slog.Int("players", len(players)),
		slog.Int("islands", len(islands)),
		slog.Int("reset_active", stale),
	)
	return nil
}

// GetOrCreate marks a player active for a new session. An existing record
// (cached or stored) gets the join's position, rotation and mode merged over
// it; otherwise a default player is created. Both paths persist immediately.
// On a write failure the returned player is still valid and the error wraps
// model.ErrPersistFailed.
//
// If storage cannot be read the player starts from defaults but stays
// unconfirmed: its counters count from zero and are added to the stored
// record once a later read succeeds. Until then no full record is written.
func (c *Cache) GetOrCreate(ctx context.Context, id model.PlayerID, join model.JoinFields) (*model.Player, bool, error) {
	e := c.entryFor(id)
	e.mu.Lock()

	now := c.clock.Now()
	if e.player == nil {
		stored, err := c.load(ctx, id)
		switch {
		case err == nil:
			e.player = stored
			e.persisted.Store(true)
			e.confirmed.Store(true)
		case errors.Is(err, model.ErrPlayerNotFound):
			e.confirmed.Store(true)
		default:
			c.logger.Warn("failed to load player, starting unconfirmed",
				slog.String("player_id", string(id)),
				slog.String("error", err.Error()),
			)
		}
	} else {
		c.reconcile(ctx, e, id)
	}

	created := false
	if e.player == nil {
		p := model.NewPlayer(id, now)
		join.ApplyProfile(p)
		e.player = p
		created = true
	}

	p := e.player
	join.WorldState().ApplyTo(p)
	p.Active = true
	p.LastUpdate = now
	p.UpdatedAt = now
	snapshot := p.Clone()

	err := c.commit(ctx, e, id, WriteForced, c.fullWrite(e, snapshot))
	if errors.Is(err, model.ErrPlayerExists) {
		// Stored by someone else since our read; keep its counters and profile
		return c.rebase(ctx, e, id)
	}
	return snapshot, created, err
}

// rebase reconciles a player whose create lost a race and retries the write
func (c *Cache) rebase(ctx context.Context, e *entry, id model.PlayerID) (*model.Player, bool, error) {
	e.mu.Lock()
	c.reconcile(ctx, e, id)
	snapshot := e.player.Clone()
	err := c.commit(ctx, e, id, WriteForced, c.fullWrite(e, snapshot))
	return snapshot, false, err
}

// reconcile rebases an unconfirmed player onto its stored record. Counters
// gained while unconfirmed are added to the stored ones; world state and
// presence come from memory. The stored profile wins unless the player was
// renamed meanwhile. A failed read leaves the entry unconfirmed.
// The caller holds e.mu.
func (c *Cache) reconcile(ctx context.Context, e *entry, id model.PlayerID) {
	if e.confirmed.Load() {
		return
	}

	stored, err := c.load(ctx, id)
	switch {
	case err == nil:
		current := e.player
		stored.AddProgress(current)
		stored.Position = current.Position
		stored.Rotation = current.Rotation
		stored.Mode = current.Mode
		stored.Active = current.Active
		stored.LastUpdate = current.LastUpdate
		stored.UpdatedAt = current.UpdatedAt
		if e.renamed {
			stored.Name = current.Name
		}
		e.player = stored
		e.renamed = false
		e.persisted.Store(true)
		e.confirmed.Store(true)
		c.logger.Info("reconciled player with stored record", slog.String("player_id", string(id)))
	case errors.Is(err, model.ErrPlayerNotFound):
		e.persisted.Store(false)
		e.confirmed.Store(true)
	default:
		c.logger.Debug("player still unconfirmed",
			slog.String("player_id", string(id)),
			slog.String("error", err.Error()),
		)
	}
}

// ApplyUpdate merges client-mutable fields into a player and stamps
// lastUpdate. The durable write is throttled; its failure is logged only.
func (c *Cache) ApplyUpdate(ctx context.Context, id model.PlayerID, update model.PlayerUpdate) (*model.Player, error) {
	e, err := c.lockLoaded(id)
	if err != nil {
		return nil, err
	}

	p := e.player
	update.ApplyTo(p)
	p.LastUpdate = c.clock.Now()
	p.UpdatedAt = p.LastUpdate

	if !c.throttler.Decide(id, WriteThrottled) {
		snapshot := p.Clone()
		e.mu.Unlock()
		return snapshot, nil
	}

	c.reconcile(ctx, e, id)
	snapshot := e.player.Clone()
	w := pendingWrite{
		snapshot:  snapshot,
		patch:     model.WorldPatch(snapshot),
		confirmed: e.confirmed.Load(),
	}
	if err := c.write(ctx, e, id, w); err != nil {
		c.logger.Warn("throttled write failed",
			slog.String("player_id", string(id)),
			slog.String("error", err.Error()),
		)
	}
	return snapshot, nil
}

// IncrementCounter adds delta to one counter and persists immediately.
// Invalid deltas leave the player unchanged.
func (c *Cache) IncrementCounter(ctx context.Context, id model.PlayerID, counter model.Counter, delta int64) (*model.Player, error) {
	if err := counter.CheckDelta(delta); err != nil {
		return nil, err
	}
	return c.mutateForced(ctx, id, func(e *entry) error {
		return e.player.Increment(counter, delta)
	})
}

// MarkInactive ends a player's presence and persists immediately
func (c *Cache) MarkInactive(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	p, err := c.mutateForced(ctx, id, func(e *entry) error {
		e.player.Active = false
		return nil
	})
	if err == nil || errors.Is(err, model.ErrPersistFailed) {
		c.throttler.Forget(id)
	}
	return p, err
}

// Rename changes a player's display name and persists immediately
func (c *Cache) Rename(ctx context.Context, id model.PlayerID, name string) (*model.Player, error) {
	name, err := model.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	return c.mutateForced(ctx, id, func(e *entry) error {
		e.player.Name = name
		e.renamed = true
		return nil
	})
}

func (c *Cache) mutateForced(ctx context.Context, id model.PlayerID, fn func(e *entry) error) (*model.Player, error) {
	e, err := c.lockLoaded(id)
	if err != nil {
		return nil, err
	}

	c.reconcile(ctx, e, id)
	if err := fn(e); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	p := e.player
	p.LastUpdate = c.clock.Now()
	p.UpdatedAt = p.LastUpdate
	snapshot := p.Clone()

	err = c.commit(ctx, e, id, WriteForced, c.fullWrite(e, snapshot))
	return snapshot, err
}

// pendingWrite is a durable write captured under e.mu
type pendingWrite struct {
	snapshot  *model.Player
	patch     model.PlayerPatch
	full      bool
	confirmed bool
}

func (c *Cache) fullWrite(e *entry, snapshot *model.Player) pendingWrite {
	return pendingWrite{
		snapshot:  snapshot,
		patch:     model.FullPatch(snapshot),
		full:      true,
		confirmed: e.confirmed.Load(),
	}
}

// commit records a forced write with the throttler, then writes. The caller
// holds e.mu, which commit releases.
func (c *Cache) commit(ctx context.Context, e *entry, id model.PlayerID, kind WriteKind, w pendingWrite) error {
	c.throttler.Decide(id, kind)
	if err := c.write(ctx, e, id, w); err != nil {
		c.logger.Error("forced write failed",
			slog.String("player_id", string(id)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", model.ErrPersistFailed, err)
	}
	return nil
}

// write hands e.mu over to e.writeMu and persists w with a bounded context
// that outlives cancellation of ctx.
func (c *Cache) write(ctx context.Context, e *entry, id model.PlayerID, w pendingWrite) error {
	e.writeMu.Lock()
	e.mu.Unlock()
	defer e.writeMu.Unlock()

	sctx, cancel := c.storeContext(context.WithoutCancel(ctx))
	defer cancel()
	return c.persist(sctx, e, id, w)
}

// persist creates the record until storage is known to hold it, then
// patches it. Full records are only written from a confirmed snapshot; an
// unconfirmed player may still send world state. The caller holds e.writeMu.
func (c *Cache) persist(ctx context.Context, e *entry, id model.PlayerID, w pendingWrite) error {
	confirmed := w.confirmed && e.confirmed.Load()
	if w.full && !confirmed {
		return errUnconfirmed
	}
	if e.persisted.Load() || !confirmed {
		return c.store.UpdatePlayer(ctx, id, w.patch)
	}

	err := c.store.CreatePlayer(ctx, w.snapshot)
	switch {
	case err == nil:
		e.persisted.Store(true)
	case errors.Is(err, model.ErrPlayerExists):
		// Someone else's record; ours must be reconciled before it is written
		e.persisted.Store(true)
		e.confirmed.Store(false)
	}
	return err
}

// Get returns a copy of a cached player
func (c *Cache) Get(id model.PlayerID) (*model.Player, error) {
	c.mu.RLock()
	e, ok := c.players[id]
	c.mu.RUnlock()
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	p := c.snapshot(e)
	if p == nil {
		return nil, model.ErrPlayerNotFound
	}
	return p, nil
}

// Lookup returns a cached player, falling back to storage
func (c *Cache) Lookup(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	if p, err := c.Get(id); err == nil {
		return p, nil
	}
	return c.load(ctx, id)
}

// ActivePlayers returns copies of all active players ordered by id
func (c *Cache) ActivePlayers() []*model.Player {
	c.mu.RLock()
	entries := make([]*entry, 0, len(c.players))
	for _, e := range c.players {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	result := make([]*model.Player, 0, len(entries))
	for _, e := range entries {
		if p := c.snapshot(e); p != nil && p.Active {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// AddIsland persists an island and then caches it
func (c *Cache) AddIsland(ctx context.Context, island *model.Island) error {
	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := c.store.SaveIsland(sctx, island); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistFailed, err)
	}

	c.islandsMu.Lock()
	defer c.islandsMu.Unlock()
	copied := *island
	c.islands[island.ID] = &copied
	return nil
}

// Island returns a copy of one island
func (c *Cache) Island(id model.IslandID) (*model.Island, error) {
	c.islandsMu.RLock()
	defer c.islandsMu.RUnlock()

	island, ok := c.islands[id]
	if !ok {
		return nil, model.ErrIslandNotFound
	}
	copied := *island
	return &copied, nil
}

// Islands returns copies of all islands ordered by creation time
func (c *Cache) Islands() []*model.Island {
	c.islandsMu.RLock()
	defer c.islandsMu.RUnlock()

	result := make([]*model.Island, 0, len(c.islands))
	for _, island := range c.islands {
		copied := *island
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (c *Cache) entryFor(id model.PlayerID) *entry {
	c.mu.RLock()
	e, ok := c.players[id]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.players[id]; ok {
		return e
	}
	e = &entry{}
	c.players[id] = e
	return e
}

// lockLoaded locks the entry for a known player. The caller must release e.mu.
func (c *Cache) lockLoaded(id model.PlayerID) (*entry, error) {
	c.mu.RLock()
	e, ok := c.players[id]
	c.mu.RUnlock()
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	e.mu.Lock()
	if e.player == nil {
		e.mu.Unlock()
		return nil, model.ErrPlayerNotFound
	}
	return e, nil
}

func (c *Cache) snapshot(e *entry) *model.Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.player.Clone()
}

func (c *Cache) load(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	return c.store.GetPlayer(sctx, id)
}

func (c *Cache) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
