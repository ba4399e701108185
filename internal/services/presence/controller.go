package presence

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/sailsync/internal/dependencies/clock"
	"github.com/mcoot/sailsync/internal/dependencies/idgen"
	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/realtime"
	"github.com/mcoot/sailsync/internal/services/chat"
	"github.com/mcoot/sailsync/internal/services/identity"
	"github.com/mcoot/sailsync/internal/services/leaderboard"
	"github.com/mcoot/sailsync/internal/services/session"
	"github.com/mcoot/sailsync/internal/services/state"
)

// ErrNotJoined is returned for session operations on a connection that has
// no attached player
var ErrNotJoined = errors.New("connection has not joined")

// IslandIDPrefix namespaces generated island ids
const IslandIDPrefix = "island_"

// Limits bounds the sizes of snapshots sent to clients
type Limits struct {
	LeaderboardLimit int
	ChatHistoryLimit int
}

// DefaultLimits returns the limits used when none are configured
func DefaultLimits() Limits {
	return Limits{LeaderboardLimit: leaderboard.DefaultLimit, ChatHistoryLimit: 20}
}

// JoinRequest is everything a client supplies when joining
type JoinRequest struct {
	Credential identity.Credential
	Fields     model.JoinFields
}

// IslandRequest describes an island to create. Position is required.
type IslandRequest struct {
	Position *model.Vec3 `json:"position"`
	Radius   *float64    `json:"radius,omitempty"`
	Type     string      `json:"type,omitempty"`
}

// Controller coordinates identity, sessions, the state cache and fan-out
// for every inbound event
type Controller struct {
	resolver    *identity.Resolver
	registry    *session.Registry
	cache       *state.Cache
	chat        *chat.Service
	leaderboard *leaderboard.Aggregator
	publisher   realtime.Publisher
	ids         idgen.Generator
	clock       clock.Clock
	limits      Limits
	locks       *playerLocks
	logger      *slog.Logger
}

// NewController creates a new presence Controller
func NewController(
	resolver *identity.Resolver,
	registry *session.Registry,
	cache *state.Cache,
	chatService *chat.Service,
	aggregator *leaderboard.Aggregator,
	publisher realtime.Publisher,
	ids idgen.Generator,
	clock clock.Clock,
	limits Limits,
	logger *slog.Logger,
) *Controller {
	if limits.LeaderboardLimit <= 0 {
		limits.LeaderboardLimit = leaderboard.DefaultLimit
	}
	if limits.ChatHistoryLimit <= 0 {
		limits.ChatHistoryLimit = DefaultLimits().ChatHistoryLimit
	}
	return &Controller{
		resolver:    resolver,
		registry:    registry,
		cache:       cache,
		chat:        chatService,
		leaderboard: aggregator,
		publisher:   publisher,
		ids:         ids,
		clock:       clock,
		limits:      limits,
		locks:       newPlayerLocks(),
		logger:      logger.With(slog.String("component", "presence")),
	}
}

// Join resolves the connection's identity, activates the player and makes
// conn its session. Everyone learns of the join; the joiner alone gets the
// world snapshot. A failed durable write is returned after the broadcasts.
func (c *Controller) Join(ctx context.Context, conn model.ConnectionID, req JoinRequest) (*model.Player, error) {
	id := c.resolver.Resolve(ctx, conn, req.Credential)

	// A connection that switches identity leaves as its old player first
	if prev, ok := c.registry.Resolve(conn); ok && prev != id.PlayerID {
		c.Disconnect(ctx, conn)
	}

	unlock := c.locks.Lock(id.PlayerID)
	player, created, persistErr := c.cache.GetOrCreate(ctx, id.PlayerID, req.Fields)
	if old, superseded := c.registry.Attach(conn, id.PlayerID); superseded {
		c.logger.Info("session superseded",
			slog.String("player_id", string(id.PlayerID)),
			slog.String("old_connection_id", string(old)),
			slog.String("connection_id", string(conn)),
		)
	}
	c.publish(ctx, realtime.All(), model.EventPlayerJoined, player)
	unlock()

	c.logger.Info("player joined",
		slog.String("player_id", string(id.PlayerID)),
		slog.String("connection_id", string(conn)),
		slog.Bool("verified", id.Verified),
		slog.Bool("created", created),
	)

	c.sendSnapshot(ctx, conn)
	return player, persistErr
}

// sendSnapshot gives conn the full world view. Parts that cannot be read are
// skipped rather than failing the join.
func (c *Controller) sendSnapshot(ctx context.Context, conn model.ConnectionID) {
	to := realtime.Only(conn)
	c.publish(ctx, to, model.EventAllPlayers, c.cache.ActivePlayers())
	c.publish(ctx, to, model.EventAllIslands, c.cache.Islands())

	if history, err := c.chat.Recent(ctx, model.MessageTypeGlobal, c.limits.ChatHistoryLimit); err != nil {
		c.logger.Warn("failed to load chat history for snapshot", slog.String("error", err.Error()))
	} else {
		c.publish(ctx, to, model.EventChatHistory, history)
	}

	if board, err := c.leaderboard.Combined(ctx, c.limits.LeaderboardLimit); err != nil {
		c.logger.Warn("failed to load leaderboard for snapshot", slog.String("error", err.Error()))
	} else {
		c.publish(ctx, to, model.EventLeaderboard, board)
	}
}

// Update applies client-reported world state and relays it to everyone else
func (c *Controller) Update(ctx context.Context, conn model.ConnectionID, update model.PlayerUpdate) (*model.Player, error) {
	id, ok := c.registry.Resolve(conn)
	if !ok {
		return nil, ErrNotJoined
	}
	player, err := c.cache.ApplyUpdate(ctx, id, update)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, realtime.AllExcept(conn), model.EventPlayerMoved, model.PlayerMovedPayload{
		ID:       player.ID,
		Position: player.Position,
		Rotation: player.Rotation,
		Mode:     player.Mode,
	})
	return player, nil
}

// Action records a gameplay achievement. Fish and monsters count one each;
// money adds amount. The achievement and the refreshed leaderboard go to
// everyone even when the durable write failed.
func (c *Controller) Action(ctx context.Context, conn model.ConnectionID, action model.ActionType, amount int64) (*model.Player, error) {
	id, ok := c.registry.Resolve(conn)
	if !ok {
		return nil, ErrNotJoined
	}
	counter, ok := action.Counter()
	if !ok {
		return nil, model.ErrUnknownCounter
	}
	delta := int64(1)
	if counter == model.CounterMoney {
		delta = amount
	}

	player, err := c.cache.IncrementCounter(ctx, id, counter, delta)
	if err != nil && !errors.Is(err, model.ErrPersistFailed) {
		return nil, err
	}

	c.publish(ctx, realtime.All(), model.EventPlayerAchievement, model.NewAchievement(player, counter, delta))
	c.broadcastLeaderboard(ctx)
	return player, err
}

func (c *Controller) broadcastLeaderboard(ctx context.Context) {
	board, err := c.leaderboard.Combined(ctx, c.limits.LeaderboardLimit)
	if err != nil {
		c.logger.Warn("failed to refresh leaderboard", slog.String("error", err.Error()))
		return
	}
	c.publish(ctx, realtime.All(), model.EventLeaderboard, board)
}

// Chat stores a message from the connection's player and broadcasts it
func (c *Controller) Chat(ctx context.Context, conn model.ConnectionID, content, messageType string) (*model.ChatMessage, error) {
	id, ok := c.registry.Resolve(conn)
	if !ok {
		return nil, ErrNotJoined
	}
	msg, err := c.chat.Send(ctx, id, content, messageType)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, realtime.All(), model.EventChatMessage, msg)
	return msg, nil
}

// Rename changes the connection's player name and tells everyone
func (c *Controller) Rename(ctx context.Context, conn model.ConnectionID, name string) (*model.Player, error) {
	id, ok := c.registry.Resolve(conn)
	if !ok {
		return nil, ErrNotJoined
	}
	player, err := c.cache.Rename(ctx, id, name)
	if err != nil && !errors.Is(err, model.ErrPersistFailed) {
		return nil, err
	}
	c.publish(ctx, realtime.All(), model.EventPlayerUpdated, player)
	return player, err
}

// Disconnect ends conn's session. Only the player's active session marks
// it inactive; a superseded connection leaves without a trace.
func (c *Controller) Disconnect(ctx context.Context, conn model.ConnectionID) {
	id, ok := c.registry.Resolve(conn)
	if !ok {
		return
	}

	unlock := c.locks.Lock(id)
	defer unlock()

	// A reconnect may have superseded conn while we waited
	if _, ok := c.registry.Detach(conn); !ok {
		return
	}

	if _, err := c.cache.MarkInactive(ctx, id); err != nil {
		c.logger.Warn("failed to mark player inactive",
			slog.String("player_id", string(id)),
			slog.String("error", err.Error()),
		)
	}
	c.publish(ctx, realtime.All(), model.EventPlayerDisconnected, model.PlayerDisconnectedPayload{ID: id})

	c.logger.Info("player disconnected",
		slog.String("player_id", string(id)),
		slog.String("connection_id", string(conn)),
	)
}

// CreateIsland adds a static island to the world and announces it
func (c *Controller) CreateIsland(ctx context.Context, req IslandRequest) (*model.Island, error) {
	if req.Position == nil {
		return nil, model.ErrInvalidIsland
	}
	island := &model.Island{
		ID:        model.IslandID(IslandIDPrefix + c.ids.NewID()),
		Position:  *req.Position,
		Radius:    model.DefaultIslandRadius,
		Type:      model.DefaultIslandType,
		CreatedAt: c.clock.Now(),
	}
	if req.Radius != nil && *req.Radius > 0 {
		island.Radius = *req.Radius
	}
	if req.Type != "" {
		island.Type = req.Type
	}

	if err := c.cache.AddIsland(ctx, island); err != nil {
		return nil, err
	}
	c.publish(ctx, realtime.All(), model.EventIslandCreated, island)

	c.logger.Info("island created", slog.String("island_id", string(island.ID)))
	return island, nil
}

// SendPlayers sends the active player list to conn
func (c *Controller) SendPlayers(ctx context.Context, conn model.ConnectionID) {
	c.publish(ctx, realtime.Only(conn), model.EventAllPlayers, c.cache.ActivePlayers())
}

// SendLeaderboard sends the current leaderboard to conn
func (c *Controller) SendLeaderboard(ctx context.Context, conn model.ConnectionID) error {
	board, err := c.leaderboard.Combined(ctx, c.limits.LeaderboardLimit)
	if err != nil {
		return err
	}
	c.publish(ctx, realtime.Only(conn), model.EventLeaderboard, board)
	return nil
}

// SendRecentMessages sends up to limit messages of one type to conn
func (c *Controller) SendRecentMessages(ctx context.Context, conn model.ConnectionID, messageType string, limit int) error {
	if messageType == "" {
		messageType = model.MessageTypeGlobal
	}
	history, err := c.chat.Recent(ctx, messageType, limit)
	if err != nil {
		return err
	}
	c.publish(ctx, realtime.Only(conn), model.EventChatHistory, history)
	return nil
}

// SendStats sends a player's counters to conn. An empty id means the
// connection's own player.
func (c *Controller) SendStats(ctx context.Context, conn model.ConnectionID, id model.PlayerID) error {
	if id == "" {
		var ok bool
		if id, ok = c.registry.Resolve(conn); !ok {
			return ErrNotJoined
		}
	}
	stats, err := c.Stats(ctx, id)
	if err != nil {
		return err
	}
	c.publish(ctx, realtime.Only(conn), model.EventPlayerStats, stats)
	return nil
}

// Queries

// ActivePlayers returns every player with a live session
func (c *Controller) ActivePlayers() []*model.Player {
	return c.cache.ActivePlayers()
}

// Player returns one player, active or not
func (c *Controller) Player(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	return c.cache.Lookup(ctx, id)
}

// Stats returns one player's counters
func (c *Controller) Stats(ctx context.Context, id model.PlayerID) (model.PlayerStats, error) {
	player, err := c.cache.Lookup(ctx, id)
	if err != nil {
		return model.PlayerStats{}, err
	}
	return model.StatsOf(player), nil
}

// Islands returns every island
func (c *Controller) Islands() []*model.Island {
	return c.cache.Islands()
}

// Island returns one island
func (c *Controller) Island(id model.IslandID) (*model.Island, error) {
	return c.cache.Island(id)
}

// Leaderboard returns the top limit players per counter
func (c *Controller) Leaderboard(ctx context.Context, limit int) (*model.Leaderboard, error) {
	return c.leaderboard.Combined(ctx, limit)
}

// RecentMessages returns up to limit messages of one type, oldest first
func (c *Controller) RecentMessages(ctx context.Context, messageType string, limit int) ([]*model.ChatMessage, error) {
	if messageType == "" {
		messageType = model.MessageTypeGlobal
	}
	return c.chat.Recent(ctx, messageType, limit)
}

// Sessions returns the number of joined connections
func (c *Controller) Sessions() int {
	return c.registry.Len()
}

// publish logs delivery failures; fan-out is best effort
func (c *Controller) publish(ctx context.Context, to realtime.Recipients, eventType model.EventType, payload any) {
	if err := c.publisher.Publish(ctx, to, eventType, payload); err != nil {
		c.logger.Warn("failed to publish event",
			slog.String("event", string(eventType)),
			slog.String("recipients", to.String()),
			slog.String("error", err.Error()),
		)
	}
}
