package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/storage"
)

// DefaultLimit is the number of entries per category
const DefaultLimit = 10

// Aggregator ranks players by each counter from durable storage, so offline
// players keep their all-time standing. Stores with native ordering answer
// directly; others are listed and sorted here.
type Aggregator struct {
	store   storage.Store
	ordered storage.OrderedStore // nil when the store cannot rank
	timeout time.Duration
	logger  *slog.Logger
}

// NewAggregator checks the store's ranking capability once, up front
func NewAggregator(store storage.Store, timeout time.Duration, logger *slog.Logger) *Aggregator {
	a := &Aggregator{
		store:   store,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "leaderboard")),
	}
	if ordered, ok := store.(storage.OrderedStore); ok {
		a.ordered = ordered
	}
	return a
}

// Ordered reports whether rankings come from the store's native ordering
func (a *Aggregator) Ordered() bool {
	return a.ordered != nil
}

// Combined returns the top limit players for every counter. A non-positive
// limit uses DefaultLimit.
func (a *Aggregator) Combined(ctx context.Context, limit int) (*model.Leaderboard, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	ctx, cancel := a.context(ctx)
	defer cancel()

	board := &model.Leaderboard{}
	if a.ordered != nil {
		for _, c := range model.AllCounters() {
			players, err := a.ordered.TopPlayers(ctx, c, limit)
			if err != nil {
				return nil, fmt.Errorf("rank %s: %w", c, err)
			}
			board.SetCategory(c, entries(players, c))
		}
		return board, nil
	}

	players, err := a.store.ListPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	for _, c := range model.AllCounters() {
		board.SetCategory(c, entries(Rank(players, c, limit), c))
	}
	return board, nil
}

// Rank sorts a copy of players by counter, highest first, ties by id, and
// keeps at most limit. An unknown counter is a programming error and panics.
func Rank(players []*model.Player, counter model.Counter, limit int) []*model.Player {
	if !counter.Valid() {
		panic(fmt.Sprintf("leaderboard: unknown category %q", counter))
	}
	ranked := make([]*model.Player, len(players))
	copy(ranked, players)
	sort.SliceStable(ranked, func(i, j int) bool {
		vi, vj := ranked[i].Counter(counter), ranked[j].Counter(counter)
		if vi != vj {
			return vi > vj
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func entries(players []*model.Player, counter model.Counter) []model.LeaderboardEntry {
	result := make([]model.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		result = append(result, model.LeaderboardEntry{
			Name:  p.Name,
			Value: p.Counter(counter),
			Color: p.Color,
		})
	}
	return result
}

func (a *Aggregator) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}
