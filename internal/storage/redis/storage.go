package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/storage"
)

// Storage is a Redis-backed implementation of the store. Players are hashes
// with one sorted set per counter kept in step, so rankings are native.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = 1
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the ordered interface
var _ storage.OrderedStore = (*Storage)(nil)

// Player operations

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	values, err := s.client.HGetAll(ctx, playerKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, model.ErrPlayerNotFound
	}
	return decodePlayer(values)
}

func (s *Storage) CreatePlayer(ctx context.Context, player *model.Player) error {
	fields, err := playerFields(player)
	if err != nil {
		return err
	}

	key := playerKey(player.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return model.ErrPlayerExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.SAdd(ctx, playersIndexKey(), string(player.ID))
			for _, c := range model.AllCounters() {
				pipe.ZAdd(ctx, leaderboardKey(c), redis.Z{
					Score:  float64(player.Counter(c)),
					Member: string(player.ID),
				})
			}
			return nil
		})
		return err
	}, key)

	// A concurrent writer touched the key between WATCH and EXEC
	if errors.Is(err, redis.TxFailedErr) {
		return model.ErrPlayerExists
	}
	return err
}

func (s *Storage) UpdatePlayer(ctx context.Context, id model.PlayerID, patch model.PlayerPatch) error {
	fields, err := patchFields(patch)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	scores := counterScores(patch)

	key := playerKey(id)
	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return model.ErrPlayerNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			for c, score := range scores {
				pipe.ZAdd(ctx, leaderboardKey(c), redis.Z{Score: float64(score), Member: string(id)})
			}
			return nil
		})
		return err
	}

	for i := 0; i < s.cfg.MaxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update player %s: %w", id, err)
}

func (s *Storage) ListPlayers(ctx context.Context) ([]*model.Player, error) {
	ids, err := s.client.SMembers(ctx, playersIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	return s.loadPlayers(ctx, ids)
}

// TopPlayers reads the counter's sorted set, highest score first
func (s *Storage) TopPlayers(ctx context.Context, counter model.Counter, limit int) ([]*model.Player, error) {
	if limit <= 0 {
		return []*model.Player{}, nil
	}
	ids, err := s.client.ZRevRange(ctx, leaderboardKey(counter), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	return s.loadPlayers(ctx, ids)
}

// loadPlayers fetches player hashes in one pipeline, keeping the order of ids
// and skipping ids whose hash has gone.
func (s *Storage) loadPlayers(ctx context.Context, ids []string) ([]*model.Player, error) {
	if len(ids) == 0 {
		return []*model.Player{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, playerKey(model.PlayerID(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	players := make([]*model.Player, 0, len(ids))
	for _, cmd := range cmds {
		values := cmd.Val()
		if len(values) == 0 {
			continue
		}
		p, err := decodePlayer(values)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, nil
}

// Island operations

func (s *Storage) SaveIsland(ctx context.Context, island *model.Island) error {
	data, err := json.Marshal(island)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, islandKey(island.ID), data, 0)
	pipe.SAdd(ctx, islandsIndexKey(), string(island.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) ListIslands(ctx context.Context) ([]*model.Island, error) {
	ids, err := s.client.SMembers(ctx, islandsIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Island{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = islandKey(model.IslandID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	islands := make([]*model.Island, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var island model.Island
		if err := json.Unmarshal([]byte(str), &island); err != nil {
			return nil, err
		}
		islands = append(islands, &island)
	}
	return islands, nil
}

// Message operations

func (s *Storage) AppendMessage(ctx context.Context, msg *model.Message) error {
	seq, err := s.client.Incr(ctx, messageSeqKey()).Result()
	if err != nil {
		return err
	}
	msg.ID = model.MessageID(strconv.FormatInt(seq, 10))

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, messageKey(msg.ID), data, 0)
	pipe.ZAdd(ctx, messagesByTypeKey(msg.MessageType), redis.Z{
		Score:  float64(msg.Timestamp.UnixMilli()),
		Member: string(msg.ID),
	})
	_, err = pipe.Exec(ctx)
	return err
}

// ListMessages returns all messages of the type, oldest first
func (s *Storage) ListMessages(ctx context.Context, messageType string) ([]*model.Message, error) {
	ids, err := s.client.ZRange(ctx, messagesByTypeKey(messageType), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.loadMessages(ctx, ids)
}

// RecentMessages returns up to limit messages of the type, newest first
func (s *Storage) RecentMessages(ctx context.Context, messageType string, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		return []*model.Message{}, nil
	}
	ids, err := s.client.ZRevRange(ctx, messagesByTypeKey(messageType), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	return s.loadMessages(ctx, ids)
}

func (s *Storage) loadMessages(ctx context.Context, ids []string) ([]*model.Message, error) {
	if len(ids) == 0 {
		return []*model.Message{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(model.MessageID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]*model.Message, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var msg model.Message
		if err := json.Unmarshal([]byte(str), &msg); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}
