package redis

import (
	"fmt"

	"github.com/mcoot/sailsync/internal/model"
)

// Key prefix for all world data
const keyPrefix = "sail"

// playerKey returns the Redis key for a Player hash
func playerKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s", keyPrefix, id)
}

// playersIndexKey returns the Redis key for the SET of all player ids
func playersIndexKey() string {
	return fmt.Sprintf("%s:idx:players", keyPrefix)
}

// leaderboardKey returns the Redis key for the ZSET ranking players by a counter
func leaderboardKey(c model.Counter) string {
	return fmt.Sprintf("%s:lb:%s", keyPrefix, c)
}

// islandKey returns the Redis key for an Island
func islandKey(id model.IslandID) string {
	return fmt.Sprintf("%s:island:%s", keyPrefix, id)
}

// islandsIndexKey returns the Redis key for the SET of all island ids
func islandsIndexKey() string {
	return fmt.Sprintf("%s:idx:islands", keyPrefix)
}

// messageKey returns the Redis key for a Message
func messageKey(id model.MessageID) string {
	return fmt.Sprintf("%s:message:%s", keyPrefix, id)
}

// messagesByTypeKey returns the Redis key for the ZSET of message ids of a type, scored by timestamp
func messagesByTypeKey(messageType string) string {
	return fmt.Sprintf("%s:messages:%s", keyPrefix, messageType)
}

// messageSeqKey returns the Redis key of the message id counter
func messageSeqKey() string {
	return fmt.Sprintf("%s:seq:message", keyPrefix)
}
