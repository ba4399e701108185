package model

import "strconv"

// EventType identifies an outbound realtime event
type EventType string

const (
	// Presence events
	EventPlayerJoined       EventType = "player_joined"
	EventPlayerMoved        EventType = "player_moved"
	EventPlayerDisconnected EventType = "player_disconnected"
	EventPlayerUpdated      EventType = "player_updated"

	// Snapshot events, sent to a single connection
	EventAllPlayers  EventType = "all_players"
	EventAllIslands  EventType = "all_islands"
	EventChatHistory EventType = "chat_history"
	EventPlayerStats EventType = "player_stats"

	// Progress events
	EventPlayerAchievement EventType = "player_achievement"
	EventLeaderboard       EventType = "leaderboard_update"

	EventChatMessage   EventType = "chat_message"
	EventIslandCreated EventType = "island_created"
)

// PlayerMovedPayload is broadcast to everyone but the mover
type PlayerMovedPayload struct {
	ID       PlayerID `json:"id"`
	Position Vec3     `json:"position"`
	Rotation float64  `json:"rotation"`
	Mode     Mode     `json:"mode"`
}

// PlayerDisconnectedPayload is broadcast when a player's active session ends
type PlayerDisconnectedPayload struct {
	ID PlayerID `json:"id"`
}

// AchievementPayload reports a counter increment. Only the changed counter is set.
type AchievementPayload struct {
	ID           PlayerID `json:"id"`
	Name         string   `json:"name"`
	Achievement  string   `json:"achievement"`
	FishCount    *int64   `json:"fishCount,omitempty"`
	MonsterKills *int64   `json:"monsterKills,omitempty"`
	Money        *int64   `json:"money,omitempty"`
}

// NewAchievement describes an increment of counter by delta for p
func NewAchievement(p *Player, c Counter, delta int64) AchievementPayload {
	payload := AchievementPayload{ID: p.ID, Name: p.Name}
	value := p.Counter(c)
	switch c {
	case CounterFish:
		payload.Achievement = "Caught a fish!"
		payload.FishCount = &value
	case CounterMonsters:
		payload.Achievement = "Defeated a sea monster!"
		payload.MonsterKills = &value
	case CounterMoney:
		payload.Achievement = "Earned " + strconv.FormatInt(delta, 10) + " coins!"
		payload.Money = &value
	}
	return payload
}

// PlayerStats is the counter summary for one player
type PlayerStats struct {
	ID           PlayerID `json:"id"`
	FishCount    int64    `json:"fishCount"`
	MonsterKills int64    `json:"monsterKills"`
	Money        int64    `json:"money"`
}

// StatsOf projects the counters of p
func StatsOf(p *Player) PlayerStats {
	return PlayerStats{ID: p.ID, FishCount: p.FishCount, MonsterKills: p.MonsterKills, Money: p.Money}
}

// LeaderboardEntry is one ranked row
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
	Color Color  `json:"color"`
}

// Leaderboard holds the top players for each counter
type Leaderboard struct {
	FishCount    []LeaderboardEntry `json:"fishCount"`
	MonsterKills []LeaderboardEntry `json:"monsterKills"`
	Money        []LeaderboardEntry `json:"money"`
}

// SetCategory stores the ranking for c. It panics on an unknown counter.
func (l *Leaderboard) SetCategory(c Counter, entries []LeaderboardEntry) {
	switch c {
	case CounterFish:
		l.FishCount = entries
	case CounterMonsters:
		l.MonsterKills = entries
	case CounterMoney:
		l.Money = entries
	default:
		panic("model: unknown leaderboard category " + string(c))
	}
}
