package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case Player:
		o.printPlayer(v)
	case PlayerList:
		o.printPlayerList(v)
	case PlayerStats:
		o.printStats(v)
	case Island:
		o.printIsland(v)
	case IslandList:
		o.printIslandList(v)
	case Leaderboard:
		o.printLeaderboard(v)
	case MessageList:
		o.printMessages(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Vec3 is a world position
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Color is an RGB color with components in 0..1
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Player response type (matches API)
type Player struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Color        Color     `json:"color"`
	Position     Vec3      `json:"position"`
	Rotation     float64   `json:"rotation"`
	Mode         string    `json:"mode"`
	FishCount    int64     `json:"fishCount"`
	MonsterKills int64     `json:"monsterKills"`
	Money        int64     `json:"money"`
	Active       bool      `json:"active"`
	LastUpdate   time.Time `json:"lastUpdate"`
}

// PlayerList response type
type PlayerList struct {
	Players []Player `json:"players"`
}

// PlayerStats response type
type PlayerStats struct {
	ID           string `json:"id"`
	FishCount    int64  `json:"fishCount"`
	MonsterKills int64  `json:"monsterKills"`
	Money        int64  `json:"money"`
}

// Island response type
type Island struct {
	ID       string  `json:"id"`
	Position Vec3    `json:"position"`
	Radius   float64 `json:"radius"`
	Type     string  `json:"type"`
}

// IslandList response type
type IslandList struct {
	Islands []Island `json:"islands"`
}

// CreateIslandRequest is the body of the admin island endpoint
type CreateIslandRequest struct {
	Position Vec3     `json:"position"`
	Radius   *float64 `json:"radius,omitempty"`
	Type     string   `json:"type,omitempty"`
}

// LeaderboardEntry response type
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Leaderboard response type
type Leaderboard struct {
	FishCount    []LeaderboardEntry `json:"fishCount"`
	MonsterKills []LeaderboardEntry `json:"monsterKills"`
	Money        []LeaderboardEntry `json:"money"`
}

// Message response type
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// MessageList response type
type MessageList struct {
	Type     string    `json:"type"`
	Messages []Message `json:"messages"`
}

// HealthResult response type
type HealthResult struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Clients  int    `json:"clients"`
}

func (o *Output) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.w, format, args...)
}

func (o *Output) printPlayer(p Player) {
	status := "offline"
	if p.Active {
		status = "online"
	}
	o.printf("Player: %s (%s)\n", p.Name, p.ID)
	o.printf("Status: %s\n", status)
	o.printf("Mode: %s\n", p.Mode)
	o.printf("Position: (%.1f, %.1f, %.1f) facing %.2f\n", p.Position.X, p.Position.Y, p.Position.Z, p.Rotation)
	o.printf("Fish: %d  Monsters: %d  Money: %d\n", p.FishCount, p.MonsterKills, p.Money)
}

func (o *Output) printPlayerList(l PlayerList) {
	o.printf("Active players (%d):\n", len(l.Players))
	for _, p := range l.Players {
		o.printf("  - %s (%s) %s at (%.1f, %.1f, %.1f)\n",
			p.Name, p.ID, p.Mode, p.Position.X, p.Position.Y, p.Position.Z)
	}
}

func (o *Output) printStats(s PlayerStats) {
	o.printf("Player: %s\n", s.ID)
	o.printf("Fish: %d\n", s.FishCount)
	o.printf("Monsters: %d\n", s.MonsterKills)
	o.printf("Money: %d\n", s.Money)
}

func (o *Output) printIsland(i Island) {
	o.printf("Island: %s\n", i.ID)
	o.printf("Type: %s\n", i.Type)
	o.printf("Position: (%.1f, %.1f, %.1f)\n", i.Position.X, i.Position.Y, i.Position.Z)
	o.printf("Radius: %.1f\n", i.Radius)
}

func (o *Output) printIslandList(l IslandList) {
	o.printf("Islands (%d):\n", len(l.Islands))
	for _, i := range l.Islands {
		o.printf("  - %s [%s] at (%.1f, %.1f, %.1f) r=%.1f\n",
			i.ID, i.Type, i.Position.X, i.Position.Y, i.Position.Z, i.Radius)
	}
}

func (o *Output) printLeaderboard(l Leaderboard) {
	o.printRanking("Fish", l.FishCount)
	o.printRanking("Monsters", l.MonsterKills)
	o.printRanking("Money", l.Money)
}

func (o *Output) printRanking(title string, entries []LeaderboardEntry) {
	o.printf("%s:\n", title)
	if len(entries) == 0 {
		o.printf("  (none)\n")
		return
	}
	for i, e := range entries {
		o.printf("  %d. %s %d\n", i+1, e.Name, e.Value)
	}
}

func (o *Output) printMessages(l MessageList) {
	o.printf("Messages [%s] (%d):\n", l.Type, len(l.Messages))
	for _, m := range l.Messages {
		o.printf("  [%s] %s: %s\n", m.Timestamp.Local().Format("2006-01-02 15:04:05"), m.SenderName, m.Content)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	o.printf("Status: %s\n", h.Status)
	o.printf("Sessions: %d\n", h.Sessions)
	o.printf("Clients: %d\n", h.Clients)
}
