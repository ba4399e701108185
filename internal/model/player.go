package model

import (
	"strings"
	"time"
)

// PlayerID uniquely identifies a logical player across connections
type PlayerID string

// ConnectionID identifies a single live transport connection
type ConnectionID string

// Identity namespaces for player ids
const (
	VerifiedPrefix  = "firebase_"
	EphemeralPrefix = "guest_"
)

// Mode is the player's movement mode. The set is open; boat and character are the known values.
type Mode string

const (
	ModeBoat      Mode = "boat"
	ModeCharacter Mode = "character"
)

// Vec3 is a position in world space
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Color is an RGB color with normalized components
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

var (
	DefaultPlayerColor = Color{R: 0.3, G: 0.6, B: 0.8}
	UnknownSenderColor = Color{R: 0.5, G: 0.5, B: 0.5}
)

const (
	UnknownSenderName = "Unknown"
	MaxNameLength     = 32
)

// Player is the full record for a logical player
type Player struct {
	ID           PlayerID  `json:"id"`
	Name         string    `json:"name"`
	Color        Color     `json:"color"`
	Position     Vec3      `json:"position"`
	Rotation     float64   `json:"rotation"`
	Mode         Mode      `json:"mode"`
	FishCount    int64     `json:"fishCount"`
	MonsterKills int64     `json:"monsterKills"`
	Money        int64     `json:"money"`
	Active       bool      `json:"active"`
	LastUpdate   time.Time `json:"lastUpdate"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clone returns a copy safe to hand outside the owning lock
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Counter returns the value of the given counter. It panics on an unknown counter.
func (p *Player) Counter(c Counter) int64 {
	switch c {
	case CounterFish:
		return p.FishCount
	case CounterMonsters:
		return p.MonsterKills
	case CounterMoney:
		return p.Money
	}
	panic("model: unknown counter " + string(c))
}

func (p *Player) addCounter(c Counter, delta int64) {
	switch c {
	case CounterFish:
		p.FishCount += delta
	case CounterMonsters:
		p.MonsterKills += delta
	case CounterMoney:
		p.Money += delta
	}
}

// NewPlayer builds a player with default profile and world state
func NewPlayer(id PlayerID, now time.Time) *Player {
	return &Player{
		ID:         id,
		Name:       DefaultName(id),
		Color:      DefaultPlayerColor,
		Mode:       ModeBoat,
		Active:     true,
		LastUpdate: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// DefaultName derives "Sailor xxxx" from the first four characters of the id
// after its identity namespace.
func DefaultName(id PlayerID) string {
	s := string(id)
	for _, prefix := range []string{VerifiedPrefix, EphemeralPrefix} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	r := []rune(s)
	if len(r) > 4 {
		r = r[:4]
	}
	return "Sailor " + string(r)
}

// PlayerUpdate holds the client-mutable fields of a player. Nil fields are left unchanged.
type PlayerUpdate struct {
	Position *Vec3    `json:"position,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	Mode     *Mode    `json:"mode,omitempty"`
}

// IsEmpty reports whether the update carries no fields
func (u PlayerUpdate) IsEmpty() bool {
	return u.Position == nil && u.Rotation == nil && u.Mode == nil
}

// ApplyTo merges the update into p
func (u PlayerUpdate) ApplyTo(p *Player) {
	if u.Position != nil {
		p.Position = *u.Position
	}
	if u.Rotation != nil {
		p.Rotation = *u.Rotation
	}
	if u.Mode != nil && *u.Mode != "" {
		p.Mode = *u.Mode
	}
}

// JoinFields are the optional fields a client may send when joining
type JoinFields struct {
	Name     *string
	Color    *Color
	Position *Vec3
	Rotation *float64
	Mode     *Mode
}

// WorldState returns the subset merged over an existing record on reconnect
func (j JoinFields) WorldState() PlayerUpdate {
	return PlayerUpdate{Position: j.Position, Rotation: j.Rotation, Mode: j.Mode}
}

// ApplyProfile sets name and color on a newly created player
func (j JoinFields) ApplyProfile(p *Player) {
	if j.Name != nil {
		if name, err := NormalizeName(*j.Name); err == nil {
			p.Name = name
		}
	}
	if j.Color != nil {
		p.Color = *j.Color
	}
}

// NormalizeName trims a display name and checks its length
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := len([]rune(name))
	if n == 0 || n > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// PlayerPatch is a partial durable update. Only non-nil fields are written.
type PlayerPatch struct {
	Name         *string
	Color        *Color
	Position     *Vec3
	Rotation     *float64
	Mode         *Mode
	FishCount    *int64
	MonsterKills *int64
	Money        *int64
	Active       *bool
	LastUpdate   *time.Time
	UpdatedAt    *time.Time
}

// WorldPatch is the throttled field subset: position, rotation, mode and lastUpdate
func WorldPatch(p *Player) PlayerPatch {
	pos, rot, mode, last := p.Position, p.Rotation, p.Mode, p.LastUpdate
	return PlayerPatch{
		Position:   &pos,
		Rotation:   &rot,
		Mode:       &mode,
		LastUpdate: &last,
		UpdatedAt:  &last,
	}
}

// FullPatch carries every mutable field of p
func FullPatch(p *Player) PlayerPatch {
	patch := WorldPatch(p)
	name, color := p.Name, p.Color
	fish, monsters, money, active := p.FishCount, p.MonsterKills, p.Money, p.Active
	patch.Name = &name
	patch.Color = &color
	patch.FishCount = &fish
	patch.MonsterKills = &monsters
	patch.Money = &money
	patch.Active = &active
	return patch
}

// ApplyTo merges the set fields of the patch into p
func (pp PlayerPatch) ApplyTo(p *Player) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Color != nil {
		p.Color = *pp.Color
	}
	if pp.Position != nil {
		p.Position = *pp.Position
	}
	if pp.Rotation != nil {
		p.Rotation = *pp.Rotation
	}
	if pp.Mode != nil {
		p.Mode = *pp.Mode
	}
	if pp.FishCount != nil {
		p.FishCount = *pp.FishCount
	}
	if pp.MonsterKills != nil {
		p.MonsterKills = *pp.MonsterKills
	}
	if pp.Money != nil {
		p.Money = *pp.Money
	}
	if pp.Active != nil {
		p.Active = *pp.Active
	}
	if pp.LastUpdate != nil {
		p.LastUpdate = *pp.LastUpdate
	}
	if pp.UpdatedAt != nil {
		p.UpdatedAt = *pp.UpdatedAt
	}
}
