package model

import "math"

// Counter names one of the player's monotonic tallies
type Counter string

const (
	CounterFish     Counter = "fishCount"
	CounterMonsters Counter = "monsterKills"
	CounterMoney    Counter = "money"
)

// AllCounters returns the closed set of counters in leaderboard order
func AllCounters() []Counter {
	return []Counter{CounterFish, CounterMonsters, CounterMoney}
}

// Valid reports whether c is a known counter
func (c Counter) Valid() bool {
	switch c {
	case CounterFish, CounterMonsters, CounterMoney:
		return true
	}
	return false
}

// CheckDelta validates an increment for the counter. Fish and monster
// increments must be positive, money increments must not be negative.
func (c Counter) CheckDelta(delta int64) error {
	switch c {
	case CounterFish, CounterMonsters:
		if delta <= 0 {
			return ErrInvalidDelta
		}
	case CounterMoney:
		if delta < 0 {
			return ErrNegativeDelta
		}
	default:
		return ErrUnknownCounter
	}
	return nil
}

// Increment applies a validated delta to the player's counter. A delta that
// would take the counter past math.MaxInt64 is rejected.
func (p *Player) Increment(c Counter, delta int64) error {
	if err := c.CheckDelta(delta); err != nil {
		return err
	}
	if current := p.Counter(c); current > 0 && delta > math.MaxInt64-current {
		return ErrCounterOverflow
	}
	p.addCounter(c, delta)
	return nil
}

// AddProgress adds other's counters to p, saturating at math.MaxInt64
func (p *Player) AddProgress(other *Player) {
	for _, c := range AllCounters() {
		delta := other.Counter(c)
		if delta <= 0 {
			continue
		}
		if current := p.Counter(c); current > 0 {
			delta = min(delta, math.MaxInt64-current)
		}
		p.addCounter(c, delta)
	}
}

// ActionType is a gameplay action reported by a client
type ActionType string

const (
	ActionFishCaught    ActionType = "fish_caught"
	ActionMonsterKilled ActionType = "monster_killed"
	ActionMoneyEarned   ActionType = "money_earned"
)

// Counter maps an action to the counter it increments
func (a ActionType) Counter() (Counter, bool) {
	switch a {
	case ActionFishCaught:
		return CounterFish, true
	case ActionMonsterKilled:
		return CounterMonsters, true
	case ActionMoneyEarned:
		return CounterMoney, true
	}
	return "", false
}
