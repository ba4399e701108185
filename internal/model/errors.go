package model

import "errors"

// Common errors used across the application
var (
	// Player errors
	ErrPlayerNotFound = errors.New("player not found")
	ErrPlayerExists   = errors.New("player already exists")
	ErrInvalidName    = errors.New("invalid player name")

	// Counter errors
	ErrUnknownCounter  = errors.New("unknown counter")
	ErrInvalidDelta    = errors.New("counter delta must be positive")
	ErrNegativeDelta   = errors.New("counter delta must not be negative")
	ErrCounterOverflow = errors.New("counter would overflow")

	// Island errors
	ErrIslandNotFound = errors.New("island not found")
	ErrInvalidIsland  = errors.New("island requires a position")

	// Chat errors
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")

	// Storage errors
	ErrPersistFailed = errors.New("durable write failed")
)
