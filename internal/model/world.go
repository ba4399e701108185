package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// IslandID identifies an island
type IslandID string

const (
	DefaultIslandRadius = 50.0
	DefaultIslandType   = "default"
)

// Island is a static world object created by administrators
type Island struct {
	ID        IslandID  `json:"id"`
	Position  Vec3      `json:"position"`
	Radius    float64   `json:"radius"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageID identifies a stored chat message
type MessageID string

const (
	MessageTypeGlobal = "global"
	MaxMessageLength  = 500
)

// Message is the stored form of a chat message
type Message struct {
	ID          MessageID `json:"id"`
	SenderID    PlayerID  `json:"senderId"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	MessageType string    `json:"messageType"`
}

// ChatMessage is a message with sender details attached at read time
type ChatMessage struct {
	Message
	SenderName  string `json:"senderName"`
	SenderColor Color  `json:"senderColor"`
}

// NormalizeMessage trims content and checks its length in runes
func NormalizeMessage(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return content, nil
}
