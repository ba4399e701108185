package response

import (
	"github.com/mcoot/sailsync/internal/model"
)

// Health is the body of the health endpoint
type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Clients  int    `json:"clients"`
}

// Players lists player records
type Players struct {
	Players []*model.Player `json:"players"`
}

// Islands lists islands
type Islands struct {
	Islands []*model.Island `json:"islands"`
}

// Messages lists chat messages, oldest first
type Messages struct {
	Type     string               `json:"type"`
	Messages []*model.ChatMessage `json:"messages"`
}

// PlayersFromModel wraps players, never encoding a null list
func PlayersFromModel(players []*model.Player) Players {
	if players == nil {
		players = []*model.Player{}
	}
	return Players{Players: players}
}

// IslandsFromModel wraps islands, never encoding a null list
func IslandsFromModel(islands []*model.Island) Islands {
	if islands == nil {
		islands = []*model.Island{}
	}
	return Islands{Islands: islands}
}

// MessagesFromModel wraps messages, never encoding a null list
func MessagesFromModel(messageType string, messages []*model.ChatMessage) Messages {
	if messages == nil {
		messages = []*model.ChatMessage{}
	}
	return Messages{Type: messageType, Messages: messages}
}
