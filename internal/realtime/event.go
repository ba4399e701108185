package realtime

import (
	"encoding/json"

	"github.com/mcoot/sailsync/internal/model"
)

// Envelope is the frame exchanged with clients in both directions
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload under the event type
func NewEnvelope(eventType model.EventType, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: string(eventType), Data: data}, nil
}

type selection int

const (
	selectAll selection = iota
	selectAllExcept
	selectOnly
)

// Recipients selects which connected clients receive an event
type Recipients struct {
	mode selection
	conn model.ConnectionID
}

// All selects every connected client
func All() Recipients {
	return Recipients{mode: selectAll}
}

// AllExcept selects every connected client but conn
func AllExcept(conn model.ConnectionID) Recipients {
	return Recipients{mode: selectAllExcept, conn: conn}
}

// Only selects conn alone
func Only(conn model.ConnectionID) Recipients {
	return Recipients{mode: selectOnly, conn: conn}
}

// Includes reports whether the client with the given id is selected
func (r Recipients) Includes(id model.ConnectionID) bool {
	switch r.mode {
	case selectAllExcept:
		return id != r.conn
	case selectOnly:
		return id == r.conn
	}
	return true
}

func (r Recipients) String() string {
	switch r.mode {
	case selectAllExcept:
		return "all_except:" + string(r.conn)
	case selectOnly:
		return "only:" + string(r.conn)
	}
	return "all"
}
