package presence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/realtime"
	"github.com/mcoot/sailsync/internal/services/identity"
)

// Inbound message types. The second name of each pair is the legacy alias
// still sent by older clients.
const (
	MsgJoin           = "join"
	MsgJoinLegacy     = "player_join"
	MsgStateUpdate    = "state_update"
	MsgStateLegacy    = "player_update"
	MsgAction         = "action"
	MsgActionLegacy   = "player_action"
	MsgChat           = "chat"
	MsgChatLegacy     = "chat_message"
	MsgRename         = "update_player_name"
	MsgGetPlayers     = "get_all_players"
	MsgGetLeaderboard = "get_leaderboard"
	MsgGetMessages    = "get_recent_messages"
	MsgGetPlayerStats = "get_player_stats"
)

type joinPayload struct {
	Name     *string      `json:"name"`
	Color    *model.Color `json:"color"`
	Position *model.Vec3  `json:"position"`
	Rotation *float64     `json:"rotation"`
	Mode     *model.Mode  `json:"mode"`

	CredentialToken string `json:"credentialToken"`
	ClaimedIdentity string `json:"claimedIdentity"`
	FirebaseToken   string `json:"firebaseToken"`
	FirebaseUID     string `json:"firebaseUid"`
}

func (p joinPayload) request() JoinRequest {
	cred := identity.Credential{Token: p.CredentialToken, ClaimedID: p.ClaimedIdentity}
	if cred.Token == "" {
		cred.Token = p.FirebaseToken
	}
	if cred.ClaimedID == "" {
		cred.ClaimedID = p.FirebaseUID
	}
	return JoinRequest{
		Credential: cred,
		Fields: model.JoinFields{
			Name:     p.Name,
			Color:    p.Color,
			Position: p.Position,
			Rotation: p.Rotation,
			Mode:     p.Mode,
		},
	}
}

type actionPayload struct {
	Type   model.ActionType `json:"type"`
	Amount int64            `json:"amount"`
}

type chatPayload struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type renamePayload struct {
	Name string `json:"name"`
}

type messagesPayload struct {
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

type statsPayload struct {
	ID model.PlayerID `json:"id"`
}

// Dispatcher decodes inbound frames and routes them to the Controller.
// Problems with a single message are logged and dropped; nothing here
// closes a connection.
type Dispatcher struct {
	controller *Controller
	handlers   map[string]func(ctx context.Context, conn model.ConnectionID, data json.RawMessage) error
	logger     *slog.Logger
}

var _ realtime.MessageHandler = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher for controller
func NewDispatcher(controller *Controller, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		controller: controller,
		logger:     logger.With(slog.String("component", "dispatcher")),
	}
	d.handlers = map[string]func(ctx context.Context, conn model.ConnectionID, data json.RawMessage) error{
		MsgJoin:           d.join,
		MsgJoinLegacy:     d.join,
		MsgStateUpdate:    d.stateUpdate,
		MsgStateLegacy:    d.stateUpdate,
		MsgAction:         d.action,
		MsgActionLegacy:   d.action,
		MsgChat:           d.chat,
		MsgChatLegacy:     d.chat,
		MsgRename:         d.rename,
		MsgGetPlayers:     d.getPlayers,
		MsgGetLeaderboard: d.getLeaderboard,
		MsgGetMessages:    d.getMessages,
		MsgGetPlayerStats: d.getPlayerStats,
	}
	return d
}

// HandleMessage routes one inbound message
func (d *Dispatcher) HandleMessage(ctx context.Context, conn model.ConnectionID, msgType string, data json.RawMessage) {
	handler, ok := d.handlers[msgType]
	if !ok {
		d.logger.Debug("ignoring unknown message type",
			slog.String("connection_id", string(conn)),
			slog.String("type", msgType),
		)
		return
	}

	err := handler(ctx, conn, data)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrPersistFailed):
		// The in-memory effect and broadcasts already happened
		d.logger.Warn("message applied without durable write",
			slog.String("connection_id", string(conn)),
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
	default:
		d.logger.Debug("message rejected",
			slog.String("connection_id", string(conn)),
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
	}
}

// HandleDisconnect ends the connection's session
func (d *Dispatcher) HandleDisconnect(ctx context.Context, conn model.ConnectionID) {
	d.controller.Disconnect(ctx, conn)
}

func (d *Dispatcher) join(ctx context.Context, conn model.ConnectionID, data json.RawMessage) error {
	var p joinPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := d.controller.Join(ctx, conn, p.request())
	return err
}

func (d *Dispatcher) stateUpdate(ctx context.Context, conn model.ConnectionID, data json.RawMessage) error {
	var p model.PlayerUpdate
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := d.controller.Update(ctx, conn, p)
	return err
}

func (d *Dispatcher) action(ctx context.Context, conn model.ConnectionID, data json.RawMessage) error {
	var p actionPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := d.controller.Action(ctx, conn, p.Type, p.Amount)
	return err
}

func (d *Dispatcher) chat(ctx context.Context, conn model.ConnectionID, data json.RawMessage) error {
	var p chatPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := d.controller.Chat(ctx, conn, p.Content, p.Type)
	return err
}

func (d *Dispatcher) rename(ctx context.Context, conn model.ConnectionID, data json.RawMessage) error {
	var p renamePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := d.controller.Rename(ctx, conn, p.Name)
	return err
}

func (d *Dispatcher) getPlayers(ctx context.Context, conn model.ConnectionID, _ json.RawMessage) error {
	d.controller.SendPlayers(ctx, conn)
	return nil
}

func (d *Dispatcher) getLeaderboard(ctx context.Context, conn model.ConnectionID, _ json.RawMessage) error {
	return d.controller.SendLeaderboard(ctx, conn)
}

func (d *Dispatcher) getMessages(ctx context.Context, conn model.ConnectionID, data json.RawMessage) error {
	var p messagesPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.controller.SendRecentMessages(ctx, conn, p.Type, p.Limit)
}

func (d *Dispatcher) getPlayerStats(ctx context.Context, conn model.ConnectionID, data json.RawMessage) error {
	var p statsPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.controller.SendStats(ctx, conn, p.ID)
}

// decode accepts a missing or null payload as empty
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
