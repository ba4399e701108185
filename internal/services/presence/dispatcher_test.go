package presence

import (
	"encoding/json"

	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/testutil"
)

func (s *ControllerSuite) dispatch(conn model.ConnectionID, msgType, data string) {
	d := NewDispatcher(s.controller, testutil.NopLogger())
	d.HandleMessage(s.ctx, conn, msgType, json.RawMessage(data))
}

func (s *ControllerSuite) TestDispatchJoinAcceptsLegacyCredentialFields() {
	s.dispatch("c1", MsgJoinLegacy, `{"name":"Queequeg","firebaseToken":"token-42","firebaseUid":"uid42"}`)

	id, ok := s.registry.Resolve("c1")
	s.Require().True(ok)
	s.Equal(model.PlayerID("firebase_uid42"), id)
	p, err := s.cache.Get(id)
	s.Require().NoError(err)
	s.Equal("Queequeg", p.Name)
}

func (s *ControllerSuite) TestDispatchJoinWithoutPayload() {
	s.dispatch("c1", MsgJoin, "")

	s.True(s.registry.IsActive("guest_c1"))
}

func (s *ControllerSuite) TestDispatchStateUpdate() {
	s.dispatch("c1", MsgJoin, `{}`)
	s.dispatch("c1", MsgStateLegacy, `{"position":{"x":4,"y":0,"z":5},"mode":"character"}`)

	p, err := s.cache.Get("guest_c1")
	s.Require().NoError(err)
	s.Equal(model.Vec3{X: 4, Y: 0, Z: 5}, p.Position)
	s.Equal(model.ModeCharacter, p.Mode)
}

func (s *ControllerSuite) TestDispatchActionAndChat() {
	s.dispatch("c1", MsgJoin, `{}`)
	s.dispatch("c1", MsgAction, `{"type":"money_earned","amount":12}`)
	s.dispatch("c1", MsgChatLegacy, `{"content":"land ho"}`)

	p, err := s.cache.Get("guest_c1")
	s.Require().NoError(err)
	s.Equal(int64(12), p.Money)
	ev, ok := s.publisher.last(model.EventChatMessage)
	s.Require().True(ok)
	s.Equal("land ho", ev.payload.(*model.ChatMessage).Content)
}

func (s *ControllerSuite) TestDispatchIgnoresMalformedAndUnknown() {
	s.dispatch("c1", MsgJoin, `{}`)
	s.publisher.reset()

	s.dispatch("c1", MsgStateUpdate, `{"position":"north"}`)
	s.dispatch("c1", "teleport", `{}`)
	s.dispatch("c2", MsgAction, `{"type":"fish_caught"}`)

	s.Zero(s.publisher.count())
}

func (s *ControllerSuite) TestDispatchQueries() {
	s.dispatch("c1", MsgJoin, `{}`)
	s.publisher.reset()

	s.dispatch("c1", MsgGetPlayers, "")
	s.dispatch("c1", MsgGetLeaderboard, "")
	s.dispatch("c1", MsgGetMessages, `{"type":"global","limit":5}`)
	s.dispatch("c1", MsgGetPlayerStats, `{}`)

	s.Equal([]model.EventType{
		model.EventAllPlayers,
		model.EventLeaderboard,
		model.EventChatHistory,
		model.EventPlayerStats,
	}, s.publisher.typesFor("c1"))
}

func (s *ControllerSuite) TestDispatchRename() {
	s.dispatch("c1", MsgJoin, `{}`)
	s.dispatch("c1", MsgRename, `{"name":"Starbuck"}`)

	p, err := s.cache.Get("guest_c1")
	s.Require().NoError(err)
	s.Equal("Starbuck", p.Name)
}

func (s *ControllerSuite) TestHandleDisconnect() {
	d := NewDispatcher(s.controller, testutil.NopLogger())
	d.HandleMessage(s.ctx, "c1", MsgJoin, nil)

	d.HandleDisconnect(s.ctx, "c1")

	s.False(s.registry.IsActive("guest_c1"))
	_, ok := s.publisher.last(model.EventPlayerDisconnected)
	s.True(ok)
}
