package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/sailsync/internal/api/apierr"
	"github.com/mcoot/sailsync/internal/api/response"
	"github.com/mcoot/sailsync/internal/factory"
	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/services/identity"
	"github.com/mcoot/sailsync/internal/services/presence"
)

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T, adminTokenHash string) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	app.Config.Admin.TokenHash = adminTokenHash
	app.Start(t.Context())
	t.Cleanup(func() { _ = app.Close() })

	return &testServer{
		handler: app.Router(),
		app:     app,
	}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// join attaches a session directly, bypassing the websocket transport
func (ts *testServer) join(t *testing.T, conn model.ConnectionID, cred identity.Credential) *model.Player {
	t.Helper()
	p, err := ts.app.Controller.Join(context.Background(), conn, presence.JoinRequest{Credential: cred})
	require.NoError(t, err)
	return p
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, "")
	ts.join(t, "c1", identity.Credential{})

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	health := decode[response.Health](t, rr)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Sessions)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestListActivePlayers(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.request(http.MethodGet, "/api/v1/players", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"players":[]}`, rr.Body.String())

	ts.join(t, "c1", identity.Credential{})
	ts.join(t, "c2", identity.Credential{Token: factory.TestToken, ClaimedID: factory.TestSubject})
	ts.app.Controller.Disconnect(context.Background(), "c1")

	rr = ts.request(http.MethodGet, "/api/v1/players", nil, "")
	players := decode[response.Players](t, rr)
	require.Len(t, players.Players, 1)
	assert.Equal(t, model.PlayerID("firebase_uid42"), players.Players[0].ID)
}

func TestGetPlayer(t *testing.T) {
	ts := newTestServer(t, "")
	ts.join(t, "c1", identity.Credential{})

	rr := ts.request(http.MethodGet, "/api/v1/players/guest_c1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	player := decode[model.Player](t, rr)
	assert.Equal(t, "Sailor c1", player.Name)
	assert.True(t, player.Active)

	rr = ts.request(http.MethodGet, "/api/v1/players/nobody", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	errResp := decode[apierr.ErrorResponse](t, rr)
	assert.Equal(t, apierr.CodePlayerNotFound, errResp.Error.Code)
}

func TestPlayerStats(t *testing.T) {
	ts := newTestServer(t, "")
	ts.join(t, "c1", identity.Credential{})
	_, err := ts.app.Controller.Action(context.Background(), "c1", model.ActionMonsterKilled, 0)
	require.NoError(t, err)

	rr := ts.request(http.MethodGet, "/api/v1/players/guest_c1/stats", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"guest_c1","fishCount":0,"monsterKills":1,"money":0}`, rr.Body.String())
}

func TestLeaderboard(t *testing.T) {
	ts := newTestServer(t, "")
	ts.join(t, "c1", identity.Credential{})
	ts.join(t, "c2", identity.Credential{})
	_, err := ts.app.Controller.Action(context.Background(), "c2", model.ActionMoneyEarned, 30)
	require.NoError(t, err)

	rr := ts.request(http.MethodGet, "/api/v1/leaderboard?limit=1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	board := decode[model.Leaderboard](t, rr)
	require.Len(t, board.Money, 1)
	assert.Equal(t, "Sailor c2", board.Money[0].Name)
	assert.Equal(t, int64(30), board.Money[0].Value)
	assert.Len(t, board.FishCount, 1)

	rr = ts.request(http.MethodGet, "/api/v1/leaderboard?limit=zero", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMessages(t *testing.T) {
	ts := newTestServer(t, "")
	ts.join(t, "c1", identity.Credential{})
	ctx := context.Background()
	_, err := ts.app.Controller.Chat(ctx, "c1", "first", "")
	require.NoError(t, err)
	ts.app.MockClock.Advance(time.Second)
	_, err = ts.app.Controller.Chat(ctx, "c1", "crew", "team")
	require.NoError(t, err)

	rr := ts.request(http.MethodGet, "/api/v1/messages", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	messages := decode[response.Messages](t, rr)
	assert.Equal(t, model.MessageTypeGlobal, messages.Type)
	require.Len(t, messages.Messages, 1)
	assert.Equal(t, "first", messages.Messages[0].Content)

	rr = ts.request(http.MethodGet, "/api/v1/messages?type=team", nil, "")
	messages = decode[response.Messages](t, rr)
	require.Len(t, messages.Messages, 1)
	assert.Equal(t, "crew", messages.Messages[0].Content)
}

func TestMessagesLimitBounds(t *testing.T) {
	ts := newTestServer(t, "")

	for _, q := range []string{"0", "101", "-3", "lots"} {
		rr := ts.request(http.MethodGet, "/api/v1/messages?limit="+q, nil, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", q)
	}
	rr := ts.request(http.MethodGet, "/api/v1/messages?limit=100", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateIslandOpenWithoutTokenHash(t *testing.T) {
	ts := newTestServer(t, "")
	ts.app.MockIDs.Queue("reef")

	body := map[string]any{"position": map[string]float64{"x": 120, "y": 0, "z": -40}}
	rr := ts.request(http.MethodPost, "/api/v1/admin/islands", body, "")
	require.Equal(t, http.StatusCreated, rr.Code)

	island := decode[model.Island](t, rr)
	assert.Equal(t, model.IslandID("island_reef"), island.ID)
	assert.Equal(t, 50.0, island.Radius)
	assert.Equal(t, "default", island.Type)

	rr = ts.request(http.MethodGet, "/api/v1/islands", nil, "")
	islands := decode[response.Islands](t, rr)
	require.Len(t, islands.Islands, 1)
	assert.Equal(t, island.ID, islands.Islands[0].ID)
}

func TestGetIsland(t *testing.T) {
	ts := newTestServer(t, "")
	ts.app.MockIDs.Queue("reef")
	body := map[string]any{"position": map[string]float64{"x": 5}, "type": "volcano"}
	require.Equal(t, http.StatusCreated, ts.request(http.MethodPost, "/api/v1/admin/islands", body, "").Code)

	rr := ts.request(http.MethodGet, "/api/v1/islands/island_reef", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	island := decode[model.Island](t, rr)
	assert.Equal(t, "volcano", island.Type)
	assert.Equal(t, 5.0, island.Position.X)

	rr = ts.request(http.MethodGet, "/api/v1/islands/island_atlantis", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeIslandNotFound, decode[apierr.ErrorResponse](t, rr).Error.Code)
}

func TestCreateIslandValidation(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.request(http.MethodPost, "/api/v1/admin/islands", map[string]any{"type": "volcano"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidIsland, decode[apierr.ErrorResponse](t, rr).Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/islands", bytes.NewBufferString("{"))
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateIslandRequiresAdminToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("harbourmaster"), bcrypt.MinCost)
	require.NoError(t, err)
	ts := newTestServer(t, string(hash))
	body := map[string]any{"position": map[string]float64{"x": 1}}

	rr := ts.request(http.MethodPost, "/api/v1/admin/islands", body, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/admin/islands", body, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/admin/islands", body, "harbourmaster")
	assert.Equal(t, http.StatusCreated, rr.Code)

	// Reads stay open
	rr = ts.request(http.MethodGet, "/api/v1/islands", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.request(http.MethodGet, "/api/v1/lobbies", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
