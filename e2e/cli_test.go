package e2e_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/sailsync/internal/api"
	"github.com/mcoot/sailsync/internal/config"
	"github.com/mcoot/sailsync/internal/factory"
)

const adminToken = "e2e-admin"

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(t.TempDir(), "sailctl-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/sailctl")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
	}
}

func (r *cliRunner) run(args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	cmd.Env = append(os.Environ(), "SAILSYNC_ADMIN_TOKEN=")
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// startTestServer runs the full server stack on a free local port
func startTestServer(t *testing.T) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Storage.Type = config.StorageMemory
	cfg.Identity.Provider = config.IdentityNone
	cfg.Admin.TokenHash = string(hash)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	app, err := factory.New(ctx, cfg, logger)
	require.NoError(t, err)
	app.Start(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := api.NewServer(app.Router(), api.ServerConfigFrom(cfg.Server), logger)
	server.OnShutdown(app.Hub.Close)
	go func() {
		if err := server.Serve(ln); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		_ = app.Close()
	})

	return "http://" + ln.Addr().String()
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// sailor is a websocket game client
type sailor struct {
	t  *testing.T
	ws *websocket.Conn
}

func dialSailor(t *testing.T, serverURL string) *sailor {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(serverURL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &sailor{t: t, ws: ws}
}

func (s *sailor) send(msgType string, data any) {
	s.t.Helper()
	require.NoError(s.t, s.ws.WriteJSON(map[string]any{"type": msgType, "data": data}))
}

// waitFor reads events until one of the given type arrives
func (s *sailor) waitFor(eventType string) json.RawMessage {
	s.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(s.t, s.ws.SetReadDeadline(deadline))
		var env envelope
		require.NoError(s.t, s.ws.ReadJSON(&env), "waiting for %s", eventType)
		if env.Type == eventType {
			return env.Data
		}
	}
}

// Response types for JSON parsing
type playerResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	FishCount int64  `json:"fishCount"`
}

type playersResponse struct {
	Players []playerResponse `json:"players"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

type leaderboardResponse struct {
	FishCount []struct {
		Name  string `json:"name"`
		Value int64  `json:"value"`
	} `json:"fishCount"`
}

type islandResponse struct {
	ID     string  `json:"id"`
	Radius float64 `json:"radius"`
	Type   string  `json:"type"`
}

type messagesResponse struct {
	Messages []struct {
		SenderName string `json:"senderName"`
		Content    string `json:"content"`
	} `json:"messages"`
}

// Tests

func TestCLI_HealthCheck(t *testing.T) {
	serverURL := startTestServer(t)
	cli := newCLIRunner(t, serverURL)

	output, err := cli.run("health")
	require.NoError(t, err, "output: %s", output)

	var resp healthResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Sessions)
}

func TestCLI_ObservesLiveSessions(t *testing.T) {
	serverURL := startTestServer(t)
	cli := newCLIRunner(t, serverURL)

	alice := dialSailor(t, serverURL)
	alice.send("join", map[string]any{"name": "Alice", "position": map[string]float64{"x": 1, "y": 0, "z": 2}})
	alice.waitFor("leaderboard_update")

	alice.send("player_action", map[string]any{"type": "fish_caught"})
	alice.waitFor("leaderboard_update")
	alice.send("chat_message", map[string]any{"content": "land ho"})
	alice.waitFor("chat_message")

	output, err := cli.run("players")
	require.NoError(t, err, "output: %s", output)
	var players playersResponse
	require.NoError(t, json.Unmarshal([]byte(output), &players))
	require.Len(t, players.Players, 1)
	assert.Equal(t, "Alice", players.Players[0].Name)
	assert.True(t, strings.HasPrefix(players.Players[0].ID, "guest_"))

	output, err = cli.run("player", players.Players[0].ID)
	require.NoError(t, err, "output: %s", output)
	var player playerResponse
	require.NoError(t, json.Unmarshal([]byte(output), &player))
	assert.Equal(t, int64(1), player.FishCount)

	output, err = cli.run("leaderboard")
	require.NoError(t, err, "output: %s", output)
	var board leaderboardResponse
	require.NoError(t, json.Unmarshal([]byte(output), &board))
	require.NotEmpty(t, board.FishCount)
	assert.Equal(t, "Alice", board.FishCount[0].Name)
	assert.Equal(t, int64(1), board.FishCount[0].Value)

	output, err = cli.run("messages")
	require.NoError(t, err, "output: %s", output)
	var messages messagesResponse
	require.NoError(t, json.Unmarshal([]byte(output), &messages))
	require.Len(t, messages.Messages, 1)
	assert.Equal(t, "Alice", messages.Messages[0].SenderName)
	assert.Equal(t, "land ho", messages.Messages[0].Content)
}

func TestCLI_IslandCreateBroadcasts(t *testing.T) {
	serverURL := startTestServer(t)
	cli := newCLIRunner(t, serverURL)

	bob := dialSailor(t, serverURL)
	bob.send("join", map[string]any{"name": "Bob"})
	bob.waitFor("leaderboard_update")

	// Without the admin token the route is refused
	output, err := cli.run("island", "create", "--x", "5")
	require.Error(t, err, "output: %s", output)
	assert.Contains(t, output, "UNAUTHORIZED")

	output, err = cli.run("--admin-token", adminToken, "island", "create", "--x", "5", "--z", "9", "--radius", "20")
	require.NoError(t, err, "output: %s", output)
	var island islandResponse
	require.NoError(t, json.Unmarshal([]byte(output), &island))
	assert.Equal(t, 20.0, island.Radius)
	assert.Equal(t, "default", island.Type)

	var announced islandResponse
	require.NoError(t, json.Unmarshal(bob.waitFor("island_created"), &announced))
	assert.Equal(t, island.ID, announced.ID)
}

func TestCLI_SessionEndsOnDisconnect(t *testing.T) {
	serverURL := startTestServer(t)
	cli := newCLIRunner(t, serverURL)

	carol := dialSailor(t, serverURL)
	carol.send("join", map[string]any{"name": "Carol"})
	carol.waitFor("leaderboard_update")
	require.NoError(t, carol.ws.Close())

	require.Eventually(t, func() bool {
		output, err := cli.run("health")
		if err != nil {
			return false
		}
		var resp healthResponse
		return json.Unmarshal([]byte(output), &resp) == nil && resp.Sessions == 0
	}, 5*time.Second, 100*time.Millisecond)

	output, err := cli.run("players")
	require.NoError(t, err, "output: %s", output)
	var players playersResponse
	require.NoError(t, json.Unmarshal([]byte(output), &players))
	assert.Empty(t, players.Players)
}
