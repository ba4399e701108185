package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/sailsync/internal/dependencies/mocks"
	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/testutil"
)

// readEvent reads one SSE frame, skipping comments
func readEvent(t *testing.T, reader *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && event != "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data += strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestSpectatorServer_StreamsBroadcasts(t *testing.T) {
	hub := startHub(t, 16)
	ids := mocks.NewMockIDGenerator()
	ids.Queue("watcher")
	server := httptest.NewServer(NewSpectatorServer(hub, ids, testutil.NopLogger()))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	reader := bufio.NewReader(resp.Body)
	event, data := readEvent(t, reader)
	assert.Equal(t, "connected", event)
	assert.Equal(t, `{"status":"connected"}`, data)

	require.True(t, hub.Connected("sse-watcher"))
	require.NoError(t, hub.Publish(ctx, Only("someone-else"), model.EventPlayerStats, model.PlayerStats{ID: "x"}))
	require.NoError(t, hub.Publish(ctx, All(), model.EventIslandCreated, model.Island{ID: "i1", Radius: 50}))

	event, data = readEvent(t, reader)
	assert.Equal(t, "island_created", event)
	assert.Contains(t, data, `"id":"i1"`)
}
