package realtime

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mcoot/sailsync/internal/dependencies/idgen"
	"github.com/mcoot/sailsync/internal/model"
)

// Time between SSE keepalive comments
const keepalivePeriod = 30 * time.Second

// SpectatorServer streams broadcast events over server-sent events. Spectators
// are read-only and never receive events addressed to a single connection.
type SpectatorServer struct {
	hub    *Hub
	ids    idgen.Generator
	logger *slog.Logger
}

// NewSpectatorServer creates an SSE endpoint backed by hub
func NewSpectatorServer(hub *Hub, ids idgen.Generator, logger *slog.Logger) *SpectatorServer {
	return &SpectatorServer{
		hub:    hub,
		ids:    ids,
		logger: logger.With(slog.String("component", "sse")),
	}
}

func (s *SpectatorServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	client := s.hub.NewClient(model.ConnectionID("sse-"+s.ids.NewID()), KindSpectator)
	if !s.hub.Register(client) {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.hub.Unregister(client)

	// The stream outlives the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	_, _ = w.Write([]byte("event: connected\ndata: {\"status\":\"connected\"}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(keepalivePeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-client.send:
			if !ok {
				return
			}
			if _, err := w.Write(formatSSEMessage(env)); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// formatSSEMessage frames an envelope as an SSE event. Every data line gets
// its own "data: " prefix.
func formatSSEMessage(env Envelope) []byte {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(env.Type)
	b.WriteByte('\n')
	data := string(env.Data)
	if len(env.Data) == 0 {
		data = "null"
	}
	for _, line := range splitLines(data) {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// splitLines splits on \n, dropping \r and a trailing empty line
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
