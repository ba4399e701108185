package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/sailsync/internal/dependencies/idgen"
	"github.com/mcoot/sailsync/internal/model"
)

// WebSocket settings
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

// MessageHandler receives inbound frames and connection closure. Messages
// from one connection are delivered sequentially, in the order received.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn model.ConnectionID, msgType string, data json.RawMessage)
	HandleDisconnect(ctx context.Context, conn model.ConnectionID)
}

// SocketServer upgrades HTTP requests to websocket sessions. Each session
// runs until its read loop has handled the disconnect; Drain waits for that.
type SocketServer struct {
	hub      *Hub
	handler  MessageHandler
	ids      idgen.Generator
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	draining bool
	sessions sync.WaitGroup
}

// NewSocketServer creates a websocket endpoint backed by hub
func NewSocketServer(hub *Hub, handler MessageHandler, ids idgen.Generator, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		hub:     hub,
		handler: handler,
		ids:     ids,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "websocket")),
	}
}

func (s *SocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := s.hub.NewClient(model.ConnectionID(s.ids.NewID()), KindSocket)
	if !s.hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}

	go s.writePump(conn, client)
	s.readPump(conn, client)
}

// Drain refuses new sessions and waits until every open session has handled
// its disconnect. Sessions end once the hub closes their send channels.
func (s *SocketServer) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SocketServer) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.sessions.Add(1)
	return true
}

// readPump dispatches frames until the connection fails, then tears the
// session down. The client leaves the hub before the disconnect is handled.
func (s *SocketServer) readPump(conn *websocket.Conn, client *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.hub.Unregister(client)
		_ = conn.Close()
		s.handler.HandleDisconnect(context.Background(), client.id)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("websocket closed unexpectedly",
					slog.String("connection_id", string(client.id)),
					slog.String("error", err.Error()))
			}
			return
		}

		var msg Envelope
		if err := json.Unmarshal(payload, &msg); err != nil || msg.Type == "" {
			s.logger.Debug("discarding malformed message",
				slog.String("connection_id", string(client.id)))
			continue
		}
		s.handler.HandleMessage(ctx, client.id, msg.Type, msg.Data)
	}
}

// writePump forwards hub deliveries and keeps the connection alive
func (s *SocketServer) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case env, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
