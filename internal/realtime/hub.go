package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/sailsync/internal/model"
)

// ErrHubClosed is returned when publishing to a stopped hub
var ErrHubClosed = errors.New("hub is closed")

// Publisher delivers events to a selection of connected clients
type Publisher interface {
	Publish(ctx context.Context, to Recipients, eventType model.EventType, payload any) error
}

// ClientKind distinguishes interactive sessions from read-only spectators
type ClientKind string

const (
	KindSocket    ClientKind = "websocket"
	KindSpectator ClientKind = "sse"
)

// Client is one connected transport registered with the hub
type Client struct {
	id          model.ConnectionID
	kind        ClientKind
	send        chan Envelope
	connectedAt time.Time
}

// ID returns the connection id
func (c *Client) ID() model.ConnectionID {
	return c.id
}

type delivery struct {
	env Envelope
	to  Recipients
}

// Hub fans events out to registered clients. A single Run loop owns the
// client set, so deliveries reach each client in publish order.
type Hub struct {
	clients    map[model.ConnectionID]*Client
	mu         sync.RWMutex
	bufferSize int
	logger     *slog.Logger

	// Channels for managing clients
	register   chan *Client
	unregister chan *Client
	publish    chan delivery
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub creates a hub whose clients each buffer up to bufferSize events
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		clients:    make(map[model.ConnectionID]*Client),
		bufferSize: bufferSize,
		logger:     logger.With(slog.String("component", "realtime")),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan delivery, 256),
		done:       make(chan struct{}),
	}
}

// NewClient creates an unregistered client with the hub's buffer size
func (h *Hub) NewClient(id model.ConnectionID, kind ClientKind) *Client {
	return &Client{
		id:          id,
		kind:        kind,
		send:        make(chan Envelope, h.bufferSize),
		connectedAt: time.Now(),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	h.logger.Info("hub started")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client registered",
				slog.String("connection_id", string(client.id)),
				slog.String("kind", string(client.kind)),
				slog.Int("total_clients", clientCount))

		case client := <-h.unregister:
			if h.remove(client) {
				h.logger.Info("client unregistered",
					slog.String("connection_id", string(client.id)),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			}

		case d := <-h.publish:
			h.deliver(d)

		case <-h.done:
			h.mu.Lock()
			clientCount := len(h.clients)
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped", slog.Int("disconnected_clients", clientCount))
			return
		}
	}
}

// deliver hands the envelope to every selected client. A client that cannot
// keep up is dropped; its transport closes and its disconnect follows.
func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	var slow []*Client
	sent := 0
	for id, client := range h.clients {
		if !d.to.Includes(id) {
			continue
		}
		select {
		case client.send <- d.env:
			sent++
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		if h.remove(client) {
			h.logger.Warn("client dropped - send buffer full",
				slog.String("connection_id", string(client.id)),
				slog.String("event", d.env.Type))
		}
	}
	h.logger.Debug("event delivered",
		slog.String("event", d.env.Type),
		slog.String("recipients", d.to.String()),
		slog.Int("sent", sent))
}

func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[client.id]; ok && current == client {
		delete(h.clients, client.id)
		close(client.send)
		return true
	}
	return false
}

// Register adds a client to the hub. It returns false if the hub is stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish encodes payload and queues it for the selected clients. It blocks
// while the hub's queue is full, until ctx ends or the hub stops.
func (h *Hub) Publish(ctx context.Context, to Recipients, eventType model.EventType, payload any) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	select {
	case h.publish <- delivery{env: env, to: to}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
}

// Close shuts down the hub and releases every client
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Connected reports whether a client with the id is registered
func (h *Hub) Connected(id model.ConnectionID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}
