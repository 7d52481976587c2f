package server

import (
	"context"
	"log"
	"sync"
	"time"

	"flatmate/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per profile
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384
)

// Hub maps profileID -> set of Clients. Events are pushed per identity: the
// server only delivers events relevant to the subscribed profile.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*Client]struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "chat hub" }

// Register a connection for a given profileID. Returns the Client or error if limits exceeded.
func (h *Hub) Register(profileID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, errServerConnLimit
	}

	m, ok := h.conns[profileID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[profileID] = m
	}
	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, errUserConnLimit
	}

	client := NewClient(h, conn, profileID)
	m[client] = struct{}{}
	h.totalConns++
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	return client, nil
}

// UnregisterClient removes a client from the hub.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.ProfileID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.ProfileID)
		}
	}
	h.mu.Unlock()

	if removed {
		observability.WebSocketConnectionsTotal.Dec()
	}
}

// dropNotice tells a lagging client its event stream has a gap and the
// snapshot must be re-fetched.
var dropNotice = []byte(`{"type":"error","payload":{"message":"events dropped, re-fetch snapshot"}}`)

// Broadcast queues message on every connection for profileID. A connection
// that cannot keep up loses the event and gets a drop notice instead; a
// connection that is already closing is skipped.
func (h *Hub) Broadcast(profileID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[profileID] {
		switch c.deliver(message) {
		case nil:
		case errClientGone:
			observability.WebSocketBackpressureDrops.WithLabelValues(h.Name(), "closed").Inc()
		default:
			observability.WebSocketBackpressureDrops.WithLabelValues(h.Name(), "full").Inc()
			log.Printf("profile %s (%s): send buffer full, dropped event", c.ProfileID, h.Name())
			_ = c.deliver(dropNotice)
		}
	}
}

// IsOnline reports whether a profile has at least one active connection.
func (h *Hub) IsOnline(profileID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.conns[profileID]
	return ok && len(clients) > 0
}

// Shutdown gracefully closes all websocket connections.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for profileID, clients := range h.conns {
		for client := range clients {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				log.Printf("failed to write close message for profile %s: %v", profileID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for profile %s: %v", profileID, err)
			}
		}
	}
	h.conns = make(map[string]map[*Client]struct{})
	h.totalConns = 0
	return nil
}
