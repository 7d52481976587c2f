// Package realtime owns the single push connection per authenticated
// identity and fans its events out to registered handlers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"flatmate/internal/observability"

	"github.com/gorilla/websocket"
)

// Event names on the push channel. Connect and disconnect are synthesized
// locally from the transport lifecycle.
const (
	EventCreated    = "created"
	EventUpdated    = "updated"
	EventError      = "error"
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from the server.
	maxMessageSize = 1 << 20
)

// Event is the JSON envelope every push frame carries.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler receives events for one channel, in arrival order, never
// concurrently with other handlers on the same connection.
type Handler func(Event)

// Dialer abstracts the websocket dial so tests can intercept it.
type Dialer func(ctx context.Context, url string, header http.Header) (*websocket.Conn, *http.Response, error)

type registration struct {
	handler Handler
}

// Manager owns exactly one live push connection keyed by the authenticated
// identity. Acquire and Release are the only mutation points; handlers fire
// from a single read pump, so they are serialized by construction.
type Manager struct {
	mu       sync.Mutex
	pushURL  string
	dial     Dialer
	conn     *websocket.Conn
	userID   string
	done     chan struct{}
	handlers map[string][]*registration
	log      *observability.WSLogger
}

// NewManager returns a Manager dialing the given push URL.
func NewManager(pushURL string) *Manager {
	return &Manager{
		pushURL: pushURL,
		dial: func(ctx context.Context, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
			return websocket.DefaultDialer.DialContext(ctx, url, header)
		},
		handlers: make(map[string][]*registration),
		log:      observability.NewWSLogger("push"),
	}
}

// SetDialer replaces the dial function. Intended for tests.
func (m *Manager) SetDialer(d Dialer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dial = d
}

// On registers a handler for a named event channel and returns its
// deregistration function. Unregistering on view unmount keeps handlers from
// updating a store no longer observed.
func (m *Manager) On(event string, h Handler) func() {
	reg := &registration{handler: h}
	m.mu.Lock()
	m.handlers[event] = append(m.handlers[event], reg)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		regs := m.handlers[event]
		for i, r := range regs {
			if r == reg {
				m.handlers[event] = append(regs[:i], regs[i+1:]...)
				break
			}
		}
	}
}

// UserID returns the identity the live connection belongs to, or empty.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Acquire ensures a live connection for the given identity. The existing
// connection is reused when the identity matches; otherwise the previous one
// is closed and a new one is dialed carrying the auth token. Every successful
// connect issues the subscription handshake exactly once.
func (m *Manager) Acquire(ctx context.Context, userID, token string) error {
	m.mu.Lock()
	if m.conn != nil && m.userID == userID {
		m.mu.Unlock()
		return nil
	}
	m.releaseLocked("identity switch")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := m.dial(ctx, m.pushURL, header)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("dial push channel: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	sub := map[string]interface{}{
		"type":    "subscribe",
		"payload": map[string]string{"user_id": userID},
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		m.mu.Unlock()
		return fmt.Errorf("subscribe handshake: %w", err)
	}

	m.conn = conn
	m.userID = userID
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	observability.ConnectionsTotal.WithLabelValues("connect").Inc()
	m.log.LogConnect(ctx, userID)
	m.dispatch(Event{Type: EventConnect})
	go m.readPump(conn, done, userID)
	return nil
}

// Release closes the connection and clears identity. Safe to call when no
// connection is live.
func (m *Manager) Release() {
	m.mu.Lock()
	m.releaseLocked("release")
	m.mu.Unlock()
}

func (m *Manager) releaseLocked(reason string) {
	if m.conn == nil {
		return
	}
	close(m.done)
	_ = m.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = m.conn.Close()
	m.log.LogDisconnect(context.Background(), m.userID, reason)
	observability.ConnectionsTotal.WithLabelValues("release").Inc()
	m.conn = nil
	m.userID = ""
	m.done = nil
}

// readPump is the single worker for one connection: it delivers events in
// server-send order and never runs handlers concurrently.
func (m *Manager) readPump(conn *websocket.Conn, done chan struct{}, userID string) {
	defer m.dispatch(Event{Type: EventDisconnect})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Deliberate release; not a transport error.
			default:
				// Drop the dead connection so the next Acquire redials
				// and re-issues the subscription handshake.
				m.mu.Lock()
				if m.conn == conn {
					m.conn = nil
					m.done = nil
				}
				m.mu.Unlock()
				m.log.LogError(context.Background(), userID, err, "read")
				payload, _ := json.Marshal(map[string]string{"message": err.Error()})
				m.dispatch(Event{Type: EventError, Payload: payload})
			}
			return
		}

		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			m.log.LogError(context.Background(), userID, err, "decode")
			observability.PushEventsSkipped.WithLabelValues("bad_envelope").Inc()
			continue
		}
		if evt.Type == "" {
			observability.PushEventsSkipped.WithLabelValues("missing_type").Inc()
			continue
		}
		observability.PushEventsTotal.WithLabelValues(evt.Type).Inc()
		m.dispatch(evt)
	}
}

func (m *Manager) dispatch(evt Event) {
	m.mu.Lock()
	regs := m.handlers[evt.Type]
	snapshot := make([]*registration, len(regs))
	copy(snapshot, regs)
	m.mu.Unlock()

	for _, reg := range snapshot {
		reg.handler(evt)
	}
}
