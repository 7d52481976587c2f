package server

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/websocket/v2"
)

var (
	errServerConnLimit = errors.New("server connection limit reached")
	errUserConnLimit   = errors.New("user connection limit reached")

	errClientGone    = errors.New("send channel closed")
	errClientLagging = errors.New("send buffer full")
)

// Client is one push connection for a profile. The hub queues events on Send
// and Run shuttles them to the peer until the connection drops.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	ProfileID string

	// IncomingHandler receives every frame the peer sends.
	IncomingHandler func(*Client, []byte)
}

func NewClient(hub *Hub, conn *websocket.Conn, profileID string) *Client {
	return &Client{
		Hub:       hub,
		Conn:      conn,
		ProfileID: profileID,
		Send:      make(chan []byte, 256),
	}
}

// Run drives the connection. It blocks until the peer disconnects, then
// unregisters the client from the hub.
func (c *Client) Run() {
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("push read error (profile %s): %v", c.ProfileID, err)
			}
			return
		}
		if c.IncomingHandler != nil {
			c.IncomingHandler(c, frame)
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, event); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver queues an event without blocking. It reports errClientLagging when
// the buffer is full and errClientGone when the channel is already closed.
func (c *Client) deliver(event []byte) (err error) {
	defer func() {
		if recover() != nil {
			err = errClientGone
		}
	}()
	select {
	case c.Send <- event:
		return nil
	default:
		return errClientLagging
	}
}
