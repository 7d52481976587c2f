package server

import (
	"encoding/json"
	"log"

	"github.com/gofiber/websocket/v2"
)

// handleWebSocket runs one push connection. The connection is scoped to the
// identity carried by its connection-time credential; the subscribe frame the
// client sends is validated against it before any event is delivered.
func (s *Server) handleWebSocket(conn *websocket.Conn) {
	profileID := conn.Locals("profileID").(string)

	client, err := s.hub.Register(profileID, conn)
	if err != nil {
		log.Printf("WebSocket: failed to register profile %s: %v", profileID, err)
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"error","payload":{"message":"`+err.Error()+`"}}`))
		_ = conn.Close()
		return
	}

	client.IncomingHandler = func(c *Client, frame []byte) {
		var evt struct {
			Type    string `json:"type"`
			Payload struct {
				UserID string `json:"user_id"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(frame, &evt); err != nil {
			log.Printf("WebSocket: invalid frame from profile %s", profileID)
			return
		}
		if evt.Type != "subscribe" {
			return
		}
		if evt.Payload.UserID != profileID {
			log.Printf("WebSocket: subscribe identity mismatch for profile %s", profileID)
			_ = c.deliver([]byte(`{"type":"error","payload":{"message":"subscription identity mismatch"}}`))
		}
	}

	client.Run()
}
