// Package models contains data structures for the application's domain models.
package models

import (
	"fmt"
	"time"
)

// Role identifies a participant's side in a conversation. The landlord is the
// listing-side participant, the tenant the seeker-side. Unread and sender
// semantics are keyed by role, not by raw user identity.
type Role string

const (
	RoleTenant   Role = "tenant"
	RoleLandlord Role = "landlord"
)

// ParseRole validates a wire-level role tag. Unknown tags are rejected rather
// than probed for shape.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTenant:
		return RoleTenant, nil
	case RoleLandlord:
		return RoleLandlord, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Opposite returns the counterpart role.
func (r Role) Opposite() Role {
	if r == RoleTenant {
		return RoleLandlord
	}
	return RoleTenant
}

// Valid reports whether the role carries one of the two known tags.
func (r Role) Valid() bool {
	return r == RoleTenant || r == RoleLandlord
}

// Status is the lifecycle state of a conversation.
type Status string

const (
	// StatusNew means the conversation entered the store with no messages.
	StatusNew Status = "new"
	// StatusActive means at least one message has been exchanged.
	StatusActive Status = "active"
	// StatusInactive is the terminal archived state.
	StatusInactive Status = "inactive"
)

// Valid reports whether the status is one of the three known states.
func (s Status) Valid() bool {
	return s == StatusNew || s == StatusActive || s == StatusInactive
}

// Delivery is the client-only delivery sub-state of an optimistic message.
// It is never sent to or echoed by the server.
type Delivery string

const (
	// DeliveryNone marks a server-sourced message.
	DeliveryNone Delivery = ""
	// DeliveryPending marks an optimistic message awaiting the server round trip.
	DeliveryPending Delivery = "pending"
	// DeliverySent marks an optimistic message the server accepted; the next
	// push carrying the canonical message list supersedes it.
	DeliverySent Delivery = "sent"
	// DeliveryFailed marks an optimistic message whose send failed. It stays
	// visible and distinguishable until the user resends or the next full
	// replace discards it.
	DeliveryFailed Delivery = "failed"
)

// Message represents one entry in a conversation's ordered history.
type Message struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"not null;index" json:"conversation_id"`
	Content        string    `gorm:"type:text" json:"content"`
	Sender         Role      `gorm:"not null" json:"sender"`
	Timestamp      time.Time `json:"timestamp"`
	Unread         bool      `gorm:"default:true" json:"unread"`
	// DocumentURL, when set, means Content carries a document-type tag used
	// for display instead of message text.
	DocumentURL string   `json:"document_url,omitempty"`
	Delivery    Delivery `gorm:"-" json:"-"`
}

// PartnerDisplay is the lazily-fetched display info for a conversation's
// counterpart. Attached client-side, fetched at most once per conversation.
type PartnerDisplay struct {
	Title string `json:"title"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Conversation represents the persistent thread linking one listing-side and
// one seeker-side participant over a listing.
type Conversation struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	TenantID   string    `gorm:"not null;index" json:"tenant_id"`
	LandlordID string    `gorm:"not null;index" json:"landlord_id"`
	ListingID  string    `gorm:"index" json:"listing_id"`
	Status     Status    `gorm:"default:'new'" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	// Messages are in insertion order, which is chronological order. The
	// client only ever appends; the server may replace the whole list.
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages"`
	// Partner is a client-side cache and never persisted or pushed.
	Partner *PartnerDisplay `gorm:"-" json:"partner,omitempty"`
}

// LastMessage returns the newest message, or nil for an empty conversation.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// ParticipantID returns the profile reference for the given role.
func (c *Conversation) ParticipantID(role Role) string {
	if role == RoleTenant {
		return c.TenantID
	}
	return c.LandlordID
}

// UnreadFor counts messages still unread from the perspective of role, i.e.
// unread messages sent by the opposite role.
func (c *Conversation) UnreadFor(role Role) int {
	n := 0
	for i := range c.Messages {
		if c.Messages[i].Unread && c.Messages[i].Sender == role.Opposite() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers never alias store-internal state.
func (c *Conversation) Clone() Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	if c.Partner != nil {
		p := *c.Partner
		out.Partner = &p
	}
	return out
}

// Validate checks the shape of a conversation received from the wire before
// it is merged. Malformed payloads are rejected with a logged warning rather
// than mutating the store.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("conversation without id")
	}
	if !c.Status.Valid() {
		return fmt.Errorf("conversation %s: unknown status %q", c.ID, c.Status)
	}
	if c.TenantID == "" || c.LandlordID == "" {
		return fmt.Errorf("conversation %s: missing participant reference", c.ID)
	}
	for i := range c.Messages {
		m := &c.Messages[i]
		if !m.Sender.Valid() {
			return fmt.Errorf("conversation %s: message %d has unknown sender %q", c.ID, i, m.Sender)
		}
		if m.Content == "" && m.DocumentURL == "" {
			return fmt.Errorf("conversation %s: message %d is empty", c.ID, i)
		}
	}
	return nil
}
