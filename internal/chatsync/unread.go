package chatsync

import (
	"sync"

	"flatmate/internal/models"
	"flatmate/internal/observability"
)

// UnreadCounter maintains the session-scoped unread count, independent of
// which conversation is open. It never goes negative.
type UnreadCounter struct {
	mu    sync.Mutex
	role  models.Role
	count int
}

// NewUnreadCounter returns a counter for the given reader role.
func NewUnreadCounter(role models.Role) *UnreadCounter {
	return &UnreadCounter{role: role}
}

// Init sets the counter from the server-reported value, once per login.
func (u *UnreadCounter) Init(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if n < 0 {
		n = 0
	}
	u.count = n
	observability.UnreadMessages.Set(float64(u.count))
}

// Count returns the current value.
func (u *UnreadCounter) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}

// ApplyPush increments the counter by one when a pushed update carries a
// newest message that is unread and was sent by the opposite role. Returns
// whether an increment happened.
func (u *UnreadCounter) ApplyPush(conv *models.Conversation) bool {
	last := conv.LastMessage()
	if last == nil || !last.Unread || last.Sender != u.role.Opposite() {
		return false
	}
	u.mu.Lock()
	u.count++
	observability.UnreadMessages.Set(float64(u.count))
	u.mu.Unlock()
	return true
}

// ApplyMarkRead decrements the counter by the number of messages a successful
// mark-read transitioned, clamped at zero. Callers must only invoke this
// after the server confirmed the mark-read; a failed request leaves the
// counter untouched so it never diverges below the server's value.
func (u *UnreadCounter) ApplyMarkRead(k int) {
	if k <= 0 {
		return
	}
	u.mu.Lock()
	u.count -= k
	if u.count < 0 {
		u.count = 0
	}
	observability.UnreadMessages.Set(float64(u.count))
	u.mu.Unlock()
}
