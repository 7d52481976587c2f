// Package chatsync keeps the client-side conversation state consistent with
// the server: it merges REST snapshots with push deltas, maintains the unread
// count, and drives optimistic sends and archive transitions through a single
// merge path.
package chatsync

import (
	"sort"
	"time"

	"flatmate/internal/models"
)

// statusPriority orders conversations for list display. New conversations
// come first, archived ones sink to the bottom.
func statusPriority(s models.Status) int {
	switch s {
	case models.StatusNew:
		return 0
	case models.StatusActive:
		return 1
	case models.StatusInactive:
		return 2
	}
	return 1
}

// lastActivity is the sort instant for recency. Conversations with no
// messages compare as most recent.
func lastActivity(c *models.Conversation) time.Time {
	last := c.LastMessage()
	if last == nil {
		return time.Unix(1<<62, 0)
	}
	return last.Timestamp
}

// Rank returns the conversations ordered for display: by status priority,
// then by descending timestamp of the most recent message. The sort is stable
// so identical input always yields identical output.
func Rank(conversations []models.Conversation) []models.Conversation {
	out := make([]models.Conversation, len(conversations))
	copy(out, conversations)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := statusPriority(out[i].Status), statusPriority(out[j].Status)
		if pi != pj {
			return pi < pj
		}
		return lastActivity(&out[i]).After(lastActivity(&out[j]))
	})
	return out
}
