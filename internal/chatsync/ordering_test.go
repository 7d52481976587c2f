package chatsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"flatmate/internal/models"
)

func convWithLastMessage(id string, status models.Status, at time.Time) models.Conversation {
	return models.Conversation{
		ID:         id,
		TenantID:   "t1",
		LandlordID: "l1",
		Status:     status,
		Messages: []models.Message{
			{ID: id + "-m1", Content: "hello", Sender: models.RoleTenant, Timestamp: at},
		},
	}
}

func rankedIDs(convs []models.Conversation) []string {
	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	return ids
}

func TestRank_StatusBeforeRecency(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	input := []models.Conversation{
		convWithLastMessage("archived-recent", models.StatusInactive, base.Add(time.Hour)),
		convWithLastMessage("active-old", models.StatusActive, base),
		{ID: "fresh", TenantID: "t1", LandlordID: "l1", Status: models.StatusNew},
	}

	got := Rank(input)
	assert.Equal(t, []string{"fresh", "active-old", "archived-recent"}, rankedIDs(got))
}

func TestRank_RecencyDescendingWithinStatus(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	input := []models.Conversation{
		convWithLastMessage("a", models.StatusActive, base),
		convWithLastMessage("b", models.StatusActive, base.Add(2*time.Hour)),
		convWithLastMessage("c", models.StatusActive, base.Add(time.Hour)),
	}

	got := Rank(input)
	assert.Equal(t, []string{"b", "c", "a"}, rankedIDs(got))
}

func TestRank_EmptyConversationSortsAsMostRecent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	input := []models.Conversation{
		convWithLastMessage("busy", models.StatusActive, base),
		{ID: "empty", TenantID: "t1", LandlordID: "l1", Status: models.StatusActive},
	}

	got := Rank(input)
	assert.Equal(t, []string{"empty", "busy"}, rankedIDs(got))
}

func TestRank_StableAndNonMutating(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	input := []models.Conversation{
		convWithLastMessage("first", models.StatusActive, at),
		convWithLastMessage("second", models.StatusActive, at),
		convWithLastMessage("newer", models.StatusActive, at.Add(time.Minute)),
	}

	got := Rank(input)
	assert.Equal(t, []string{"newer", "first", "second"}, rankedIDs(got))

	// Input order is untouched.
	assert.Equal(t, []string{"first", "second", "newer"}, rankedIDs(input))

	again := Rank(input)
	assert.Equal(t, rankedIDs(got), rankedIDs(again))
}

func TestStatusPriority_UnknownDefaultsToActive(t *testing.T) {
	assert.Equal(t, statusPriority(models.StatusActive), statusPriority(models.Status("bogus")))
}
