package chatsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flatmate/internal/models"
)

func newTestDispatcher(store *ConversationStore, backend Backend) *MessageDispatcher {
	d := NewMessageDispatcher(store, backend, models.RoleTenant)
	d.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	n := 0
	d.newID = func() string {
		n++
		return "msg-" + string(rune('0'+n))
	}
	return d
}

func TestMessageDispatcher_SendOptimisticThenSent(t *testing.T) {
	store := NewConversationStore()
	store.MergePush(models.Conversation{
		ID: "c1", TenantID: "t1", LandlordID: "l1", Status: models.StatusNew,
	})
	backend := &fakeBackend{}
	d := newTestDispatcher(store, backend)

	msg, err := d.Send(context.Background(), "c1", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySent, msg.Delivery)
	assert.Equal(t, models.RoleTenant, msg.Sender)
	assert.True(t, msg.Unread)

	got, _ := store.Get("c1")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, models.DeliverySent, got.Messages[0].Delivery)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, 1, backend.callCount("post"))
}

func TestMessageDispatcher_SendFailureMarksFailedAndKeepsMessageVisible(t *testing.T) {
	store := NewConversationStore()
	store.MergePush(models.Conversation{
		ID: "c1", TenantID: "t1", LandlordID: "l1", Status: models.StatusActive,
	})
	backend := &fakeBackend{err: errors.New("network down")}
	d := newTestDispatcher(store, backend)

	msg, err := d.Send(context.Background(), "c1", "hello", "")
	require.Error(t, err)
	assert.Equal(t, models.DeliveryFailed, msg.Delivery)

	got, _ := store.Get("c1")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, models.DeliveryFailed, got.Messages[0].Delivery)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestMessageDispatcher_SendRejectsEmpty(t *testing.T) {
	store := NewConversationStore()
	store.MergePush(models.Conversation{
		ID: "c1", TenantID: "t1", LandlordID: "l1", Status: models.StatusActive,
	})
	backend := &fakeBackend{}
	d := newTestDispatcher(store, backend)

	_, err := d.Send(context.Background(), "c1", "", "")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "SEND_REJECTED", appErr.Code)
	assert.Equal(t, 0, backend.callCount("post"))

	got, _ := store.Get("c1")
	assert.Empty(t, got.Messages)
}

func TestMessageDispatcher_SendDocumentOnlyIsAllowed(t *testing.T) {
	store := NewConversationStore()
	store.MergePush(models.Conversation{
		ID: "c1", TenantID: "t1", LandlordID: "l1", Status: models.StatusActive,
	})
	d := newTestDispatcher(store, &fakeBackend{})

	msg, err := d.Send(context.Background(), "c1", "", "https://docs.example/lease.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example/lease.pdf", msg.DocumentURL)
}

func TestMessageDispatcher_SendToArchivedConversation(t *testing.T) {
	store := NewConversationStore()
	store.MergePush(models.Conversation{
		ID: "c1", TenantID: "t1", LandlordID: "l1", Status: models.StatusInactive,
	})
	backend := &fakeBackend{}
	d := newTestDispatcher(store, backend)

	_, err := d.Send(context.Background(), "c1", "hello", "")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "FORBIDDEN", appErr.Code)
	assert.Equal(t, 0, backend.callCount("post"))
}

func TestMessageDispatcher_SendToUnknownConversation(t *testing.T) {
	d := newTestDispatcher(NewConversationStore(), &fakeBackend{})

	_, err := d.Send(context.Background(), "nope", "hello", "")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}
