package chatsync

import (
	"context"
	"time"

	"flatmate/internal/models"
	"flatmate/internal/observability"

	"github.com/google/uuid"
)

// MessageDispatcher sends outgoing messages: it applies an optimistic local
// update so the sender sees the message before any round trip, issues the
// REST post, and leaves reconciliation to the authoritative push that
// follows. A failed send is marked, never silently stuck.
type MessageDispatcher struct {
	store   *ConversationStore
	backend Backend
	role    models.Role
	log     *observability.SyncLogger

	now   func() time.Time
	newID func() string
}

// NewMessageDispatcher returns a dispatcher sending as the given role.
func NewMessageDispatcher(store *ConversationStore, backend Backend, role models.Role) *MessageDispatcher {
	return &MessageDispatcher{
		store:   store,
		backend: backend,
		role:    role,
		log:     observability.NewSyncLogger("dispatcher"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Send posts a message to a conversation. The returned message carries the
// client-assigned id and timestamp; the server's values win on reconcile.
func (d *MessageDispatcher) Send(ctx context.Context, convID, content, documentURL string) (models.Message, error) {
	if content == "" && documentURL == "" {
		observability.OptimisticSendsTotal.WithLabelValues("rejected").Inc()
		return models.Message{}, models.NewSendRejectedError("message needs content or a document")
	}

	conv, ok := d.store.Get(convID)
	if !ok {
		observability.OptimisticSendsTotal.WithLabelValues("rejected").Inc()
		return models.Message{}, models.NewNotFoundError("conversation", convID)
	}
	if conv.Status == models.StatusInactive {
		observability.OptimisticSendsTotal.WithLabelValues("rejected").Inc()
		return models.Message{}, models.NewForbiddenError("conversation is archived")
	}

	msg := models.Message{
		ID:          d.newID(),
		Content:     content,
		Sender:      d.role,
		Timestamp:   d.now(),
		Unread:      true,
		DocumentURL: documentURL,
		Delivery:    models.DeliveryPending,
	}
	if err := d.store.ApplyOptimistic(convID, msg); err != nil {
		return models.Message{}, err
	}

	// The REST echo is not merged; the push "updated" event carrying the
	// canonical message list supersedes the optimistic entry.
	if _, err := d.backend.PostMessage(ctx, convID, msg); err != nil {
		d.store.MarkDelivery(convID, msg.ID, models.DeliveryFailed)
		observability.OptimisticSendsTotal.WithLabelValues("failed").Inc()
		d.log.LogError(ctx, "send", err)
		msg.Delivery = models.DeliveryFailed
		return msg, err
	}

	d.store.MarkDelivery(convID, msg.ID, models.DeliverySent)
	observability.OptimisticSendsTotal.WithLabelValues("accepted").Inc()
	msg.Delivery = models.DeliverySent
	return msg, nil
}
