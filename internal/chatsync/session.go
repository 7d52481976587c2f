package chatsync

import (
	"context"
	"encoding/json"
	"sync"

	"flatmate/internal/models"
	"flatmate/internal/observability"
	"flatmate/internal/realtime"
)

// PushChannel is the slice of the connection manager the session needs.
type PushChannel interface {
	Acquire(ctx context.Context, userID, token string) error
	Release()
	On(event string, h realtime.Handler) func()
}

// Session binds one authenticated identity to the conversation store, the
// unread counter, and the push channel. Push events, optimistic sends, and
// archive transitions all write into the store through the same merge path,
// so there is a single point of truth.
type Session struct {
	mu      sync.Mutex
	conn    PushChannel
	backend Backend

	store      *ConversationStore
	unread     *UnreadCounter
	dispatcher *MessageDispatcher
	archiver   *Archiver

	userID string
	role   models.Role
	offs   []func()
	log    *observability.SyncLogger
}

// NewSession returns a session over the given push channel and REST backend.
func NewSession(conn PushChannel, backend Backend) *Session {
	return &Session{
		conn:    conn,
		backend: backend,
		store:   NewConversationStore(),
		log:     observability.NewSyncLogger("session"),
	}
}

// Store exposes the conversation store for readers.
func (s *Session) Store() *ConversationStore {
	return s.store
}

// Unread exposes the unread counter for readers.
func (s *Session) Unread() *UnreadCounter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Login establishes the session for an identity: it clears any previous
// identity's state, loads the REST snapshot, initializes the unread count,
// and acquires the push connection. Switching identities goes through the
// same path; the store is cleared, never merged, across the transition.
func (s *Session) Login(ctx context.Context, userID string, role models.Role, token string) error {
	if !role.Valid() {
		return models.NewValidationError("unknown role")
	}

	s.mu.Lock()
	if s.userID != "" && s.userID != userID {
		s.conn.Release()
		s.store.Clear()
	}
	s.userID = userID
	s.role = role
	s.unread = NewUnreadCounter(role)
	s.dispatcher = NewMessageDispatcher(s.store, s.backend, role)
	s.archiver = NewArchiver(s.store, s.backend)

	if len(s.offs) == 0 {
		s.offs = []func(){
			s.conn.On(realtime.EventCreated, s.handleCreated),
			s.conn.On(realtime.EventUpdated, s.handleUpdated),
			s.conn.On(realtime.EventError, s.handleError),
		}
	}
	unread := s.unread
	s.mu.Unlock()

	list, err := s.backend.ListConversations(ctx, role)
	if err != nil {
		return err
	}
	s.store.LoadSnapshot(list)

	n, err := s.backend.UnreadCount(ctx, role)
	if err != nil {
		return err
	}
	unread.Init(n)

	return s.conn.Acquire(ctx, userID, token)
}

// Logout releases the push connection and clears all session state.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.Release()
	s.store.Clear()
	for _, off := range s.offs {
		off()
	}
	s.offs = nil
	s.userID = ""
	s.role = ""
	if s.unread != nil {
		s.unread.Init(0)
	}
}

// Send posts a message to a conversation through the dispatcher.
func (s *Session) Send(ctx context.Context, convID, content, documentURL string) (models.Message, error) {
	s.mu.Lock()
	d := s.dispatcher
	s.mu.Unlock()
	if d == nil {
		return models.Message{}, models.NewStaleIdentityError("no active session")
	}
	return d.Send(ctx, convID, content, documentURL)
}

// Archive archives one conversation.
func (s *Session) Archive(ctx context.Context, convID string) error {
	s.mu.Lock()
	a := s.archiver
	s.mu.Unlock()
	if a == nil {
		return models.NewStaleIdentityError("no active session")
	}
	return a.Archive(ctx, convID)
}

// ArchiveByPair archives every conversation for a counterpart/listing pair.
func (s *Session) ArchiveByPair(ctx context.Context, counterpartID, listingID string) error {
	s.mu.Lock()
	a := s.archiver
	s.mu.Unlock()
	if a == nil {
		return models.NewStaleIdentityError("no active session")
	}
	return a.ArchiveByPair(ctx, counterpartID, listingID)
}

// CreateConversation round-trips a conversation create through the server and
// merges the result exactly as a push "created" event would, so both creation
// paths converge on the same merge routine.
func (s *Session) CreateConversation(ctx context.Context, counterpartID, listingID string) (models.Conversation, error) {
	s.mu.Lock()
	role := s.role
	userID := s.userID
	s.mu.Unlock()
	if userID == "" {
		return models.Conversation{}, models.NewStaleIdentityError("no active session")
	}

	tenantID, landlordID := userID, counterpartID
	if role == models.RoleLandlord {
		tenantID, landlordID = counterpartID, userID
	}
	conv, err := s.backend.CreateConversation(ctx, tenantID, landlordID, listingID)
	if err != nil {
		return models.Conversation{}, err
	}
	s.store.MergePush(*conv)
	merged, _ := s.store.Get(conv.ID)
	return merged, nil
}

// Open selects a conversation, fetches the partner display info on first
// access, and marks its unread messages read. A failed mark-read surfaces the
// error and leaves the unread counter untouched.
func (s *Session) Open(ctx context.Context, convID string) error {
	if err := s.store.SetSelected(convID); err != nil {
		return err
	}

	s.mu.Lock()
	role := s.role
	unread := s.unread
	s.mu.Unlock()

	conv, _ := s.store.Get(convID)
	if conv.Partner == nil {
		if p, err := s.backend.PartnerDisplay(ctx, convID); err != nil {
			// Degraded display only; the next Open retries the fetch.
			s.log.LogError(ctx, "partner_display", err)
		} else {
			s.store.SetPartner(convID, p)
		}
	}

	k := conv.UnreadFor(role)
	if k == 0 {
		return nil
	}
	updated, err := s.backend.MarkRead(ctx, convID, role)
	if err != nil {
		s.log.LogError(ctx, "mark_read", err)
		return err
	}
	s.store.MergePush(*updated)
	unread.ApplyMarkRead(k)
	return nil
}

func (s *Session) handleCreated(evt realtime.Event) {
	s.applyPush(evt, false)
}

func (s *Session) handleUpdated(evt realtime.Event) {
	s.applyPush(evt, true)
}

// applyPush validates the payload shape before merging; a malformed or
// duplicate payload degrades to a logged warning, never a crash. Duplicate
// "created" redeliveries are absorbed by the idempotent upsert.
func (s *Session) applyPush(evt realtime.Event, countUnread bool) {
	ctx, span := observability.TracePushEvent(context.Background(), evt.Type)
	defer span.End()

	s.mu.Lock()
	userID := s.userID
	unread := s.unread
	s.mu.Unlock()

	// An event already in flight when Logout ran must not repopulate the
	// cleared store.
	if userID == "" {
		observability.PushEventsSkipped.WithLabelValues("no_session").Inc()
		s.log.LogSkip(ctx, "no_session", models.NewStaleIdentityError("push event after logout"))
		return
	}

	var conv models.Conversation
	if err := json.Unmarshal(evt.Payload, &conv); err != nil {
		observability.PushEventsSkipped.WithLabelValues("bad_payload").Inc()
		s.log.LogSkip(ctx, "decode", models.NewBadPushPayloadError(err))
		return
	}
	if err := conv.Validate(); err != nil {
		observability.PushEventsSkipped.WithLabelValues("invalid_shape").Inc()
		s.log.LogSkip(ctx, "validate", models.NewBadPushPayloadError(err))
		return
	}

	s.store.MergePush(conv)
	if countUnread && unread != nil {
		unread.ApplyPush(&conv)
	}
}

// handleError surfaces transport-level errors. No retry happens here;
// reconnection is observable as a disconnect followed by a fresh connect.
func (s *Session) handleError(evt realtime.Event) {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(evt.Payload, &payload)
	observability.GlobalLogger.Warn("push channel error", "message", payload.Message)
}
