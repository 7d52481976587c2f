package chatsync

import (
	"context"
	"sync"

	"flatmate/internal/models"
	"flatmate/internal/observability"
)

// ConversationStore is the authoritative in-memory collection of conversations
// for the current user. All writes flow through LoadSnapshot, MergePush, and
// ApplyOptimistic; readers receive copies and never alias internal state.
type ConversationStore struct {
	mu         sync.RWMutex
	byID       map[string]*models.Conversation
	selectedID string
	log        *observability.SyncLogger
}

// NewConversationStore returns an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		byID: make(map[string]*models.Conversation),
		log:  observability.NewSyncLogger("store"),
	}
}

// LoadSnapshot replaces the full collection with the REST-fetched list and
// selects the first conversation by rank order if none is selected.
func (s *ConversationStore) LoadSnapshot(list []models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*models.Conversation, len(list))
	for i := range list {
		c := list[i].Clone()
		s.byID[c.ID] = &c
	}
	if _, ok := s.byID[s.selectedID]; !ok {
		s.selectedID = ""
	}
	if s.selectedID == "" && len(list) > 0 {
		ranked := Rank(list)
		s.selectedID = ranked[0].ID
	}
}

// MergePush upserts a pushed conversation by id. An absent id inserts, a
// present id fully replaces the stored entry: the server is authoritative, so
// there is no field-level merge. The partner display cache is client-attached
// state outside the server payload and survives the replace.
func (s *ConversationStore) MergePush(conv models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := conv.Clone()
	if prev, ok := s.byID[conv.ID]; ok && c.Partner == nil {
		c.Partner = prev.Partner
	}
	s.byID[c.ID] = &c
	s.log.LogMerge(context.Background(), c.ID, "push")
}

// ApplyOptimistic appends a message to the local copy of the conversation
// without waiting for server confirmation, flipping status from new to active
// if applicable. The entry is expected to be superseded by a later MergePush
// carrying the canonical message list.
func (s *ConversationStore) ApplyOptimistic(id string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return models.NewNotFoundError("conversation", id)
	}
	msg.ConversationID = id
	conv.Messages = append(conv.Messages, msg)
	conv.Status = OnFirstMessage(conv.Status)
	s.log.LogMerge(context.Background(), id, "optimistic")
	return nil
}

// MarkDelivery updates the delivery sub-state of an optimistic message.
// Returns false if the conversation or message is gone, which happens when a
// push has already replaced the optimistic list.
func (s *ConversationStore) MarkDelivery(convID, msgID string, d models.Delivery) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[convID]
	if !ok {
		return false
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == msgID {
			conv.Messages[i].Delivery = d
			return true
		}
	}
	return false
}

// SetPartner attaches the lazily-fetched partner display info.
func (s *ConversationStore) SetPartner(id string, p *models.PartnerDisplay) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.byID[id]; ok {
		conv.Partner = p
	}
}

// SetSelected marks the given conversation as the open one.
func (s *ConversationStore) SetSelected(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return models.NewNotFoundError("conversation", id)
	}
	s.selectedID = id
	return nil
}

// Selected returns a copy of the currently selected conversation.
func (s *ConversationStore) Selected() (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.byID[s.selectedID]
	if !ok {
		return models.Conversation{}, false
	}
	return conv.Clone(), true
}

// Get returns a copy of the conversation with the given id.
func (s *ConversationStore) Get(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.byID[id]
	if !ok {
		return models.Conversation{}, false
	}
	return conv.Clone(), true
}

// List returns copies of all conversations in rank order.
func (s *ConversationStore) List() []models.Conversation {
	s.mu.RLock()
	all := make([]models.Conversation, 0, len(s.byID))
	for _, conv := range s.byID {
		all = append(all, conv.Clone())
	}
	s.mu.RUnlock()
	return Rank(all)
}

// Len returns the number of conversations held.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Clear drops every conversation and the selection. Called on logout and
// identity switch so stale conversations never leak across users.
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*models.Conversation)
	s.selectedID = ""
}
