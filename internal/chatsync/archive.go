package chatsync

import (
	"context"

	"flatmate/internal/models"
	"flatmate/internal/observability"
)

// OnFirstMessage advances a conversation's status when its first message
// lands. Once a conversation has left new it never returns to it.
func OnFirstMessage(s models.Status) models.Status {
	if s == models.StatusNew {
		return models.StatusActive
	}
	return s
}

// CanTransition reports whether a status change is legal. Inactive is
// terminal; re-archiving is allowed and leaves state unchanged.
func CanTransition(from, to models.Status) bool {
	if from == to {
		return true
	}
	switch from {
	case models.StatusNew:
		return to == models.StatusActive || to == models.StatusInactive
	case models.StatusActive:
		return to == models.StatusInactive
	case models.StatusInactive:
		return false
	}
	return false
}

// Archiver drives conversations into the terminal inactive state through the
// same merge path push events use.
type Archiver struct {
	store   *ConversationStore
	backend Backend
	log     *observability.SyncLogger
}

// NewArchiver returns an Archiver writing into the given store.
func NewArchiver(store *ConversationStore, backend Backend) *Archiver {
	return &Archiver{
		store:   store,
		backend: backend,
		log:     observability.NewSyncLogger("archiver"),
	}
}

// Archive requests the archival of one conversation. Archiving an
// already-inactive conversation is a no-op that returns success: no request
// is issued and state is left unchanged.
func (a *Archiver) Archive(ctx context.Context, id string) error {
	conv, ok := a.store.Get(id)
	if !ok {
		return models.NewNotFoundError("conversation", id)
	}
	if conv.Status == models.StatusInactive {
		return nil
	}

	updated, err := a.backend.Archive(ctx, id)
	if err != nil {
		a.log.LogError(ctx, "archive", err)
		return err
	}
	a.store.MergePush(*updated)
	return nil
}

// ArchiveByPair archives every conversation linking the given counterpart and
// listing in one request. Each returned conversation flows through the merge
// path.
func (a *Archiver) ArchiveByPair(ctx context.Context, counterpartID, listingID string) error {
	updated, err := a.backend.ArchiveByPair(ctx, counterpartID, listingID)
	if err != nil {
		a.log.LogError(ctx, "archive_by_pair", err)
		return err
	}
	for i := range updated {
		a.store.MergePush(updated[i])
	}
	return nil
}
