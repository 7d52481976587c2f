package chatsync

import (
	"context"
	"sync"

	"flatmate/internal/models"
)

// fakeBackend is a scriptable Backend for sync tests. Calls are recorded so
// tests can assert which network requests were (or were not) issued.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	conversations []models.Conversation
	unread        int
	partner       *models.PartnerDisplay

	createResult  *models.Conversation
	postResult    *models.Conversation
	markResult    *models.Conversation
	archiveResult *models.Conversation
	pairResult    []models.Conversation

	err error
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBackend) CreateConversation(_ context.Context, _, _, _ string) (*models.Conversation, error) {
	f.record("create")
	if f.err != nil {
		return nil, f.err
	}
	return f.createResult, nil
}

func (f *fakeBackend) PostMessage(_ context.Context, _ string, _ models.Message) (*models.Conversation, error) {
	f.record("post")
	if f.err != nil {
		return nil, f.err
	}
	return f.postResult, nil
}

func (f *fakeBackend) MarkRead(_ context.Context, _ string, _ models.Role) (*models.Conversation, error) {
	f.record("mark_read")
	if f.err != nil {
		return nil, f.err
	}
	return f.markResult, nil
}

func (f *fakeBackend) UnreadCount(_ context.Context, _ models.Role) (int, error) {
	f.record("unread_count")
	if f.err != nil {
		return 0, f.err
	}
	return f.unread, nil
}

func (f *fakeBackend) PartnerDisplay(_ context.Context, _ string) (*models.PartnerDisplay, error) {
	f.record("partner")
	if f.err != nil {
		return nil, f.err
	}
	return f.partner, nil
}

func (f *fakeBackend) ListConversations(_ context.Context, _ models.Role) ([]models.Conversation, error) {
	f.record("list")
	if f.err != nil {
		return nil, f.err
	}
	return f.conversations, nil
}

func (f *fakeBackend) Archive(_ context.Context, _ string) (*models.Conversation, error) {
	f.record("archive")
	if f.err != nil {
		return nil, f.err
	}
	return f.archiveResult, nil
}

func (f *fakeBackend) ArchiveByPair(_ context.Context, _, _ string) ([]models.Conversation, error) {
	f.record("archive_by_pair")
	if f.err != nil {
		return nil, f.err
	}
	return f.pairResult, nil
}
