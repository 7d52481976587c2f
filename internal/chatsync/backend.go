package chatsync

import (
	"context"

	"flatmate/internal/models"
)

// Backend is the REST surface the sync core consumes. The api package
// provides the HTTP implementation; tests substitute stubs.
type Backend interface {
	CreateConversation(ctx context.Context, tenantID, landlordID, listingID string) (*models.Conversation, error)
	PostMessage(ctx context.Context, convID string, msg models.Message) (*models.Conversation, error)
	MarkRead(ctx context.Context, convID string, role models.Role) (*models.Conversation, error)
	UnreadCount(ctx context.Context, role models.Role) (int, error)
	PartnerDisplay(ctx context.Context, convID string) (*models.PartnerDisplay, error)
	ListConversations(ctx context.Context, role models.Role) ([]models.Conversation, error)
	Archive(ctx context.Context, convID string) (*models.Conversation, error)
	ArchiveByPair(ctx context.Context, counterpartID, listingID string) ([]models.Conversation, error)
}
