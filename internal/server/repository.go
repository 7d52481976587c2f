package server

import (
	"context"
	"errors"
	"time"

	"flatmate/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatRepository defines the interface for chat data operations
type ChatRepository interface {
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	CreateProfile(ctx context.Context, p *models.Profile) error

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	FindConversationByPair(ctx context.Context, tenantID, landlordID, listingID string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListForProfile(ctx context.Context, profileID string) ([]models.Conversation, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	UpdateStatus(ctx context.Context, convID string, status models.Status) error
	MarkSenderRead(ctx context.Context, convID string, sender models.Role) (int64, error)
	UnreadCountFor(ctx context.Context, profileID string, role models.Role) (int64, error)
	ArchiveByPair(ctx context.Context, profileID, counterpartID, listingID string) ([]string, error)
}

// chatRepository implements ChatRepository
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *chatRepository) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *chatRepository) CreateProfile(ctx context.Context, p *models.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *chatRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Status == "" {
		conv.Status = models.StatusNew
	}
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *chatRepository) FindConversationByPair(ctx context.Context, tenantID, landlordID, listingID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND landlord_id = ? AND listing_id = ?", tenantID, landlordID, listingID).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return r.GetConversation(ctx, conv.ID)
}

func (r *chatRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		}).
		First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *chatRepository) ListForProfile(ctx context.Context, profileID string) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? OR landlord_id = ?", profileID, profileID).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		}).
		Order("updated_at DESC").
		Find(&conversations).Error
	return conversations, err
}

func (r *chatRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", msg.ConversationID).
		Update("updated_at", time.Now().UTC()).Error
}

func (r *chatRepository) UpdateStatus(ctx context.Context, convID string, status models.Status) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", convID).
		Update("status", status).Error
}

// MarkSenderRead flips every unread message by the given sender in the
// conversation and returns how many transitioned.
func (r *chatRepository) MarkSenderRead(ctx context.Context, convID string, sender models.Role) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender = ? AND unread = ?", convID, sender, true).
		Update("unread", false)
	return res.RowsAffected, res.Error
}

// UnreadCountFor counts unread messages addressed to the profile across all
// of its conversations, i.e. those sent by the opposite role.
func (r *chatRepository) UnreadCountFor(ctx context.Context, profileID string, role models.Role) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("conversations.tenant_id = ? OR conversations.landlord_id = ?", profileID, profileID).
		Where("messages.unread = ? AND messages.sender = ?", true, role.Opposite()).
		Count(&count).Error
	return count, err
}

// ArchiveByPair sets every conversation between the profile and the
// counterpart on the listing to inactive and returns the affected ids.
// Conversations the profile does not participate in are never touched.
func (r *chatRepository) ArchiveByPair(ctx context.Context, profileID, counterpartID, listingID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("((tenant_id = ? AND landlord_id = ?) OR (tenant_id = ? AND landlord_id = ?)) AND listing_id = ?",
			profileID, counterpartID, counterpartID, profileID, listingID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err = r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id IN ?", ids).
		Update("status", models.StatusInactive).Error
	return ids, err
}

// IsNotFound reports whether the error is the repository's record-miss.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
