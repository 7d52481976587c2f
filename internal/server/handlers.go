package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"flatmate/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// Login authenticates a profile and issues a bearer token.
func (s *Server) Login(c *fiber.Ctx) error {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}

	profile, err := s.repo.GetProfileByEmail(c.Context(), in.Email)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Invalid credentials"))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(in.Password)); err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Invalid credentials"))
	}

	token, err := s.issueToken(profile)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{
		"token":      token,
		"profile_id": profile.ID,
		"role":       profile.Role,
	})
}

// CreateConversation creates the conversation for a tenant/landlord/listing
// triple, or returns the existing one so both creation paths converge on a
// single entry per id.
func (s *Server) CreateConversation(c *fiber.Ctx) error {
	var in struct {
		TenantID   string `json:"tenant_id"`
		LandlordID string `json:"landlord_id"`
		ListingID  string `json:"listing_id"`
	}
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}
	if in.TenantID == "" || in.LandlordID == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Both participant references are required"))
	}
	profileID := c.Locals("profileID").(string)
	if profileID != in.TenantID && profileID != in.LandlordID {
		return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError("You are not a participant in this conversation"))
	}

	if existing, err := s.repo.FindConversationByPair(c.Context(), in.TenantID, in.LandlordID, in.ListingID); err == nil {
		return c.JSON(existing)
	} else if !IsNotFound(err) {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	conv := &models.Conversation{
		TenantID:   in.TenantID,
		LandlordID: in.LandlordID,
		ListingID:  in.ListingID,
		Status:     models.StatusNew,
	}
	if err := s.repo.CreateConversation(c.Context(), conv); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	created, err := s.repo.GetConversation(c.Context(), conv.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	s.publishConversationEvent("created", created)
	return c.Status(fiber.StatusCreated).JSON(created)
}

// ListConversations returns the full conversation snapshot for the caller.
func (s *Server) ListConversations(c *fiber.Ctx) error {
	profileID := c.Locals("profileID").(string)
	conversations, err := s.repo.ListForProfile(c.Context(), profileID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.JSON(conversations)
}

// PostMessage appends a message to a conversation and pushes the updated
// conversation to both participants.
func (s *Server) PostMessage(c *fiber.Ctx) error {
	var in struct {
		Content     string `json:"content"`
		DocumentURL string `json:"document_url"`
	}
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}
	if in.Content == "" && in.DocumentURL == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Message content is required"))
	}

	conv, err := s.conversationForParticipant(c)
	if err != nil {
		return respondRepoError(c, err)
	}
	if conv.Status == models.StatusInactive {
		return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError("Conversation is archived"))
	}

	role := c.Locals("role").(models.Role)
	msg := &models.Message{
		ConversationID: conv.ID,
		Content:        in.Content,
		Sender:         role,
		Unread:         true,
		DocumentURL:    in.DocumentURL,
	}
	if err := s.repo.AppendMessage(c.Context(), msg); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	if conv.Status == models.StatusNew {
		if err := s.repo.UpdateStatus(c.Context(), conv.ID, models.StatusActive); err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		}
	}

	updated, err := s.repo.GetConversation(c.Context(), conv.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	s.publishConversationEvent("updated", updated)
	return c.JSON(updated)
}

// MarkRead marks the conversation read for the caller's role: every unread
// message from the opposite role transitions to read.
func (s *Server) MarkRead(c *fiber.Ctx) error {
	var in struct {
		Role string `json:"role"`
	}
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}
	role := c.Locals("role").(models.Role)
	if in.Role != "" && in.Role != string(role) {
		return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError("Cannot mark read for another role"))
	}

	conv, err := s.conversationForParticipant(c)
	if err != nil {
		return respondRepoError(c, err)
	}

	if _, err := s.repo.MarkSenderRead(c.Context(), conv.ID, role.Opposite()); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	updated, err := s.repo.GetConversation(c.Context(), conv.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	s.publishConversationEvent("updated", updated)
	return c.JSON(updated)
}

// UnreadCount returns the total unread count for the caller's role.
func (s *Server) UnreadCount(c *fiber.Ctx) error {
	profileID := c.Locals("profileID").(string)
	role := c.Locals("role").(models.Role)
	if q := c.Query("role"); q != "" && q != string(role) {
		return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError("Cannot query unread for another role"))
	}

	count, err := s.repo.UnreadCountFor(c.Context(), profileID, role)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"count": count})
}

// PartnerDisplay returns the counterpart's display info for a conversation.
func (s *Server) PartnerDisplay(c *fiber.Ctx) error {
	conv, err := s.conversationForParticipant(c)
	if err != nil {
		return respondRepoError(c, err)
	}

	profileID := c.Locals("profileID").(string)
	counterpartID := conv.TenantID
	if profileID == conv.TenantID {
		counterpartID = conv.LandlordID
	}

	partner, err := s.repo.GetProfile(c.Context(), counterpartID)
	if err != nil {
		return respondRepoError(c, err)
	}
	return c.JSON(partner.Display())
}

// Archive archives a single conversation. Archiving an already-inactive
// conversation succeeds without a state change or an event.
func (s *Server) Archive(c *fiber.Ctx) error {
	conv, err := s.conversationForParticipant(c)
	if err != nil {
		return respondRepoError(c, err)
	}
	if conv.Status == models.StatusInactive {
		return c.JSON(conv)
	}

	if err := s.repo.UpdateStatus(c.Context(), conv.ID, models.StatusInactive); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	updated, err := s.repo.GetConversation(c.Context(), conv.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	s.publishConversationEvent("updated", updated)
	return c.JSON(updated)
}

// ArchiveByPair archives every conversation between the caller and a
// counterpart on a listing in one request. The caller's identity scopes the
// operation; conversations the counterpart has with other profiles are out
// of reach.
func (s *Server) ArchiveByPair(c *fiber.Ctx) error {
	var in struct {
		CounterpartID string `json:"counterpart_id"`
		ListingID     string `json:"listing_id"`
	}
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}
	if in.CounterpartID == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Counterpart reference is required"))
	}

	profileID := c.Locals("profileID").(string)
	ids, err := s.repo.ArchiveByPair(c.Context(), profileID, in.CounterpartID, in.ListingID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	archived := make([]models.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.repo.GetConversation(c.Context(), id)
		if err != nil {
			continue
		}
		s.publishConversationEvent("updated", conv)
		archived = append(archived, *conv)
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Archived %d conversations", len(archived)),
		"data":    archived,
	})
}

// conversationForParticipant loads the :id conversation and verifies the
// caller participates in it.
func (s *Server) conversationForParticipant(c *fiber.Ctx) (*models.Conversation, error) {
	conv, err := s.repo.GetConversation(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	profileID := c.Locals("profileID").(string)
	if profileID != conv.TenantID && profileID != conv.LandlordID {
		return nil, models.NewForbiddenError("You are not a participant in this conversation")
	}
	return conv, nil
}

func respondRepoError(c *fiber.Ctx, err error) error {
	if appErr, ok := err.(*models.AppError); ok {
		status := fiber.StatusInternalServerError
		switch appErr.Code {
		case "FORBIDDEN":
			status = fiber.StatusForbidden
		case "NOT_FOUND":
			status = fiber.StatusNotFound
		case "UNAUTHORIZED":
			status = fiber.StatusUnauthorized
		}
		return models.RespondWithError(c, status, appErr)
	}
	if IsNotFound(err) {
		return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("conversation", c.Params("id")))
	}
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// publishConversationEvent pushes the event envelope to both participants,
// in-process through the hub and cross-instance through the notifier.
func (s *Server) publishConversationEvent(eventType string, conv *models.Conversation) {
	event := map[string]interface{}{
		"type":    eventType,
		"payload": conv,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", eventType, err)
		return
	}

	for _, profileID := range []string{conv.TenantID, conv.LandlordID} {
		if s.hub != nil {
			s.hub.Broadcast(profileID, eventJSON)
		}
		if s.notifier != nil {
			if err := s.notifier.PublishUser(context.Background(), profileID, string(eventJSON)); err != nil {
				log.Printf("failed to publish %s event to profile %s: %v", eventType, profileID, err)
			}
		}
	}
}
