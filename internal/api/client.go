// Package api implements the REST surface the sync core consumes. Every call
// carries the session's bearer credential; a 401 anywhere is a global
// session-invalidation signal.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"flatmate/internal/models"
	"flatmate/internal/observability"
)

// Client is the HTTP implementation of the chatsync backend.
type Client struct {
	baseURL string
	http    *http.Client

	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

// NewClient returns a client for the given API base URL. The timeout applies
// to every request; there is no automatic retry.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken installs the bearer credential used on every call.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// OnUnauthorized registers the session-invalidation callback invoked when any
// call returns 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, operation, method, path string, in, out interface{}) error {
	ctx, span := observability.TraceRESTCall(ctx, operation, path)
	defer span.End()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return models.NewInternalError(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return models.NewInternalError(err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	token := c.token
	onUnauthorized := c.onUnauthorized
	c.mu.RUnlock()
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		observability.RecordSpanError(span, err)
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		if onUnauthorized != nil {
			onUnauthorized()
		}
		err := models.NewUnauthorizedError("session invalidated")
		observability.RecordSpanError(span, err)
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr models.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			err := &models.AppError{Code: apiErr.Code, Message: apiErr.Error}
			observability.RecordSpanError(span, err)
			return err
		}
		err := fmt.Errorf("%s: unexpected status %d", operation, resp.StatusCode)
		observability.RecordSpanError(span, err)
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			observability.RecordSpanError(span, err)
			return models.NewInternalError(err)
		}
	}
	return nil
}

// CreateConversation creates a conversation linking the two participants over
// a listing. The server returns the existing conversation for a duplicate
// pair, so creation and push delivery converge on one entry per id.
func (c *Client) CreateConversation(ctx context.Context, tenantID, landlordID, listingID string) (*models.Conversation, error) {
	in := map[string]string{
		"tenant_id":   tenantID,
		"landlord_id": landlordID,
		"listing_id":  listingID,
	}
	var conv models.Conversation
	if err := c.do(ctx, "create_conversation", http.MethodPost, "/conversations", in, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// PostMessage posts a message. The echoed conversation is authoritative for
// the server but not used for merging; the push event is.
func (c *Client) PostMessage(ctx context.Context, convID string, msg models.Message) (*models.Conversation, error) {
	in := map[string]string{
		"content":      msg.Content,
		"document_url": msg.DocumentURL,
	}
	var conv models.Conversation
	if err := c.do(ctx, "post_message", http.MethodPost, "/conversations/"+convID+"/messages", in, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// MarkRead marks the conversation read for the given reader role.
func (c *Client) MarkRead(ctx context.Context, convID string, role models.Role) (*models.Conversation, error) {
	in := map[string]string{"role": string(role)}
	var conv models.Conversation
	if err := c.do(ctx, "mark_read", http.MethodPost, "/conversations/"+convID+"/read", in, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// UnreadCount fetches the total unread count for the role, once per login.
func (c *Client) UnreadCount(ctx context.Context, role models.Role) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, "unread_count", http.MethodGet, "/unread?role="+string(role), nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// PartnerDisplay fetches the counterpart's display info for a conversation.
func (c *Client) PartnerDisplay(ctx context.Context, convID string) (*models.PartnerDisplay, error) {
	var out models.PartnerDisplay
	if err := c.do(ctx, "partner_display", http.MethodGet, "/conversations/"+convID+"/partner", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConversations fetches the full conversation snapshot for the role.
func (c *Client) ListConversations(ctx context.Context, role models.Role) ([]models.Conversation, error) {
	var out []models.Conversation
	if err := c.do(ctx, "list_conversations", http.MethodGet, "/conversations?role="+string(role), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Archive archives a single conversation.
func (c *Client) Archive(ctx context.Context, convID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, "archive", http.MethodPost, "/conversations/"+convID+"/archive", nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ArchiveByPair archives every conversation for a counterpart/listing pair.
func (c *Client) ArchiveByPair(ctx context.Context, counterpartID, listingID string) ([]models.Conversation, error) {
	in := map[string]string{
		"counterpart_id": counterpartID,
		"listing_id":     listingID,
	}
	var out struct {
		Message string                `json:"message"`
		Data    []models.Conversation `json:"data"`
	}
	if err := c.do(ctx, "archive_by_pair", http.MethodPost, "/conversations/archive", in, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Login authenticates with the reference server and returns the issued token
// plus the profile's identity and role.
func (c *Client) Login(ctx context.Context, email, password string) (string, string, models.Role, error) {
	in := map[string]string{"email": email, "password": password}
	var out struct {
		Token     string      `json:"token"`
		ProfileID string      `json:"profile_id"`
		Role      models.Role `json:"role"`
	}
	if err := c.do(ctx, "login", http.MethodPost, "/login", in, &out); err != nil {
		return "", "", "", err
	}
	c.SetToken(out.Token)
	return out.Token, out.ProfileID, out.Role, nil
}
