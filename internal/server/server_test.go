package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"flatmate/internal/config"
	"flatmate/internal/models"
)

// The prometheus middleware registers collectors globally, so the whole
// package shares one server instance.
var (
	integrationOnce sync.Once
	integrationSrv  *Server
	integrationRepo ChatRepository
)

func testServer(t *testing.T) (*Server, ChatRepository) {
	t.Helper()
	integrationOnce.Do(func() {
		db, err := gorm.Open(sqlite.Open("file:server_test?mode=memory&cache=shared"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err)
		require.NoError(t, Migrate(db))

		integrationRepo = NewChatRepository(db)
		integrationSrv = NewServer(&config.Config{
			JWTSecret:      "integration-test-secret",
			Port:           "0",
			APIBaseURL:     "http://unused",
			PushURL:        "ws://unused",
			RequestTimeout: 5,
			Env:            "test",
		}, integrationRepo, NewHub(), NewNotifier(nil))
	})
	return integrationSrv, integrationRepo
}

var profileCounter int

func createProfile(t *testing.T, repo ChatRepository, role models.Role) *models.Profile {
	t.Helper()
	profileCounter++
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.MinCost)
	require.NoError(t, err)
	p := &models.Profile{
		Email:        fmt.Sprintf("profile%d@test.local", profileCounter),
		PasswordHash: string(hash),
		Name:         fmt.Sprintf("Profile %d", profileCounter),
		Title:        "Test title",
		Role:         role,
	}
	require.NoError(t, repo.CreateProfile(context.Background(), p))
	return p
}

func request(t *testing.T, srv *Server, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, data
}

func login(t *testing.T, srv *Server, email string) string {
	t.Helper()
	resp, body := request(t, srv, http.MethodPost, "/api/login", "", map[string]string{
		"email":    email,
		"password": DemoPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	return out.Token
}

func TestServer_LoginIssuesTokenAndRejectsBadCredentials(t *testing.T) {
	srv, repo := testServer(t)
	tenant := createProfile(t, repo, models.RoleTenant)

	resp, body := request(t, srv, http.MethodPost, "/api/login", "", map[string]string{
		"email":    tenant.Email,
		"password": DemoPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token     string `json:"token"`
		ProfileID string `json:"profile_id"`
		Role      string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, tenant.ID, out.ProfileID)
	assert.Equal(t, "tenant", out.Role)

	resp, _ = request(t, srv, http.MethodPost, "/api/login", "", map[string]string{
		"email":    tenant.Email,
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_AuthRequired(t *testing.T) {
	srv, _ := testServer(t)

	resp, _ := request(t, srv, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = request(t, srv, http.MethodGet, "/api/conversations", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_CreateConversationDeduplicatesPair(t *testing.T) {
	srv, repo := testServer(t)
	tenant := createProfile(t, repo, models.RoleTenant)
	landlord := createProfile(t, repo, models.RoleLandlord)
	token := login(t, srv, tenant.Email)

	in := map[string]string{
		"tenant_id":   tenant.ID,
		"landlord_id": landlord.ID,
		"listing_id":  "listing-1",
	}
	resp, body := request(t, srv, http.MethodPost, "/api/conversations", token, in)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created models.Conversation
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, models.StatusNew, created.Status)

	// The same pair resolves to the existing conversation.
	resp, body = request(t, srv, http.MethodPost, "/api/conversations", token, in)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var again models.Conversation
	require.NoError(t, json.Unmarshal(body, &again))
	assert.Equal(t, created.ID, again.ID)
}

func TestServer_CreateConversationRequiresParticipation(t *testing.T) {
	srv, repo := testServer(t)
	tenant := createProfile(t, repo, models.RoleTenant)
	landlord := createProfile(t, repo, models.RoleLandlord)
	outsider := createProfile(t, repo, models.RoleTenant)
	token := login(t, srv, outsider.Email)

	resp, _ := request(t, srv, http.MethodPost, "/api/conversations", token, map[string]string{
		"tenant_id":   tenant.ID,
		"landlord_id": landlord.ID,
		"listing_id":  "listing-x",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_PostMessageFlipsNewToActive(t *testing.T) {
	srv, repo := testServer(t)
	tenant := createProfile(t, repo, models.RoleTenant)
	landlord := createProfile(t, repo, models.RoleLandlord)
	token := login(t, srv, tenant.Email)

	resp, body := request(t, srv, http.MethodPost, "/api/conversations", token, map[string]string{
		"tenant_id":   tenant.ID,
		"landlord_id": landlord.ID,
		"listing_id":  "listing-msg",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(body, &conv))

	resp, body = request(t, srv, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", token, map[string]string{
		"content": "is the room still available?",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var updated models.Conversation
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, models.StatusActive, updated.Status)
	require.Len(t, updated.Messages, 1)
	assert.Equal(t, models.RoleTenant, updated.Messages[0].Sender)
	assert.True(t, updated.Messages[0].Unread)

	// Empty messages are rejected before any write.
	resp, _ = request(t, srv, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_PostMessageToArchivedConversation(t *testing.T) {
	srv, repo := testServer(t)
	tenant := createProfile(t, repo, models.RoleTenant)
	landlord := createProfile(t, repo, models.RoleLandlord)
	token := login(t, srv, tenant.Email)

	resp, body := request(t, srv, http.MethodPost, "/api/conversations", token, map[string]string{
		"tenant_id":   tenant.ID,
		"landlord_id": landlord.ID,
		"listing_id":  "listing-archived",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(body, &conv))

	resp, _ = request(t, srv, http.MethodPost, "/api/conversations/"+conv.ID+"/archive", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = request(t, srv, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", token, map[string]string{
		"content": "too late",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_MarkReadAndUnreadCount(t *testing.T) {
	srv, repo := testServer(t)
	tenant := createProfile(t, repo, models.RoleTenant)
	landlord := createProfile(t, repo, models.RoleLandlord)
	tenantToken := login(t, srv, tenant.Email)
	landlordToken := login(t, srv, landlord.Email)

	resp, body := request(t, srv, http.MethodPost, "/api/conversations", tenantToken, map[string]string{
		"tenant_id":   tenant.ID,
		"landlord_id": landlord.ID,
		"listing_id":  "listing-read",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(body, &conv))

	for _, content := range []string{"hello", "anyone there?"} {
		resp, _ = request(t, srv, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", landlordToken, map[string]string{
			"content": content,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body = request(t, srv, http.MethodGet, "/api/unread", tenantToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var count struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &count))
	assert.Equal(t, 2, count.Count)

	resp, body = request(t, srv, http.MethodPost, "/api/conversations/"+conv.ID+"/read", tenantToken, map[string]string{
		"role": "tenant",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.Conversation
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, 0, updated.UnreadFor(models.RoleTenant))

	resp, body = request(t, srv, http.MethodGet, "/api/unread", tenantToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &count))
	assert.Equal(t, 0, count.Count)

	// Claiming another role is rejected.
	resp, _ = request(t, srv, http.MethodPost, "/api/conversations/"+conv.ID+"/read", tenantToken, map[string]string{
		"role": "landlord",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_PartnerDisplay(t *testing.T) {
	srv, repo := testServer(t)
	tenant := createProfile(t, repo, models.RoleTenant)
	landlord := createProfile(t, repo, models.RoleLandlord)
	token := login(t, srv, tenant.Email)

	resp, body := request(t, srv, http.MethodPost, "/api/conversations", token, map[string]string{
		"tenant_id":   tenant.ID,
		"landlord_id": landlord.ID,
		"listing_id":  "listing-partner",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(body, &conv))

	resp, body = request(t, srv, http.MethodGet, "/api/conversations/"+conv.ID+"/partner", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var partner models.PartnerDisplay
	require.NoError(t, json.Unmarshal(body, &partner))
	assert.Equal(t, landlord.Name, partner.Name)
	assert.Equal(t, landlord.Title, partner.Title)
}

func TestServer_ArchiveIsIdempotent(t *testing.T) {
	srv, repo := testServer(t)
	tenant := createProfile(t, repo, models.RoleTenant)
	landlord := createProfile(t, repo, models.RoleLandlord)
	token := login(t, srv, tenant.Email)

	resp, body := request(t, srv, http.MethodPost, "/api/conversations", token, map[string]string{
		"tenant_id":   tenant.ID,
		"landlord_id": landlord.ID,
		"listing_id":  "listing-idem",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(body, &conv))

	for i := 0; i < 2; i++ {
		resp, body = request(t, srv, http.MethodPost, "/api/conversations/"+conv.ID+"/archive", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var archived models.Conversation
		require.NoError(t, json.Unmarshal(body, &archived))
		assert.Equal(t, models.StatusInactive, archived.Status)
	}
}

func TestServer_ArchiveByPair(t *testing.T) {
	srv, repo := testServer(t)
	tenant := createProfile(t, repo, models.RoleTenant)
	landlord := createProfile(t, repo, models.RoleLandlord)
	token := login(t, srv, tenant.Email)

	resp, body := request(t, srv, http.MethodPost, "/api/conversations", token, map[string]string{
		"tenant_id":   tenant.ID,
		"landlord_id": landlord.ID,
		"listing_id":  "bulk-listing",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = request(t, srv, http.MethodPost, "/api/conversations/archive", token, map[string]string{
		"counterpart_id": landlord.ID,
		"listing_id":     "bulk-listing",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Message string                `json:"message"`
		Data    []models.Conversation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Data, 1)
	assert.Equal(t, "Archived 1 conversations", out.Message)
	assert.Equal(t, models.StatusInactive, out.Data[0].Status)
}

func TestServer_ArchiveByPairRequiresParticipation(t *testing.T) {
	srv, repo := testServer(t)
	tenant := createProfile(t, repo, models.RoleTenant)
	landlord := createProfile(t, repo, models.RoleLandlord)
	outsider := createProfile(t, repo, models.RoleTenant)
	token := login(t, srv, tenant.Email)
	outsiderToken := login(t, srv, outsider.Email)

	resp, body := request(t, srv, http.MethodPost, "/api/conversations", token, map[string]string{
		"tenant_id":   tenant.ID,
		"landlord_id": landlord.ID,
		"listing_id":  "bulk-acl-listing",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(body, &conv))

	// An outsider naming someone else's counterpart and listing archives
	// nothing and sees no conversation data.
	resp, body = request(t, srv, http.MethodPost, "/api/conversations/archive", outsiderToken, map[string]string{
		"counterpart_id": landlord.ID,
		"listing_id":     "bulk-acl-listing",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Message string                `json:"message"`
		Data    []models.Conversation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Empty(t, out.Data)
	assert.Equal(t, "Archived 0 conversations", out.Message)

	got, err := repo.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, got.Status)
}

func TestServer_ConversationAccessControl(t *testing.T) {
	srv, repo := testServer(t)
	tenant := createProfile(t, repo, models.RoleTenant)
	landlord := createProfile(t, repo, models.RoleLandlord)
	outsider := createProfile(t, repo, models.RoleTenant)
	token := login(t, srv, tenant.Email)
	outsiderToken := login(t, srv, outsider.Email)

	resp, body := request(t, srv, http.MethodPost, "/api/conversations", token, map[string]string{
		"tenant_id":   tenant.ID,
		"landlord_id": landlord.ID,
		"listing_id":  "listing-acl",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(body, &conv))

	resp, _ = request(t, srv, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", outsiderToken, map[string]string{
		"content": "let me in",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = request(t, srv, http.MethodGet, "/api/conversations/missing-id/partner", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
