package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flatmate/internal/config"
	"flatmate/internal/models"
	"flatmate/internal/observability"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Server wires the REST handlers, the websocket hub, and the notifier.
type Server struct {
	app      *fiber.App
	cfg      *config.Config
	repo     ChatRepository
	hub      *Hub
	notifier *Notifier
	log      *observability.Logger
}

// NewServer builds the fiber application with all routes registered.
func NewServer(cfg *config.Config, repo ChatRepository, hub *Hub, notifier *Notifier) *Server {
	s := &Server{
		app:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		cfg:      cfg,
		repo:     repo,
		hub:      hub,
		notifier: notifier,
		log:      observability.GlobalLogger,
	}
	s.registerRoutes()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts serving on the configured port.
func (s *Server) Listen() error {
	return s.app.Listen(":" + s.cfg.Port)
}

// Shutdown stops the app and closes all websocket connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.hub.Shutdown(ctx); err != nil {
		return err
	}
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	prom := fiberprometheus.New("flatmate")
	prom.RegisterAt(s.app, "/metrics")
	s.app.Use(prom.Middleware)

	api := s.app.Group("/api")
	api.Post("/login", s.Login)

	authed := api.Group("", s.AuthRequired)
	authed.Get("/conversations", s.ListConversations)
	authed.Post("/conversations", s.CreateConversation)
	authed.Post("/conversations/archive", s.ArchiveByPair)
	authed.Post("/conversations/:id/messages", s.PostMessage)
	authed.Post("/conversations/:id/read", s.MarkRead)
	authed.Post("/conversations/:id/archive", s.Archive)
	authed.Get("/conversations/:id/partner", s.PartnerDisplay)
	authed.Get("/unread", s.UnreadCount)

	s.app.Use("/ws", s.upgradeRequired)
	s.app.Get("/ws", fiberws.New(s.handleWebSocket))
}

// parseToken validates a bearer token and extracts identity and role.
func (s *Server) parseToken(tokenString string) (string, models.Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid signing method")
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", models.NewUnauthorizedError("Invalid token claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", "", models.NewUnauthorizedError("Invalid token structure - missing subject")
	}
	roleStr, _ := claims["role"].(string)
	role, err := models.ParseRole(roleStr)
	if err != nil {
		return "", "", models.NewUnauthorizedError("Invalid token structure - missing role")
	}
	return sub, role, nil
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func (s *Server) AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Authorization header required"))
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Invalid authorization header format"))
	}

	profileID, role, err := s.parseToken(parts[1])
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, err)
	}

	c.Locals("profileID", profileID)
	c.Locals("role", role)
	return c.Next()
}

// upgradeRequired authenticates the websocket upgrade. The connection-time
// credential comes from the Authorization header or a token query parameter.
func (s *Server) upgradeRequired(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	tokenString := c.Query("token")
	if tokenString == "" {
		authHeader := c.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
	}
	if tokenString == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Missing credential"))
	}

	profileID, role, err := s.parseToken(tokenString)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, err)
	}
	c.Locals("profileID", profileID)
	c.Locals("role", role)
	return c.Next()
}

// issueToken signs a jwt for the given profile.
func (s *Server) issueToken(p *models.Profile) (string, error) {
	claims := jwt.MapClaims{
		"sub":  p.ID,
		"role": string(p.Role),
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
