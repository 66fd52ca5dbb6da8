// Package api exposes the Brainyx services over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/billing"
	"github.com/illegalcall/brainyx/internal/chat"
	"github.com/illegalcall/brainyx/internal/config"
	"github.com/illegalcall/brainyx/internal/identity"
	"github.com/illegalcall/brainyx/internal/llm"
	"github.com/illegalcall/brainyx/internal/payments"
	"github.com/illegalcall/brainyx/internal/repository"
	"github.com/illegalcall/brainyx/internal/settings"
	"github.com/illegalcall/brainyx/internal/storage"
)

const (
	msgInvalidBody = "Cuerpo de la solicitud inválido"
	msgInternal    = "Error interno del servidor"
)

// Services are the collaborators the handlers call into.
type Services struct {
	Identity *identity.Service
	APIKeys  *identity.APIKeys
	Settings *settings.Service
	Chat     *chat.Service
	Billing  *billing.Service
	Payments *payments.Service
	LLM      *llm.Gateway
	Storage  storage.Storage
}

type Server struct {
	app   *fiber.App
	cfg   *config.Config
	store repository.Store
	svc   Services
}

func NewServer(cfg *config.Config, store repository.Store, svc Services) *Server {
	s := &Server{
		cfg:   cfg,
		store: store,
		svc:   svc,
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "Brainyx API",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: s.handleError,
	})

	// Middleware
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
	}))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")

	// Public routes
	api.Get("/", s.handleRoot)
	api.Get("/health", s.handleHealth)
	api.Get("/plans", cache.New(cache.Config{
		Expiration:   s.cfg.Server.CacheExpiration,
		CacheControl: true,
	}), s.handlePlans)
	api.Post("/auth/register", s.handleRegister)
	api.Post("/auth/login", s.handleLogin)
	api.Post("/v1/chat", s.handlePublicChat)

	// Protected routes
	protected := api.Group("", jwtware.New(jwtware.Config{
		SigningKey:   []byte(s.cfg.JWT.Secret),
		ErrorHandler: s.handleJWTError,
	}), s.requireUser)

	protected.Get("/auth/me", s.handleMe)
	protected.Put("/users/profile", s.handleUpdateProfile)
	protected.Get("/users/profile/image", s.handleProfileImage)

	protected.Get("/settings", s.handleGetSettings)
	protected.Put("/settings", s.handleUpdateSettings)

	protected.Get("/chat/conversations", s.handleListConversations)
	protected.Post("/chat/conversations", s.handleCreateConversation)
	protected.Get("/chat/conversations/:id", s.handleGetConversation)
	protected.Delete("/chat/conversations/:id", s.handleDeleteConversation)
	protected.Post("/chat/conversations/:id/messages", s.handleSendMessage)
	protected.Post("/chat/feedback", s.handleFeedback)

	protected.Get("/api-keys", s.handleListAPIKeys)
	protected.Post("/api-keys", s.handleCreateAPIKey)
	protected.Delete("/api-keys/:id", s.handleRevokeAPIKey)

	protected.Post("/plans/purchase", s.handlePurchase)
	protected.Get("/usage", s.handleUsage)

	protected.Post("/stripe/create-checkout-session", s.handleCreateCheckout)
	protected.Get("/stripe/checkout-status/:session_id", s.handleCheckoutStatus)
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// handleError renders every error as {"detail": message}. Errors without a
// user-facing message are internal; their text is only shown outside
// production.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"detail": fe.Message})
	}

	status := apperr.Status(err)
	msg, ok := apperr.Message(err)
	if !ok {
		slog.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
		msg = msgInternal
		if !s.cfg.IsProduction() {
			msg = fmt.Sprintf("Error interno: %v", err)
		}
	}
	return c.Status(status).JSON(fiber.Map{"detail": msg})
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.BadRequest(msgInvalidBody)
	}
	return nil
}
