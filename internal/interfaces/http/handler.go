package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/businessly/businessly/internal/entities"
	"github.com/businessly/businessly/internal/infrastructure"
	"github.com/businessly/businessly/internal/interfaces"
	"github.com/businessly/businessly/internal/logger"
	"github.com/businessly/businessly/internal/usecases"
)

const (
	maxRequestBytes = 1 << 20
	healthTimeout   = 5 * time.Second
	version         = "1.0.0"
)

// Deps are the collaborators the HTTP surface is built from. Ping checks the
// primary store. UserRate and UserBurst bound owner API calls per user and
// default to 5/s with a burst of 10.
type Deps struct {
	Orchestrator  *usecases.InboundOrchestrator
	Auth          *usecases.AuthUsecase
	Bots          *usecases.BotUsecase
	Conversations *usecases.ConversationUsecase
	Engine        interfaces.ResponseEngine
	Ping          func(ctx context.Context) error
	UserRate      rate.Limit
	UserBurst     int
	Logger        *slog.Logger
}

type Handler struct {
	orchestrator  *usecases.InboundOrchestrator
	auth          *usecases.AuthUsecase
	bots          *usecases.BotUsecase
	conversations *usecases.ConversationUsecase
	engine        interfaces.ResponseEngine
	ping          func(ctx context.Context) error
	log           *slog.Logger
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		orchestrator:  deps.Orchestrator,
		auth:          deps.Auth,
		bots:          deps.Bots,
		conversations: deps.Conversations,
		engine:        deps.Engine,
		ping:          deps.Ping,
		log:           logger.Component(deps.Logger, "http"),
	}
}

func SetupRoutes(r *gin.Engine, deps Deps, middleware *Middleware) {
	h := NewHandler(deps)

	r.Use(middleware.RequestLogger())
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(maxRequestBytes))
	r.Use(middleware.CORSMiddleware())

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	// Telegram delivers here; the token in the path selects the bot.
	r.POST(infrastructure.WebhookPathPrefix+":token", h.TelegramWebhook)

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
	}

	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	userRate, userBurst := deps.UserRate, deps.UserBurst
	if userRate <= 0 || userBurst <= 0 {
		userRate, userBurst = 5, 10
	}
	api.Use(middleware.RateLimitPerUser(userRate, userBurst))
	{
		bots := api.Group("/bots")
		bots.POST("", h.CreateBot)
		bots.GET("", h.ListBots)
		bots.GET("/:id", h.GetBot)
		bots.PUT("/:id", h.UpdateBot)
		bots.PUT("/:id/toggle", h.ToggleBot)
		bots.DELETE("/:id", h.DeleteBot)
		bots.GET("/:id/qr", h.BotQRCode)

		convs := api.Group("/conversations")
		convs.GET("", h.ListConversations)
		convs.GET("/:id", h.GetConversation)
		convs.GET("/:id/messages", h.GetMessages)
		convs.POST("/:id/messages", h.SendMessage)
		convs.PUT("/:id/control", h.SetControlMode)
	}
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"name": "Businessly API", "version": version, "status": "running"})
}

// Health reports 503 when the store is down and "degraded" when only the
// AI engine is unreachable.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	body := gin.H{"status": "healthy", "database": "ok", "gigachat": "ok"}
	if h.ping != nil {
		if err := h.ping(ctx); err != nil {
			h.log.Error("health: store ping", slog.Any("error", err))
			body["status"] = "unhealthy"
			body["database"] = "unavailable"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	if h.engine != nil && !h.engine.CheckHealth(ctx) {
		body["status"] = "degraded"
		body["gigachat"] = "unavailable"
	}
	c.JSON(http.StatusOK, body)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidUsername(req.Username) || len(req.Password) < MinPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username or password (min 6 chars)"})
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "registered", "user": user})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "token_type": "bearer"})
}

// respondError maps domain errors onto status codes and the {"error": ...} body.
func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *usecases.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, entities.ErrDuplicateToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "This bot token is already registered"})
	case errors.Is(err, entities.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot token. Please check the token from BotFather."})
	case errors.Is(err, entities.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message content is empty"})
	case errors.Is(err, entities.ErrInvalidControlMode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "control_mode must be automated or manual"})
	case errors.Is(err, entities.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, entities.ErrBotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
	case errors.Is(err, entities.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case errors.Is(err, entities.ErrBotUsernameUnknown):
		c.JSON(http.StatusNotFound, gin.H{"error": "Bot username is unknown"})
	case errors.Is(err, entities.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
	case errors.Is(err, entities.ErrWebhookUnavailable):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set webhook. Check WEBHOOK_BASE_URL configuration."})
	case errors.Is(err, entities.ErrDeliveryFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message to Telegram"})
	default:
		h.log.Error("request failed", slog.String("route", c.FullPath()), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
