package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/businessly/businessly/internal/usecases"
)

type createBotRequest struct {
	Token               string `json:"token"`
	Name                string `json:"name"`
	BusinessDescription string `json:"business_description"`
}

type updateBotRequest struct {
	Name                *string `json:"name"`
	BusinessDescription *string `json:"business_description"`
}

func (h *Handler) CreateBot(c *gin.Context) {
	var req createBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	bot, err := h.bots.Create(c.Request.Context(), getUserID(c), usecases.BotInput{
		Token:               req.Token,
		Name:                req.Name,
		BusinessDescription: req.BusinessDescription,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (h *Handler) ListBots(c *gin.Context) {
	bots, err := h.bots.List(c.Request.Context(), getUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bots)
}

// botID reads the :id path parameter, answering 400 itself when it is bad.
func botID(c *gin.Context) (int64, bool) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot id"})
	}
	return id, ok
}

func (h *Handler) GetBot(c *gin.Context) {
	id, ok := botID(c)
	if !ok {
		return
	}
	bot, err := h.bots.Get(c.Request.Context(), getUserID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (h *Handler) UpdateBot(c *gin.Context) {
	id, ok := botID(c)
	if !ok {
		return
	}
	var req updateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	bot, err := h.bots.Update(c.Request.Context(), getUserID(c), id, req.Name, req.BusinessDescription)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (h *Handler) ToggleBot(c *gin.Context) {
	id, ok := botID(c)
	if !ok {
		return
	}
	active, err := h.bots.Toggle(c.Request.Context(), getUserID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_active": active})
}

func (h *Handler) DeleteBot(c *gin.Context) {
	id, ok := botID(c)
	if !ok {
		return
	}
	if err := h.bots.Delete(c.Request.Context(), getUserID(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// BotQRCode returns a PNG that opens the bot in Telegram.
func (h *Handler) BotQRCode(c *gin.Context) {
	id, ok := botID(c)
	if !ok {
		return
	}
	png, err := h.bots.QRCode(c.Request.Context(), getUserID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
