package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/businessly/businessly/internal/entities"
)

type sendMessageRequest struct {
	Content string `json:"content"`
}

type controlRequest struct {
	ControlMode entities.ControlMode `json:"control_mode"`
}

func conversationID(c *gin.Context) (int64, bool) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
	}
	return id, ok
}

func (h *Handler) ListConversations(c *gin.Context) {
	var botID int64
	if raw := c.Query("bot_id"); raw != "" {
		id, ok := parseID(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot_id"})
			return
		}
		botID = id
	}
	list, err := h.conversations.List(c.Request.Context(), getUserID(c), botID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetConversation(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	conv, err := h.conversations.Get(c.Request.Context(), getUserID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) GetMessages(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}
	page, err := h.conversations.Messages(c.Request.Context(), getUserID(c), id, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SendMessage is the owner replying by hand.
func (h *Handler) SendMessage(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	msg, err := h.conversations.SendOwnerMessage(c.Request.Context(), getUserID(c), id, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) SetControlMode(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req controlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	mode, err := h.conversations.SetControlMode(c.Request.Context(), getUserID(c), id, req.ControlMode)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"control_mode": mode})
}
