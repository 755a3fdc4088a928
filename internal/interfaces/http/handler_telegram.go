package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/businessly/businessly/internal/entities"
)

// TelegramWebhook acknowledges every JSON delivery immediately; processing
// happens off the request path.
func (h *Handler) TelegramWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON"})
		return
	}

	ack, err := h.orchestrator.Handle(c.Request.Context(), raw, c.Param("token"))
	if err != nil {
		if errors.Is(err, entities.ErrMalformedUpdate) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON"})
			return
		}
		h.log.Error("webhook", slog.Any("error", err))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	c.JSON(http.StatusOK, ack)
}
