package usecases

import (
	"encoding/json"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/businessly/businessly/internal/entities"
)

// ParseInboundEvent decodes a Telegram webhook body. It returns
// ErrMalformedUpdate when raw is not JSON, and ok=false for JSON that does
// not carry a text message from a chat. An empty requestID gets a fresh one.
func ParseInboundEvent(raw []byte, botToken, requestID string, now time.Time) (evt entities.InboundEvent, ok bool, err error) {
	if !json.Valid(raw) {
		return evt, false, entities.ErrMalformedUpdate
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		// Valid JSON of an unexpected shape is acknowledged and dropped.
		return evt, false, nil
	}
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return evt, false, nil
	}

	evt = entities.InboundEvent{
		BotToken:   botToken,
		ChatID:     msg.Chat.ID,
		MessageID:  int64(msg.MessageID),
		Text:       msg.Text,
		RequestID:  requestID,
		ReceivedAt: now,
	}
	if evt.RequestID == "" {
		evt.RequestID = uuid.NewString()
	}
	if msg.From != nil {
		evt.From = entities.Participant{
			UserID:    msg.From.ID,
			Username:  msg.From.UserName,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
		}
	}
	return evt, true, nil
}
