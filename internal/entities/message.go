package entities

import "time"

// Origin tags who produced a message.
type Origin string

const (
	OriginCustomer  Origin = "customer"
	OriginAssistant Origin = "assistant"
	OriginOwner     Origin = "owner"
)

// Message is an append-only conversation log entry.
type Message struct {
	ID                int64     `json:"id"`
	ConversationID    int64     `json:"conversation_id"`
	Origin            Origin    `json:"role"`
	Content           string    `json:"content"`
	TelegramMessageID *int64    `json:"telegram_message_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// InboundEvent is a customer text message accepted from a webhook delivery.
// It is the unit of work handed to the dispatcher, so it must stay JSON friendly.
type InboundEvent struct {
	BotToken   string      `json:"bot_token"`
	ChatID     int64       `json:"chat_id"`
	MessageID  int64       `json:"message_id"`
	Text       string      `json:"text"`
	From       Participant `json:"from"`
	RequestID  string      `json:"request_id"`
	ReceivedAt time.Time   `json:"received_at"`
}

// Delivery is the platform receipt for a sent message.
type Delivery struct {
	MessageID int64
}

// GenerationRequest is the input of one automated reply attempt.
type GenerationRequest struct {
	CustomerText    string
	BusinessProfile string
	History         []Message
}

// Generation is a candidate reply and how confident the engine is in it.
type Generation struct {
	Reply      string
	Confidence float64
}
