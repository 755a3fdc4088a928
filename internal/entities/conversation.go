package entities

import "time"

// ControlMode says who answers a conversation: the assistant or the owner.
type ControlMode string

const (
	ControlAutomated ControlMode = "automated"
	ControlManual    ControlMode = "manual"
)

func (m ControlMode) Valid() bool {
	return m == ControlAutomated || m == ControlManual
}

// Participant is the remote chat user as last seen by the bot.
type Participant struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Conversation is keyed by (BotID, ChatID).
type Conversation struct {
	ID          int64       `json:"id"`
	BotID       int64       `json:"bot_id"`
	ChatID      int64       `json:"telegram_chat_id"`
	Participant Participant `json:"participant"`
	ControlMode ControlMode `json:"control_mode"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsAutomated reports whether the assistant may answer.
func (c *Conversation) IsAutomated() bool {
	return c.ControlMode == ControlAutomated
}

// ConversationSummary is a list row for the owner dashboard.
type ConversationSummary struct {
	Conversation
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}
