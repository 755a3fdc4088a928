package entities

import "time"

// Bot is a Telegram bot account attached to an owner's assistant.
type Bot struct {
	ID                  int64     `json:"id"`
	UserID              int64     `json:"user_id"`
	Token               string    `json:"-"`
	TelegramBotID       string    `json:"telegram_bot_id"`
	Username            string    `json:"bot_username"`
	Name                string    `json:"name"`
	BusinessDescription string    `json:"business_description"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// BotSummary is a Bot together with the number of conversations it owns.
type BotSummary struct {
	Bot
	ConversationsCount int `json:"conversations_count"`
}

// BotIdentity is what the platform reports for a live bot token.
type BotIdentity struct {
	ID        string
	Username  string
	FirstName string
}
