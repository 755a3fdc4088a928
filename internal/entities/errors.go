package entities

import "errors"

var (
	ErrBotNotFound          = errors.New("bot not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrDuplicateToken       = errors.New("this bot token is already registered")
	ErrInvalidToken         = errors.New("invalid bot token")
	ErrWebhookUnavailable   = errors.New("webhook base url is not configured")
	ErrDeliveryFailed       = errors.New("message delivery failed")
	ErrEmptyMessage         = errors.New("message content is empty")
	ErrInvalidControlMode   = errors.New("invalid control mode")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUsernameTaken        = errors.New("username already exists")
	ErrMalformedUpdate      = errors.New("malformed update payload")
	ErrBotUsernameUnknown   = errors.New("bot username is unknown")
)
