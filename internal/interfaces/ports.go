package interfaces

import (
	"context"

	"github.com/businessly/businessly/internal/entities"
)

// ResponseEngine produces a candidate reply with a confidence score.
type ResponseEngine interface {
	Generate(ctx context.Context, req entities.GenerationRequest) (entities.Generation, error)
	CheckHealth(ctx context.Context) bool
}

// ChannelAdapter talks to the messaging platform on behalf of one bot token.
type ChannelAdapter interface {
	ValidateToken(ctx context.Context, token string) (*entities.BotIdentity, error)
	RegisterWebhook(ctx context.Context, token string) error
	UnregisterWebhook(ctx context.Context, token string) error
	SendMessage(ctx context.Context, token string, chatID int64, text string, replyTo int64) (*entities.Delivery, error)
	SendComposing(ctx context.Context, token string, chatID int64) error
}

// BotDirectory resolves the bot an inbound delivery was addressed to.
type BotDirectory interface {
	FindByToken(ctx context.Context, token string) (*entities.Bot, error)
}

type BotRepository interface {
	BotDirectory
	Create(ctx context.Context, bot *entities.Bot) error
	Get(ctx context.Context, id int64) (*entities.Bot, error)
	GetForOwner(ctx context.Context, id, userID int64) (*entities.Bot, error)
	ListByOwner(ctx context.Context, userID int64) ([]entities.BotSummary, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	Update(ctx context.Context, bot *entities.Bot) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
	CountConversations(ctx context.Context, botID int64) (int, error)
}

// ConversationStore owns conversation rows and their control mode.
type ConversationStore interface {
	// ResolveOrCreate returns the conversation for (botID, chatID), creating it
	// in automated mode when absent. The bool reports whether it was created.
	ResolveOrCreate(ctx context.Context, botID, chatID int64, p entities.Participant) (*entities.Conversation, bool, error)
	Get(ctx context.Context, id int64) (*entities.Conversation, error)
	GetControlMode(ctx context.Context, id int64) (entities.ControlMode, error)
	// TransitionControlMode sets to only if the current mode is from.
	TransitionControlMode(ctx context.Context, id int64, from, to entities.ControlMode) (bool, error)
	SetControlMode(ctx context.Context, id int64, mode entities.ControlMode) error
}

type ConversationRepository interface {
	ConversationStore
	GetForOwner(ctx context.Context, id, userID int64) (*entities.Conversation, error)
	ListForOwner(ctx context.Context, userID, botID int64) ([]entities.ConversationSummary, error)
}

// MessageLog is the append-only message history.
type MessageLog interface {
	Append(ctx context.Context, msg *entities.Message) error
	// Recent returns up to limit newest messages in chronological order.
	Recent(ctx context.Context, conversationID int64, limit int) ([]entities.Message, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByUsername(ctx context.Context, username string) (*entities.User, error)
}

// Dispatcher hands accepted events to background processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt entities.InboundEvent) error
}

// ConversationLocker serializes response decisions per conversation.
type ConversationLocker interface {
	Lock(ctx context.Context, conversationID int64) (unlock func(), err error)
}
