package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/businessly/businessly/internal/entities"
	"github.com/businessly/businessly/internal/interfaces"
	"github.com/businessly/businessly/internal/logger"
	"github.com/businessly/businessly/internal/textutil"
)

const (
	PreviewLength       = 50
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

// MessagePage is a conversation's recent log with its current mode.
type MessagePage struct {
	ConversationID int64                `json:"conversation_id"`
	ControlMode    entities.ControlMode `json:"control_mode"`
	Messages       []entities.Message   `json:"messages"`
}

// ConversationUsecase is the owner's view of conversations: reading them,
// answering by hand, and switching who is in control.
type ConversationUsecase struct {
	bots          interfaces.BotRepository
	conversations interfaces.ConversationRepository
	messages      interfaces.MessageLog
	channel       interfaces.ChannelAdapter
	log           *slog.Logger
}

func NewConversationUsecase(
	bots interfaces.BotRepository,
	conversations interfaces.ConversationRepository,
	messages interfaces.MessageLog,
	channel interfaces.ChannelAdapter,
	log *slog.Logger,
) *ConversationUsecase {
	return &ConversationUsecase{
		bots:          bots,
		conversations: conversations,
		messages:      messages,
		channel:       channel,
		log:           logger.Component(log, "conversations"),
	}
}

// List returns the owner's conversations, newest activity first. botID 0
// means every bot.
func (uc *ConversationUsecase) List(ctx context.Context, userID, botID int64) ([]entities.ConversationSummary, error) {
	list, err := uc.conversations.ListForOwner(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].LastMessage = textutil.Preview(list[i].LastMessage, PreviewLength)
	}
	if list == nil {
		list = []entities.ConversationSummary{}
	}
	return list, nil
}

func (uc *ConversationUsecase) Get(ctx context.Context, userID, convID int64) (*entities.Conversation, error) {
	conv, err := uc.conversations.GetForOwner(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, entities.ErrConversationNotFound
	}
	return conv, nil
}

// Messages returns up to limit newest messages in chronological order.
func (uc *ConversationUsecase) Messages(ctx context.Context, userID, convID int64, limit int) (*MessagePage, error) {
	conv, err := uc.Get(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}
	msgs, err := uc.messages.Recent(ctx, conv.ID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []entities.Message{}
	}
	return &MessagePage{ConversationID: conv.ID, ControlMode: conv.ControlMode, Messages: msgs}, nil
}

// SendOwnerMessage delivers an owner reply and records it once the platform
// has accepted it.
func (uc *ConversationUsecase) SendOwnerMessage(ctx context.Context, userID, convID int64, content string) (*entities.Message, error) {
	conv, err := uc.Get(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	// Rendering to Telegram HTML happens in the channel adapter.
	text := strings.TrimSpace(textutil.SanitizeString(content))
	if text == "" {
		return nil, entities.ErrEmptyMessage
	}

	bot, err := uc.bots.Get(ctx, conv.BotID)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, entities.ErrBotNotFound
	}

	delivery, err := uc.channel.SendMessage(ctx, bot.Token, conv.ChatID, text, 0)
	if err != nil {
		uc.log.Warn("owner message not delivered", slog.Int64("conversation_id", conv.ID), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", entities.ErrDeliveryFailed, err)
	}

	msg := &entities.Message{
		ConversationID: conv.ID,
		Origin:         entities.OriginOwner,
		Content:        text,
	}
	if delivery != nil {
		id := delivery.MessageID
		msg.TelegramMessageID = &id
	}
	if err := uc.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SetControlMode is the owner override; it may move either way.
func (uc *ConversationUsecase) SetControlMode(ctx context.Context, userID, convID int64, mode entities.ControlMode) (entities.ControlMode, error) {
	if !mode.Valid() {
		return "", entities.ErrInvalidControlMode
	}
	conv, err := uc.Get(ctx, userID, convID)
	if err != nil {
		return "", err
	}
	if err := uc.conversations.SetControlMode(ctx, conv.ID, mode); err != nil {
		return "", err
	}
	uc.log.Info("control mode set", slog.Int64("conversation_id", conv.ID), slog.String("control_mode", string(mode)))
	return mode, nil
}
