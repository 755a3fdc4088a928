package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/skip2/go-qrcode"

	"github.com/businessly/businessly/internal/entities"
	"github.com/businessly/businessly/internal/interfaces"
	"github.com/businessly/businessly/internal/logger"
	"github.com/businessly/businessly/internal/textutil"
)

const (
	MinTokenLength       = 40
	MaxBotNameLength     = 100
	MinDescriptionLength = 10

	qrCodeSize = 256
)

// ValidationError is returned for owner input that fails field rules.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type BotInput struct {
	Token               string
	Name                string
	BusinessDescription string
}

// BotUsecase manages the owner's bots and their webhook registration.
type BotUsecase struct {
	bots    interfaces.BotRepository
	channel interfaces.ChannelAdapter
	log     *slog.Logger
}

func NewBotUsecase(bots interfaces.BotRepository, channel interfaces.ChannelAdapter, log *slog.Logger) *BotUsecase {
	return &BotUsecase{
		bots:    bots,
		channel: channel,
		log:     logger.Component(log, "bots"),
	}
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < 1 || n > MaxBotNameLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("must be 1-%d characters", MaxBotNameLength)}
	}
	return nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) < MinDescriptionLength {
		return &ValidationError{Field: "business_description", Message: fmt.Sprintf("must be at least %d characters", MinDescriptionLength)}
	}
	return nil
}

// Create registers a bot for userID. The token is checked against the
// platform and the bot starts inactive.
func (uc *BotUsecase) Create(ctx context.Context, userID int64, in BotInput) (*entities.BotSummary, error) {
	token := strings.TrimSpace(in.Token)
	name := textutil.CleanText(in.Name)
	desc := textutil.CleanText(in.BusinessDescription)

	if utf8.RuneCountInString(token) < MinTokenLength {
		return nil, &ValidationError{Field: "token", Message: fmt.Sprintf("must be at least %d characters", MinTokenLength)}
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateDescription(desc); err != nil {
		return nil, err
	}

	exists, err := uc.bots.TokenExists(ctx, token)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, entities.ErrDuplicateToken
	}

	identity, err := uc.channel.ValidateToken(ctx, token)
	if err != nil {
		uc.log.Info("bot token rejected", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, entities.ErrInvalidToken
	}

	bot := &entities.Bot{
		UserID:              userID,
		Token:               token,
		TelegramBotID:       identity.ID,
		Username:            identity.Username,
		Name:                name,
		BusinessDescription: desc,
	}
	if err := uc.bots.Create(ctx, bot); err != nil {
		return nil, err
	}
	uc.log.Info("bot created", slog.Int64("bot_id", bot.ID), slog.String("bot_username", bot.Username))
	return &entities.BotSummary{Bot: *bot}, nil
}

func (uc *BotUsecase) List(ctx context.Context, userID int64) ([]entities.BotSummary, error) {
	bots, err := uc.bots.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bots == nil {
		bots = []entities.BotSummary{}
	}
	return bots, nil
}

func (uc *BotUsecase) owned(ctx context.Context, userID, botID int64) (*entities.Bot, error) {
	bot, err := uc.bots.GetForOwner(ctx, botID, userID)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, entities.ErrBotNotFound
	}
	return bot, nil
}

func (uc *BotUsecase) Get(ctx context.Context, userID, botID int64) (*entities.BotSummary, error) {
	bot, err := uc.owned(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	count, err := uc.bots.CountConversations(ctx, bot.ID)
	if err != nil {
		return nil, err
	}
	return &entities.BotSummary{Bot: *bot, ConversationsCount: count}, nil
}

// Update changes the fields that are set; nil leaves a field untouched.
func (uc *BotUsecase) Update(ctx context.Context, userID, botID int64, name, description *string) (*entities.BotSummary, error) {
	bot, err := uc.owned(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	if name != nil {
		bot.Name = textutil.CleanText(*name)
		if err := validateName(bot.Name); err != nil {
			return nil, err
		}
	}
	if description != nil {
		bot.BusinessDescription = textutil.CleanText(*description)
		if err := validateDescription(bot.BusinessDescription); err != nil {
			return nil, err
		}
	}
	if err := uc.bots.Update(ctx, bot); err != nil {
		return nil, err
	}
	return uc.Get(ctx, userID, botID)
}

// Toggle flips the bot between serving and stopped. Activation registers
// the webhook first and fails without changing state if that is not possible.
func (uc *BotUsecase) Toggle(ctx context.Context, userID, botID int64) (bool, error) {
	bot, err := uc.owned(ctx, userID, botID)
	if err != nil {
		return false, err
	}

	if bot.IsActive {
		if err := uc.channel.UnregisterWebhook(ctx, bot.Token); err != nil {
			uc.log.Warn("unregister webhook", slog.Int64("bot_id", bot.ID), slog.Any("error", err))
		}
	} else {
		if err := uc.channel.RegisterWebhook(ctx, bot.Token); err != nil {
			uc.log.Error("register webhook", slog.Int64("bot_id", bot.ID), slog.Any("error", err))
			if errors.Is(err, entities.ErrWebhookUnavailable) {
				return false, err
			}
			return false, fmt.Errorf("%w: %w", entities.ErrWebhookUnavailable, err)
		}
	}

	active := !bot.IsActive
	if err := uc.bots.SetActive(ctx, bot.ID, active); err != nil {
		return false, err
	}
	uc.log.Info("bot toggled", slog.Int64("bot_id", bot.ID), slog.Bool("is_active", active))
	return active, nil
}

func (uc *BotUsecase) Delete(ctx context.Context, userID, botID int64) error {
	bot, err := uc.owned(ctx, userID, botID)
	if err != nil {
		return err
	}
	if bot.IsActive {
		if err := uc.channel.UnregisterWebhook(ctx, bot.Token); err != nil {
			uc.log.Warn("unregister webhook", slog.Int64("bot_id", bot.ID), slog.Any("error", err))
		}
	}
	if err := uc.bots.Delete(ctx, bot.ID); err != nil {
		return err
	}
	uc.log.Info("bot deleted", slog.Int64("bot_id", bot.ID))
	return nil
}

// QRCode renders a PNG linking to the bot's Telegram page.
func (uc *BotUsecase) QRCode(ctx context.Context, userID, botID int64) ([]byte, error) {
	bot, err := uc.owned(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	if bot.Username == "" {
		return nil, entities.ErrBotUsernameUnknown
	}
	return qrcode.Encode("https://t.me/"+bot.Username, qrcode.Medium, qrCodeSize)
}
