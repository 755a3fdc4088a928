package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/businessly/businessly/internal/entities"
	"github.com/businessly/businessly/internal/logger"
	"github.com/businessly/businessly/internal/textutil"
)

const (
	WebhookPathPrefix = "/api/telegram/webhook/"

	telegramRequestTimeout   = 10 * time.Second
	telegramComposingTimeout = 5 * time.Second
	telegramMaxMessageLength = 4096
)

// TelegramClient is the outbound channel adapter. It holds no per-bot state
// besides the send throttle; every call builds a short-lived BotAPI for the
// token it is given.
type TelegramClient struct {
	apiEndpoint    string
	webhookBaseURL string
	httpClient     *http.Client
	throttle       *MessageRateLimiter
	logger         *slog.Logger
}

type TelegramConfig struct {
	// APIEndpoint is a format string taking the token and the method name.
	APIEndpoint    string
	WebhookBaseURL string
}

func NewTelegramClient(cfg TelegramConfig, throttle *MessageRateLimiter, log *slog.Logger) *TelegramClient {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	l := logger.Component(log, "telegram")
	_ = tgbotapi.SetLogger(&slogBotLogger{log: l})
	return &TelegramClient{
		apiEndpoint:    cfg.APIEndpoint,
		webhookBaseURL: strings.TrimRight(cfg.WebhookBaseURL, "/"),
		httpClient:     &http.Client{},
		throttle:       throttle,
		logger:         l,
	}
}

// WebhookURL is where the platform posts updates for token.
func (t *TelegramClient) WebhookURL(token string) string {
	return t.webhookBaseURL + WebhookPathPrefix + token
}

// ValidateToken asks the platform who the token belongs to.
func (t *TelegramClient) ValidateToken(ctx context.Context, token string) (*entities.BotIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, telegramRequestTimeout)
	defer cancel()

	me, err := t.bot(ctx, token).GetMe()
	if err != nil {
		return nil, redact(fmt.Errorf("%w: %w", entities.ErrInvalidToken, err), token)
	}
	return &entities.BotIdentity{
		ID:        strconv.FormatInt(me.ID, 10),
		Username:  me.UserName,
		FirstName: me.FirstName,
	}, nil
}

// RegisterWebhook points the bot's updates at this service. Only message
// updates are requested.
func (t *TelegramClient) RegisterWebhook(ctx context.Context, token string) error {
	if t.webhookBaseURL == "" {
		return entities.ErrWebhookUnavailable
	}
	wh, err := tgbotapi.NewWebhook(t.WebhookURL(token))
	if err != nil {
		return redact(fmt.Errorf("build webhook: %w", err), token)
	}
	wh.AllowedUpdates = []string{"message"}

	ctx, cancel := context.WithTimeout(ctx, telegramRequestTimeout)
	defer cancel()

	if _, err := t.bot(ctx, token).Request(wh); err != nil {
		return redact(fmt.Errorf("set webhook: %w", err), token)
	}
	return nil
}

func (t *TelegramClient) UnregisterWebhook(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, telegramRequestTimeout)
	defer cancel()

	if _, err := t.bot(ctx, token).Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return redact(fmt.Errorf("delete webhook: %w", err), token)
	}
	return nil
}

// SendMessage renders text to the platform's HTML subset and sends it.
// replyTo of zero sends a standalone message.
func (t *TelegramClient) SendMessage(ctx context.Context, token string, chatID int64, text string, replyTo int64) (*entities.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, telegramRequestTimeout)
	defer cancel()

	if t.throttle != nil {
		if err := t.throttle.Wait(ctx, token); err != nil {
			return nil, fmt.Errorf("%w: throttled: %w", entities.ErrDeliveryFailed, err)
		}
	}

	// The limit applies to the text after entity parsing, so cut before rendering.
	msg := tgbotapi.NewMessage(chatID, textutil.RenderTelegramHTML(textutil.TruncateUTF16(text, telegramMaxMessageLength)))
	msg.ParseMode = tgbotapi.ModeHTML
	if replyTo != 0 {
		msg.ReplyToMessageID = int(replyTo)
	}

	sent, err := t.bot(ctx, token).Send(msg)
	if err != nil {
		return nil, redact(fmt.Errorf("%w: %w", entities.ErrDeliveryFailed, err), token)
	}
	return &entities.Delivery{MessageID: int64(sent.MessageID)}, nil
}

// SendComposing shows the typing indicator.
func (t *TelegramClient) SendComposing(ctx context.Context, token string, chatID int64) error {
	ctx, cancel := context.WithTimeout(ctx, telegramComposingTimeout)
	defer cancel()

	if _, err := t.bot(ctx, token).Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return redact(fmt.Errorf("chat action: %w", err), token)
	}
	return nil
}

func (t *TelegramClient) bot(ctx context.Context, token string) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: contextClient{ctx: ctx, client: t.httpClient},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(t.apiEndpoint)
	return bot
}

// contextClient binds every request the bot library makes to ctx.
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// redactedError hides the bot token, which is part of every API URL.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if err == nil || token == "" {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), err: err}
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
