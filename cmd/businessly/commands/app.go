package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/businessly/businessly/internal/config"
	"github.com/businessly/businessly/internal/infrastructure"
	"github.com/businessly/businessly/internal/interfaces"
	"github.com/businessly/businessly/internal/logger"
	"github.com/businessly/businessly/internal/repository"
	"github.com/businessly/businessly/internal/repository/sqlite"
	"github.com/businessly/businessly/internal/usecases"
)

const (
	outboundPerSecond = 30
	outboundBurst     = 30
	redisLockTTL      = 2 * time.Minute
)

// store groups the repositories of whichever database driver is configured.
type store struct {
	users         interfaces.UserRepository
	bots          interfaces.BotRepository
	conversations interfaces.ConversationRepository
	messages      interfaces.MessageLog
	ping          func(ctx context.Context) error
	close         func()
}

// app holds the components shared by serve and worker.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	store    *store
	throttle *infrastructure.MessageRateLimiter
	channel  *infrastructure.TelegramClient
	engine   *infrastructure.GigaChatClient
	redis    *redis.Client
	locker   interfaces.ConversationLocker
}

func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(log)
	return cfg, log, nil
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if a.store, err = openStore(ctx, cfg.Database, log); err != nil {
		return nil, err
	}

	a.throttle = infrastructure.NewMessageRateLimiter(outboundPerSecond, outboundBurst)
	a.channel = infrastructure.NewTelegramClient(infrastructure.TelegramConfig{
		APIEndpoint:    cfg.Telegram.APIEndpoint,
		WebhookBaseURL: cfg.Telegram.WebhookBaseURL,
	}, a.throttle, log)
	a.engine = newEngine(cfg, log)

	if cfg.Worker.RedisURL != "" {
		if a.redis, err = infrastructure.NewRedisClient(cfg.Worker.RedisURL); err != nil {
			a.Close()
			return nil, err
		}
		a.locker = infrastructure.NewRedisLocker(a.redis, redisLockTTL, log)
	} else {
		a.locker = infrastructure.NewSessionManager()
	}
	return a, nil
}

func newEngine(cfg config.Config, log *slog.Logger) *infrastructure.GigaChatClient {
	return infrastructure.NewGigaChatClient(infrastructure.GigaChatConfig{
		AuthKey:            cfg.GigaChat.AuthKey,
		Scope:              cfg.GigaChat.Scope,
		OAuthURL:           cfg.GigaChat.OAuthURL,
		APIURL:             cfg.GigaChat.APIURL,
		Model:              cfg.GigaChat.Model,
		InsecureSkipVerify: cfg.GigaChat.InsecureSkipVerify,
	}, log)
}

func openStore(ctx context.Context, db config.DatabaseConfig, log *slog.Logger) (*store, error) {
	switch db.Driver {
	case config.DriverPostgres:
		pg, err := infrastructure.NewPostgresClient(ctx, db.URL)
		if err != nil {
			return nil, err
		}
		log.Info("connected to postgres")
		return &store{
			users:         repository.NewUserRepository(pg.Pool),
			bots:          repository.NewBotRepository(pg.Pool),
			conversations: repository.NewConversationRepository(pg.Pool),
			messages:      repository.NewMessageRepository(pg.Pool),
			ping:          pg.Ping,
			close:         pg.Close,
		}, nil
	case config.DriverSQLite:
		sdb, err := infrastructure.OpenSQLite(ctx, db.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("opened sqlite database", slog.String("path", db.SQLitePath))
		return &store{
			users:         sqlite.NewUserRepository(sdb),
			bots:          sqlite.NewBotRepository(sdb),
			conversations: sqlite.NewConversationRepository(sdb),
			messages:      sqlite.NewMessageRepository(sdb),
			ping:          sdb.PingContext,
			close:         func() { _ = sdb.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", db.Driver)
}

// orchestrator builds the inbound pipeline around dispatcher.
func (a *app) orchestrator(dispatcher interfaces.Dispatcher) *usecases.InboundOrchestrator {
	return usecases.NewInboundOrchestrator(usecases.OrchestratorDeps{
		Bots:          a.store.bots,
		Conversations: a.store.conversations,
		Messages:      a.store.messages,
		Channel:       a.channel,
		Engine:        a.engine,
		Dispatcher:    dispatcher,
		Locker:        a.locker,
		Logger:        a.log,
	})
}

func (a *app) Close() {
	if a.throttle != nil {
		a.throttle.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			a.log.Warn("close redis", slog.Any("error", err))
		}
	}
	if a.store != nil {
		a.store.close()
	}
}

func newAsynqWorker(a *app) (*infrastructure.AsynqWorker, error) {
	return infrastructure.NewAsynqWorker(a.cfg.Worker.RedisURL, a.cfg.Worker.Concurrency, a.log)
}
