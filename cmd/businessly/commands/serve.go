package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/businessly/businessly/internal/entities"
	"github.com/businessly/businessly/internal/infrastructure"
	"github.com/businessly/businessly/internal/interfaces"
	apihttp "github.com/businessly/businessly/internal/interfaces/http"
	"github.com/businessly/businessly/internal/usecases"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and webhook receiver",
		Long: `Run the HTTP API and the Telegram webhook receiver.

Without REDIS_URL inbound messages are processed by an in-process worker pool.
With REDIS_URL they are queued in Redis; pass --embedded-worker=false when
separate "businessly worker" processes consume the queue.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			embedded, _ := cmd.Flags().GetBool("embedded-worker")
			return runServe(cmd, embedded)
		},
	}
	cmd.Flags().Bool("embedded-worker", true, "also consume the Redis queue in this process")
	return cmd
}

func runServe(cmd *cobra.Command, embeddedWorker bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Telegram.WebhookBaseURL == "" {
		a.log.Warn("WEBHOOK_BASE_URL is not set; bots cannot be activated")
	}

	var (
		dispatcher interfaces.Dispatcher
		orch       *usecases.InboundOrchestrator
		shutdown   []func(context.Context)
	)
	if a.cfg.Worker.RedisURL != "" {
		queue, err := infrastructure.NewAsynqQueue(a.cfg.Worker.RedisURL, a.cfg.Worker.JobTimeoutDuration())
		if err != nil {
			return err
		}
		shutdown = append(shutdown, func(context.Context) { _ = queue.Close() })
		dispatcher = queue
		orch = a.orchestrator(dispatcher)

		if embeddedWorker {
			worker, err := newAsynqWorker(a)
			if err != nil {
				return err
			}
			stopWorker := runBackground(ctx, func(ctx context.Context) {
				if err := worker.Run(ctx, func(ctx context.Context, evt entities.InboundEvent) { orch.Process(ctx, evt) }); err != nil {
					a.log.Error("asynq worker", slog.Any("error", err))
				}
			})
			shutdown = append(shutdown, func(context.Context) { stopWorker() })
		}
		a.log.Info("inbound events go through redis", slog.Bool("embedded_worker", embeddedWorker))
	} else {
		pool := infrastructure.NewWorkerPool(infrastructure.WorkerPoolConfig{
			Concurrency: a.cfg.Worker.Concurrency,
			QueueSize:   a.cfg.Worker.QueueSize,
			JobTimeout:  a.cfg.Worker.JobTimeoutDuration(),
		}, a.log)
		dispatcher = pool
		orch = a.orchestrator(dispatcher)
		pool.Start(func(ctx context.Context, evt entities.InboundEvent) { orch.Process(ctx, evt) })
		shutdown = append(shutdown, func(ctx context.Context) {
			if err := pool.Close(ctx); err != nil {
				a.log.Warn("worker pool", slog.Any("error", err))
			}
		})
	}

	middleware := apihttp.NewMiddleware(a.cfg.Auth.JWTSecret, a.cfg.Server.CORSOrigins, a.log)
	defer middleware.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	apihttp.SetupRoutes(r, apihttp.Deps{
		Orchestrator:  orch,
		Auth:          usecases.NewAuthUsecase(a.store.users, a.cfg.Auth.JWTSecret, a.cfg.Auth.JWTTTL()),
		Bots:          usecases.NewBotUsecase(a.store.bots, a.channel, a.log),
		Conversations: usecases.NewConversationUsecase(a.store.bots, a.store.conversations, a.store.messages, a.channel, a.log),
		Engine:        a.engine,
		Ping:          a.store.ping,
		Logger:        a.log,
	}, middleware)

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", slog.Any("error", err))
	}
	for _, fn := range shutdown {
		fn(shutdownCtx)
	}
	return serveErr
}

// runBackground runs fn on its own goroutine. The returned stop cancels fn's
// context and waits for fn to return.
func runBackground(ctx context.Context, fn func(ctx context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
