package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/businessly/businessly/internal/entities"
	"github.com/businessly/businessly/internal/logger"
)

const (
	InboundTaskType = "inbound:process"
	inboundQueue    = "inbound"
)

// AsynqQueue dispatches inbound events through Redis so the HTTP edge and the
// workers can run as separate processes.
type AsynqQueue struct {
	client     *asynq.Client
	jobTimeout time.Duration
}

func NewAsynqQueue(redisURL string, jobTimeout time.Duration) (*AsynqQueue, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	return &AsynqQueue{client: asynq.NewClient(opt), jobTimeout: jobTimeout}, nil
}

// NewInboundTask wraps evt into a task. Events are never retried: a
// redelivery could answer the same customer twice.
func NewInboundTask(evt entities.InboundEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(InboundTaskType, payload, asynq.MaxRetry(0), asynq.Queue(inboundQueue)), nil
}

func (q *AsynqQueue) Dispatch(ctx context.Context, evt entities.InboundEvent) error {
	task, err := NewInboundTask(evt)
	if err != nil {
		return err
	}
	opts := []asynq.Option{}
	if q.jobTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.jobTimeout))
	}
	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("asynq: enqueue: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	return q.client.Close()
}

// AsynqWorker consumes inbound tasks.
type AsynqWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

func NewAsynqWorker(redisURL string, concurrency int, log *slog.Logger) (*AsynqWorker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	l := logger.Component(log, "asynq")
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{inboundQueue: 1},
		Logger:      &asynqLogger{log: l},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			l.Error("task failed", slog.String("type", task.Type()), slog.Any("error", err))
		}),
	})
	return &AsynqWorker{server: srv, mux: asynq.NewServeMux(), logger: l}, nil
}

// HandleInbound decodes the task payload and hands it to handler.
func HandleInbound(handler JobHandler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var evt entities.InboundEvent
		if err := json.Unmarshal(t.Payload(), &evt); err != nil {
			return fmt.Errorf("decode inbound task: %v: %w", err, asynq.SkipRetry)
		}
		handler(ctx, evt)
		return nil
	}
}

// Run blocks until ctx is cancelled, then shuts the server down.
func (w *AsynqWorker) Run(ctx context.Context, handler JobHandler) error {
	w.mux.HandleFunc(InboundTaskType, HandleInbound(handler))
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	w.logger.Info("asynq worker started")
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

type asynqLogger struct {
	log *slog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
