package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/businessly/businessly/internal/entities"
	"github.com/businessly/businessly/internal/logger"
)

var ErrDispatcherClosed = errors.New("dispatcher closed")

// JobHandler processes one accepted inbound event.
type JobHandler func(ctx context.Context, evt entities.InboundEvent)

type WorkerPoolConfig struct {
	Concurrency int
	QueueSize   int
	JobTimeout  time.Duration
}

// WorkerPool runs inbound events on a fixed set of goroutines fed by a
// bounded queue. Dispatch never waits for processing: when the queue is full
// the event runs on its own goroutine instead of being dropped.
type WorkerPool struct {
	cfg     WorkerPoolConfig
	jobs    chan entities.InboundEvent
	handler JobHandler
	logger  *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

func NewWorkerPool(cfg WorkerPoolConfig, log *slog.Logger) *WorkerPool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 3 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		cfg:     cfg,
		jobs:    make(chan entities.InboundEvent, cfg.QueueSize),
		logger:  logger.Component(log, "dispatcher"),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. It must be called once before Dispatch.
func (p *WorkerPool) Start(handler JobHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.handler = handler
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("worker pool started", slog.Int("concurrency", p.cfg.Concurrency), slog.Int("queue_size", p.cfg.QueueSize))
}

func (p *WorkerPool) Dispatch(_ context.Context, evt entities.InboundEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrDispatcherClosed
	}
	if !p.started {
		return errors.New("dispatcher not started")
	}

	select {
	case p.jobs <- evt:
	default:
		p.logger.Warn("queue full, running event detached", slog.String("request_id", evt.RequestID))
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(evt)
		}()
	}
	return nil
}

// Close stops intake and waits for queued and running events until ctx is
// done, after which in-flight work is cancelled.
func (p *WorkerPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("worker pool drain: %w", ctx.Err())
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for evt := range p.jobs {
		p.run(evt)
	}
}

func (p *WorkerPool) run(evt entities.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event processing panicked",
				slog.String("request_id", evt.RequestID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	ctx, cancel := context.WithTimeout(p.baseCtx, p.cfg.JobTimeout)
	defer cancel()
	p.handler(ctx, evt)
}
