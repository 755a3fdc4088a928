package infrastructure

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/businessly/businessly/internal/entities"
)

func TestWorkerPoolProcessesEvents(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{Concurrency: 3, QueueSize: 10}, nil)

	var mu sync.Mutex
	seen := map[string]bool{}
	pool.Start(func(ctx context.Context, evt entities.InboundEvent) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		mu.Lock()
		seen[evt.RequestID] = true
		mu.Unlock()
	})

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, pool.Dispatch(context.Background(), entities.InboundEvent{RequestID: id}))
	}
	require.NoError(t, pool.Close(context.Background()))

	assert.Len(t, seen, 4)
	assert.ErrorIs(t, pool.Dispatch(context.Background(), entities.InboundEvent{}), ErrDispatcherClosed)
}

func TestWorkerPoolDispatchDoesNotBlockWhenFull(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{Concurrency: 1, QueueSize: 0}, nil)

	release := make(chan struct{})
	var done int32
	pool.Start(func(ctx context.Context, evt entities.InboundEvent) {
		<-release
		atomic.AddInt32(&done, 1)
	})

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Dispatch(context.Background(), entities.InboundEvent{}))
	}
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	require.NoError(t, pool.Close(context.Background()))
	assert.EqualValues(t, 5, atomic.LoadInt32(&done))
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{Concurrency: 1, QueueSize: 4}, nil)

	var handled int32
	pool.Start(func(ctx context.Context, evt entities.InboundEvent) {
		if evt.RequestID == "boom" {
			panic("boom")
		}
		atomic.AddInt32(&handled, 1)
	})

	require.NoError(t, pool.Dispatch(context.Background(), entities.InboundEvent{RequestID: "boom"}))
	require.NoError(t, pool.Dispatch(context.Background(), entities.InboundEvent{RequestID: "ok"}))
	require.NoError(t, pool.Close(context.Background()))

	assert.EqualValues(t, 1, atomic.LoadInt32(&handled))
}

func TestWorkerPoolCloseDeadlineCancelsWork(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{Concurrency: 1, QueueSize: 1}, nil)
	pool.Start(func(ctx context.Context, evt entities.InboundEvent) {
		<-ctx.Done()
	})
	require.NoError(t, pool.Dispatch(context.Background(), entities.InboundEvent{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, pool.Close(ctx))
}

func TestWorkerPoolRequiresStart(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{}, nil)
	require.Error(t, pool.Dispatch(context.Background(), entities.InboundEvent{}))
}
