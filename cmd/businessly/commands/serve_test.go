package commands

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunBackgroundStopWaits(t *testing.T) {
	var finished atomic.Bool
	stop := runBackground(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		// Stands in for a worker draining in-flight tasks.
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	stop()
	assert.True(t, finished.Load())
}

func TestRunBackgroundFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	stop := runBackground(parent, func(ctx context.Context) {
		<-ctx.Done()
		close(exited)
	})

	cancel()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("background func did not observe parent cancellation")
	}
	stop()
}
