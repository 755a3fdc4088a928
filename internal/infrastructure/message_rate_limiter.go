package infrastructure

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MessageRateLimiter throttles outbound sends per bot so a busy bot stays
// under the platform flood limits.
type MessageRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	stopOnce sync.Once
	stop     chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewMessageRateLimiter allows perSecond sends with the given burst per key.
func NewMessageRateLimiter(perSecond float64, burst int) *MessageRateLimiter {
	rl := &MessageRateLimiter{
		buckets: make(map[string]*limiterEntry),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		stop:    make(chan struct{}),
	}

	go rl.cleanup(5 * time.Minute)

	return rl
}

// Wait blocks until key may send or ctx is done.
func (rl *MessageRateLimiter) Wait(ctx context.Context, key string) error {
	return rl.limiter(key).Wait(ctx)
}

// Allow consumes a token for key without waiting.
func (rl *MessageRateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// Reset drops the state for key.
func (rl *MessageRateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

func (rl *MessageRateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *MessageRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"active_bots": len(rl.buckets),
		"rate":        float64(rl.rate),
		"burst":       rl.burst,
	}
}

func (rl *MessageRateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.buckets[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.buckets[key] = entry
	}
	entry.lastUsed = time.Now()
	return entry.limiter
}

func (rl *MessageRateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

func (rl *MessageRateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.buckets {
		if now.Sub(entry.lastUsed) > rl.idleTTL {
			delete(rl.buckets, key)
		}
	}
}
