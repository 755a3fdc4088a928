package infrastructure

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultLeaseLifetime     = 30 * time.Minute
	DefaultLeaseRefreshAhead = time.Minute
	leaseAcquireTimeout      = 30 * time.Second
)

// LeaseAcquirer fetches a fresh access token from the upstream auth endpoint.
type LeaseAcquirer func(ctx context.Context) (string, error)

// CredentialLease caches a short-lived access token and refreshes it shortly
// before it expires. Concurrent refreshes collapse into one upstream call.
type CredentialLease struct {
	acquire      LeaseAcquirer
	lifetime     time.Duration
	refreshAhead time.Duration
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

type LeaseOption func(*CredentialLease)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LeaseOption {
	return func(l *CredentialLease) { l.now = now }
}

func WithLifetime(lifetime time.Duration) LeaseOption {
	return func(l *CredentialLease) { l.lifetime = lifetime }
}

func NewCredentialLease(acquire LeaseAcquirer, opts ...LeaseOption) *CredentialLease {
	l := &CredentialLease{
		acquire:      acquire,
		lifetime:     DefaultLeaseLifetime,
		refreshAhead: DefaultLeaseRefreshAhead,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Token returns a valid access token, acquiring a new one when the cached
// one is missing or within the refresh window.
func (l *CredentialLease) Token(ctx context.Context) (string, error) {
	if token, ok := l.cached(); ok {
		return token, nil
	}

	v, err, _ := l.group.Do("lease", func() (any, error) {
		if token, ok := l.cached(); ok {
			return token, nil
		}

		acquireCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseAcquireTimeout)
		defer cancel()

		issuedAt := l.now()
		token, err := l.acquire(acquireCtx)
		if err != nil {
			return "", err
		}
		if token == "" {
			return "", errors.New("credential lease: empty access token")
		}

		l.mu.Lock()
		l.token = token
		l.expiresAt = issuedAt.Add(l.lifetime)
		l.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next call re-acquires.
func (l *CredentialLease) Invalidate() {
	l.mu.Lock()
	l.token = ""
	l.expiresAt = time.Time{}
	l.mu.Unlock()
}

// ExpiresAt is zero when no token is cached.
func (l *CredentialLease) ExpiresAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expiresAt
}

func (l *CredentialLease) cached() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token == "" {
		return "", false
	}
	if !l.now().Before(l.expiresAt.Add(-l.refreshAhead)) {
		return "", false
	}
	return l.token, true
}
