package infrastructure

import (
	"context"
	"sync"
)

// conversationSession is the exclusion slot for one conversation.
type conversationSession struct {
	slot chan struct{}
	refs int
}

// SessionManager serializes work per conversation inside one process.
// Sessions are dropped once nobody holds or waits for them.
type SessionManager struct {
	sessions map[int64]*conversationSession
	mu       sync.Mutex
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*conversationSession),
	}
}

// Lock waits for exclusive access to conversationID. The returned func
// releases it and is safe to call more than once.
func (sm *SessionManager) Lock(ctx context.Context, conversationID int64) (func(), error) {
	sm.mu.Lock()
	session, exists := sm.sessions[conversationID]
	if !exists {
		session = &conversationSession{slot: make(chan struct{}, 1)}
		sm.sessions[conversationID] = session
	}
	session.refs++
	sm.mu.Unlock()

	select {
	case session.slot <- struct{}{}:
	case <-ctx.Done():
		sm.release(conversationID, session)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-session.slot
			sm.release(conversationID, session)
		})
	}, nil
}

// Active is the number of conversations currently held or awaited.
func (sm *SessionManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

func (sm *SessionManager) release(conversationID int64, session *conversationSession) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	session.refs--
	if session.refs == 0 {
		delete(sm.sessions, conversationID)
	}
}
