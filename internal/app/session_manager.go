package app

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// SessionManager keeps at most one live session per quiz id and refcounts
// transport attachments: the session is suspended and dropped when the last
// attachment releases it.
type SessionManager struct {
	store *QuizStore
	cfg   SessionConfig
	log   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*managedSession
}

type managedSession struct {
	session *Session
	refs    int
}

func NewSessionManager(store *QuizStore, cfg SessionConfig, log *zap.Logger) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionManager{
		store:    store,
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*managedSession),
	}
}

// Open attaches to the live session for quizID, loading and starting one if
// none exists. A terminated leftover is replaced by a fresh session.
func (m *SessionManager) Open(ctx context.Context, quizID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ms, ok := m.sessions[quizID]; ok {
		if ms.session.Phase() != PhaseTerminated {
			ms.refs++
			return ms.session, nil
		}
		delete(m.sessions, quizID)
	}

	session := NewSession(m.store, quizID, m.cfg, m.log)
	if err := session.Load(ctx); err != nil {
		return nil, err
	}
	session.Start()
	m.sessions[quizID] = &managedSession{session: session, refs: 1}
	return session, nil
}

// Release detaches one attachment. The last release suspends the session
// (final snapshot, timers stopped) and removes it from the registry.
func (m *SessionManager) Release(ctx context.Context, quizID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[quizID]
	if !ok {
		return
	}
	ms.refs--
	if ms.refs > 0 {
		return
	}
	ms.session.Close(ctx)
	delete(m.sessions, quizID)
}

// Evict force-closes any live session for quizID, regardless of attachments.
// Used when the quiz itself is deleted.
func (m *SessionManager) Evict(ctx context.Context, quizID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[quizID]
	if !ok {
		return
	}
	ms.session.Close(ctx)
	delete(m.sessions, quizID)
}
