package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/ambermind/backend/internal/model/chat"
)

var ErrTokenRequired = errors.New("session token is required")

// Store persists conversation state per session token.
type Store interface {
	Load(ctx context.Context, token string) (chat.Session, bool, error)
	Save(ctx context.Context, token string, session chat.Session) error
}

type storedSession struct {
	session  chat.Session
	lastSeen time.Time
}

// MemoryStore keeps sessions in process memory and forgets those idle longer than ttl.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]storedSession
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewMemoryStore bootstraps the in-memory session store. A non-positive ttl disables expiry.
func NewMemoryStore(ttl time.Duration, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		sessions: make(map[string]storedSession),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Load returns a copy of the session stored under token.
func (s *MemoryStore) Load(_ context.Context, token string) (chat.Session, bool, error) {
	if token == "" {
		return chat.Session{}, false, ErrTokenRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[token]
	if !ok {
		return chat.Session{}, false, nil
	}
	if s.expired(stored) {
		delete(s.sessions, token)
		return chat.Session{}, false, nil
	}

	stored.lastSeen = s.now()
	s.sessions[token] = stored
	return stored.session.Clone(), true, nil
}

// Save replaces the session stored under token in one write.
func (s *MemoryStore) Save(_ context.Context, token string, session chat.Session) error {
	if token == "" {
		return ErrTokenRequired
	}

	s.mu.Lock()
	s.sessions[token] = storedSession{session: session.Clone(), lastSeen: s.now()}
	s.mu.Unlock()
	return nil
}

// Len reports how many sessions are held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops every expired session and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, stored := range s.sessions {
		if s.expired(stored) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Info("evicted idle sessions", zap.Int("count", removed), zap.Int("remaining", s.Len()))
			}
		}
	}
}

func (s *MemoryStore) expired(stored storedSession) bool {
	return s.ttl > 0 && s.now().Sub(stored.lastSeen) > s.ttl
}
