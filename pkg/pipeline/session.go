package pipeline

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	defaultSessionTTL   = 30 * time.Minute
	defaultHistoryLimit = 10
)

// Session holds one conversation's history. Turns within a session run one at a time.
type Session struct {
	ID string

	turn    sync.Mutex
	mu      sync.Mutex
	history []ConversationMessage
	limit   int
}

// History returns a copy of the recent messages, oldest first.
func (s *Session) History() []ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationMessage, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) append(msgs ...ConversationMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
	if over := len(s.history) - s.limit; over > 0 {
		s.history = append([]ConversationMessage(nil), s.history[over:]...)
	}
}

// SessionStore keeps sessions in memory and drops them after they have been idle for the TTL.
type SessionStore struct {
	cache *ttlcache.Cache[string, *Session]
	limit int
}

func NewSessionStore(ttl time.Duration, historyLimit int) *SessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &SessionStore{
		cache: ttlcache.New(ttlcache.WithTTL[string, *Session](ttl)),
		limit: historyLimit,
	}
}

// Get returns the session for id, creating it if needed.
func (s *SessionStore) Get(id string) *Session {
	item, _ := s.cache.GetOrSet(id, &Session{ID: id, limit: s.limit})
	return item.Value()
}

func (s *SessionStore) Len() int {
	return s.cache.Len()
}

// Start runs the expiry loop until Stop is called.
func (s *SessionStore) Start() {
	go s.cache.Start()
}

func (s *SessionStore) Stop() {
	s.cache.Stop()
}
