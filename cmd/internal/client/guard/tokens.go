package guard

import "sync"

// Tokens is the pair issued by login, register and refresh.
type Tokens struct {
	Access  string
	Refresh string
}

// TokenStore holds the client's current pair.
type TokenStore interface {
	Load() Tokens
	Save(Tokens)
	Clear()
}

// MemoryTokenStore keeps tokens in process memory only.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens Tokens
}

// NewMemoryTokenStore returns a store seeded with t.
func NewMemoryTokenStore(t Tokens) *MemoryTokenStore {
	return &MemoryTokenStore{tokens: t}
}

// Load returns the held pair.
func (s *MemoryTokenStore) Load() Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// Save replaces the held pair.
func (s *MemoryTokenStore) Save(t Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
}

// Clear drops the held pair.
func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = Tokens{}
}
