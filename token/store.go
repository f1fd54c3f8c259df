package token

import (
	"sync"
)

const redacted = "[redacted]"

// Store is a concurrency-safe, in-memory holder for the current access token.
// The zero value is ready to use and holds no token.
type Store struct {
	mu    sync.RWMutex
	token string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current access token, or "" when none is held.
func (s *Store) Get() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set replaces the current token. Setting "" is equivalent to Clear.
func (s *Store) Set(tok string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
}

// Clear drops the token. Clearing an empty store is a no-op.
func (s *Store) Clear() {
	s.Set("")
}

// Has reports whether a token is currently held.
func (s *Store) Has() bool {
	return s.Get() != ""
}

// String redacts the token so a Store never prints its contents.
func (s *Store) String() string {
	if !s.Has() {
		return "token.Store(empty)"
	}
	return "token.Store(" + redacted + ")"
}

// GoString implements fmt.GoStringer with the same redaction as String.
func (s *Store) GoString() string {
	return s.String()
}

// MarshalJSON never emits the token value.
func (s *Store) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
