package session

import (
	"net/http"
	"sync"
)

// Identity is the local user the engine composes and announces as.
type Identity struct {
	UserID       int64
	UserName     string
	AccessToken  string
	RefreshToken string
}

// Known reports whether an identity has been configured.
func (i Identity) Known() bool { return i.UserID != 0 }

// Storage is the durable key/value adapter engine state is persisted
// through.
type Storage interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Session is the context handed to engine components at construction:
// who the local user is, and where durable state goes. Identity is read at
// composition and announce time, so it may change while the engine runs.
type Session struct {
	Name    string
	Storage Storage

	mu       sync.RWMutex
	identity Identity
}

// New creates a session context for the named profile.
func New(name string, id Identity, storage Storage) *Session {
	return &Session{Name: name, Storage: storage, identity: id}
}

// Identity returns the current local identity.
func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// SetIdentity replaces the local identity.
func (s *Session) SetIdentity(id Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
}

// Forget clears the identity on sign-out.
func (s *Session) Forget() {
	s.SetIdentity(Identity{})
}

// Header returns the authentication headers the server expects on both the
// WebSocket handshake and REST calls.
func (s *Session) Header() http.Header {
	id := s.Identity()
	h := http.Header{}
	if id.AccessToken != "" {
		h.Set("Authorization", "Bearer "+id.AccessToken)
	}
	if id.RefreshToken != "" {
		h.Set("X-Refresh-Token", id.RefreshToken)
	}
	return h
}
