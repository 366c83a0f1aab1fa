// Package session keeps per-chat conversational state in memory: the rendered
// interfaces, the current menu state and scratch values used between steps.
package session

import (
	"sync"

	chatdomain "github.com/boddenberg/monoreport-bot-go/internal/chat/domain"
)

// Session is the state of one chat. It implements port.InterfaceStore.
// All access is mutex-guarded; the report job and menu handlers may touch the
// same session concurrently and the last writer wins.
type Session struct {
	chatID int64

	mu         sync.Mutex
	interfaces map[string]*chatdomain.Interface
	state      string
	values     map[string]any
}

func newSession(chatID int64) *Session {
	return &Session{
		chatID:     chatID,
		interfaces: make(map[string]*chatdomain.Interface),
		values:     make(map[string]any),
	}
}

func (s *Session) ChatID() int64 {
	return s.chatID
}

// Interface returns a copy of the stored interface.
func (s *Session) Interface(name string) (*chatdomain.Interface, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iface, ok := s.interfaces[name]
	if !ok {
		return nil, false
	}
	cp := *iface
	return &cp, true
}

func (s *Session) SaveInterface(iface *chatdomain.Interface) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *iface
	s.interfaces[iface.Name] = &cp
}

func (s *Session) ForgetInterface(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.interfaces, name)
}

// InterfaceNames lists stored interface names.
func (s *Session) InterfaceNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.interfaces))
	for name := range s.interfaces {
		names = append(names, name)
	}
	return names
}

// State is the current menu state; empty means none.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Value returns a scratch value.
func (s *Session) Value(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) SetValue(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

func (s *Session) DeleteValue(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// ============================================================
// Registry
// ============================================================

// Registry owns every chat's session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Scope returns the session of chatID, creating it on first use.
func (r *Registry) Scope(chatID int64) *Session {
	r.mu.RLock()
	s, ok := r.sessions[chatID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[chatID]; ok {
		return s
	}
	s = newSession(chatID)
	r.sessions[chatID] = s
	return s
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(chatID int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[chatID]
	return s, ok
}

// Drop tears down a chat's session together with its interfaces.
func (r *Registry) Drop(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, chatID)
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
