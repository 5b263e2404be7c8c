package session

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Registry tracks the sessions of active calls.
// Entries idle longer than the call timeout expire on their own.
type Registry struct {
	sessions *gocache.Cache
	ttl      time.Duration
}

// NewRegistry creates a registry whose entries expire after ttl
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		sessions: gocache.New(ttl, ttl/2),
		ttl:      ttl,
	}
}

// Put registers or refreshes a session
func (r *Registry) Put(s *CallSession) {
	r.sessions.Set(s.ID, s, r.ttl)
}

// Get returns the active session with the given ID
func (r *Registry) Get(id string) (*CallSession, bool) {
	v, ok := r.sessions.Get(id)
	if !ok {
		return nil, false
	}
	s, ok := v.(*CallSession)
	return s, ok
}

// Remove drops a session when its call ends
func (r *Registry) Remove(id string) {
	r.sessions.Delete(id)
}

// Count reports the number of active sessions
func (r *Registry) Count() int {
	return r.sessions.ItemCount()
}
