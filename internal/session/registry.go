package session

import "sync"

// Registry is the process-wide map from call SID to session. HTTP handlers
// create sessions before the media stream connects; both relay loops and the
// teardown path operate on them concurrently.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create inserts the session if no session exists for the call SID. It
// returns false, leaving the existing session untouched, when one is already
// registered.
func (r *Registry) Create(callSid string, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[callSid]; ok {
		return false
	}
	r.sessions[callSid] = sess
	return true
}

func (r *Registry) Get(callSid string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[callSid]
	return sess, ok
}

func (r *Registry) Remove(callSid string) {
	r.mu.Lock()
	delete(r.sessions, callSid)
	r.mu.Unlock()
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
