// Package memstore is the in-memory sessions.Store used by a single-process
// deployment. Sessions live until explicitly terminated.
package memstore

import (
	"sync"

	"github.com/odoomcp/odoo-mcp-go/sessions"
)

// Store is an in-memory implementation of sessions.Store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessions.Session
}

var _ sessions.Store = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]*sessions.Session)}
}

func (s *Store) Get(id string) (*sessions.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Store) Put(sess *sessions.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
