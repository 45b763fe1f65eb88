package practice

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no session exists for an ID.
var ErrNotFound = errors.New("practice: session not found")

// Store is an in-memory session store. All methods are safe for concurrent
// use. Sessions are copied on the way in and out.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create starts a new level-1 session for lang, stamped with now.
func (s *Store) Create(lang string, now time.Time) Session {
	sess := &Session{
		ID:        uuid.NewString(),
		Language:  lang,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess.clone()
}

// Get returns the session with the given ID.
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess.clone(), nil
}

// Update runs fn on the stored session under the write lock and returns the
// updated copy. When fn returns an error the session is left untouched.
func (s *Store) Update(id string, fn func(*Session) error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}

	work := sess.clone()
	if err := fn(&work); err != nil {
		return Session{}, err
	}
	work.ID = sess.ID
	s.sessions[id] = &work
	return work.clone(), nil
}

// Delete removes the session with the given ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Prune removes every session not updated since cutoff and returns how many
// were removed.
func (s *Store) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
