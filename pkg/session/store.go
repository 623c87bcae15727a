// Package session memorizes per-playback-session master request parameters.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Store maps playback-session UUIDs to the raw query string the player sent
// on its master-manifest request. The saved query is replayed on every ad
// server call made for that session.
type Store struct {
	mu      sync.RWMutex
	queries map[uuid.UUID]string
}

// NewStore creates an empty sidecar store
func NewStore() *Store {
	return &Store{
		queries: make(map[uuid.UUID]string),
	}
}

// Save records the raw query for a session. Unparsable session IDs and empty
// queries are ignored; the sidecar is best effort.
func (s *Store) Save(sessionID, rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[id] = rawQuery
	return true
}

// Lookup returns the raw query saved for a session, if any.
func (s *Store) Lookup(sessionID string) (string, bool) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	query, ok := s.queries[id]
	return query, ok
}

// Entry is one saved session used by the status endpoint.
type Entry struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

// Entries returns all saved sessions.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.queries))
	for id, query := range s.queries {
		entries = append(entries, Entry{ID: id.String(), Query: query})
	}
	return entries
}
