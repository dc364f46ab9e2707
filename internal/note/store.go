// Package note holds the ephemeral shared note of each room.
package note

import "sync"

type entry struct {
	content   string
	updatedBy string
}

// Store keeps the latest note text per team. Updates are last-writer-wins in
// server arrival order; no merging is attempted and nothing is persisted.
type Store struct {
	mu    sync.RWMutex
	notes map[string]entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		notes: make(map[string]entry),
	}
}

// Update overwrites the room's note with content attributed to updatedBy.
func (s *Store) Update(teamID, content, updatedBy string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[teamID] = entry{content: content, updatedBy: updatedBy}
}

// Get returns the room's current note text, or the empty string if the room
// never had an update.
func (s *Store) Get(teamID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notes[teamID].content
}

// Snapshot returns the note text and the name of its last updater.
func (s *Store) Snapshot(teamID string) (content, updatedBy string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.notes[teamID]
	return e.content, e.updatedBy
}
