// Package presence maintains the per-room set of users currently typing.
package presence

import (
	"sort"
	"sync"

	"teamsync/pkg/types"
)

// Tracker holds typing state keyed by team then user. Multiple connections
// of the same user collapse to a single typing entry. There is no timeout:
// an entry persists until the user signals stop or disconnects.
type Tracker struct {
	mu     sync.RWMutex
	typing map[string]map[string]string // teamID -> userID -> userName
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		typing: make(map[string]map[string]string),
	}
}

// SetTyping records whether userID is typing in teamID's room and returns
// the room's typing set after the change, sorted by user ID for stable
// broadcast payloads.
func (t *Tracker) SetTyping(teamID, userID, userName string, isTyping bool) []types.TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.typing[teamID]
	if !ok {
		if !isTyping {
			return nil
		}
		users = make(map[string]string)
		t.typing[teamID] = users
	}

	if isTyping {
		users[userID] = userName
	} else {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.typing, teamID)
		}
	}

	return typingSet(users)
}

// Remove clears userID from the room's typing set, returning true if the
// user was marked typing. Called when any of the user's connections
// disconnects.
func (t *Tracker) Remove(teamID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.typing[teamID]
	if !ok {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}

	delete(users, userID)
	if len(users) == 0 {
		delete(t.typing, teamID)
	}
	return true
}

// Typing returns the room's current typing set, sorted by user ID.
func (t *Tracker) Typing(teamID string) []types.TypingUser {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return typingSet(t.typing[teamID])
}

func typingSet(users map[string]string) []types.TypingUser {
	if len(users) == 0 {
		return nil
	}
	set := make([]types.TypingUser, 0, len(users))
	for userID, userName := range users {
		set = append(set, types.TypingUser{UserID: userID, UserName: userName})
	}
	sort.Slice(set, func(i, j int) bool { return set[i].UserID < set[j].UserID })
	return set
}
