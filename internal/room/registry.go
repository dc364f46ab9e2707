// Package room tracks which connections are joined to which team room.
package room

import (
	"sync"

	"teamsync/internal/websocket"
)

// state is one room's generation-stamped member set. The generation counter
// advances on every membership change so snapshots can be told apart from
// later states of the room.
type state struct {
	generation uint64
	members    map[string]*websocket.Connection // connection ID -> connection
}

// Registry maps team IDs to rooms. Rooms are created lazily on first join
// and removed when their member set becomes empty. All broadcast reads take
// membership snapshots under the same lock that serializes mutations, so a
// snapshot never contains a connection that was removed before it was taken.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*state
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*state),
	}
}

// Join adds conn to the room for teamID, creating the room if absent, and
// returns a snapshot of the membership immediately after the join. Building
// the snapshot inside the same critical section lets the caller deliver the
// join notification and the presence snapshot without racing a concurrent
// leave.
func (r *Registry) Join(teamID string, conn *websocket.Connection) []*websocket.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[teamID]
	if !ok {
		rm = &state{members: make(map[string]*websocket.Connection)}
		r.rooms[teamID] = rm
	}
	rm.members[conn.ID] = conn
	rm.generation++

	return snapshot(rm)
}

// Leave removes the connection from the room and reports whether it was a
// member. The room entry itself is deleted once empty so churned teams do
// not accumulate. Safe to call repeatedly for the same connection.
func (r *Registry) Leave(teamID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[teamID]
	if !ok {
		return false
	}
	if _, ok := rm.members[connID]; !ok {
		return false
	}

	delete(rm.members, connID)
	rm.generation++
	if len(rm.members) == 0 {
		delete(r.rooms, teamID)
	}
	return true
}

// Members returns a snapshot of the room's current connections, or nil if
// the room does not exist.
func (r *Registry) Members(teamID string) []*websocket.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[teamID]
	if !ok {
		return nil
	}
	return snapshot(rm)
}

// All returns a snapshot of every connection across all rooms.
func (r *Registry) All() []*websocket.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*websocket.Connection
	for _, rm := range r.rooms {
		for _, conn := range rm.members {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Generation returns the room's membership generation, or 0 if the room
// does not exist.
func (r *Registry) Generation(teamID string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[teamID]
	if !ok {
		return 0
	}
	return rm.generation
}

// Stats reports registry totals for health reporting.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, rm := range r.rooms {
		total += len(rm.members)
	}
	return map[string]int{
		"total_connections": total,
		"open_rooms":        len(r.rooms),
	}
}

// Rooms returns the number of rooms currently open.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func snapshot(rm *state) []*websocket.Connection {
	conns := make([]*websocket.Connection, 0, len(rm.members))
	for _, conn := range rm.members {
		conns = append(conns, conn)
	}
	return conns
}
