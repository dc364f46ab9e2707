package room

import (
	"testing"
	"time"

	"teamsync/internal/websocket"
)

type nopWire struct{}

func (nopWire) WriteMessage(int, []byte) error                 { return nil }
func (nopWire) WriteControl(int, []byte, time.Time) error      { return nil }
func (nopWire) SetWriteDeadline(time.Time) error               { return nil }
func (nopWire) Close() error                                   { return nil }

func newConn(t *testing.T, userID, teamID string) *websocket.Connection {
	t.Helper()
	conn := websocket.NewConnection(nopWire{}, userID, userID, teamID)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestJoinCreatesRoomLazily(t *testing.T) {
	registry := NewRegistry()

	if registry.Rooms() != 0 {
		t.Fatalf("expected no rooms, got %d", registry.Rooms())
	}

	conn := newConn(t, "u1", "t1")
	members := registry.Join("t1", conn)

	if len(members) != 1 || members[0] != conn {
		t.Errorf("expected join snapshot [conn], got %v", members)
	}
	if registry.Rooms() != 1 {
		t.Errorf("expected 1 room, got %d", registry.Rooms())
	}
}

func TestMemberCountTracksJoinsAndLeaves(t *testing.T) {
	registry := NewRegistry()

	a := newConn(t, "u1", "t1")
	b := newConn(t, "u2", "t1")
	c := newConn(t, "u3", "t1")

	registry.Join("t1", a)
	registry.Join("t1", b)
	registry.Join("t1", c)

	if got := len(registry.Members("t1")); got != 3 {
		t.Errorf("expected 3 members, got %d", got)
	}

	registry.Leave("t1", b.ID)
	if got := len(registry.Members("t1")); got != 2 {
		t.Errorf("expected 2 members after leave, got %d", got)
	}

	registry.Leave("t1", a.ID)
	registry.Leave("t1", c.ID)
	if registry.Members("t1") != nil {
		t.Error("expected no members for emptied room")
	}
	if registry.Rooms() != 0 {
		t.Errorf("empty room must be removed, got %d rooms", registry.Rooms())
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	conn := newConn(t, "u1", "t1")
	registry.Join("t1", conn)

	if !registry.Leave("t1", conn.ID) {
		t.Error("first leave should report membership")
	}
	if registry.Leave("t1", conn.ID) {
		t.Error("second leave should report no membership")
	}
	if registry.Leave("absent", conn.ID) {
		t.Error("leave on unknown room should report no membership")
	}
}

func TestSameUserMultipleConnections(t *testing.T) {
	registry := NewRegistry()

	tab1 := newConn(t, "u1", "t1")
	tab2 := newConn(t, "u1", "t1")

	registry.Join("t1", tab1)
	registry.Join("t1", tab2)

	if got := len(registry.Members("t1")); got != 2 {
		t.Errorf("each connection is tracked independently, expected 2 members, got %d", got)
	}

	registry.Leave("t1", tab1.ID)
	members := registry.Members("t1")
	if len(members) != 1 || members[0] != tab2 {
		t.Errorf("expected only the second tab to remain, got %v", members)
	}
}

func TestRoomsAreIndependent(t *testing.T) {
	registry := NewRegistry()

	a := newConn(t, "u1", "t1")
	b := newConn(t, "u2", "t2")

	registry.Join("t1", a)
	registry.Join("t2", b)

	if got := len(registry.Members("t1")); got != 1 {
		t.Errorf("expected 1 member in t1, got %d", got)
	}
	if got := len(registry.Members("t2")); got != 1 {
		t.Errorf("expected 1 member in t2, got %d", got)
	}

	all := registry.All()
	if len(all) != 2 {
		t.Errorf("expected 2 connections overall, got %d", len(all))
	}
}

func TestSnapshotIsolation(t *testing.T) {
	registry := NewRegistry()

	a := newConn(t, "u1", "t1")
	b := newConn(t, "u2", "t1")
	registry.Join("t1", a)
	registry.Join("t1", b)

	members := registry.Members("t1")
	registry.Leave("t1", a.ID)

	// The earlier snapshot is unaffected by the mutation.
	if len(members) != 2 {
		t.Errorf("snapshot changed after leave: %v", members)
	}
}

func TestGenerationAdvancesOnMutation(t *testing.T) {
	registry := NewRegistry()
	conn := newConn(t, "u1", "t1")

	if registry.Generation("t1") != 0 {
		t.Error("unknown room should report generation 0")
	}

	registry.Join("t1", conn)
	g1 := registry.Generation("t1")
	if g1 == 0 {
		t.Error("join must advance the generation")
	}

	other := newConn(t, "u2", "t1")
	registry.Join("t1", other)
	if registry.Generation("t1") <= g1 {
		t.Error("second join must advance the generation")
	}
}

func TestStats(t *testing.T) {
	registry := NewRegistry()
	registry.Join("t1", newConn(t, "u1", "t1"))
	registry.Join("t1", newConn(t, "u2", "t1"))
	registry.Join("t2", newConn(t, "u3", "t2"))

	stats := registry.Stats()
	if stats["total_connections"] != 3 {
		t.Errorf("expected 3 connections, got %d", stats["total_connections"])
	}
	if stats["open_rooms"] != 2 {
		t.Errorf("expected 2 rooms, got %d", stats["open_rooms"])
	}
}
