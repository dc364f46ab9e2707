package presence

import (
	"testing"

	"teamsync/pkg/types"
)

func TestSetTypingAddAndRemove(t *testing.T) {
	tracker := NewTracker()

	set := tracker.SetTyping("t1", "u1", "Alice", true)
	if len(set) != 1 || set[0] != (types.TypingUser{UserID: "u1", UserName: "Alice"}) {
		t.Errorf("unexpected typing set after start: %v", set)
	}

	set = tracker.SetTyping("t1", "u1", "Alice", false)
	if len(set) != 0 {
		t.Errorf("expected empty typing set after stop, got %v", set)
	}
	if got := tracker.Typing("t1"); got != nil {
		t.Errorf("expected no typing users, got %v", got)
	}
}

func TestMultipleConnectionsCollapse(t *testing.T) {
	tracker := NewTracker()

	// Two tabs of the same user report typing; the set holds one entry.
	tracker.SetTyping("t1", "u1", "Alice", true)
	set := tracker.SetTyping("t1", "u1", "Alice", true)
	if len(set) != 1 {
		t.Errorf("same user must collapse to one entry, got %v", set)
	}
}

func TestTypingSetSortedByUserID(t *testing.T) {
	tracker := NewTracker()

	tracker.SetTyping("t1", "u2", "Bob", true)
	set := tracker.SetTyping("t1", "u1", "Alice", true)

	if len(set) != 2 {
		t.Fatalf("expected 2 typing users, got %v", set)
	}
	if set[0].UserID != "u1" || set[1].UserID != "u2" {
		t.Errorf("expected sorted order, got %v", set)
	}
}

func TestRemoveOnDisconnect(t *testing.T) {
	tracker := NewTracker()

	tracker.SetTyping("t1", "u1", "Alice", true)
	if !tracker.Remove("t1", "u1") {
		t.Error("Remove should report the user was typing")
	}
	if tracker.Remove("t1", "u1") {
		t.Error("second Remove should report nothing to clear")
	}
	if got := tracker.Typing("t1"); got != nil {
		t.Errorf("expected empty set after disconnect, got %v", got)
	}
}

func TestRoomsIndependent(t *testing.T) {
	tracker := NewTracker()

	tracker.SetTyping("t1", "u1", "Alice", true)
	tracker.SetTyping("t2", "u2", "Bob", true)

	if got := tracker.Typing("t1"); len(got) != 1 || got[0].UserID != "u1" {
		t.Errorf("unexpected t1 set: %v", got)
	}
	if got := tracker.Typing("t2"); len(got) != 1 || got[0].UserID != "u2" {
		t.Errorf("unexpected t2 set: %v", got)
	}
}

func TestStopTypingUnknownRoom(t *testing.T) {
	tracker := NewTracker()

	if set := tracker.SetTyping("t1", "u1", "Alice", false); set != nil {
		t.Errorf("stop in unknown room should yield empty set, got %v", set)
	}
}
