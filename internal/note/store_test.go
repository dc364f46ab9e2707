package note

import "testing"

func TestGetBeforeAnyUpdate(t *testing.T) {
	store := NewStore()
	if got := store.Get("t1"); got != "" {
		t.Errorf("expected empty note for untouched room, got %q", got)
	}
}

func TestLastWriterWins(t *testing.T) {
	store := NewStore()

	store.Update("t1", "X", "alice")
	if got := store.Get("t1"); got != "X" {
		t.Errorf("expected %q, got %q", "X", got)
	}

	store.Update("t1", "Y", "bob")
	content, updatedBy := store.Snapshot("t1")
	if content != "Y" {
		t.Errorf("expected overwrite to %q, got %q", "Y", content)
	}
	if updatedBy != "bob" {
		t.Errorf("expected updater %q, got %q", "bob", updatedBy)
	}
}

func TestNotesPerRoom(t *testing.T) {
	store := NewStore()

	store.Update("t1", "team one note", "alice")
	store.Update("t2", "team two note", "bob")

	if got := store.Get("t1"); got != "team one note" {
		t.Errorf("unexpected t1 note: %q", got)
	}
	if got := store.Get("t2"); got != "team two note" {
		t.Errorf("unexpected t2 note: %q", got)
	}
}
