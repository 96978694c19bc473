package monitor

import "testing"

func TestRegistryPutGetRemove(t *testing.T) {
	r := newRegistry()
	if _, ok := r.get("s1"); ok {
		t.Fatal("get on empty registry")
	}

	s := &session{id: "s1", active: true}
	r.put(s)
	got, ok := r.get("s1")
	if !ok || got != s {
		t.Fatal("put/get mismatch")
	}
	if r.len() != 1 {
		t.Errorf("len = %d", r.len())
	}

	r.remove("s1")
	if _, ok := r.get("s1"); ok {
		t.Fatal("session survived remove")
	}
	// Removing twice is harmless.
	r.remove("s1")
	if r.len() != 0 {
		t.Errorf("len = %d after removal", r.len())
	}
}

func TestRegistryAll(t *testing.T) {
	r := newRegistry()
	r.put(&session{id: "a"})
	r.put(&session{id: "b"})
	if got := len(r.all()); got != 2 {
		t.Errorf("all() returned %d sessions, want 2", got)
	}
}

func TestCursorNeverResets(t *testing.T) {
	s := &session{}
	s.advanceCursor("tok-1")
	s.advanceCursor("tok-2")
	if got := s.getCursor(); got != "tok-2" {
		t.Fatalf("cursor = %q", got)
	}
	s.advanceCursor("")
	if got := s.getCursor(); got != "tok-2" {
		t.Errorf("empty token reset cursor to %q", got)
	}
}
