package session

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewSessionStartsOpening(t *testing.T) {
	s := New("client-1")
	if s.State() != StateOpening {
		t.Fatalf("expected Opening, got %s", s.State())
	}
	if s.ID == "" {
		t.Fatal("expected a non-empty session id")
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		s := New("client")
		if seen[s.ID] {
			t.Fatalf("duplicate session id %s", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestSessionStateTransitions(t *testing.T) {
	s := New("client-1")
	s.SetState(StateInitialized)
	s.SetState(StateActive)
	if s.State() != StateActive {
		t.Fatalf("expected Active, got %s", s.State())
	}
}

func TestSendDoesNotBlockWhenQueueFull(t *testing.T) {
	s := New("client-1")
	s.Outbound = make(chan json.RawMessage, 1)
	if !s.Send(json.RawMessage(`{}`)) {
		t.Fatal("expected first send into empty queue to succeed")
	}
	if s.Send(json.RawMessage(`{}`)) {
		t.Fatal("expected send into full queue to fail rather than block")
	}
}

func TestTouchResetsIdleClock(t *testing.T) {
	s := New("client-1")
	time.Sleep(10 * time.Millisecond)
	if s.IdleFor() < 10*time.Millisecond {
		t.Fatal("expected idle duration to have elapsed")
	}
	s.Touch()
	if s.IdleFor() > 5*time.Millisecond {
		t.Fatal("expected Touch to reset idle duration")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New("client-1")
	s.Close()
	s.Close()
	if s.State() != StateClosed {
		t.Fatal("expected Closed state after Close")
	}
}

func TestRegistryCreateLookupDestroy(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	defer r.Shutdown()

	s := r.Create("client-1")
	if got := r.Lookup(s.ID); got != s {
		t.Fatal("expected lookup to return the created session")
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}

	r.Destroy(s.ID)
	if r.Lookup(s.ID) != nil {
		t.Fatal("expected lookup to return nil after destroy")
	}
	if r.Count() != 0 {
		t.Fatalf("expected count 0 after destroy, got %d", r.Count())
	}
}

func TestRegistrySweepsIdleSessions(t *testing.T) {
	r := &Registry{idleTimeout: 20 * time.Millisecond, sweepInterval: 10 * time.Millisecond, stopCh: make(chan struct{})}
	r.wg.Add(1)
	go r.sweepLoop()
	defer r.Shutdown()

	s := r.Create("client-1")
	time.Sleep(80 * time.Millisecond)

	if r.Lookup(s.ID) != nil {
		t.Fatal("expected idle session to have been evicted")
	}
}
