// Package session implements the MCP session registry spec.md §3/§4.7
// describes: one session per SSE stream, carrying a state machine
// (Opening -> Initialized -> Active -> Closing -> Closed) and an
// outbound JSON-RPC message queue the transport layer drains onto the
// stream.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the per-session state machine spec.md §4.7 defines. initialize
// must be the first JSON-RPC method accepted from Opening; everything
// else from Opening is a protocol error.
type State string

const (
	StateOpening     State = "opening"
	StateInitialized State = "initialized"
	StateActive      State = "active"
	StateClosing     State = "closing"
	StateClosed      State = "closed"
)

// DefaultOutboundQueueSize bounds how many undelivered JSON-RPC responses
// a session buffers before the SSE writer falls behind; generous enough
// that a momentarily slow client does not drop responses under normal
// pipelined load.
const DefaultOutboundQueueSize = 256

// Session is one client's authenticated MCP conversation, scoped to the
// lifetime of one SSE stream. Fields mutated after creation are guarded
// by mu; Outbound is a channel and safe for concurrent send/receive on
// its own.
type Session struct {
	ID                     string
	CreatedAt              time.Time
	AuthenticatedPrincipal string

	// Outbound carries every JSON-RPC response/notification destined for
	// this session's SSE stream. Exactly one goroutine (the SSE writer)
	// drains it, per spec.md §5's "concurrent writes to the same stream
	// are forbidden" rule.
	Outbound chan json.RawMessage

	mu             sync.RWMutex
	state          State
	lastActivityAt time.Time
}

// New creates a session in the Opening state with a fresh random id.
// Session id uniqueness (spec.md §8) is delegated to uuid.NewString's
// collision-resistant random generation.
func New(principal string) *Session {
	now := time.Now()
	return &Session{
		ID:                     uuid.NewString(),
		CreatedAt:              now,
		AuthenticatedPrincipal: principal,
		Outbound:               make(chan json.RawMessage, DefaultOutboundQueueSize),
		state:                  StateOpening,
		lastActivityAt:         now,
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Touch marks activity on the session, resetting its idle-timeout clock.
// Both inbound POSTs and outbound keepalive frames count as activity per
// spec.md §5.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivityAt = time.Now()
}

func (s *Session) LastActivityAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivityAt
}

// IdleFor reports how long the session has gone without activity.
func (s *Session) IdleFor() time.Duration {
	return time.Since(s.LastActivityAt())
}

// Send enqueues a JSON-RPC message for delivery on the session's SSE
// stream. It never blocks indefinitely: a session whose queue is full is
// already failing its client, so Send drops the message rather than
// stalling the caller (a handler goroutine) forever.
func (s *Session) Send(msg json.RawMessage) bool {
	select {
	case s.Outbound <- msg:
		return true
	default:
		return false
	}
}

// Close transitions the session to Closed and closes its outbound queue,
// unblocking any writer currently draining it.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()
	close(s.Outbound)
}
