package auth

import (
	"sync/atomic"
	"time"
)

// secretValue is the immutable snapshot a RotatableSecret swaps in on
// Rotate, mirroring the atomic-pointer-to-immutable-record pattern
// spec.md §5 calls for on read-often/write-rare shared state.
type secretValue struct {
	current     string
	previous    string
	rotatedAt   time.Time
	graceWindow time.Duration
}

// RotatableSecret is the bearer token a client must present, with an
// overlapping grace window during which a just-rotated-out value still
// verifies — so an operator can roll MCP_AUTH_TOKEN without a coordinated
// client-side flag day.
type RotatableSecret struct {
	value atomic.Pointer[secretValue]
}

// NewRotatableSecret returns a secret whose current value is initial and
// which has not yet been rotated.
func NewRotatableSecret(initial string, graceWindow time.Duration) *RotatableSecret {
	if graceWindow <= 0 {
		graceWindow = DefaultGraceWindow
	}
	s := &RotatableSecret{}
	s.value.Store(&secretValue{current: initial, graceWindow: graceWindow})
	return s
}

// Verify reports whether provided matches the current secret, or the
// previous one if still inside its grace window. Both comparisons run in
// constant time regardless of which branch matches, so measured compare
// time does not leak which secret (or whether either) matched.
func (s *RotatableSecret) Verify(provided string) bool {
	v := s.value.Load()

	currentMatch := ConstantTimeEqual(provided, v.current)

	previousMatch := false
	if v.previous != "" && time.Since(v.rotatedAt) < v.graceWindow {
		previousMatch = ConstantTimeEqual(provided, v.previous)
	} else {
		// Still spend the comparison so a caller cannot distinguish
		// "outside grace window" from "wrong token" by timing alone.
		ConstantTimeEqual(provided, v.current)
	}

	return currentMatch || previousMatch
}

// Rotate installs newValue as current, demoting the prior current to
// previous for the secret's existing grace window (DefaultGraceWindow if
// that is zero).
func (s *RotatableSecret) Rotate(newValue string) {
	old := s.value.Load()
	graceWindow := old.graceWindow
	if graceWindow <= 0 {
		graceWindow = DefaultGraceWindow
	}
	s.value.Store(&secretValue{
		current:     newValue,
		previous:    old.current,
		rotatedAt:   time.Now(),
		graceWindow: graceWindow,
	})
}

// RotatedAt returns the last rotation time, or the zero time if the
// secret has never been rotated.
func (s *RotatableSecret) RotatedAt() time.Time {
	return s.value.Load().rotatedAt
}
