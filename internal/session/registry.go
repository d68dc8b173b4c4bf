package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultIdleTimeout is the 10-minute SSE stream idle timeout spec.md
// §4.7/§5 specifies.
const DefaultIdleTimeout = 10 * time.Minute

const defaultSweepInterval = 30 * time.Second

// Registry tracks every live session. Mutation (Create/Destroy) holds mu;
// lookups by id go through a concurrent map so readers never block on a
// writer, per spec.md §5's "session registry: mutation under a lock,
// reads lock-free via a concurrent map" requirement.
type Registry struct {
	idleTimeout   time.Duration
	sweepInterval time.Duration

	mu       sync.Mutex
	byID     sync.Map // string -> *Session
	count    atomic.Int64
	onEvict  func(*Session)
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry builds a registry with the given idle timeout (0 uses
// DefaultIdleTimeout) and starts its background idle-sweep goroutine.
// onEvict, if non-nil, is called once per evicted session after it has
// been removed from the registry and closed.
func NewRegistry(idleTimeout time.Duration, onEvict func(*Session)) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	r := &Registry{
		idleTimeout:   idleTimeout,
		sweepInterval: defaultSweepInterval,
		onEvict:       onEvict,
		stopCh:        make(chan struct{}),
	}
	r.wg.Add(1)
	go r.sweepLoop()
	return r
}

// Create allocates a new session, registers it, and returns it in the
// Opening state.
func (r *Registry) Create(principal string) *Session {
	s := New(principal)
	r.mu.Lock()
	r.byID.Store(s.ID, s)
	r.count.Add(1)
	r.mu.Unlock()
	return s
}

// Lookup returns the session for id, or nil if none is registered (lock-
// free; callers must still check the session's own State before routing
// a method to it).
func (r *Registry) Lookup(id string) *Session {
	v, ok := r.byID.Load(id)
	if !ok {
		return nil
	}
	return v.(*Session)
}

// Destroy removes and closes the session for id, if one exists. Safe to
// call more than once for the same id.
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	v, ok := r.byID.LoadAndDelete(id)
	if ok {
		r.count.Add(-1)
	}
	r.mu.Unlock()
	if ok {
		v.(*Session).Close()
	}
}

// Count reports the number of currently registered sessions.
func (r *Registry) Count() int64 {
	return r.count.Load()
}

// Shutdown stops the idle-sweep goroutine and closes every registered
// session, per spec.md §4.7's graceful-shutdown sequence (the transport
// layer is responsible for sending the terminal `event: close` frame
// before calling this).
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()

	var ids []string
	r.byID.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	for _, id := range ids {
		r.Destroy(id)
	}
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweepIdle()
		}
	}
}

func (r *Registry) sweepIdle() {
	var expired []*Session
	r.byID.Range(func(_, v any) bool {
		s := v.(*Session)
		if s.IdleFor() > r.idleTimeout {
			expired = append(expired, s)
		}
		return true
	})
	for _, s := range expired {
		r.Destroy(s.ID)
		if r.onEvict != nil {
			r.onEvict(s)
		}
	}
}
