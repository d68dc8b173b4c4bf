// Package ratelimit implements the per-client token-bucket limiter
// spec.md §4.5 specifies, including the remaining/retry-after
// introspection a plain allow/deny limiter doesn't expose.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultCapacity and DefaultRefillPerSecond are spec.md §4.5's
	// defaults: capacity=20, rate=1/sec (60/min).
	DefaultCapacity        = 20
	DefaultRefillPerSecond = 1.0

	defaultClientIdleTTL       = 10 * time.Minute
	defaultCleanupInterval     = time.Minute
	defaultMaxTrackedClients   = 10000
)

// Config configures the limiter. Capacity and RefillPerSecond apply per
// client id (authenticated principal, else remote address, per
// spec.md §4.5).
type Config struct {
	Capacity         int
	RefillPerSecond  float64
	MaxClients       int
	ClientIdleTTL    time.Duration
	CleanupInterval  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Capacity:        DefaultCapacity,
		RefillPerSecond: DefaultRefillPerSecond,
		MaxClients:      defaultMaxTrackedClients,
		ClientIdleTTL:   defaultClientIdleTTL,
		CleanupInterval: defaultCleanupInterval,
	}
}

// bucket is the per-client token bucket invariant from spec.md §3:
// 0 <= tokens <= capacity.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// Limiter tracks one bucket per client id behind a sharded map lock, per
// spec.md §5's "per-entry mutex, registry under a sharded lock" model —
// here a single map mutex, since the per-bucket work under it is O(1).
type Limiter struct {
	cfg Config

	mu          sync.Mutex
	buckets     map[string]*bucket
	lastCleanup time.Time
}

func New(cfg Config) *Limiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.RefillPerSecond <= 0 {
		cfg.RefillPerSecond = DefaultRefillPerSecond
	}
	if cfg.ClientIdleTTL <= 0 {
		cfg.ClientIdleTTL = defaultClientIdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxTrackedClients
	}
	return &Limiter{
		cfg:         cfg,
		buckets:     make(map[string]*bucket),
		lastCleanup: time.Now(),
	}
}

// Result is the outcome of an Allow call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Allow runs spec.md §4.5's algorithm: refill by elapsed time * rate,
// capped at capacity; if tokens >= 1, take one and allow; else deny with
// the wait time until one token is available.
func (l *Limiter) Allow(clientID string) Result {
	if clientID == "" {
		clientID = "unknown"
	}
	b := l.bucketFor(clientID)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	b.lastSeen = now

	b.tokens += elapsed * l.cfg.RefillPerSecond
	if b.tokens > float64(l.cfg.Capacity) {
		b.tokens = float64(l.cfg.Capacity)
	}

	if b.tokens >= 1 {
		b.tokens--
		return Result{Allowed: true, Remaining: int(b.tokens)}
	}

	deficit := 1 - b.tokens
	retryAfter := time.Duration(deficit / l.cfg.RefillPerSecond * float64(time.Second))
	return Result{Allowed: false, RetryAfter: retryAfter}
}

func (l *Limiter) bucketFor(clientID string) *bucket {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupLocked(now)

	b, ok := l.buckets[clientID]
	if !ok {
		if len(l.buckets) >= l.cfg.MaxClients {
			l.evictOldestLocked()
		}
		b = &bucket{
			tokens:     float64(l.cfg.Capacity),
			lastRefill: now,
			lastSeen:   now,
		}
		l.buckets[clientID] = b
	}
	return b
}

func (l *Limiter) cleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < l.cfg.CleanupInterval {
		return
	}
	l.lastCleanup = now

	cutoff := now.Add(-l.cfg.ClientIdleTTL)
	for id, b := range l.buckets {
		b.mu.Lock()
		idle := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(l.buckets, id)
		}
	}
}

func (l *Limiter) evictOldestLocked() {
	var oldestID string
	var oldestSeen time.Time
	first := true
	for id, b := range l.buckets {
		b.mu.Lock()
		seen := b.lastSeen
		b.mu.Unlock()
		if first || seen.Before(oldestSeen) {
			oldestID, oldestSeen = id, seen
			first = false
		}
	}
	if oldestID != "" {
		delete(l.buckets, oldestID)
	}
}

// TrackedClients reports how many client buckets are currently live, for
// diagnostics/metrics.
func (l *Limiter) TrackedClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
