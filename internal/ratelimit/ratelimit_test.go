package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinCapacity(t *testing.T) {
	l := New(Config{Capacity: 5, RefillPerSecond: 1})
	for i := 0; i < 5; i++ {
		r := l.Allow("client-a")
		if !r.Allowed {
			t.Fatalf("request %d: expected allow, got deny", i)
		}
	}
	r := l.Allow("client-a")
	if r.Allowed {
		t.Fatal("expected 6th immediate request to be denied")
	}
	if r.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", r.RetryAfter)
	}
}

func TestAllowRefillsOverTime(t *testing.T) {
	l := New(Config{Capacity: 2, RefillPerSecond: 20})
	l.Allow("client-b")
	l.Allow("client-b")
	if l.Allow("client-b").Allowed {
		t.Fatal("expected bucket to be empty")
	}
	time.Sleep(100 * time.Millisecond)
	if !l.Allow("client-b").Allowed {
		t.Fatal("expected bucket to have refilled after 100ms at 20/s")
	}
}

func TestAllowBurstThenSteadyState(t *testing.T) {
	// Mirrors spec.md §8 scenario 6: capacity=20, rate=1/s, 25 rapid
	// requests from one client within ~0s should allow exactly 20.
	l := New(Config{Capacity: 20, RefillPerSecond: 1})
	allowed := 0
	for i := 0; i < 25; i++ {
		if l.Allow("steady-client").Allowed {
			allowed++
		}
	}
	if allowed != 20 {
		t.Fatalf("expected exactly 20 allowed, got %d", allowed)
	}
}

func TestBucketsAreIndependentPerClient(t *testing.T) {
	l := New(Config{Capacity: 1, RefillPerSecond: 1})
	if !l.Allow("a").Allowed {
		t.Fatal("expected client a's first request to be allowed")
	}
	if !l.Allow("b").Allowed {
		t.Fatal("expected client b's first request to be allowed independent of a")
	}
}

func TestEmptyClientIDFallsBackToUnknownBucket(t *testing.T) {
	l := New(Config{Capacity: 1, RefillPerSecond: 1})
	if !l.Allow("").Allowed {
		t.Fatal("expected empty client id to still get a bucket")
	}
}
