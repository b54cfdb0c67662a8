package middleware

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiterEnforcesLimit(t *testing.T) {
	l := newRateLimiter(2, time.Minute)
	now := time.Now()

	if !l.allow("10.0.0.1", now) || !l.allow("10.0.0.1", now) {
		t.Fatal("requests under the limit were rejected")
	}
	if l.allow("10.0.0.1", now) {
		t.Fatal("third request in the window was allowed")
	}
	// Another client has its own window.
	if !l.allow("10.0.0.2", now) {
		t.Fatal("unrelated client was rejected")
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	l := newRateLimiter(1, time.Minute)
	now := time.Now()

	if !l.allow("10.0.0.1", now) {
		t.Fatal("first request rejected")
	}
	if l.allow("10.0.0.1", now) {
		t.Fatal("second request in the same window allowed")
	}
	if !l.allow("10.0.0.1", now.Add(61*time.Second)) {
		t.Fatal("request after the window rejected")
	}
}

func TestRateLimiterSweepsExpiredBuckets(t *testing.T) {
	l := newRateLimiter(5, time.Minute)
	now := time.Now()

	for i := 0; i < 100; i++ {
		l.allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256), now)
	}
	if len(l.buckets) != 100 {
		t.Fatalf("buckets = %d, want 100", len(l.buckets))
	}

	// Past every bucket's window and the sweep deadline, one live
	// client remains; the dead buckets must be gone.
	later := now.Add(2 * time.Minute)
	if !l.allow("10.9.9.9", later) {
		t.Fatal("live client rejected")
	}
	if len(l.buckets) != 1 {
		t.Fatalf("buckets after sweep = %d, want 1", len(l.buckets))
	}
}
