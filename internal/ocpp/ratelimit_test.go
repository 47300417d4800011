package ocpp

import (
	"testing"
	"time"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	l := NewRateLimiter(time.Minute, 2, nil, nil, newTestLogger())

	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	ip := "198.51.100.7"
	if !l.Allow(ip) || !l.Allow(ip) {
		t.Fatal("first two connections should be admitted")
	}
	if l.Allow(ip) {
		t.Error("third connection inside the window should be rejected")
	}

	// A new window resets the count.
	now = now.Add(time.Minute)
	if !l.Allow(ip) {
		t.Error("connection in the next window should be admitted")
	}
}

func TestRateLimiterTrustedBypass(t *testing.T) {
	l := NewRateLimiter(time.Minute, 1, []string{"198.18.0.0/15"}, nil, newTestLogger())

	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.9", "fe80::1", "198.18.4.4"} {
		for i := 0; i < 5; i++ {
			if !l.Allow(ip) {
				t.Errorf("trusted ip %s should never be limited", ip)
			}
		}
	}
}

func TestRateLimiterRelease(t *testing.T) {
	l := NewRateLimiter(time.Minute, 1, nil, nil, newTestLogger())

	ip := "198.51.100.8"
	if !l.Allow(ip) {
		t.Fatal("first connection should be admitted")
	}
	if l.Allow(ip) {
		t.Fatal("second connection should be rejected")
	}

	l.Release(ip)
	if !l.Allow(ip) {
		t.Error("released slot should admit a replacement")
	}

	// Releasing an untracked ip must not panic or underflow.
	l.Release("203.0.113.99")
}

func TestRateLimiterDisabled(t *testing.T) {
	l := NewRateLimiter(time.Minute, 0, nil, nil, newTestLogger())

	if l.Limited() {
		t.Error("max 0 means unlimited")
	}
	for i := 0; i < 100; i++ {
		if !l.Allow("198.51.100.9") {
			t.Fatal("unlimited limiter rejected a connection")
		}
	}
}

func TestRateLimiterRules(t *testing.T) {
	l := NewRateLimiter(time.Minute, 5, nil, map[string]int{"CP-9": 1}, newTestLogger())

	if !l.HasRule("CP-9") {
		t.Error("expected rule for CP-9")
	}
	if l.HasRule("CP-10") {
		t.Error("unexpected rule for CP-10")
	}
}
