package ocpp

import (
	"testing"
	"time"
)

func TestRegistryLastWriterWins(t *testing.T) {
	limiter := NewRateLimiter(time.Minute, 0, nil, nil, newTestLogger())
	r := NewRegistry(limiter, newTestLogger())

	oldSock := &fakeSocket{}
	first := NewLiveConnection(oldSock, "CP-1", 0, "203.0.113.1", "ocpp1.6")
	if !r.Register(first.Key(), first) {
		t.Fatal("first registration should succeed")
	}

	second := NewLiveConnection(&fakeSocket{}, "CP-1", 0, "203.0.113.2", "ocpp1.6")
	if !r.Register(second.Key(), second) {
		t.Fatal("second registration should succeed")
	}

	if got := r.Get("CP-1"); got != second {
		t.Error("registry should hold the newest connection")
	}
	if r.Count() != 1 {
		t.Errorf("expected exactly one active connection, got %d", r.Count())
	}
	if oldSock.closeCode() != CloseCodeReplaced {
		t.Errorf("evicted connection should close with %d, got %d", CloseCodeReplaced, oldSock.closeCode())
	}
}

func TestRegistryRateLimitRejection(t *testing.T) {
	limiter := NewRateLimiter(time.Minute, 1, nil, nil, newTestLogger())
	r := NewRegistry(limiter, newTestLogger())

	ip := "198.51.100.20"
	first := NewLiveConnection(&fakeSocket{}, "CP-1", 0, ip, "ocpp1.6")
	if !r.Register(first.Key(), first) {
		t.Fatal("first registration should succeed")
	}

	// Different key, same non-trusted source over the limit.
	second := NewLiveConnection(&fakeSocket{}, "CP-2", 0, ip, "ocpp1.6")
	if r.Register(second.Key(), second) {
		t.Error("over-limit registration should be rejected")
	}
	if r.Get("CP-2") != nil {
		t.Error("rejected connection must not be stored")
	}
}

func TestRegistrySameSourceReconnectBypass(t *testing.T) {
	limiter := NewRateLimiter(time.Minute, 1, nil, nil, newTestLogger())
	r := NewRegistry(limiter, newTestLogger())

	ip := "198.51.100.21"
	first := NewLiveConnection(&fakeSocket{}, "CP-1", 0, ip, "ocpp1.6")
	if !r.Register(first.Key(), first) {
		t.Fatal("first registration should succeed")
	}

	// Reconnect storms from the same device bypass admission control
	// when no per-charger rule exists.
	for i := 0; i < 5; i++ {
		next := NewLiveConnection(&fakeSocket{}, "CP-1", 0, ip, "ocpp1.6")
		if !r.Register(next.Key(), next) {
			t.Fatalf("same-source reconnect %d should bypass the limit", i)
		}
	}
}

func TestRegistryReleaseOnlyCurrentHolder(t *testing.T) {
	limiter := NewRateLimiter(time.Minute, 0, nil, nil, newTestLogger())
	r := NewRegistry(limiter, newTestLogger())

	first := NewLiveConnection(&fakeSocket{}, "CP-1", 0, "203.0.113.1", "ocpp1.6")
	r.Register(first.Key(), first)

	second := NewLiveConnection(&fakeSocket{}, "CP-1", 0, "203.0.113.2", "ocpp1.6")
	r.Register(second.Key(), second)

	// The evicted connection's deferred cleanup must not remove its
	// replacement.
	r.Release("CP-1", first)
	if r.Get("CP-1") != second {
		t.Error("stale release removed the active connection")
	}

	r.Release("CP-1", second)
	if r.Get("CP-1") != nil {
		t.Error("release by the holder should clear the mapping")
	}

	// Unknown keys are safe.
	r.Release("NOPE", nil)
}
