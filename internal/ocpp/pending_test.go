package ocpp

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPendingPopOnce(t *testing.T) {
	p := NewPendingRegistry(newTestLogger())

	p.Register("m1", ActionReset, "CP-1", nil)

	pc, ok := p.Pop("m1")
	if !ok || pc.Action != ActionReset || pc.Serial != "CP-1" {
		t.Fatalf("first pop should return the call, got %+v ok=%v", pc, ok)
	}

	if _, ok := p.Pop("m1"); ok {
		t.Error("second pop for the same id must miss")
	}
	if p.Len() != 0 {
		t.Errorf("registry should be empty, has %d", p.Len())
	}
}

func TestPendingTimeoutAfterPopIsNoop(t *testing.T) {
	p := NewPendingRegistry(newTestLogger())

	var fired atomic.Int32
	p.Register("m2", ActionGetDiagnostics, "CP-1", nil)
	p.ScheduleTimeout("m2", 20*time.Millisecond, func(pc *PendingCall) {
		fired.Add(1)
	})

	if _, ok := p.Pop("m2"); !ok {
		t.Fatal("pop should succeed before the timer fires")
	}

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("timeout must not fire after the call was popped")
	}
}

func TestPendingTimeoutFiresOnce(t *testing.T) {
	p := NewPendingRegistry(newTestLogger())

	var fired atomic.Int32
	p.Register("m3", ActionGetDiagnostics, "CP-1", nil)
	p.ScheduleTimeout("m3", 10*time.Millisecond, func(pc *PendingCall) {
		fired.Add(1)
	})

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("timeout should fire exactly once, fired %d times", fired.Load())
	}

	// A late reply pops nothing.
	if _, ok := p.Pop("m3"); ok {
		t.Error("call should already be resolved by the timeout")
	}
}

func TestPendingScheduleAfterResolveIsNoop(t *testing.T) {
	p := NewPendingRegistry(newTestLogger())

	p.Register("m4", ActionReset, "CP-1", nil)
	p.Pop("m4")

	var fired atomic.Int32
	p.ScheduleTimeout("m4", 5*time.Millisecond, func(pc *PendingCall) {
		fired.Add(1)
	})

	time.Sleep(30 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("scheduling against a resolved id must be a silent no-op")
	}
}

func TestPendingWaitAndRecordResult(t *testing.T) {
	p := NewPendingRegistry(newTestLogger())

	p.Register("m5", ActionReserveNow, "CP-1", PendingMeta{"reservation_id": 42})
	ch := p.Wait("m5")

	p.RecordResult("m5", nil, CallOutcome{Success: true, StatusCode: "Accepted"})

	select {
	case outcome := <-ch:
		if !outcome.Success || outcome.StatusCode != "Accepted" {
			t.Errorf("unexpected outcome: %+v", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never released")
	}

	// Only the first delivery counts; a duplicate must not block or panic.
	p.RecordResult("m5", nil, CallOutcome{Success: false})
}

func TestPendingAbandon(t *testing.T) {
	p := NewPendingRegistry(newTestLogger())

	ch := p.Wait("m6")
	p.Abandon("m6")
	p.RecordResult("m6", nil, CallOutcome{Success: true})

	select {
	case <-ch:
		t.Error("abandoned waiter should receive nothing")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestPendingMetaAccessors(t *testing.T) {
	meta := PendingMeta{"s": "text", "i": 7, "f": float64(9)}

	if meta.String("s") != "text" || meta.String("missing") != "" {
		t.Error("string accessor misbehaved")
	}
	if v, ok := meta.Int("i"); !ok || v != 7 {
		t.Error("int accessor misbehaved for int")
	}
	if v, ok := meta.Int("f"); !ok || v != 9 {
		t.Error("int accessor misbehaved for float64")
	}
	if _, ok := meta.Int("s"); ok {
		t.Error("int accessor accepted a string")
	}
}
