package ocpp

import (
	"testing"
	"time"
)

func TestFollowupRegisterConsume(t *testing.T) {
	f := NewFollowupRegistry(time.Minute)

	f.Register("CP-1", ActionStatusNotification, 2, "trigger/abc", "StatusNotification")

	fu, ok := f.Consume("CP-1", ActionStatusNotification, 2)
	if !ok {
		t.Fatal("expected a stored expectation")
	}
	if fu.LogKey != "trigger/abc" || fu.Target != "StatusNotification" {
		t.Errorf("expectation fields lost: %+v", fu)
	}

	if _, ok := f.Consume("CP-1", ActionStatusNotification, 2); ok {
		t.Error("consume must remove the expectation")
	}
}

func TestFollowupStationWideFallback(t *testing.T) {
	f := NewFollowupRegistry(time.Minute)

	f.Register("CP-1", ActionHeartbeat, 0, "trigger/hb", "Heartbeat")

	// A connector-scoped message still matches the station-wide entry.
	if _, ok := f.Consume("CP-1", ActionHeartbeat, 3); !ok {
		t.Error("station-wide expectation should match any connector")
	}
}

func TestFollowupConnectorPrecedence(t *testing.T) {
	f := NewFollowupRegistry(time.Minute)

	f.Register("CP-1", ActionMeterValues, 0, "trigger/station", "MeterValues")
	f.Register("CP-1", ActionMeterValues, 1, "trigger/conn1", "MeterValues")

	fu, ok := f.Consume("CP-1", ActionMeterValues, 1)
	if !ok || fu.LogKey != "trigger/conn1" {
		t.Errorf("connector-specific expectation should win, got %+v", fu)
	}

	fu, ok = f.Consume("CP-1", ActionMeterValues, 2)
	if !ok || fu.LogKey != "trigger/station" {
		t.Errorf("station-wide expectation should remain, got %+v", fu)
	}
}

func TestFollowupExpiry(t *testing.T) {
	f := NewFollowupRegistry(time.Minute)

	now := time.Unix(5000, 0)
	f.now = func() time.Time { return now }

	f.Register("CP-1", ActionBootNotification, 0, "trigger/boot", "BootNotification")

	now = now.Add(2 * time.Minute)
	if _, ok := f.Consume("CP-1", ActionBootNotification, 0); ok {
		t.Error("expired expectation must not be returned")
	}
}

func TestFollowupWrongChargerMisses(t *testing.T) {
	f := NewFollowupRegistry(time.Minute)

	f.Register("CP-1", ActionHeartbeat, 0, "k", "Heartbeat")
	if _, ok := f.Consume("CP-2", ActionHeartbeat, 0); ok {
		t.Error("expectation must be scoped to its charger")
	}
}
