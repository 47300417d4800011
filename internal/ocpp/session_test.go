package ocpp

import (
	"testing"

	"github.com/gridfleet/gateway/internal/domain"
)

func TestSessionLifecycle(t *testing.T) {
	tr := NewSessionTracker(newTestLogger())

	if tr.State("CP-1", 1) != domain.ChargerStatusAvailable {
		t.Fatal("unknown connectors start Available")
	}

	for _, status := range []domain.ChargerStatus{
		domain.ChargerStatusPreparing,
		domain.ChargerStatusCharging,
		domain.ChargerStatusFinishing,
		domain.ChargerStatusAvailable,
	} {
		if got := tr.ApplyStatus("CP-1", 1, status); got != status {
			t.Errorf("expected %s, got %s", status, got)
		}
	}
}

func TestSessionFaultedFromAnywhere(t *testing.T) {
	tr := NewSessionTracker(newTestLogger())

	tr.ApplyStatus("CP-1", 1, domain.ChargerStatusCharging)
	if got := tr.ApplyStatus("CP-1", 1, domain.ChargerStatusFaulted); got != domain.ChargerStatusFaulted {
		t.Errorf("Faulted should apply from Charging, got %s", got)
	}

	tr.ApplyStatus("CP-1", 2, domain.ChargerStatusPreparing)
	if got := tr.ApplyStatus("CP-1", 2, domain.ChargerStatusUnavailable); got != domain.ChargerStatusUnavailable {
		t.Errorf("Unavailable should apply from Preparing, got %s", got)
	}
}

func TestSessionReservedFromIdle(t *testing.T) {
	tr := NewSessionTracker(newTestLogger())

	if got := tr.ApplyStatus("CP-1", 1, domain.ChargerStatusReserved); got != domain.ChargerStatusReserved {
		t.Errorf("Reserved should apply from Available, got %s", got)
	}
}

func TestSessionTransactionEnergy(t *testing.T) {
	tr := NewSessionTracker(newTestLogger())

	tr.TransactionStarted("CP-1", 1, "tx-1", 1000)
	if tr.State("CP-1", 1) != domain.ChargerStatusCharging {
		t.Error("starting a transaction moves the connector to Charging")
	}
	if tr.OpenTransaction("CP-1", 1) != "tx-1" {
		t.Error("open transaction id lost")
	}

	tr.MeterSample("CP-1", 1, 1400)
	tr.MeterSample("CP-1", 1, 2100)

	closed, ok := tr.TransactionEnded("CP-1", 1, "tx-1", 2500)
	if !ok {
		t.Fatal("closing the open transaction should succeed")
	}
	if closed.EnergyWh != 1500 {
		t.Errorf("expected 1500 Wh delivered, got %d", closed.EnergyWh)
	}
	if tr.State("CP-1", 1) != domain.ChargerStatusFinishing {
		t.Error("closed transaction leaves the connector Finishing")
	}
	if tr.OpenTransaction("CP-1", 1) != "" {
		t.Error("transaction should be closed")
	}
}

func TestSessionMeterSampleWithoutTransaction(t *testing.T) {
	tr := NewSessionTracker(newTestLogger())

	// Must not panic or accumulate anything.
	tr.MeterSample("CP-1", 1, 5000)

	if _, ok := tr.TransactionEnded("CP-1", 1, "ghost", 5000); ok {
		t.Error("closing without an open record must report not found")
	}
}

func TestSessionStopWrongIDTolerated(t *testing.T) {
	tr := NewSessionTracker(newTestLogger())

	tr.TransactionStarted("CP-1", 1, "tx-1", 0)
	if _, ok := tr.TransactionEnded("CP-1", 1, "tx-other", 100); ok {
		t.Error("mismatched transaction id must not close the open session")
	}
	if tr.OpenTransaction("CP-1", 1) != "tx-1" {
		t.Error("open transaction should survive a mismatched stop")
	}
}

func TestSessionDrop(t *testing.T) {
	tr := NewSessionTracker(newTestLogger())

	tr.ApplyStatus("CP-1", 1, domain.ChargerStatusCharging)
	tr.ApplyStatus("CP-2", 1, domain.ChargerStatusCharging)
	tr.Drop("CP-1")

	if tr.State("CP-1", 1) != domain.ChargerStatusAvailable {
		t.Error("dropped charger should reset to Available")
	}
	if tr.State("CP-2", 1) != domain.ChargerStatusCharging {
		t.Error("other chargers must be untouched")
	}
}
