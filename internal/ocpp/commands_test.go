package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gridfleet/gateway/internal/domain"
)

func waitForFrame(t *testing.T, sock *fakeSocket) []byte {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frame := sock.lastFrame(); frame != nil {
			return frame
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no frame was sent")
	return nil
}

func TestDispatchResolvesOnCallResult(t *testing.T) {
	g, _ := newTestGateway(t, Config{})
	lc, sock := connect(t, g, "CP-1")

	type result struct {
		outcome CallOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := g.Dispatch(context.Background(), "CP-1", 0, ActionReset,
			map[string]string{"type": "Soft"}, PendingMeta{})
		done <- result{outcome, err}
	}()

	// Answer the Call the gateway just sent.
	frame := waitForFrame(t, sock)
	parts := decodeFrame(t, frame)

	var messageID, action string
	json.Unmarshal(parts[1], &messageID)
	json.Unmarshal(parts[2], &action)
	if action != "Reset" {
		t.Fatalf("expected a Reset call, got %s", action)
	}

	reply, _ := EncodeCallResult(messageID, map[string]string{"status": "Accepted"})
	g.HandleFrame(context.Background(), lc, reply)

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("dispatch failed: %v", r.err)
		}
		if !r.outcome.Success || r.outcome.StatusCode != "Accepted" {
			t.Errorf("unexpected outcome %+v", r.outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never resolved")
	}
}

func TestDispatchNotConnected(t *testing.T) {
	g, _ := newTestGateway(t, Config{})

	_, err := g.Dispatch(context.Background(), "GHOST", 0, ActionReset, nil, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	if err := g.SendCallAsync("GHOST", 0, ActionReset, nil, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestDiagnosticsTimeoutFiresExactlyOnce(t *testing.T) {
	g, m := newTestGateway(t, Config{
		ActionTimeouts: map[string]time.Duration{"GetDiagnostics": 30 * time.Millisecond},
	})
	lc, sock := connect(t, g, "CP-1")

	var mu sync.Mutex
	updates := 0
	m.workflows.UpdateFieldsFunc = func(ctx context.Context, id string, fields map[string]interface{}) error {
		mu.Lock()
		defer mu.Unlock()
		if id == "wf-diag" {
			updates++
			if fields["status"] != domain.WorkflowStatusError {
				t.Errorf("timeout should mark the workflow Error, got %v", fields["status"])
			}
		}
		return nil
	}

	outcome, err := g.Dispatch(context.Background(), "CP-1", 0, ActionGetDiagnostics,
		map[string]string{"location": "ftp://example.com/up"},
		PendingMeta{MetaWorkflowID: "wf-diag"})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if outcome.Success || outcome.StatusCode != "Timeout" {
		t.Errorf("expected timeout outcome, got %+v", outcome)
	}

	// A late CallResult for the same message id must be silently dropped.
	parts := decodeFrame(t, waitForFrame(t, sock))
	var messageID string
	json.Unmarshal(parts[1], &messageID)

	late, _ := EncodeCallResult(messageID, map[string]string{"fileName": "diag.tgz"})
	g.HandleFrame(context.Background(), lc, late)

	g.pool.Close()

	mu.Lock()
	defer mu.Unlock()
	if updates != 1 {
		t.Errorf("timeout bookkeeping must run exactly once, ran %d times", updates)
	}
}

func TestDispatchActionCreatesCommandWorkflow(t *testing.T) {
	g, m := newTestGateway(t, Config{})
	lc, sock := connect(t, g, "CP-1")

	var mu sync.Mutex
	var saved *domain.WorkflowRecord
	m.workflows.SaveFunc = func(ctx context.Context, rec *domain.WorkflowRecord) error {
		mu.Lock()
		defer mu.Unlock()
		saved = rec
		return nil
	}

	done := make(chan CallOutcome, 1)
	go func() {
		outcome, err := g.DispatchAction(context.Background(), "CP-1", 0,
			"UnlockConnector", json.RawMessage(`{"connectorId":1}`))
		if err != nil {
			t.Errorf("dispatch action failed: %v", err)
		}
		done <- outcome
	}()

	parts := decodeFrame(t, waitForFrame(t, sock))
	var messageID string
	json.Unmarshal(parts[1], &messageID)

	reply, _ := EncodeCallResult(messageID, map[string]string{"status": "Unlocked"})
	g.HandleFrame(context.Background(), lc, reply)

	select {
	case outcome := <-done:
		if !outcome.Success {
			t.Errorf("unlock should succeed, got %+v", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch action never resolved")
	}

	mu.Lock()
	defer mu.Unlock()
	if saved == nil {
		t.Fatal("no workflow record was created")
	}
	if saved.Kind != domain.WorkflowCommandRequest || saved.Stage != domain.CommandStageRequested {
		t.Errorf("unexpected workflow record %+v", saved)
	}
	if saved.Action != "UnlockConnector" {
		t.Errorf("action not recorded, got %s", saved.Action)
	}
}

func TestDispatchContextCancellation(t *testing.T) {
	g, _ := newTestGateway(t, Config{
		DefaultCallTimeout: 5 * time.Second,
	})
	connect(t, g, "CP-1")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := g.Dispatch(ctx, "CP-1", 0, ActionReset, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation, got %v", err)
	}
}
