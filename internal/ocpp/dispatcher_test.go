package ocpp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestHandleCallHeartbeat(t *testing.T) {
	g, _ := newTestGateway(t, Config{})
	lc, sock := connect(t, g, "CP-1")

	// Act
	g.HandleFrame(context.Background(), lc, []byte(`[2,"m1","Heartbeat",{}]`))

	// Assert: one CallResult with a currentTime payload.
	frames := sock.sentFrames()
	if len(frames) != 1 {
		t.Fatalf("expected exactly one outbound frame, got %d", len(frames))
	}

	parts := decodeFrame(t, frames[0])
	if len(parts) != 3 {
		t.Fatalf("CallResult must have three elements, got %d", len(parts))
	}
	if string(parts[0]) != "3" {
		t.Errorf("expected message type 3, got %s", parts[0])
	}
	if string(parts[1]) != `"m1"` {
		t.Errorf("message id must be echoed, got %s", parts[1])
	}

	var payload heartbeatResp
	if err := json.Unmarshal(parts[2], &payload); err != nil || payload.CurrentTime == "" {
		t.Errorf("expected a currentTime payload, got %s", parts[2])
	}
}

func TestHandleCallUnknownActionEmptyReply(t *testing.T) {
	g, _ := newTestGateway(t, Config{})
	lc, sock := connect(t, g, "CP-1")

	g.HandleFrame(context.Background(), lc, []byte(`[2,"m2","MadeUpAction",{"x":1}]`))

	parts := decodeFrame(t, sock.lastFrame())
	if string(parts[0]) != "3" || strings.TrimSpace(string(parts[2])) != "{}" {
		t.Errorf("unknown actions get an empty CallResult, got %s", sock.lastFrame())
	}
}

func TestHandleFrameDropsGarbage(t *testing.T) {
	g, _ := newTestGateway(t, Config{})
	lc, sock := connect(t, g, "CP-1")

	for _, raw := range []string{"nonsense", `{"ocpp":null}`, `[]`, `[9,"x"]`} {
		g.HandleFrame(context.Background(), lc, []byte(raw))
	}

	if len(sock.sentFrames()) != 0 {
		t.Error("garbage frames must be dropped without replies")
	}
	if sock.closed {
		t.Error("garbage frames must not close the connection")
	}
}

func TestHandleCallResultUnknownIDDropped(t *testing.T) {
	g, _ := newTestGateway(t, Config{})
	lc, sock := connect(t, g, "CP-1")

	g.HandleFrame(context.Background(), lc, []byte(`[3,"never-sent",{"status":"Accepted"}]`))

	if len(sock.sentFrames()) != 0 {
		t.Error("late or duplicate results are dropped silently")
	}
}

func TestHandleCallResultIdentityMismatchDropped(t *testing.T) {
	g, m := newTestGateway(t, Config{})
	lc, _ := connect(t, g, "CP-1")

	updated := false
	m.workflows.UpdateFieldsFunc = func(ctx context.Context, id string, fields map[string]interface{}) error {
		updated = true
		return nil
	}

	// Pending call was issued for a different charger identity.
	g.pending.Register("m3", ActionReset, "CP-OTHER", PendingMeta{MetaWorkflowID: "wf-1"})

	g.HandleFrame(context.Background(), lc, []byte(`[3,"m3",{"status":"Accepted"}]`))

	g.pool.Close()
	if updated {
		t.Error("mismatched identity must not resolve the workflow")
	}
	if _, ok := g.pending.Pop("m3"); ok {
		t.Error("the entry is consumed even when dropped")
	}
}

func TestHandleCallResultGenericFallback(t *testing.T) {
	g, _ := newTestGateway(t, Config{})
	lc, _ := connect(t, g, "CP-1")

	// An action with no specific result handler still releases waiters.
	g.pending.Register("m4", Action("VendorSpecificThing"), "CP-1", nil)
	ch := g.pending.Wait("m4")

	g.HandleFrame(context.Background(), lc, []byte(`[3,"m4",{"ok":true}]`))

	select {
	case outcome := <-ch:
		if !outcome.Success {
			t.Errorf("generic resolution should be successful, got %+v", outcome)
		}
	default:
		t.Fatal("synchronous waiter was not released")
	}
}

func TestHandleCallErrorGenericFallback(t *testing.T) {
	g, _ := newTestGateway(t, Config{})
	lc, _ := connect(t, g, "CP-1")

	g.pending.Register("m5", Action("VendorSpecificThing"), "CP-1", nil)
	ch := g.pending.Wait("m5")

	g.HandleFrame(context.Background(), lc, []byte(`[4,"m5","NotSupported","nope",{}]`))

	select {
	case outcome := <-ch:
		if outcome.Success {
			t.Error("CallError must resolve as failure")
		}
		if !strings.Contains(outcome.Detail, "NotSupported") || !strings.Contains(outcome.Detail, "nope") {
			t.Errorf("detail should carry code and description, got %q", outcome.Detail)
		}
	default:
		t.Fatal("synchronous waiter was not released")
	}
}

func TestFollowupConsumedOnInboundCall(t *testing.T) {
	g, _ := newTestGateway(t, Config{})
	lc, _ := connect(t, g, "CP-1")

	g.followups.Register("CP-1", ActionStatusNotification, 1, "trigger/t1", "StatusNotification")

	g.HandleFrame(context.Background(), lc, []byte(`[2,"m6","StatusNotification",{"connectorId":1,"status":"Available"}]`))

	if _, ok := g.followups.Consume("CP-1", ActionStatusNotification, 1); ok {
		t.Error("dispatch should have consumed the follow-up expectation")
	}
}

func TestConnectorFromPayload(t *testing.T) {
	cases := []struct {
		payload string
		want    int
	}{
		{`{"connectorId":3}`, 3},
		{`{"evse":{"id":2}}`, 2},
		{`{"evse":{"id":2,"connectorId":5}}`, 5},
		{`{}`, 0},
		{`broken`, 0},
	}

	for _, tc := range cases {
		if got := connectorFromPayload(json.RawMessage(tc.payload)); got != tc.want {
			t.Errorf("connectorFromPayload(%s) = %d, want %d", tc.payload, got, tc.want)
		}
	}
}
