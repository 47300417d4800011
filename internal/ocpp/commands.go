package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/observability/telemetry"
)

var ErrNotConnected = errors.New("charge point not connected")

// liveFor resolves the connection serving a charger, falling back to
// the station-wide socket for connector-scoped calls.
func (g *Gateway) liveFor(serial string, connector int) *LiveConnection {
	if lc := g.registry.Get(IdentityKey(serial, connector)); lc != nil {
		return lc
	}
	if connector > 0 {
		return g.registry.Get(serial)
	}
	return nil
}

// scheduleCallTimeout arms the per-action timeout. Firing synthesizes a
// failure outcome exactly once; resolution racing the timer is settled
// by the registry's pop-once semantics.
func (g *Gateway) scheduleCallTimeout(messageID string, action Action, d time.Duration) {
	g.pending.ScheduleTimeout(messageID, d, func(pc *PendingCall) {
		telemetry.PendingCallTimeoutsTotal.WithLabelValues(string(action)).Inc()
		g.log.Warn("Call timed out",
			zap.String("charge_point_id", pc.Serial),
			zap.String("action", string(action)),
			zap.String("message_id", pc.MessageID),
			zap.Duration("timeout", d),
		)

		g.finishWorkflow(context.Background(), pc.Meta, domain.WorkflowStatusError,
			fmt.Sprintf("no reply within %s", d), nil, nil)
		g.pending.RecordResult(pc.MessageID, pc.Meta, CallOutcome{
			Success:    false,
			Detail:     fmt.Sprintf("%s timed out after %s", action, d),
			StatusCode: "Timeout",
		})
	})
}

// SendCallAsync transmits a Call without waiting for its resolution.
// The registered result/error handler (or the timeout) finishes the
// workflow named in meta.
func (g *Gateway) SendCallAsync(serial string, connector int, action Action, payload interface{}, meta PendingMeta) error {
	lc := g.liveFor(serial, connector)
	if lc == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, serial)
	}

	messageID := NewMessageID()
	data, err := EncodeCall(messageID, action, payload)
	if err != nil {
		return err
	}

	g.pending.Register(messageID, action, serial, meta)
	g.scheduleCallTimeout(messageID, action, g.callTimeout(action))

	if err := lc.Send(data); err != nil {
		g.pending.Pop(messageID)
		return fmt.Errorf("send %s to %s: %w", action, serial, err)
	}

	g.audit(lc, "out", string(action), data)
	return nil
}

// Dispatch sends a Call and blocks until the handler tables resolve it
// or the per-action timeout fires. This is the synchronous entry point
// the admin layer and the workflow coordinators share.
func (g *Gateway) Dispatch(ctx context.Context, serial string, connector int, action Action, payload interface{}, meta PendingMeta) (CallOutcome, error) {
	lc := g.liveFor(serial, connector)
	if lc == nil {
		return CallOutcome{}, fmt.Errorf("%w: %s", ErrNotConnected, serial)
	}

	messageID := NewMessageID()
	data, err := EncodeCall(messageID, action, payload)
	if err != nil {
		return CallOutcome{}, err
	}

	g.pending.Register(messageID, action, serial, meta)
	outcome := g.pending.Wait(messageID)
	g.scheduleCallTimeout(messageID, action, g.callTimeout(action))

	if err := lc.Send(data); err != nil {
		g.pending.Pop(messageID)
		g.pending.Abandon(messageID)
		return CallOutcome{}, fmt.Errorf("send %s to %s: %w", action, serial, err)
	}
	g.audit(lc, "out", string(action), data)

	select {
	case result := <-outcome:
		return result, nil
	case <-ctx.Done():
		g.pending.Abandon(messageID)
		return CallOutcome{}, ctx.Err()
	}
}

// DispatchAction is the generic admin-facing operation: it wraps an
// arbitrary action plus JSON parameters in a tracked command workflow
// and returns the device's answer.
func (g *Gateway) DispatchAction(ctx context.Context, serial string, connector int, action string, params json.RawMessage) (CallOutcome, error) {
	ctx, span := otel.Tracer("ocpp").Start(ctx, "DispatchAction")
	defer span.End()
	span.SetAttributes(
		attribute.String("ocpp.action", action),
		attribute.String("ocpp.charge_point_id", serial),
	)

	if g.liveFor(serial, connector) == nil {
		span.SetStatus(codes.Error, "charge point not connected")
		return CallOutcome{}, fmt.Errorf("%w: %s", ErrNotConnected, serial)
	}

	rec := &domain.WorkflowRecord{
		ID:          NewMessageID(),
		Kind:        domain.WorkflowCommandRequest,
		ChargerID:   serial,
		Action:      action,
		Status:      domain.WorkflowStatusPending,
		Stage:       domain.CommandStageRequested,
		RequestedAt: time.Now().UTC(),
	}
	if connector > 0 {
		rec.Connector = &connector
	}
	if len(params) > 0 {
		rec.RequestPayload = string(params)
	}

	if err := g.pool.SubmitWait(ctx, func(ctx context.Context) error {
		return g.workflows.Save(ctx, rec)
	}); err != nil {
		return CallOutcome{}, fmt.Errorf("save command workflow: %w", err)
	}

	var payload interface{}
	if len(params) > 0 {
		payload = params
	}

	meta := PendingMeta{
		MetaWorkflowID: rec.ID,
		MetaLogKey:     fmt.Sprintf("command/%s/%s", action, rec.ID),
	}
	if connector > 0 {
		meta[MetaConnector] = connector
	}

	outcome, err := g.Dispatch(ctx, serial, connector, Action(action), payload, meta)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Bool("ocpp.success", outcome.Success))
	}
	return outcome, err
}
