package ocpp

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// HandleFrame processes one raw frame from a live connection. Frames
// from the same connection arrive here strictly in order; nothing that
// happens inside may take the connection down.
func (g *Gateway) HandleFrame(ctx context.Context, lc *LiveConnection, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("Frame handler panic",
				zap.String("charge_point_id", lc.Serial),
				zap.Any("panic", r),
			)
		}
	}()

	frame, err := Decode(data)
	if err != nil {
		// Devices send garbage now and then. Drop, keep serving.
		g.log.Debug("Dropping undecodable frame",
			zap.String("charge_point_id", lc.Serial),
			zap.Error(err),
		)
		return
	}

	switch frame.Type {
	case Call:
		g.handleCall(ctx, lc, frame)
	case CallResult:
		g.handleCallResult(ctx, lc, frame)
	case CallError:
		g.handleCallError(ctx, lc, frame)
	}
}

// connectorFromPayload pulls the connector number out of the payload
// shapes both protocol generations use.
func connectorFromPayload(payload json.RawMessage) int {
	var probe struct {
		ConnectorID int `json:"connectorId"`
		Evse        *struct {
			ID          int `json:"id"`
			ConnectorID int `json:"connectorId"`
		} `json:"evse,omitempty"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return 0
	}
	if probe.ConnectorID > 0 {
		return probe.ConnectorID
	}
	if probe.Evse != nil {
		if probe.Evse.ConnectorID > 0 {
			return probe.Evse.ConnectorID
		}
		return probe.Evse.ID
	}
	return 0
}

func (g *Gateway) handleCall(ctx context.Context, lc *LiveConnection, frame *Frame) {
	action := Action(frame.Action)
	g.audit(lc, "in", frame.Action, frame.Raw)

	connector := connectorFromPayload(frame.Payload)

	if fu, ok := g.followups.Consume(lc.Serial, action, connector); ok {
		g.log.Info("Follow-up received",
			zap.String("charge_point_id", lc.Serial),
			zap.String("action", frame.Action),
			zap.Int("connector", connector),
			zap.String("log_key", fu.LogKey),
			zap.String("target", fu.Target),
		)
	}

	var reply interface{}
	if handler, ok := g.inbound[action]; ok {
		reply = g.invokeInbound(ctx, lc, frame, handler)
	} else {
		g.log.Debug("No handler for inbound action",
			zap.String("charge_point_id", lc.Serial),
			zap.String("action", frame.Action),
		)
		reply = map[string]interface{}{}
	}

	g.sendCallResult(lc, frame.MessageID, action, reply)
	g.relayFrame(ctx, lc, lc.ForwardURL, frame)
}

// invokeInbound runs the handler with a panic guard; a crashed handler
// still yields an empty reply so the device gets its CallResult.
func (g *Gateway) invokeInbound(ctx context.Context, lc *LiveConnection, frame *Frame, handler inboundHandler) (reply interface{}) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("Inbound handler panic",
				zap.String("charge_point_id", lc.Serial),
				zap.String("action", frame.Action),
				zap.String("message_id", frame.MessageID),
				zap.Any("panic", r),
			)
			reply = map[string]interface{}{}
		}
	}()

	reply = handler(ctx, lc, frame.MessageID, frame.Payload)
	if reply == nil {
		reply = map[string]interface{}{}
	}
	return reply
}

func (g *Gateway) handleCallResult(ctx context.Context, lc *LiveConnection, frame *Frame) {
	pc, ok := g.pending.Pop(frame.MessageID)
	if !ok {
		// Unknown or already resolved: duplicates and late replies are
		// routine under retried transports.
		g.log.Debug("CallResult for unknown message id",
			zap.String("charge_point_id", lc.Serial),
			zap.String("message_id", frame.MessageID),
		)
		return
	}

	if pc.Serial != lc.Serial {
		g.log.Warn("CallResult identity mismatch, dropping",
			zap.String("message_id", frame.MessageID),
			zap.String("expected", pc.Serial),
			zap.String("got", lc.Serial),
		)
		return
	}

	g.audit(lc, "in", string(pc.Action), frame.Raw)

	logKey := pc.Meta.String(MetaLogKey)
	if logKey == "" {
		logKey = fmt.Sprintf("%s/%s", pc.Action, frame.MessageID)
	}

	if handler, ok := g.results[pc.Action]; ok {
		if g.invokeResult(ctx, lc, frame, pc, logKey, func() bool {
			return handler(ctx, lc, frame.MessageID, pc.Meta, frame.Payload, logKey)
		}) {
			return
		}
	}

	// No specific handler claimed the frame: still release synchronous
	// waiters so status polling works for every action.
	g.pending.RecordResult(frame.MessageID, pc.Meta, CallOutcome{
		Success: true,
		Payload: frame.Payload,
	})
}

func (g *Gateway) handleCallError(ctx context.Context, lc *LiveConnection, frame *Frame) {
	pc, ok := g.pending.Pop(frame.MessageID)
	if !ok {
		g.log.Debug("CallError for unknown message id",
			zap.String("charge_point_id", lc.Serial),
			zap.String("message_id", frame.MessageID),
		)
		return
	}

	if pc.Serial != lc.Serial {
		g.log.Warn("CallError identity mismatch, dropping",
			zap.String("message_id", frame.MessageID),
			zap.String("expected", pc.Serial),
			zap.String("got", lc.Serial),
		)
		return
	}

	g.audit(lc, "in", string(pc.Action), frame.Raw)

	logKey := pc.Meta.String(MetaLogKey)
	if logKey == "" {
		logKey = fmt.Sprintf("%s/%s", pc.Action, frame.MessageID)
	}

	if handler, ok := g.errors[pc.Action]; ok {
		if g.invokeResult(ctx, lc, frame, pc, logKey, func() bool {
			return handler(ctx, lc, frame.MessageID, pc.Meta, frame, logKey)
		}) {
			return
		}
	}

	g.pending.RecordResult(frame.MessageID, pc.Meta, CallOutcome{
		Success:    false,
		Detail:     errorDetail(frame),
		StatusCode: frame.ErrorCode,
	})
}

// invokeResult runs a result or error handler under a panic guard. A
// crashed handler converts to a generic failure outcome so synchronous
// waiters still unblock.
func (g *Gateway) invokeResult(ctx context.Context, lc *LiveConnection, frame *Frame, pc *PendingCall, logKey string, run func() bool) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("Result handler panic",
				zap.String("charge_point_id", lc.Serial),
				zap.String("action", string(pc.Action)),
				zap.String("message_id", frame.MessageID),
				zap.String("log_key", logKey),
				zap.Any("panic", r),
			)
			g.pending.RecordResult(frame.MessageID, pc.Meta, CallOutcome{
				Success: false,
				Detail:  fmt.Sprintf("internal handler failure for %s", pc.Action),
			})
			handled = true
		}
	}()

	return run()
}
