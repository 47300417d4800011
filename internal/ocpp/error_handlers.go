package ocpp

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
)

// errorHandlers builds the CallError dispatch table. Every action the
// gateway initiates has an entry; most share the generic shape, the
// rest add the same side-effect bookkeeping their result twins do.
func (g *Gateway) errorHandlers() map[Action]errorHandler {
	table := make(map[Action]errorHandler, len(g.results))
	for action := range g.results {
		table[action] = g.genericError(action)
	}

	table[ActionReserveNow] = g.onReserveNowError
	table[ActionCertificateSigned] = g.onCertificateSignedError
	table[ActionRemoteStartTransaction] = g.onCommandError(ActionRemoteStartTransaction)
	table[ActionRequestStartTransaction] = g.onCommandError(ActionRequestStartTransaction)
	table[ActionRemoteStopTransaction] = g.onCommandError(ActionRemoteStopTransaction)
	table[ActionRequestStopTransaction] = g.onCommandError(ActionRequestStopTransaction)

	return table
}

// errorDetail renders a readable one-liner out of the CallError triple.
func errorDetail(frame *Frame) string {
	var b strings.Builder
	b.WriteString(frame.ErrorCode)
	if frame.ErrorDescription != "" {
		fmt.Fprintf(&b, ": %s", frame.ErrorDescription)
	}
	if len(frame.ErrorDetails) > 0 {
		details := string(frame.ErrorDetails)
		if details != "{}" && details != "null" {
			fmt.Fprintf(&b, " (%s)", details)
		}
	}
	return b.String()
}

func (g *Gateway) genericError(action Action) errorHandler {
	return func(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, frame *Frame, logKey string) bool {
		detail := errorDetail(frame)
		g.resultAudit(lc, logKey, frame.ErrorCode,
			zap.String("action", string(action)),
			zap.String("detail", detail),
		)

		g.finishWorkflow(ctx, meta, domain.WorkflowStatusError, detail, frame.ErrorDetails, nil)
		g.pending.RecordResult(messageID, meta, CallOutcome{
			Success:    false,
			Detail:     detail,
			StatusCode: frame.ErrorCode,
		})
		return true
	}
}

func (g *Gateway) onReserveNowError(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, frame *Frame, logKey string) bool {
	detail := errorDetail(frame)
	reservationID, _ := meta.Int(MetaReservationID)

	g.resultAudit(lc, logKey, frame.ErrorCode,
		zap.Int("reservation_id", reservationID),
		zap.String("detail", detail),
	)

	g.finishWorkflow(ctx, meta, domain.WorkflowStatusError, detail, frame.ErrorDetails, map[string]interface{}{
		"evcs_confirmed": false,
		"evcs_status":    frame.ErrorCode,
	})
	g.pending.RecordResult(messageID, meta, CallOutcome{
		Success:    false,
		Detail:     detail,
		StatusCode: frame.ErrorCode,
	})
	return true
}

func (g *Gateway) onCertificateSignedError(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, frame *Frame, logKey string) bool {
	detail := errorDetail(frame)
	certType := meta.String(MetaCertType)

	g.resultAudit(lc, logKey, frame.ErrorCode,
		zap.String("certificate_type", certType),
		zap.String("detail", detail),
	)

	g.finishWorkflow(ctx, meta, domain.WorkflowStatusError, detail, frame.ErrorDetails, nil)
	g.notify(ctx, "certificate.install.failed",
		fmt.Sprintf("charger %s failed signed %s certificate delivery: %s", lc.Serial, certType, detail))

	g.pending.RecordResult(messageID, meta, CallOutcome{
		Success:    false,
		Detail:     detail,
		StatusCode: frame.ErrorCode,
	})
	return true
}

func (g *Gateway) onCommandError(action Action) errorHandler {
	return func(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, frame *Frame, logKey string) bool {
		detail := errorDetail(frame)
		g.resultAudit(lc, logKey, frame.ErrorCode,
			zap.String("action", string(action)),
			zap.String("detail", detail),
		)

		g.finishWorkflow(ctx, meta, domain.WorkflowStatusError, detail, frame.ErrorDetails, map[string]interface{}{
			"stage": domain.CommandStageRequested,
		})
		g.pending.RecordResult(messageID, meta, CallOutcome{
			Success:    false,
			Detail:     detail,
			StatusCode: frame.ErrorCode,
		})
		return true
	}
}
