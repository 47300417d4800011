package ocpp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
)

// inboundHandler serves one charge-point initiated Call and returns the
// reply payload for the CallResult echo.
type inboundHandler func(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{}

// resultHandler consumes the CallResult for an action the gateway
// initiated. It persists the workflow outcome, writes the correlated
// audit line, releases synchronous waiters, and reports whether it
// fully handled the frame.
type resultHandler func(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool

// errorHandler is the CallError counterpart of resultHandler.
type errorHandler func(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, frame *Frame, logKey string) bool

// Per-action call timeouts. Firmware, diagnostics and certificate
// operations wait on device-side work and get a wider window; anything
// absent here uses the configured default.
var defaultActionTimeouts = map[Action]time.Duration{
	ActionUpdateFirmware:             30 * time.Second,
	ActionPublishFirmware:            30 * time.Second,
	ActionUnpublishFirmware:          30 * time.Second,
	ActionGetDiagnostics:             30 * time.Second,
	ActionGetLog:                     30 * time.Second,
	ActionCertificateSigned:          30 * time.Second,
	ActionInstallCertificate:         30 * time.Second,
	ActionDeleteCertificate:          30 * time.Second,
	ActionGetInstalledCertificateIds: 30 * time.Second,
	ActionSendLocalList:              10 * time.Second,
	ActionGetConfiguration:           10 * time.Second,
	ActionGetBaseReport:              10 * time.Second,
	ActionGetReport:                  10 * time.Second,
	ActionGetCompositeSchedule:       10 * time.Second,
}

// Pending-call metadata keys shared between coordinators and handlers.
const (
	MetaWorkflowID    = "workflow_id"
	MetaConnector     = "connector"
	MetaConfigKey     = "config_key"
	MetaConfigValue   = "config_value"
	MetaReservationID = "reservation_id"
	MetaProfileID     = "profile_id"
	MetaListVersion   = "list_version"
	MetaCertType      = "cert_type"
	MetaTriggerTarget = "trigger_target"
	MetaLogKey        = "log_key"
	MetaStage         = "stage"
)

// Statuses a device reports that count as the call being taken on.
func acceptedStatus(status string) bool {
	switch status {
	case "Accepted", "Scheduled", "RebootRequired", "Unlocked", "Ongoing", "Installed":
		return true
	}
	return false
}

func parseStatus(payload json.RawMessage) (string, string) {
	var resp statusResp
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", ""
	}
	info := ""
	if resp.StatusInfo != nil {
		info = resp.StatusInfo.ReasonCode
		if resp.StatusInfo.AdditionalInfo != "" {
			info = fmt.Sprintf("%s: %s", resp.StatusInfo.ReasonCode, resp.StatusInfo.AdditionalInfo)
		}
	}
	return resp.Status, info
}

func workflowStatusFor(status string) domain.WorkflowStatus {
	if acceptedStatus(status) {
		return domain.WorkflowStatusAccepted
	}
	return domain.WorkflowStatusRejected
}

// finishWorkflow persists the terminal handler outcome into the
// workflow row named by the pending-call metadata. The write goes
// through the worker pool; the connection goroutine never waits on the
// database itself.
func (g *Gateway) finishWorkflow(ctx context.Context, meta PendingMeta, status domain.WorkflowStatus, info string, payload json.RawMessage, extra map[string]interface{}) {
	workflowID := meta.String(MetaWorkflowID)
	if workflowID == "" {
		return
	}

	fields := map[string]interface{}{
		"status":       status,
		"status_info":  info,
		"responded_at": time.Now().UTC(),
	}
	if len(payload) > 0 {
		fields["response_payload"] = string(payload)
	}
	for k, v := range extra {
		fields[k] = v
	}

	g.pool.Submit(ctx, func(ctx context.Context) error {
		if err := g.workflows.UpdateFields(ctx, workflowID, fields); err != nil {
			return fmt.Errorf("finish workflow %s: %w", workflowID, err)
		}
		return nil
	})
}

// resultAudit is the single correlated log line every handler writes.
func (g *Gateway) resultAudit(lc *LiveConnection, logKey, status string, fields ...zap.Field) {
	base := []zap.Field{
		zap.String("charge_point_id", lc.Serial),
		zap.String("log_key", logKey),
		zap.String("status", status),
	}
	g.log.Info("Call resolved", append(base, fields...)...)
}

// simpleResult builds the standard handler for actions whose reply is a
// bare status object and whose only bookkeeping is the workflow row.
func (g *Gateway) simpleResult(action Action) resultHandler {
	return func(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
		status, info := parseStatus(payload)
		g.resultAudit(lc, logKey, status, zap.String("action", string(action)))
		g.finishWorkflow(ctx, meta, workflowStatusFor(status), info, payload, nil)
		g.pending.RecordResult(messageID, meta, CallOutcome{
			Success:    acceptedStatus(status),
			Detail:     info,
			StatusCode: status,
			Payload:    payload,
		})
		return true
	}
}
