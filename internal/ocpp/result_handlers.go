package ocpp

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
)

// resultHandlers builds the static CallResult dispatch table: one entry
// per action the gateway can initiate. Actions whose reply carries only
// a status enum share the simpleResult shape; the rest have side
// effects beyond workflow bookkeeping.
func (g *Gateway) resultHandlers() map[Action]resultHandler {
	return map[Action]resultHandler{
		ActionGetConfiguration:    g.onGetConfigurationResult,
		ActionChangeConfiguration: g.onChangeConfigurationResult,
		ActionGetVariables:        g.onGetVariablesResult,
		ActionSetVariables:        g.onSetVariablesResult,

		ActionChangeAvailability: g.simpleResult(ActionChangeAvailability),
		ActionUnlockConnector:    g.simpleResult(ActionUnlockConnector),
		ActionReset:              g.simpleResult(ActionReset),

		ActionReserveNow:        g.onReserveNowResult,
		ActionCancelReservation: g.onCancelReservationResult,

		ActionSetChargingProfile:   g.onSetChargingProfileResult,
		ActionClearChargingProfile: g.simpleResult(ActionClearChargingProfile),
		ActionGetCompositeSchedule: g.onGetCompositeScheduleResult,
		ActionGetChargingProfiles:  g.simpleResult(ActionGetChargingProfiles),

		ActionUpdateFirmware:    g.onFirmwareDispatchResult(ActionUpdateFirmware),
		ActionPublishFirmware:   g.onFirmwareDispatchResult(ActionPublishFirmware),
		ActionUnpublishFirmware: g.simpleResult(ActionUnpublishFirmware),
		ActionGetDiagnostics:    g.onDiagnosticsDispatchResult(ActionGetDiagnostics),
		ActionGetLog:            g.onDiagnosticsDispatchResult(ActionGetLog),

		ActionCertificateSigned:          g.onCertificateSignedResult,
		ActionInstallCertificate:         g.simpleResult(ActionInstallCertificate),
		ActionDeleteCertificate:          g.simpleResult(ActionDeleteCertificate),
		ActionGetInstalledCertificateIds: g.onGetInstalledCertificateIdsResult,

		ActionSendLocalList:       g.onSendLocalListResult,
		ActionGetLocalListVersion: g.onGetLocalListVersionResult,

		ActionTriggerMessage: g.onTriggerMessageResult,

		ActionRemoteStartTransaction:  g.onStartRequestResult(ActionRemoteStartTransaction),
		ActionRequestStartTransaction: g.onStartRequestResult(ActionRequestStartTransaction),
		ActionRemoteStopTransaction:   g.onStopRequestResult(ActionRemoteStopTransaction),
		ActionRequestStopTransaction:  g.onStopRequestResult(ActionRequestStopTransaction),
		ActionGetTransactionStatus:    g.onGetTransactionStatusResult,

		ActionGetBaseReport:           g.simpleResult(ActionGetBaseReport),
		ActionGetReport:               g.simpleResult(ActionGetReport),
		ActionSetMonitoringBase:       g.simpleResult(ActionSetMonitoringBase),
		ActionSetVariableMonitoring:   g.simpleResult(ActionSetVariableMonitoring),
		ActionClearVariableMonitoring: g.simpleResult(ActionClearVariableMonitoring),

		ActionSetDisplayMessage:   g.simpleResult(ActionSetDisplayMessage),
		ActionGetDisplayMessages:  g.simpleResult(ActionGetDisplayMessages),
		ActionClearDisplayMessage: g.simpleResult(ActionClearDisplayMessage),
		ActionCustomerInformation: g.simpleResult(ActionCustomerInformation),
		ActionSetNetworkProfile:   g.simpleResult(ActionSetNetworkProfile),
		ActionDataTransfer:        g.simpleResult(ActionDataTransfer),
	}
}

// onGetConfigurationResult caches the full key/value snapshot on the
// charger record and resolves the workflow.
func (g *Gateway) onGetConfigurationResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	var resp getConfigurationResp
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.log.Warn("Unparseable GetConfiguration reply", zap.String("log_key", logKey), zap.Error(err))
	}

	g.resultAudit(lc, logKey, "ok",
		zap.Int("keys", len(resp.ConfigurationKey)),
		zap.Strings("unknown_keys", resp.UnknownKey),
	)

	serial := lc.Serial
	snapshot := string(payload)
	g.pool.Submit(ctx, func(ctx context.Context) error {
		return g.chargers.UpdateFields(ctx, serial, map[string]interface{}{
			"config_snapshot": snapshot,
		})
	})

	g.finishWorkflow(ctx, meta, domain.WorkflowStatusCompleted, "", payload, nil)
	g.pending.RecordResult(messageID, meta, CallOutcome{Success: true, Payload: payload})
	return true
}

// onChangeConfigurationResult updates the cached value for the changed
// key when the device accepted it.
func (g *Gateway) onChangeConfigurationResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	status, info := parseStatus(payload)
	key := meta.String(MetaConfigKey)

	g.resultAudit(lc, logKey, status, zap.String("key", key))

	if acceptedStatus(status) && key != "" {
		serial, value := lc.Serial, meta.String(MetaConfigValue)
		g.pool.Submit(ctx, func(ctx context.Context) error {
			return g.devices.CacheConfigValue(ctx, serial, key, value)
		})
	}

	g.finishWorkflow(ctx, meta, workflowStatusFor(status), info, payload, nil)
	g.pending.RecordResult(messageID, meta, CallOutcome{
		Success:    acceptedStatus(status),
		Detail:     info,
		StatusCode: status,
		Payload:    payload,
	})
	return true
}

func (g *Gateway) onGetVariablesResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	var resp getVariablesResp
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.log.Warn("Unparseable GetVariables reply", zap.String("log_key", logKey), zap.Error(err))
	}

	accepted := 0
	serial := lc.Serial
	for _, r := range resp.GetVariableResult {
		if r.AttributeStatus != "Accepted" {
			continue
		}
		accepted++
		key := fmt.Sprintf("%s.%s", r.Component.Name, r.Variable.Name)
		value := r.AttributeValue
		g.pool.Submit(ctx, func(ctx context.Context) error {
			return g.devices.CacheConfigValue(ctx, serial, key, value)
		})
	}

	g.resultAudit(lc, logKey, "ok",
		zap.Int("variables", len(resp.GetVariableResult)),
		zap.Int("accepted", accepted),
	)
	g.finishWorkflow(ctx, meta, domain.WorkflowStatusCompleted, "", payload, nil)
	g.pending.RecordResult(messageID, meta, CallOutcome{Success: true, Payload: payload})
	return true
}

func (g *Gateway) onSetVariablesResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	var resp setVariablesResp
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.log.Warn("Unparseable SetVariables reply", zap.String("log_key", logKey), zap.Error(err))
	}

	rejected := 0
	for _, r := range resp.SetVariableResult {
		if !acceptedStatus(r.AttributeStatus) && r.AttributeStatus != "RebootRequired" {
			rejected++
		}
	}

	success := rejected == 0 && len(resp.SetVariableResult) > 0
	status := domain.WorkflowStatusAccepted
	info := ""
	if !success {
		status = domain.WorkflowStatusRejected
		info = fmt.Sprintf("%d of %d variables rejected", rejected, len(resp.SetVariableResult))
	}

	g.resultAudit(lc, logKey, string(status), zap.Int("rejected", rejected))
	g.finishWorkflow(ctx, meta, status, info, payload, nil)
	g.pending.RecordResult(messageID, meta, CallOutcome{Success: success, Detail: info, Payload: payload})
	return true
}

// onReserveNowResult confirms or rejects the reservation row.
func (g *Gateway) onReserveNowResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	status, info := parseStatus(payload)
	reservationID, _ := meta.Int(MetaReservationID)

	g.resultAudit(lc, logKey, status, zap.Int("reservation_id", reservationID))

	g.finishWorkflow(ctx, meta, workflowStatusFor(status), info, payload, map[string]interface{}{
		"evcs_confirmed": status == "Accepted",
		"evcs_status":    status,
	})
	g.pending.RecordResult(messageID, meta, CallOutcome{
		Success:    status == "Accepted",
		Detail:     info,
		StatusCode: status,
		Payload:    payload,
	})
	return true
}

func (g *Gateway) onCancelReservationResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	status, info := parseStatus(payload)
	reservationID, _ := meta.Int(MetaReservationID)

	g.resultAudit(lc, logKey, status, zap.Int("reservation_id", reservationID))

	g.finishWorkflow(ctx, meta, workflowStatusFor(status), info, payload, map[string]interface{}{
		"evcs_confirmed": false,
		"evcs_status":    "Cancelled",
	})
	g.pending.RecordResult(messageID, meta, CallOutcome{
		Success:    acceptedStatus(status),
		Detail:     info,
		StatusCode: status,
		Payload:    payload,
	})
	return true
}

func (g *Gateway) onSetChargingProfileResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	status, info := parseStatus(payload)
	profileID, _ := meta.Int(MetaProfileID)

	g.resultAudit(lc, logKey, status, zap.Int("profile_id", profileID))
	g.finishWorkflow(ctx, meta, workflowStatusFor(status), info, payload, nil)
	g.pending.RecordResult(messageID, meta, CallOutcome{
		Success:    acceptedStatus(status),
		Detail:     info,
		StatusCode: status,
		Payload:    payload,
	})
	return true
}

func (g *Gateway) onGetCompositeScheduleResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	var resp getCompositeScheduleResp
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.log.Warn("Unparseable GetCompositeSchedule reply", zap.String("log_key", logKey), zap.Error(err))
	}

	g.resultAudit(lc, logKey, resp.Status, zap.Bool("has_schedule", len(resp.Schedule) > 0))

	status := domain.WorkflowStatusCompleted
	if !acceptedStatus(resp.Status) {
		status = domain.WorkflowStatusRejected
	}
	g.finishWorkflow(ctx, meta, status, "", payload, nil)
	g.pending.RecordResult(messageID, meta, CallOutcome{
		Success:    acceptedStatus(resp.Status),
		StatusCode: resp.Status,
		Payload:    payload,
	})
	return true
}

// onFirmwareDispatchResult handles firmware-push acknowledgements. The
// 1.6 UpdateFirmware reply is an empty object; absence of a status
// means the device took the job.
func (g *Gateway) onFirmwareDispatchResult(action Action) resultHandler {
	return func(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
		status, info := parseStatus(payload)
		if status == "" {
			status = "Accepted"
		}

		g.resultAudit(lc, logKey, status, zap.String("action", string(action)))
		g.finishWorkflow(ctx, meta, workflowStatusFor(status), info, payload, map[string]interface{}{
			"stage": domain.CommandStageAccepted,
		})
		g.pending.RecordResult(messageID, meta, CallOutcome{
			Success:    acceptedStatus(status),
			Detail:     info,
			StatusCode: status,
			Payload:    payload,
		})
		return true
	}
}

// onDiagnosticsDispatchResult handles GetDiagnostics/GetLog replies,
// which acknowledge with an optional upload file name rather than a
// mandatory status.
func (g *Gateway) onDiagnosticsDispatchResult(action Action) resultHandler {
	return func(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
		var resp struct {
			Status   string `json:"status,omitempty"`
			FileName string `json:"fileName,omitempty"`
			Filename string `json:"filename,omitempty"`
		}
		if err := json.Unmarshal(payload, &resp); err != nil {
			g.log.Warn("Unparseable diagnostics reply", zap.String("log_key", logKey), zap.Error(err))
		}

		fileName := resp.FileName
		if fileName == "" {
			fileName = resp.Filename
		}
		status := resp.Status
		if status == "" {
			status = "Accepted"
		}

		g.resultAudit(lc, logKey, status,
			zap.String("action", string(action)),
			zap.String("file_name", fileName),
		)
		g.finishWorkflow(ctx, meta, workflowStatusFor(status), fileName, payload, map[string]interface{}{
			"stage": domain.CommandStageAccepted,
		})
		g.pending.RecordResult(messageID, meta, CallOutcome{
			Success:    acceptedStatus(status),
			Detail:     fileName,
			StatusCode: status,
			Payload:    payload,
		})
		return true
	}
}

// onCertificateSignedResult closes the signing workflow once the device
// confirms installation of the delivered chain.
func (g *Gateway) onCertificateSignedResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	status, info := parseStatus(payload)
	certType := meta.String(MetaCertType)

	g.resultAudit(lc, logKey, status, zap.String("certificate_type", certType))

	wfStatus := domain.WorkflowStatusRejected
	if acceptedStatus(status) {
		wfStatus = domain.WorkflowStatusCompleted
	}
	g.finishWorkflow(ctx, meta, wfStatus, info, payload, nil)

	if !acceptedStatus(status) {
		g.notify(ctx, "certificate.install.failed",
			fmt.Sprintf("charger %s rejected signed %s certificate: %s", lc.Serial, certType, status))
	}

	g.pending.RecordResult(messageID, meta, CallOutcome{
		Success:    acceptedStatus(status),
		Detail:     info,
		StatusCode: status,
		Payload:    payload,
	})
	return true
}

func (g *Gateway) onGetInstalledCertificateIdsResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	var resp getInstalledCertificateIdsResp
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.log.Warn("Unparseable GetInstalledCertificateIds reply", zap.String("log_key", logKey), zap.Error(err))
	}

	g.resultAudit(lc, logKey, resp.Status)

	status := domain.WorkflowStatusCompleted
	if !acceptedStatus(resp.Status) {
		status = domain.WorkflowStatusRejected
	}
	g.finishWorkflow(ctx, meta, status, "", payload, nil)
	g.pending.RecordResult(messageID, meta, CallOutcome{
		Success:    acceptedStatus(resp.Status),
		StatusCode: resp.Status,
		Payload:    payload,
	})
	return true
}

// onSendLocalListResult records the list version now installed on the
// device.
func (g *Gateway) onSendLocalListResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	var resp sendLocalListResp
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.log.Warn("Unparseable SendLocalList reply", zap.String("log_key", logKey), zap.Error(err))
	}

	version, haveVersion := meta.Int(MetaListVersion)
	if resp.CurrentLocalListVersion != nil {
		version, haveVersion = *resp.CurrentLocalListVersion, true
	}

	g.resultAudit(lc, logKey, resp.Status, zap.Int("list_version", version))

	if acceptedStatus(resp.Status) && haveVersion {
		serial := lc.Serial
		g.pool.Submit(ctx, func(ctx context.Context) error {
			return g.devices.SetLocalListVersion(ctx, serial, version)
		})
	}

	extra := map[string]interface{}{}
	if haveVersion {
		extra["list_version"] = version
	}
	g.finishWorkflow(ctx, meta, workflowStatusFor(resp.Status), "", payload, extra)
	g.pending.RecordResult(messageID, meta, CallOutcome{
		Success:    acceptedStatus(resp.Status),
		StatusCode: resp.Status,
		Payload:    payload,
	})
	return true
}

func (g *Gateway) onGetLocalListVersionResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	var resp localListVersionResp
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.log.Warn("Unparseable GetLocalListVersion reply", zap.String("log_key", logKey), zap.Error(err))
	}

	g.resultAudit(lc, logKey, "ok", zap.Int("list_version", resp.ListVersion))

	serial := lc.Serial
	version := resp.ListVersion
	g.pool.Submit(ctx, func(ctx context.Context) error {
		return g.devices.SetLocalListVersion(ctx, serial, version)
	})

	g.finishWorkflow(ctx, meta, domain.WorkflowStatusCompleted, "", payload, map[string]interface{}{
		"list_version": version,
	})
	g.pending.RecordResult(messageID, meta, CallOutcome{Success: true, Payload: payload})
	return true
}

// onTriggerMessageResult registers the follow-up expectation so the
// next matching unsolicited message is correlated back to this trigger.
func (g *Gateway) onTriggerMessageResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	status, info := parseStatus(payload)
	target := meta.String(MetaTriggerTarget)
	connector, _ := meta.Int(MetaConnector)

	g.resultAudit(lc, logKey, status,
		zap.String("target", target),
		zap.Int("connector", connector),
	)

	if status == "Accepted" && target != "" {
		g.followups.Register(lc.Serial, Action(target), connector, logKey, target)
	}

	g.finishWorkflow(ctx, meta, workflowStatusFor(status), info, payload, nil)
	g.pending.RecordResult(messageID, meta, CallOutcome{
		Success:    status == "Accepted",
		Detail:     info,
		StatusCode: status,
		Payload:    payload,
	})
	return true
}

// onStartRequestResult advances the remote-start workflow stage. The
// session tracker moves it to started/completed later, when the device
// reports the transaction.
func (g *Gateway) onStartRequestResult(action Action) resultHandler {
	return func(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
		status, info := parseStatus(payload)
		g.resultAudit(lc, logKey, status, zap.String("action", string(action)))

		stage := domain.CommandStageAccepted
		wfStatus := domain.WorkflowStatusAccepted
		if status != "Accepted" {
			stage = domain.CommandStageRequested
			wfStatus = domain.WorkflowStatusRejected
		}

		g.finishWorkflow(ctx, meta, wfStatus, info, payload, map[string]interface{}{
			"stage": stage,
		})
		g.pending.RecordResult(messageID, meta, CallOutcome{
			Success:    status == "Accepted",
			Detail:     info,
			StatusCode: status,
			Payload:    payload,
		})
		return true
	}
}

func (g *Gateway) onStopRequestResult(action Action) resultHandler {
	return func(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
		status, info := parseStatus(payload)
		g.resultAudit(lc, logKey, status, zap.String("action", string(action)))

		stage := domain.CommandStageAccepted
		wfStatus := domain.WorkflowStatusAccepted
		if status != "Accepted" {
			stage = domain.CommandStageRequested
			wfStatus = domain.WorkflowStatusRejected
		}

		g.finishWorkflow(ctx, meta, wfStatus, info, payload, map[string]interface{}{
			"stage": stage,
		})
		g.pending.RecordResult(messageID, meta, CallOutcome{
			Success:    status == "Accepted",
			Detail:     info,
			StatusCode: status,
			Payload:    payload,
		})
		return true
	}
}

func (g *Gateway) onGetTransactionStatusResult(ctx context.Context, lc *LiveConnection, messageID string, meta PendingMeta, payload json.RawMessage, logKey string) bool {
	var resp getTransactionStatusResp
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.log.Warn("Unparseable GetTransactionStatus reply", zap.String("log_key", logKey), zap.Error(err))
	}

	ongoing := resp.OngoingIndicator != nil && *resp.OngoingIndicator
	g.resultAudit(lc, logKey, "ok",
		zap.Bool("ongoing", ongoing),
		zap.Bool("messages_in_queue", resp.MessagesInQueue),
	)

	g.finishWorkflow(ctx, meta, domain.WorkflowStatusCompleted, "", payload, nil)
	g.pending.RecordResult(messageID, meta, CallOutcome{Success: true, Payload: payload})
	return true
}
