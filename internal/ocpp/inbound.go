package ocpp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/observability/telemetry"
)

// inboundHandlers builds the static dispatch table for charge-point
// initiated actions. Anything absent gets the default empty reply from
// the dispatcher.
func (g *Gateway) inboundHandlers() map[Action]inboundHandler {
	return map[Action]inboundHandler{
		ActionBootNotification:   g.onBootNotification,
		ActionHeartbeat:          g.onHeartbeat,
		ActionStatusNotification: g.onStatusNotification,
		ActionMeterValues:        g.onMeterValues,
		ActionStartTransaction:   g.onStartTransaction,
		ActionStopTransaction:    g.onStopTransaction,
		ActionTransactionEvent:   g.onTransactionEvent,
		ActionAuthorize:          g.onAuthorize,
		ActionDataTransfer:       g.onDataTransfer,

		ActionFirmwareStatusNotification:        g.onFirmwareStatus,
		ActionPublishFirmwareStatusNotification: g.onFirmwareStatus,
		ActionDiagnosticsStatusNotification:     g.onDiagnosticsStatus,
		ActionLogStatusNotification:             g.onLogStatus,

		ActionSignCertificate:       g.onSignCertificate,
		ActionGet15118EVCertificate: g.onGet15118EVCertificate,
		ActionGetCertificateStatus:  g.onGetCertificateStatus,

		ActionSecurityEventNotification: g.onSecurityEvent,
		ActionReservationStatusUpdate:   g.onReservationStatusUpdate,

		ActionNotifyReport:              g.onNotifyReport,
		ActionNotifyEvent:               g.ackHandler(ActionNotifyEvent),
		ActionNotifyMonitoringReport:    g.ackHandler(ActionNotifyMonitoringReport),
		ActionNotifyDisplayMessages:     g.ackHandler(ActionNotifyDisplayMessages),
		ActionNotifyCustomerInformation: g.ackHandler(ActionNotifyCustomerInformation),
		ActionNotifyChargingLimit:       g.ackHandler(ActionNotifyChargingLimit),
		ActionClearedChargingLimit:      g.ackHandler(ActionClearedChargingLimit),
		ActionNotifyEVChargingNeeds:     g.ackHandler(ActionNotifyEVChargingNeeds),
		ActionNotifyEVChargingSchedule:  g.ackHandler(ActionNotifyEVChargingSchedule),
		ActionReportChargingProfiles:    g.ackHandler(ActionReportChargingProfiles),
	}
}

func ocppTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (g *Gateway) onBootNotification(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req bootNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid BootNotification", zap.String("charge_point_id", lc.Serial), zap.Error(err))
	}

	vendor, model, firmware := req.ChargePointVendor, req.ChargePointModel, req.FirmwareVersion
	if req.ChargingStation != nil {
		vendor = req.ChargingStation.VendorName
		model = req.ChargingStation.Model
		firmware = req.ChargingStation.FirmwareVersion
	}

	g.log.Info("BootNotification",
		zap.String("charge_point_id", lc.Serial),
		zap.String("vendor", vendor),
		zap.String("model", model),
		zap.String("firmware", firmware),
		zap.String("reason", req.Reason),
	)

	serial := lc.Serial
	g.pool.Submit(ctx, func(ctx context.Context) error {
		return g.devices.RecordBoot(ctx, serial, vendor, model, firmware)
	})

	g.publishEvent("gateway.charger.boot", map[string]interface{}{
		"chargePointId": serial,
		"vendor":        vendor,
		"model":         model,
		"firmware":      firmware,
		"protocol":      lc.Protocol,
	})

	return bootNotificationResp{
		Status:      "Accepted",
		CurrentTime: ocppTimestamp(),
		Interval:    g.cfg.HeartbeatInterval,
	}
}

func (g *Gateway) onHeartbeat(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	serial := lc.Serial
	g.pool.Submit(ctx, func(ctx context.Context) error {
		return g.devices.Heartbeat(ctx, serial)
	})
	return heartbeatResp{CurrentTime: ocppTimestamp()}
}

// statusFromOCPP maps the wire status vocabulary of both protocol
// generations onto the domain enum.
func statusFromOCPP(status string) domain.ChargerStatus {
	switch status {
	case "Available":
		return domain.ChargerStatusAvailable
	case "Preparing", "Occupied":
		return domain.ChargerStatusPreparing
	case "Charging", "SuspendedEV", "SuspendedEVSE":
		return domain.ChargerStatusCharging
	case "Finishing":
		return domain.ChargerStatusFinishing
	case "Reserved":
		return domain.ChargerStatusReserved
	case "Faulted":
		return domain.ChargerStatusFaulted
	case "Unavailable":
		return domain.ChargerStatusUnavailable
	}
	return domain.ChargerStatusAvailable
}

func (g *Gateway) onStatusNotification(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req statusNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid StatusNotification", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return map[string]interface{}{}
	}

	wire := req.Status
	if wire == "" {
		wire = req.ConnectorStatus
	}
	connector := req.ConnectorID
	if connector == 0 {
		connector = req.EvseID
	}

	status := statusFromOCPP(wire)
	g.sessions.ApplyStatus(lc.Serial, connector, status)

	g.log.Info("StatusNotification",
		zap.String("charge_point_id", lc.Serial),
		zap.Int("connector", connector),
		zap.String("status", wire),
		zap.String("error_code", req.ErrorCode),
	)

	serial := lc.Serial
	g.pool.Submit(ctx, func(ctx context.Context) error {
		return g.devices.UpdateStatus(ctx, serial, connector, status)
	})

	if status == domain.ChargerStatusFaulted {
		g.notify(ctx, "charger.faulted",
			fmt.Sprintf("charger %s connector %d reported fault %s", serial, connector, req.ErrorCode))
	}

	g.publishEvent("gateway.charger.status", map[string]interface{}{
		"chargePointId": serial,
		"connector":     connector,
		"status":        string(status),
		"errorCode":     req.ErrorCode,
	})

	return map[string]interface{}{}
}

// extractEnergyWh pulls the energy register reading out of a meter
// value set, normalizing kWh to Wh.
func extractEnergyWh(values []meterValue) (int, bool) {
	for _, mv := range values {
		for _, sv := range mv.SampledValue {
			if sv.Measurand != "" && sv.Measurand != "Energy.Active.Import.Register" {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(sv.Value), 64)
			if err != nil {
				continue
			}
			unit := sv.Unit
			if unit == "" && sv.UnitOfMeasure != nil {
				unit = sv.UnitOfMeasure.Unit
			}
			if unit == "kWh" {
				v *= 1000
			}
			return int(v), true
		}
	}
	return 0, false
}

func (g *Gateway) onMeterValues(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req meterValuesReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid MeterValues", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return map[string]interface{}{}
	}

	energyWh, ok := extractEnergyWh(req.MeterValue)
	if !ok {
		return map[string]interface{}{}
	}

	g.sessions.MeterSample(lc.Serial, req.ConnectorID, energyWh)

	txID := ""
	if req.TransactionID != nil {
		txID = strconv.Itoa(*req.TransactionID)
	} else {
		txID = g.sessions.OpenTransaction(lc.Serial, req.ConnectorID)
	}
	if txID == "" {
		return map[string]interface{}{}
	}

	serial := lc.Serial
	g.pool.Submit(ctx, func(ctx context.Context) error {
		return g.transactions.AddMeterSample(ctx, serial, txID, energyWh)
	})

	return map[string]interface{}{}
}

func (g *Gateway) onStartTransaction(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req startTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid StartTransaction", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return startTransactionResp{IDTagInfo: idTagInfo{Status: "Invalid"}}
	}

	txID := int(time.Now().UnixNano() % 1_000_000_000)
	ocppTxID := strconv.Itoa(txID)

	g.sessions.TransactionStarted(lc.Serial, req.ConnectorID, ocppTxID, req.MeterStart)
	telemetry.ActiveChargingSessions.Inc()

	startedAt := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
		startedAt = ts
	}

	serial, connector, idTag, meterStart := lc.Serial, req.ConnectorID, req.IDTag, req.MeterStart
	g.pool.Submit(ctx, func(ctx context.Context) error {
		_, err := g.transactions.StartTransaction(ctx, serial, connector, idTag, ocppTxID, meterStart, startedAt)
		return err
	})

	g.advanceCommandStage(ctx, serial, domain.CommandStageAccepted, domain.CommandStageStarted)

	g.publishEvent("gateway.transaction.started", map[string]interface{}{
		"chargePointId": serial,
		"connector":     connector,
		"transactionId": ocppTxID,
		"idTag":         idTag,
	})

	return startTransactionResp{
		TransactionID: txID,
		IDTagInfo:     idTagInfo{Status: "Accepted"},
	}
}

func (g *Gateway) onStopTransaction(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req stopTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid StopTransaction", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return stopTransactionResp{}
	}

	ocppTxID := strconv.Itoa(req.TransactionID)

	// The stop payload does not carry a connector; resolve it from the
	// open session holding this transaction id.
	connector := 0
	for c := 0; c <= 8; c++ {
		if g.sessions.OpenTransaction(lc.Serial, c) == ocppTxID {
			connector = c
			break
		}
	}

	closed, found := g.sessions.TransactionEnded(lc.Serial, connector, ocppTxID, req.MeterStop)
	if found {
		telemetry.ActiveChargingSessions.Dec()
		telemetry.EnergyDeliveredTotal.Add(float64(closed.EnergyWh))
	}

	stoppedAt := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
		stoppedAt = ts
	}

	serial, meterStop, reason := lc.Serial, req.MeterStop, req.Reason
	g.pool.Submit(ctx, func(ctx context.Context) error {
		_, err := g.transactions.StopTransaction(ctx, serial, ocppTxID, meterStop, reason, stoppedAt)
		return err
	})

	g.advanceCommandStage(ctx, serial, domain.CommandStageStarted, domain.CommandStageCompleted)

	g.publishEvent("gateway.transaction.stopped", map[string]interface{}{
		"chargePointId": serial,
		"transactionId": ocppTxID,
		"meterStop":     meterStop,
		"reason":        reason,
	})

	return stopTransactionResp{IDTagInfo: &idTagInfo{Status: "Accepted"}}
}

func (g *Gateway) onTransactionEvent(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req transactionEventReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid TransactionEvent", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return map[string]interface{}{}
	}

	connector := 0
	if req.Evse != nil {
		connector = req.Evse.ConnectorID
		if connector == 0 {
			connector = req.Evse.ID
		}
	}

	txID := req.TransactionInfo.TransactionID
	serial := lc.Serial
	energyWh, haveEnergy := extractEnergyWh(req.MeterValue)

	eventTime := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
		eventTime = ts
	}

	switch req.EventType {
	case "Started":
		meterStart := 0
		if haveEnergy {
			meterStart = energyWh
		}
		g.sessions.TransactionStarted(serial, connector, txID, meterStart)
		telemetry.ActiveChargingSessions.Inc()

		idTag := ""
		if req.IDToken != nil {
			idTag = req.IDToken.IDToken
		}
		g.pool.Submit(ctx, func(ctx context.Context) error {
			_, err := g.transactions.StartTransaction(ctx, serial, connector, idTag, txID, meterStart, eventTime)
			return err
		})
		g.advanceCommandStage(ctx, serial, domain.CommandStageAccepted, domain.CommandStageStarted)

		g.publishEvent("gateway.transaction.started", map[string]interface{}{
			"chargePointId": serial,
			"connector":     connector,
			"transactionId": txID,
		})

	case "Updated":
		if haveEnergy {
			g.sessions.MeterSample(serial, connector, energyWh)
			g.pool.Submit(ctx, func(ctx context.Context) error {
				return g.transactions.AddMeterSample(ctx, serial, txID, energyWh)
			})
		}

	case "Ended":
		meterStop := 0
		if haveEnergy {
			meterStop = energyWh
		}
		closed, found := g.sessions.TransactionEnded(serial, connector, txID, meterStop)
		if found {
			telemetry.ActiveChargingSessions.Dec()
			telemetry.EnergyDeliveredTotal.Add(float64(closed.EnergyWh))
		}

		reason := req.TransactionInfo.StoppedReason
		g.pool.Submit(ctx, func(ctx context.Context) error {
			_, err := g.transactions.StopTransaction(ctx, serial, txID, meterStop, reason, eventTime)
			return err
		})
		g.advanceCommandStage(ctx, serial, domain.CommandStageStarted, domain.CommandStageCompleted)

		g.publishEvent("gateway.transaction.stopped", map[string]interface{}{
			"chargePointId": serial,
			"transactionId": txID,
			"reason":        reason,
		})
	}

	if req.IDToken != nil {
		return map[string]interface{}{
			"idTokenInfo": idTagInfo{Status: "Accepted"},
		}
	}
	return map[string]interface{}{}
}

// advanceCommandStage moves the newest outstanding remote start/stop
// workflow from one stage to the next, so synchronous initiators can
// watch the command progress past acceptance.
func (g *Gateway) advanceCommandStage(ctx context.Context, serial, from, to string) {
	g.pool.Submit(ctx, func(ctx context.Context) error {
		records, err := g.workflows.FindByCharger(ctx, serial, domain.WorkflowCommandRequest, 10)
		if err != nil {
			return fmt.Errorf("load command workflows for %s: %w", serial, err)
		}
		for _, rec := range records {
			if rec.Stage != from {
				continue
			}
			fields := map[string]interface{}{"stage": to}
			if to == domain.CommandStageCompleted {
				fields["status"] = domain.WorkflowStatusCompleted
			}
			return g.workflows.UpdateFields(ctx, rec.ID, fields)
		}
		return nil
	})
}

func (g *Gateway) onAuthorize(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req authorizeReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid Authorize", zap.String("charge_point_id", lc.Serial), zap.Error(err))
	}

	token := req.IDTag
	if token == "" && req.IDToken != nil {
		token = req.IDToken.IDToken
	}

	g.log.Info("Authorize",
		zap.String("charge_point_id", lc.Serial),
		zap.String("id_tag", token),
	)

	if req.IDToken != nil {
		return authorizeResp{IDTokenInfo: &idTagInfo{Status: "Accepted"}}
	}
	return authorizeResp{IDTagInfo: &idTagInfo{Status: "Accepted"}}
}

func (g *Gateway) onDataTransfer(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req dataTransferReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid DataTransfer", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return dataTransferResp{Status: "Rejected"}
	}

	g.log.Info("DataTransfer",
		zap.String("charge_point_id", lc.Serial),
		zap.String("vendor_id", req.VendorID),
		zap.String("message_id", req.MessageID),
	)

	g.publishEvent("gateway.charger.datatransfer", map[string]interface{}{
		"chargePointId": lc.Serial,
		"vendorId":      req.VendorID,
		"messageId":     req.MessageID,
		"data":          req.Data,
	})

	return dataTransferResp{Status: "Accepted"}
}

// updateLatestWorkflow patches the newest workflow row of a kind for a
// charger; status notifications carry no correlation id, so newest-first
// is the best available match.
func (g *Gateway) updateLatestWorkflow(ctx context.Context, serial string, kind domain.WorkflowKind, fields map[string]interface{}) {
	g.pool.Submit(ctx, func(ctx context.Context) error {
		records, err := g.workflows.FindByCharger(ctx, serial, kind, 1)
		if err != nil {
			return fmt.Errorf("load %s workflows for %s: %w", kind, serial, err)
		}
		if len(records) == 0 {
			return nil
		}
		return g.workflows.UpdateFields(ctx, records[0].ID, fields)
	})
}

func (g *Gateway) onFirmwareStatus(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req firmwareStatusReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid firmware status", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return map[string]interface{}{}
	}

	g.log.Info("Firmware status",
		zap.String("charge_point_id", lc.Serial),
		zap.String("status", req.Status),
	)

	fields := map[string]interface{}{"status_info": req.Status}
	switch req.Status {
	case "Installed":
		fields["status"] = domain.WorkflowStatusCompleted
		fields["stage"] = domain.CommandStageCompleted
	case "DownloadFailed", "InstallationFailed", "InstallVerificationFailed", "InstallScheduled":
		if req.Status != "InstallScheduled" {
			fields["status"] = domain.WorkflowStatusError
			g.notify(ctx, "firmware.failed",
				fmt.Sprintf("charger %s firmware update failed: %s", lc.Serial, req.Status))
		}
	}
	g.updateLatestWorkflow(ctx, lc.Serial, domain.WorkflowFirmwareDeployment, fields)

	return map[string]interface{}{}
}

func (g *Gateway) onDiagnosticsStatus(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req diagnosticsStatusReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid DiagnosticsStatusNotification", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return map[string]interface{}{}
	}

	g.log.Info("Diagnostics status",
		zap.String("charge_point_id", lc.Serial),
		zap.String("status", req.Status),
	)

	fields := map[string]interface{}{"status_info": req.Status}
	switch req.Status {
	case "Uploaded":
		fields["status"] = domain.WorkflowStatusCompleted
		fields["stage"] = domain.CommandStageCompleted
	case "UploadFailed":
		fields["status"] = domain.WorkflowStatusError
	}
	g.updateLatestWorkflow(ctx, lc.Serial, domain.WorkflowDiagnosticsRequest, fields)

	return map[string]interface{}{}
}

func (g *Gateway) onLogStatus(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req logStatusReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid LogStatusNotification", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return map[string]interface{}{}
	}

	fields := map[string]interface{}{"status_info": req.Status}
	switch req.Status {
	case "Uploaded":
		fields["status"] = domain.WorkflowStatusCompleted
		fields["stage"] = domain.CommandStageCompleted
	case "UploadFailure", "PermanentFailure":
		fields["status"] = domain.WorkflowStatusError
	}
	g.updateLatestWorkflow(ctx, lc.Serial, domain.WorkflowDiagnosticsRequest, fields)

	return map[string]interface{}{}
}

// onSignCertificate accepts the CSR, then signs and delivers the chain
// asynchronously: signing happens off the connection goroutine and the
// signed certificate goes back as its own CertificateSigned call.
func (g *Gateway) onSignCertificate(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req signCertificateReq
	if err := json.Unmarshal(payload, &req); err != nil || req.CSR == "" {
		g.log.Warn("Invalid SignCertificate", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return map[string]interface{}{"status": "Rejected"}
	}

	certType := req.CertificateType
	if certType == "" {
		certType = "ChargingStationCertificate"
	}

	serial := lc.Serial
	csr := req.CSR

	g.pool.Submit(ctx, func(ctx context.Context) error {
		rec := &domain.WorkflowRecord{
			ID:             NewMessageID(),
			Kind:           domain.WorkflowCertificateOperation,
			ChargerID:      serial,
			Action:         string(ActionCertificateSigned),
			Status:         domain.WorkflowStatusPending,
			RequestPayload: csr,
			RequestedAt:    time.Now().UTC(),
		}
		if err := g.workflows.Save(ctx, rec); err != nil {
			return fmt.Errorf("save certificate workflow for %s: %w", serial, err)
		}

		chain, err := g.signer.Sign(ctx, csr, certType, serial)
		if err != nil {
			g.log.Error("CSR signing failed",
				zap.String("charge_point_id", serial),
				zap.String("certificate_type", certType),
				zap.Error(err),
			)
			g.notify(ctx, "certificate.signing.failed",
				fmt.Sprintf("signing CSR for charger %s failed: %v", serial, err))
			return g.workflows.UpdateFields(ctx, rec.ID, map[string]interface{}{
				"status":      domain.WorkflowStatusError,
				"status_info": err.Error(),
			})
		}

		return g.SendCallAsync(serial, 0, ActionCertificateSigned,
			certificateSignedReq{CertificateChain: chain, CertificateType: certType},
			PendingMeta{
				MetaWorkflowID: rec.ID,
				MetaCertType:   certType,
			})
	})

	return map[string]interface{}{"status": "Accepted"}
}

func (g *Gateway) onGet15118EVCertificate(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	// EXI contract certificate provisioning needs an ISO 15118 CPO
	// backend the gateway does not front.
	g.log.Info("Get15118EVCertificate not supported",
		zap.String("charge_point_id", lc.Serial),
	)
	return map[string]interface{}{"status": "Failed", "exiResponse": ""}
}

func (g *Gateway) onGetCertificateStatus(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	g.log.Info("GetCertificateStatus without OCSP responder",
		zap.String("charge_point_id", lc.Serial),
	)
	return map[string]interface{}{"status": "Failed"}
}

func (g *Gateway) onSecurityEvent(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req securityEventReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid SecurityEventNotification", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return map[string]interface{}{}
	}

	g.log.Warn("Security event",
		zap.String("charge_point_id", lc.Serial),
		zap.String("type", req.Type),
		zap.String("tech_info", req.TechInfo),
	)

	g.notify(ctx, "charger.security",
		fmt.Sprintf("charger %s reported security event %s", lc.Serial, req.Type))
	g.publishEvent("gateway.charger.security", map[string]interface{}{
		"chargePointId": lc.Serial,
		"type":          req.Type,
		"techInfo":      req.TechInfo,
	})

	return map[string]interface{}{}
}

func (g *Gateway) onReservationStatusUpdate(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req reservationStatusUpdateReq
	if err := json.Unmarshal(payload, &req); err != nil {
		g.log.Warn("Invalid ReservationStatusUpdate", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return map[string]interface{}{}
	}

	g.log.Info("Reservation status update",
		zap.String("charge_point_id", lc.Serial),
		zap.Int("reservation_id", req.ReservationID),
		zap.String("status", req.ReservationUpdateStatus),
	)

	serial := lc.Serial
	g.pool.Submit(ctx, func(ctx context.Context) error {
		records, err := g.workflows.FindByCharger(ctx, serial, domain.WorkflowReservation, 20)
		if err != nil {
			return fmt.Errorf("load reservations for %s: %w", serial, err)
		}
		for _, rec := range records {
			if rec.ReservationID == nil || *rec.ReservationID != req.ReservationID {
				continue
			}
			return g.workflows.UpdateFields(ctx, rec.ID, map[string]interface{}{
				"status":      domain.WorkflowStatusCompleted,
				"evcs_status": req.ReservationUpdateStatus,
			})
		}
		return nil
	})

	return map[string]interface{}{}
}

func (g *Gateway) onNotifyReport(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
	var req notifyReportReq
	if err := json.Unmarshal(payload, &req); err == nil {
		g.log.Info("NotifyReport",
			zap.String("charge_point_id", lc.Serial),
			zap.Int("request_id", req.RequestID),
			zap.Int("seq_no", req.SeqNo),
			zap.Bool("tbc", req.Tbc),
		)
	}
	return map[string]interface{}{}
}

// ackHandler acknowledges informational notifications the gateway logs
// but does not act on.
func (g *Gateway) ackHandler(action Action) inboundHandler {
	return func(ctx context.Context, lc *LiveConnection, messageID string, payload json.RawMessage) interface{} {
		g.log.Debug("Acknowledged notification",
			zap.String("charge_point_id", lc.Serial),
			zap.String("action", string(action)),
		)
		return map[string]interface{}{}
	}
}
