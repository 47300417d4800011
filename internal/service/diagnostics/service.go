package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/ocpp"
	"github.com/gridfleet/gateway/internal/ports"
)

type caller interface {
	SendCallAsync(serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) error
}

type Service struct {
	caller    caller
	workflows ports.WorkflowRepository
	log       *zap.Logger

	// uploadBaseURL is prepended when a request does not name an
	// explicit upload location.
	uploadBaseURL string
}

func NewService(c caller, workflows ports.WorkflowRepository, uploadBaseURL string, log *zap.Logger) *Service {
	return &Service{
		caller:        c,
		workflows:     workflows,
		uploadBaseURL: uploadBaseURL,
		log:           log,
	}
}

type getDiagnosticsReq struct {
	Location  string `json:"location"`
	StartTime string `json:"startTime,omitempty"`
	StopTime  string `json:"stopTime,omitempty"`
	Retries   int    `json:"retries,omitempty"`
}

type getLogReq struct {
	LogType   string `json:"logType"`
	RequestID int    `json:"requestId"`
	Log       logParameters `json:"log"`
}

type logParameters struct {
	RemoteLocation  string `json:"remoteLocation"`
	OldestTimestamp string `json:"oldestTimestamp,omitempty"`
	LatestTimestamp string `json:"latestTimestamp,omitempty"`
}

type triggerMessageReq struct {
	RequestedMessage string `json:"requestedMessage"`
	ConnectorID      int    `json:"connectorId,omitempty"`
}

// Request asks a 1.6 charge point to upload its diagnostics archive.
// Progress arrives via DiagnosticsStatusNotification.
func (s *Service) Request(ctx context.Context, serial, location string, start, stop *time.Time) (*domain.WorkflowRecord, error) {
	serial = domain.NormalizeSerial(serial)
	if location == "" {
		location = s.uploadLocation(serial)
	}

	req := getDiagnosticsReq{Location: location}
	if start != nil {
		req.StartTime = start.UTC().Format(time.RFC3339)
	}
	if stop != nil {
		req.StopTime = stop.UTC().Format(time.RFC3339)
	}

	rec, err := s.createRecord(ctx, serial, string(ocpp.ActionGetDiagnostics), req)
	if err != nil {
		return nil, err
	}
	return rec, s.send(ctx, rec, ocpp.ActionGetDiagnostics, req)
}

// RequestLog is the 2.x counterpart: GetLog with a remote upload target.
func (s *Service) RequestLog(ctx context.Context, serial, logType string, oldest, latest *time.Time) (*domain.WorkflowRecord, error) {
	serial = domain.NormalizeSerial(serial)
	if logType == "" {
		logType = "DiagnosticsLog"
	}

	req := getLogReq{
		LogType:   logType,
		RequestID: int(time.Now().Unix() % 1_000_000),
		Log: logParameters{
			RemoteLocation: s.uploadLocation(serial),
		},
	}
	if oldest != nil {
		req.Log.OldestTimestamp = oldest.UTC().Format(time.RFC3339)
	}
	if latest != nil {
		req.Log.LatestTimestamp = latest.UTC().Format(time.RFC3339)
	}

	rec, err := s.createRecord(ctx, serial, string(ocpp.ActionGetLog), req)
	if err != nil {
		return nil, err
	}
	return rec, s.send(ctx, rec, ocpp.ActionGetLog, req)
}

// Trigger asks the device to send a specific notification. An accepted
// trigger arms a follow-up expectation so the next matching inbound
// message is attributed to this request.
func (s *Service) Trigger(ctx context.Context, serial, message string, connector int) (*domain.WorkflowRecord, error) {
	serial = domain.NormalizeSerial(serial)

	req := triggerMessageReq{
		RequestedMessage: message,
		ConnectorID:      connector,
	}
	rec, err := s.createRecord(ctx, serial, string(ocpp.ActionTriggerMessage), req)
	if err != nil {
		return nil, err
	}

	err = s.caller.SendCallAsync(serial, 0, ocpp.ActionTriggerMessage, req, ocpp.PendingMeta{
		ocpp.MetaWorkflowID:    rec.ID,
		ocpp.MetaTriggerTarget: message,
		ocpp.MetaConnector:     connector,
		ocpp.MetaLogKey:        fmt.Sprintf("trigger/%s", rec.ID),
	})
	if err != nil {
		s.markFailed(ctx, rec.ID, err)
		return nil, err
	}
	return rec, nil
}

// Status returns recent diagnostics requests for a charger.
func (s *Service) Status(ctx context.Context, serial string, limit int) ([]domain.WorkflowRecord, error) {
	return s.workflows.FindByCharger(ctx, domain.NormalizeSerial(serial), domain.WorkflowDiagnosticsRequest, limit)
}

func (s *Service) uploadLocation(serial string) string {
	return fmt.Sprintf("%s/transfer/diagnostics/%s", s.uploadBaseURL, serial)
}

func (s *Service) createRecord(ctx context.Context, serial, action string, req interface{}) (*domain.WorkflowRecord, error) {
	payload, _ := json.Marshal(req)
	rec := &domain.WorkflowRecord{
		ID:             uuid.NewString(),
		Kind:           domain.WorkflowDiagnosticsRequest,
		ChargerID:      serial,
		Action:         action,
		Status:         domain.WorkflowStatusPending,
		RequestPayload: string(payload),
		RequestedAt:    time.Now().UTC(),
	}
	if err := s.workflows.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) send(ctx context.Context, rec *domain.WorkflowRecord, action ocpp.Action, payload interface{}) error {
	err := s.caller.SendCallAsync(rec.ChargerID, 0, action, payload, ocpp.PendingMeta{
		ocpp.MetaWorkflowID: rec.ID,
		ocpp.MetaLogKey:     fmt.Sprintf("diagnostics/%s", rec.ID),
	})
	if err != nil {
		s.markFailed(ctx, rec.ID, err)
	}
	return err
}

func (s *Service) markFailed(ctx context.Context, id string, cause error) {
	if err := s.workflows.UpdateFields(ctx, id, map[string]interface{}{
		"status":      domain.WorkflowStatusError,
		"status_info": cause.Error(),
	}); err != nil {
		s.log.Error("Failed to mark workflow failed", zap.String("workflow_id", id), zap.Error(err))
	}
}
