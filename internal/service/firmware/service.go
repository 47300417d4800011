package firmware

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

// defaultHealthCheckDelay is how long after a deployment request the
// coordinator waits before flagging a workflow that never completed.
const defaultHealthCheckDelay = 30 * time.Minute

type caller interface {
	SendCallAsync(serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) error
}

type Service struct {
	caller    caller
	workflows ports.WorkflowRepository
	notifier  ports.Notifier
	log       *zap.Logger

	healthCheckDelay time.Duration
}

func NewService(c caller, workflows ports.WorkflowRepository, notifier ports.Notifier, log *zap.Logger) *Service {
	return &Service{
		caller:           c,
		workflows:        workflows,
		notifier:         notifier,
		log:              log,
		healthCheckDelay: defaultHealthCheckDelay,
	}
}

type updateFirmwareReq struct {
	Location      string `json:"location"`
	RetrieveDate  string `json:"retrieveDate"`
	Retries       int    `json:"retries,omitempty"`
	RetryInterval int    `json:"retryInterval,omitempty"`
}

type publishFirmwareReq struct {
	Location  string `json:"location"`
	Checksum  string `json:"checksum"`
	RequestID int    `json:"requestId"`
	Retries   int    `json:"retries,omitempty"`
}

type unpublishFirmwareReq struct {
	Checksum string `json:"checksum"`
}

// Deploy asks a charge point to download and install new firmware. The
// returned record tracks the rollout; the device reports progress via
// FirmwareStatusNotification until the install completes or fails.
func (s *Service) Deploy(ctx context.Context, serial, location string, retrieveAt time.Time, retries int) (*domain.WorkflowRecord, error) {
	serial = domain.NormalizeSerial(serial)

	req := updateFirmwareReq{
		Location:     location,
		RetrieveDate: retrieveAt.UTC().Format(time.RFC3339),
		Retries:      retries,
	}
	rec, err := s.createRecord(ctx, serial, string(ocpp.ActionUpdateFirmware), req)
	if err != nil {
		return nil, err
	}
	if err := s.send(ctx, rec, ocpp.ActionUpdateFirmware, req); err != nil {
		return nil, err
	}

	s.scheduleHealthCheck(rec.ID, serial)
	return rec, nil
}

// Publish distributes a firmware image to local controllers (2.x only).
func (s *Service) Publish(ctx context.Context, serial, location, checksum string, retries int) (*domain.WorkflowRecord, error) {
	serial = domain.NormalizeSerial(serial)

	req := publishFirmwareReq{
		Location:  location,
		Checksum:  checksum,
		RequestID: int(time.Now().Unix() % 1_000_000),
		Retries:   retries,
	}
	rec, err := s.createRecord(ctx, serial, string(ocpp.ActionPublishFirmware), req)
	if err != nil {
		return nil, err
	}
	if err := s.send(ctx, rec, ocpp.ActionPublishFirmware, req); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) Unpublish(ctx context.Context, serial, checksum string) (*domain.WorkflowRecord, error) {
	serial = domain.NormalizeSerial(serial)

	req := unpublishFirmwareReq{Checksum: checksum}
	rec, err := s.createRecord(ctx, serial, string(ocpp.ActionUnpublishFirmware), req)
	if err != nil {
		return nil, err
	}
	if err := s.send(ctx, rec, ocpp.ActionUnpublishFirmware, req); err != nil {
		return nil, err
	}
	return rec, nil
}

// Status returns recent firmware deployments for a charger.
func (s *Service) Status(ctx context.Context, serial string, limit int) ([]domain.WorkflowRecord, error) {
	return s.workflows.FindByCharger(ctx, domain.NormalizeSerial(serial), domain.WorkflowFirmwareDeployment, limit)
}

func (s *Service) createRecord(ctx context.Context, serial, action string, req interface{}) (*domain.WorkflowRecord, error) {
	payload, _ := json.Marshal(req)
	rec := &domain.WorkflowRecord{
		ID:             uuid.NewString(),
		Kind:           domain.WorkflowFirmwareDeployment,
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
		ocpp.MetaLogKey:     fmt.Sprintf("firmware/%s", rec.ID),
	})
	if err != nil {
		_ = s.workflows.UpdateFields(ctx, rec.ID, map[string]interface{}{
			"status":      domain.WorkflowStatusError,
			"status_info": err.Error(),
		})
		return err
	}
	return nil
}

// scheduleHealthCheck flags deployments that stall without a terminal
// status notification from the device.
func (s *Service) scheduleHealthCheck(workflowID, serial string) {
	time.AfterFunc(s.healthCheckDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		rec, err := s.workflows.FindByID(ctx, workflowID)
		if err != nil || rec == nil {
			return
		}
		switch rec.Status {
		case domain.WorkflowStatusCompleted, domain.WorkflowStatusError, domain.WorkflowStatusRejected:
			return
		}

		s.log.Warn("Firmware deployment stalled",
			zap.String("charger_id", serial),
			zap.String("workflow_id", workflowID),
			zap.String("status", string(rec.Status)),
		)
		if err := s.workflows.UpdateFields(ctx, workflowID, map[string]interface{}{
			"status_info": fmt.Sprintf("no terminal status after %s", s.healthCheckDelay),
		}); err != nil {
			s.log.Error("Failed to flag stalled deployment", zap.Error(err))
		}
		s.notifier.Broadcast(ctx, "firmware deployment stalled",
			fmt.Sprintf("charger %s workflow %s stuck in %s", serial, workflowID, rec.Status))
	})
}
