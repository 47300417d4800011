package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/ocpp"
	"github.com/gridfleet/gateway/internal/ports"
)

var ErrRejected = errors.New("charging profile rejected by charge point")

type caller interface {
	Dispatch(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error)
}

type Service struct {
	caller    caller
	workflows ports.WorkflowRepository
	log       *zap.Logger
}

func NewService(c caller, workflows ports.WorkflowRepository, log *zap.Logger) *Service {
	return &Service{
		caller:    c,
		workflows: workflows,
		log:       log,
	}
}

type setChargingProfileReq struct {
	ConnectorID     int             `json:"connectorId"`
	ChargingProfile json.RawMessage `json:"csChargingProfiles"`
}

type clearChargingProfileReq struct {
	ID          *int `json:"id,omitempty"`
	ConnectorID *int `json:"connectorId,omitempty"`
}

type getCompositeScheduleReq struct {
	ConnectorID int    `json:"connectorId"`
	Duration    int    `json:"duration"`
	RateUnit    string `json:"chargingRateUnit,omitempty"`
}

// CompositeSchedule is the merged charging plan a device reports for a
// connector over the requested window.
type CompositeSchedule struct {
	ConnectorID   int             `json:"connectorId"`
	ScheduleStart string          `json:"scheduleStart,omitempty"`
	Schedule      json.RawMessage `json:"chargingSchedule,omitempty"`
}

// Apply installs a charging profile on a connector. The profile body is
// passed through verbatim; the device validates the schedule itself.
func (s *Service) Apply(ctx context.Context, serial string, connector, profileID int, chargingProfile json.RawMessage) (*domain.WorkflowRecord, error) {
	serial = domain.NormalizeSerial(serial)

	req := setChargingProfileReq{
		ConnectorID:     connector,
		ChargingProfile: chargingProfile,
	}
	payload, _ := json.Marshal(req)

	rec := &domain.WorkflowRecord{
		ID:             uuid.NewString(),
		Kind:           domain.WorkflowChargingProfile,
		ChargerID:      serial,
		Connector:      &connector,
		Action:         string(ocpp.ActionSetChargingProfile),
		Status:         domain.WorkflowStatusPending,
		ProfileID:      &profileID,
		RequestPayload: string(payload),
		RequestedAt:    time.Now().UTC(),
	}
	if err := s.workflows.Save(ctx, rec); err != nil {
		return nil, err
	}

	outcome, err := s.dispatch(ctx, rec, ocpp.ActionSetChargingProfile, profileID, req)
	if err != nil {
		return nil, err
	}
	if !outcome.Success {
		return rec, fmt.Errorf("%w: %s", ErrRejected, outcome.Detail)
	}
	rec.Status = domain.WorkflowStatusAccepted
	return rec, nil
}

// Clear removes charging profiles matching the given criteria. A nil
// profileID with connector zero clears everything on the station.
func (s *Service) Clear(ctx context.Context, serial string, profileID *int, connector *int) error {
	serial = domain.NormalizeSerial(serial)

	req := clearChargingProfileReq{ID: profileID, ConnectorID: connector}
	payload, _ := json.Marshal(req)

	rec := &domain.WorkflowRecord{
		ID:             uuid.NewString(),
		Kind:           domain.WorkflowChargingProfile,
		ChargerID:      serial,
		Connector:      connector,
		Action:         string(ocpp.ActionClearChargingProfile),
		Status:         domain.WorkflowStatusPending,
		ProfileID:      profileID,
		RequestPayload: string(payload),
		RequestedAt:    time.Now().UTC(),
	}
	if err := s.workflows.Save(ctx, rec); err != nil {
		return err
	}

	pid := 0
	if profileID != nil {
		pid = *profileID
	}
	outcome, err := s.dispatch(ctx, rec, ocpp.ActionClearChargingProfile, pid, req)
	if err != nil {
		return err
	}
	if !outcome.Success {
		return fmt.Errorf("%w: %s", ErrRejected, outcome.Detail)
	}
	return nil
}

// CompositeSchedule asks the device for its effective charging plan.
func (s *Service) CompositeSchedule(ctx context.Context, serial string, connector, durationSeconds int) (*CompositeSchedule, error) {
	serial = domain.NormalizeSerial(serial)

	req := getCompositeScheduleReq{
		ConnectorID: connector,
		Duration:    durationSeconds,
	}
	payload, _ := json.Marshal(req)

	rec := &domain.WorkflowRecord{
		ID:             uuid.NewString(),
		Kind:           domain.WorkflowChargingProfile,
		ChargerID:      serial,
		Connector:      &connector,
		Action:         string(ocpp.ActionGetCompositeSchedule),
		Status:         domain.WorkflowStatusPending,
		RequestPayload: string(payload),
		RequestedAt:    time.Now().UTC(),
	}
	if err := s.workflows.Save(ctx, rec); err != nil {
		return nil, err
	}

	outcome, err := s.dispatch(ctx, rec, ocpp.ActionGetCompositeSchedule, 0, req)
	if err != nil {
		return nil, err
	}
	if !outcome.Success {
		return nil, fmt.Errorf("%w: %s", ErrRejected, outcome.Detail)
	}

	var schedule CompositeSchedule
	if err := json.Unmarshal(outcome.Payload, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (s *Service) dispatch(ctx context.Context, rec *domain.WorkflowRecord, action ocpp.Action, profileID int, req interface{}) (ocpp.CallOutcome, error) {
	meta := ocpp.PendingMeta{
		ocpp.MetaWorkflowID: rec.ID,
		ocpp.MetaLogKey:     fmt.Sprintf("profile/%s", rec.ID),
	}
	if profileID != 0 {
		meta[ocpp.MetaProfileID] = profileID
	}

	outcome, err := s.caller.Dispatch(ctx, rec.ChargerID, 0, action, req, meta)
	if err != nil {
		_ = s.workflows.UpdateFields(ctx, rec.ID, map[string]interface{}{
			"status":      domain.WorkflowStatusError,
			"status_info": err.Error(),
		})
		return ocpp.CallOutcome{}, err
	}
	return outcome, nil
}
