package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/ocpp"
	"github.com/gridfleet/gateway/internal/ports"
)

var ErrRejected = errors.New("reservation rejected by charge point")

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

type reserveNowReq struct {
	ConnectorID   int    `json:"connectorId"`
	ExpiryDate    string `json:"expiryDate"`
	IDTag         string `json:"idTag"`
	ReservationID int    `json:"reservationId"`
}

type cancelReservationReq struct {
	ReservationID int `json:"reservationId"`
}

// Reserve places a reservation on a connector. It blocks until the
// charge point confirms or the call times out; the workflow record is
// confirmed only on an Accepted response.
func (s *Service) Reserve(ctx context.Context, serial string, connector int, idTag string, expiry time.Time) (*domain.WorkflowRecord, error) {
	serial = domain.NormalizeSerial(serial)
	reservationID := newReservationID()

	req := reserveNowReq{
		ConnectorID:   connector,
		ExpiryDate:    expiry.UTC().Format(time.RFC3339),
		IDTag:         idTag,
		ReservationID: reservationID,
	}
	payload, _ := json.Marshal(req)

	rec := &domain.WorkflowRecord{
		ID:             uuid.NewString(),
		Kind:           domain.WorkflowReservation,
		ChargerID:      serial,
		Connector:      &connector,
		Action:         string(ocpp.ActionReserveNow),
		Status:         domain.WorkflowStatusPending,
		ReservationID:  &reservationID,
		RequestPayload: string(payload),
		RequestedAt:    time.Now().UTC(),
	}
	if err := s.workflows.Save(ctx, rec); err != nil {
		return nil, err
	}

	outcome, err := s.caller.Dispatch(ctx, serial, 0, ocpp.ActionReserveNow, req, ocpp.PendingMeta{
		ocpp.MetaWorkflowID:    rec.ID,
		ocpp.MetaReservationID: reservationID,
		ocpp.MetaConnector:     connector,
		ocpp.MetaLogKey:        fmt.Sprintf("reservation/%d", reservationID),
	})
	if err != nil {
		_ = s.workflows.UpdateFields(ctx, rec.ID, map[string]interface{}{
			"status":      domain.WorkflowStatusError,
			"status_info": err.Error(),
		})
		return nil, err
	}
	if !outcome.Success {
		return rec, fmt.Errorf("%w: %s", ErrRejected, outcome.Detail)
	}

	rec.Status = domain.WorkflowStatusAccepted
	rec.EvcsConfirmed = true
	rec.EvcsStatus = outcome.StatusCode
	return rec, nil
}

// Cancel withdraws a previously confirmed reservation.
func (s *Service) Cancel(ctx context.Context, serial string, reservationID int) error {
	serial = domain.NormalizeSerial(serial)

	rec, err := s.findByReservationID(ctx, serial, reservationID)
	if err != nil {
		return err
	}

	meta := ocpp.PendingMeta{
		ocpp.MetaReservationID: reservationID,
		ocpp.MetaLogKey:        fmt.Sprintf("reservation/%d/cancel", reservationID),
	}
	if rec != nil {
		meta[ocpp.MetaWorkflowID] = rec.ID
	}

	outcome, err := s.caller.Dispatch(ctx, serial, 0, ocpp.ActionCancelReservation,
		cancelReservationReq{ReservationID: reservationID}, meta)
	if err != nil {
		return err
	}
	if !outcome.Success {
		return fmt.Errorf("%w: %s", ErrRejected, outcome.Detail)
	}
	return nil
}

// List returns recent reservations for a charger.
func (s *Service) List(ctx context.Context, serial string, limit int) ([]domain.WorkflowRecord, error) {
	return s.workflows.FindByCharger(ctx, domain.NormalizeSerial(serial), domain.WorkflowReservation, limit)
}

func (s *Service) findByReservationID(ctx context.Context, serial string, reservationID int) (*domain.WorkflowRecord, error) {
	recs, err := s.workflows.FindByCharger(ctx, serial, domain.WorkflowReservation, 50)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].ReservationID != nil && *recs[i].ReservationID == reservationID {
			return &recs[i], nil
		}
	}
	return nil, nil
}

// Reservation ids must fit an OCPP integer and stay unique for the
// lifetime of the reservation.
func newReservationID() int {
	return int(time.Now().Unix()%1_000_000)*1000 + rand.Intn(1000)
}
