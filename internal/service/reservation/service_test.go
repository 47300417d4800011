package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/mocks"
	"github.com/gridfleet/gateway/internal/ocpp"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type fakeCaller struct {
	DispatchFunc func(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error)
}

func (f *fakeCaller) Dispatch(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error) {
	if f.DispatchFunc != nil {
		return f.DispatchFunc(ctx, serial, connector, action, payload, meta)
	}
	return ocpp.CallOutcome{Success: true, StatusCode: "Accepted"}, nil
}

func TestReserve_Accepted(t *testing.T) {
	// Arrange
	ctx := context.Background()

	var saved *domain.WorkflowRecord
	workflows := &mocks.MockWorkflowRepository{
		SaveFunc: func(ctx context.Context, rec *domain.WorkflowRecord) error {
			saved = rec
			return nil
		},
	}

	var gotAction ocpp.Action
	var gotMeta ocpp.PendingMeta
	caller := &fakeCaller{
		DispatchFunc: func(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error) {
			gotAction = action
			gotMeta = meta
			return ocpp.CallOutcome{Success: true, StatusCode: "Accepted"}, nil
		},
	}

	service := NewService(caller, workflows, newTestLogger())

	// Act
	rec, err := service.Reserve(ctx, "cp-1", 2, "TAG-9", time.Now().Add(time.Hour))

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if saved == nil {
		t.Fatal("workflow record was never persisted")
	}
	if saved.Kind != domain.WorkflowReservation {
		t.Errorf("expected reservation workflow, got %s", saved.Kind)
	}
	if saved.ChargerID != "CP-1" {
		t.Errorf("serial should be normalized, got %s", saved.ChargerID)
	}
	if saved.ReservationID == nil {
		t.Fatal("reservation id must be assigned before dispatch")
	}
	if gotAction != ocpp.ActionReserveNow {
		t.Errorf("expected ReserveNow, got %s", gotAction)
	}
	if v, _ := gotMeta.Int(ocpp.MetaReservationID); v != *saved.ReservationID {
		t.Error("pending meta must carry the reservation id")
	}
	if !rec.EvcsConfirmed || rec.EvcsStatus != "Accepted" {
		t.Errorf("accepted reservation should be confirmed, got %+v", rec)
	}
}

func TestReserve_Rejected(t *testing.T) {
	// Arrange
	ctx := context.Background()
	workflows := &mocks.MockWorkflowRepository{}
	caller := &fakeCaller{
		DispatchFunc: func(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error) {
			return ocpp.CallOutcome{Success: false, StatusCode: "Occupied", Detail: "Occupied"}, nil
		},
	}

	service := NewService(caller, workflows, newTestLogger())

	// Act
	rec, err := service.Reserve(ctx, "CP-1", 1, "TAG-9", time.Now().Add(time.Hour))

	// Assert
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if rec == nil {
		t.Fatal("the workflow record is returned even on rejection")
	}
	if rec.EvcsConfirmed {
		t.Error("rejected reservation must not be confirmed")
	}
}

func TestReserve_DispatchError(t *testing.T) {
	// Arrange
	ctx := context.Background()

	var updated map[string]interface{}
	workflows := &mocks.MockWorkflowRepository{
		UpdateFieldsFunc: func(ctx context.Context, id string, fields map[string]interface{}) error {
			updated = fields
			return nil
		},
	}
	caller := &fakeCaller{
		DispatchFunc: func(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error) {
			return ocpp.CallOutcome{}, ocpp.ErrNotConnected
		},
	}

	service := NewService(caller, workflows, newTestLogger())

	// Act
	_, err := service.Reserve(ctx, "CP-1", 1, "TAG-9", time.Now().Add(time.Hour))

	// Assert
	if !errors.Is(err, ocpp.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if updated == nil || updated["status"] != domain.WorkflowStatusError {
		t.Error("failed dispatch should mark the workflow Error")
	}
}

func TestCancel_Accepted(t *testing.T) {
	// Arrange
	ctx := context.Background()
	reservationID := 12345

	workflows := &mocks.MockWorkflowRepository{
		FindByChargerFunc: func(ctx context.Context, chargerID string, kind domain.WorkflowKind, limit int) ([]domain.WorkflowRecord, error) {
			return []domain.WorkflowRecord{
				{ID: "wf-res", ReservationID: &reservationID},
			}, nil
		},
	}

	var gotMeta ocpp.PendingMeta
	caller := &fakeCaller{
		DispatchFunc: func(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error) {
			if action != ocpp.ActionCancelReservation {
				t.Errorf("expected CancelReservation, got %s", action)
			}
			gotMeta = meta
			return ocpp.CallOutcome{Success: true, StatusCode: "Accepted"}, nil
		},
	}

	service := NewService(caller, workflows, newTestLogger())

	// Act
	err := service.Cancel(ctx, "CP-1", reservationID)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotMeta.String(ocpp.MetaWorkflowID) != "wf-res" {
		t.Error("cancel should target the original workflow row")
	}
}

func TestCancel_Rejected(t *testing.T) {
	// Arrange
	ctx := context.Background()
	caller := &fakeCaller{
		DispatchFunc: func(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error) {
			return ocpp.CallOutcome{Success: false, Detail: "Rejected"}, nil
		},
	}

	service := NewService(caller, &mocks.MockWorkflowRepository{}, newTestLogger())

	// Act
	err := service.Cancel(ctx, "CP-1", 99)

	// Assert
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}
