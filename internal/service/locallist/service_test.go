package locallist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

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

func TestPush_Accepted(t *testing.T) {
	// Arrange
	ctx := context.Background()

	var saved *domain.WorkflowRecord
	workflows := &mocks.MockWorkflowRepository{
		SaveFunc: func(ctx context.Context, rec *domain.WorkflowRecord) error {
			saved = rec
			return nil
		},
	}

	var sentReq sendLocalListReq
	var gotMeta ocpp.PendingMeta
	caller := &fakeCaller{
		DispatchFunc: func(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error) {
			if action != ocpp.ActionSendLocalList {
				t.Errorf("expected SendLocalList, got %s", action)
			}
			sentReq = payload.(sendLocalListReq)
			gotMeta = meta
			return ocpp.CallOutcome{Success: true, StatusCode: "Accepted"}, nil
		},
	}

	service := NewService(caller, workflows, newTestLogger())

	// Act
	rec, err := service.Push(ctx, "cp-1", 5, []AuthorizationEntry{
		{IDTag: "TAG-1", Status: "Accepted"},
		{IDTag: "TAG-2", Status: "Blocked"},
	}, "")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if saved == nil || saved.Kind != domain.WorkflowLocalListSync {
		t.Fatal("local list workflow record was not persisted")
	}
	if saved.ListVersion == nil || *saved.ListVersion != 5 {
		t.Error("the pushed list version must be recorded")
	}
	if sentReq.ListVersion != 5 || sentReq.UpdateType != "Full" {
		t.Errorf("unexpected request %+v", sentReq)
	}
	if len(sentReq.LocalAuthorizationList) != 2 {
		t.Errorf("expected 2 entries, got %d", len(sentReq.LocalAuthorizationList))
	}
	if v, _ := gotMeta.Int(ocpp.MetaListVersion); v != 5 {
		t.Error("pending meta must carry the list version")
	}
	if rec.Status != domain.WorkflowStatusAccepted {
		t.Errorf("expected Accepted, got %s", rec.Status)
	}
}

func TestPush_Rejected(t *testing.T) {
	// Arrange
	ctx := context.Background()
	caller := &fakeCaller{
		DispatchFunc: func(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error) {
			return ocpp.CallOutcome{Success: false, StatusCode: "Failed", Detail: "Failed"}, nil
		},
	}

	service := NewService(caller, &mocks.MockWorkflowRepository{}, newTestLogger())

	// Act
	rec, err := service.Push(ctx, "CP-1", 6, nil, "Differential")

	// Assert
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if rec.Status != domain.WorkflowStatusPending {
		t.Error("rejected push must not advance the workflow status")
	}
}

func TestVersion_ReturnsDeviceVersion(t *testing.T) {
	// Arrange
	ctx := context.Background()
	payload, _ := json.Marshal(map[string]int{"listVersion": 9})
	caller := &fakeCaller{
		DispatchFunc: func(ctx context.Context, serial string, connector int, action ocpp.Action, payload2 interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error) {
			if action != ocpp.ActionGetLocalListVersion {
				t.Errorf("expected GetLocalListVersion, got %s", action)
			}
			return ocpp.CallOutcome{Success: true, Payload: payload}, nil
		},
	}

	service := NewService(caller, &mocks.MockWorkflowRepository{}, newTestLogger())

	// Act
	version, err := service.Version(ctx, "CP-1")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if version != 9 {
		t.Errorf("expected version 9, got %d", version)
	}
}

func TestVersion_DispatchError(t *testing.T) {
	// Arrange
	ctx := context.Background()
	caller := &fakeCaller{
		DispatchFunc: func(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error) {
			return ocpp.CallOutcome{}, ocpp.ErrNotConnected
		},
	}

	service := NewService(caller, &mocks.MockWorkflowRepository{}, newTestLogger())

	// Act
	_, err := service.Version(ctx, "CP-1")

	// Assert
	if !errors.Is(err, ocpp.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
