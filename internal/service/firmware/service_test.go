package firmware

import (
	"context"
	"errors"
	"sync"
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
	SendCallAsyncFunc func(serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) error
}

func (f *fakeCaller) SendCallAsync(serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) error {
	if f.SendCallAsyncFunc != nil {
		return f.SendCallAsyncFunc(serial, connector, action, payload, meta)
	}
	return nil
}

func TestDeploy_SendsUpdateFirmware(t *testing.T) {
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
	var gotReq updateFirmwareReq
	var gotMeta ocpp.PendingMeta
	caller := &fakeCaller{
		SendCallAsyncFunc: func(serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) error {
			gotAction = action
			gotReq = payload.(updateFirmwareReq)
			gotMeta = meta
			return nil
		},
	}

	service := NewService(caller, workflows, &mocks.MockNotifier{}, newTestLogger())
	retrieveAt := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

	// Act
	rec, err := service.Deploy(ctx, "cp-9", "https://fw.example.com/v2.bin", retrieveAt, 3)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if saved == nil || saved.Kind != domain.WorkflowFirmwareDeployment {
		t.Fatal("firmware workflow record was not persisted")
	}
	if gotAction != ocpp.ActionUpdateFirmware {
		t.Errorf("expected UpdateFirmware, got %s", gotAction)
	}
	if gotReq.Location != "https://fw.example.com/v2.bin" || gotReq.Retries != 3 {
		t.Errorf("unexpected request %+v", gotReq)
	}
	if gotReq.RetrieveDate != "2026-03-01T02:00:00Z" {
		t.Errorf("retrieve date must be RFC3339 UTC, got %s", gotReq.RetrieveDate)
	}
	if gotMeta.String(ocpp.MetaWorkflowID) != rec.ID {
		t.Error("pending meta must carry the workflow id")
	}
}

func TestDeploy_SendFailureMarksError(t *testing.T) {
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
		SendCallAsyncFunc: func(serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) error {
			return ocpp.ErrNotConnected
		},
	}

	service := NewService(caller, workflows, &mocks.MockNotifier{}, newTestLogger())

	// Act
	_, err := service.Deploy(ctx, "CP-9", "https://fw.example.com/v2.bin", time.Now(), 0)

	// Assert
	if !errors.Is(err, ocpp.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if updated == nil || updated["status"] != domain.WorkflowStatusError {
		t.Error("failed send should mark the workflow Error")
	}
}

func TestHealthCheck_FlagsStalledDeployment(t *testing.T) {
	// Arrange
	ctx := context.Background()

	var mu sync.Mutex
	var flagged bool
	notified := false

	workflows := &mocks.MockWorkflowRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
			return &domain.WorkflowRecord{ID: id, Status: domain.WorkflowStatusAccepted}, nil
		},
		UpdateFieldsFunc: func(ctx context.Context, id string, fields map[string]interface{}) error {
			mu.Lock()
			defer mu.Unlock()
			flagged = true
			return nil
		},
	}
	notifier := &mocks.MockNotifier{
		BroadcastFunc: func(ctx context.Context, subject, body string) {
			mu.Lock()
			defer mu.Unlock()
			notified = true
		},
	}

	service := NewService(&fakeCaller{}, workflows, notifier, newTestLogger())
	service.healthCheckDelay = 10 * time.Millisecond

	// Act
	_, err := service.Deploy(ctx, "CP-9", "https://fw.example.com/v2.bin", time.Now(), 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Assert
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := flagged && notified
		mu.Unlock()
		if done {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("stalled deployment was never flagged")
}

func TestHealthCheck_CompletedDeploymentUntouched(t *testing.T) {
	// Arrange
	ctx := context.Background()

	workflows := &mocks.MockWorkflowRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
			return &domain.WorkflowRecord{ID: id, Status: domain.WorkflowStatusCompleted}, nil
		},
		UpdateFieldsFunc: func(ctx context.Context, id string, fields map[string]interface{}) error {
			t.Error("completed deployments must not be flagged")
			return nil
		},
	}

	service := NewService(&fakeCaller{}, workflows, &mocks.MockNotifier{}, newTestLogger())
	service.healthCheckDelay = 10 * time.Millisecond

	// Act
	if _, err := service.Deploy(ctx, "CP-9", "https://fw.example.com/v2.bin", time.Now(), 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Assert
	time.Sleep(50 * time.Millisecond)
}
