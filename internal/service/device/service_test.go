package device

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func TestGetCharger_CacheMiss(t *testing.T) {
	// Arrange
	ctx := context.Background()

	expected := &domain.Charger{
		ID:     "CP-123",
		Vendor: "ABB",
		Model:  "Terra 184",
		Status: domain.ChargerStatusAvailable,
	}

	mockRepo := &mocks.MockChargerRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Charger, error) {
			if id == "CP-123" {
				return expected, nil
			}
			return nil, nil
		},
	}

	service := NewService(mockRepo, &mocks.MockCache{}, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	charger, err := service.GetCharger(ctx, "cp-123")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if charger == nil {
		t.Fatal("expected charger, got nil")
	}
	if charger.ID != "CP-123" {
		t.Errorf("expected charger ID 'CP-123', got '%s'", charger.ID)
	}
}

func TestGetCharger_CacheHit(t *testing.T) {
	// Arrange
	ctx := context.Background()

	cached := &domain.Charger{ID: "CP-123", Vendor: "ABB"}
	cachedJSON, _ := json.Marshal(cached)

	mockRepo := &mocks.MockChargerRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Charger, error) {
			t.Error("repository should not be called on cache hit")
			return nil, nil
		},
	}
	mockCache := &mocks.MockCache{
		GetFunc: func(ctx context.Context, key string) (string, error) {
			if key == "charger:CP-123" {
				return string(cachedJSON), nil
			}
			return "", nil
		},
	}

	service := NewService(mockRepo, mockCache, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	charger, err := service.GetCharger(ctx, "CP-123")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if charger == nil || charger.Vendor != "ABB" {
		t.Fatalf("expected cached charger, got %+v", charger)
	}
}

func TestGetCharger_NotFound(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service := NewService(&mocks.MockChargerRepository{}, &mocks.MockCache{}, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	charger, err := service.GetCharger(ctx, "GHOST")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if charger != nil {
		t.Error("expected nil charger for unknown serial")
	}
}

func TestUpdateStatus_StationWide(t *testing.T) {
	// Arrange
	ctx := context.Background()

	var gotID string
	var gotStatus domain.ChargerStatus
	connectorCalled := false

	mockRepo := &mocks.MockChargerRepository{
		UpdateStatusFunc: func(ctx context.Context, id string, status domain.ChargerStatus) error {
			gotID, gotStatus = id, status
			return nil
		},
		UpdateConnectorStatusFunc: func(ctx context.Context, id string, connector int, status domain.ChargerStatus) error {
			connectorCalled = true
			return nil
		},
	}

	var invalidated string
	mockCache := &mocks.MockCache{
		DeleteFunc: func(ctx context.Context, key string) error {
			invalidated = key
			return nil
		},
	}

	var published string
	mockQueue := &mocks.MockMessageQueue{
		PublishFunc: func(subject string, data []byte) error {
			published = subject
			return nil
		},
	}

	service := NewService(mockRepo, mockCache, mockQueue, newTestLogger())

	// Act
	err := service.UpdateStatus(ctx, "CP-123", 0, domain.ChargerStatusFaulted)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotID != "CP-123" || gotStatus != domain.ChargerStatusFaulted {
		t.Errorf("unexpected update %s/%s", gotID, gotStatus)
	}
	if connectorCalled {
		t.Error("connector zero addresses the whole station")
	}
	if invalidated != "charger:CP-123" {
		t.Errorf("cache entry was not invalidated, got %q", invalidated)
	}
	if published != "gateway.charger.status" {
		t.Errorf("expected status event, got %q", published)
	}
}

func TestUpdateStatus_PerConnector(t *testing.T) {
	// Arrange
	ctx := context.Background()

	var gotConnector int
	mockRepo := &mocks.MockChargerRepository{
		UpdateConnectorStatusFunc: func(ctx context.Context, id string, connector int, status domain.ChargerStatus) error {
			gotConnector = connector
			return nil
		},
		UpdateStatusFunc: func(ctx context.Context, id string, status domain.ChargerStatus) error {
			t.Error("per-connector updates must not touch the station row")
			return nil
		},
	}

	service := NewService(mockRepo, &mocks.MockCache{}, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	err := service.UpdateStatus(ctx, "CP-123", 2, domain.ChargerStatusCharging)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotConnector != 2 {
		t.Errorf("expected connector 2, got %d", gotConnector)
	}
}

func TestCacheConfigValue_MergesSnapshot(t *testing.T) {
	// Arrange
	ctx := context.Background()

	mockRepo := &mocks.MockChargerRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Charger, error) {
			return &domain.Charger{
				ID:             "CP-123",
				ConfigSnapshot: `{"MeterValueSampleInterval":"60"}`,
			}, nil
		},
	}

	var snapshot string
	mockRepo.UpdateFieldsFunc = func(ctx context.Context, id string, fields map[string]interface{}) error {
		snapshot, _ = fields["config_snapshot"].(string)
		return nil
	}

	service := NewService(mockRepo, &mocks.MockCache{}, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	err := service.CacheConfigValue(ctx, "CP-123", "HeartbeatInterval", "120")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var merged map[string]string
	if err := json.Unmarshal([]byte(snapshot), &merged); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if merged["HeartbeatInterval"] != "120" || merged["MeterValueSampleInterval"] != "60" {
		t.Errorf("snapshot not merged correctly: %v", merged)
	}
}

func TestMarkDisconnected_SetsOffline(t *testing.T) {
	// Arrange
	ctx := context.Background()

	var connected *bool
	var status domain.ChargerStatus
	mockRepo := &mocks.MockChargerRepository{
		SetConnectedFunc: func(ctx context.Context, id string, c bool) error {
			connected = &c
			return nil
		},
		UpdateStatusFunc: func(ctx context.Context, id string, s domain.ChargerStatus) error {
			status = s
			return nil
		},
	}

	service := NewService(mockRepo, &mocks.MockCache{}, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	err := service.MarkDisconnected(ctx, "CP-123")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if connected == nil || *connected {
		t.Error("charger must be marked not connected")
	}
	if status != domain.ChargerStatusOffline {
		t.Errorf("expected Offline, got %s", status)
	}
}

func TestRecordBoot_RepositoryError(t *testing.T) {
	// Arrange
	ctx := context.Background()
	mockRepo := &mocks.MockChargerRepository{
		UpdateFieldsFunc: func(ctx context.Context, id string, fields map[string]interface{}) error {
			return errors.New("database error")
		},
	}

	service := NewService(mockRepo, &mocks.MockCache{}, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	err := service.RecordBoot(ctx, "CP-123", "ABB", "Terra", "1.2.3")

	// Assert
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
