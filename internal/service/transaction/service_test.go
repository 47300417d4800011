package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func TestStartTransaction_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()

	var saved *domain.Transaction
	mockRepo := &mocks.MockTransactionRepository{
		SaveFunc: func(ctx context.Context, tx *domain.Transaction) error {
			saved = tx
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

	service := NewService(mockRepo, mockQueue, newTestLogger())
	startedAt := time.Now().UTC()

	// Act
	tx, err := service.StartTransaction(ctx, "cp-1", 1, "TAG-9", "100123", 1500, startedAt)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if saved == nil {
		t.Fatal("transaction was not persisted")
	}
	if tx.ChargerID != "CP-1" {
		t.Errorf("serial should be normalized, got %s", tx.ChargerID)
	}
	if tx.Status != domain.TransactionStatusActive {
		t.Errorf("expected active status, got %s", tx.Status)
	}
	if tx.MeterStart != 1500 || tx.OcppTransactionID != "100123" {
		t.Errorf("unexpected transaction %+v", tx)
	}
	if published != "gateway.transaction.started" {
		t.Errorf("expected start event, got %q", published)
	}
}

func TestStartTransaction_ClosesStaleActive(t *testing.T) {
	// Arrange
	ctx := context.Background()

	stale := &domain.Transaction{
		ID:                "old",
		ChargerID:         "CP-1",
		Connector:         1,
		OcppTransactionID: "99",
		Status:            domain.TransactionStatusActive,
	}

	var updated *domain.Transaction
	mockRepo := &mocks.MockTransactionRepository{
		FindActiveFunc: func(ctx context.Context, chargerID string, connector int) (*domain.Transaction, error) {
			return stale, nil
		},
		UpdateFunc: func(ctx context.Context, tx *domain.Transaction) error {
			updated = tx
			return nil
		},
	}

	service := NewService(mockRepo, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	_, err := service.StartTransaction(ctx, "CP-1", 1, "TAG-9", "100", 0, time.Now())

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated == nil {
		t.Fatal("stale transaction was not closed")
	}
	if updated.Status != domain.TransactionStatusCompleted {
		t.Errorf("stale transaction should be completed, got %s", updated.Status)
	}
	if updated.StopReason != "SupersededByNewSession" {
		t.Errorf("unexpected stop reason %q", updated.StopReason)
	}
}

func TestStopTransaction_ComputesEnergy(t *testing.T) {
	// Arrange
	ctx := context.Background()

	active := &domain.Transaction{
		ID:                "tx-1",
		ChargerID:         "CP-1",
		Connector:         1,
		OcppTransactionID: "100",
		MeterStart:        1000,
		Status:            domain.TransactionStatusActive,
	}

	var saved *domain.Transaction
	mockRepo := &mocks.MockTransactionRepository{
		FindByOcppIDFunc: func(ctx context.Context, chargerID, ocppID string) (*domain.Transaction, error) {
			if ocppID == "100" {
				return active, nil
			}
			return nil, nil
		},
		SaveFunc: func(ctx context.Context, tx *domain.Transaction) error {
			saved = tx
			return nil
		},
	}

	service := NewService(mockRepo, &mocks.MockMessageQueue{}, newTestLogger())
	stoppedAt := time.Now().UTC()

	// Act
	tx, err := service.StopTransaction(ctx, "CP-1", "100", 3500, "Local", stoppedAt)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if saved == nil {
		t.Fatal("transaction was not persisted")
	}
	if tx.EnergyWh != 2500 {
		t.Errorf("expected 2500 Wh, got %d", tx.EnergyWh)
	}
	if tx.Status != domain.TransactionStatusCompleted {
		t.Errorf("expected completed, got %s", tx.Status)
	}
	if tx.StoppedAt == nil || !tx.StoppedAt.Equal(stoppedAt) {
		t.Error("stop timestamp not recorded")
	}
}

func TestStopTransaction_UnknownRecordsOrphan(t *testing.T) {
	// Arrange
	ctx := context.Background()

	var saved *domain.Transaction
	mockRepo := &mocks.MockTransactionRepository{
		SaveFunc: func(ctx context.Context, tx *domain.Transaction) error {
			saved = tx
			return nil
		},
	}

	service := NewService(mockRepo, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	tx, err := service.StopTransaction(ctx, "CP-1", "ghost", 500, "PowerLoss", time.Now())

	// Assert
	if err != nil {
		t.Fatalf("a stop without a start must still be recorded, got %v", err)
	}
	if saved == nil || tx.OcppTransactionID != "ghost" {
		t.Fatal("orphan stop was not persisted")
	}
	if tx.EnergyWh != 0 {
		t.Errorf("orphan stop has no measurable energy, got %d", tx.EnergyWh)
	}
}

func TestAddMeterSample_AdvancesEnergy(t *testing.T) {
	// Arrange
	ctx := context.Background()

	active := &domain.Transaction{
		ID:                "tx-1",
		OcppTransactionID: "100",
		MeterStart:        1000,
		EnergyWh:          200,
		Status:            domain.TransactionStatusActive,
	}

	var updated *domain.Transaction
	mockRepo := &mocks.MockTransactionRepository{
		FindByOcppIDFunc: func(ctx context.Context, chargerID, ocppID string) (*domain.Transaction, error) {
			return active, nil
		},
		UpdateFunc: func(ctx context.Context, tx *domain.Transaction) error {
			updated = tx
			return nil
		},
	}

	service := NewService(mockRepo, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	err := service.AddMeterSample(ctx, "CP-1", "100", 1800)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated == nil || updated.EnergyWh != 800 {
		t.Fatalf("expected energy 800, got %+v", updated)
	}
}

func TestAddMeterSample_BackwardsReadingIgnored(t *testing.T) {
	// Arrange
	ctx := context.Background()

	active := &domain.Transaction{
		OcppTransactionID: "100",
		MeterStart:        1000,
		EnergyWh:          800,
		Status:            domain.TransactionStatusActive,
	}

	mockRepo := &mocks.MockTransactionRepository{
		FindByOcppIDFunc: func(ctx context.Context, chargerID, ocppID string) (*domain.Transaction, error) {
			return active, nil
		},
		UpdateFunc: func(ctx context.Context, tx *domain.Transaction) error {
			t.Error("a lower register reading must not rewind the total")
			return nil
		},
	}

	service := NewService(mockRepo, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	err := service.AddMeterSample(ctx, "CP-1", "100", 1200)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestStopTransaction_RepositoryError(t *testing.T) {
	// Arrange
	ctx := context.Background()
	mockRepo := &mocks.MockTransactionRepository{
		FindByOcppIDFunc: func(ctx context.Context, chargerID, ocppID string) (*domain.Transaction, error) {
			return nil, errors.New("database error")
		},
	}

	service := NewService(mockRepo, &mocks.MockMessageQueue{}, newTestLogger())

	// Act
	_, err := service.StopTransaction(ctx, "CP-1", "100", 500, "Local", time.Now())

	// Assert
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
