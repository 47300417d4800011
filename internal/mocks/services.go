package mocks

import (
	"context"
	"time"

	"github.com/gridfleet/gateway/internal/domain"
)

// MockDeviceService is a mock implementation of DeviceService
type MockDeviceService struct {
	GetChargerFunc          func(ctx context.Context, id string) (*domain.Charger, error)
	ListChargersFunc        func(ctx context.Context, filter map[string]interface{}) ([]domain.Charger, error)
	UpdateStatusFunc        func(ctx context.Context, id string, connector int, status domain.ChargerStatus) error
	MarkConnectedFunc       func(ctx context.Context, id string, protocol string) error
	MarkDisconnectedFunc    func(ctx context.Context, id string) error
	RecordBootFunc          func(ctx context.Context, id, vendor, model, firmware string) error
	HeartbeatFunc           func(ctx context.Context, id string) error
	CacheConfigValueFunc    func(ctx context.Context, id, key, value string) error
	SetLocalListVersionFunc func(ctx context.Context, id string, version int) error
}

func (m *MockDeviceService) GetCharger(ctx context.Context, id string) (*domain.Charger, error) {
	if m.GetChargerFunc != nil {
		return m.GetChargerFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockDeviceService) ListChargers(ctx context.Context, filter map[string]interface{}) ([]domain.Charger, error) {
	if m.ListChargersFunc != nil {
		return m.ListChargersFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockDeviceService) UpdateStatus(ctx context.Context, id string, connector int, status domain.ChargerStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, connector, status)
	}
	return nil
}

func (m *MockDeviceService) MarkConnected(ctx context.Context, id string, protocol string) error {
	if m.MarkConnectedFunc != nil {
		return m.MarkConnectedFunc(ctx, id, protocol)
	}
	return nil
}

func (m *MockDeviceService) MarkDisconnected(ctx context.Context, id string) error {
	if m.MarkDisconnectedFunc != nil {
		return m.MarkDisconnectedFunc(ctx, id)
	}
	return nil
}

func (m *MockDeviceService) RecordBoot(ctx context.Context, id, vendor, model, firmware string) error {
	if m.RecordBootFunc != nil {
		return m.RecordBootFunc(ctx, id, vendor, model, firmware)
	}
	return nil
}

func (m *MockDeviceService) Heartbeat(ctx context.Context, id string) error {
	if m.HeartbeatFunc != nil {
		return m.HeartbeatFunc(ctx, id)
	}
	return nil
}

func (m *MockDeviceService) CacheConfigValue(ctx context.Context, id, key, value string) error {
	if m.CacheConfigValueFunc != nil {
		return m.CacheConfigValueFunc(ctx, id, key, value)
	}
	return nil
}

func (m *MockDeviceService) SetLocalListVersion(ctx context.Context, id string, version int) error {
	if m.SetLocalListVersionFunc != nil {
		return m.SetLocalListVersionFunc(ctx, id, version)
	}
	return nil
}

// MockTransactionService is a mock implementation of TransactionService
type MockTransactionService struct {
	StartTransactionFunc func(ctx context.Context, chargerID string, connector int, idTag, ocppTxID string, meterStart int, startedAt time.Time) (*domain.Transaction, error)
	StopTransactionFunc  func(ctx context.Context, chargerID, ocppTxID string, meterStop int, reason string, stoppedAt time.Time) (*domain.Transaction, error)
	AddMeterSampleFunc   func(ctx context.Context, chargerID, ocppTxID string, energyWh int) error
	GetTransactionFunc   func(ctx context.Context, id string) (*domain.Transaction, error)
	GetActiveFunc        func(ctx context.Context, chargerID string, connector int) (*domain.Transaction, error)
}

func (m *MockTransactionService) StartTransaction(ctx context.Context, chargerID string, connector int, idTag, ocppTxID string, meterStart int, startedAt time.Time) (*domain.Transaction, error) {
	if m.StartTransactionFunc != nil {
		return m.StartTransactionFunc(ctx, chargerID, connector, idTag, ocppTxID, meterStart, startedAt)
	}
	return nil, nil
}

func (m *MockTransactionService) StopTransaction(ctx context.Context, chargerID, ocppTxID string, meterStop int, reason string, stoppedAt time.Time) (*domain.Transaction, error) {
	if m.StopTransactionFunc != nil {
		return m.StopTransactionFunc(ctx, chargerID, ocppTxID, meterStop, reason, stoppedAt)
	}
	return nil, nil
}

func (m *MockTransactionService) AddMeterSample(ctx context.Context, chargerID, ocppTxID string, energyWh int) error {
	if m.AddMeterSampleFunc != nil {
		return m.AddMeterSampleFunc(ctx, chargerID, ocppTxID, energyWh)
	}
	return nil
}

func (m *MockTransactionService) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	if m.GetTransactionFunc != nil {
		return m.GetTransactionFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockTransactionService) GetActive(ctx context.Context, chargerID string, connector int) (*domain.Transaction, error) {
	if m.GetActiveFunc != nil {
		return m.GetActiveFunc(ctx, chargerID, connector)
	}
	return nil, nil
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	BroadcastFunc func(ctx context.Context, subject, body string)
}

func (m *MockNotifier) Broadcast(ctx context.Context, subject, body string) {
	if m.BroadcastFunc != nil {
		m.BroadcastFunc(ctx, subject, body)
	}
}

// MockCertificateSigner is a mock implementation of CertificateSigner
type MockCertificateSigner struct {
	SignFunc func(ctx context.Context, csr string, certType string, chargerID string) (string, error)
}

func (m *MockCertificateSigner) Sign(ctx context.Context, csr string, certType string, chargerID string) (string, error) {
	if m.SignFunc != nil {
		return m.SignFunc(ctx, csr, certType, chargerID)
	}
	return "", nil
}
