package mocks

import (
	"context"

	"github.com/gridfleet/gateway/internal/domain"
)

// MockChargerRepository is a mock implementation of ChargerRepository
type MockChargerRepository struct {
	SaveFunc                  func(ctx context.Context, c *domain.Charger) error
	FindByIDFunc              func(ctx context.Context, id string) (*domain.Charger, error)
	FindAllFunc               func(ctx context.Context, filter map[string]interface{}) ([]domain.Charger, error)
	UpdateStatusFunc          func(ctx context.Context, id string, status domain.ChargerStatus) error
	UpdateConnectorStatusFunc func(ctx context.Context, id string, connector int, status domain.ChargerStatus) error
	UpdateFieldsFunc          func(ctx context.Context, id string, fields map[string]interface{}) error
	SetConnectedFunc          func(ctx context.Context, id string, connected bool) error
}

func (m *MockChargerRepository) Save(ctx context.Context, c *domain.Charger) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, c)
	}
	return nil
}

func (m *MockChargerRepository) FindByID(ctx context.Context, id string) (*domain.Charger, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockChargerRepository) FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.Charger, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockChargerRepository) UpdateStatus(ctx context.Context, id string, status domain.ChargerStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockChargerRepository) UpdateConnectorStatus(ctx context.Context, id string, connector int, status domain.ChargerStatus) error {
	if m.UpdateConnectorStatusFunc != nil {
		return m.UpdateConnectorStatusFunc(ctx, id, connector, status)
	}
	return nil
}

func (m *MockChargerRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	if m.UpdateFieldsFunc != nil {
		return m.UpdateFieldsFunc(ctx, id, fields)
	}
	return nil
}

func (m *MockChargerRepository) SetConnected(ctx context.Context, id string, connected bool) error {
	if m.SetConnectedFunc != nil {
		return m.SetConnectedFunc(ctx, id, connected)
	}
	return nil
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	SaveFunc         func(ctx context.Context, tx *domain.Transaction) error
	FindByIDFunc     func(ctx context.Context, id string) (*domain.Transaction, error)
	FindByOcppIDFunc func(ctx context.Context, chargerID, ocppID string) (*domain.Transaction, error)
	FindActiveFunc   func(ctx context.Context, chargerID string, connector int) (*domain.Transaction, error)
	FindHistoryFunc  func(ctx context.Context, chargerID string, limit int) ([]domain.Transaction, error)
	UpdateFunc       func(ctx context.Context, tx *domain.Transaction) error
}

func (m *MockTransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx)
	}
	return nil
}

func (m *MockTransactionRepository) FindByID(ctx context.Context, id string) (*domain.Transaction, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockTransactionRepository) FindByOcppID(ctx context.Context, chargerID, ocppID string) (*domain.Transaction, error) {
	if m.FindByOcppIDFunc != nil {
		return m.FindByOcppIDFunc(ctx, chargerID, ocppID)
	}
	return nil, nil
}

func (m *MockTransactionRepository) FindActive(ctx context.Context, chargerID string, connector int) (*domain.Transaction, error) {
	if m.FindActiveFunc != nil {
		return m.FindActiveFunc(ctx, chargerID, connector)
	}
	return nil, nil
}

func (m *MockTransactionRepository) FindHistory(ctx context.Context, chargerID string, limit int) ([]domain.Transaction, error) {
	if m.FindHistoryFunc != nil {
		return m.FindHistoryFunc(ctx, chargerID, limit)
	}
	return nil, nil
}

func (m *MockTransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx)
	}
	return nil
}

// MockWorkflowRepository is a mock implementation of WorkflowRepository
type MockWorkflowRepository struct {
	SaveFunc          func(ctx context.Context, rec *domain.WorkflowRecord) error
	FindByIDFunc      func(ctx context.Context, id string) (*domain.WorkflowRecord, error)
	FindByChargerFunc func(ctx context.Context, chargerID string, kind domain.WorkflowKind, limit int) ([]domain.WorkflowRecord, error)
	UpdateFieldsFunc  func(ctx context.Context, id string, fields map[string]interface{}) error
}

func (m *MockWorkflowRepository) Save(ctx context.Context, rec *domain.WorkflowRecord) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, rec)
	}
	return nil
}

func (m *MockWorkflowRepository) FindByID(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockWorkflowRepository) FindByCharger(ctx context.Context, chargerID string, kind domain.WorkflowKind, limit int) ([]domain.WorkflowRecord, error) {
	if m.FindByChargerFunc != nil {
		return m.FindByChargerFunc(ctx, chargerID, kind, limit)
	}
	return nil, nil
}

func (m *MockWorkflowRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	if m.UpdateFieldsFunc != nil {
		return m.UpdateFieldsFunc(ctx, id, fields)
	}
	return nil
}
